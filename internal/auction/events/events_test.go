package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNoopPublisher_Publish(t *testing.T) {
	pub := NoopPublisher{}
	if err := pub.Publish(context.Background(), Envelope{}); err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
}

func TestNoopPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = NoopPublisher{}
}

func TestJetStreamPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*JetStreamPublisher)(nil)
}

func TestNewEnvelope_RoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := BidAcceptedPayload{
		SessionID:   "reef-treasures-01",
		ItemID:      1717243200000,
		BidderID:    "alice@example.com",
		Amount:      45,
		PreviousBid: 40,
		SubmittedAt: at,
	}

	ev, err := NewEnvelope("reef-treasures-01", EventTypeBidAccepted, at, payload)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if ev.ID == "" {
		t.Error("envelope should carry an event id")
	}
	if ev.Type != EventTypeBidAccepted {
		t.Errorf("type = %s, want %s", ev.Type, EventTypeBidAccepted)
	}

	var decoded BidAcceptedPayload
	if err := json.Unmarshal(ev.Data, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded != payload {
		t.Errorf("payload round trip mismatch: got %+v, want %+v", decoded, payload)
	}
}
