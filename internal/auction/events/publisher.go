package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Envelope wraps a payload for the wire.
type Envelope struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope marshals payload into a wire envelope.
func NewEnvelope(sessionID string, eventType EventType, at time.Time, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}, nil
}

// Publisher delivers domain events to observers. The coordinator treats
// publish failures as log-and-continue: a lost notification never rolls back
// a committed command.
type Publisher interface {
	Publish(ctx context.Context, ev Envelope) error
	Close() error
}

// NoopPublisher drops every event. Used by unit tests and single-process runs
// without a bus.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, ev Envelope) error { return nil }
func (NoopPublisher) Close() error                                   { return nil }

// JetStreamConfig holds NATS JetStream publisher settings.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string // events go to "<prefix>.<sessionID>"
	MaxAge        time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConfig returns the default publisher configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "AUCTION_EVENTS",
		SubjectPrefix: "auction.events",
		MaxAge:        24 * time.Hour,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// JetStreamPublisher publishes envelopes to a NATS JetStream stream, creating
// the stream on startup when it does not exist.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewJetStreamPublisher connects to NATS and ensures the event stream exists.
func NewJetStreamPublisher(ctx context.Context, config JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        config.StreamName,
		Description: "Live auction session events",
		Subjects:    []string{config.SubjectPrefix + ".*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      config.MaxAge,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", config.StreamName, err)
	}

	return &JetStreamPublisher{nc: nc, js: js, config: config}, nil
}

// Publish sends one envelope and waits for the server acknowledgment, so a
// committed event is persisted before the call returns.
func (p *JetStreamPublisher) Publish(ctx context.Context, ev Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, ev.SessionID)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the NATS connection.
func (p *JetStreamPublisher) Close() error {
	p.nc.Close()
	return nil
}
