package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcdev12/streambid/internal/auction"
	"github.com/mcdev12/streambid/internal/models"
)

// stubBidPlacer records bids and rejects amounts at or below the floor.
type stubBidPlacer struct {
	mu    sync.Mutex
	floor float64
	bids  []float64
}

func (s *stubBidPlacer) PlaceBid(ctx context.Context, sessionID string, itemID int64, bidderID string, amount float64) (models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount <= s.floor {
		return models.Item{}, &auction.BidRejectedError{Reason: auction.ErrTooLow, Floor: s.floor}
	}
	s.floor = amount
	s.bids = append(s.bids, amount)
	return models.Item{ItemID: itemID, HighestBid: &amount, HighestBidderID: bidderID}, nil
}

type stubSnapshots struct {
	session *models.Session
}

func (s *stubSnapshots) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if s.session == nil || s.session.SessionID != sessionID {
		return nil, auction.ErrNotFound
	}
	return s.session, nil
}

func dialSession(t *testing.T, server *httptest.Server, sessionID, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/" + sessionID + "/ws?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal frame %s: %v", data, err)
	}
	return msg
}

func newGatewayServer(t *testing.T, bids BidPlacer) (*ConnectionManager, *httptest.Server) {
	t.Helper()
	cm := NewConnectionManager(DefaultConnectionConfig(), bids)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go cm.Start(ctx)

	snapshots := &stubSnapshots{session: &models.Session{SessionID: "show-1", SellerID: "seller", Title: "drop", IsLive: true}}
	handler := NewWebSocketHandler(cm, snapshots, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return cm, server
}

func TestGateway_SnapshotOnConnect(t *testing.T) {
	_, server := newGatewayServer(t, &stubBidPlacer{})
	conn := dialSession(t, server, "show-1", "viewer-1")

	msg := readMessage(t, conn)
	if msg.Type != "Snapshot" {
		t.Fatalf("first frame type = %s, want Snapshot", msg.Type)
	}
	var payload struct {
		Session models.Session `json:"session"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if payload.Session.SessionID != "show-1" || !payload.Session.IsLive {
		t.Errorf("snapshot session = %+v", payload.Session)
	}
}

func TestGateway_UnknownSessionRejected(t *testing.T) {
	_, server := newGatewayServer(t, &stubBidPlacer{})

	resp, err := http.Get(server.URL + "/sessions/nope/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGateway_BroadcastReachesAllViewers(t *testing.T) {
	cm, server := newGatewayServer(t, &stubBidPlacer{})
	first := dialSession(t, server, "show-1", "viewer-1")
	second := dialSession(t, server, "show-1", "viewer-2")
	readMessage(t, first)
	readMessage(t, second)

	msg, err := NewMessage("show-1", "BidAccepted", map[string]any{"amount": 42.0})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	cm.BroadcastToSession("show-1", msg)

	for _, conn := range []*websocket.Conn{first, second} {
		got := readMessage(t, conn)
		if got.Type != "BidAccepted" {
			t.Errorf("frame type = %s, want BidAccepted", got.Type)
		}
	}
}

func TestGateway_BidFrameRoundTrip(t *testing.T) {
	bids := &stubBidPlacer{floor: 10}
	_, server := newGatewayServer(t, bids)
	conn := dialSession(t, server, "show-1", "viewer-1")
	readMessage(t, conn)

	// An accepted bid produces no direct reply.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"bid","item_id":7,"amount":20}`)); err != nil {
		t.Fatalf("write bid: %v", err)
	}

	// A losing bid gets a targeted rejection with the floor to beat.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"bid","item_id":7,"amount":15}`)); err != nil {
		t.Fatalf("write low bid: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "BidRejected" {
		t.Fatalf("frame type = %s, want BidRejected", msg.Type)
	}
	var rejection struct {
		ItemID int64   `json:"item_id"`
		Reason string  `json:"reason"`
		Floor  float64 `json:"floor"`
	}
	if err := json.Unmarshal(msg.Data, &rejection); err != nil {
		t.Fatalf("unmarshal rejection: %v", err)
	}
	if rejection.Reason != "too_low" || rejection.Floor != 20 {
		t.Errorf("rejection = %+v, want too_low at floor 20", rejection)
	}

	bids.mu.Lock()
	defer bids.mu.Unlock()
	if len(bids.bids) != 1 || bids.bids[0] != 20 {
		t.Errorf("recorded bids = %v, want [20]", bids.bids)
	}
}

// A viewer dropping mid-broadcast must never take the process down: the
// broadcast loop snapshots the pool under RLock and keeps sending after the
// disconnect path has run, so teardown may only signal, never close the send
// channel out from under it.
func TestGateway_DisconnectDuringBroadcastIsSafe(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	accepted := make(chan *Connection, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := cm.UpgradeConnection(w, r, "viewer-1", "show-1")
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	msg, err := NewMessage("show-1", "BidAccepted", map[string]any{"amount": 42.0})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	for round := 0; round < 50; round++ {
		client, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		conn := <-accepted

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				cm.handleBroadcast(BroadcastMessage{SessionID: "show-1", Message: msg})
			}
		}()
		go func() {
			defer wg.Done()
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}()
		wg.Wait()
		client.Close()
	}

	// The pool is empty and a late broadcast is a no-op.
	cm.handleBroadcast(BroadcastMessage{SessionID: "show-1", Message: msg})
	if got := cm.Stats()["total_connections"].(int); got != 0 {
		t.Errorf("total_connections = %d after teardown, want 0", got)
	}
}

func TestGateway_StatsCountConnections(t *testing.T) {
	cm, server := newGatewayServer(t, &stubBidPlacer{})
	for i := 0; i < 3; i++ {
		conn := dialSession(t, server, "show-1", fmt.Sprintf("viewer-%d", i))
		readMessage(t, conn)
	}

	deadline := time.After(2 * time.Second)
	for {
		stats := cm.Stats()
		if stats["total_connections"].(int) == 3 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("stats = %v, want 3 connections", cm.Stats())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
