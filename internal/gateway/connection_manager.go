// Package gateway fans auction events out to viewers over WebSocket and
// accepts their bids back on the same connection. One connection pool exists
// per session; events arrive either from the in-process coordinator or from
// the JetStream consumer when multiple instances run.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/streambid/internal/auction"
	"github.com/mcdev12/streambid/internal/models"
)

// BidPlacer is the slice of the coordinator the gateway needs to accept
// viewer bids arriving on a socket.
type BidPlacer interface {
	PlaceBid(ctx context.Context, sessionID string, itemID int64, bidderID string, amount float64) (models.Item, error)
}

// Message is the frame sent to WebSocket clients.
type Message struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewMessage builds a frame with a fresh ID, marshaling the payload.
func NewMessage(sessionID, messageType string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", messageType, err)
	}
	return Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      messageType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// clientCommand is the frame viewers send on the socket. Only bids for now.
type clientCommand struct {
	Action string  `json:"action"`
	ItemID int64   `json:"item_id,omitempty"`
	Amount float64 `json:"amount,omitempty"`
}

// bidRejection is sent back to the bidding connection only.
type bidRejection struct {
	ItemID int64   `json:"item_id"`
	Reason string  `json:"reason"`
	Floor  float64 `json:"floor,omitempty"`
}

// ConnectionManager manages the WebSocket connections of all sessions.
type ConnectionManager struct {
	sessionConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	bids     BidPlacer

	broadcastCh chan BroadcastMessage
}

// Connection represents one viewer's WebSocket connection.
type Connection struct {
	ID        string
	UserID    string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	done chan struct{}
}

// Done is closed when the connection is unregistered.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// trySend queues a frame for writePump. Send is never closed — teardown is
// signalled on done and writePump owns the drain — so a send here cannot hit
// a closed channel no matter how it races a disconnect. Returns false when
// the connection is gone or its buffer is full.
func (c *Connection) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// ConnectionConfig holds the socket timeouts and buffer sizes.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage targets one session's pool, or one user in it when
// UserID is set.
type BroadcastMessage struct {
	SessionID string
	Message   Message
	UserID    string
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a WebSocket connection manager. bids handles
// the bid frames viewers send; a nil bids rejects them all.
func NewConnectionManager(config ConnectionConfig, bids BidPlacer) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		bids:        bids,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket and registers it
// in the session's pool.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, sessionID string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		done:        make(chan struct{}),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("session_id", sessionID).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionID] == nil {
		cm.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.SessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("total_connections", len(cm.sessionConnections[conn.SessionID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.sessionConnections[conn.SessionID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			// Send stays open: a broadcast that snapshotted this connection
			// before the lock may still be sending on it. writePump observes
			// done and stops draining.
			close(conn.done)

			if len(connections) == 0 {
				delete(cm.sessionConnections, conn.SessionID)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID).
				Str("session_id", conn.SessionID).
				Msg("connection unregistered")
		}
	}
}

// BroadcastToSession sends a message to every viewer of a session.
func (cm *ConnectionManager) BroadcastToSession(sessionID string, message Message) {
	select {
	case cm.broadcastCh <- BroadcastMessage{SessionID: sessionID, Message: message}:
	default:
		log.Warn().Str("session_id", sessionID).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToUser sends a message to one user's connections in a session.
func (cm *ConnectionManager) BroadcastToUser(sessionID, userID string, message Message) {
	select {
	case cm.broadcastCh <- BroadcastMessage{SessionID: sessionID, Message: message, UserID: userID}:
	default:
		log.Warn().
			Str("session_id", sessionID).
			Str("user_id", userID).
			Msg("broadcast channel full, dropping user message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.sessionConnections[message.SessionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	var targetConnections []*Connection
	for conn := range connections {
		if message.UserID != "" && conn.UserID != message.UserID {
			continue
		}
		targetConnections = append(targetConnections, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message for broadcast")
		return
	}

	for _, conn := range targetConnections {
		if !conn.trySend(data) {
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("type", message.Message.Type).
		Str("session_id", message.SessionID).
		Int("connections", len(targetConnections)).
		Msg("message broadcasted")
}

// Stats returns per-session connection counts.
func (cm *ConnectionManager) Stats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	sessionCounts := make(map[string]int)
	for sessionID, connections := range cm.sessionConnections {
		count := len(connections)
		totalConnections += count
		sessionCounts[sessionID] = count
	}

	return map[string]interface{}{
		"total_connections":   totalConnections,
		"active_sessions":     len(cm.sessionConnections),
		"session_connections": sessionCounts,
	}
}

// writePump drains the send channel onto the socket and pings on an interval.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads viewer frames until the socket closes.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage dispatches a viewer frame. Bids go through the
// coordinator like any other command; a rejection is reported back to the
// sender only, since the accepted state reaches everyone via broadcast.
func (c *Connection) handleClientMessage(message []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Debug().
			Str("connection_id", c.ID).
			Msg("ignoring malformed client frame")
		return
	}

	switch cmd.Action {
	case "bid":
		c.handleBid(cmd)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("action", cmd.Action).
			Msg("ignoring unknown client action")
	}
}

func (c *Connection) handleBid(cmd clientCommand) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if c.Manager.bids == nil {
		err = auction.ErrUnavailable
	} else {
		_, err = c.Manager.bids.PlaceBid(ctx, c.SessionID, cmd.ItemID, c.UserID, cmd.Amount)
	}
	if err == nil {
		return
	}

	rejection := bidRejection{ItemID: cmd.ItemID, Reason: auction.Reason(err)}
	var rejected *auction.BidRejectedError
	if errors.As(err, &rejected) {
		rejection.Floor = rejected.Floor
	}

	msg, mErr := NewMessage(c.SessionID, "BidRejected", rejection)
	if mErr != nil {
		log.Error().Err(mErr).Msg("failed to build rejection frame")
		return
	}
	data, mErr := json.Marshal(msg)
	if mErr != nil {
		return
	}
	c.trySend(data)
}
