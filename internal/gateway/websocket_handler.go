package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/streambid/internal/auction"
	"github.com/mcdev12/streambid/internal/identity"
	"github.com/mcdev12/streambid/internal/models"
)

// SnapshotProvider serves the current session state for late joiners.
type SnapshotProvider interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
}

// SnapshotSource delivers committed snapshots to in-process subscribers.
// Satisfied by the coordinator's notifier.
type SnapshotSource interface {
	Subscribe(sessionID string) (<-chan *models.Session, func())
}

// WebSocketHandler upgrades viewer connections and feeds each one the
// session's current state followed by live snapshots.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	snapshots         SnapshotProvider
	source            SnapshotSource
}

// NewWebSocketHandler creates a WebSocket handler. source may be nil when
// the gateway runs as a separate process and relies on the JetStream
// consumer for live updates.
func NewWebSocketHandler(cm *ConnectionManager, snapshots SnapshotProvider, source SnapshotSource) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		snapshots:         snapshots,
		source:            source,
	}
}

// HandleSessionConnection upgrades GET /sessions/{id}/ws.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}
	userID := identity.FromRequest(r)
	if userID == identity.Anonymous {
		// Targeted frames (rejections, snapshot catch-up) must reach only
		// this viewer's socket, so each anonymous connection gets its own
		// guest identity.
		userID = identity.NewGuest()
	}

	session, err := h.snapshots.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, auction.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "session temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.connectionManager.UpgradeConnection(w, r, userID, sessionID)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	h.sendSnapshot(conn, session)

	if h.source != nil {
		go h.forwardSnapshots(conn)
	}
}

// sendSnapshot pushes the full session state to one connection.
func (h *WebSocketHandler) sendSnapshot(conn *Connection, session *models.Session) {
	msg, err := NewMessage(session.SessionID, "Snapshot", map[string]any{"session": session})
	if err != nil {
		log.Error().Err(err).Msg("failed to build snapshot frame")
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if !conn.trySend(data) {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("dropping initial snapshot for slow connection")
	}
}

// forwardSnapshots relays committed snapshots from the in-process notifier
// to the viewer's connections until either side closes. Delivery goes
// through the broadcast channel so the send races nothing.
func (h *WebSocketHandler) forwardSnapshots(conn *Connection) {
	ch, cancel := h.source.Subscribe(conn.SessionID)
	defer cancel()

	for {
		select {
		case <-conn.Done():
			return
		case session, ok := <-ch:
			if !ok {
				return
			}
			msg, err := NewMessage(session.SessionID, "Snapshot", map[string]any{"session": session})
			if err != nil {
				log.Error().Err(err).Msg("failed to build snapshot frame")
				continue
			}
			h.connectionManager.BroadcastToUser(conn.SessionID, conn.UserID, msg)
		}
	}
}

// HandleConnectionStats serves connection counts for debugging.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers the WebSocket routes.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /sessions/{id}/ws", h.HandleSessionConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
