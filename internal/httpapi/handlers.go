// Package httpapi is the REST surface for broadcasters and buyers. Every
// mutating route delegates to the coordinator; the handlers only translate
// HTTP to commands and engine errors back to status codes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/streambid/internal/auction"
	"github.com/mcdev12/streambid/internal/auction/coordinator"
	"github.com/mcdev12/streambid/internal/auction/queue"
	"github.com/mcdev12/streambid/internal/identity"
	"github.com/mcdev12/streambid/internal/models"
)

// SessionCommander is the slice of the coordinator the HTTP layer drives.
type SessionCommander interface {
	CreateSession(ctx context.Context, params coordinator.CreateSessionParams) (*models.Session, error)
	GoLive(ctx context.Context, sessionID string) (*models.Session, error)
	EndSession(ctx context.Context, sessionID string) (*models.Session, error)
	AddItem(ctx context.Context, sessionID string, input queue.ItemInput) (models.Item, error)
	StartAuction(ctx context.Context, sessionID string, itemID int64) (models.Item, error)
	StopAuction(ctx context.Context, sessionID string) (*models.Item, error)
	PlaceBid(ctx context.Context, sessionID string, itemID int64, bidderID string, amount float64) (models.Item, error)
	AnnotateFulfillment(ctx context.Context, sessionID string, itemID int64, trackingNumber string) (models.Item, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ListLiveSessions(ctx context.Context) ([]string, error)
}

// OrderStore is the slice of the orders repository the HTTP layer uses.
type OrderStore interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]models.Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]models.Order, error)
	SetShippingAddress(ctx context.Context, orderID uuid.UUID, buyerID, address string) (*models.Order, error)
	MarkShipped(ctx context.Context, orderID uuid.UUID, sellerID, trackingNumber string) (*models.Order, error)
}

// Handler serves the session and order routes.
type Handler struct {
	sessions SessionCommander
	orders   OrderStore
}

func NewHandler(sessions SessionCommander, orderStore OrderStore) *Handler {
	return &Handler{sessions: sessions, orders: orderStore}
}

// RegisterRoutes attaches all REST routes to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.handleCreateSession)
	mux.HandleFunc("GET /sessions", h.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", h.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/live", h.handleGoLive)
	mux.HandleFunc("POST /sessions/{id}/end", h.handleEndSession)
	mux.HandleFunc("POST /sessions/{id}/items", h.handleAddItem)
	mux.HandleFunc("POST /sessions/{id}/items/{itemID}/start", h.handleStartAuction)
	mux.HandleFunc("POST /sessions/{id}/stop", h.handleStopAuction)
	mux.HandleFunc("POST /sessions/{id}/bids", h.handlePlaceBid)

	mux.HandleFunc("GET /orders", h.handleListOrders)
	mux.HandleFunc("GET /orders/{id}", h.handleGetOrder)
	mux.HandleFunc("POST /orders/{id}/address", h.handleSetAddress)
	mux.HandleFunc("POST /orders/{id}/ship", h.handleMarkShipped)
}

type createSessionRequest struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Join(auction.ErrInvalidInput, err))
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), coordinator.CreateSessionParams{
		SessionID: req.SessionID,
		SellerID:  identity.FromRequest(r),
		Title:     req.Title,
		Category:  models.Category(req.Category),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.sessions.ListLiveSessions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"live_sessions": ids})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleGoLive(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GoLive(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.EndSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// addItemRequest mirrors the dashboard form, which posts price and duration
// as strings. Validation happens in one place for both surfaces.
type addItemRequest struct {
	Title           string `json:"title"`
	StartingPrice   string `json:"starting_price"`
	DurationSeconds string `json:"duration_seconds"`
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Join(auction.ErrInvalidInput, err))
		return
	}

	input, err := queue.ParseItemInput(req.Title, req.StartingPrice, req.DurationSeconds)
	if err != nil {
		writeError(w, err)
		return
	}

	item, err := h.sessions.AddItem(r.Context(), r.PathValue("id"), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleStartAuction(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseItemID(r.PathValue("itemID"))
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := h.sessions.StartAuction(r.Context(), r.PathValue("id"), itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleStopAuction(w http.ResponseWriter, r *http.Request) {
	item, err := h.sessions.StopAuction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if item == nil {
		writeJSON(w, http.StatusOK, map[string]any{"stopped": false})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type placeBidRequest struct {
	ItemID int64   `json:"item_id"`
	Amount float64 `json:"amount"`
}

func (h *Handler) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Join(auction.ErrInvalidInput, err))
		return
	}

	item, err := h.sessions.PlaceBid(r.Context(), r.PathValue("id"), req.ItemID, identity.FromRequest(r), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromRequest(r)

	var (
		list []models.Order
		err  error
	)
	switch role := r.URL.Query().Get("role"); role {
	case "", "buyer":
		list, err = h.orders.ListByBuyer(r.Context(), caller)
	case "seller":
		list, err = h.orders.ListBySeller(r.Context(), caller)
	default:
		writeError(w, errors.Join(auction.ErrInvalidInput, errors.New("role must be buyer or seller")))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseOrderID(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type setAddressRequest struct {
	ShippingAddress string `json:"shipping_address"`
}

func (h *Handler) handleSetAddress(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseOrderID(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req setAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ShippingAddress == "" {
		writeError(w, errors.Join(auction.ErrInvalidInput, errors.New("shipping_address is required")))
		return
	}

	order, err := h.orders.SetShippingAddress(r.Context(), orderID, identity.FromRequest(r), req.ShippingAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type markShippedRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) handleMarkShipped(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseOrderID(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req markShippedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackingNumber == "" {
		writeError(w, errors.Join(auction.ErrInvalidInput, errors.New("tracking_number is required")))
		return
	}

	order, err := h.orders.MarkShipped(r.Context(), orderID, identity.FromRequest(r), req.TrackingNumber)
	if err != nil {
		writeError(w, err)
		return
	}

	// Mirror the tracking number onto the settled item. The order is the
	// source of truth, so a failure here only costs the session view.
	if _, err := h.sessions.AnnotateFulfillment(r.Context(), order.SessionID, order.ItemID, order.TrackingNumber); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", order.SessionID).
			Int64("item_id", order.ItemID).
			Msg("failed to annotate item with tracking number")
	}

	writeJSON(w, http.StatusOK, order)
}
