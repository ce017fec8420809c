package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/streambid/internal/auction"
	"github.com/mcdev12/streambid/internal/orders"
)

// errorResponse is the wire shape of every error. Floor is present only on
// bid rejections, so the client knows what to outbid.
type errorResponse struct {
	Error string  `json:"error"`
	Code  string  `json:"code"`
	Floor float64 `json:"floor,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Code: auction.Reason(err)}

	var rejected *auction.BidRejectedError
	if errors.As(err, &rejected) {
		resp.Floor = rejected.Floor
	}

	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auction.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, auction.ErrNotFound), errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrTooLow),
		errors.Is(err, auction.ErrAuctionClosed),
		errors.Is(err, auction.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, orders.ErrNotYours):
		return http.StatusForbidden
	case errors.Is(err, auction.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseItemID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: item id %q is not numeric", auction.ErrInvalidInput, raw)
	}
	return id, nil
}

func parseOrderID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: order id %q is not a uuid", auction.ErrInvalidInput, raw)
	}
	return id, nil
}
