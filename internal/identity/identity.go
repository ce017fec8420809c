// Package identity resolves the caller's user ID from a request. IDs are
// opaque strings supplied by the frontend; there is no account system, so an
// absent ID falls back to the Anonymous sentinel, which stays the same bidder
// across requests.
package identity

import (
	"fmt"
	"math/rand"
	"net/http"
	"strings"
)

// HeaderUserID is the header requests carry their user ID in.
const HeaderUserID = "X-User-ID"

// queryUserID is the fallback for websocket upgrades, where custom headers
// are awkward to set from a browser.
const queryUserID = "user_id"

// Anonymous is the sentinel identity for requests that carry no user ID. It
// is one stable bidder: an anonymous viewer bidding twice is the same viewer.
const Anonymous = "Anonymous"

// FromRequest extracts the caller's user ID from the header or, failing
// that, the query string. An absent or blank ID resolves to Anonymous.
func FromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderUserID)); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get(queryUserID)); id != "" {
		return id
	}
	return Anonymous
}

// NewGuest mints a display-friendly guest identity for one WebSocket
// connection, so targeted frames for one anonymous viewer do not reach every
// other anonymous viewer in the session.
func NewGuest() string {
	return fmt.Sprintf("guest-%04d", rand.Intn(10000))
}
