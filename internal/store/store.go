// Package store defines the durable session-store contract the coordinator is
// built on: keyed snapshots, atomic conditional updates, and a deadline index
// for the auction scheduler.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/streambid/internal/models"
)

var (
	// ErrNotFound reports an unknown session key.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyExists rejects creating a session under a taken key.
	ErrAlreadyExists = errors.New("session already exists")

	// ErrVersionConflict reports that a conditional update lost the race: the
	// stored version no longer matches what the caller read. The caller
	// reloads and retries.
	ErrVersionConflict = errors.New("version conflict")
)

// Deadline is the earliest auction expiry of one session.
type Deadline struct {
	SessionID string
	EndsAt    time.Time
}

// SessionStore is the real-time store collaborator. Every mutation writes the
// session as a whole unit; Update succeeds only when the stored version
// matches expectedVersion, otherwise it fails with ErrVersionConflict for
// retry. Implementations also maintain the deadline index the scheduler
// polls.
type SessionStore interface {
	// Create stores a new session at version 1.
	Create(ctx context.Context, session *models.Session) error

	// Get returns the current snapshot of a session.
	Get(ctx context.Context, sessionID string) (*models.Session, error)

	// Update conditionally replaces the snapshot. On success the stored
	// version becomes expectedVersion+1 and session.Version is updated to
	// match.
	Update(ctx context.Context, session *models.Session, expectedVersion int64) error

	// NextDeadline returns the earliest auction deadline across all sessions,
	// or nil when no auction is running.
	NextDeadline(ctx context.Context) (*Deadline, error)

	// DueSessions returns up to limit session IDs whose deadline is at or
	// before now.
	DueSessions(ctx context.Context, now time.Time, limit int) ([]string, error)

	// ListLive returns the IDs of sessions currently marked live.
	ListLive(ctx context.Context) ([]string, error)
}
