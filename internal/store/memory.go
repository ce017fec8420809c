package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcdev12/streambid/internal/auction/queue"
	"github.com/mcdev12/streambid/internal/models"
)

// MemoryStore is an in-process SessionStore with the same conditional-update
// semantics as the durable implementations. It backs unit tests and
// single-process runs without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

func (m *MemoryStore) Create(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.SessionID]; ok {
		return ErrAlreadyExists
	}
	session.Version = 1
	m.sessions[session.SessionID] = session.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return stored.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, session *models.Session, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[session.SessionID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	session.Version = expectedVersion + 1
	m.sessions[session.SessionID] = session.Clone()
	return nil
}

func (m *MemoryStore) NextDeadline(ctx context.Context) (*Deadline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next *Deadline
	for id, s := range m.sessions {
		d := queue.NextDeadline(s)
		if d == nil {
			continue
		}
		if next == nil || d.Before(next.EndsAt) {
			next = &Deadline{SessionID: id, EndsAt: *d}
		}
	}
	return next, nil
}

func (m *MemoryStore) DueSessions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type due struct {
		id     string
		endsAt time.Time
	}
	var dues []due
	for id, s := range m.sessions {
		d := queue.NextDeadline(s)
		if d != nil && !now.Before(*d) {
			dues = append(dues, due{id: id, endsAt: *d})
		}
	}
	sort.Slice(dues, func(i, j int) bool { return dues[i].endsAt.Before(dues[j].endsAt) })

	ids := make([]string, 0, len(dues))
	for _, d := range dues {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, d.id)
	}
	return ids, nil
}

func (m *MemoryStore) ListLive(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, s := range m.sessions {
		if s.IsLive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
