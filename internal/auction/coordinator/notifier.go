package coordinator

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/streambid/internal/models"
)

// Notifier fans committed session snapshots out to in-process observers,
// typically one websocket connection per subscription. Channels are buffered
// and a subscriber that falls behind has its oldest snapshot dropped rather
// than blocking the coordinator; the next notify carries the full state
// anyway.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan *models.Session
}

const subscriberBuffer = 8

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[string]map[string]chan *models.Session),
	}
}

// Subscribe registers an observer for one session. The returned cancel
// function removes the subscription and closes the channel.
func (n *Notifier) Subscribe(sessionID string) (<-chan *models.Session, func()) {
	subID := uuid.New().String()
	ch := make(chan *models.Session, subscriberBuffer)

	n.mu.Lock()
	if n.subs[sessionID] == nil {
		n.subs[sessionID] = make(map[string]chan *models.Session)
	}
	n.subs[sessionID][subID] = ch
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if pool, ok := n.subs[sessionID]; ok {
			if sub, ok := pool[subID]; ok {
				delete(pool, subID)
				close(sub)
			}
			if len(pool) == 0 {
				delete(n.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

// Notify delivers a snapshot to every subscriber of the session.
func (n *Notifier) Notify(session *models.Session) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for subID, ch := range n.subs[session.SessionID] {
		select {
		case ch <- session:
		default:
			// Slow subscriber: drop its oldest snapshot to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- session:
			default:
				log.Warn().
					Str("session_id", session.SessionID).
					Str("subscriber_id", subID).
					Msg("dropping snapshot for slow subscriber")
			}
		}
	}
}

// SubscriberCount reports how many observers watch a session.
func (n *Notifier) SubscriberCount(sessionID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[sessionID])
}
