// Package coordinator is the single serialization point for all mutating
// session commands. Every command loads the latest snapshot, applies a pure
// transition from the queue/ledger packages against it, and commits the whole
// aggregate with a conditional write — retrying on conflict — so a stale read
// can never overwrite a newer bid or auction state. After every successful
// command the new snapshot is pushed to in-process subscribers and to the
// event bus.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/streambid/internal/auction"
	"github.com/mcdev12/streambid/internal/auction/events"
	"github.com/mcdev12/streambid/internal/auction/ledger"
	"github.com/mcdev12/streambid/internal/auction/queue"
	"github.com/mcdev12/streambid/internal/auction/settlement"
	"github.com/mcdev12/streambid/internal/models"
	"github.com/mcdev12/streambid/internal/store"
)

// Config tunes the coordinator.
type Config struct {
	// MaxRetries bounds conflict retries per command before the coordinator
	// surfaces ErrUnavailable.
	MaxRetries int

	// AutoAdvance starts the next pending item when an auction expires.
	// Default off: the broadcaster drives the queue from the dashboard.
	AutoAdvance bool

	// TickBatchSize caps how many due sessions one tick claims.
	TickBatchSize int

	// Workers sizes the scheduler's expiry worker pool.
	Workers int
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		AutoAdvance:   false,
		TickBatchSize: 32,
		Workers:       8,
	}
}

// Coordinator orchestrates the product queue and item state machines for
// every session in the store.
type Coordinator struct {
	store      store.SessionStore
	orders     settlement.OrderSink
	publisher  events.Publisher
	notifier   *Notifier
	clock      clockwork.Clock
	config     Config
	instanceID string

	wakeCh chan struct{}
	workCh chan string

	inFlight   map[string]bool
	inFlightMu sync.Mutex
}

// New creates a coordinator. orders may be nil when no fulfillment
// collaborator is wired (settled items then simply produce no order rows).
func New(st store.SessionStore, orders settlement.OrderSink, publisher events.Publisher, clock clockwork.Clock, config Config) *Coordinator {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	if config.TickBatchSize <= 0 {
		config.TickBatchSize = DefaultConfig().TickBatchSize
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	return &Coordinator{
		store:      st,
		orders:     orders,
		publisher:  publisher,
		notifier:   NewNotifier(),
		clock:      clock,
		config:     config,
		instanceID: uuid.New().String()[:8],
		wakeCh:     make(chan struct{}, 1),
		workCh:     make(chan string, config.Workers*2),
		inFlight:   make(map[string]bool),
	}
}

// Notifier exposes the in-process subscribe/notify interface.
func (c *Coordinator) Notifier() *Notifier {
	return c.notifier
}

// CreateSessionParams carries the fields of a create-session command.
type CreateSessionParams struct {
	SessionID string
	SellerID  string
	Title     string
	Category  models.Category
}

// CreateSession registers a new, not-yet-live session.
func (c *Coordinator) CreateSession(ctx context.Context, params CreateSessionParams) (*models.Session, error) {
	sessionID := strings.TrimSpace(params.SessionID)
	if sessionID == "" || strings.ContainsAny(sessionID, " \t\n") {
		return nil, fmt.Errorf("%w: session id is required and may not contain spaces", auction.ErrInvalidInput)
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", auction.ErrInvalidInput)
	}
	category := params.Category
	if category == "" {
		category = models.CategoryOther
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", auction.ErrInvalidInput, params.Category)
	}

	session := &models.Session{
		SessionID: sessionID,
		SellerID:  params.SellerID,
		Title:     strings.TrimSpace(params.Title),
		Category:  category,
	}
	if err := c.store.Create(ctx, session); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: session %s already exists", auction.ErrInvalidInput, sessionID)
		}
		return nil, fmt.Errorf("%w: %v", auction.ErrUnavailable, err)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("seller_id", params.SellerID).
		Msg("session created")
	return session, nil
}

// GoLive marks the session live. Going live twice is a no-op: no write, no
// events.
func (c *Coordinator) GoLive(ctx context.Context, sessionID string) (*models.Session, error) {
	return c.apply(ctx, sessionID, func(s *models.Session, now time.Time) ([]pendingEvent, error) {
		if s.IsLive {
			return nil, errNoChange
		}
		s.IsLive = true
		s.StartedAt = &now
		s.EndedAt = nil
		return []pendingEvent{{
			eventType: events.EventTypeSessionWentLive,
			payload: events.SessionWentLivePayload{
				SessionID: s.SessionID,
				SellerID:  s.SellerID,
				Title:     s.Title,
				Category:  string(s.Category),
				StartedAt: now,
			},
		}}, nil
	})
}

// EndSession stops the stream: any running auction is force-ended and
// settled, and the session is marked not-live. The queue and bid history
// stay behind for audit and checkout.
func (c *Coordinator) EndSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return c.apply(ctx, sessionID, func(s *models.Session, now time.Time) ([]pendingEvent, error) {
		if !s.IsLive {
			return nil, errNoChange
		}
		var evs []pendingEvent
		if stopped := queue.StopAuction(s); stopped != nil {
			evs = append(evs, stopEvents(s, stopped.ItemID, "manual", now)...)
		}
		s.IsLive = false
		s.EndedAt = &now
		evs = append(evs, pendingEvent{
			eventType: events.EventTypeSessionEnded,
			payload:   events.SessionEndedPayload{SessionID: s.SessionID, EndedAt: now},
		})
		return evs, nil
	})
}

// AddItem appends a pending item to the session queue.
func (c *Coordinator) AddItem(ctx context.Context, sessionID string, input queue.ItemInput) (models.Item, error) {
	var added models.Item
	_, err := c.apply(ctx, sessionID, func(s *models.Session, now time.Time) ([]pendingEvent, error) {
		item, err := queue.Append(s, input, s.SellerID, now)
		if err != nil {
			return nil, err
		}
		added = item
		return []pendingEvent{{
			eventType: events.EventTypeItemAdded,
			payload: events.ItemAddedPayload{
				SessionID:     s.SessionID,
				ItemID:        item.ItemID,
				Title:         item.Title,
				StartingPrice: item.StartingPrice,
				AddedAt:       now,
			},
		}}, nil
	})
	if err != nil {
		return models.Item{}, err
	}
	return added, nil
}

// StartAuction opens the timed auction on an item. Any other running auction
// in the session is force-ended and settled first. Starting the already-Active
// item is a no-op: no write, no duplicate AuctionStarted.
func (c *Coordinator) StartAuction(ctx context.Context, sessionID string, itemID int64) (models.Item, error) {
	var started models.Item
	_, err := c.apply(ctx, sessionID, func(s *models.Session, now time.Time) ([]pendingEvent, error) {
		var evs []pendingEvent
		if prev := queue.ActiveItem(s); prev != nil && prev.ItemID == itemID {
			started = *prev
			return nil, errNoChange
		} else if prev != nil {
			forcedID := prev.ItemID
			if _, err := queue.StartAuction(s, itemID, now); err != nil {
				return nil, err
			}
			evs = append(evs, stopEvents(s, forcedID, "manual", now)...)
		} else if _, err := queue.StartAuction(s, itemID, now); err != nil {
			return nil, err
		}

		item := s.Item(itemID)
		started = *item
		evs = append(evs, pendingEvent{
			eventType: events.EventTypeAuctionStarted,
			payload: events.AuctionStartedPayload{
				SessionID:       s.SessionID,
				ItemID:          item.ItemID,
				Title:           item.Title,
				StartingPrice:   item.StartingPrice,
				DurationSeconds: item.DurationSeconds,
				StartedAt:       now,
				EndsAt:          *item.EndsAt,
			},
		})
		return evs, nil
	})
	if err != nil {
		return models.Item{}, err
	}
	c.wake()
	return started, nil
}

// StopAuction force-ends the running auction and settles it immediately.
// Once accepted the stop is final: a later tick finds nothing active. Stop
// with no running auction is a no-op returning nil.
func (c *Coordinator) StopAuction(ctx context.Context, sessionID string) (*models.Item, error) {
	var stopped *models.Item
	_, err := c.apply(ctx, sessionID, func(s *models.Session, now time.Time) ([]pendingEvent, error) {
		stopped = nil
		item := queue.StopAuction(s)
		if item == nil {
			return nil, errNoChange
		}
		evs := stopEvents(s, item.ItemID, "manual", now)
		snapshot := *s.Item(item.ItemID)
		stopped = &snapshot
		return evs, nil
	})
	if err != nil {
		return nil, err
	}
	return stopped, nil
}

// PlaceBid validates and records a viewer's bid. itemID zero targets the
// currently active item. Arrival order at the store decides races: the first
// committed bid wins and later equal-or-lower bids reject as TooLow against
// the updated floor.
func (c *Coordinator) PlaceBid(ctx context.Context, sessionID string, itemID int64, bidderID string, amount float64) (models.Item, error) {
	var updated models.Item
	_, err := c.apply(ctx, sessionID, func(s *models.Session, now time.Time) ([]pendingEvent, error) {
		target := s.Item(itemID)
		if itemID == 0 {
			target = queue.ActiveItem(s)
		}
		if target == nil {
			return nil, fmt.Errorf("%w: no item to bid on", auction.ErrNotActive)
		}

		previous := target.CurrentFloor()
		item, err := ledger.TryBid(*target, bidderID, amount, now)
		if err != nil {
			return nil, err
		}
		*target = item
		updated = item

		return []pendingEvent{{
			eventType: events.EventTypeBidAccepted,
			payload: events.BidAcceptedPayload{
				SessionID:   s.SessionID,
				ItemID:      item.ItemID,
				BidderID:    bidderID,
				Amount:      amount,
				PreviousBid: previous,
				SubmittedAt: now,
			},
		}}, nil
	})
	if err != nil {
		return models.Item{}, err
	}
	return updated, nil
}

// AnnotateFulfillment records the shipping tracking number on a settled
// item. The only mutation an item accepts after settlement.
func (c *Coordinator) AnnotateFulfillment(ctx context.Context, sessionID string, itemID int64, trackingNumber string) (models.Item, error) {
	var annotated models.Item
	_, err := c.apply(ctx, sessionID, func(s *models.Session, now time.Time) ([]pendingEvent, error) {
		item := s.Item(itemID)
		if item == nil {
			return nil, fmt.Errorf("%w: item %d", auction.ErrNotFound, itemID)
		}
		if item.State != models.ItemStateSettled {
			return nil, fmt.Errorf("%w: item %d is %s, only settled items take fulfillment annotations", auction.ErrInvalidInput, itemID, item.State)
		}
		item.TrackingNumber = trackingNumber
		annotated = *item
		return nil, nil
	})
	if err != nil {
		return models.Item{}, err
	}
	return annotated, nil
}

// Tick claims every session whose auction deadline has passed and runs the
// expiry transition on each. Invoked by the scheduler; exposed so tests and
// single-shot tools can drive time explicitly.
func (c *Coordinator) Tick(ctx context.Context, now time.Time) error {
	due, err := c.store.DueSessions(ctx, now, c.config.TickBatchSize)
	if err != nil {
		return fmt.Errorf("fetch due sessions: %w", err)
	}
	for _, sessionID := range due {
		if err := c.expireDue(ctx, sessionID); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("expiry failed")
		}
	}
	return nil
}

// GetSession returns the current snapshot.
func (c *Coordinator) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s", auction.ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("%w: %v", auction.ErrUnavailable, err)
	}
	return s, nil
}

// ListLiveSessions returns the IDs of sessions currently live.
func (c *Coordinator) ListLiveSessions(ctx context.Context) ([]string, error) {
	ids, err := c.store.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auction.ErrUnavailable, err)
	}
	return ids, nil
}

// expireDue ends and settles every expired auction in one session, then
// auto-advances when the policy is on.
func (c *Coordinator) expireDue(ctx context.Context, sessionID string) error {
	session, err := c.apply(ctx, sessionID, func(s *models.Session, now time.Time) ([]pendingEvent, error) {
		ended := queue.ExpireDue(s, now)
		if len(ended) == 0 {
			// Raced a manual stop; the stop already settled the item.
			return nil, errNoChange
		}

		var evs []pendingEvent
		var lastEnded int64
		for _, itemID := range ended {
			evs = append(evs, stopEvents(s, itemID, "expired", now)...)
			lastEnded = itemID
		}

		if c.config.AutoAdvance {
			if next := queue.Next(s, lastEnded); next != nil {
				if _, err := queue.StartAuction(s, next.ItemID, now); err == nil {
					item := s.Item(next.ItemID)
					evs = append(evs, pendingEvent{
						eventType: events.EventTypeAuctionStarted,
						payload: events.AuctionStartedPayload{
							SessionID:       s.SessionID,
							ItemID:          item.ItemID,
							Title:           item.Title,
							StartingPrice:   item.StartingPrice,
							DurationSeconds: item.DurationSeconds,
							StartedAt:       now,
							EndsAt:          *item.EndsAt,
						},
					})
				}
			}
		}
		return evs, nil
	})
	if err != nil {
		return err
	}
	if session != nil && c.config.AutoAdvance && queue.ActiveItem(session) != nil {
		c.wake()
	}
	return nil
}

// errNoChange aborts an apply without writing: the command was a duplicate or
// late no-op, so the version stays put and observers see no phantom events.
// apply absorbs it and returns the unchanged snapshot. Internal to the package.
var errNoChange = errors.New("no change")

// pendingEvent is a typed domain event produced by a transition, published
// only after the conditional write lands.
type pendingEvent struct {
	eventType events.EventType
	payload   any
}

type applyFn func(s *models.Session, now time.Time) ([]pendingEvent, error)

// apply runs one command as an atomic read-modify-write: load the latest
// snapshot, run the pure transition on a clone, and commit it conditionally
// on the version read. A conflicting concurrent writer triggers a reload and
// retry; validation therefore always runs against the state at the moment of
// commit. Rejections return to the caller without writing anything.
func (c *Coordinator) apply(ctx context.Context, sessionID string, fn applyFn) (*models.Session, error) {
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		snapshot, err := c.store.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: session %s", auction.ErrNotFound, sessionID)
			}
			return nil, fmt.Errorf("%w: %v", auction.ErrUnavailable, err)
		}

		work := snapshot.Clone()
		evs, err := fn(work, c.clock.Now())
		if errors.Is(err, errNoChange) {
			return snapshot, nil
		}
		if err != nil {
			return nil, err
		}

		err = c.store.Update(ctx, work, snapshot.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			log.Debug().
				Str("session_id", sessionID).
				Int("attempt", attempt+1).
				Msg("write conflict, retrying against fresh snapshot")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", auction.ErrUnavailable, err)
		}

		c.afterCommit(ctx, work, evs)
		return work, nil
	}
	return nil, fmt.Errorf("%w: gave up after %d conflicting writes", auction.ErrUnavailable, c.config.MaxRetries)
}

// afterCommit fans out the committed snapshot and its domain events. Publish
// failures are logged, never propagated: the command already succeeded.
func (c *Coordinator) afterCommit(ctx context.Context, session *models.Session, evs []pendingEvent) {
	c.notifier.Notify(session)

	for _, ev := range evs {
		envelope, err := events.NewEnvelope(session.SessionID, ev.eventType, c.clock.Now(), ev.payload)
		if err != nil {
			log.Error().Err(err).Str("event_type", string(ev.eventType)).Msg("failed to build event envelope")
			continue
		}
		if err := c.publisher.Publish(ctx, envelope); err != nil {
			log.Error().Err(err).Str("event_type", string(ev.eventType)).Msg("failed to publish event")
		}

		if ev.eventType == events.EventTypeItemSettled {
			c.emitOrder(ctx, session, ev.payload.(events.ItemSettledPayload))
		}
	}

	snapshot, err := events.NewEnvelope(session.SessionID, events.EventTypeSnapshot, c.clock.Now(), events.SnapshotPayload{Session: *session})
	if err != nil {
		log.Error().Err(err).Msg("failed to build snapshot envelope")
		return
	}
	if err := c.publisher.Publish(ctx, snapshot); err != nil {
		log.Error().Err(err).Str("session_id", session.SessionID).Msg("failed to publish snapshot")
	}
}

// emitOrder hands a settled item with a winner to the fulfillment
// collaborator. The sink deduplicates on item, so replaying a settlement
// never produces a second order.
func (c *Coordinator) emitOrder(ctx context.Context, session *models.Session, settled events.ItemSettledPayload) {
	if c.orders == nil || settled.WinnerID == "" {
		return
	}
	item := session.Item(settled.ItemID)
	if item == nil {
		return
	}

	order, ok := settlement.Build(session.SessionID, *item, c.clock.Now())
	if !ok {
		return
	}
	created, err := c.orders.CreateOrder(ctx, order)
	if err != nil {
		log.Error().Err(err).Int64("item_id", order.ItemID).Msg("failed to create order")
		return
	}
	if !created {
		return
	}

	log.Info().
		Str("order_id", order.OrderID.String()).
		Str("buyer_id", order.BuyerID).
		Float64("final_price", order.FinalPrice).
		Msg("order created")

	envelope, err := events.NewEnvelope(session.SessionID, events.EventTypeOrderCreated, order.CreatedAt, events.OrderCreatedPayload{
		OrderID:    order.OrderID.String(),
		SessionID:  order.SessionID,
		ItemID:     order.ItemID,
		BuyerID:    order.BuyerID,
		SellerID:   order.SellerID,
		FinalPrice: order.FinalPrice,
		CreatedAt:  order.CreatedAt,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build OrderCreated envelope")
		return
	}
	if err := c.publisher.Publish(ctx, envelope); err != nil {
		log.Error().Err(err).Msg("failed to publish OrderCreated")
	}
}

// stopEvents ends itemID's auction bookkeeping: it settles the item in place
// and returns the AuctionStopped and ItemSettled events. The caller has
// already transitioned the item to Ended.
func stopEvents(s *models.Session, itemID int64, reason string, now time.Time) []pendingEvent {
	evs := []pendingEvent{{
		eventType: events.EventTypeAuctionStopped,
		payload: events.AuctionStoppedPayload{
			SessionID: s.SessionID,
			ItemID:    itemID,
			Reason:    reason,
			StoppedAt: now,
		},
	}}

	item, settled, err := queue.Settle(s, itemID)
	if err != nil || !settled {
		return evs
	}

	payload := events.ItemSettledPayload{
		SessionID: s.SessionID,
		ItemID:    item.ItemID,
		Title:     item.Title,
		SettledAt: now,
	}
	if item.HasWinner() {
		payload.WinnerID = item.HighestBidderID
		payload.FinalPrice = *item.HighestBid
	}
	evs = append(evs, pendingEvent{eventType: events.EventTypeItemSettled, payload: payload})
	return evs
}

// wake nudges the scheduler: a command just installed a deadline that may be
// sooner than the one it is sleeping on.
func (c *Coordinator) wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}
