package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/streambid/internal/auction"
	"github.com/mcdev12/streambid/internal/auction/coordinator"
	"github.com/mcdev12/streambid/internal/auction/events"
	"github.com/mcdev12/streambid/internal/auction/settlement"
	"github.com/mcdev12/streambid/internal/gateway"
	"github.com/mcdev12/streambid/internal/httpapi"
	"github.com/mcdev12/streambid/internal/models"
	"github.com/mcdev12/streambid/internal/orders"
	"github.com/mcdev12/streambid/internal/store"
	"github.com/mcdev12/streambid/internal/store/redisstore"
)

// Services holds every wired component plus the cleanup hooks to run on
// shutdown.
type Services struct {
	Coordinator       *coordinator.Coordinator
	ConnectionManager *gateway.ConnectionManager
	WebSocketHandler  *gateway.WebSocketHandler
	EventConsumer     *gateway.EventConsumer
	API               *httpapi.Handler

	cleanups []func()
}

func setupServices(ctx context.Context, config *Config, pool *pgxpool.Pool) (*Services, error) {
	services := &Services{}

	// Session store: Redis for durable multi-instance state, memory otherwise.
	var sessionStore store.SessionStore
	if config.RedisAddr != "" {
		redisStore, err := redisstore.Connect(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connect session store: %w", err)
		}
		services.cleanups = append(services.cleanups, func() { redisStore.Close() })
		sessionStore = redisStore
		log.Info().Str("addr", config.RedisAddr).Msg("using redis session store")
	} else {
		sessionStore = store.NewMemoryStore()
		log.Warn().Msg("using in-memory session store; state is lost on restart")
	}

	// Event bus.
	var publisher events.Publisher = events.NoopPublisher{}
	if config.NATSURL != "" {
		jsConfig := events.DefaultJetStreamConfig()
		jsConfig.URL = config.NATSURL
		jsPublisher, err := events.NewJetStreamPublisher(ctx, jsConfig)
		if err != nil {
			return nil, fmt.Errorf("connect event publisher: %w", err)
		}
		services.cleanups = append(services.cleanups, func() { jsPublisher.Close() })
		publisher = jsPublisher
	}

	// Order persistence.
	var orderSink settlement.OrderSink
	var orderStore httpapi.OrderStore
	if pool != nil {
		repo := orders.NewRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		orderSink = repo
		orderStore = repo
	} else {
		log.Warn().Msg("no database configured; settled items produce no orders")
		orderStore = unavailableOrders{}
	}

	services.Coordinator = coordinator.New(
		sessionStore,
		orderSink,
		publisher,
		clockwork.NewRealClock(),
		config.coordinatorConfig(),
	)

	services.ConnectionManager = gateway.NewConnectionManager(
		gateway.DefaultConnectionConfig(),
		services.Coordinator,
	)
	services.WebSocketHandler = gateway.NewWebSocketHandler(
		services.ConnectionManager,
		services.Coordinator,
		services.Coordinator.Notifier(),
	)

	if config.NATSURL != "" {
		consumerConfig := gateway.DefaultJetStreamConsumerConfig()
		consumerConfig.URL = config.NATSURL
		consumer, err := gateway.NewEventConsumer(services.ConnectionManager, consumerConfig)
		if err != nil {
			return nil, fmt.Errorf("connect event consumer: %w", err)
		}
		services.cleanups = append(services.cleanups, func() { consumer.Stop() })
		services.EventConsumer = consumer
	}

	services.API = httpapi.NewHandler(services.Coordinator, orderStore)
	return services, nil
}

// Close runs cleanup hooks in reverse order.
func (s *Services) Close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
}

// unavailableOrders serves the order routes when no database is configured.
type unavailableOrders struct{}

func (unavailableOrders) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return nil, errNoOrderStore
}

func (unavailableOrders) ListByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	return nil, errNoOrderStore
}

func (unavailableOrders) ListBySeller(ctx context.Context, sellerID string) ([]models.Order, error) {
	return nil, errNoOrderStore
}

func (unavailableOrders) SetShippingAddress(ctx context.Context, orderID uuid.UUID, buyerID, address string) (*models.Order, error) {
	return nil, errNoOrderStore
}

func (unavailableOrders) MarkShipped(ctx context.Context, orderID uuid.UUID, sellerID, trackingNumber string) (*models.Order, error) {
	return nil, errNoOrderStore
}

var errNoOrderStore = fmt.Errorf("%w: order store is not configured", auction.ErrUnavailable)
