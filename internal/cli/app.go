package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/eshaffer321/ordersync-backend/internal/adapters/platform"
	"github.com/eshaffer321/ordersync-backend/internal/application/service"
	"github.com/eshaffer321/ordersync-backend/internal/application/sync"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/config"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/events"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/kv"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/telemetry"
)

// App holds the wired dependencies shared by the commands
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *storage.Storage
	Tokens       *platform.TokenManager
	Fetcher      *platform.OrderFetcher
	Orchestrator *sync.Orchestrator
	States       kv.StateStore
	Publisher    events.Publisher

	redis          *redis.Client
	memoryStates   *kv.MemoryStateStore
	shutdownTracer func(context.Context) error
}

// NewApp opens storage and connects the optional Redis, Kafka and Jaeger
// backends. Redis and Kafka fall back to in-process implementations when
// they are not configured.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	shutdown, err := telemetry.InitTracer(cfg.Observability.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	app.shutdownTracer = shutdown

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN())
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	app.Store = store

	var locker kv.Locker
	if cfg.Redis.Addr != "" {
		rdb, err := kv.NewRedisClient(cfg.Redis)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.redis = rdb
		app.States = kv.NewRedisStateStore(rdb)
		locker = kv.NewRedisLocker(rdb)
		logger.Info("using redis for oauth state and locks", "addr", cfg.Redis.Addr)
	} else {
		app.memoryStates = kv.NewMemoryStateStore()
		app.States = app.memoryStates
		locker = kv.NewMemoryLocker()
	}

	app.Publisher = events.New(cfg.Kafka)
	if len(cfg.Kafka.Brokers) > 0 {
		logger.Info("publishing events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	client := platform.NewClient(cfg.Platform, store, logger)
	app.Tokens = platform.NewTokenManager(cfg.Platform, store, client.HTTPClient(), logger)
	app.Fetcher = platform.NewOrderFetcher(client, app.Tokens, cfg.Platform, logger)

	app.Orchestrator = sync.NewOrchestrator(
		store,
		app.Tokens,
		app.Fetcher,
		sync.OptionsFromConfig(cfg),
		logger,
		sync.WithLocker(locker),
		sync.WithPublisher(app.Publisher),
	)

	return app, nil
}

// Services builds the application services served over HTTP
func (a *App) Services() (*service.SyncService, *service.ConnectService, *service.CatalogService) {
	syncService := service.NewSyncService(a.Orchestrator, a.Logger)
	connect := service.NewConnectService(a.Store, a.Tokens, a.States, a.Config.Platform.RedirectURI, a.Logger)
	catalog := service.NewCatalogService(a.Store, a.Tokens, a.Fetcher, a.Logger)
	return syncService, connect, catalog
}

// StartSweeper expires OAuth states held in memory. It does nothing when
// states live in Redis, which expires them itself.
func (a *App) StartSweeper() {
	if a.memoryStates != nil {
		a.memoryStates.StartSweeper(service.DefaultStateTTL)
	}
}

// Close releases every backend in reverse order of opening
func (a *App) Close() {
	if a.memoryStates != nil {
		a.memoryStates.StopSweeper()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(context.Background()); err != nil {
			a.Logger.Warn("failed to flush traces", "error", err)
		}
	}
}
