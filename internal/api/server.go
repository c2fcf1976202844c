package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eshaffer321/ordersync-backend/internal/api/handlers"
	"github.com/eshaffer321/ordersync-backend/internal/api/middleware"
	"github.com/eshaffer321/ordersync-backend/internal/application/service"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/config"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string

	// WriteTimeout must cover a synchronous account sync
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           3001,
		AllowedOrigins: middleware.DefaultCORSConfig().AllowedOrigins,
		WriteTimeout:   5 * time.Minute,
	}
}

// ConfigFromServer builds the server config from the loaded configuration.
func ConfigFromServer(cfg config.ServerConfig) Config {
	out := DefaultConfig()
	if cfg.Port > 0 {
		out.Port = cfg.Port
	}
	if len(cfg.AllowedOrigins) > 0 {
		out.AllowedOrigins = cfg.AllowedOrigins
	}
	return out
}

// Services are the application services behind the API. A nil service
// leaves its routes unregistered.
type Services struct {
	Sync    *service.SyncService
	Connect *service.ConnectService
	Catalog *service.CatalogService
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	repo       storage.Repository
	services   Services
}

// NewServer creates a new API server.
func NewServer(cfg Config, repo storage.Repository, services Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		config:   cfg,
		router:   gin.New(),
		logger:   logger,
		repo:     repo,
		services: services,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: s.config.AllowedOrigins}))
	s.router.Use(middleware.Metrics())
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check and metrics (no /api prefix - for load balancers and scrapers)
	healthHandler := handlers.NewHealthHandler()
	s.router.GET("/health", healthHandler.Get)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		ordersHandler := handlers.NewOrdersHandler(s.repo, s.services.Sync, s.logger)
		api.GET("/orders", ordersHandler.List)
		api.GET("/orders/:orderId", ordersHandler.Get)

		runsHandler := handlers.NewRunsHandler(s.repo, s.logger)
		api.GET("/runs", runsHandler.List)
		api.GET("/runs/:id", runsHandler.Get)

		if s.services.Sync != nil {
			api.POST("/orders/:orderId/process", ordersHandler.Process)
			api.GET("/orders/verified/:accountId", ordersHandler.Verified)

			syncHandler := handlers.NewSyncHandler(s.services.Sync, s.logger)
			api.POST("/sync", syncHandler.StartSync)
			api.POST("/sync/:accountId", syncHandler.SyncAccount)
			api.GET("/sync/jobs", syncHandler.ListJobs)
			api.GET("/sync/jobs/:jobId", syncHandler.GetJob)
			api.DELETE("/sync/jobs/:jobId", syncHandler.CancelJob)
		}

		if s.services.Connect != nil {
			accountsHandler := handlers.NewAccountsHandler(s.services.Connect, s.logger)
			api.GET("/accounts/:accountId/connect", accountsHandler.Connect)
			s.router.GET("/oauth/callback", accountsHandler.Callback)
		}

		if s.services.Catalog != nil {
			productsHandler := handlers.NewProductsHandler(s.services.Catalog, s.logger)
			api.POST("/accounts/:accountId/products/import", productsHandler.Import)
			api.GET("/products/:productId/stock", productsHandler.Stock)
			api.GET("/products/:productId/movements", productsHandler.Movements)
		}
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the gin engine for testing.
func (s *Server) Router() http.Handler {
	return s.router
}
