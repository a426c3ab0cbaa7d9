package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"storeledger/internal/analytics"
	"storeledger/internal/config"
	"storeledger/internal/database"
	"storeledger/internal/ledger"
	custommiddleware "storeledger/internal/middleware"
	"storeledger/internal/notification"
	"storeledger/internal/repository"
	"storeledger/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config     *config.Config
	logger     *zap.Logger
	db         *database.DB
	redis      *redis.Client
	dispatcher *notification.Dispatcher
	reporter   *analytics.Reporter
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *database.DB) *Server {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(nil, cfg.Server.Env == "development"))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.RespondWithJSON(w, http.StatusOK, db.Health(r.Context()))
	})

	// Initialize repositories
	productRepo := repository.NewProductRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	emailRepo := repository.NewEmailLogRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Initialize the notification dispatcher first: the engine wakes it
	// after commits that enqueued a job.
	sender := notification.NewLogSender(logger)
	dispatcher := notification.NewDispatcher(db, emailRepo, sender, cfg.Notifier, logger)

	// Initialize the reservation engine and analytics
	engine := ledger.NewEngine(db, productRepo, saleRepo, statsRepo, emailRepo, userRepo, dispatcher, cfg.Ledger, logger)
	aggregator := analytics.NewAggregator(statsRepo, saleRepo, logger)
	reporter := analytics.NewReporter(aggregator, statsRepo, userRepo, emailRepo, dispatcher, cfg.Report, logger)

	// Initialize handlers
	purchaseHandler := transport.NewPurchaseHandler(engine, logger)
	analyticsHandler := transport.NewAnalyticsHandler(aggregator, productRepo, cfg.Ledger.LowStockThreshold, logger)
	emailHandler := transport.NewEmailHandler(emailRepo, userRepo, dispatcher, logger)

	// Rate limit the purchase surface
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	rateLimit := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: 60,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:purchase",
	}, logger)

	// Register routes
	router.Group(func(r chi.Router) {
		r.Use(rateLimit)
		purchaseHandler.RegisterRoutes(r)
	})
	analyticsHandler.RegisterRoutes(router)
	emailHandler.RegisterRoutes(router)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		dispatcher: dispatcher,
		reporter:   reporter,
	}

	return server
}

// StartWorkers launches the notification dispatcher and the report
// scheduler; both stop when ctx is cancelled.
func (s *Server) StartWorkers(ctx context.Context) error {
	s.dispatcher.Start(ctx)
	return s.reporter.Start(ctx)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
