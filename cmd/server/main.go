package main // Entry point package

import (
	"context"   // Context for shutdown and background workers
	"log"       // Logging library
	"os/signal" // Signal handling for graceful shutdown
	"syscall"   // SIGTERM constant
	"time"      // Shutdown grace period

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/joamik/cinema-reservation/internal/config"     // Internal config loader
	"github.com/joamik/cinema-reservation/internal/database"   // MySQL connection and schema
	"github.com/joamik/cinema-reservation/internal/domain"     // Show aggregate and clock
	"github.com/joamik/cinema-reservation/internal/entity"     // Single-writer entities and gateway
	"github.com/joamik/cinema-reservation/internal/eventstore" // Event journal backends
	"github.com/joamik/cinema-reservation/internal/handler"    // HTTP handlers
	"github.com/joamik/cinema-reservation/internal/middleware" // Cache and rate limit middleware
	"github.com/joamik/cinema-reservation/internal/projection" // Read model processor
	"github.com/joamik/cinema-reservation/internal/queue"      // Seat activity consumer
	"github.com/joamik/cinema-reservation/internal/router"     // Route registration
)

func main() {
	_ = godotenv.Load() // Load .env when present; real env wins

	cfg := config.Load() // Load environment config

	// Select the event store and read model backends. The memory backend
	// keeps everything in process and is the default for development; the
	// mysql backend shares one connection pool between journal and views.
	var (
		store   eventstore.Store
		views   projection.ViewRepository
		offsets projection.OffsetStore
	)
	switch cfg.EventStore {
	case "mysql":
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		if err := database.EnsureSchema(context.Background(), db); err != nil {
			log.Fatalf("database: %v", err)
		}
		store = eventstore.NewMySQLStore(db)
		views = projection.NewMySQLViewRepository(db)
		offsets = projection.NewMySQLOffsetStore(db)
	default:
		store = eventstore.NewMemoryStore()
		views = projection.NewMemoryViewRepository()
		offsets = projection.NewMemoryOffsetStore()
	}

	// The gateway owns the per-show single-writer entities.
	shows := entity.NewShowService(store, domain.SystemClock(), entity.Config{
		AskTimeout:  cfg.AskTimeout,
		ShardCount:  cfg.ShardCount,
		MailboxSize: 0, // default
	})
	defer shows.Stop()

	// Root context cancelled on SIGINT/SIGTERM; stops the projection and
	// unblocks the HTTP shutdown below.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the show-view projection in the background. It tails the tagged
	// stream and keeps the show_views table current.
	processor := projection.NewProcessor("show-view", eventstore.TagShowEvent, store, offsets,
		projection.NewShowViewHandler(views), projection.Options{
			CommitBatch:    cfg.ProjectionCommitBatch,
			CommitInterval: cfg.ProjectionCommitInterval,
			RetryAttempts:  cfg.ProjectionRetryAttempts,
			RetryBase:      cfg.ProjectionRetryBase,
			RestartMin:     cfg.ProjectionRestartMin,
			RestartMax:     cfg.ProjectionRestartMax,
		})
	go func() {
		if err := processor.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("projection stopped: %v", err)
		}
	}()

	// Background consumer that mirrors accepted seat commands to a log file.
	go func() {
		if err := queue.StartSeatActivityConsumer(ctx); err != nil && ctx.Err() == nil {
			log.Printf("seat-activity consumer stopped: %v", err)
		}
	}()

	e := echo.New() // Create Echo instance
	e.HideBanner = true

	// Redis-backed middleware. A nil client disables both features and the
	// service keeps running without them.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; response cache and rate limiting disabled")
	}
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	cacheMW := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg))
	router.RegisterShows(e, handler.NewShowHandler(shows, views), cfg.JWTSecret, cacheMW)

	addr := ":" + cfg.Port // Address string with port
	log.Printf("listening on %s (env=%s, event_store=%s)", addr, cfg.Env, cfg.EventStore)

	go func() {
		if err := e.Start(addr); err != nil { // Start HTTP server
			log.Printf("http server stopped: %v", err)
		}
	}()

	<-ctx.Done() // Wait for shutdown signal

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
