package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/cache"
	"github.com/segyhp/loan-engine/internal/config"
	"github.com/segyhp/loan-engine/internal/handler"
	"github.com/segyhp/loan-engine/internal/logger"
	"github.com/segyhp/loan-engine/internal/repository"
	"github.com/segyhp/loan-engine/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	zap.ReplaceGlobals(lg)

	healthHandler := handler.NewHealthHandler(cfg.Health.Timeout)

	// Initialize storage
	loanRepo, closeRepo, err := initRepository(cfg)
	if err != nil {
		lg.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer closeRepo()
	healthHandler.AddCheck("database", loanRepo.Ping)

	// Initialize Redis
	loanCache := cache.NewNoopLoanCache()
	if cfg.Redis.Enabled {
		redisClient, err := initRedis(cfg)
		if err != nil {
			lg.Fatal("failed to initialize redis", zap.Error(err))
		}
		defer redisClient.Close()

		loanCache = cache.NewRedisLoanCache(redisClient, cfg.Redis.CacheTTL)
		healthHandler.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	// Initialize service
	loanService := service.NewLoanService(loanRepo, loanCache, cfg, lg)
	loanHandler := handler.NewLoanHandler(loanService)

	// Setup routes
	router := handler.NewRouter(lg, healthHandler, loanHandler, []byte(cfg.Auth.JWTSecret))

	// Start server
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		lg.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("storage", cfg.Database.Driver),
			zap.Bool("redis", cfg.Redis.Enabled),
			zap.String("override_policy", string(cfg.GetStatusOverridePolicy())),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		lg.Error("server forced to shutdown", zap.Error(err))
		return
	}

	lg.Info("server exited")
}

func initRepository(cfg *config.Config) (repository.LoanRepository, func(), error) {
	if cfg.Database.Driver == config.StorageDriverMemory {
		return repository.NewMemoryLoanRepository(), func() {}, nil
	}

	db, err := initDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewLoanRepository(db), func() { _ = db.Close() }, nil
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) (*redis.Client, error) {
	opts, err := cfg.Redis.Options()
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
