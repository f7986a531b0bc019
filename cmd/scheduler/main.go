package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/cache"
	"github.com/segyhp/loan-engine/internal/config"
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

	if cfg.Database.Driver != config.StorageDriverPostgres {
		lg.Fatal("settlement scheduler requires the postgres storage driver", zap.String("driver", cfg.Database.Driver))
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		lg.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// Settled loans are evicted from the API's cache.
	loanCache := cache.NewNoopLoanCache()
	if cfg.Redis.Enabled {
		opts, err := cfg.Redis.Options()
		if err != nil {
			lg.Fatal("failed to initialize redis", zap.Error(err))
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		loanCache = cache.NewRedisLoanCache(redisClient, cfg.Redis.CacheTTL)
	}

	loanService := service.NewLoanService(repository.NewLoanRepository(db), loanCache, cfg, lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize cron scheduler
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.GetSchedulerLocation()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if _, err := c.AddFunc(cfg.Scheduler.SettlementCron, func() {
		settleLoans(ctx, loanService, lg)
	}); err != nil {
		lg.Fatal("failed to schedule settlement job", zap.Error(err))
	}

	c.Start()
	lg.Info("scheduler started",
		zap.String("settlement_cron", cfg.Scheduler.SettlementCron),
		zap.String("timezone", cfg.Scheduler.Timezone),
	)

	<-ctx.Done()

	lg.Info("shutting down scheduler")
	<-c.Stop().Done()
	lg.Info("scheduler stopped")
}

func settleLoans(ctx context.Context, loanService *service.LoanService, lg *zap.Logger) {
	lg.Info("running settlement sweep")

	settled, err := loanService.SettleLoans(ctx)
	if err != nil {
		lg.Error("settlement sweep finished with errors", zap.Int("settled", settled), zap.Error(err))
		return
	}

	lg.Info("settlement sweep finished", zap.Int("settled", settled))
}
