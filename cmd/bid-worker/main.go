package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-marketplace/internal/config"
	"auction-marketplace/internal/infrastructure/leader"
	"auction-marketplace/internal/infrastructure/mysql"
	"auction-marketplace/internal/infrastructure/redis"
	"auction-marketplace/internal/services"
	"auction-marketplace/pkg/logger"
	"auction-marketplace/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level).With("service", "bid-worker", "instance", cfg.Instance.ID)
	log.Info("Starting bid worker", "config", cfg.GetConfigString())

	if cfg.Store.Driver != "mysql" {
		log.Error("The bid worker needs the mysql store; run marketplace-api standalone for in-memory mode")
		os.Exit(1)
	}

	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Initialize MySQL
	db, err := utils.InitializeMysql(ctx, utils.MySQLOptions{
		DSN:             cfg.MySQL.DSN,
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("Failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := mysql.NewListingStore(db)
	queue := redis.NewRedisJobQueue(rdb, cfg.Bidding.QueueKey, cfg.Bidding.DequeueTimeout)
	cache := redis.NewRedisListingCache(rdb, cfg.Cache.ListingTTL)
	fanout := services.NewFanout(redis.NewEventPublisher(rdb), cfg.Fanout.Buffer, cfg.Fanout.PublishTimeout, log)
	fanout.Start()

	validator := services.NewBidValidator(cfg.Bidding.MaxBidMultiplier, cfg.Bidding.MaxBidCeiling)
	writer := services.NewListingWriter(store, cache, fanout, validator, cfg.Bidding.MaxRetries, cfg.Bidding.RetryBackoff, log)
	processor := services.NewSequentialProcessor(queue, writer, log)
	disputes := services.NewDisputeService(store, cache, fanout, services.DisputeOptions{
		Cooldown:        cfg.Dispute.Cooldown,
		RateLimit:       cfg.Dispute.RateLimit,
		RateWindow:      cfg.Dispute.RateWindow,
		RestartDuration: cfg.Dispute.RestartDuration,
		OfferTTL:        cfg.Dispute.OfferTTL,
		MaxRetries:      cfg.Bidding.MaxRetries,
		RetryBackoff:    cfg.Bidding.RetryBackoff,
	}, log)

	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.Key, cfg.Leader.TTL, log)

	// Only the lease holder drains the queue and runs the sweeps.
	leaderTask := func(ctx context.Context) error {
		scheduler := services.NewMaintenanceScheduler(store, queue, disputes, cfg.Scheduler.CloseSweep, cfg.Scheduler.OfferSweep, log)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
		return processor.Run(ctx)
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		services.RunWhileLeader(runCtx, leaderElection, cfg.Instance.ID, cfg.Leader.RetryEvery, leaderTask, log)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bid worker...")
	stopRun()
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fanout.Close(shutdownCtx); err != nil {
		log.Warn("Fan-out did not drain", "error", err)
	}

	stats := processor.Stats()
	log.Info("Bid worker stopped", "applied", stats.Applied, "dropped", stats.Dropped, "failed", stats.Failed)
}
