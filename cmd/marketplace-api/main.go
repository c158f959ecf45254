package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-marketplace/internal/api/handlers"
	apimw "auction-marketplace/internal/api/middleware"
	"auction-marketplace/internal/config"
	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/infrastructure/memory"
	"auction-marketplace/internal/infrastructure/mysql"
	"auction-marketplace/internal/infrastructure/redis"
	"auction-marketplace/internal/infrastructure/websocket"
	"auction-marketplace/internal/services"
	"auction-marketplace/pkg/logger"
	"auction-marketplace/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level).With("service", "marketplace-api")
	log.Info("Starting marketplace API", "config", cfg.GetConfigString())

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	var (
		store     domain.ListingStore
		queue     domain.JobQueue
		cache     domain.ListingCache
		publisher domain.EventPublisher
		memQueue  *memory.JobQueue
		wsRouter  *mux.Router
	)

	if cfg.Store.Driver == "memory" {
		// Standalone: one process holds the store, the queue, the processor
		// and the websocket endpoints.
		log.Warn("Running standalone with in-memory store and queue")
		store = memory.NewListingStore()
		memQueue = memory.NewJobQueue(cfg.Fanout.Buffer)
		queue = memQueue

		connManager := websocket.NewConnectionManager(log)
		defer connManager.CloseAll()
		publisher = websocket.NewWebSocketNotifier(connManager)
		wsRouter = mux.NewRouter()
		websocket.NewWebSocketHandler(connManager, cfg.Push.Heartbeat, cfg.Push.SendBuffer, log).RegisterRoutes(wsRouter)
	} else {
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
		log.Info("Connected to Redis", "address", cfg.Redis.Address)

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
		if err := mysql.EnsureSchema(ctx, db); err != nil {
			log.Error("Failed to prepare schema", "error", err)
			os.Exit(1)
		}
		log.Info("Connected to MySQL")

		store = mysql.NewListingStore(db)
		queue = redis.NewRedisJobQueue(rdb, cfg.Bidding.QueueKey, cfg.Bidding.DequeueTimeout)
		cache = redis.NewRedisListingCache(rdb, cfg.Cache.ListingTTL)
		publisher = redis.NewEventPublisher(rdb)
	}

	fanout := services.NewFanout(publisher, cfg.Fanout.Buffer, cfg.Fanout.PublishTimeout, log)
	fanout.Start()

	validator := services.NewBidValidator(cfg.Bidding.MaxBidMultiplier, cfg.Bidding.MaxBidCeiling)
	writer := services.NewListingWriter(store, cache, fanout, validator, cfg.Bidding.MaxRetries, cfg.Bidding.RetryBackoff, log)
	gateway := services.NewBidGateway(store, cache, queue, writer, validator, cfg.Bidding.EndBuffer, log)
	disputes := services.NewDisputeService(store, cache, fanout, services.DisputeOptions{
		Cooldown:        cfg.Dispute.Cooldown,
		RateLimit:       cfg.Dispute.RateLimit,
		RateWindow:      cfg.Dispute.RateWindow,
		RestartDuration: cfg.Dispute.RestartDuration,
		OfferTTL:        cfg.Dispute.OfferTTL,
		MaxRetries:      cfg.Bidding.MaxRetries,
		RetryBackoff:    cfg.Bidding.RetryBackoff,
	}, log)
	listings := services.NewListingService(store, cache, fanout, log)

	var scheduler *services.MaintenanceScheduler
	if memQueue != nil {
		processor := services.NewSequentialProcessor(memQueue, writer, log)
		go func() {
			if err := processor.Run(runCtx); err != nil {
				log.Error("Sequential processor stopped", "error", err)
			}
		}()

		scheduler = services.NewMaintenanceScheduler(store, memQueue, disputes, cfg.Scheduler.CloseSweep, cfg.Scheduler.OfferSweep, log)
		if err := scheduler.Start(runCtx); err != nil {
			log.Error("Failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}"}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.POST, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			apimw.HeaderUserID,
		},
		MaxAge: 86400,
	}))

	handlers.NewMarketplaceHandler(gateway, disputes, listings, fanout, log).RegisterRoutes(e)
	if wsRouter != nil {
		e.Any("/ws/*", echo.WrapHandler(wsRouter))
	}

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("Starting HTTP server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down marketplace API...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	stopRun()
	if memQueue != nil {
		memQueue.Close()
	}
	if err := fanout.Close(shutdownCtx); err != nil {
		log.Warn("Fan-out did not drain", "error", err)
	}

	log.Info("Marketplace API stopped")
}
