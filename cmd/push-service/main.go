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

	"auction-marketplace/internal/api/middleware"
	"auction-marketplace/internal/config"
	"auction-marketplace/internal/infrastructure/redis"
	"auction-marketplace/internal/infrastructure/websocket"
	"auction-marketplace/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level).With("service", "push-service")

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

	connManager := websocket.NewConnectionManager(log)
	notifier := websocket.NewWebSocketNotifier(connManager)
	subscriber := redis.NewRedisEventSubscriber(rdb, log)
	wsHandler := websocket.NewWebSocketHandler(connManager, cfg.Push.Heartbeat, cfg.Push.SendBuffer, log)

	// Setup routes
	router := mux.NewRouter()
	router.Use(middleware.CORS(log))
	wsHandler.RegisterRoutes(router)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	go func() {
		for {
			err := subscriber.Subscribe(runCtx, notifier.Relay)
			if runCtx.Err() != nil {
				return
			}
			log.Error("Event subscription ended, resubscribing", "error", err)
			time.Sleep(time.Second)
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Push.Port),
		Handler: router,
	}

	go func() {
		log.Info("Starting push service", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down push service...")
	stopRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	connManager.CloseAll()

	log.Info("Push service stopped")
}
