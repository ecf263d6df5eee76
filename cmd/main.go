/*
Package main is the entry point for the ConvoChat server.

It loads configuration, initializes the global logger, opens the durable store and the optional
Redis relay, starts the conversation Manager and the HTTP server, and shuts everything down in
order when SIGINT or SIGTERM arrives.
*/
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

	"github.com/redis/go-redis/v9"

	"convochat/internal/app/chat"
	"convochat/internal/app/db"
	"convochat/internal/app/relay"
	"convochat/internal/app/store"
	"convochat/internal/configs"
	"convochat/internal/handler"
	"convochat/internal/pkg/auth/jwt"
	"convochat/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("store_driver", cfg.StoreDriver).
		Bool("relay", cfg.RedisURL != "").
		Int("history_limit", cfg.HistoryLimit).
		Bool("require_room_for_send", cfg.RequireRoomForSend).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open store", "driver", cfg.StoreDriver)
	}

	var (
		fanout      chat.Relay
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		redisClient, err = relay.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logx.Fatal(err, "Failed to connect to Redis")
		}
		fanout = relay.NewRedis(redisClient, relay.DefaultChannel)
	}

	// Initialize the conversation Manager
	manager := chat.NewManager(st, jwt.NewVerifier(cfg.JWTSecret), chat.NewHub(fanout), chat.OptionsFromConfig(cfg))

	deps := &handler.AppDeps{
		Manager: manager,
		Config:  cfg,
		Store:   st,
	}

	// Setup HTTP server and routes
	router := handler.Router(ctx, deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("ConvoChat Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Closing the Hub ends every live socket through its write pump.
	manager.Shutdown()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logx.Error(err, "Failed to close Redis client")
		}
	}

	if err := st.Close(); err != nil {
		logx.Error(err, "Failed to close store")
	}

	logx.Info("Server gracefully stopped.")
}

func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, error) {
	switch cfg.StoreDriver {
	case configs.StoreDriverSQLite:
		return store.OpenSQLite(cfg.SQLitePath)
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(pool), nil
	}
}
