package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"Seshat/internal/auth"
	"Seshat/internal/bus"
	"Seshat/internal/config"
	"Seshat/internal/grpcclient"
	"Seshat/internal/handlers"
	"Seshat/internal/logging"
	"Seshat/internal/storage"
	wsHub "Seshat/internal/websocket"
)

const version = "1.0.0"

var serverLogger = slog.With("component", "server")

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		serverLogger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		serverLogger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	serverLogger.Info("Starting Seshat Chat Server", "version", version, "store", cfg.Store, "bus", cfg.Bus)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	b, closeBus, err := openBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBus()

	chatHandler := handlers.NewChatHandler(wsHub.Dependencies{
		Auth:  auth.NewJWTResolver(cfg.JWTSecret),
		Store: store,
		Bus:   b,
	}, handlers.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		Version:        version,
		Session: wsHub.Options{
			HistoryLimit:     cfg.HistoryLimit,
			SendBuffer:       cfg.SendBuffer,
			MaxMessageSize:   cfg.MaxMessageSize,
			MaxContentLength: cfg.MaxContentLength,
			RateBurst:        cfg.RateBurst,
			RateInterval:     cfg.RateInterval,
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlers.NewRouter(chatHandler),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		serverLogger.Info("🚀 Chat server is listening", "address", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		serverLogger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		chatHandler.Close()
		if chatHandler.Wait(cfg.ShutdownTimeout) {
			serverLogger.Info("All sessions closed")
		}
		return err
	})

	err = g.Wait()
	serverLogger.Info("Server stopped")
	return err
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		serverLogger.Warn("Using in-memory store, history is lost on restart")
		return storage.NewMemory(), nil
	case config.StoreGRPC:
		client, err := grpcclient.NewChatClient(cfg.ChatServiceAddr)
		if err != nil {
			return nil, err
		}
		if err := client.Health(ctx); err != nil {
			serverLogger.Warn("Chat service is not healthy yet", "address", cfg.ChatServiceAddr, "error", err)
		}
		return client, nil
	default:
		store, err := storage.NewStorage(cfg.DBConn)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		serverLogger.Info("Database connection established")
		return store, nil
	}
}

// openBus returns the broadcast bus and a func that releases it together
// with any Redis client behind it.
func openBus(ctx context.Context, cfg config.Config) (bus.Bus, func(), error) {
	if cfg.Bus != config.BusRedis {
		b := bus.NewLocalBus()
		return b, func() { b.Close() }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
	}
	serverLogger.Info("Redis connection established", "address", cfg.RedisAddr)

	b := bus.NewRedisBus(ctx, client, cfg.RedisPrefix)
	return b, func() {
		if err := b.Close(); err != nil {
			serverLogger.Warn("Closing bus failed", "error", err)
		}
		client.Close()
	}, nil
}
