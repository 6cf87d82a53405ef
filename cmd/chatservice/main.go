package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"Seshat/internal/chatservice"
	"Seshat/internal/config"
	"Seshat/internal/logging"
	"Seshat/internal/storage"
	"Seshat/proto/chatpb"
)

var serverLogger = slog.With("component", "grpc-server")

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	serverLogger.Info("Starting Chat Service gRPC Server")

	if cfg.DBConn == "" {
		serverLogger.Error("Environment variable SESHAT_DB_CONN is not set")
		os.Exit(1)
	}

	store, err := storage.NewStorage(cfg.DBConn)
	if err != nil {
		serverLogger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.Migrate(migrateCtx)
	cancel()
	if err != nil {
		serverLogger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	serverLogger.Info("Database connection established")

	grpcServer, hs := chatservice.NewServer(store)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		serverLogger.Error("Failed to listen", "address", cfg.GRPCAddr, "error", err)
		os.Exit(1)
	}
	serverLogger.Info("gRPC server is listening", "address", lis.Addr())

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			serverLogger.Error("gRPC server failed", "error", err)
			os.Exit(1)
		}
	}()

	serverLogger.Info("🚀 Chat Service gRPC Server is running", "address", cfg.GRPCAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	serverLogger.Info("Shutdown signal received")
	hs.SetServingStatus(chatpb.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownTimer := time.NewTimer(cfg.ShutdownTimeout)
	defer shutdownTimer.Stop()

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		serverLogger.Info("gRPC server stopped gracefully")
	case <-shutdownTimer.C:
		serverLogger.Warn("Force stopping gRPC server")
		grpcServer.Stop()
	}

	serverLogger.Info("Chat Service shutdown complete")
}
