package chatservice

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"Seshat/internal/storage"
	"Seshat/proto/chatpb"
)

// NewServer builds the gRPC server for store: the ChatStore service with a
// logging interceptor, the standard health service and server reflection.
func NewServer(store storage.Store, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.UnaryInterceptor(LoggingInterceptor)}, opts...)
	srv := grpc.NewServer(opts...)
	chatpb.RegisterChatStoreServer(srv, NewChatService(store))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(chatpb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)
	return srv, hs
}

// LoggingInterceptor logs every unary call with its duration.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	serviceLogger.Debug("gRPC request started", "method", info.FullMethod)

	resp, err := handler(ctx, req)

	duration := time.Since(start)
	if err != nil {
		serviceLogger.Info("gRPC request failed",
			"method", info.FullMethod,
			"duration", duration,
			"error", err)
	} else {
		serviceLogger.Info("gRPC request completed",
			"method", info.FullMethod,
			"duration", duration)
	}
	return resp, err
}
