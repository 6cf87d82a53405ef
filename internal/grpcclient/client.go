package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"Seshat/internal/models"
	"Seshat/internal/storage"
	"Seshat/proto/chatpb"
)

var clientLogger = slog.With("component", "grpc-client")

const defaultCallTimeout = 3 * time.Second

var reasonErrors = map[string]error{
	chatpb.ReasonRoomNotFound:         storage.ErrRoomNotFound,
	chatpb.ReasonRoomNameTaken:        storage.ErrRoomNameTaken,
	chatpb.ReasonInvalidRoomName:      storage.ErrInvalidRoomName,
	chatpb.ReasonInvalidParticipants:  storage.ErrInvalidParticipants,
	chatpb.ReasonPrivateRoomImmutable: storage.ErrPrivateRoomImmutable,
	chatpb.ReasonEmptyContent:         storage.ErrEmptyContent,
	chatpb.ReasonInvalidUser:          storage.ErrInvalidUser,
}

// ChatClient is a storage.Store backed by the chat service.
type ChatClient struct {
	conn    *grpc.ClientConn
	client  chatpb.ChatStoreClient
	health  healthpb.HealthClient
	timeout time.Duration
}

var _ storage.Store = (*ChatClient)(nil)

// NewChatClient prepares a connection to the chat service. The connection
// is established lazily on the first call.
func NewChatClient(address string, opts ...grpc.DialOption) (*ChatClient, error) {
	clientLogger.Info("Connecting to Chat Service", "address", address)

	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		clientLogger.Error("Failed to connect to Chat Service", "error", err, "address", address)
		return nil, fmt.Errorf("failed to connect to chat service: %w", err)
	}
	return &ChatClient{
		conn:    conn,
		client:  chatpb.NewChatStoreClient(conn),
		health:  healthpb.NewHealthClient(conn),
		timeout: defaultCallTimeout,
	}, nil
}

// fromStatus turns a service error back into the storage sentinel it
// started as, when it carries a known reason.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.Domain != chatpb.ErrorDomain {
			continue
		}
		if sentinel, known := reasonErrors[info.Reason]; known {
			return sentinel
		}
	}
	switch st.Code() {
	case codes.NotFound:
		return storage.ErrRoomNotFound
	case codes.DeadlineExceeded:
		return errors.Join(context.DeadlineExceeded, err)
	}
	return err
}

func (c *ChatClient) call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Call(ctx, method, req)
	duration := time.Since(start)
	if err != nil {
		clientLogger.Warn("gRPC call failed", "method", method, "duration", duration, "error", err)
		return nil, fmt.Errorf("chat service %s: %w", method, fromStatus(err))
	}
	clientLogger.Debug("gRPC call completed", "method", method, "duration", duration)
	return resp, nil
}

func (c *ChatClient) roomCall(ctx context.Context, method string, req map[string]any) (models.Room, error) {
	resp, err := c.call(ctx, method, chatpb.Fields(req))
	if err != nil {
		return models.Room{}, err
	}
	return chatpb.DecodeRoom(resp)
}

func (c *ChatClient) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	return c.roomCall(ctx, chatpb.MethodGetRoom, map[string]any{"room_id": roomID})
}

func (c *ChatClient) GetOrCreateRoom(ctx context.Context, name string, creator models.Identity) (models.Room, error) {
	return c.roomCall(ctx, chatpb.MethodGetOrCreateRoom, map[string]any{
		"name":    name,
		"creator": chatpb.EncodeIdentity(creator),
	})
}

func (c *ChatClient) CreateGroupRoom(ctx context.Context, name string, creator models.Identity) (models.Room, error) {
	return c.roomCall(ctx, chatpb.MethodCreateGroupRoom, map[string]any{
		"name":    name,
		"creator": chatpb.EncodeIdentity(creator),
	})
}

func (c *ChatClient) CreatePrivateRoom(ctx context.Context, creator models.Identity, otherID int64) (models.Room, error) {
	return c.roomCall(ctx, chatpb.MethodCreatePrivateRoom, map[string]any{
		"creator":  chatpb.EncodeIdentity(creator),
		"other_id": otherID,
	})
}

func (c *ChatClient) JoinRoom(ctx context.Context, roomID, userID int64) (models.Room, error) {
	return c.roomCall(ctx, chatpb.MethodJoinRoom, map[string]any{"room_id": roomID, "user_id": userID})
}

func (c *ChatClient) LeaveRoom(ctx context.Context, roomID, userID int64) (models.Room, error) {
	return c.roomCall(ctx, chatpb.MethodLeaveRoom, map[string]any{"room_id": roomID, "user_id": userID})
}

func (c *ChatClient) ListRecentMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	resp, err := c.call(ctx, chatpb.MethodListRecentMessages, chatpb.Fields(map[string]any{
		"room_id": roomID,
		"limit":   limit,
	}))
	if err != nil {
		return nil, err
	}
	return chatpb.DecodeMessages(resp)
}

func (c *ChatClient) CreateMessage(ctx context.Context, roomID int64, author models.Identity, content string) (models.Message, error) {
	resp, err := c.call(ctx, chatpb.MethodCreateMessage, chatpb.Fields(map[string]any{
		"room_id": roomID,
		"author":  chatpb.EncodeIdentity(author),
		"content": content,
	}))
	if err != nil {
		return models.Message{}, err
	}
	return chatpb.DecodeMessage(resp)
}

func (c *ChatClient) VerifyRoomAccess(ctx context.Context, roomID, userID int64) (bool, error) {
	resp, err := c.call(ctx, chatpb.MethodVerifyRoomAccess, chatpb.Fields(map[string]any{
		"room_id": roomID,
		"user_id": userID,
	}))
	if err != nil {
		return false, err
	}
	return chatpb.Bool(resp, "allowed"), nil
}

// Close releases the connection to the chat service.
func (c *ChatClient) Close() error {
	if c.conn != nil {
		clientLogger.Info("Closing connection to Chat Service")
		return c.conn.Close()
	}
	return nil
}

// Health asks the service's health endpoint whether the store is serving.
func (c *ChatClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: chatpb.ServiceName})
	if err != nil {
		clientLogger.Error("Chat Service health check failed", "error", err)
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("chat service is %s", resp.GetStatus())
	}
	clientLogger.Debug("Chat Service health check passed")
	return nil
}
