package chatservice

import (
	"context"
	"log/slog"

	"google.golang.org/protobuf/types/known/structpb"

	"Seshat/internal/models"
	"Seshat/internal/storage"
	"Seshat/proto/chatpb"
)

var serviceLogger = slog.With("component", "chatservice")

// ChatService serves a storage.Store over gRPC.
type ChatService struct {
	chatpb.UnimplementedChatStoreServer
	store storage.Store
}

func NewChatService(store storage.Store) *ChatService {
	serviceLogger.Info("Creating new ChatService instance")
	return &ChatService{store: store}
}

func (s *ChatService) roomReply(method string, room models.Room, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, fail(method, err)
	}
	return chatpb.EncodeRoom(room), nil
}

func (s *ChatService) GetRoom(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	room, err := s.store.GetRoom(ctx, chatpb.Int64(req, "room_id"))
	return s.roomReply(chatpb.MethodGetRoom, room, err)
}

func (s *ChatService) GetOrCreateRoom(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	creator := chatpb.DecodeIdentity(chatpb.Sub(req, "creator"))
	room, err := s.store.GetOrCreateRoom(ctx, chatpb.String(req, "name"), creator)
	return s.roomReply(chatpb.MethodGetOrCreateRoom, room, err)
}

func (s *ChatService) CreateGroupRoom(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	creator := chatpb.DecodeIdentity(chatpb.Sub(req, "creator"))
	room, err := s.store.CreateGroupRoom(ctx, chatpb.String(req, "name"), creator)
	return s.roomReply(chatpb.MethodCreateGroupRoom, room, err)
}

func (s *ChatService) CreatePrivateRoom(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	creator := chatpb.DecodeIdentity(chatpb.Sub(req, "creator"))
	room, err := s.store.CreatePrivateRoom(ctx, creator, chatpb.Int64(req, "other_id"))
	return s.roomReply(chatpb.MethodCreatePrivateRoom, room, err)
}

func (s *ChatService) JoinRoom(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	room, err := s.store.JoinRoom(ctx, chatpb.Int64(req, "room_id"), chatpb.Int64(req, "user_id"))
	return s.roomReply(chatpb.MethodJoinRoom, room, err)
}

func (s *ChatService) LeaveRoom(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	room, err := s.store.LeaveRoom(ctx, chatpb.Int64(req, "room_id"), chatpb.Int64(req, "user_id"))
	return s.roomReply(chatpb.MethodLeaveRoom, room, err)
}

func (s *ChatService) ListRecentMessages(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	msgs, err := s.store.ListRecentMessages(ctx, chatpb.Int64(req, "room_id"), int(chatpb.Int64(req, "limit")))
	if err != nil {
		return nil, fail(chatpb.MethodListRecentMessages, err)
	}
	return chatpb.EncodeMessages(msgs), nil
}

func (s *ChatService) CreateMessage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	roomID := chatpb.Int64(req, "room_id")
	author := chatpb.DecodeIdentity(chatpb.Sub(req, "author"))
	content := chatpb.String(req, "content")
	serviceLogger.Info("Received CreateMessage request",
		"username", author.Username,
		"room_id", roomID,
		"content_length", len(content))

	msg, err := s.store.CreateMessage(ctx, roomID, author, content)
	if err != nil {
		return nil, fail(chatpb.MethodCreateMessage, err)
	}
	serviceLogger.Info("Message saved successfully", "message_id", msg.ID, "room_id", roomID)
	return chatpb.EncodeMessage(msg), nil
}

func (s *ChatService) VerifyRoomAccess(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	allowed, err := s.store.VerifyRoomAccess(ctx, chatpb.Int64(req, "room_id"), chatpb.Int64(req, "user_id"))
	if err != nil {
		return nil, fail(chatpb.MethodVerifyRoomAccess, err)
	}
	return chatpb.Fields(map[string]any{"allowed": allowed}), nil
}
