package storage

import (
	"context"

	"Seshat/internal/models"
)

// Store is the full data-store contract. Storage, Memory and the gRPC
// client all implement it.
type Store interface {
	GetRoom(ctx context.Context, roomID int64) (models.Room, error)
	GetOrCreateRoom(ctx context.Context, name string, creator models.Identity) (models.Room, error)
	CreateGroupRoom(ctx context.Context, name string, creator models.Identity) (models.Room, error)
	CreatePrivateRoom(ctx context.Context, creator models.Identity, otherID int64) (models.Room, error)
	JoinRoom(ctx context.Context, roomID, userID int64) (models.Room, error)
	LeaveRoom(ctx context.Context, roomID, userID int64) (models.Room, error)
	ListRecentMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error)
	CreateMessage(ctx context.Context, roomID int64, author models.Identity, content string) (models.Message, error)
	VerifyRoomAccess(ctx context.Context, roomID, userID int64) (bool, error)
	Close() error
}

var (
	_ Store = (*Storage)(nil)
	_ Store = (*Memory)(nil)
)
