package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"golang.org/x/sync/singleflight"

	"Seshat/internal/models"
)

var storageLogger = slog.With("component", "storage")

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Storage is the PostgreSQL store.
type Storage struct {
	db      *sql.DB
	private singleflight.Group
}

func NewStorage(connStr string) (*Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewStorageFromDB(db), nil
}

func NewStorageFromDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func isPQCode(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

func (s *Storage) loadRoom(ctx context.Context, q querier, roomID int64) (models.Room, error) {
	var r models.Room
	var chatType string
	err := q.QueryRowContext(ctx,
		"SELECT id, COALESCE(name, ''), chat_type, creator_id, created_at FROM rooms WHERE id = $1", roomID,
	).Scan(&r.ID, &r.Name, &chatType, &r.CreatorID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("load room %d: %w", roomID, err)
	}
	r.ChatType = models.ChatType(chatType)

	rows, err := q.QueryContext(ctx,
		"SELECT user_id FROM room_participants WHERE room_id = $1 ORDER BY user_id", roomID,
	)
	if err != nil {
		return models.Room{}, fmt.Errorf("load participants of room %d: %w", roomID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return models.Room{}, fmt.Errorf("scan participant: %w", err)
		}
		r.Participants = append(r.Participants, id)
	}
	return r, rows.Err()
}

func (s *Storage) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	return s.loadRoom(ctx, s.db, roomID)
}

func (s *Storage) GetOrCreateRoom(ctx context.Context, name string, creator models.Identity) (models.Room, error) {
	if err := validateRoomName(name); err != nil {
		return models.Room{}, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		var id int64
		err := s.db.QueryRowContext(ctx,
			"SELECT id FROM rooms WHERE chat_type = 'group' AND name = $1", name,
		).Scan(&id)
		if err == nil {
			return s.loadRoom(ctx, s.db, id)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return models.Room{}, fmt.Errorf("find room %q: %w", name, err)
		}
		room, err := s.CreateGroupRoom(ctx, name, creator)
		if !errors.Is(err, ErrRoomNameTaken) {
			return room, err
		}
		// lost a creation race, the room exists now
	}
	return models.Room{}, ErrRoomNameTaken
}

func (s *Storage) CreateGroupRoom(ctx context.Context, name string, creator models.Identity) (models.Room, error) {
	if err := validateRoomName(name); err != nil {
		return models.Room{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Room{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		"INSERT INTO rooms (name, chat_type, creator_id) VALUES ($1, 'group', $2) RETURNING id",
		name, creator.UserID,
	).Scan(&id)
	if isPQCode(err, pqUniqueViolation) {
		return models.Room{}, ErrRoomNameTaken
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("insert room %q: %w", name, err)
	}
	if !creator.Anonymous() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)", id, creator.UserID,
		); err != nil {
			return models.Room{}, fmt.Errorf("add creator to room %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Room{}, fmt.Errorf("commit room %q: %w", name, err)
	}
	storageLogger.Info("Group room created", "room_id", id, "name", name, "creator", creator.UserID)
	return s.loadRoom(ctx, s.db, id)
}

// CreatePrivateRoom returns the single private room of the pair, creating it
// on first use. Concurrent calls for the same pair converge on one row.
func (s *Storage) CreatePrivateRoom(ctx context.Context, creator models.Identity, otherID int64) (models.Room, error) {
	key, err := privateKey(creator.UserID, otherID)
	if err != nil {
		return models.Room{}, err
	}
	// the flight is shared by every caller of the pair, so no single
	// caller's cancellation may abort it
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.private.Do(key, func() (any, error) {
		id, err := s.insertPrivateRoom(flightCtx, key, creator.UserID, otherID)
		if err != nil {
			return int64(0), err
		}
		return id, nil
	})
	if err != nil {
		return models.Room{}, err
	}
	return s.loadRoom(ctx, s.db, v.(int64))
}

func (s *Storage) insertPrivateRoom(ctx context.Context, key string, creatorID, otherID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		"INSERT INTO rooms (chat_type, creator_id, private_key) VALUES ('private', $1, $2) ON CONFLICT (private_key) DO NOTHING RETURNING id",
		creatorID, key,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := tx.QueryRowContext(ctx, "SELECT id FROM rooms WHERE private_key = $1", key).Scan(&id); err != nil {
			return 0, fmt.Errorf("find private room %s: %w", key, err)
		}
	case err != nil:
		return 0, fmt.Errorf("insert private room %s: %w", key, err)
	default:
		for _, uid := range []int64{creatorID, otherID} {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)", id, uid,
			); err != nil {
				return 0, fmt.Errorf("add participant %d to room %d: %w", uid, id, err)
			}
		}
		storageLogger.Info("Private room created", "room_id", id, "pair", key)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit private room %s: %w", key, err)
	}
	return id, nil
}

func (s *Storage) JoinRoom(ctx context.Context, roomID, userID int64) (models.Room, error) {
	if userID <= 0 {
		return models.Room{}, ErrInvalidUser
	}
	room, err := s.loadRoom(ctx, s.db, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if room.IsPrivate() {
		return models.Room{}, ErrPrivateRoomImmutable
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", roomID, userID,
	); err != nil {
		return models.Room{}, fmt.Errorf("join room %d: %w", roomID, err)
	}
	return s.loadRoom(ctx, s.db, roomID)
}

func (s *Storage) LeaveRoom(ctx context.Context, roomID, userID int64) (models.Room, error) {
	room, err := s.loadRoom(ctx, s.db, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if room.IsPrivate() {
		return models.Room{}, ErrPrivateRoomImmutable
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2", roomID, userID,
	); err != nil {
		return models.Room{}, fmt.Errorf("leave room %d: %w", roomID, err)
	}
	return s.loadRoom(ctx, s.db, roomID)
}

// ListRecentMessages returns the newest limit messages of a room, oldest first.
func (s *Storage) ListRecentMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)", roomID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check room %d: %w", roomID, err)
	}
	if !exists {
		return nil, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, user_id, username, content, created_at FROM (
			SELECT id, room_id, user_id, username, content, created_at FROM messages
			WHERE room_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
		) recent ORDER BY created_at ASC, id ASC`,
		roomID, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list messages of room %d: %w", roomID, err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *Storage) CreateMessage(ctx context.Context, roomID int64, author models.Identity, content string) (models.Message, error) {
	if err := validateAuthor(author); err != nil {
		return models.Message{}, err
	}
	content, err := normalizeContent(content)
	if err != nil {
		return models.Message{}, err
	}

	m := models.Message{RoomID: roomID, UserID: author.UserID, Username: author.Username, Content: content}
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO messages (room_id, user_id, username, content) VALUES ($1, $2, $3, $4) RETURNING id, created_at",
		roomID, author.UserID, author.Username, content,
	).Scan(&m.ID, &m.Timestamp)
	if isPQCode(err, pqForeignKeyViolation) {
		return models.Message{}, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (s *Storage) VerifyRoomAccess(ctx context.Context, roomID, userID int64) (bool, error) {
	room, err := s.loadRoom(ctx, s.db, roomID)
	if err != nil {
		return false, err
	}
	return canAccess(room, userID), nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}
