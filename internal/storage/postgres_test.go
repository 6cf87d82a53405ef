package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Seshat/internal/models"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewStorageFromDB(db), mock
}

func q(fragment string) string { return regexp.QuoteMeta(fragment) }

func expectRoom(mock sqlmock.Sqlmock, id int64, name, chatType string, creator int64, participants ...int64) {
	mock.ExpectQuery(q("FROM rooms WHERE id = $1")).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "chat_type", "creator_id", "created_at"}).
			AddRow(id, name, chatType, creator, time.Now()))
	rows := sqlmock.NewRows([]string{"user_id"})
	for _, p := range participants {
		rows.AddRow(p)
	}
	mock.ExpectQuery(q("FROM room_participants")).WithArgs(id).WillReturnRows(rows)
}

func TestPostgresCreateMessage(t *testing.T) {
	store, mock := newMockStorage(t)
	now := time.Now()

	mock.ExpectQuery(q("INSERT INTO messages")).
		WithArgs(int64(42), int64(1), "alice", "hello").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))

	msg, err := store.CreateMessage(context.Background(), 42, models.Identity{UserID: 1, Username: "alice"}, "  hello\n")
	require.NoError(t, err)
	assert.Equal(t, int64(7), msg.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "alice", msg.Username)
	assert.True(t, now.Equal(msg.Timestamp))
}

func TestPostgresCreateMessageMissingRoom(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectQuery(q("INSERT INTO messages")).
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation})

	_, err := store.CreateMessage(context.Background(), 9, models.Identity{UserID: 1, Username: "alice"}, "hi")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestPostgresCreateMessageRejectsEmptyContent(t *testing.T) {
	store, _ := newMockStorage(t)

	_, err := store.CreateMessage(context.Background(), 9, models.Identity{UserID: 1, Username: "alice"}, " \t ")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestPostgresCreateGroupRoomNameTaken(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO rooms (name, chat_type, creator_id)")).
		WithArgs("general", int64(1)).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})
	mock.ExpectRollback()

	_, err := store.CreateGroupRoom(context.Background(), "general", models.Identity{UserID: 1, Username: "alice"})
	assert.ErrorIs(t, err, ErrRoomNameTaken)
}

func TestPostgresCreateGroupRoom(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO rooms (name, chat_type, creator_id)")).
		WithArgs("general", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec(q("INSERT INTO room_participants")).
		WithArgs(int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectRoom(mock, 5, "general", "group", 1, 1)

	room, err := store.CreateGroupRoom(context.Background(), "general", models.Identity{UserID: 1, Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), room.ID)
	assert.Equal(t, models.ChatTypeGroup, room.ChatType)
	assert.Equal(t, []int64{1}, room.Participants)
}

func TestPostgresCreatePrivateRoomReturnsExisting(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO rooms (chat_type, creator_id, private_key)")).
		WithArgs(int64(2), "1:2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(q("SELECT id FROM rooms WHERE private_key = $1")).
		WithArgs("1:2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectCommit()
	expectRoom(mock, 9, "", "private", 1, 1, 2)

	room, err := store.CreatePrivateRoom(context.Background(), models.Identity{UserID: 2, Username: "bob"}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), room.ID)
	assert.True(t, room.IsPrivate())
	assert.Equal(t, int64(1), room.CreatorID)
}

func TestPostgresPrivateRoomSurvivesCallerCancel(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO rooms (chat_type, creator_id, private_key)")).
		WithArgs(int64(2), "1:2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectExec(q("INSERT INTO room_participants")).WithArgs(int64(9), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO room_participants")).WithArgs(int64(9), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// the row is committed for everyone waiting on the pair; only this
	// caller's own read back sees its cancellation
	_, err := store.CreatePrivateRoom(ctx, models.Identity{UserID: 2, Username: "bob"}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostgresVerifyRoomAccess(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()

	expectRoom(mock, 9, "", "private", 1, 1, 2)
	ok, err := store.VerifyRoomAccess(ctx, 9, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	expectRoom(mock, 9, "", "private", 1, 1, 2)
	ok, err = store.VerifyRoomAccess(ctx, 9, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(q("FROM rooms WHERE id = $1")).WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "chat_type", "creator_id", "created_at"}))
	_, err = store.VerifyRoomAccess(ctx, 404, 2)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestPostgresListRecentMessages(t *testing.T) {
	store, mock := newMockStorage(t)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("SELECT EXISTS")).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q("FROM messages")).WithArgs(int64(42), int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "user_id", "username", "content", "created_at"}).
			AddRow(int64(1), int64(42), int64(1), "alice", "first", t0).
			AddRow(int64(2), int64(42), int64(2), "bob", "second", t0.Add(time.Second)))

	msgs, err := store.ListRecentMessages(context.Background(), 42, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "bob", msgs[1].Username)
}

func TestPostgresListRecentMessagesMissingRoom(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectQuery(q("SELECT EXISTS")).WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.ListRecentMessages(context.Background(), 404, 10)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}
