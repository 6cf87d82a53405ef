package storage

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id          BIGSERIAL PRIMARY KEY,
		name        VARCHAR(100),
		chat_type   VARCHAR(16) NOT NULL CHECK (chat_type IN ('group', 'private')),
		creator_id  BIGINT NOT NULL,
		private_key VARCHAR(64) UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS rooms_group_name_key ON rooms (name) WHERE chat_type = 'group'`,
	`CREATE TABLE IF NOT EXISTS room_participants (
		room_id BIGINT NOT NULL REFERENCES rooms (id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		PRIMARY KEY (room_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         BIGSERIAL PRIMARY KEY,
		room_id    BIGINT NOT NULL REFERENCES rooms (id) ON DELETE CASCADE,
		user_id    BIGINT NOT NULL,
		username   VARCHAR(150) NOT NULL,
		content    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at)`,
}

// Migrate creates the tables if they do not exist yet.
func (s *Storage) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	storageLogger.Info("Schema is up to date", "steps", len(schema))
	return nil
}
