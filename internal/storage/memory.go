package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"Seshat/internal/models"
)

// Memory is an in-process store with the same invariants as Postgres.
type Memory struct {
	mu         sync.RWMutex
	nextRoom   int64
	nextMsg    int64
	rooms      map[int64]*models.Room
	groupNames map[string]int64
	private    map[string]int64
	messages   map[int64][]models.Message
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		rooms:      make(map[int64]*models.Room),
		groupNames: make(map[string]int64),
		private:    make(map[string]int64),
		messages:   make(map[int64][]models.Message),
		now:        time.Now,
	}
}

func copyRoom(r *models.Room) models.Room {
	out := *r
	out.Participants = append([]int64(nil), r.Participants...)
	return out
}

func (m *Memory) insertRoom(room models.Room) *models.Room {
	m.nextRoom++
	room.ID = m.nextRoom
	room.CreatedAt = m.now().UTC()
	m.rooms[room.ID] = &room
	return &room
}

func (m *Memory) GetRoom(_ context.Context, roomID int64) (models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	return copyRoom(r), nil
}

func (m *Memory) GetOrCreateRoom(_ context.Context, name string, creator models.Identity) (models.Room, error) {
	if err := validateRoomName(name); err != nil {
		return models.Room{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.groupNames[name]; ok {
		return copyRoom(m.rooms[id]), nil
	}
	return copyRoom(m.createGroupLocked(name, creator)), nil
}

func (m *Memory) CreateGroupRoom(_ context.Context, name string, creator models.Identity) (models.Room, error) {
	if err := validateRoomName(name); err != nil {
		return models.Room{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groupNames[name]; ok {
		return models.Room{}, ErrRoomNameTaken
	}
	return copyRoom(m.createGroupLocked(name, creator)), nil
}

func (m *Memory) createGroupLocked(name string, creator models.Identity) *models.Room {
	room := models.Room{Name: name, ChatType: models.ChatTypeGroup, CreatorID: creator.UserID}
	if !creator.Anonymous() {
		room.Participants = []int64{creator.UserID}
	}
	r := m.insertRoom(room)
	m.groupNames[name] = r.ID
	return r
}

func (m *Memory) CreatePrivateRoom(_ context.Context, creator models.Identity, otherID int64) (models.Room, error) {
	key, err := privateKey(creator.UserID, otherID)
	if err != nil {
		return models.Room{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.private[key]; ok {
		return copyRoom(m.rooms[id]), nil
	}
	r := m.insertRoom(models.Room{
		ChatType:     models.ChatTypePrivate,
		CreatorID:    creator.UserID,
		Participants: []int64{creator.UserID, otherID},
	})
	m.private[key] = r.ID
	return copyRoom(r), nil
}

func (m *Memory) JoinRoom(_ context.Context, roomID, userID int64) (models.Room, error) {
	if userID <= 0 {
		return models.Room{}, ErrInvalidUser
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	if r.IsPrivate() {
		return models.Room{}, ErrPrivateRoomImmutable
	}
	if !r.HasParticipant(userID) {
		r.Participants = append(r.Participants, userID)
	}
	return copyRoom(r), nil
}

func (m *Memory) LeaveRoom(_ context.Context, roomID, userID int64) (models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	if r.IsPrivate() {
		return models.Room{}, ErrPrivateRoomImmutable
	}
	kept := r.Participants[:0]
	for _, id := range r.Participants {
		if id != userID {
			kept = append(kept, id)
		}
	}
	r.Participants = kept
	return copyRoom(r), nil
}

func (m *Memory) ListRecentMessages(_ context.Context, roomID int64, limit int) ([]models.Message, error) {
	limit = clampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.rooms[roomID]; !ok {
		return nil, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	msgs := m.messages[roomID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message(nil), msgs...), nil
}

func (m *Memory) CreateMessage(_ context.Context, roomID int64, author models.Identity, content string) (models.Message, error) {
	if err := validateAuthor(author); err != nil {
		return models.Message{}, err
	}
	content, err := normalizeContent(content)
	if err != nil {
		return models.Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomID]; !ok {
		return models.Message{}, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	m.nextMsg++
	msg := models.Message{
		ID:        m.nextMsg,
		RoomID:    roomID,
		UserID:    author.UserID,
		Username:  author.Username,
		Content:   content,
		Timestamp: m.now().UTC(),
	}
	msgs := append(m.messages[roomID], msg)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	m.messages[roomID] = msgs
	return msg, nil
}

func (m *Memory) VerifyRoomAccess(_ context.Context, roomID, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return false, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	return canAccess(*r, userID), nil
}

// canAccess: private rooms admit their two participants, group rooms any
// authenticated user.
func canAccess(r models.Room, userID int64) bool {
	if userID <= 0 {
		return false
	}
	if r.IsPrivate() {
		return r.HasParticipant(userID)
	}
	return true
}

func (m *Memory) Close() error { return nil }
