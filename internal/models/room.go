package models

import "time"

type ChatType string

const (
	ChatTypeGroup   ChatType = "group"
	ChatTypePrivate ChatType = "private"
)

// Room is a chat room. Name is empty for private rooms.
type Room struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name,omitempty"`
	ChatType     ChatType  `json:"chat_type"`
	CreatorID    int64     `json:"creator_id"`
	Participants []int64   `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r Room) IsPrivate() bool {
	return r.ChatType == ChatTypePrivate
}

// HasParticipant reports whether userID is listed among the room participants.
func (r Room) HasParticipant(userID int64) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

func (i Identity) Anonymous() bool {
	return i.UserID <= 0
}
