package models

import "time"

// Message is a persisted chat message. Messages are immutable once created.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType is the "type" field of an outbound event.
type EventType string

const (
	EventConnectionEstablished EventType = "connection_established"
	EventChatMessage           EventType = "chat_message"
	EventTyping                EventType = "typing"
	EventUserActivity          EventType = "user_activity"
	EventError                 EventType = "error"
)

// user_activity actions
const (
	ActivityJoined   = "joined"
	ActivityLeft     = "left"
	ActivityPresence = "presence"
)

// Event is the outbound envelope written to sockets and carried by the bus.
type Event struct {
	Type      EventType  `json:"type"`
	RoomID    int64      `json:"room_id,omitempty"`
	MessageID int64      `json:"message_id,omitempty"`
	Message   string     `json:"message,omitempty"`
	User      string     `json:"user,omitempty"`
	UserID    int64      `json:"user_id,omitempty"`
	IsTyping  *bool      `json:"is_typing,omitempty"`
	Action    string     `json:"action,omitempty"`
	Status    string     `json:"status,omitempty"`
	Code      string     `json:"code,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	History   []Message  `json:"messages,omitempty"`
}

// ChatMessageEvent builds the broadcast form of a stored message.
func ChatMessageEvent(m Message) Event {
	ts := m.Timestamp
	return Event{
		Type:      EventChatMessage,
		RoomID:    m.RoomID,
		MessageID: m.ID,
		Message:   m.Content,
		User:      m.Username,
		UserID:    m.UserID,
		Timestamp: &ts,
	}
}

// ErrorEvent builds an error acknowledgment for a single connection.
func ErrorEvent(code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}
