package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"Seshat/internal/models"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// Error codes carried by error acknowledgments.
const (
	CodeMalformedEvent     = "malformed_event"
	CodeUnknownEvent       = "unknown_event"
	CodeInvalidMessage     = "invalid_message"
	CodePersistenceFailure = "persistence_failure"
	CodeRateLimited        = "rate_limited"
)

// eventPresence is inbound only; it goes out as user_activity.
const eventPresence models.EventType = "presence"

// Presence statuses.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// inbound is the client envelope. The user field is accepted and ignored;
// authorship comes from the authenticated identity.
type inbound struct {
	Type     string          `json:"type"`
	Message  string          `json:"message"`
	User     json.RawMessage `json:"user"`
	IsTyping bool            `json:"is_typing"`
	Status   string          `json:"status"`
}

// command is one of chatCommand, typingCommand or presenceCommand.
type command interface {
	isCommand()
}

type chatCommand struct {
	content string
}

type typingCommand struct {
	typing bool
}

type presenceCommand struct {
	status string
}

func (chatCommand) isCommand()     {}
func (typingCommand) isCommand()   {}
func (presenceCommand) isCommand() {}

func parseCommand(data []byte) (command, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch models.EventType(in.Type) {
	case "", models.EventChatMessage:
		return chatCommand{content: in.Message}, nil
	case models.EventTyping:
		return typingCommand{typing: in.IsTyping}, nil
	case eventPresence:
		status := strings.ToLower(strings.TrimSpace(in.Status))
		switch status {
		case "":
			status = StatusOnline
		case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		default:
			return nil, fmt.Errorf("%w: unknown presence status %q", ErrMalformedEvent, in.Status)
		}
		return presenceCommand{status: status}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Type)
}

// errorCode maps a parse error to the code reported to the client.
func errorCode(err error) string {
	if errors.Is(err, ErrUnknownEvent) {
		return CodeUnknownEvent
	}
	return CodeMalformedEvent
}
