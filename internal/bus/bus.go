// Package bus fans chat events out to every connection joined to a group,
// whether that connection lives in this process or another one.
package bus

import (
	"context"
	"log/slog"

	"Seshat/internal/models"
)

var busLogger = slog.With("component", "bus")

// Subscriber is a connection that can receive group events.
// Deliver must not block; it returns false when the event was dropped.
type Subscriber interface {
	ID() string
	Deliver(models.Event) bool
}

// Message is one publish: Event goes to every member of Group except the
// subscriber whose ID equals Exclude.
type Message struct {
	Group   string
	Event   models.Event
	Exclude string
}

type Bus interface {
	Join(ctx context.Context, group string, sub Subscriber) error
	Leave(ctx context.Context, group string, sub Subscriber) error
	Publish(ctx context.Context, msg Message) error
	// Members returns the subscribers of group attached to this process.
	Members(group string) []Subscriber
	// Connections returns the number of local memberships.
	Connections() int
	Close() error
}
