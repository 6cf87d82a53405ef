package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"Seshat/internal/registry"
)

var ErrClosed = errors.New("bus: closed")

// LocalBus delivers within one process. Publish fans out in the caller's
// goroutine, so events from one publisher to one group keep their order.
type LocalBus struct {
	registry  *registry.Registry[Subscriber]
	delivered atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{registry: registry.New[Subscriber]()}
}

func (b *LocalBus) Join(_ context.Context, group string, sub Subscriber) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.registry.Join(group, sub)
	return nil
}

func (b *LocalBus) Leave(_ context.Context, group string, sub Subscriber) error {
	b.registry.Leave(group, sub)
	return nil
}

func (b *LocalBus) Publish(_ context.Context, msg Message) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.fanOut(msg)
	return nil
}

// fanOut hands the event to each local member and returns how many accepted it.
func (b *LocalBus) fanOut(msg Message) int {
	n := 0
	for _, sub := range b.registry.Members(msg.Group) {
		if msg.Exclude != "" && sub.ID() == msg.Exclude {
			continue
		}
		if sub.Deliver(msg.Event) {
			n++
			b.delivered.Add(1)
			continue
		}
		b.dropped.Add(1)
		busLogger.Debug("Event dropped for subscriber", "group", msg.Group, "conn", sub.ID(), "type", msg.Event.Type)
	}
	return n
}

func (b *LocalBus) Members(group string) []Subscriber {
	return b.registry.Members(group)
}

func (b *LocalBus) Connections() int {
	return b.registry.Count()
}

func (b *LocalBus) Delivered() uint64 { return b.delivered.Load() }
func (b *LocalBus) Dropped() uint64   { return b.dropped.Load() }

func (b *LocalBus) Close() error {
	b.closed.Store(true)
	return nil
}
