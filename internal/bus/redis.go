package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "seshat:group:"
	subscribeTimeout   = 5 * time.Second
)

var errSubscribeTimeout = errors.New("subscription not confirmed")

// envelope is the wire form of a Message on a Redis channel.
type envelope struct {
	Exclude string          `json:"exclude,omitempty"`
	Event   json.RawMessage `json:"event"`
}

// RedisBus spans processes through Redis pub/sub. Each process keeps its own
// registry and holds a channel subscription for every group that has at
// least one local member. Publish only goes to Redis; every process, the
// publisher's included, fans out when the message comes back.
type RedisBus struct {
	client redis.UniversalClient
	pubsub *redis.PubSub
	prefix string
	local  *LocalBus

	// pending holds, per channel, a signal closed when Redis confirms the
	// subscription
	mu      sync.Mutex
	pending map[string]chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func NewRedisBus(ctx context.Context, client redis.UniversalClient, prefix string) *RedisBus {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	b := &RedisBus{
		client: client,
		pubsub: client.Subscribe(ctx),
		prefix: prefix,
		local:   NewLocalBus(),
		pending: make(map[string]chan struct{}),
		done:    make(chan struct{}),
	}
	go b.receive(b.pubsub.ChannelWithSubscriptions(redis.WithChannelSize(1024)))
	busLogger.Info("Redis bus started", "prefix", prefix)
	return b
}

func (b *RedisBus) channel(group string) string {
	return b.prefix + group
}

// Join returns once Redis has confirmed the group's channel subscription, so a
// publish from any process issued after Join reaches sub.
func (b *RedisBus) Join(ctx context.Context, group string, sub Subscriber) error {
	if b.local.closed.Load() {
		return ErrClosed
	}
	channel := b.channel(group)
	_, err := b.local.registry.JoinFunc(group, sub, func() error {
		b.expectSubscription(channel)
		if err := b.pubsub.Subscribe(ctx, channel); err != nil {
			b.confirm(channel)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis bus: subscribe %s: %w", group, err)
	}
	if err := b.awaitSubscription(ctx, channel); err != nil {
		_ = b.Leave(ctx, group, sub)
		return fmt.Errorf("redis bus: subscribe %s: %w", group, err)
	}
	return nil
}

func (b *RedisBus) expectSubscription(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[channel]; !ok {
		b.pending[channel] = make(chan struct{})
	}
}

func (b *RedisBus) confirm(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.pending[channel]; ok {
		close(ch)
		delete(b.pending, channel)
	}
}

// awaitSubscription runs outside the group lock: the receiver takes that
// lock to fan out and must keep draining while a join waits.
func (b *RedisBus) awaitSubscription(ctx context.Context, channel string) error {
	b.mu.Lock()
	ch, ok := b.pending[channel]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	timer := time.NewTimer(subscribeTimeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errSubscribeTimeout
	}
}

func (b *RedisBus) Leave(ctx context.Context, group string, sub Subscriber) error {
	var unsubErr error
	b.local.registry.LeaveFunc(group, sub, func() {
		unsubErr = b.pubsub.Unsubscribe(context.WithoutCancel(ctx), b.channel(group))
	})
	if unsubErr != nil {
		// The member is already gone; a leftover subscription only yields
		// events with no local recipient.
		busLogger.Warn("Redis unsubscribe failed", "group", group, "error", unsubErr)
	}
	return nil
}

func (b *RedisBus) Publish(ctx context.Context, msg Message) error {
	if b.local.closed.Load() {
		return ErrClosed
	}
	event, err := json.Marshal(msg.Event)
	if err != nil {
		return fmt.Errorf("redis bus: marshal event: %w", err)
	}
	payload, err := json.Marshal(envelope{Exclude: msg.Exclude, Event: event})
	if err != nil {
		return fmt.Errorf("redis bus: marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(msg.Group), payload).Err(); err != nil {
		busLogger.Error("Redis publish failed", "group", msg.Group, "payload_size", len(payload), "error", err)
		return fmt.Errorf("redis bus: publish %s: %w", msg.Group, err)
	}
	return nil
}

func (b *RedisBus) receive(ch <-chan any) {
	defer close(b.done)
	for m := range ch {
		switch m := m.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				b.confirm(m.Channel)
			}
		case *redis.Message:
			b.deliver(m)
		}
	}
}

func (b *RedisBus) deliver(m *redis.Message) {
	group, ok := strings.CutPrefix(m.Channel, b.prefix)
	if !ok {
		return
	}
	var env envelope
	if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
		busLogger.Warn("Dropping undecodable bus message", "channel", m.Channel, "error", err)
		return
	}
	msg := Message{Group: group, Exclude: env.Exclude}
	if err := json.Unmarshal(env.Event, &msg.Event); err != nil {
		busLogger.Warn("Dropping undecodable bus event", "channel", m.Channel, "error", err)
		return
	}
	b.local.fanOut(msg)
}

func (b *RedisBus) Members(group string) []Subscriber {
	return b.local.Members(group)
}

func (b *RedisBus) Connections() int {
	return b.local.Connections()
}

func (b *RedisBus) Delivered() uint64 { return b.local.Delivered() }
func (b *RedisBus) Dropped() uint64   { return b.local.Dropped() }

// Close stops receiving. The Redis client itself belongs to the caller.
func (b *RedisBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.local.Close()
		err = b.pubsub.Close()
		select {
		case <-b.done:
		case <-time.After(5 * time.Second):
			busLogger.Warn("Redis bus receiver did not stop in time")
		}
	})
	return err
}
