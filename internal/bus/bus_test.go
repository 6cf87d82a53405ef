package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Seshat/internal/models"
)

type fakeSub struct {
	id     string
	events chan models.Event
	mu     sync.Mutex
	closed bool
}

func newFakeSub(id string, buffer int) *fakeSub {
	return &fakeSub{id: id, events: make(chan models.Event, buffer)}
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Deliver(ev models.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.events <- ev:
		return true
	default:
		return false
	}
}

func (f *fakeSub) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSub) next(t *testing.T) models.Event {
	t.Helper()
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber %s: no event received", f.id)
		return models.Event{}
	}
}

func (f *fakeSub) assertQuiet(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-f.events:
		t.Fatalf("subscriber %s: unexpected event %+v", f.id, ev)
	case <-time.After(wait):
	}
}

func chat(text string) models.Event {
	return models.Event{Type: models.EventChatMessage, Message: text}
}

func TestLocalBusDeliversToGroupMembersOnly(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	a, c, other := newFakeSub("a", 4), newFakeSub("c", 4), newFakeSub("other", 4)
	require.NoError(t, b.Join(ctx, "chat_42", a))
	require.NoError(t, b.Join(ctx, "chat_42", c))
	require.NoError(t, b.Join(ctx, "chat_7", other))

	require.NoError(t, b.Publish(ctx, Message{Group: "chat_42", Event: chat("hi")}))

	assert.Equal(t, "hi", a.next(t).Message)
	assert.Equal(t, "hi", c.next(t).Message)
	other.assertQuiet(t, 20*time.Millisecond)
	assert.Equal(t, uint64(2), b.Delivered())
}

func TestLocalBusExactlyOncePerMember(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	a := newFakeSub("a", 4)
	require.NoError(t, b.Join(ctx, "g", a))
	require.NoError(t, b.Join(ctx, "g", a))

	require.NoError(t, b.Publish(ctx, Message{Group: "g", Event: chat("once")}))

	assert.Equal(t, "once", a.next(t).Message)
	a.assertQuiet(t, 20*time.Millisecond)
}

func TestLocalBusExclude(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	a, c := newFakeSub("a", 4), newFakeSub("c", 4)
	require.NoError(t, b.Join(ctx, "g", a))
	require.NoError(t, b.Join(ctx, "g", c))

	require.NoError(t, b.Publish(ctx, Message{Group: "g", Event: chat("typing"), Exclude: "a"}))

	assert.Equal(t, "typing", c.next(t).Message)
	a.assertQuiet(t, 20*time.Millisecond)
}

func TestLocalBusDropsForSaturatedOrClosedSubscriber(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	full, closed, healthy := newFakeSub("full", 1), newFakeSub("closed", 4), newFakeSub("healthy", 4)
	closed.close()
	for _, s := range []*fakeSub{full, closed, healthy} {
		require.NoError(t, b.Join(ctx, "g", s))
	}

	require.NoError(t, b.Publish(ctx, Message{Group: "g", Event: chat("1")}))
	require.NoError(t, b.Publish(ctx, Message{Group: "g", Event: chat("2")}))

	assert.Equal(t, "1", full.next(t).Message)
	full.assertQuiet(t, 20*time.Millisecond)
	assert.Equal(t, "1", healthy.next(t).Message)
	assert.Equal(t, "2", healthy.next(t).Message)
	assert.Equal(t, uint64(3), b.Dropped())
}

func TestLocalBusPreservesPublisherOrder(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	a := newFakeSub("a", 100)
	require.NoError(t, b.Join(ctx, "g", a))

	for i := 0; i < 100; i++ {
		require.NoError(t, b.Publish(ctx, Message{Group: "g", Event: models.Event{Type: models.EventChatMessage, MessageID: int64(i)}}))
	}
	for i := 0; i < 100; i++ {
		assert.Equal(t, int64(i), a.next(t).MessageID)
	}
}

func TestLocalBusLeaveStopsDelivery(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	a := newFakeSub("a", 4)
	require.NoError(t, b.Join(ctx, "g", a))
	require.NoError(t, b.Leave(ctx, "g", a))

	require.NoError(t, b.Publish(ctx, Message{Group: "g", Event: chat("gone")}))

	a.assertQuiet(t, 20*time.Millisecond)
	assert.Empty(t, b.Members("g"))
	assert.Zero(t, b.Connections())
}

func TestLocalBusClosedRejectsPublish(t *testing.T) {
	b := NewLocalBus()
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(context.Background(), Message{Group: "g"}), ErrClosed)
	assert.ErrorIs(t, b.Join(context.Background(), "g", newFakeSub("a", 1)), ErrClosed)
}
