package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveOne(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubDeliversInPublicationOrder(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()

	sub := hub.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		hub.Publish(Event{Kind: KindSessionUpdated, SessionID: fmt.Sprintf("sess-%d", i)})
	}
	for i := 0; i < 5; i++ {
		ev := receiveOne(t, sub)
		assert.Equal(t, fmt.Sprintf("sess-%d", i), ev.SessionID)
		assert.False(t, ev.At.IsZero(), "publish stamps a zero At")
	}
}

func TestHubKindFilter(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()

	sub := hub.Subscribe(KindSessionEscalated)
	defer sub.Close()

	hub.Publish(Event{Kind: KindSessionCreated, SessionID: "sess-1"})
	hub.Publish(Event{Kind: KindSessionEscalated, SessionID: "sess-1"})

	ev := receiveOne(t, sub)
	assert.Equal(t, KindSessionEscalated, ev.Kind)
	select {
	case extra := <-sub.Events():
		t.Fatalf("unexpected extra event: %v", extra.Kind)
	default:
	}
}

func TestHubDropsOldestWhenSubscriberLags(t *testing.T) {
	hub := NewHub(2)
	defer hub.Close()

	sub := hub.Subscribe()
	defer sub.Close()

	// Nobody drains; the third publish evicts the first.
	for i := 0; i < 3; i++ {
		hub.Publish(Event{Kind: KindSessionUpdated, SessionID: fmt.Sprintf("sess-%d", i)})
	}

	first := receiveOne(t, sub)
	assert.Equal(t, "sess-1", first.SessionID)
	second := receiveOne(t, sub)
	assert.Equal(t, "sess-2", second.SessionID)
}

func TestHubCloseClosesSubscribers(t *testing.T) {
	hub := NewHub(0)
	sub := hub.Subscribe()

	hub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.SubscriberCount())

	// Publishing after close is a silent no-op.
	hub.Publish(Event{Kind: KindSessionCreated})

	// Subscribing after close yields a closed channel.
	late := hub.Subscribe()
	_, ok = <-late.Events()
	assert.False(t, ok)
}

func TestSubscriptionCloseUnregisters(t *testing.T) {
	hub := NewHub(0)
	defer hub.Close()

	sub := hub.Subscribe()
	require.Equal(t, 1, hub.SubscriberCount())

	sub.Close()
	sub.Close() // idempotent
	assert.Equal(t, 0, hub.SubscriberCount())
}
