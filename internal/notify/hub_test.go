package notify

import (
	"testing"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToAllSubscriptions(t *testing.T) {
	hub := NewHub()
	first := hub.Subscribe(1)
	second := hub.Subscribe(1)
	other := hub.Subscribe(2)

	hub.Publish(1, internal.EventSMSReceived, "payload")

	for _, sub := range []*Subscription{first, second} {
		select {
		case event := <-sub.C():
			assert.Equal(t, internal.EventSMSReceived, event.Type)
			assert.Equal(t, "payload", event.Data)
		default:
			t.Fatal("expected an event in the subscription buffer")
		}
	}
	select {
	case <-other.C():
		t.Fatal("event leaked to another user's subscription")
	default:
	}
}

func TestPublishPrunesStalledSubscription(t *testing.T) {
	hub := NewHub()
	stalled := hub.Subscribe(1)
	live := hub.Subscribe(1)

	for i := 0; i < subscriptionBuffer; i++ {
		hub.Publish(1, internal.EventOrderStatusUpdated, i)
		// The live client keeps draining, the stalled one never reads.
		<-live.C()
	}
	require.Equal(t, 2, hub.ConnectionCount(1))

	// The stalled subscription's buffer is full now; the next publish drops it.
	hub.Publish(1, internal.EventOrderStatusUpdated, "last")

	assert.Equal(t, 1, hub.ConnectionCount(1))
	event := <-live.C()
	assert.Equal(t, "last", event.Data)

	// The pruned channel still yields its buffered events, then reports closed.
	buffered := 0
	for range stalled.C() {
		buffered++
	}
	assert.Equal(t, subscriptionBuffer, buffered)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(1)
	require.Equal(t, 1, hub.TotalConnections())

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	assert.Equal(t, 0, hub.TotalConnections())
	_, open := <-sub.C()
	assert.False(t, open)
}

func TestConnectionCounts(t *testing.T) {
	hub := NewHub()
	assert.Equal(t, 0, hub.TotalConnections())

	first := hub.Subscribe(1)
	hub.Subscribe(1)
	hub.Subscribe(2)
	assert.Equal(t, 2, hub.ConnectionCount(1))
	assert.Equal(t, 1, hub.ConnectionCount(2))
	assert.Equal(t, 3, hub.TotalConnections())

	hub.Unsubscribe(first)
	assert.Equal(t, 1, hub.ConnectionCount(1))
	assert.Equal(t, 2, hub.TotalConnections())
}
