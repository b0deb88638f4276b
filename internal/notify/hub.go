// Package notify fans order events out to live client streams. Delivery is
// best-effort: there is no durable queue, and a disconnected client simply
// misses events published while it was away.
package notify

import (
	"sync"

	"github.com/adiga-code/SimConnect/internal"
	"go.uber.org/zap"
)

const subscriptionBuffer = 16

type Event struct {
	Type internal.EventType `json:"type"`
	Data any                `json:"data"`
}

type Subscription struct {
	userID internal.UserID
	ch     chan Event
}

// C is the stream of events for this subscription. The channel is closed by
// Unsubscribe or when the hub prunes a subscription that stopped draining.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Hub is an instance-scoped per-user subscription registry. Pass it to
// whoever publishes; there is deliberately no package-level instance.
type Hub struct {
	mu   sync.Mutex
	subs map[internal.UserID][]*Subscription
}

func NewHub() *Hub {
	return &Hub{subs: make(map[internal.UserID][]*Subscription)}
}

func (h *Hub) Subscribe(userID internal.UserID) *Subscription {
	sub := &Subscription{userID: userID, ch: make(chan Event, subscriptionBuffer)}
	h.mu.Lock()
	h.subs[userID] = append(h.subs[userID], sub)
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.remove(sub) {
		close(sub.ch)
	}
}

// Publish fans the event out to every live subscription of the user. A
// subscription whose buffer is full is pruned instead of blocking the
// publisher.
func (h *Hub) Publish(userID internal.UserID, eventType internal.EventType, data any) {
	event := Event{Type: eventType, Data: data}
	h.mu.Lock()
	defer h.mu.Unlock()
	var stalled []*Subscription
	for _, sub := range h.subs[userID] {
		select {
		case sub.ch <- event:
		default:
			stalled = append(stalled, sub)
		}
	}
	for _, sub := range stalled {
		zap.L().Warn("pruning stalled event subscription", zap.Int("user_id", int(userID)))
		if h.remove(sub) {
			close(sub.ch)
		}
	}
}

func (h *Hub) ConnectionCount(userID internal.UserID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

func (h *Hub) TotalConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, subs := range h.subs {
		total += len(subs)
	}
	return total
}

// remove must be called with the lock held. Reports whether the subscription
// was still registered.
func (h *Hub) remove(sub *Subscription) bool {
	subs := h.subs[sub.userID]
	for i, s := range subs {
		if s == sub {
			h.subs[sub.userID] = append(subs[:i], subs[i+1:]...)
			if len(h.subs[sub.userID]) == 0 {
				delete(h.subs, sub.userID)
			}
			return true
		}
	}
	return false
}
