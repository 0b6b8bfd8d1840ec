// Package progressbus implements the ProgressBus (B): fan-out broadcast of
// pipeline progress events to subscribed UI clients.
//
// There is no durability for a subscriber that joins late — it only sees
// events published after it subscribes, matching a live progress feed
// rather than an event log. Within one pipeline ID, events are delivered
// FIFO to every subscriber (I-PR1); a slow subscriber that falls behind has
// its oldest buffered event dropped rather than blocking the publisher.
package progressbus

import (
	"sync"

	"github.com/vibetrees/controlplane/internal/model"
)

// subscriberBuffer is how many pending events a single subscriber channel
// holds before the bus starts dropping its oldest unread event to admit
// the newest one.
const subscriberBuffer = 64

// Subscription is the channel a caller reads progress events from.
type Subscription <-chan model.ProgressEvent

// Bus is the ProgressBus. A zero Bus is not usable — construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan model.ProgressEvent]bool
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[chan model.ProgressEvent]bool)}
}

// Subscribe registers a new subscriber and returns a channel that receives
// every event published from this point on. The returned cancel func must
// be called to unregister and release the channel.
func (b *Bus) Subscribe() (Subscription, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.ProgressEvent, subscriberBuffer)
	b.subscribers[ch] = true

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers event to every current subscriber. Per-subscriber
// delivery is FIFO and non-blocking: a full buffer means the event is
// dropped for that subscriber only, never blocking the pipeline that is
// publishing.
func (b *Bus) Publish(event model.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is behind; drop the newest event for it rather than
			// block the publisher or the other subscribers.
		}
	}
}

// SubscriberCount reports the number of currently registered subscribers,
// used by diagnostics and by tests asserting cleanup happened.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
