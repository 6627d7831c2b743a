// Package bus fans domain events out to attached subscribers.
// NewMessage events travel on a separate, larger channel so a chatty
// session cannot crowd out state changes.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/dsaito/agentboard/internal/model"
)

const (
	broadcastBuffer = 256
	messageBuffer   = 1024
)

// Subscriber receives the two event streams for one attached
// consumer. Channels are closed by Unsubscribe.
type Subscriber struct {
	// Broadcast carries every event except NewMessage.
	Broadcast chan model.Event
	// Messages carries only NewMessage events; the consumer filters
	// by its own session subscriptions.
	Messages chan model.Event
}

// Bus is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	lagged atomic.Uint64
}

func New() *Bus {
	return &Bus{subs: make(map[*Subscriber]struct{})}
}

// Subscribe attaches a new consumer.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{
		Broadcast: make(chan model.Event, broadcastBuffer),
		Messages:  make(chan model.Event, messageBuffer),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe detaches sub and closes its channels. Safe to call
// once per subscriber.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok {
		close(sub.Broadcast)
		close(sub.Messages)
	}
}

// Publish routes ev to every subscriber. Sends never block: a
// subscriber that cannot keep up misses events, and the lag counter
// records each drop.
func (b *Bus) Publish(ev model.Event) {
	isMessage := ev.EventType() == model.EventNewMessage

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		ch := sub.Broadcast
		if isMessage {
			ch = sub.Messages
		}
		select {
		case ch <- ev:
		default:
			b.lagged.Add(1)
		}
	}
}

// Lagged reports the total number of events dropped because a
// subscriber's channel was full.
func (b *Bus) Lagged() uint64 {
	return b.lagged.Load()
}
