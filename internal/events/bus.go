// Package events implements the in-process notification channel. Lifecycle
// and metrics producers publish fire-and-forget events; observers subscribe
// with a bounded queue. A slow subscriber loses its oldest events rather
// than blocking publishers.
package events

import (
	"sync"
	"time"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/internal/core/logger"
)

// DefaultBuffer is the per-subscriber queue size when none is configured.
const DefaultBuffer = 64

// Subscriber is one registered observer. Receive from C until it is closed
// by Unsubscribe or Bus.Close.
type Subscriber struct {
	C  chan v1.Event
	id int
}

// Bus fan-outs published events to all current subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*Subscriber
	nextID int
	buffer int
	closed bool
	log    *logger.Logger
}

// NewBus creates a Bus with the given per-subscriber buffer size.
func NewBus(buffer int, log *logger.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[int]*Subscriber),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a new observer. Only events published after this call
// are delivered; there is no replay.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		C:  make(chan v1.Event, b.buffer),
		id: b.nextID,
	}
	b.nextID++
	if b.closed {
		close(sub.C)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the observer and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.C)
}

// Publish delivers ev to every subscriber. Never blocks: when a subscriber's
// queue is full its oldest event is dropped to make room.
func (b *Bus) Publish(ev v1.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.C <- ev:
		default:
			// Queue full: drop the oldest, then enqueue. Both selects are
			// non-blocking because only Publish writes while holding the lock.
			select {
			case old := <-sub.C:
				b.log.Debug("event dropped for slow subscriber",
					"type", old.Type,
					"environment", old.EnvironmentID,
				)
			default:
			}
			select {
			case sub.C <- ev:
			default:
			}
		}
	}
}

// Close shuts the bus down and closes every subscriber channel.
// Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.C)
	}
}
