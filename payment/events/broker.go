// in-process fan-out of payment state changes to the admin SSE stream

package events

import (
	"sync"
	"time"
)

const (
	QrisCreated = "qris_created"
	QrisPaid    = "qris_paid"
	QrisExpired = "qris_expired"
	QrisDeleted = "qris_deleted"
)

type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Broker delivers every published event to every current subscriber.
// A subscriber that does not keep up loses events instead of blocking
// the publisher.
type Broker struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	bufSize int
}

func NewBroker(bufSize int) *Broker {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Broker{
		subs:    make(map[chan Event]struct{}),
		bufSize: bufSize,
	}
}

func (b *Broker) Subscribe() chan Event {
	ch := make(chan Event, b.bufSize)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes ch and closes it. Calling it twice is harmless.
func (b *Broker) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

func (b *Broker) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
