package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Bus is an in-process fan-out of the event feed. Subscribers get buffered
// channels; a subscriber that falls behind loses events rather than blocking
// the publisher.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	log    logrus.FieldLogger
}

func NewBus(log logrus.FieldLogger) *Bus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bus{subs: make(map[int]chan Event), log: log}
}

// Publish implements Sink. It never blocks.
func (b *Bus) Publish(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.log.WithFields(logrus.Fields{"subscriber": id, "event": e.Type}).
				Warn("event bus: subscriber buffer full, dropping event")
		}
	}
	return nil
}

// Subscribe registers a new subscriber with the given buffer size (minimum 1).
// The returned cancel func removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
