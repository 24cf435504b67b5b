// Package eventbus is an in-process fanout of notification events.
package eventbus

import (
	"slices"
	"sync"
	"time"
)

// Topics published by the notification core.
const (
	TopicNotifySent       = "notify.sent"
	TopicNotifySuppressed = "notify.suppressed"
	TopicNotifyFailed     = "notify.failed"
	TopicDigestSent       = "digest.sent"
	TopicTickDone         = "scheduler.tick"
)

// Event is a small in-memory signal. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	// Subscribe receives every event, or only the listed topics when any are
	// given. unsubscribe closes ch and may be called more than once.
	Subscribe(buffer int, topics ...string) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

// Publish stamps and publishes an event on b; a nil b is ignored.
func Publish(b Bus, typ string, data any) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: typ, Time: time.Now(), Data: data})
}

type subscriber struct {
	ch     chan Event
	topics []string
}

func (s *subscriber) wants(typ string) bool {
	return len(s.topics) == 0 || slices.Contains(s.topics, typ)
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	next uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int, topics ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer), topics: slices.Clone(topics)}

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			// The write lock waits out in-flight sends.
			b.mu.Lock()
			delete(b.subs, id)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}
