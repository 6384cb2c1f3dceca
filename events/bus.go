package events

import (
	"context"
	"sync"
	"time"
)

// TasksUpdated signals that backend tasks changed and boards should reload.
type TasksUpdated struct {
	Source string    `json:"source"`
	TaskID string    `json:"taskId,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher emits TasksUpdated events.
type Publisher interface {
	Publish(ctx context.Context, ev TasksUpdated) error
}

// Bus fans TasksUpdated events out to in-process subscribers. Slow
// subscribers miss events rather than block the publisher; a reload only
// needs one pending signal.
type Bus struct {
	mu   sync.Mutex
	subs map[chan TasksUpdated]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan TasksUpdated]struct{})}
}

// Subscribe returns a channel of events and a function that cancels the
// subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan TasksUpdated, func()) {
	ch := make(chan TasksUpdated, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(_ context.Context, ev TasksUpdated) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
