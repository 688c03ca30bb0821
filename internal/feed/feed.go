package feed

import (
	"context"
	"sync"
	"time"
)

// Event describes a sale mutation that listeners may react to, typically by
// refreshing a dashboard or a cached listing.
type Event struct {
	Kind   string    `json:"kind"`
	SaleID string    `json:"sale_id"`
	At     time.Time `json:"at"`
}

const (
	EventSaleCreated = "sale_created"
	EventSaleUpdated = "sale_updated"
	EventSaleDeleted = "sale_deleted"
)

// Broker fans sale events out to subscribers. Slow subscribers drop events
// instead of blocking publishers.
type Broker struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	last *Event
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan Event]struct{})}
}

func (b *Broker) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = &event
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel of events that closes when ctx is done.
func (b *Broker) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch
}

// Last returns the most recent event, if any.
func (b *Broker) Last() *Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return nil
	}
	event := *b.last
	return &event
}
