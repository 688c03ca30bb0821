package feed

import (
	"context"
	"testing"
	"time"
)

func TestBrokerFanOut(t *testing.T) {
	broker := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := broker.Subscribe(ctx)
	second := broker.Subscribe(ctx)

	broker.Publish(Event{Kind: EventSaleCreated, SaleID: "sal-1"})

	for i, ch := range []<-chan Event{first, second} {
		select {
		case event := <-ch:
			if event.Kind != EventSaleCreated || event.SaleID != "sal-1" {
				t.Fatalf("subscriber %d got unexpected event %+v", i, event)
			}
			if event.At.IsZero() {
				t.Fatalf("expected publish to stamp the event time")
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out waiting for event", i)
		}
	}
}

func TestBrokerUnsubscribesOnContextCancel(t *testing.T) {
	broker := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch := broker.Subscribe(ctx)
	cancel()

	// The channel closes once the subscription goroutine observes the cancel.
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatalf("expected subscriber channel to close after cancel")
		}
	}
}

func TestBrokerDropsEventsForSlowSubscriber(t *testing.T) {
	broker := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)
	// Fill the buffer and then some; extra events must be dropped, never block.
	for i := 0; i < 40; i++ {
		broker.Publish(Event{Kind: EventSaleUpdated, SaleID: "sal-slow"})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received == 0 || received > 16 {
				t.Fatalf("expected between 1 and 16 buffered events, got %d", received)
			}
			return
		}
	}
}

func TestBrokerLast(t *testing.T) {
	broker := NewBroker()
	if broker.Last() != nil {
		t.Fatalf("expected no last event initially")
	}
	broker.Publish(Event{Kind: EventSaleDeleted, SaleID: "sal-9"})
	last := broker.Last()
	if last == nil || last.SaleID != "sal-9" {
		t.Fatalf("unexpected last event %+v", last)
	}
}
