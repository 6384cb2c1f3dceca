package events

import (
	"context"
	"testing"
	"time"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	if err := bus.Publish(context.Background(), TasksUpdated{Source: "approval", TaskID: "t1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for name, ch := range map[string]<-chan TasksUpdated{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.Source != "approval" || ev.TaskID != "t1" {
				t.Fatalf("%s: unexpected event %#v", name, ev)
			}
			if ev.At.IsZero() {
				t.Fatalf("%s: expected timestamp to be set", name)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: event not delivered", name)
		}
	}
}

func TestBusPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = bus.Publish(context.Background(), TasksUpdated{Source: "test"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	if len(ch) != 1 {
		t.Fatalf("expected a single coalesced event, got %d", len(ch))
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}
	if n := bus.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	if err := bus.Publish(context.Background(), TasksUpdated{}); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}
