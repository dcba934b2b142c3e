package eventbus

import (
	"testing"

	"github.com/kilianp07/fleetdispatch/core/events"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Publish(events.CommitEvent{Operation: "createTrip"})
	v := <-ch
	ev, ok := v.(events.CommitEvent)
	if !ok || ev.Operation != "createTrip" {
		t.Fatalf("unexpected event %#v", v)
	}
	bus.Unsubscribe(ch)
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewWithBuffer(2)
	slow := bus.Subscribe()
	for i := 0; i < 5; i++ {
		bus.Publish(events.TelemetryEvent{Tick: uint64(i)})
	}
	if got := bus.Dropped(); got != 3 {
		t.Fatalf("expected 3 dropped deliveries got %d", got)
	}
	first := (<-slow).(events.TelemetryEvent)
	if first.Tick != 0 {
		t.Fatalf("expected oldest event first, got tick %d", first.Tick)
	}
}

func TestBusClose(t *testing.T) {
	bus := New()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	bus.Publish(events.CommitEvent{})
	if ch := bus.Subscribe(); ch != nil {
		if _, ok := <-ch; ok {
			t.Fatalf("subscribe after close must return a closed channel")
		}
	}
}

func TestBusUnsubscribeAfterClose(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}
