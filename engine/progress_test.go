package engine

import (
	"testing"
	"time"
)

func TestProgressBusDeliversToSubscribers(t *testing.T) {
	bus := NewProgressBus(4)
	ch, id := bus.Subscribe()
	defer bus.Unsubscribe(id)

	bus.Publish(ProgressEvent{Kind: EventStateChanged, State: StateRacing})

	select {
	case ev := <-ch:
		if ev.Kind != EventStateChanged || ev.State != StateRacing {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event, got none")
	}
}

func TestProgressBusDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewProgressBus(1)
	_, id := bus.Subscribe()
	defer bus.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(ProgressEvent{Kind: EventTransferProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}

func TestProgressBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewProgressBus(4)
	ch, id := bus.Subscribe()
	bus.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}

func TestProgressTrackerPercentAndETA(t *testing.T) {
	tr := NewProgressTracker(1000)
	if got := tr.Percent(); got != 0 {
		t.Fatalf("expected 0%% at start, got %v", got)
	}

	tr.Update(500)
	if got := tr.Percent(); got != 50 {
		t.Fatalf("expected 50%%, got %v", got)
	}

	tr.Update(1000)
	if got := tr.Percent(); got != 100 {
		t.Fatalf("expected 100%%, got %v", got)
	}
	if got := tr.ETASeconds(); got != 0 {
		t.Fatalf("expected 0 ETA once fully transferred, got %v", got)
	}
}

func TestProgressTrackerZeroTotalIsVacuouslyComplete(t *testing.T) {
	tr := NewProgressTracker(0)
	if got := tr.Percent(); got != 100 {
		t.Fatalf("expected 100%% for a zero-byte transfer, got %v", got)
	}
}

func TestProgressTrackerAverageSpeedNonNegative(t *testing.T) {
	tr := NewProgressTracker(100)
	tr.Update(100)
	if got := tr.AverageSpeed(); got < 0 {
		t.Fatalf("expected non-negative average speed, got %v", got)
	}
}
