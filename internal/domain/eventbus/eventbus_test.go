package eventbus

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncEventBusDelivers(t *testing.T) {
	bus := NewAsyncEventBus(2)
	bus.Start()
	t.Cleanup(bus.Stop)

	var received atomic.Int32
	if err := bus.SubscribeAsync("test:event", func(n int) {
		received.Add(int32(n))
	}); err != nil {
		t.Fatalf("SubscribeAsync returned error: %v", err)
	}

	bus.PublishAsync("test:event", 1)
	bus.PublishAsync("test:event", 2)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if received.Load() == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected sum 3, got %d", received.Load())
}

func TestAsyncEventBusSurvivesPanickingSubscriber(t *testing.T) {
	bus := NewAsyncEventBus(1)
	bus.Start()
	t.Cleanup(bus.Stop)

	var delivered atomic.Bool
	bus.SubscribeAsync("bad:event", func() {
		panic("subscriber bug")
	})
	bus.SubscribeAsync("good:event", func() {
		delivered.Store(true)
	})

	bus.PublishAsync("bad:event")
	bus.PublishAsync("good:event")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if delivered.Load() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("worker died after subscriber panic")
}

func TestHasCallback(t *testing.T) {
	bus := NewAsyncEventBus(1)
	if bus.HasCallback("nope") {
		t.Fatal("expected no callback")
	}
	bus.Subscribe("yep", func() {})
	if !bus.HasCallback("yep") {
		t.Fatal("expected callback after subscribe")
	}
}
