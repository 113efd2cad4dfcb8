package events

import "testing"

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventTradeOpened, 1)
	defer unsub()

	bus.Publish(EventTradeOpened, "payload")

	select {
	case msg := <-ch:
		if msg != "payload" {
			t.Errorf("got %v", msg)
		}
	default:
		t.Fatal("expected a buffered message")
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventPriceTick, 1)
	defer unsub()

	bus.Publish(EventPriceTick, 1)
	bus.Publish(EventPriceTick, 2) // must not block

	if got := <-ch; got != 1 {
		t.Errorf("got %v, want first message", got)
	}
	select {
	case msg := <-ch:
		t.Errorf("unexpected second message %v", msg)
	default:
	}
	if got := bus.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestDroppedCountsAcrossTopics(t *testing.T) {
	bus := NewBus()
	_, unsubA := bus.Subscribe(EventTradeOpened, 1)
	defer unsubA()
	_, unsubB := bus.Subscribe(EventTradeClosed, 1)
	defer unsubB()

	for i := 0; i < 3; i++ {
		bus.Publish(EventTradeOpened, i)
		bus.Publish(EventTradeClosed, i)
	}
	// Each buffer holds one message; the other two per topic are lost.
	if got := bus.Dropped(); got != 4 {
		t.Errorf("dropped = %d, want 4", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventAlert, 1)
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}

	// Publishing after unsubscribe must be a no-op, not a panic.
	bus.Publish(EventAlert, "late")
}
