package eventbus

import (
	"testing"
	"time"
)

type testID uint

func (i testID) String() string { return "test" }
func (i testID) Value() uint    { return uint(i) }

func receive(t *testing.T, s Subscriber) any {
	t.Helper()

	select {
	case data := <-s.C:
		return data

	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	return nil
}

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	first := bus.Subscribe(testID(1))
	both := bus.Subscribe(testID(1), testID(2))

	bus.Publish(testID(1), "connected")
	bus.Publish(testID(2), "error")

	if got := receive(t, first); got != "connected" {
		t.Errorf("first = %v, want connected", got)
	}

	if got := receive(t, both); got != "connected" {
		t.Errorf("both = %v, want connected", got)
	}

	if got := receive(t, both); got != "error" {
		t.Errorf("both = %v, want error", got)
	}

	select {
	case data := <-first.C:
		t.Errorf("received %v from an unsubscribed topic", data)

	default:
	}
}

func TestClose(t *testing.T) {
	bus := New()
	s := bus.Subscribe(testID(1))

	bus.Close()
	bus.Close()
	bus.Publish(testID(1), "dropped")

	select {
	case _, ok := <-s.C:
		if ok {
			t.Error("received an event after close")
		}

	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel was not closed")
	}

	if _, ok := <-bus.Subscribe(testID(1)).C; ok {
		t.Error("subscription after close is open")
	}
}

func TestNilBus(t *testing.T) {
	var bus *Bus

	bus.Publish(testID(1), "dropped")
	bus.Close()

	s := bus.Subscribe(testID(1))
	if _, ok := <-s.C; ok {
		t.Error("nil bus subscription is open")
	}

	s.Unsubscribe()
}
