package status

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(OK, "stream active")

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Severity != OK || ev.Message != "stream active" {
				t.Fatalf("subscriber %d got %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < subscriberQueueSize+10; i++ {
		b.Publish(Info, "event")
	}
	// The final publish must have landed despite the full queue.
	b.Publish(Error, "last")

	var last Event
	for {
		select {
		case ev := <-ch:
			last = ev
		default:
			if last.Severity != Error || last.Message != "last" {
				t.Fatalf("newest event lost, tail = %+v", last)
			}
			return
		}
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()

	if _, open := <-ch; open {
		t.Fatal("channel still open after cancel")
	}

	// Publishing after cancel must not panic.
	b.Publish(Info, "after cancel")
}

func TestCloseIsIdempotent(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe()
	b.Close()
	b.Close()

	if _, open := <-ch; open {
		t.Fatal("channel still open after bus close")
	}

	if sub, cancel := b.Subscribe(); sub == nil {
		t.Fatal("Subscribe on closed bus returned nil channel")
	} else {
		cancel()
	}
}
