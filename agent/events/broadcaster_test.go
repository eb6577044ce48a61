package events

import (
	"testing"
	"time"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()
	first := b.Subscribe("s1")
	second := b.Subscribe("s1")
	other := b.Subscribe("s2")

	b.Publish(contractx.Event{Type: contractx.EventToolCall, SessionID: "s1"})

	for _, sub := range []*Subscriber{first, second} {
		select {
		case ev := <-sub.Events():
			if ev.SessionID != "s1" {
				t.Fatalf("event for session %s", ev.SessionID)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("cross-session delivery: %+v", ev)
	default:
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()
	sub := b.Subscribe("s1")

	// Nobody drains the subscriber; publishing must still return.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultBuffer*3; i++ {
			b.Publish(contractx.Event{Type: contractx.EventToolCall, SessionID: "s1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// Exactly the buffered window survives; the rest were dropped.
	received := 0
	for {
		select {
		case <-sub.Events():
			received++
			continue
		default:
		}
		break
	}
	if received != defaultBuffer {
		t.Fatalf("received %d events, want %d", received, defaultBuffer)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()
	sub := b.Subscribe("s1")
	b.Unsubscribe(sub)

	if _, open := <-sub.Events(); open {
		t.Fatal("channel still open after Unsubscribe")
	}
	if n := b.SubscriberCount("s1"); n != 0 {
		t.Fatalf("SubscriberCount = %d after Unsubscribe", n)
	}

	// Publishing after unsubscribe is a no-op, and double unsubscribe is safe.
	b.Publish(contractx.Event{Type: contractx.EventToolCall, SessionID: "s1"})
	b.Unsubscribe(sub)
}
