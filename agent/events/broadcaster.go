package events

import (
	"sync"

	"github.com/rs/zerolog/log"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
)

const defaultBuffer = 32

// Broadcaster fans tool-call events out to the observers of a session.
// Delivery is at-most-once per subscriber: publishing never blocks the
// dispatch path, and a subscriber that cannot keep up loses events. A
// reconnecting observer re-fetches the session history instead of
// expecting replay.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[*Subscriber]struct{}
}

// Subscriber receives the event stream of one session.
type Subscriber struct {
	sessionID string
	ch        chan contractx.Event
	closed    bool
	dropped   int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registers an observer for a session's events.
func (b *Broadcaster) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		sessionID: sessionID,
		ch:        make(chan contractx.Event, defaultBuffer),
	}

	b.mu.Lock()
	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		b.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe detaches the observer and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	if set, ok := b.subs[sub.sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.sessionID)
		}
	}
	close(sub.ch)
}

// Publish delivers one event to every current subscriber of the session.
// Slow subscribers have the event dropped rather than stalling dispatch.
func (b *Broadcaster) Publish(ev contractx.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[ev.SessionID] {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			log.Debug().
				Str("session_id", ev.SessionID).
				Str("event_type", ev.Type).
				Int("dropped_total", sub.dropped).
				Msg("subscriber backlog full, dropping event")
		}
	}
}

// SubscriberCount reports the live observers of a session.
func (b *Broadcaster) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

// Events is the receive side of the subscription; closed on Unsubscribe.
func (s *Subscriber) Events() <-chan contractx.Event {
	return s.ch
}
