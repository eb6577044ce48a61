package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
)

// Registry is the in-memory table of live sessions. Each entry carries its
// own mutex so tool dispatch is serialized per session without a global
// lock, and idle reclamation for a session is mutually exclusive with a
// concurrently arriving tool call for that same session.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	clock   func() time.Time
}

type entry struct {
	mu   sync.Mutex
	sess *Session
}

type Option func(*Registry)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Create registers a fresh anonymous session and returns its snapshot.
func (r *Registry) Create() Snapshot {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	sess := newSession(id, r.clock())

	r.mu.Lock()
	r.entries[id] = &entry{sess: sess}
	r.mu.Unlock()

	return sess.Snapshot()
}

// With runs fn while holding the session's lock. All reads and mutations of
// a Session go through here.
func (r *Registry) With(sessionID string, fn func(*Session) error) error {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: session %s", contractx.ErrNotFound, sessionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.sess)
}

// Snapshot returns a detached copy of the session.
func (r *Registry) Snapshot(sessionID string) (Snapshot, error) {
	var snap Snapshot
	err := r.With(sessionID, func(s *Session) error {
		snap = s.Snapshot()
		return nil
	})
	return snap, err
}

// Evict removes a session from the table unconditionally.
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	delete(r.entries, sessionID)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// SweepIdle ends every session idle for longer than idleAfter and returns
// their snapshots so the caller can produce best-effort summaries. Each
// session is ended under its own lock, so a sweep never races a dispatch
// for the same session.
func (r *Registry) SweepIdle(idleAfter time.Duration) []Snapshot {
	now := r.clock()

	r.mu.Lock()
	candidates := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		candidates = append(candidates, e)
	}
	r.mu.Unlock()

	var expired []Snapshot
	for _, e := range candidates {
		e.mu.Lock()
		if e.sess.State != StateEnded && now.Sub(e.sess.LastSeen) > idleAfter {
			if e.sess.End(now) {
				expired = append(expired, e.sess.Snapshot())
			}
		}
		e.mu.Unlock()
	}
	return expired
}

// EvictEnded drops ended sessions that have been quiet for longer than
// retainFor. Ended sessions are kept around so late tool calls still get a
// session-ended rejection and observers can fetch history after the close.
func (r *Registry) EvictEnded(retainFor time.Duration) int {
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, e := range r.entries {
		e.mu.Lock()
		stale := e.sess.State == StateEnded && now.Sub(e.sess.LastSeen) > retainFor
		e.mu.Unlock()
		if stale {
			delete(r.entries, id)
			evicted++
		}
	}
	return evicted
}

// StartReaper reclaims idle sessions on a fixed cadence until ctx is done.
// Expired snapshots are handed to onExpire (the summary path); the entries
// themselves linger in Ended state and are dropped on a later tick.
func (r *Registry) StartReaper(ctx context.Context, interval, idleAfter time.Duration, onExpire func(Snapshot)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, snap := range r.SweepIdle(idleAfter) {
					log.Warn().
						Str("session_id", snap.SessionID).
						Time("last_seen", snap.LastSeen).
						Msg("reclaiming idle session")
					if onExpire != nil {
						onExpire(snap)
					}
				}
				r.EvictEnded(idleAfter)
			}
		}
	}()
}
