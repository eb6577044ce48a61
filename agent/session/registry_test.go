package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
)

func TestCreateStartsAnonymous(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	snap := r.Create()
	if snap.SessionID == "" {
		t.Fatal("expected non-empty session id")
	}
	if snap.State != StateAnonymous {
		t.Fatalf("state = %s, want %s", snap.State, StateAnonymous)
	}
	if snap.ContactNumber != "" {
		t.Fatalf("new session has contact %q", snap.ContactNumber)
	}
}

func TestWithUnknownSession(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	err := r.With("missing", func(*Session) error { return nil })
	if !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("With() error = %v, want ErrNotFound", err)
	}
}

func TestIdentifyTransitions(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	snap := r.Create()

	err := r.With(snap.SessionID, func(s *Session) error {
		return s.Identify("+15551234567")
	})
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}

	got, err := r.Snapshot(snap.SessionID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got.State != StateIdentified || got.ContactNumber != "+15551234567" {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestEndIsExactlyOnce(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	snap := r.Create()

	transitions := 0
	for i := 0; i < 3; i++ {
		_ = r.With(snap.SessionID, func(s *Session) error {
			if s.End(time.Now()) {
				transitions++
			}
			return nil
		})
	}
	if transitions != 1 {
		t.Fatalf("End() transitioned %d times, want 1", transitions)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	created := r.Create()
	_ = r.With(created.SessionID, func(s *Session) error {
		s.Append(contractx.ToolCallRecord{ID: "r1", Tool: "fetch_slots"})
		s.SetPreference("time_of_day", "morning")
		return nil
	})

	snap, err := r.Snapshot(created.SessionID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	snap.History[0].Tool = "mutated"
	snap.Preferences["time_of_day"] = "evening"

	fresh, _ := r.Snapshot(created.SessionID)
	if fresh.History[0].Tool != "fetch_slots" {
		t.Fatal("snapshot shares history backing array with session")
	}
	if fresh.Preferences["time_of_day"] != "morning" {
		t.Fatal("snapshot shares preference map with session")
	}
}

func TestSweepIdleEndsStaleSessions(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	clock := func() time.Time { return now }
	r := NewRegistry(WithClock(clock))

	stale := r.Create()
	fresh := r.Create()

	now = now.Add(10 * time.Minute)
	_ = r.With(fresh.SessionID, func(s *Session) error {
		s.Touch(now)
		return nil
	})

	expired := r.SweepIdle(5 * time.Minute)
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired session, got %d", len(expired))
	}
	if expired[0].SessionID != stale.SessionID {
		t.Fatalf("expired %s, want %s", expired[0].SessionID, stale.SessionID)
	}

	got, _ := r.Snapshot(stale.SessionID)
	if got.State != StateEnded {
		t.Fatalf("stale session state = %s, want %s", got.State, StateEnded)
	}

	// A second sweep finds nothing: End already happened.
	if again := r.SweepIdle(5 * time.Minute); len(again) != 0 {
		t.Fatalf("second sweep expired %d sessions", len(again))
	}
}

func TestSweepDoesNotRaceDispatch(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	r := NewRegistry(WithClock(clock))
	snap := r.Create()

	clockMu.Lock()
	now = now.Add(time.Hour)
	clockMu.Unlock()

	// Concurrent sweeps and appends on the same session: history appends
	// must either land before the session ends or be rejected by state
	// gating at the dispatcher; here we just assert no lost appends when
	// the session survives.
	var wg sync.WaitGroup
	appends := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.With(snap.SessionID, func(s *Session) error {
				if s.State != StateEnded {
					s.Append(contractx.ToolCallRecord{Tool: "fetch_slots"})
					appends++
				}
				return nil
			})
		}()
		if i%10 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.SweepIdle(30 * time.Minute)
			}()
		}
	}
	wg.Wait()

	got, err := r.Snapshot(snap.SessionID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(got.History) != appends {
		t.Fatalf("history length %d, appended %d", len(got.History), appends)
	}
}

func TestEvictEndedKeepsRecentlyClosed(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	clock := func() time.Time { return now }
	r := NewRegistry(WithClock(clock))

	closed := r.Create()
	open := r.Create()
	_ = r.With(closed.SessionID, func(s *Session) error {
		s.End(now)
		return nil
	})

	// Freshly ended sessions stay resident for late callers.
	if n := r.EvictEnded(5 * time.Minute); n != 0 {
		t.Fatalf("EvictEnded() = %d, want 0", n)
	}

	now = now.Add(10 * time.Minute)
	if n := r.EvictEnded(5 * time.Minute); n != 1 {
		t.Fatalf("EvictEnded() = %d, want 1", n)
	}
	if _, err := r.Snapshot(closed.SessionID); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("Snapshot(closed) error = %v, want ErrNotFound", err)
	}

	// Live sessions are never touched, stale or not.
	if _, err := r.Snapshot(open.SessionID); err != nil {
		t.Fatalf("Snapshot(open) error = %v", err)
	}
}

func TestEvictRemovesSession(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	snap := r.Create()
	if r.Len() != 1 {
		t.Fatalf("Len() = %d", r.Len())
	}
	r.Evict(snap.SessionID)
	if r.Len() != 0 {
		t.Fatalf("Len() after evict = %d", r.Len())
	}
	if _, err := r.Snapshot(snap.SessionID); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("Snapshot() error = %v, want ErrNotFound", err)
	}
}
