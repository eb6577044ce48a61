package session

import (
	"fmt"
	"time"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
)

type State string

const (
	// StateAnonymous is the initial state: the caller has not been
	// identified, so only identification, slot suggestions, and ending
	// the conversation are permitted.
	StateAnonymous State = "anonymous"
	// StateIdentified is entered once identify_user succeeds.
	StateIdentified State = "identified"
	// StateEnded is terminal; no further tool calls are accepted.
	StateEnded State = "ended"
)

// Session is one live conversation: its identity, append-only tool-call
// history, accumulated preferences, and lifecycle state. A Session is owned
// by the Registry and must only be touched under its per-session lock.
type Session struct {
	SessionID     string
	ContactNumber string
	History       []contractx.ToolCallRecord
	Preferences   map[string]string
	State         State
	CreatedAt     time.Time
	LastSeen      time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		SessionID:   id,
		Preferences: make(map[string]string, 4),
		State:       StateAnonymous,
		CreatedAt:   now.UTC(),
		LastSeen:    now.UTC(),
	}
}

func (s *Session) Touch(now time.Time) {
	s.LastSeen = now.UTC()
}

// Identify binds the caller identity. Re-identifying an identified session
// just replaces the contact number; the agent does this when a caller
// corrects their phone number mid-conversation.
func (s *Session) Identify(contactNumber string) error {
	if s.State == StateEnded {
		return fmt.Errorf("%w: %s", contractx.ErrSessionEnded, s.SessionID)
	}
	s.ContactNumber = contactNumber
	s.State = StateIdentified
	return nil
}

// Append adds one record to the history. Append-only: records are never
// rewritten or dropped, failed attempts included.
func (s *Session) Append(rec contractx.ToolCallRecord) {
	s.History = append(s.History, rec)
}

func (s *Session) SetPreference(key, value string) {
	if s.Preferences == nil {
		s.Preferences = make(map[string]string, 4)
	}
	s.Preferences[key] = value
}

// End transitions to the terminal state. It reports whether this call
// performed the transition, so the summary runs exactly once.
func (s *Session) End(now time.Time) bool {
	if s.State == StateEnded {
		return false
	}
	s.State = StateEnded
	s.Touch(now)
	return true
}

// Snapshot is a detached copy of a session, safe to read after the
// per-session lock is released.
type Snapshot struct {
	SessionID     string                     `json:"session_id"`
	ContactNumber string                     `json:"contact_number,omitempty"`
	History       []contractx.ToolCallRecord `json:"history"`
	Preferences   map[string]string          `json:"preferences"`
	State         State                      `json:"state"`
	CreatedAt     time.Time                  `json:"created_at"`
	LastSeen      time.Time                  `json:"last_seen"`
}

func (s *Session) Snapshot() Snapshot {
	history := make([]contractx.ToolCallRecord, len(s.History))
	copy(history, s.History)
	prefs := make(map[string]string, len(s.Preferences))
	for k, v := range s.Preferences {
		prefs[k] = v
	}
	return Snapshot{
		SessionID:     s.SessionID,
		ContactNumber: s.ContactNumber,
		History:       history,
		Preferences:   prefs,
		State:         s.State,
		CreatedAt:     s.CreatedAt,
		LastSeen:      s.LastSeen,
	}
}
