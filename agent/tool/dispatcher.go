package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
	"github.com/pattarin-dev/voicebook/agent/events"
	"github.com/pattarin-dev/voicebook/agent/scheduling"
	"github.com/pattarin-dev/voicebook/agent/session"
)

// Summarizer freezes a finished session into its persisted summary.
type Summarizer interface {
	Finalize(ctx context.Context, snap session.Snapshot) (*scheduling.Summary, error)
}

// Dispatcher executes tool calls against a session. Per session, calls are
// serialized by the registry lock; the exclusivity of booking itself lives
// in the store. Expected domain failures (slot taken, not found, gating)
// come back inside the ToolResult; the error return is reserved for
// boundary conditions where no history record is written: unknown session,
// unknown tool, or a session that has already ended.
type Dispatcher struct {
	registry   *session.Registry
	store      scheduling.Store
	events     *events.Broadcaster
	summarizer Summarizer
	clock      func() time.Time
}

type Option func(*Dispatcher)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

func NewDispatcher(registry *session.Registry, store scheduling.Store, broadcaster *events.Broadcaster, summarizer Summarizer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:   registry,
		store:      store,
		events:     broadcaster,
		summarizer: summarizer,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch runs one tool call for the session. Every accepted call, failed
// ones included, appends exactly one history record and publishes exactly
// one tool_call event.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, req contractx.ToolRequest) (contractx.ToolResult, error) {
	if !Known(req.Tool) {
		return contractx.ToolResult{}, fmt.Errorf("%w: unknown tool %q", contractx.ErrValidation, req.Tool)
	}

	var (
		rec     contractx.ToolCallRecord
		endSnap *session.Snapshot
	)
	err := d.registry.With(sessionID, func(s *session.Session) error {
		if s.State == session.StateEnded {
			return fmt.Errorf("%w: %s", contractx.ErrSessionEnded, sessionID)
		}
		now := d.clock()
		s.Touch(now)

		payload, execErr := d.execute(ctx, s, req)

		rec = contractx.ToolCallRecord{
			ID:        uuid.NewString(),
			Tool:      req.Tool,
			Args:      req.Args,
			Timestamp: now.UTC(),
		}
		if execErr != nil {
			rec.Error = execErr.Error()
			rec.Kind = contractx.Kind(execErr)
		} else {
			rec.Result = payload
		}
		s.Append(rec)

		if req.Tool == ToolEndConversation && execErr == nil && s.End(now) {
			snap := s.Snapshot()
			endSnap = &snap
		}
		return nil
	})
	if err != nil {
		return contractx.ToolResult{}, err
	}

	d.events.Publish(contractx.Event{Type: contractx.EventToolCall, SessionID: sessionID, Payload: rec})

	res := contractx.ToolResult{Tool: rec.Tool, Result: rec.Result, Error: rec.Error, Kind: rec.Kind}
	if endSnap != nil {
		if sum := d.closeOut(ctx, *endSnap); sum != nil {
			res.Result = sum
		}
	}

	if rec.Error != "" {
		log.Info().
			Str("session_id", sessionID).
			Str("tool", rec.Tool).
			Str("kind", rec.Kind).
			Str("error", rec.Error).
			Msg("tool call failed")
	}
	return res, nil
}

// FinalizeExpired is the reaper hook: summarize a session that was ended by
// idle reclamation and tell its observers the session is gone.
func (d *Dispatcher) FinalizeExpired(ctx context.Context, snap session.Snapshot) {
	d.closeOut(ctx, snap)
}

// closeOut produces and persists the summary for an ended session, then
// notifies observers. Summary failures are logged, never surfaced to the
// caller; the session is gone either way.
func (d *Dispatcher) closeOut(ctx context.Context, snap session.Snapshot) *scheduling.Summary {
	var sum *scheduling.Summary
	if d.summarizer != nil {
		var err error
		sum, err = d.summarizer.Finalize(ctx, snap)
		if err != nil {
			log.Error().Err(err).Str("session_id", snap.SessionID).Msg("summary finalize failed")
		}
	}
	d.events.Publish(contractx.Event{Type: contractx.EventSessionClosed, SessionID: snap.SessionID, Payload: sum})
	return sum
}

func (d *Dispatcher) execute(ctx context.Context, s *session.Session, req contractx.ToolRequest) (any, error) {
	if s.State == session.StateAnonymous && !AllowedAnonymous(req.Tool) {
		return nil, fmt.Errorf("%w: %s requires identification", contractx.ErrNotIdentified, req.Tool)
	}
	if err := ValidateArgs(req.Tool, req.Args); err != nil {
		return nil, err
	}

	switch req.Tool {
	case ToolIdentifyUser:
		return d.identifyUser(s, req.Args)
	case ToolFetchSlots:
		return d.fetchSlots(ctx, s, req.Args)
	case ToolBookAppointment:
		return d.bookAppointment(ctx, s, req.Args)
	case ToolRetrieveAppointments:
		return d.retrieveAppointments(ctx, s)
	case ToolCancelAppointment:
		return d.cancelAppointment(ctx, req.Args)
	case ToolModifyAppointment:
		return d.modifyAppointment(ctx, req.Args)
	case ToolEndConversation:
		return map[string]any{"status": "ending", "reason": stringArg(req.Args, "reason")}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tool %q", contractx.ErrValidation, req.Tool)
	}
}

func (d *Dispatcher) identifyUser(s *session.Session, args map[string]any) (any, error) {
	contact := normalizeContact(stringArg(args, "contact_number"))
	if contact == "" {
		return nil, fmt.Errorf("%w: contact_number is required", contractx.ErrValidation)
	}
	if err := s.Identify(contact); err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(stringArg(args, "name")); name != "" {
		s.SetPreference("name", name)
	}
	return map[string]any{
		"contact_number": contact,
		"state":          string(s.State),
	}, nil
}

func (d *Dispatcher) fetchSlots(ctx context.Context, s *session.Session, args map[string]any) (any, error) {
	slots, err := d.store.FetchAvailable(ctx, stringArg(args, "from"), stringArg(args, "to"))
	if err != nil {
		return nil, err
	}
	if window := stringArg(args, "time_of_day"); window != "" {
		s.SetPreference("time_of_day", window)
		slots = filterWindow(slots, window)
	}
	spoken := make([]string, 0, len(slots))
	for _, slot := range slots {
		spoken = append(spoken, scheduling.FormatSlot(slot))
	}
	return map[string]any{"slots": slots, "spoken": spoken}, nil
}

func (d *Dispatcher) bookAppointment(ctx context.Context, s *session.Session, args map[string]any) (any, error) {
	date, err := scheduling.NormalizeDate(stringArg(args, "date"))
	if err != nil {
		return nil, err
	}
	at, err := scheduling.NormalizeTime(stringArg(args, "time"))
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(stringArg(args, "name"))
	if name == "" {
		name = s.Preferences["name"]
	}
	appt, err := d.store.Book(ctx, date, at, s.ContactNumber, name)
	if err != nil {
		return nil, err
	}
	return appt, nil
}

func (d *Dispatcher) retrieveAppointments(ctx context.Context, s *session.Session) (any, error) {
	appts, err := d.store.ListFor(ctx, s.ContactNumber)
	if err != nil {
		return nil, err
	}
	return map[string]any{"appointments": appts}, nil
}

func (d *Dispatcher) cancelAppointment(ctx context.Context, args map[string]any) (any, error) {
	id := stringArg(args, "appointment_id")
	if err := d.store.Cancel(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"appointment_id": id, "status": scheduling.StatusCancelled}, nil
}

func (d *Dispatcher) modifyAppointment(ctx context.Context, args map[string]any) (any, error) {
	date, err := scheduling.NormalizeDate(stringArg(args, "new_date"))
	if err != nil {
		return nil, err
	}
	at, err := scheduling.NormalizeTime(stringArg(args, "new_time"))
	if err != nil {
		return nil, err
	}
	appt, err := d.store.Modify(ctx, stringArg(args, "appointment_id"), date, at)
	if err != nil {
		return nil, err
	}
	return appt, nil
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, _ := args[key].(string)
	return v
}

func normalizeContact(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// filterWindow keeps slots falling in the spoken part of day: morning is
// before noon, afternoon noon to five, evening after five.
func filterWindow(slots []scheduling.Slot, window string) []scheduling.Slot {
	out := make([]scheduling.Slot, 0, len(slots))
	for _, slot := range slots {
		hh, _, ok := strings.Cut(slot.Time, ":")
		if !ok {
			continue
		}
		hour, err := strconv.Atoi(hh)
		if err != nil {
			continue
		}
		switch window {
		case "morning":
			if hour < 12 {
				out = append(out, slot)
			}
		case "afternoon":
			if hour >= 12 && hour < 17 {
				out = append(out, slot)
			}
		case "evening":
			if hour >= 17 {
				out = append(out, slot)
			}
		}
	}
	return out
}
