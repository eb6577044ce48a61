package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
	"github.com/pattarin-dev/voicebook/agent/prompt"
	"github.com/pattarin-dev/voicebook/agent/scheduling"
	"github.com/pattarin-dev/voicebook/agent/session"
)

// Narrator turns a finished session into a short prose recap. The narrative
// is cosmetic: when it fails, the structural summary stands on its own.
type Narrator interface {
	Narrate(ctx context.Context, snap session.Snapshot, booked []scheduling.Appointment) (string, error)
}

// Generator freezes an ended session into its persisted summary: the
// caller's final booked appointments from the store of record, collected
// preferences, and a recap of what happened.
type Generator struct {
	store    scheduling.Store
	narrator Narrator
	clock    func() time.Time
}

type Option func(*Generator)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

func NewGenerator(store scheduling.Store, narrator Narrator, opts ...Option) *Generator {
	g := &Generator{
		store:    store,
		narrator: narrator,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Finalize builds and persists the summary for an ended session. The booked
// list comes from the appointment store, not from replaying history, so a
// booking later cancelled in the same conversation does not appear. The
// summary is returned even when persisting it fails.
func (g *Generator) Finalize(ctx context.Context, snap session.Snapshot) (*scheduling.Summary, error) {
	var booked []scheduling.Appointment
	if snap.ContactNumber != "" {
		var err error
		booked, err = g.store.BookedFor(ctx, snap.ContactNumber)
		if err != nil {
			log.Warn().Err(err).Str("session_id", snap.SessionID).Msg("booked lookup failed, summarizing without it")
			booked = nil
		}
	}

	text := structuralText(snap, booked)
	if g.narrator != nil {
		narrative, err := g.narrator.Narrate(ctx, snap, booked)
		if err != nil {
			log.Warn().Err(err).Str("session_id", snap.SessionID).Msg("narrator failed, keeping structural summary")
		} else if trimmed := strings.TrimSpace(narrative); trimmed != "" {
			text = trimmed
		}
	}

	sum := &scheduling.Summary{
		SessionID:          snap.SessionID,
		ContactNumber:      snap.ContactNumber,
		Summary:            text,
		BookedAppointments: booked,
		Preferences:        snap.Preferences,
		CreatedAt:          g.clock().UTC(),
	}
	if err := g.store.SaveSummary(ctx, sum); err != nil {
		return sum, fmt.Errorf("save summary for session %s: %w", snap.SessionID, err)
	}
	return sum, nil
}

// structuralText is the narrator-free recap built purely from the record.
func structuralText(snap session.Snapshot, booked []scheduling.Appointment) string {
	calls := len(snap.History)
	failures := 0
	for _, rec := range snap.History {
		if rec.Error != "" {
			failures++
		}
	}

	var b strings.Builder
	if snap.ContactNumber != "" {
		fmt.Fprintf(&b, "Caller %s", snap.ContactNumber)
	} else {
		b.WriteString("Anonymous caller")
	}
	fmt.Fprintf(&b, " made %d tool calls (%d failed).", calls, failures)

	if len(booked) == 0 {
		b.WriteString(" No appointments are currently booked.")
	} else {
		b.WriteString(" Booked:")
		for i, appt := range booked {
			if i > 0 {
				b.WriteString(";")
			}
			b.WriteString(" ")
			b.WriteString(scheduling.FormatSlot(scheduling.Slot{Date: appt.Date, Time: appt.Time}))
		}
		b.WriteString(".")
	}
	if len(snap.Preferences) > 0 {
		keys := make([]string, 0, len(snap.Preferences))
		for k := range snap.Preferences {
			keys = append(keys, k)
		}
		fmt.Fprintf(&b, " Noted preferences: %s.", strings.Join(keys, ", "))
	}
	return b.String()
}

// LLMNarrator asks a chat model for the recap, via the OpenRouter-backed
// client.
type LLMNarrator struct {
	client  *openaisdk.Client
	model   string
	timeout time.Duration
}

func NewLLMNarrator(client *openaisdk.Client, model string, timeout time.Duration) *LLMNarrator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LLMNarrator{client: client, model: model, timeout: timeout}
}

func (n *LLMNarrator) Narrate(ctx context.Context, snap session.Snapshot, booked []scheduling.Appointment) (string, error) {
	if n.client == nil {
		return "", fmt.Errorf("%w: no llm client configured", contractx.ErrUnavailable)
	}

	payload, err := json.Marshal(map[string]any{
		"contact_number": snap.ContactNumber,
		"preferences":    snap.Preferences,
		"history":        snap.History,
		"booked":         booked,
	})
	if err != nil {
		return "", fmt.Errorf("marshal session for narration: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	resp, err := n.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(n.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(prompt.LoadPromptSet().Narrator),
			openaisdk.UserMessage(string(payload)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("narrate session %s: %w", snap.SessionID, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("narrator returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
