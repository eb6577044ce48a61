package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
)

// Store is the durable appointment record. Book must be atomic: of any
// number of concurrent callers targeting the same (date, time), exactly one
// succeeds and the rest observe contract.ErrSlotTaken. Implementations
// enforce this in the storage layer, not with a check-then-insert.
type Store interface {
	// Book inserts a booked appointment, or fails with ErrSlotTaken.
	Book(ctx context.Context, date, timeOfDay, contactNumber, name string) (*Appointment, error)
	// Cancel marks an appointment cancelled. Cancelling an already
	// cancelled id succeeds again: the end state is unchanged.
	Cancel(ctx context.Context, id string) error
	// Modify is cancel-then-book under the same exclusivity rule. When the
	// rebook loses the new slot, the original stays cancelled; there is no
	// rollback and the caller must book a different slot.
	Modify(ctx context.Context, id, newDate, newTime string) (*Appointment, error)
	// ListFor returns all appointments for a contact, ordered by date, time.
	ListFor(ctx context.Context, contactNumber string) ([]Appointment, error)
	// BookedFor returns only the currently booked appointments for a contact.
	BookedFor(ctx context.Context, contactNumber string) ([]Appointment, error)
	// FetchAvailable suggests open slots in [from, to]. Advisory only.
	FetchAvailable(ctx context.Context, from, to string) ([]Slot, error)
	// SaveSummary persists a session summary once; later writes for the
	// same session id are no-ops.
	SaveSummary(ctx context.Context, sum *Summary) error
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Candidate times offered per day when suggesting slots.
var suggestedTimes = []string{"09:00", "10:30", "13:00", "14:30", "16:00"}

const maxSuggestionDays = 14

// NormalizeDate parses a handful of common spellings and returns the
// canonical "2006-01-02" form.
func NormalizeDate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: date is required", contractx.ErrValidation)
	}
	for _, layout := range []string{dateLayout, "2006/01/02", "Jan 2 2006", "January 2 2006", "Jan 2, 2006", "January 2, 2006"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: cannot understand date %q", contractx.ErrValidation, raw)
}

// NormalizeTime parses 24h and 12h clock spellings and returns "15:04".
func NormalizeTime(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: time is required", contractx.ErrValidation)
	}
	for _, layout := range []string{timeLayout, "15:04:05", "3:04 PM", "3:04PM", "3 PM", "3PM"} {
		if t, err := time.Parse(layout, strings.ToUpper(trimmed)); err == nil {
			return t.Format(timeLayout), nil
		}
	}
	return "", fmt.Errorf("%w: cannot understand time %q", contractx.ErrValidation, raw)
}

// FormatSlot renders a slot the way the voice layer speaks it,
// e.g. "Tue Feb 10 at 9:00 AM".
func FormatSlot(s Slot) string {
	t, err := time.Parse(dateLayout+" "+timeLayout, s.Date+" "+s.Time)
	if err != nil {
		return s.Date + " " + s.Time
	}
	hour := t.Format("3:04 PM")
	return t.Format("Mon Jan 2") + " at " + hour
}

// suggestionRange resolves the requested range, defaulting to the next
// seven days and clamping to maxSuggestionDays.
func suggestionRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	start := now.Truncate(24 * time.Hour)
	if strings.TrimSpace(from) != "" {
		normalized, err := NormalizeDate(from)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start, _ = time.Parse(dateLayout, normalized)
	}
	end := start.AddDate(0, 0, 7)
	if strings.TrimSpace(to) != "" {
		normalized, err := NormalizeDate(to)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, _ = time.Parse(dateLayout, normalized)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range end %s precedes start %s", contractx.ErrValidation, end.Format(dateLayout), start.Format(dateLayout))
	}
	if limit := start.AddDate(0, 0, maxSuggestionDays); end.After(limit) {
		end = limit
	}
	return start, end, nil
}

// openSlots walks the range day by day and keeps the suggested times that
// are not already booked.
func openSlots(start, end time.Time, booked map[string]struct{}) []Slot {
	slots := make([]Slot, 0, len(suggestedTimes))
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format(dateLayout)
		for _, at := range suggestedTimes {
			if _, taken := booked[date+" "+at]; taken {
				continue
			}
			slots = append(slots, Slot{Date: date, Time: at})
		}
	}
	return slots
}
