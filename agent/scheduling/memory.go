package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
)

// MemoryStore keeps appointments in process memory. It honors the same
// contract as PostgresStore, with slot exclusivity enforced under a single
// mutex, and backs tests and credential-less development runs.
type MemoryStore struct {
	mu           sync.Mutex
	appointments map[string]*Appointment
	bookedSlots  map[string]string // "date time" -> appointment id
	summaries    map[string]*Summary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appointments: make(map[string]*Appointment),
		bookedSlots:  make(map[string]string),
		summaries:    make(map[string]*Summary),
	}
}

func slotKey(date, timeOfDay string) string {
	return date + " " + timeOfDay
}

func (s *MemoryStore) Book(_ context.Context, date, timeOfDay, contactNumber, name string) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := slotKey(date, timeOfDay)
	if _, taken := s.bookedSlots[key]; taken {
		return nil, fmt.Errorf("%w: %s at %s", contractx.ErrSlotTaken, date, timeOfDay)
	}

	appt := &Appointment{
		ID:            uuid.NewString(),
		ContactNumber: contactNumber,
		Name:          name,
		Date:          date,
		Time:          timeOfDay,
		Status:        StatusBooked,
		CreatedAt:     time.Now().UTC(),
	}
	s.appointments[appt.ID] = appt
	s.bookedSlots[key] = appt.ID
	cloned := *appt
	return &cloned, nil
}

func (s *MemoryStore) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(id)
}

func (s *MemoryStore) cancelLocked(id string) error {
	appt, ok := s.appointments[id]
	if !ok {
		return fmt.Errorf("%w: appointment %s", contractx.ErrNotFound, id)
	}
	if appt.Status == StatusBooked {
		delete(s.bookedSlots, slotKey(appt.Date, appt.Time))
	}
	appt.Status = StatusCancelled
	return nil
}

func (s *MemoryStore) Modify(_ context.Context, id, newDate, newTime string) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.appointments[id]
	if !ok {
		return nil, fmt.Errorf("%w: appointment %s", contractx.ErrNotFound, id)
	}
	contact, name := original.ContactNumber, original.Name

	if err := s.cancelLocked(id); err != nil {
		return nil, err
	}

	key := slotKey(newDate, newTime)
	if _, taken := s.bookedSlots[key]; taken {
		// No rollback: the original stays cancelled and the caller
		// must book a different slot.
		return nil, fmt.Errorf("%w: %s at %s", contractx.ErrSlotTaken, newDate, newTime)
	}

	appt := &Appointment{
		ID:            uuid.NewString(),
		ContactNumber: contact,
		Name:          name,
		Date:          newDate,
		Time:          newTime,
		Status:        StatusBooked,
		CreatedAt:     time.Now().UTC(),
	}
	s.appointments[appt.ID] = appt
	s.bookedSlots[key] = appt.ID
	cloned := *appt
	return &cloned, nil
}

func (s *MemoryStore) ListFor(_ context.Context, contactNumber string) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(contactNumber, false), nil
}

func (s *MemoryStore) BookedFor(_ context.Context, contactNumber string) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(contactNumber, true), nil
}

func (s *MemoryStore) listLocked(contactNumber string, bookedOnly bool) []Appointment {
	appts := make([]Appointment, 0, 4)
	for _, a := range s.appointments {
		if a.ContactNumber != contactNumber {
			continue
		}
		if bookedOnly && a.Status != StatusBooked {
			continue
		}
		appts = append(appts, *a)
	}
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].Time < appts[j].Time
	})
	return appts
}

func (s *MemoryStore) FetchAvailable(_ context.Context, from, to string) ([]Slot, error) {
	start, end, err := suggestionRange(from, to, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	booked := make(map[string]struct{}, len(s.bookedSlots))
	for key := range s.bookedSlots {
		booked[key] = struct{}{}
	}
	s.mu.Unlock()

	return openSlots(start, end, booked), nil
}

func (s *MemoryStore) SaveSummary(_ context.Context, sum *Summary) error {
	if sum == nil || strings.TrimSpace(sum.SessionID) == "" {
		return fmt.Errorf("%w: summary session id is required", contractx.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.summaries[sum.SessionID]; exists {
		return nil
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now().UTC()
	}
	cloned := *sum
	s.summaries[sum.SessionID] = &cloned
	return nil
}

// SummaryFor returns the stored summary for a session, if any.
func (s *MemoryStore) SummaryFor(sessionID string) (*Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[sessionID]
	if !ok {
		return nil, false
	}
	cloned := *sum
	return &cloned, true
}
