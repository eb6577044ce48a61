package scheduling

import (
	"time"

	"github.com/uptrace/bun"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
)

// Appointment is one booked (or cancelled) calendar slot. Date and Time are
// kept as opaque strings ("2006-01-02" / "15:04"); the pair is the slot key
// and at most one booked row may hold it at any instant.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:a" json:"-"`

	ID            string    `bun:"id,pk" json:"id"`
	ContactNumber string    `bun:"contact_number,notnull" json:"contact_number"`
	Name          string    `bun:"name,notnull" json:"name"`
	Date          string    `bun:"date,notnull" json:"date"`
	Time          string    `bun:"time,notnull" json:"time"`
	Status        Status    `bun:"status,notnull" json:"status"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:now()" json:"created_at"`
}

// Summary is the immutable post-session record. One row per session,
// written exactly once when the session ends.
type Summary struct {
	bun.BaseModel `bun:"table:summaries,alias:s" json:"-"`

	SessionID          string            `bun:"session_id,pk" json:"session_id"`
	ContactNumber      string            `bun:"contact_number,notnull,default:''" json:"contact_number,omitempty"`
	Summary            string            `bun:"summary,notnull,default:''" json:"summary"`
	BookedAppointments []Appointment     `bun:"booked_appointments,type:jsonb" json:"booked_appointments"`
	Preferences        map[string]string `bun:"preferences,type:jsonb" json:"preferences"`
	CreatedAt          time.Time         `bun:"created_at,nullzero,notnull,default:now()" json:"created_at"`
}

// Slot is one bookable (date, time) opportunity. Suggestions built from
// slots are advisory; a concurrent booking can still win the slot.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}
