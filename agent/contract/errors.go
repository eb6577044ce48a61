package contract

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrSlotTaken     = errors.New("slot is already booked")
	ErrNotFound      = errors.New("not found")
	ErrNotIdentified = errors.New("caller is not identified")
	ErrSessionEnded  = errors.New("session has ended")
	ErrUnavailable   = errors.New("collaborator unavailable")
)

// Error kinds as they appear on the wire and in session history.
const (
	KindValidation    = "validation"
	KindSlotTaken     = "slot_taken"
	KindNotFound      = "not_found"
	KindNotIdentified = "not_identified"
	KindSessionEnded  = "session_ended"
	KindUnavailable   = "unavailable"
)

// Kind maps an error to its wire tag. Conflict and not-found outcomes are
// expected results the conversational agent reacts to, so they travel as
// tagged results rather than opaque failures.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSlotTaken):
		return KindSlotTaken
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotIdentified):
		return KindNotIdentified
	case errors.Is(err, ErrSessionEnded):
		return KindSessionEnded
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindUnavailable
	}
}
