package reservation

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a reservation or equipment does not exist,
// or the reservation belongs to someone else.
var ErrNotFound = errors.New("not found")

// User-facing rejection reasons.
const (
	ReasonPastDate             = "cannot reserve in the past"
	ReasonEndBeforeStart       = "end time must be after start time"
	ReasonSlotUnavailable      = "selected time slot is unavailable"
	ReasonClosedDate           = "reservations are closed on this date"
	ReasonPurposeRequired      = "purpose is required"
	ReasonEquipmentUnavailable = "equipment is not available for reservation"
	ReasonOnLoan               = "equipment is on loan on this date"
	ReasonReturnBeforeStart    = "expected return date cannot be before the reservation starts"
	ReasonAlreadyConverted     = "reservation already converted to a loan"
	ReasonConcurrentChange     = "reservation was changed by someone else, reload and try again"
	ReasonNotEnded             = "reservation has not ended yet"
	ReasonOnlyPendingChange    = "only pending reservations can be rescheduled"
)

// ValidationError is a user-correctable rejection of a proposed reservation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// StateError rejects a lifecycle transition that the current status does
// not allow.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return e.Reason }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsState reports whether err is a StateError.
func IsState(err error) bool {
	var s *StateError
	return errors.As(err, &s)
}
