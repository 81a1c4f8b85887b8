package scheduling

import (
	"errors"
	"fmt"
)

// Business outcomes. Callers match them with errors.Is; the transport layer
// maps each to a status code.
var (
	ErrNotFound          = errors.New("not found")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrDuplicateBooking  = errors.New("an active appointment already exists for this patient, doctor and date")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation error")
)

var (
	ErrPatientNotFound      = fmt.Errorf("patient %w", ErrNotFound)
	ErrFamilyMemberNotFound = fmt.Errorf("family member %w", ErrNotFound)
	ErrDoctorBranchNotFound = fmt.Errorf("doctor branch %w", ErrNotFound)
	ErrScheduleNotFound     = fmt.Errorf("weekly schedule %w", ErrNotFound)
	ErrLeaveNotFound        = fmt.Errorf("leave %w", ErrNotFound)
	ErrSlotNotFound         = fmt.Errorf("slot %w", ErrNotFound)
	ErrAppointmentNotFound  = fmt.Errorf("appointment %w", ErrNotFound)
)

// ErrLockContention is returned by a Store when a row lock could not be taken
// in time. The allocator retries the whole transaction on it; it never reaches callers.
var ErrLockContention = errors.New("row lock contention")

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
