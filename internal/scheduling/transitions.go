package scheduling

import (
	"time"
)

// Every switch below lists all statuses explicitly. An unknown value means a
// row was written by something outside this package and is refused.

// reserve takes one unit of capacity and returns the 1-based serial of the
// booking it represents.
func (s *Slot) reserve() (int, error) {
	switch s.Status {
	case SlotAvailable, SlotReleased:
	case SlotPending, SlotBooked, SlotBlocked, SlotCancelled:
		return 0, ErrSlotUnavailable
	default:
		return 0, validationf("unknown slot status %q", s.Status)
	}
	if s.TotalSlots <= 0 {
		return 0, validationf("slot %s has no capacity", s.ID)
	}
	if s.AvailableSlots <= 0 {
		return 0, ErrSlotUnavailable
	}

	s.AvailableSlots--
	if s.AvailableSlots == 0 {
		s.Status = SlotBooked
	}
	return s.TotalSlots - s.AvailableSlots, nil
}

// restore gives one unit back, never beyond TotalSlots, and reopens a fully
// booked slot.
func (s *Slot) restore() error {
	switch s.Status {
	case SlotBooked:
		s.Status = SlotAvailable
	case SlotAvailable, SlotReleased, SlotPending, SlotBlocked, SlotCancelled:
	default:
		return validationf("unknown slot status %q", s.Status)
	}
	if s.AvailableSlots < s.TotalSlots {
		s.AvailableSlots++
	}
	return nil
}

// release opens a time-released slot. It reports false when there was nothing to do.
func (s *Slot) release(now time.Time) (bool, error) {
	switch s.Status {
	case SlotPending:
		if s.ReleaseAt != nil && now.Before(*s.ReleaseAt) {
			return false, nil
		}
		s.Status = SlotReleased
		return true, nil
	case SlotAvailable, SlotReleased, SlotBooked, SlotBlocked, SlotCancelled:
		return false, nil
	default:
		return false, validationf("unknown slot status %q", s.Status)
	}
}

func (a *Appointment) checkIn(now time.Time) error {
	switch a.Status {
	case StatusUpcoming:
		a.Status = StatusCheckedIn
		a.CheckedInAt = &now
		return nil
	case StatusCheckedIn, StatusCompleted, StatusCancelled:
		return ErrInvalidTransition
	default:
		return validationf("unknown appointment status %q", a.Status)
	}
}

func (a *Appointment) complete(now time.Time) error {
	switch a.Status {
	case StatusCheckedIn:
		a.Status = StatusCompleted
		a.CompletedAt = &now
		return nil
	case StatusUpcoming, StatusCompleted, StatusCancelled:
		return ErrInvalidTransition
	default:
		return validationf("unknown appointment status %q", a.Status)
	}
}

func (a *Appointment) cancel(now time.Time, reason string) error {
	switch a.Status {
	case StatusUpcoming, StatusCheckedIn:
		a.Status = StatusCancelled
		a.CancelReason = &reason
		a.CancelledAt = &now
		return nil
	case StatusCompleted, StatusCancelled:
		return ErrInvalidTransition
	default:
		return validationf("unknown appointment status %q", a.Status)
	}
}

// canReschedule: only appointments the patient has not arrived for can move.
func (a *Appointment) canReschedule() error {
	switch a.Status {
	case StatusUpcoming:
		return nil
	case StatusCheckedIn, StatusCompleted, StatusCancelled:
		return ErrInvalidTransition
	default:
		return validationf("unknown appointment status %q", a.Status)
	}
}

func (r ReleaseType) valid() bool {
	switch r {
	case ReleaseCountwise, ReleaseTimewise:
		return true
	default:
		return false
	}
}
