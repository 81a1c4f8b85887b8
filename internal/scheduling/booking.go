package scheduling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingCoordinator turns patient requests into appointments. Every
// operation commits its slot and appointment writes, plus the outbox event,
// in one transaction.
type BookingCoordinator struct {
	store     Store
	allocator *SlotAllocator
	loc       *time.Location
	log       zerolog.Logger
	now       func() time.Time
}

func NewBookingCoordinator(store Store, allocator *SlotAllocator, loc *time.Location, log zerolog.Logger) *BookingCoordinator {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingCoordinator{
		store:     store,
		allocator: allocator,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for check-in and audit timestamps.
func (c *BookingCoordinator) WithClock(now func() time.Time) *BookingCoordinator {
	c.now = now
	return c
}

type BookRequest struct {
	PatientID      uuid.UUID
	DoctorBranchID uuid.UUID
	SlotID         uuid.UUID
	FamilyMemberID *uuid.UUID
}

// FormatBookingID renders the human-facing booking number.
func FormatBookingID(date time.Time, seq int64) string {
	return fmt.Sprintf("BK-%s-%06d", date.Format("20060102"), seq)
}

func (c *BookingCoordinator) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil || req.DoctorBranchID == uuid.Nil || req.SlotID == uuid.Nil {
		return nil, validationf("patient_id, doctor_branch_id and slot_id are required")
	}

	var created *Appointment
	err := c.allocator.InTx(ctx, func(ctx context.Context, tx Store) error {
		if err := c.checkPatient(ctx, tx, req.PatientID, req.FamilyMemberID); err != nil {
			return err
		}
		db, err := tx.GetDoctorBranch(ctx, req.DoctorBranchID)
		if err != nil {
			return err
		}
		slot, err := tx.GetSlot(ctx, req.SlotID)
		if err != nil {
			return err
		}
		if slot.DoctorBranchID != db.ID {
			return validationf("slot %s does not belong to doctor branch %s", slot.ID, db.ID)
		}

		key := ActiveKey{
			PatientID:      req.PatientID,
			FamilyMemberID: req.FamilyMemberID,
			DoctorBranchID: db.ID,
			Date:           slot.Date,
		}
		if err := ensureNoActive(ctx, tx, key, uuid.Nil); err != nil {
			return err
		}

		serial, err := c.allocator.BookTx(ctx, tx, slot.ID)
		if err != nil {
			return err
		}
		expected, err := EstimateExpectedTime(slot.Window(), serial, c.loc)
		if err != nil {
			return err
		}
		seq, err := tx.NextBookingNumber(ctx)
		if err != nil {
			return fmt.Errorf("next booking number: %w", err)
		}

		now := c.now()
		appt := &Appointment{
			ID:              uuid.New(),
			GlobalID:        uuid.New(),
			BookingID:       FormatBookingID(slot.Date, seq),
			PatientID:       req.PatientID,
			FamilyMemberID:  req.FamilyMemberID,
			DoctorBranchID:  db.ID,
			BranchID:        db.BranchID,
			SlotID:          slot.ID,
			AppointmentDate: slot.Date,
			Serial:          serial,
			Status:          StatusUpcoming,
			ExpectedTime:    expected,
			AuditMetadata:   AuditMetadata{CreatedAt: now, UpdatedAt: now},
		}
		if err := tx.CreateAppointment(ctx, appt); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, appt, newAppointmentEvent(EventAppointmentBooked, appt, now)); err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("booking_id", created.BookingID).
		Str("slot_id", created.SlotID.String()).
		Int("serial", created.Serial).
		Msg("appointment booked")
	return created, nil
}

// Reschedule moves an appointment to another slot of the same doctor-branch.
// The old slot is only freed if the new one could be booked.
func (c *BookingCoordinator) Reschedule(ctx context.Context, appointmentID, newSlotID uuid.UUID) (*Appointment, error) {
	if newSlotID == uuid.Nil {
		return nil, validationf("slot_id is required")
	}

	var updated *Appointment
	err := c.allocator.InTx(ctx, func(ctx context.Context, tx Store) error {
		appt, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if err := appt.canReschedule(); err != nil {
			return err
		}
		if appt.SlotID == newSlotID {
			return validationf("appointment is already in slot %s", newSlotID)
		}
		newSlot, err := tx.GetSlot(ctx, newSlotID)
		if err != nil {
			return err
		}
		if newSlot.DoctorBranchID != appt.DoctorBranchID {
			return validationf("slot %s belongs to another doctor branch", newSlotID)
		}

		key := appt.ActiveKey()
		key.Date = newSlot.Date
		if err := ensureNoActive(ctx, tx, key, appt.ID); err != nil {
			return err
		}

		oldSlotID := appt.SlotID
		if err := lockSlotsInOrder(ctx, tx, oldSlotID, newSlotID); err != nil {
			return err
		}
		if err := c.allocator.CancelTx(ctx, tx, oldSlotID); err != nil {
			return err
		}
		serial, err := c.allocator.BookTx(ctx, tx, newSlotID)
		if err != nil {
			return err
		}
		expected, err := EstimateExpectedTime(newSlot.Window(), serial, c.loc)
		if err != nil {
			return err
		}

		now := c.now()
		appt.SlotID = newSlot.ID
		appt.AppointmentDate = newSlot.Date
		appt.Serial = serial
		appt.ExpectedTime = expected
		appt.UpdatedAt = now
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}

		ev := newAppointmentEvent(EventAppointmentRescheduled, appt, now)
		ev.PreviousSlotID = oldSlotID.String()
		if err := appendEvent(ctx, tx, appt, ev); err != nil {
			return err
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("appointment_id", updated.ID.String()).
		Str("slot_id", updated.SlotID.String()).
		Int("serial", updated.Serial).
		Msg("appointment rescheduled")
	return updated, nil
}

// Cancel cancels an upcoming or checked-in appointment and returns its place
// to the slot. History is kept; the row only changes status.
func (c *BookingCoordinator) Cancel(ctx context.Context, appointmentID uuid.UUID, reason string) (*Appointment, error) {
	var cancelled *Appointment
	err := c.allocator.InTx(ctx, func(ctx context.Context, tx Store) error {
		appt, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		now := c.now()
		if err := appt.cancel(now, reason); err != nil {
			return err
		}
		if err := c.allocator.CancelTx(ctx, tx, appt.SlotID); err != nil {
			return err
		}
		appt.UpdatedAt = now
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, appt, newAppointmentEvent(EventAppointmentCancelled, appt, now)); err != nil {
			return err
		}
		cancelled = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("appointment_id", cancelled.ID.String()).
		Str("reason", reason).
		Msg("appointment cancelled")
	return cancelled, nil
}

// CheckIn records the patient's arrival. The timestamp drives the live queue.
func (c *BookingCoordinator) CheckIn(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	return c.transition(ctx, appointmentID, EventAppointmentCheckedIn, func(a *Appointment, now time.Time) error {
		return a.checkIn(now)
	})
}

func (c *BookingCoordinator) Complete(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	return c.transition(ctx, appointmentID, EventAppointmentCompleted, func(a *Appointment, now time.Time) error {
		return a.complete(now)
	})
}

func (c *BookingCoordinator) Get(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	return c.store.GetAppointment(ctx, appointmentID)
}

func (c *BookingCoordinator) transition(ctx context.Context, appointmentID uuid.UUID, eventType string, apply func(*Appointment, time.Time) error) (*Appointment, error) {
	var out *Appointment
	err := c.allocator.InTx(ctx, func(ctx context.Context, tx Store) error {
		appt, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		now := c.now()
		if err := apply(appt, now); err != nil {
			return err
		}
		appt.UpdatedAt = now
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, appt, newAppointmentEvent(eventType, appt, now)); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("appointment_id", out.ID.String()).
		Str("status", string(out.Status)).
		Msg("appointment status changed")
	return out, nil
}

func (c *BookingCoordinator) checkPatient(ctx context.Context, tx Store, patientID uuid.UUID, memberID *uuid.UUID) error {
	ok, err := tx.PatientExists(ctx, patientID)
	if err != nil {
		return fmt.Errorf("check patient: %w", err)
	}
	if !ok {
		return ErrPatientNotFound
	}
	if memberID == nil {
		return nil
	}
	ok, err = tx.FamilyMemberExists(ctx, patientID, *memberID)
	if err != nil {
		return fmt.Errorf("check family member: %w", err)
	}
	if !ok {
		return ErrFamilyMemberNotFound
	}
	return nil
}

// ensureNoActive fails with ErrDuplicateBooking if another active appointment
// (not self) holds key.
func ensureNoActive(ctx context.Context, tx Store, key ActiveKey, self uuid.UUID) error {
	existing, err := tx.FindActiveAppointment(ctx, key)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check active appointment: %w", err)
	}
	if existing.ID == self {
		return nil
	}
	return ErrDuplicateBooking
}

// lockSlotsInOrder takes row locks in a fixed order so two reschedules that
// swap slots cannot deadlock each other.
func lockSlotsInOrder(ctx context.Context, tx Store, ids ...uuid.UUID) error {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})
	for _, id := range sorted {
		if _, err := tx.LockSlot(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
