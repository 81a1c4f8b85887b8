package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCheckedIn   = "APPOINTMENT_CHECKED_IN"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
)

// AppointmentEvent is the payload written to the outbox and published to the
// broker. Downstream notification services key on GlobalID.
type AppointmentEvent struct {
	Type           string            `json:"type"`
	AppointmentID  string            `json:"appointment_id"`
	GlobalID       string            `json:"global_id"`
	BookingID      string            `json:"booking_id"`
	PatientID      string            `json:"patient_id"`
	FamilyMemberID string            `json:"family_member_id,omitempty"`
	DoctorBranchID string            `json:"doctor_branch_id"`
	BranchID       string            `json:"branch_id"`
	SlotID         string            `json:"slot_id"`
	Status         AppointmentStatus `json:"status"`
	ExpectedTime   time.Time         `json:"expected_time"`
	PreviousSlotID string            `json:"previous_slot_id,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

func newAppointmentEvent(eventType string, a *Appointment, now time.Time) AppointmentEvent {
	ev := AppointmentEvent{
		Type:           eventType,
		AppointmentID:  a.ID.String(),
		GlobalID:       a.GlobalID.String(),
		BookingID:      a.BookingID,
		PatientID:      a.PatientID.String(),
		DoctorBranchID: a.DoctorBranchID.String(),
		BranchID:       a.BranchID.String(),
		SlotID:         a.SlotID.String(),
		Status:         a.Status,
		ExpectedTime:   a.ExpectedTime,
		OccurredAt:     now,
	}
	if a.FamilyMemberID != nil {
		ev.FamilyMemberID = a.FamilyMemberID.String()
	}
	if a.CancelReason != nil {
		ev.Reason = *a.CancelReason
	}
	return ev
}

// appendEvent writes ev to the outbox inside the caller's transaction so the
// event exists if and only if the state change committed.
func appendEvent(ctx context.Context, tx Store, a *Appointment, ev AppointmentEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	id := a.ID
	return tx.InsertEvent(ctx, EventLog{
		EventType:     ev.Type,
		AppointmentID: &id,
		Payload:       payload,
		CreatedAt:     ev.OccurredAt,
	})
}
