package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
)

type BookAppointmentRequest struct {
	PatientID      string  `json:"patient_id"`
	DoctorBranchID string  `json:"doctor_branch_id"`
	SlotID         string  `json:"slot_id"`
	FamilyMemberID *string `json:"family_member_id,omitempty"`
}

type BookingResponse struct {
	ID           uuid.UUID `json:"id"`
	BookingID    string    `json:"booking_id"`
	GlobalID     uuid.UUID `json:"global_id"`
	Status       string    `json:"status"`
	Serial       int       `json:"serial"`
	ExpectedTime time.Time `json:"expected_time"`
}

type RescheduleRequest struct {
	SlotID string `json:"slot_id"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type StatusResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

type WeeklyScheduleRequest struct {
	Active              *bool                  `json:"active,omitempty"`
	ReleaseType         scheduling.ReleaseType `json:"release_type"`
	ReleaseBefore       int                    `json:"release_before"`
	ReleaseTime         *scheduling.TimeOfDay  `json:"release_time,omitempty"`
	SlotDurationMinutes *int                   `json:"slot_duration_minutes,omitempty"`
	SlotCapacity        int                    `json:"slot_capacity"`
	Ranges              []scheduling.TimeRange `json:"ranges"`
}

type BreakRequest struct {
	DayOfWeek   string               `json:"day_of_week"`
	Start       scheduling.TimeOfDay `json:"start"`
	End         scheduling.TimeOfDay `json:"end"`
	Description string               `json:"description"`
}

type LeaveRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

type GenerateSlotsRequest struct {
	Date string `json:"date"`
}

type QueueCountResponse struct {
	BranchID uuid.UUID `json:"branch_id"`
	Date     string    `json:"date,omitempty"`
	Count    int       `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
