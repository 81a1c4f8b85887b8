package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// AuditMetadata is embedded by every persisted entity.
type AuditMetadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReleaseType string

const (
	ReleaseCountwise ReleaseType = "COUNTWISE"
	ReleaseTimewise  ReleaseType = "TIMEWISE"
)

type SlotStatus string

const (
	SlotPending   SlotStatus = "PENDING"
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
	SlotBlocked   SlotStatus = "BLOCKED"
	SlotCancelled SlotStatus = "CANCELLED"
	SlotReleased  SlotStatus = "RELEASED"
)

type AppointmentStatus string

const (
	StatusUpcoming  AppointmentStatus = "UPCOMING"
	StatusCheckedIn AppointmentStatus = "CHECKED_IN"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

const SlotTypeRegular = "REGULAR"

// DoctorBranch binds a doctor to one branch. It is the identity slots and
// schedules hang off.
type DoctorBranch struct {
	ID       uuid.UUID `json:"id"`
	DoctorID uuid.UUID `json:"doctor_id"`
	BranchID uuid.UUID `json:"branch_id"`
	Active   bool      `json:"active"`
}

type WeeklySchedule struct {
	ID                  uuid.UUID    `json:"id"`
	DoctorBranchID      uuid.UUID    `json:"doctor_branch_id"`
	DayOfWeek           time.Weekday `json:"day_of_week"`
	Active              bool         `json:"active"`
	ReleaseType         ReleaseType  `json:"release_type"`
	ReleaseBefore       int          `json:"release_before"` // days before the slot date
	ReleaseTime         *TimeOfDay   `json:"release_time,omitempty"`
	SlotDurationMinutes *int         `json:"slot_duration_minutes,omitempty"`
	SlotCapacity        int          `json:"slot_capacity"`
	Ranges              []TimeRange  `json:"ranges"`
	AuditMetadata
}

type ScheduleBreak struct {
	ID             uuid.UUID    `json:"id"`
	DoctorBranchID uuid.UUID    `json:"doctor_branch_id"`
	DayOfWeek      time.Weekday `json:"day_of_week"`
	Start          TimeOfDay    `json:"start"`
	End            TimeOfDay    `json:"end"`
	Description    string       `json:"description"`
	AuditMetadata
}

func (b ScheduleBreak) Range() TimeRange {
	return TimeRange{Start: b.Start, End: b.End}
}

// Leave removes whole days [StartDate, EndDate] once approved.
type Leave struct {
	ID             uuid.UUID `json:"id"`
	DoctorBranchID uuid.UUID `json:"doctor_branch_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Approved       bool      `json:"approved"`
	Reason         string    `json:"reason"`
	AuditMetadata
}

func (l Leave) Covers(date time.Time) bool {
	d := DateOf(date)
	return !d.Before(DateOf(l.StartDate)) && !d.After(DateOf(l.EndDate))
}

type Slot struct {
	ID              uuid.UUID  `json:"id"`
	GlobalID        uuid.UUID  `json:"global_id"`
	DoctorBranchID  uuid.UUID  `json:"doctor_branch_id"`
	BranchID        uuid.UUID  `json:"branch_id"`
	Date            time.Time  `json:"date"`
	StartTime       TimeOfDay  `json:"start_time"`
	EndTime         TimeOfDay  `json:"end_time"`
	TotalSlots      int        `json:"total_slots"`
	AvailableSlots  int        `json:"available_slots"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	SlotType        string     `json:"slot_type"`
	Status          SlotStatus `json:"status"`
	ReleaseAt       *time.Time `json:"release_at,omitempty"`
	AuditMetadata
}

func (s Slot) Window() SlotWindow {
	return SlotWindow{
		Date:            s.Date,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		TotalSlots:      s.TotalSlots,
		DurationMinutes: s.DurationMinutes,
	}
}

type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	GlobalID        uuid.UUID         `json:"global_id"`
	BookingID       string            `json:"booking_id"`
	PatientID       uuid.UUID         `json:"patient_id"`
	FamilyMemberID  *uuid.UUID        `json:"family_member_id,omitempty"`
	DoctorBranchID  uuid.UUID         `json:"doctor_branch_id"`
	BranchID        uuid.UUID         `json:"branch_id"`
	SlotID          uuid.UUID         `json:"slot_id"`
	AppointmentDate time.Time         `json:"appointment_date"`
	Serial          int               `json:"serial"`
	Status          AppointmentStatus `json:"status"`
	CancelReason    *string           `json:"cancel_reason,omitempty"`
	ExpectedTime    time.Time         `json:"expected_time"`
	CheckedInAt     *time.Time        `json:"checked_in_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	AuditMetadata
}

// ActiveKey identifies the "one active appointment per patient, doctor-branch
// and day" rule.
type ActiveKey struct {
	PatientID      uuid.UUID
	FamilyMemberID *uuid.UUID
	DoctorBranchID uuid.UUID
	Date           time.Time
}

func (a *Appointment) ActiveKey() ActiveKey {
	return ActiveKey{
		PatientID:      a.PatientID,
		FamilyMemberID: a.FamilyMemberID,
		DoctorBranchID: a.DoctorBranchID,
		Date:           a.AppointmentDate,
	}
}

// QueueEntry is an appointment joined with what the live board needs from
// its slot and doctor-branch.
type QueueEntry struct {
	Appointment Appointment
	DoctorID    uuid.UUID
	Slot        SlotWindow
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Attempts      int
	LastError     *string
}
