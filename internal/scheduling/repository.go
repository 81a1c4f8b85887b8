package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Directory answers identity questions about master data this subsystem does not own.
type Directory interface {
	GetDoctorBranch(ctx context.Context, id uuid.UUID) (*DoctorBranch, error)
	ListActiveDoctorBranches(ctx context.Context) ([]DoctorBranch, error)
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	FamilyMemberExists(ctx context.Context, patientID, memberID uuid.UUID) (bool, error)
}

type ScheduleRepository interface {
	UpsertWeeklySchedule(ctx context.Context, ws *WeeklySchedule) error
	GetWeeklySchedule(ctx context.Context, doctorBranchID uuid.UUID, day time.Weekday) (*WeeklySchedule, error)
	CreateBreak(ctx context.Context, b *ScheduleBreak) error
	ListBreaks(ctx context.Context, doctorBranchID uuid.UUID, day time.Weekday) ([]ScheduleBreak, error)
	CreateLeave(ctx context.Context, l *Leave) error
	ApproveLeave(ctx context.Context, id uuid.UUID) (*Leave, error)
	ListApprovedLeaves(ctx context.Context, doctorBranchID uuid.UUID, date time.Time) ([]Leave, error)
}

type SlotRepository interface {
	// InsertSlotsIfAbsent inserts slots whose (doctor_branch_id, date, start_time)
	// key does not exist yet and leaves existing rows untouched.
	InsertSlotsIfAbsent(ctx context.Context, slots []Slot) (int, error)
	ListSlots(ctx context.Context, doctorBranchID uuid.UUID, date time.Time) ([]Slot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	// LockSlot reads a slot and holds its row lock until the transaction ends.
	LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	UpdateSlotCapacity(ctx context.Context, s *Slot) error
	ListDueReleases(ctx context.Context, now time.Time, limit int) ([]Slot, error)
	// UpdatePendingSlotStatus writes status only if the slot is still PENDING.
	UpdatePendingSlotStatus(ctx context.Context, id uuid.UUID, status SlotStatus) (bool, error)
}

type AppointmentRepository interface {
	NextBookingNumber(ctx context.Context) (int64, error)
	FindActiveAppointment(ctx context.Context, key ActiveKey) (*Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) error
	ListQueueEntries(ctx context.Context, branchID uuid.UUID, date time.Time) ([]QueueEntry, error)
	CountQueue(ctx context.Context, branchID uuid.UUID, date time.Time) (int, error)
}

// Outbox holds domain events until the relay has handed them to the broker.
type Outbox interface {
	InsertEvent(ctx context.Context, ev EventLog) error
	ListUnpublishedEvents(ctx context.Context, limit int) ([]EventLog, error)
	MarkEventPublished(ctx context.Context, id int64, at time.Time) error
	MarkEventFailed(ctx context.Context, id int64, reason string) error
}

// Store is everything the scheduling services persist through.
type Store interface {
	Directory
	ScheduleRepository
	SlotRepository
	AppointmentRepository
	Outbox

	// RunInTx runs fn against a transaction-bound Store. Returning an error
	// rolls back every write fn made. Calling RunInTx on a transaction-bound
	// Store joins the outer transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
