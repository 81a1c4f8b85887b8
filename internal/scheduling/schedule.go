package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ScheduleManager owns recurring weekly availability and the exceptions
// (breaks, leaves) that carve capacity out of it.
type ScheduleManager struct {
	store Store
	log   zerolog.Logger
}

func NewScheduleManager(store Store, log zerolog.Logger) *ScheduleManager {
	return &ScheduleManager{store: store, log: log}
}

// ValidateWeeklySchedule checks a schedule and normalises it in place:
// ranges are sorted and COUNTWISE schedules drop their release fields.
func ValidateWeeklySchedule(ws *WeeklySchedule) error {
	if ws.DoctorBranchID == uuid.Nil {
		return validationf("doctor_branch_id is required")
	}
	if ws.DayOfWeek < time.Sunday || ws.DayOfWeek > time.Saturday {
		return validationf("day_of_week must be 0-6, got %d", ws.DayOfWeek)
	}
	if !ws.ReleaseType.valid() {
		return validationf("release_type must be COUNTWISE or TIMEWISE, got %q", ws.ReleaseType)
	}
	if ws.SlotCapacity < 1 {
		return validationf("slot_capacity must be >= 1")
	}
	if ws.SlotDurationMinutes != nil && *ws.SlotDurationMinutes < 1 {
		return validationf("slot_duration_minutes must be >= 1 when set")
	}
	if len(ws.Ranges) == 0 {
		return validationf("at least one time range is required")
	}

	for _, r := range ws.Ranges {
		if !r.Start.Valid() || !r.End.Valid() {
			return validationf("time range %s-%s is outside the day", r.Start, r.End)
		}
		if r.Start >= r.End {
			return validationf("time range %s-%s must start before it ends", r.Start, r.End)
		}
	}

	sort.Slice(ws.Ranges, func(i, j int) bool {
		return ws.Ranges[i].Start < ws.Ranges[j].Start
	})
	for i := 1; i < len(ws.Ranges); i++ {
		if ws.Ranges[i-1].Overlaps(ws.Ranges[i]) {
			return validationf("time ranges %s-%s and %s-%s overlap",
				ws.Ranges[i-1].Start, ws.Ranges[i-1].End, ws.Ranges[i].Start, ws.Ranges[i].End)
		}
	}

	switch ws.ReleaseType {
	case ReleaseCountwise:
		ws.ReleaseBefore = 0
		ws.ReleaseTime = nil
	case ReleaseTimewise:
		if ws.ReleaseBefore < 0 {
			return validationf("release_before must be >= 0")
		}
		if ws.ReleaseTime != nil && !ws.ReleaseTime.Valid() {
			return validationf("release_time is outside the day")
		}
	}
	return nil
}

// SaveWeeklySchedule creates or replaces the schedule for one doctor-branch weekday.
func (m *ScheduleManager) SaveWeeklySchedule(ctx context.Context, ws *WeeklySchedule) error {
	if err := ValidateWeeklySchedule(ws); err != nil {
		return err
	}
	if _, err := m.store.GetDoctorBranch(ctx, ws.DoctorBranchID); err != nil {
		return err
	}
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	if err := m.store.UpsertWeeklySchedule(ctx, ws); err != nil {
		return fmt.Errorf("save weekly schedule: %w", err)
	}

	m.log.Info().
		Str("doctor_branch_id", ws.DoctorBranchID.String()).
		Str("day", ws.DayOfWeek.String()).
		Str("release_type", string(ws.ReleaseType)).
		Int("ranges", len(ws.Ranges)).
		Msg("weekly schedule saved")
	return nil
}

func (m *ScheduleManager) WeeklySchedule(ctx context.Context, doctorBranchID uuid.UUID, day time.Weekday) (*WeeklySchedule, error) {
	return m.store.GetWeeklySchedule(ctx, doctorBranchID, day)
}

func (m *ScheduleManager) AddBreak(ctx context.Context, b *ScheduleBreak) error {
	if b.DoctorBranchID == uuid.Nil {
		return validationf("doctor_branch_id is required")
	}
	if b.DayOfWeek < time.Sunday || b.DayOfWeek > time.Saturday {
		return validationf("day_of_week must be 0-6, got %d", b.DayOfWeek)
	}
	if !b.Start.Valid() || !b.End.Valid() || b.Start >= b.End {
		return validationf("break %s-%s must start before it ends", b.Start, b.End)
	}
	if _, err := m.store.GetDoctorBranch(ctx, b.DoctorBranchID); err != nil {
		return err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if err := m.store.CreateBreak(ctx, b); err != nil {
		return fmt.Errorf("create break: %w", err)
	}
	return nil
}

// AddLeave records a leave request. It removes capacity only once approved.
func (m *ScheduleManager) AddLeave(ctx context.Context, l *Leave) error {
	if l.DoctorBranchID == uuid.Nil {
		return validationf("doctor_branch_id is required")
	}
	if l.StartDate.IsZero() || l.EndDate.IsZero() {
		return validationf("start_date and end_date are required")
	}
	l.StartDate, l.EndDate = DateOf(l.StartDate), DateOf(l.EndDate)
	if l.EndDate.Before(l.StartDate) {
		return validationf("end_date must not be before start_date")
	}
	if _, err := m.store.GetDoctorBranch(ctx, l.DoctorBranchID); err != nil {
		return err
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.Approved = false
	if err := m.store.CreateLeave(ctx, l); err != nil {
		return fmt.Errorf("create leave: %w", err)
	}
	return nil
}

// ApproveLeave approves a leave. Slots already generated for the covered days
// are left alone; blocking them is an operator decision.
func (m *ScheduleManager) ApproveLeave(ctx context.Context, id uuid.UUID) (*Leave, error) {
	l, err := m.store.ApproveLeave(ctx, id)
	if err != nil {
		return nil, err
	}
	m.log.Info().
		Str("leave_id", id.String()).
		Str("doctor_branch_id", l.DoctorBranchID.String()).
		Time("start_date", l.StartDate).
		Time("end_date", l.EndDate).
		Msg("leave approved")
	return l, nil
}
