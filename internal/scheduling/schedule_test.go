package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-slot-scheduling/internal/redis"
)

func TestValidateWeeklySchedule(t *testing.T) {
	r := func(sh, sm, eh, em int) TimeRange {
		return TimeRange{Start: NewTimeOfDay(sh, sm), End: NewTimeOfDay(eh, em)}
	}

	tests := []struct {
		name    string
		edit    func(ws *WeeklySchedule)
		wantErr bool
	}{
		{"valid", func(ws *WeeklySchedule) {}, false},
		{"adjacent ranges", func(ws *WeeklySchedule) { ws.Ranges = []TimeRange{r(9, 0, 12, 0), r(12, 0, 13, 0)} }, false},
		{"overlapping ranges", func(ws *WeeklySchedule) { ws.Ranges = []TimeRange{r(9, 0, 12, 0), r(11, 30, 13, 0)} }, true},
		{"overlap hidden by order", func(ws *WeeklySchedule) { ws.Ranges = []TimeRange{r(14, 0, 16, 0), r(8, 0, 9, 0), r(15, 0, 17, 0)} }, true},
		{"inverted range", func(ws *WeeklySchedule) { ws.Ranges = []TimeRange{r(12, 0, 9, 0)} }, true},
		{"empty range", func(ws *WeeklySchedule) { ws.Ranges = []TimeRange{r(9, 0, 9, 0)} }, true},
		{"no ranges", func(ws *WeeklySchedule) { ws.Ranges = nil }, true},
		{"bad release type", func(ws *WeeklySchedule) { ws.ReleaseType = "WHENEVER" }, true},
		{"zero capacity", func(ws *WeeklySchedule) { ws.SlotCapacity = 0 }, true},
		{"zero duration", func(ws *WeeklySchedule) { ws.SlotDurationMinutes = intPtr(0) }, true},
		{"bad weekday", func(ws *WeeklySchedule) { ws.DayOfWeek = 7 }, true},
		{"missing doctor branch", func(ws *WeeklySchedule) { ws.DoctorBranchID = uuid.Nil }, true},
		{"negative release before", func(ws *WeeklySchedule) {
			ws.ReleaseType = ReleaseTimewise
			ws.ReleaseBefore = -1
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := mondaySchedule(DoctorBranch{ID: uuid.New()})
			tt.edit(ws)
			err := ValidateWeeklySchedule(ws)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateWeeklySchedule_Normalises(t *testing.T) {
	ws := mondaySchedule(DoctorBranch{ID: uuid.New()})
	ws.Ranges = []TimeRange{ws.Ranges[1], ws.Ranges[0]}
	rt := NewTimeOfDay(18, 0)
	ws.ReleaseTime = &rt
	ws.ReleaseBefore = 3

	if err := ValidateWeeklySchedule(ws); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ws.Ranges[0].Start != NewTimeOfDay(9, 0) {
		t.Errorf("ranges not sorted: %v", ws.Ranges)
	}
	if ws.ReleaseTime != nil || ws.ReleaseBefore != 0 {
		t.Errorf("countwise schedule kept release fields")
	}
}

func TestScheduleManager_SaveWeeklySchedule(t *testing.T) {
	store := newMemStore()
	db := store.addDoctorBranch()
	m := NewScheduleManager(store, zerolog.Nop())
	ctx := context.Background()

	first := mondaySchedule(db)
	if err := m.SaveWeeklySchedule(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}

	replacement := mondaySchedule(db)
	replacement.ID = uuid.Nil
	replacement.SlotCapacity = 8
	if err := m.SaveWeeklySchedule(ctx, replacement); err != nil {
		t.Fatalf("save replacement: %v", err)
	}
	if replacement.ID != first.ID {
		t.Errorf("upsert created a second schedule for the same weekday")
	}

	got, err := m.WeeklySchedule(ctx, db.ID, time.Monday)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SlotCapacity != 8 {
		t.Errorf("expected capacity 8, got %d", got.SlotCapacity)
	}

	if _, err := m.WeeklySchedule(ctx, db.ID, time.Friday); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("expected schedule not found, got %v", err)
	}

	orphan := mondaySchedule(DoctorBranch{ID: uuid.New()})
	if err := m.SaveWeeklySchedule(ctx, orphan); !errors.Is(err, ErrDoctorBranchNotFound) {
		t.Errorf("expected doctor branch not found, got %v", err)
	}
}

func TestScheduleManager_AddBreak(t *testing.T) {
	store := newMemStore()
	db := store.addDoctorBranch()
	m := NewScheduleManager(store, zerolog.Nop())
	ctx := context.Background()

	b := &ScheduleBreak{DoctorBranchID: db.ID, DayOfWeek: time.Monday, Start: NewTimeOfDay(13, 0), End: NewTimeOfDay(14, 0), Description: "lunch"}
	if err := m.AddBreak(ctx, b); err != nil {
		t.Fatalf("add break: %v", err)
	}
	if b.ID == uuid.Nil {
		t.Error("expected an id to be assigned")
	}

	bad := &ScheduleBreak{DoctorBranchID: db.ID, DayOfWeek: time.Monday, Start: NewTimeOfDay(14, 0), End: NewTimeOfDay(13, 0)}
	if err := m.AddBreak(ctx, bad); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	breaks, _ := store.ListBreaks(ctx, db.ID, time.Monday)
	if len(breaks) != 1 {
		t.Errorf("expected 1 stored break, got %d", len(breaks))
	}
}

func TestScheduleManager_LeaveLifecycle(t *testing.T) {
	store := newMemStore()
	db := store.addDoctorBranch()
	m := NewScheduleManager(store, zerolog.Nop())
	gen := newTestGenerator(store, redisclient.NoopLocker{})
	ctx := context.Background()
	seedSchedule(t, store, db)

	l := &Leave{
		DoctorBranchID: db.ID,
		StartDate:      genDay.Add(10 * time.Hour),
		EndDate:        genDay.AddDate(0, 0, 2),
		Approved:       true,
		Reason:         "conference",
	}
	if err := m.AddLeave(ctx, l); err != nil {
		t.Fatalf("add leave: %v", err)
	}
	if l.Approved {
		t.Error("new leave must start unapproved")
	}
	if !l.StartDate.Equal(genDay) {
		t.Errorf("start date not truncated: %s", l.StartDate)
	}

	res, err := gen.Generate(ctx, db.ID, genDay)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Inserted == 0 {
		t.Fatal("pending leave should not block generation")
	}

	approved, err := m.ApproveLeave(ctx, l.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.Approved {
		t.Error("leave not approved")
	}

	nextMonday := genDay.AddDate(0, 0, 7)
	l2 := &Leave{DoctorBranchID: db.ID, StartDate: nextMonday, EndDate: nextMonday}
	if err := m.AddLeave(ctx, l2); err != nil {
		t.Fatalf("add leave: %v", err)
	}
	if _, err := m.ApproveLeave(ctx, l2.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	res, err = gen.Generate(ctx, db.ID, nextMonday)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Inserted != 0 {
		t.Errorf("approved leave still generated %d slots", res.Inserted)
	}

	if _, err := m.ApproveLeave(ctx, uuid.New()); !errors.Is(err, ErrLeaveNotFound) {
		t.Errorf("expected leave not found, got %v", err)
	}

	backwards := &Leave{DoctorBranchID: db.ID, StartDate: genDay, EndDate: genDay.AddDate(0, 0, -1)}
	if err := m.AddLeave(ctx, backwards); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
