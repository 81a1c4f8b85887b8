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

// 2026-10-19 is a Monday.
var genDay = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func mondaySchedule(db DoctorBranch) *WeeklySchedule {
	return &WeeklySchedule{
		ID:                  uuid.New(),
		DoctorBranchID:      db.ID,
		DayOfWeek:           time.Monday,
		Active:              true,
		ReleaseType:         ReleaseCountwise,
		SlotDurationMinutes: intPtr(60),
		SlotCapacity:        4,
		Ranges: []TimeRange{
			{Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(12, 0)},
			{Start: NewTimeOfDay(14, 0), End: NewTimeOfDay(16, 0)},
		},
	}
}

func starts(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime.String() + "-" + s.EndTime.String()
	}
	return out
}

func TestPlanSlots(t *testing.T) {
	db := DoctorBranch{ID: uuid.New(), BranchID: uuid.New()}

	tests := []struct {
		name   string
		edit   func(ws *WeeklySchedule) ([]ScheduleBreak, []Leave)
		want   []string
		status SlotStatus
	}{
		{
			name: "hourly buckets",
			edit: func(ws *WeeklySchedule) ([]ScheduleBreak, []Leave) { return nil, nil },
			want: []string{"09:00-10:00", "10:00-11:00", "11:00-12:00", "14:00-15:00", "15:00-16:00"},
		},
		{
			name: "break splits a range and short remainder is dropped",
			edit: func(ws *WeeklySchedule) ([]ScheduleBreak, []Leave) {
				return []ScheduleBreak{{DayOfWeek: time.Monday, Start: NewTimeOfDay(10, 0), End: NewTimeOfDay(10, 30)}}, nil
			},
			want: []string{"09:00-10:00", "10:30-11:30", "14:00-15:00", "15:00-16:00"},
		},
		{
			name: "break on another weekday is ignored",
			edit: func(ws *WeeklySchedule) ([]ScheduleBreak, []Leave) {
				return []ScheduleBreak{{DayOfWeek: time.Tuesday, Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(16, 0)}}, nil
			},
			want: []string{"09:00-10:00", "10:00-11:00", "11:00-12:00", "14:00-15:00", "15:00-16:00"},
		},
		{
			name: "unset duration yields one bucket per range",
			edit: func(ws *WeeklySchedule) ([]ScheduleBreak, []Leave) {
				ws.SlotDurationMinutes = nil
				return nil, nil
			},
			want: []string{"09:00-12:00", "14:00-16:00"},
		},
		{
			name: "approved leave removes the day",
			edit: func(ws *WeeklySchedule) ([]ScheduleBreak, []Leave) {
				return nil, []Leave{{StartDate: genDay.AddDate(0, 0, -1), EndDate: genDay, Approved: true}}
			},
			want: []string{},
		},
		{
			name: "unapproved leave is ignored",
			edit: func(ws *WeeklySchedule) ([]ScheduleBreak, []Leave) {
				return nil, []Leave{{StartDate: genDay, EndDate: genDay}}
			},
			want: []string{"09:00-10:00", "10:00-11:00", "11:00-12:00", "14:00-15:00", "15:00-16:00"},
		},
		{
			name: "inactive schedule generates nothing",
			edit: func(ws *WeeklySchedule) ([]ScheduleBreak, []Leave) {
				ws.Active = false
				return nil, nil
			},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := mondaySchedule(db)
			breaks, leaves := tt.edit(ws)

			slots := PlanSlots(db, ws, breaks, leaves, genDay, time.UTC)

			got := starts(slots)
			if !sameOrder(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for _, s := range slots {
				if s.TotalSlots != 4 || s.AvailableSlots != 4 {
					t.Errorf("bucket %s: expected capacity 4/4, got %d/%d", s.StartTime, s.AvailableSlots, s.TotalSlots)
				}
				if s.Status != SlotAvailable {
					t.Errorf("countwise bucket %s should be AVAILABLE, got %s", s.StartTime, s.Status)
				}
				if s.GlobalID == uuid.Nil || s.BranchID != db.BranchID {
					t.Errorf("bucket %s missing identity", s.StartTime)
				}
			}
		})
	}
}

func TestPlanSlots_Timewise(t *testing.T) {
	db := DoctorBranch{ID: uuid.New(), BranchID: uuid.New()}
	loc := time.FixedZone("clinic", 3*3600)

	ws := mondaySchedule(db)
	ws.ReleaseType = ReleaseTimewise
	ws.ReleaseBefore = 2
	rt := NewTimeOfDay(18, 0)
	ws.ReleaseTime = &rt

	slots := PlanSlots(db, ws, nil, nil, genDay, loc)
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	want := time.Date(2026, 10, 17, 18, 0, 0, 0, loc)
	for _, s := range slots {
		if s.Status != SlotPending {
			t.Errorf("expected PENDING, got %s", s.Status)
		}
		if s.ReleaseAt == nil || !s.ReleaseAt.Equal(want) {
			t.Errorf("expected release at %s, got %v", want, s.ReleaseAt)
		}
	}

	ws.ReleaseTime = nil
	slots = PlanSlots(db, ws, nil, nil, genDay, loc)
	midnight := time.Date(2026, 10, 17, 0, 0, 0, 0, loc)
	if !slots[0].ReleaseAt.Equal(midnight) {
		t.Errorf("expected midnight release without a release time, got %s", slots[0].ReleaseAt)
	}
}

func TestPlanSlots_WrongWeekday(t *testing.T) {
	db := DoctorBranch{ID: uuid.New()}
	if got := PlanSlots(db, mondaySchedule(db), nil, nil, genDay.AddDate(0, 0, 1), time.UTC); len(got) != 0 {
		t.Errorf("monday schedule produced %d slots on tuesday", len(got))
	}
}

func newTestGenerator(store *memStore, locker redisclient.Locker) *SlotGenerator {
	return NewSlotGenerator(store, locker, time.UTC, 3, zerolog.Nop())
}

func seedSchedule(t *testing.T, store *memStore, db DoctorBranch) {
	t.Helper()
	if err := NewScheduleManager(store, zerolog.Nop()).SaveWeeklySchedule(context.Background(), mondaySchedule(db)); err != nil {
		t.Fatalf("save schedule: %v", err)
	}
}

func TestSlotGenerator_GenerateIsIdempotent(t *testing.T) {
	store := newMemStore()
	db := store.addDoctorBranch()
	seedSchedule(t, store, db)
	gen := newTestGenerator(store, redisclient.NoopLocker{})
	ctx := context.Background()

	first, err := gen.Generate(ctx, db.ID, genDay)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first.Inserted != 5 || len(first.Slots) != 5 {
		t.Fatalf("expected 5 inserted slots, got %d inserted / %d listed", first.Inserted, len(first.Slots))
	}

	second, err := gen.Generate(ctx, db.ID, genDay.Add(15*time.Hour))
	if err != nil {
		t.Fatalf("generate again: %v", err)
	}
	if second.Inserted != 0 {
		t.Errorf("second run inserted %d slots", second.Inserted)
	}
	if len(second.Slots) != len(first.Slots) {
		t.Fatalf("slot count changed from %d to %d", len(first.Slots), len(second.Slots))
	}
	for i := range first.Slots {
		if first.Slots[i].ID != second.Slots[i].ID {
			t.Errorf("slot %d replaced on rerun", i)
		}
	}
}

func TestSlotGenerator_RerunKeepsBookings(t *testing.T) {
	store := newMemStore()
	db := store.addDoctorBranch()
	seedSchedule(t, store, db)
	gen := newTestGenerator(store, redisclient.NoopLocker{})
	ctx := context.Background()

	res, err := gen.Generate(ctx, db.ID, genDay)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewSlotAllocator(store, 1, 0).Book(ctx, res.Slots[0].ID); err != nil {
		t.Fatalf("book: %v", err)
	}

	if _, err := gen.Generate(ctx, db.ID, genDay); err != nil {
		t.Fatalf("generate again: %v", err)
	}
	if got := store.slot(res.Slots[0].ID).AvailableSlots; got != 3 {
		t.Errorf("rerun reset capacity to %d", got)
	}

	listed, err := gen.Slots(ctx, db.ID, genDay)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(listed) != 5 || listed[0].AvailableSlots != 3 {
		t.Errorf("unexpected listing %v", starts(listed))
	}
	if _, err := gen.Slots(ctx, uuid.New(), genDay); !errors.Is(err, ErrDoctorBranchNotFound) {
		t.Errorf("expected doctor branch not found, got %v", err)
	}
}

func TestSlotGenerator_NoSchedule(t *testing.T) {
	store := newMemStore()
	db := store.addDoctorBranch()

	res, err := newTestGenerator(store, redisclient.NoopLocker{}).Generate(context.Background(), db.ID, genDay)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Inserted != 0 || len(res.Slots) != 0 {
		t.Errorf("expected nothing, got %d slots", len(res.Slots))
	}
}

func TestSlotGenerator_UnknownDoctorBranch(t *testing.T) {
	_, err := newTestGenerator(newMemStore(), redisclient.NoopLocker{}).Generate(context.Background(), uuid.New(), genDay)
	if !errors.Is(err, ErrDoctorBranchNotFound) {
		t.Fatalf("expected doctor branch not found, got %v", err)
	}
}

type busyLocker struct{ calls int }

func (l *busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	l.calls++
	return redisclient.ErrLockNotAcquired
}

func TestSlotGenerator_BusyLockFallsBackToKeyedInsert(t *testing.T) {
	store := newMemStore()
	db := store.addDoctorBranch()
	seedSchedule(t, store, db)
	locker := &busyLocker{}

	res, err := newTestGenerator(store, locker).Generate(context.Background(), db.ID, genDay)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if locker.calls != 1 {
		t.Errorf("expected one lock attempt, got %d", locker.calls)
	}
	if res.Inserted != 5 {
		t.Errorf("expected 5 inserted, got %d", res.Inserted)
	}
}

func TestSlotGenerator_BatchIsolatesFailures(t *testing.T) {
	store := newMemStore()
	var units []GenerationUnit
	var broken DoctorBranch
	for i := 0; i < 4; i++ {
		db := store.addDoctorBranch()
		seedSchedule(t, store, db)
		units = append(units, GenerationUnit{DoctorBranchID: db.ID, Date: genDay})
		if i == 1 {
			broken = db
		}
	}
	store.failBranch(broken.ID, errors.New("connection reset"))

	report := newTestGenerator(store, redisclient.NoopLocker{}).GenerateBatch(context.Background(), units)

	if report.Units != 4 {
		t.Errorf("expected 4 units, got %d", report.Units)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failures))
	}
	if report.Failures[0].Unit.DoctorBranchID != broken.ID {
		t.Errorf("wrong unit reported as failed")
	}
	if report.Inserted != 15 {
		t.Errorf("expected 15 slots from the healthy units, got %d", report.Inserted)
	}
}

func TestSlotGenerator_GenerateHorizon(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 2; i++ {
		seedSchedule(t, store, store.addDoctorBranch())
	}

	// Sunday through Tuesday: only Monday has a schedule.
	report, err := newTestGenerator(store, redisclient.NoopLocker{}).
		GenerateHorizon(context.Background(), genDay.AddDate(0, 0, -1).Add(20*time.Hour), 3)
	if err != nil {
		t.Fatalf("horizon: %v", err)
	}
	if report.Units != 6 {
		t.Errorf("expected 6 units, got %d", report.Units)
	}
	if len(report.Failures) != 0 {
		t.Errorf("unexpected failures: %v", report.Failures)
	}
	if report.Inserted != 10 {
		t.Errorf("expected 10 slots, got %d", report.Inserted)
	}
}
