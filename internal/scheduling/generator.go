package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-slot-scheduling/internal/redis"
)

// SlotGenerator turns weekly availability into dated slots.
type SlotGenerator struct {
	store       Store
	locker      redisclient.Locker
	loc         *time.Location
	parallelism int
	log         zerolog.Logger
}

func NewSlotGenerator(store Store, locker redisclient.Locker, loc *time.Location, parallelism int, log zerolog.Logger) *SlotGenerator {
	if parallelism < 1 {
		parallelism = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SlotGenerator{store: store, locker: locker, loc: loc, parallelism: parallelism, log: log}
}

type GenerationResult struct {
	DoctorBranchID uuid.UUID `json:"doctor_branch_id"`
	Date           time.Time `json:"date"`
	Inserted       int       `json:"inserted"`
	Slots          []Slot    `json:"slots"`
}

// Generate materialises the slots for one doctor-branch day. Running it again
// for the same day inserts nothing and returns the same slots.
func (g *SlotGenerator) Generate(ctx context.Context, doctorBranchID uuid.UUID, date time.Time) (*GenerationResult, error) {
	date = DateOf(date)
	db, err := g.store.GetDoctorBranch(ctx, doctorBranchID)
	if err != nil {
		return nil, err
	}

	var result *GenerationResult
	run := func(ctx context.Context) error {
		var err error
		result, err = g.generate(ctx, db, date)
		return err
	}

	err = g.locker.WithLock(ctx, redisclient.GenerationLockKey(doctorBranchID, date), run)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		// another run holds the key; the insert path is idempotent so it is safe to proceed
		g.log.Debug().
			Str("doctor_branch_id", doctorBranchID.String()).
			Str("date", date.Format(time.DateOnly)).
			Msg("generation lock busy, relying on keyed insert")
		err = run(ctx)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (g *SlotGenerator) generate(ctx context.Context, db *DoctorBranch, date time.Time) (*GenerationResult, error) {
	result := &GenerationResult{DoctorBranchID: db.ID, Date: date}

	ws, err := g.store.GetWeeklySchedule(ctx, db.ID, date.Weekday())
	if errors.Is(err, ErrScheduleNotFound) {
		result.Slots, err = g.store.ListSlots(ctx, db.ID, date)
		return result, err
	}
	if err != nil {
		return nil, fmt.Errorf("load weekly schedule: %w", err)
	}

	breaks, err := g.store.ListBreaks(ctx, db.ID, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load breaks: %w", err)
	}
	leaves, err := g.store.ListApprovedLeaves(ctx, db.ID, date)
	if err != nil {
		return nil, fmt.Errorf("load leaves: %w", err)
	}

	planned := PlanSlots(*db, ws, breaks, leaves, date, g.loc)
	if len(planned) > 0 {
		result.Inserted, err = g.store.InsertSlotsIfAbsent(ctx, planned)
		if err != nil {
			return nil, fmt.Errorf("insert slots: %w", err)
		}
	}

	result.Slots, err = g.store.ListSlots(ctx, db.ID, date)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	g.log.Info().
		Str("doctor_branch_id", db.ID.String()).
		Str("date", date.Format(time.DateOnly)).
		Int("planned", len(planned)).
		Int("inserted", result.Inserted).
		Msg("slots generated")
	return result, nil
}

// Slots lists what has been generated for a doctor-branch day.
func (g *SlotGenerator) Slots(ctx context.Context, doctorBranchID uuid.UUID, date time.Time) ([]Slot, error) {
	if _, err := g.store.GetDoctorBranch(ctx, doctorBranchID); err != nil {
		return nil, err
	}
	return g.store.ListSlots(ctx, doctorBranchID, DateOf(date))
}

// PlanSlots computes the slots a day should have without touching storage.
func PlanSlots(db DoctorBranch, ws *WeeklySchedule, breaks []ScheduleBreak, leaves []Leave, date time.Time, loc *time.Location) []Slot {
	if ws == nil || !ws.Active || ws.DayOfWeek != date.Weekday() {
		return nil
	}
	for _, l := range leaves {
		if l.Approved && l.Covers(date) {
			return nil
		}
	}

	ranges := append([]TimeRange(nil), ws.Ranges...)
	for _, b := range breaks {
		if b.DayOfWeek != date.Weekday() {
			continue
		}
		var next []TimeRange
		for _, r := range ranges {
			next = append(next, r.Subtract(b.Range())...)
		}
		ranges = next
	}

	status := SlotAvailable
	var releaseAt *time.Time
	switch ws.ReleaseType {
	case ReleaseTimewise:
		status = SlotPending
		at := TimeOfDay(0)
		if ws.ReleaseTime != nil {
			at = *ws.ReleaseTime
		}
		t := at.On(date.AddDate(0, 0, -ws.ReleaseBefore), loc)
		releaseAt = &t
	case ReleaseCountwise:
	}

	var slots []Slot
	for _, r := range ranges {
		for _, bucket := range partition(r, ws.SlotDurationMinutes) {
			slots = append(slots, Slot{
				ID:              uuid.New(),
				GlobalID:        uuid.New(),
				DoctorBranchID:  db.ID,
				BranchID:        db.BranchID,
				Date:            DateOf(date),
				StartTime:       bucket.Start,
				EndTime:         bucket.End,
				TotalSlots:      ws.SlotCapacity,
				AvailableSlots:  ws.SlotCapacity,
				DurationMinutes: copyInt(ws.SlotDurationMinutes),
				SlotType:        SlotTypeRegular,
				Status:          status,
				ReleaseAt:       releaseAt,
			})
		}
	}
	return slots
}

// partition cuts r into buckets of duration minutes. A trailing piece shorter
// than the duration is dropped; a nil duration yields r itself.
func partition(r TimeRange, duration *int) []TimeRange {
	if r.Minutes() <= 0 {
		return nil
	}
	if duration == nil {
		return []TimeRange{r}
	}
	step := TimeOfDay(*duration)
	var out []TimeRange
	for start := r.Start; start+step <= r.End; start += step {
		out = append(out, TimeRange{Start: start, End: start + step})
	}
	return out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type GenerationUnit struct {
	DoctorBranchID uuid.UUID
	Date           time.Time
}

type GenerationFailure struct {
	Unit GenerationUnit
	Err  error
}

type BatchReport struct {
	Units    int
	Inserted int
	Failures []GenerationFailure
}

// GenerateBatch runs units concurrently. A failing unit is recorded and the
// rest carry on.
func (g *SlotGenerator) GenerateBatch(ctx context.Context, units []GenerationUnit) BatchReport {
	report := BatchReport{Units: len(units)}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, g.parallelism)
	)

	for _, unit := range units {
		wg.Add(1)
		go func(unit GenerationUnit) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := g.Generate(ctx, unit.DoctorBranchID, unit.Date)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, GenerationFailure{Unit: unit, Err: err})
				g.log.Error().Err(err).
					Str("doctor_branch_id", unit.DoctorBranchID.String()).
					Str("date", unit.Date.Format(time.DateOnly)).
					Msg("slot generation failed")
				return
			}
			report.Inserted += res.Inserted
		}(unit)
	}

	wg.Wait()
	return report
}

// GenerateHorizon generates today plus the following days-1 days for every
// active doctor-branch.
func (g *SlotGenerator) GenerateHorizon(ctx context.Context, today time.Time, days int) (BatchReport, error) {
	branches, err := g.store.ListActiveDoctorBranches(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("list doctor branches: %w", err)
	}

	start := DateOf(today.In(g.loc))
	units := make([]GenerationUnit, 0, len(branches)*days)
	for _, db := range branches {
		for d := 0; d < days; d++ {
			units = append(units, GenerationUnit{DoctorBranchID: db.ID, Date: start.AddDate(0, 0, d)})
		}
	}

	return g.GenerateBatch(ctx, units), nil
}
