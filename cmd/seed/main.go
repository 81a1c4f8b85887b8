package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
)

const (
	branchCount  = 5
	doctorCount  = 40
	patientCount = 5000
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Env, cfg.LogLevel, "seed")
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	faker := gofakeit.New(time.Now().UnixNano())

	branches, err := seedBranches(ctx, pool, faker, branchCount)
	if err != nil {
		log.Fatal().Err(err).Msg("seed branches")
	}
	doctorBranches, err := seedDoctors(ctx, pool, faker, doctorCount, branches)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(ctx, pool, faker, log, patientCount); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	store := scheduling.NewPgStore(pool, cfg.RowLockTimeout)
	schedules := scheduling.NewScheduleManager(store, zerolog.Nop())
	if err := seedSchedules(ctx, schedules, faker, doctorBranches); err != nil {
		log.Fatal().Err(err).Msg("seed schedules")
	}

	log.Info().
		Int("branches", len(branches)).
		Int("doctor_branches", len(doctorBranches)).
		Int("patients", patientCount).
		Msg("seed complete")
}

func seedBranches(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := faker.City() + " Clinic"
		if _, err := pool.Exec(ctx, `
			INSERT INTO branches (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, id, name); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, branches []uuid.UUID) ([]uuid.UUID, error) {
	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var doctorBranches []uuid.UUID
	for i := 0; i < count; i++ {
		doctorID := uuid.New()
		spec := specialties[faker.Number(0, len(specialties)-1)]
		if _, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, doctorID, "Dr. "+faker.Name(), spec); err != nil {
			return nil, err
		}

		// most doctors work at one branch, some at two
		n := 1 + faker.Number(0, 3)/3
		first := faker.Number(0, len(branches)-1)
		for j := 0; j < n && j < len(branches); j++ {
			id := uuid.New()
			branchID := branches[(first+j)%len(branches)]
			if _, err := tx.Exec(ctx, `
				INSERT INTO doctor_branches (id, doctor_id, branch_id, active, created_at, updated_at)
				VALUES ($1, $2, $3, true, now(), now())
			`, id, doctorID, branchID); err != nil {
				return nil, err
			}
			doctorBranches = append(doctorBranches, id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return doctorBranches, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, log zerolog.Logger, count int) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			if _, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, faker.Name(), faker.Email()); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			if faker.Number(0, 9) == 0 {
				if _, err := tx.Exec(ctx, `
					INSERT INTO family_members (id, patient_id, name, relation, created_at, updated_at)
					VALUES ($1, $2, $3, $4, now(), now())
				`, uuid.New(), id, faker.Name(), faker.RandomString([]string{"child", "spouse", "parent"})); err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		log.Info().Int("seeded", end).Int("total", count).Msg("patients seeded")
	}
	return nil
}

func seedSchedules(ctx context.Context, schedules *scheduling.ScheduleManager, faker *gofakeit.Faker, doctorBranches []uuid.UUID) error {
	duration := 15
	for _, id := range doctorBranches {
		timewise := faker.Bool()
		for day := time.Monday; day <= time.Friday; day++ {
			ws := &scheduling.WeeklySchedule{
				DoctorBranchID:      id,
				DayOfWeek:           day,
				Active:              true,
				ReleaseType:         scheduling.ReleaseCountwise,
				SlotDurationMinutes: &duration,
				SlotCapacity:        faker.Number(2, 6),
				Ranges: []scheduling.TimeRange{
					{Start: scheduling.NewTimeOfDay(9, 0), End: scheduling.NewTimeOfDay(12, 0)},
					{Start: scheduling.NewTimeOfDay(14, 0), End: scheduling.NewTimeOfDay(17, 0)},
				},
			}
			if timewise {
				releaseAt := scheduling.NewTimeOfDay(18, 0)
				ws.ReleaseType = scheduling.ReleaseTimewise
				ws.ReleaseBefore = 1
				ws.ReleaseTime = &releaseAt
			}
			if err := schedules.SaveWeeklySchedule(ctx, ws); err != nil {
				return fmt.Errorf("doctor branch %s %s: %w", id, day, err)
			}
		}
	}
	return nil
}
