package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type PgStore struct {
	pool        *pgxpool.Pool
	q           querier
	inTx        bool
	lockTimeout time.Duration
}

// NewPgStore returns a Store backed by pool. lockTimeout bounds how long a
// transaction waits for a row lock before the attempt is retried.
func NewPgStore(pool *pgxpool.Pool, lockTimeout time.Duration) *PgStore {
	return &PgStore{pool: pool, q: pool, lockTimeout: lockTimeout}
}

func (s *PgStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.lockTimeout > 0 {
		// SET does not take bind parameters
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(ctx, &PgStore{pool: s.pool, q: tx, inTx: true, lockTimeout: s.lockTimeout}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
	activeAppointmentIndex = "appointments_one_active_per_day_idx"
)

// classify maps Postgres error codes onto the package's sentinel errors.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
		return fmt.Errorf("%w: %v", ErrLockContention, err)
	case pgUniqueViolation:
		if pgErr.ConstraintName == activeAppointmentIndex {
			return ErrDuplicateBooking
		}
	}
	return err
}

// Conversions

func toPgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t.Duration() / time.Microsecond), Valid: true}
}

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func nullablePgTime(t *TimeOfDay) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return toPgTime(*t)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Directory

func (s *PgStore) GetDoctorBranch(ctx context.Context, id uuid.UUID) (*DoctorBranch, error) {
	var db DoctorBranch
	err := s.q.QueryRow(ctx, `
		SELECT id, doctor_id, branch_id, active
		FROM doctor_branches
		WHERE id = $1
	`, id).Scan(&db.ID, &db.DoctorID, &db.BranchID, &db.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorBranchNotFound
		}
		return nil, err
	}
	return &db, nil
}

func (s *PgStore) ListActiveDoctorBranches(ctx context.Context) ([]DoctorBranch, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, doctor_id, branch_id, active
		FROM doctor_branches
		WHERE active
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DoctorBranch
	for rows.Next() {
		var db DoctorBranch
		if err := rows.Scan(&db.ID, &db.DoctorID, &db.BranchID, &db.Active); err != nil {
			return nil, err
		}
		result = append(result, db)
	}
	return result, rows.Err()
}

func (s *PgStore) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (s *PgStore) FamilyMemberExists(ctx context.Context, patientID, memberID uuid.UUID) (bool, error) {
	var ok bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM family_members WHERE id = $1 AND patient_id = $2)
	`, memberID, patientID).Scan(&ok)
	return ok, err
}

// Schedules

func scanWeeklySchedule(row pgx.Row) (*WeeklySchedule, error) {
	var ws WeeklySchedule
	var day int16
	var releaseTime pgtype.Time
	var ranges []byte

	err := row.Scan(
		&ws.ID,
		&ws.DoctorBranchID,
		&day,
		&ws.Active,
		&ws.ReleaseType,
		&ws.ReleaseBefore,
		&releaseTime,
		&ws.SlotDurationMinutes,
		&ws.SlotCapacity,
		&ranges,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	ws.DayOfWeek = time.Weekday(day)
	if releaseTime.Valid {
		t := fromPgTime(releaseTime)
		ws.ReleaseTime = &t
	}
	if err := json.Unmarshal(ranges, &ws.Ranges); err != nil {
		return nil, fmt.Errorf("decode ranges for schedule %s: %w", ws.ID, err)
	}
	return &ws, nil
}

const weeklyScheduleColumns = `id, doctor_branch_id, day_of_week, active, release_type, release_before,
	release_time, slot_duration_minutes, slot_capacity, ranges, created_at, updated_at`

func (s *PgStore) UpsertWeeklySchedule(ctx context.Context, ws *WeeklySchedule) error {
	ranges, err := json.Marshal(ws.Ranges)
	if err != nil {
		return fmt.Errorf("encode ranges: %w", err)
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO weekly_schedules (id, doctor_branch_id, day_of_week, active, release_type, release_before,
			release_time, slot_duration_minutes, slot_capacity, ranges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (doctor_branch_id, day_of_week) DO UPDATE
		SET active = EXCLUDED.active,
		    release_type = EXCLUDED.release_type,
		    release_before = EXCLUDED.release_before,
		    release_time = EXCLUDED.release_time,
		    slot_duration_minutes = EXCLUDED.slot_duration_minutes,
		    slot_capacity = EXCLUDED.slot_capacity,
		    ranges = EXCLUDED.ranges,
		    updated_at = now()
		RETURNING `+weeklyScheduleColumns,
		ws.ID, ws.DoctorBranchID, int16(ws.DayOfWeek), ws.Active, string(ws.ReleaseType), ws.ReleaseBefore,
		nullablePgTime(ws.ReleaseTime), ws.SlotDurationMinutes, ws.SlotCapacity, ranges,
	)
	saved, err := scanWeeklySchedule(row)
	if err != nil {
		return err
	}
	*ws = *saved
	return nil
}

func (s *PgStore) GetWeeklySchedule(ctx context.Context, doctorBranchID uuid.UUID, day time.Weekday) (*WeeklySchedule, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+weeklyScheduleColumns+`
		FROM weekly_schedules
		WHERE doctor_branch_id = $1 AND day_of_week = $2
	`, doctorBranchID, int16(day))
	return scanWeeklySchedule(row)
}

func (s *PgStore) CreateBreak(ctx context.Context, b *ScheduleBreak) error {
	return s.q.QueryRow(ctx, `
		INSERT INTO schedule_breaks (id, doctor_branch_id, day_of_week, start_time, end_time, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`, b.ID, b.DoctorBranchID, int16(b.DayOfWeek), toPgTime(b.Start), toPgTime(b.End), b.Description,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (s *PgStore) ListBreaks(ctx context.Context, doctorBranchID uuid.UUID, day time.Weekday) ([]ScheduleBreak, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, doctor_branch_id, day_of_week, start_time, end_time, description, created_at, updated_at
		FROM schedule_breaks
		WHERE doctor_branch_id = $1 AND day_of_week = $2
		ORDER BY start_time
	`, doctorBranchID, int16(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScheduleBreak
	for rows.Next() {
		var b ScheduleBreak
		var day int16
		var start, end pgtype.Time
		if err := rows.Scan(&b.ID, &b.DoctorBranchID, &day, &start, &end, &b.Description, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.DayOfWeek = time.Weekday(day)
		b.Start, b.End = fromPgTime(start), fromPgTime(end)
		result = append(result, b)
	}
	return result, rows.Err()
}

// Leaves

func scanLeave(row pgx.Row) (*Leave, error) {
	var l Leave
	err := row.Scan(&l.ID, &l.DoctorBranchID, &l.StartDate, &l.EndDate, &l.Approved, &l.Reason, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeaveNotFound
		}
		return nil, err
	}
	return &l, nil
}

const leaveColumns = `id, doctor_branch_id, start_date, end_date, approved, reason, created_at, updated_at`

func (s *PgStore) CreateLeave(ctx context.Context, l *Leave) error {
	return s.q.QueryRow(ctx, `
		INSERT INTO leaves (id, doctor_branch_id, start_date, end_date, approved, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`, l.ID, l.DoctorBranchID, l.StartDate, l.EndDate, l.Approved, l.Reason,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (s *PgStore) ApproveLeave(ctx context.Context, id uuid.UUID) (*Leave, error) {
	row := s.q.QueryRow(ctx, `
		UPDATE leaves
		SET approved = true,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+leaveColumns, id)
	return scanLeave(row)
}

func (s *PgStore) ListApprovedLeaves(ctx context.Context, doctorBranchID uuid.UUID, date time.Time) ([]Leave, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+leaveColumns+`
		FROM leaves
		WHERE doctor_branch_id = $1
		  AND approved
		  AND start_date <= $2
		  AND end_date >= $2
	`, doctorBranchID, DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Leave
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *l)
	}
	return result, rows.Err()
}

// Slots

const slotColumns = `id, global_id, doctor_branch_id, branch_id, slot_date, start_time, end_time,
	total_slots, available_slots, duration_minutes, slot_type, status, release_at, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var sl Slot
	var start, end pgtype.Time

	err := row.Scan(
		&sl.ID,
		&sl.GlobalID,
		&sl.DoctorBranchID,
		&sl.BranchID,
		&sl.Date,
		&start,
		&end,
		&sl.TotalSlots,
		&sl.AvailableSlots,
		&sl.DurationMinutes,
		&sl.SlotType,
		&sl.Status,
		&sl.ReleaseAt,
		&sl.CreatedAt,
		&sl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	sl.StartTime, sl.EndTime = fromPgTime(start), fromPgTime(end)
	return &sl, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()
	var result []Slot
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sl)
	}
	return result, rows.Err()
}

func (s *PgStore) InsertSlotsIfAbsent(ctx context.Context, slots []Slot) (int, error) {
	batch := &pgx.Batch{}
	for _, sl := range slots {
		batch.Queue(`
			INSERT INTO slots (id, global_id, doctor_branch_id, branch_id, slot_date, start_time, end_time,
				total_slots, available_slots, duration_minutes, slot_type, status, release_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
			ON CONFLICT (doctor_branch_id, slot_date, start_time) DO NOTHING
		`, sl.ID, sl.GlobalID, sl.DoctorBranchID, sl.BranchID, DateOf(sl.Date), toPgTime(sl.StartTime), toPgTime(sl.EndTime),
			sl.TotalSlots, sl.AvailableSlots, sl.DurationMinutes, sl.SlotType, string(sl.Status), sl.ReleaseAt)
	}

	br := s.q.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range slots {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PgStore) ListSlots(ctx context.Context, doctorBranchID uuid.UUID, date time.Time) ([]Slot, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_branch_id = $1 AND slot_date = $2
		ORDER BY start_time
	`, doctorBranchID, DateOf(date))
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (s *PgStore) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := s.q.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	return scanSlot(row)
}

func (s *PgStore) LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := s.q.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id)
	sl, err := scanSlot(row)
	if err != nil {
		return nil, classify(err)
	}
	return sl, nil
}

func (s *PgStore) UpdateSlotCapacity(ctx context.Context, sl *Slot) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE slots
		SET available_slots = $2,
		    status = $3,
		    updated_at = now()
		WHERE id = $1
	`, sl.ID, sl.AvailableSlots, string(sl.Status))
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (s *PgStore) ListDueReleases(ctx context.Context, now time.Time, limit int) ([]Slot, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE status = 'PENDING'
		  AND (release_at IS NULL OR release_at <= $1)
		ORDER BY release_at NULLS FIRST, id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (s *PgStore) UpdatePendingSlotStatus(ctx context.Context, id uuid.UUID, status SlotStatus) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'PENDING'
	`, id, string(status))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Appointments

const appointmentColumns = `id, global_id, booking_id, patient_id, family_member_id, doctor_branch_id, branch_id,
	slot_id, appointment_date, serial, status, cancel_reason, expected_time, checked_in_at, completed_at,
	cancelled_at, created_at, updated_at`

func appointmentDest(a *Appointment) []any {
	return []any{
		&a.ID,
		&a.GlobalID,
		&a.BookingID,
		&a.PatientID,
		&a.FamilyMemberID,
		&a.DoctorBranchID,
		&a.BranchID,
		&a.SlotID,
		&a.AppointmentDate,
		&a.Serial,
		&a.Status,
		&a.CancelReason,
		&a.ExpectedTime,
		&a.CheckedInAt,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(appointmentDest(&a)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *PgStore) NextBookingNumber(ctx context.Context) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx, `SELECT nextval('booking_number_seq')`).Scan(&n)
	return n, err
}

func (s *PgStore) FindActiveAppointment(ctx context.Context, key ActiveKey) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND family_member_id IS NOT DISTINCT FROM $2
		  AND doctor_branch_id = $3
		  AND appointment_date = $4
		  AND status <> 'CANCELLED'
		LIMIT 1
	`, key.PatientID, key.FamilyMemberID, key.DoctorBranchID, DateOf(key.Date))
	return scanAppointment(row)
}

func (s *PgStore) CreateAppointment(ctx context.Context, a *Appointment) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, a.ID, a.GlobalID, a.BookingID, a.PatientID, a.FamilyMemberID, a.DoctorBranchID, a.BranchID,
		a.SlotID, DateOf(a.AppointmentDate), a.Serial, string(a.Status), a.CancelReason, a.ExpectedTime,
		a.CheckedInAt, a.CompletedAt, a.CancelledAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (s *PgStore) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, classify(err)
	}
	return a, nil
}

// UpdateAppointment writes the mutable fields. global_id and booking_id are
// never rewritten.
func (s *PgStore) UpdateAppointment(ctx context.Context, a *Appointment) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE appointments
		SET slot_id = $2,
		    appointment_date = $3,
		    serial = $4,
		    status = $5,
		    cancel_reason = $6,
		    expected_time = $7,
		    checked_in_at = $8,
		    completed_at = $9,
		    cancelled_at = $10,
		    updated_at = $11
		WHERE id = $1
	`, a.ID, a.SlotID, DateOf(a.AppointmentDate), a.Serial, string(a.Status), a.CancelReason, a.ExpectedTime,
		a.CheckedInAt, a.CompletedAt, a.CancelledAt, a.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *PgStore) ListQueueEntries(ctx context.Context, branchID uuid.UUID, date time.Time) ([]QueueEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT a.id, a.global_id, a.booking_id, a.patient_id, a.family_member_id, a.doctor_branch_id, a.branch_id,
		       a.slot_id, a.appointment_date, a.serial, a.status, a.cancel_reason, a.expected_time, a.checked_in_at,
		       a.completed_at, a.cancelled_at, a.created_at, a.updated_at,
		       d.doctor_id, s.slot_date, s.start_time, s.end_time, s.total_slots, s.duration_minutes
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		JOIN doctor_branches d ON d.id = a.doctor_branch_id
		WHERE a.branch_id = $1
		  AND a.appointment_date = $2
		  AND a.status IN ('UPCOMING', 'CHECKED_IN')
	`, branchID, DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []QueueEntry
	for rows.Next() {
		var e QueueEntry
		var start, end pgtype.Time
		dest := append(appointmentDest(&e.Appointment),
			&e.DoctorID, &e.Slot.Date, &start, &end, &e.Slot.TotalSlots, &e.Slot.DurationMinutes)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		e.Slot.StartTime, e.Slot.EndTime = fromPgTime(start), fromPgTime(end)
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *PgStore) CountQueue(ctx context.Context, branchID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE branch_id = $1
		  AND appointment_date = $2
		  AND status IN ('UPCOMING', 'CHECKED_IN')
	`, branchID, DateOf(date)).Scan(&n)
	return n, err
}

// Outbox

func (s *PgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func (s *PgStore) ListUnpublishedEvents(ctx context.Context, limit int) ([]EventLog, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at, published_at, attempts, last_error
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EventLog
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt,
			&ev.PublishedAt, &ev.Attempts, &ev.LastError); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (s *PgStore) MarkEventPublished(ctx context.Context, id int64, at time.Time) error {
	_, err := s.q.Exec(ctx, `
		UPDATE event_logs
		SET published_at = $2,
		    attempts = attempts + 1,
		    last_error = NULL
		WHERE id = $1
	`, id, at)
	return err
}

func (s *PgStore) MarkEventFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.q.Exec(ctx, `
		UPDATE event_logs
		SET attempts = attempts + 1,
		    last_error = $2
		WHERE id = $1
	`, id, reason)
	return err
}

var _ Store = (*PgStore)(nil)
