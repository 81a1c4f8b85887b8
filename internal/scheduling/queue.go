package scheduling

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type QueueSort string

const (
	SortActualSequence QueueSort = "actual_sequence"
	SortCheckinTime    QueueSort = "checkin_time"
)

func ParseQueueSort(s string) (QueueSort, error) {
	switch QueueSort(s) {
	case SortActualSequence, SortCheckinTime:
		return QueueSort(s), nil
	case "":
		return "", validationf("sort_by is required (actual_sequence or checkin_time)")
	default:
		return "", validationf("unknown sort_by %q", s)
	}
}

type QueueQuery struct {
	BranchID uuid.UUID
	Date     *time.Time
	SortBy   QueueSort
	Limit    int
	Now      time.Time
}

type QueueItem struct {
	AppointmentID             uuid.UUID         `json:"appointment_id"`
	DoctorID                  uuid.UUID         `json:"doctor_id"`
	PatientID                 uuid.UUID         `json:"patient_id"`
	CheckinTime               *time.Time        `json:"checkin_time"`
	PlannedSequence           int               `json:"planned_sequence"`
	ActualSequence            int               `json:"actual_sequence"`
	EstimatedConsultationTime time.Time         `json:"estimated_consultation_time"`
	WaitingMinutes            *int              `json:"waiting_minutes,omitempty"`
	Status                    AppointmentStatus `json:"status"`
}

type QueueBoard struct {
	TotalCount int         `json:"total_count"`
	Items      []QueueItem `json:"items"`
}

// QueueSequencer builds the live waiting-room board. It only reads.
type QueueSequencer struct {
	store Store
	loc   *time.Location
}

func NewQueueSequencer(store Store, loc *time.Location) *QueueSequencer {
	if loc == nil {
		loc = time.UTC
	}
	return &QueueSequencer{store: store, loc: loc}
}

func (q *QueueSequencer) LiveQueue(ctx context.Context, query QueueQuery) (*QueueBoard, error) {
	if query.BranchID == uuid.Nil {
		return nil, validationf("branch_id is required")
	}
	if _, err := ParseQueueSort(string(query.SortBy)); err != nil {
		return nil, err
	}
	if query.Now.IsZero() {
		query.Now = time.Now()
	}
	date := q.resolveDate(query.Date, query.Now)

	entries, err := q.store.ListQueueEntries(ctx, query.BranchID, date)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	board := SequenceQueue(entries, query.SortBy, query.Now, query.Limit, q.loc)
	return &board, nil
}

// QueueCount counts the appointments still expected at the branch on date.
func (q *QueueSequencer) QueueCount(ctx context.Context, branchID uuid.UUID, date *time.Time) (int, error) {
	if branchID == uuid.Nil {
		return 0, validationf("branch_id is required")
	}
	n, err := q.store.CountQueue(ctx, branchID, q.resolveDate(date, time.Now()))
	if err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

func (q *QueueSequencer) resolveDate(date *time.Time, now time.Time) time.Time {
	if date != nil {
		return DateOf(*date)
	}
	return DateOf(now.In(q.loc))
}

// SequenceQueue orders entries and fills in planned and actual positions,
// consultation estimates and waiting time. Rows that are neither UPCOMING nor
// CHECKED_IN are ignored. limit <= 0 returns every row.
func SequenceQueue(entries []QueueEntry, sortBy QueueSort, now time.Time, limit int, loc *time.Location) QueueBoard {
	rows := make([]QueueEntry, 0, len(entries))
	for _, e := range entries {
		switch e.Appointment.Status {
		case StatusUpcoming, StatusCheckedIn:
			rows = append(rows, e)
		case StatusCompleted, StatusCancelled:
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return plannedBefore(&rows[i].Appointment, &rows[j].Appointment)
	})
	planned := make(map[uuid.UUID]int, len(rows))
	for i := range rows {
		planned[rows[i].Appointment.ID] = i + 1
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Appointment.CheckedInAt, rows[j].Appointment.CheckedInAt
		switch {
		case a != nil && b != nil:
			if !a.Equal(*b) {
				return a.Before(*b)
			}
		case a != nil:
			return true
		case b != nil:
			return false
		}
		return planned[rows[i].Appointment.ID] < planned[rows[j].Appointment.ID]
	})

	items := make([]QueueItem, len(rows))
	inSlot := make(map[uuid.UUID]int)
	for i, e := range rows {
		a := e.Appointment
		inSlot[a.SlotID]++

		item := QueueItem{
			AppointmentID:             a.ID,
			DoctorID:                  e.DoctorID,
			PatientID:                 a.PatientID,
			CheckinTime:               a.CheckedInAt,
			PlannedSequence:           planned[a.ID],
			ActualSequence:            i + 1,
			EstimatedConsultationTime: a.ExpectedTime,
			Status:                    a.Status,
		}
		if est, err := EstimateExpectedTime(e.Slot, inSlot[a.SlotID], loc); err == nil {
			item.EstimatedConsultationTime = est
		}
		if a.Status == StatusCheckedIn && a.CheckedInAt != nil {
			w := waitingMinutes(*a.CheckedInAt, now)
			item.WaitingMinutes = &w
		}
		items[i] = item
	}

	// Actual order already puts checked-in rows first by timestamp, so the
	// raw check-in sort only differs in how ties are kept.
	if sortBy == SortCheckinTime {
		sort.SliceStable(items, func(i, j int) bool {
			a, b := items[i].CheckinTime, items[j].CheckinTime
			if a == nil || b == nil {
				return a != nil && b == nil
			}
			return a.Before(*b)
		})
	}

	board := QueueBoard{TotalCount: len(items), Items: items}
	if limit > 0 && limit < len(items) {
		board.Items = items[:limit]
	}
	return board
}

func plannedBefore(a, b *Appointment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Serial != b.Serial {
		return a.Serial < b.Serial
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func waitingMinutes(checkin, now time.Time) int {
	d := now.Sub(checkin)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
