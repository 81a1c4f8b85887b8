package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memDB is an in-memory stand-in for Postgres. A transaction holds mu for its
// whole lifetime, so transactions are serial, and a failed one restores the
// snapshot taken when it began.
type memDB struct {
	mu sync.Mutex

	doctorBranches map[uuid.UUID]DoctorBranch
	patients       map[uuid.UUID]bool
	members        map[uuid.UUID]uuid.UUID // member -> patient
	schedules      map[uuid.UUID]WeeklySchedule
	breaks         []ScheduleBreak
	leaves         map[uuid.UUID]Leave
	slots          map[uuid.UUID]Slot
	appointments   map[uuid.UUID]Appointment
	events         []EventLog
	bookingSeq     int64

	// fault injection
	contention       int
	lockFailures     map[uuid.UUID]error
	capacityFailures map[uuid.UUID]error
	branchFailures   map[uuid.UUID]error
	txCount          int
}

type memSnapshot struct {
	schedules    map[uuid.UUID]WeeklySchedule
	breaks       []ScheduleBreak
	leaves       map[uuid.UUID]Leave
	slots        map[uuid.UUID]Slot
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	bookingSeq   int64
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *memDB) snapshot() memSnapshot {
	return memSnapshot{
		schedules:    copyMap(db.schedules),
		breaks:       append([]ScheduleBreak(nil), db.breaks...),
		leaves:       copyMap(db.leaves),
		slots:        copyMap(db.slots),
		appointments: copyMap(db.appointments),
		events:       append([]EventLog(nil), db.events...),
		bookingSeq:   db.bookingSeq,
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.schedules = s.schedules
	db.breaks = s.breaks
	db.leaves = s.leaves
	db.slots = s.slots
	db.appointments = s.appointments
	db.events = s.events
	db.bookingSeq = s.bookingSeq
}

type memStore struct {
	db *memDB
	tx bool
}

func newMemStore() *memStore {
	return &memStore{db: &memDB{
		doctorBranches:   map[uuid.UUID]DoctorBranch{},
		patients:         map[uuid.UUID]bool{},
		members:          map[uuid.UUID]uuid.UUID{},
		schedules:        map[uuid.UUID]WeeklySchedule{},
		leaves:           map[uuid.UUID]Leave{},
		slots:            map[uuid.UUID]Slot{},
		appointments:     map[uuid.UUID]Appointment{},
		lockFailures:     map[uuid.UUID]error{},
		capacityFailures: map[uuid.UUID]error{},
		branchFailures:   map[uuid.UUID]error{},
	}}
}

// lock takes the database mutex unless the store is already inside a transaction.
func (s *memStore) lock() func() {
	if s.tx {
		return func() {}
	}
	s.db.mu.Lock()
	return s.db.mu.Unlock
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.tx {
		return fn(ctx, s)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.txCount++
	if s.db.contention > 0 {
		s.db.contention--
		return ErrLockContention
	}

	snap := s.db.snapshot()
	if err := fn(ctx, &memStore{db: s.db, tx: true}); err != nil {
		s.db.restore(snap)
		return err
	}
	return nil
}

// Fixture helpers

func (s *memStore) addDoctorBranch() DoctorBranch {
	defer s.lock()()
	db := DoctorBranch{ID: uuid.New(), DoctorID: uuid.New(), BranchID: uuid.New(), Active: true}
	s.db.doctorBranches[db.ID] = db
	return db
}

func (s *memStore) addDoctorBranchAt(branchID uuid.UUID) DoctorBranch {
	defer s.lock()()
	db := DoctorBranch{ID: uuid.New(), DoctorID: uuid.New(), BranchID: branchID, Active: true}
	s.db.doctorBranches[db.ID] = db
	return db
}

func (s *memStore) addPatient() uuid.UUID {
	defer s.lock()()
	id := uuid.New()
	s.db.patients[id] = true
	return id
}

func (s *memStore) addFamilyMember(patientID uuid.UUID) uuid.UUID {
	defer s.lock()()
	id := uuid.New()
	s.db.members[id] = patientID
	return id
}

func (s *memStore) putSlot(sl Slot) Slot {
	defer s.lock()()
	if sl.ID == uuid.Nil {
		sl.ID = uuid.New()
	}
	if sl.GlobalID == uuid.Nil {
		sl.GlobalID = uuid.New()
	}
	sl.Date = DateOf(sl.Date)
	s.db.slots[sl.ID] = sl
	return sl
}

func (s *memStore) slot(id uuid.UUID) Slot {
	defer s.lock()()
	return s.db.slots[id]
}

func (s *memStore) putAppointment(a Appointment) {
	defer s.lock()()
	s.db.appointments[a.ID] = a
}

func (s *memStore) eventTypes() []string {
	defer s.lock()()
	out := make([]string, 0, len(s.db.events))
	for _, ev := range s.db.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (s *memStore) setContention(n int) {
	defer s.lock()()
	s.db.contention = n
}

func (s *memStore) failLock(slotID uuid.UUID, err error) {
	defer s.lock()()
	s.db.lockFailures[slotID] = err
}

func (s *memStore) failCapacityUpdate(slotID uuid.UUID, err error) {
	defer s.lock()()
	s.db.capacityFailures[slotID] = err
}

func (s *memStore) failBranch(id uuid.UUID, err error) {
	defer s.lock()()
	s.db.branchFailures[id] = err
}

func (s *memStore) transactions() int {
	defer s.lock()()
	return s.db.txCount
}

// Directory

func (s *memStore) GetDoctorBranch(_ context.Context, id uuid.UUID) (*DoctorBranch, error) {
	defer s.lock()()
	if err := s.db.branchFailures[id]; err != nil {
		return nil, err
	}
	db, ok := s.db.doctorBranches[id]
	if !ok {
		return nil, ErrDoctorBranchNotFound
	}
	return &db, nil
}

func (s *memStore) ListActiveDoctorBranches(context.Context) ([]DoctorBranch, error) {
	defer s.lock()()
	var out []DoctorBranch
	for _, db := range s.db.doctorBranches {
		if db.Active {
			out = append(out, db)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *memStore) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	defer s.lock()()
	return s.db.patients[id], nil
}

func (s *memStore) FamilyMemberExists(_ context.Context, patientID, memberID uuid.UUID) (bool, error) {
	defer s.lock()()
	owner, ok := s.db.members[memberID]
	return ok && owner == patientID, nil
}

// Schedules

func (s *memStore) UpsertWeeklySchedule(_ context.Context, ws *WeeklySchedule) error {
	defer s.lock()()
	now := time.Now()
	for id, existing := range s.db.schedules {
		if existing.DoctorBranchID == ws.DoctorBranchID && existing.DayOfWeek == ws.DayOfWeek {
			ws.ID = id
			ws.CreatedAt = existing.CreatedAt
			ws.UpdatedAt = now
			s.db.schedules[id] = *ws
			return nil
		}
	}
	ws.CreatedAt, ws.UpdatedAt = now, now
	s.db.schedules[ws.ID] = *ws
	return nil
}

func (s *memStore) GetWeeklySchedule(_ context.Context, doctorBranchID uuid.UUID, day time.Weekday) (*WeeklySchedule, error) {
	defer s.lock()()
	for _, ws := range s.db.schedules {
		if ws.DoctorBranchID == doctorBranchID && ws.DayOfWeek == day {
			ws.Ranges = append([]TimeRange(nil), ws.Ranges...)
			return &ws, nil
		}
	}
	return nil, ErrScheduleNotFound
}

func (s *memStore) CreateBreak(_ context.Context, b *ScheduleBreak) error {
	defer s.lock()()
	s.db.breaks = append(s.db.breaks, *b)
	return nil
}

func (s *memStore) ListBreaks(_ context.Context, doctorBranchID uuid.UUID, day time.Weekday) ([]ScheduleBreak, error) {
	defer s.lock()()
	var out []ScheduleBreak
	for _, b := range s.db.breaks {
		if b.DoctorBranchID == doctorBranchID && b.DayOfWeek == day {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) CreateLeave(_ context.Context, l *Leave) error {
	defer s.lock()()
	s.db.leaves[l.ID] = *l
	return nil
}

func (s *memStore) ApproveLeave(_ context.Context, id uuid.UUID) (*Leave, error) {
	defer s.lock()()
	l, ok := s.db.leaves[id]
	if !ok {
		return nil, ErrLeaveNotFound
	}
	l.Approved = true
	s.db.leaves[id] = l
	return &l, nil
}

func (s *memStore) ListApprovedLeaves(_ context.Context, doctorBranchID uuid.UUID, date time.Time) ([]Leave, error) {
	defer s.lock()()
	var out []Leave
	for _, l := range s.db.leaves {
		if l.DoctorBranchID == doctorBranchID && l.Approved && l.Covers(date) {
			out = append(out, l)
		}
	}
	return out, nil
}

// Slots

func (s *memStore) InsertSlotsIfAbsent(_ context.Context, slots []Slot) (int, error) {
	defer s.lock()()
	inserted := 0
	for _, sl := range slots {
		exists := false
		for _, cur := range s.db.slots {
			if cur.DoctorBranchID == sl.DoctorBranchID && cur.Date.Equal(DateOf(sl.Date)) && cur.StartTime == sl.StartTime {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		sl.Date = DateOf(sl.Date)
		s.db.slots[sl.ID] = sl
		inserted++
	}
	return inserted, nil
}

func (s *memStore) ListSlots(_ context.Context, doctorBranchID uuid.UUID, date time.Time) ([]Slot, error) {
	defer s.lock()()
	var out []Slot
	for _, sl := range s.db.slots {
		if sl.DoctorBranchID == doctorBranchID && sl.Date.Equal(DateOf(date)) {
			out = append(out, sl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (s *memStore) GetSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	defer s.lock()()
	sl, ok := s.db.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &sl, nil
}

func (s *memStore) LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	if s.tx {
		if err := s.db.lockFailures[id]; err != nil {
			return nil, err
		}
	}
	return s.GetSlot(ctx, id)
}

func (s *memStore) UpdateSlotCapacity(_ context.Context, sl *Slot) error {
	defer s.lock()()
	if err := s.db.capacityFailures[sl.ID]; err != nil {
		return err
	}
	cur, ok := s.db.slots[sl.ID]
	if !ok {
		return ErrSlotNotFound
	}
	cur.AvailableSlots = sl.AvailableSlots
	cur.Status = sl.Status
	s.db.slots[sl.ID] = cur
	return nil
}

func (s *memStore) ListDueReleases(_ context.Context, now time.Time, limit int) ([]Slot, error) {
	defer s.lock()()
	var out []Slot
	for _, sl := range s.db.slots {
		if sl.Status == SlotPending && (sl.ReleaseAt == nil || !sl.ReleaseAt.After(now)) {
			out = append(out, sl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) UpdatePendingSlotStatus(_ context.Context, id uuid.UUID, status SlotStatus) (bool, error) {
	defer s.lock()()
	sl, ok := s.db.slots[id]
	if !ok || sl.Status != SlotPending {
		return false, nil
	}
	sl.Status = status
	s.db.slots[id] = sl
	return true, nil
}

// Appointments

func sameMember(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *memStore) NextBookingNumber(context.Context) (int64, error) {
	defer s.lock()()
	s.db.bookingSeq++
	return s.db.bookingSeq, nil
}

func (s *memStore) findActive(key ActiveKey) (Appointment, bool) {
	for _, a := range s.db.appointments {
		if a.Status != StatusCancelled &&
			a.PatientID == key.PatientID &&
			sameMember(a.FamilyMemberID, key.FamilyMemberID) &&
			a.DoctorBranchID == key.DoctorBranchID &&
			a.AppointmentDate.Equal(DateOf(key.Date)) {
			return a, true
		}
	}
	return Appointment{}, false
}

func (s *memStore) FindActiveAppointment(_ context.Context, key ActiveKey) (*Appointment, error) {
	defer s.lock()()
	a, ok := s.findActive(key)
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *memStore) CreateAppointment(_ context.Context, a *Appointment) error {
	defer s.lock()()
	if _, ok := s.findActive(a.ActiveKey()); ok {
		return ErrDuplicateBooking
	}
	cp := *a
	cp.AppointmentDate = DateOf(cp.AppointmentDate)
	s.db.appointments[a.ID] = cp
	return nil
}

func (s *memStore) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	defer s.lock()()
	a, ok := s.db.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *memStore) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.GetAppointment(ctx, id)
}

func (s *memStore) UpdateAppointment(_ context.Context, a *Appointment) error {
	defer s.lock()()
	if _, ok := s.db.appointments[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	cp := *a
	cp.AppointmentDate = DateOf(cp.AppointmentDate)
	s.db.appointments[a.ID] = cp
	return nil
}

func (s *memStore) ListQueueEntries(_ context.Context, branchID uuid.UUID, date time.Time) ([]QueueEntry, error) {
	defer s.lock()()
	var out []QueueEntry
	for _, a := range s.db.appointments {
		if a.BranchID != branchID || !a.AppointmentDate.Equal(DateOf(date)) {
			continue
		}
		if a.Status != StatusUpcoming && a.Status != StatusCheckedIn {
			continue
		}
		out = append(out, QueueEntry{
			Appointment: a,
			DoctorID:    s.db.doctorBranches[a.DoctorBranchID].DoctorID,
			Slot:        s.db.slots[a.SlotID].Window(),
		})
	}
	return out, nil
}

func (s *memStore) CountQueue(ctx context.Context, branchID uuid.UUID, date time.Time) (int, error) {
	entries, err := s.ListQueueEntries(ctx, branchID, date)
	return len(entries), err
}

// Outbox

func (s *memStore) InsertEvent(_ context.Context, ev EventLog) error {
	defer s.lock()()
	ev.ID = int64(len(s.db.events) + 1)
	s.db.events = append(s.db.events, ev)
	return nil
}

func (s *memStore) ListUnpublishedEvents(_ context.Context, limit int) ([]EventLog, error) {
	defer s.lock()()
	var out []EventLog
	for _, ev := range s.db.events {
		if ev.PublishedAt == nil && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memStore) MarkEventPublished(_ context.Context, id int64, at time.Time) error {
	defer s.lock()()
	for i := range s.db.events {
		if s.db.events[i].ID == id {
			s.db.events[i].PublishedAt = &at
			s.db.events[i].Attempts++
		}
	}
	return nil
}

func (s *memStore) MarkEventFailed(_ context.Context, id int64, reason string) error {
	defer s.lock()()
	for i := range s.db.events {
		if s.db.events[i].ID == id {
			s.db.events[i].Attempts++
			s.db.events[i].LastError = &reason
		}
	}
	return nil
}

var _ Store = (*memStore)(nil)
