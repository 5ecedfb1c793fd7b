package service

import (
	"encoding/json"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"or-scheduler/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// store is an in-memory stand-in for every repository. The validator reads it
// from several goroutines, so all access goes through mu.
type store struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]entity.Booking
	requests map[uuid.UUID]entity.SurgeryRequest
	rooms    map[uuid.UUID]entity.Room
	staff    map[uuid.UUID]entity.Staff
	surgeons map[uuid.UUID]entity.Surgeon
	mobile   map[string]entity.MobileEquipment
	patients map[uuid.UUID]entity.Patient

	// failUpdateOf makes Update of that booking report a lost race.
	failUpdateOf uuid.UUID
}

func newStore() *store {
	return &store{
		bookings: make(map[uuid.UUID]entity.Booking),
		requests: make(map[uuid.UUID]entity.SurgeryRequest),
		rooms:    make(map[uuid.UUID]entity.Room),
		staff:    make(map[uuid.UUID]entity.Staff),
		surgeons: make(map[uuid.UUID]entity.Surgeon),
		mobile:   make(map[string]entity.MobileEquipment),
		patients: make(map[uuid.UUID]entity.Patient),
	}
}

// clone deep-copies through JSON so callers never share slices with the store.
func clone[T any](v T) T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func (s *store) deps(now time.Time) Deps {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return Deps{
		Log:      log,
		Bookings: &fakeBookings{s},
		Requests: &fakeRequests{s},
		Rooms:    &fakeRooms{s},
		Staff:    &fakeStaff{s},
		Surgeons: &fakeSurgeons{s},
		Mobile:   &fakeMobile{s},
		Patients: &fakePatients{s},
		Now:      func() time.Time { return now },
		Location: time.UTC,
	}
}

func (s *store) booking(t *testing.T, id uuid.UUID) entity.Booking {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		t.Fatalf("booking %s not in store", id)
	}
	return clone(b)
}

func (s *store) putBooking(b entity.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Version == 0 {
		b.Version = 1
	}
	s.bookings[b.ID] = clone(b)
}

func sortByStart(bookings []entity.Booking) []entity.Booking {
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].Schedule.PlannedStartTime.Before(bookings[j].Schedule.PlannedStartTime)
	})
	return bookings
}

// =============================================================================
// Bookings
// =============================================================================

type fakeBookings struct{ s *store }

func (f *fakeBookings) Create(db *gorm.DB, booking *entity.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if booking.Version == 0 {
		booking.Version = 1
	}
	f.s.putBooking(*booking)
	return nil
}

func (f *fakeBookings) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Booking, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	b, ok := f.s.bookings[id]
	if !ok {
		return nil, nil
	}
	out := clone(b)
	return &out, nil
}

func (f *fakeBookings) Update(db *gorm.DB, booking *entity.Booking) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	stored, ok := f.s.bookings[booking.ID]
	if !ok || stored.Version != booking.Version || booking.ID == f.s.failUpdateOf {
		return 0, nil
	}
	booking.Version++
	f.s.bookings[booking.ID] = clone(*booking)
	return 1, nil
}

func (f *fakeBookings) filter(keep func(b *entity.Booking) bool) []entity.Booking {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []entity.Booking
	for _, b := range f.s.bookings {
		b := b
		if keep(&b) {
			out = append(out, clone(b))
		}
	}
	return sortByStart(out)
}

func (f *fakeBookings) FindOverlapping(db *gorm.DB, q entity.OverlapQuery) ([]entity.Booking, error) {
	return f.filter(q.Overlaps), nil
}

func (f *fakeBookings) FindOccupying(db *gorm.DB, q entity.OccupancyQuery) ([]entity.Booking, error) {
	return f.filter(func(b *entity.Booking) bool {
		if b.ID == q.ExcludeID || !b.HasStatus(q.Statuses...) {
			return false
		}
		return q.RoomID == nil || b.RoomID == *q.RoomID
	}), nil
}

func (f *fakeBookings) FindRoomQueue(db *gorm.DB, q entity.RoomQueueQuery) ([]entity.Booking, error) {
	out := f.filter(func(b *entity.Booking) bool {
		if b.RoomID != q.RoomID || b.ID == q.ExcludeID || b.Schedule.PlannedStartTime.Before(q.From) {
			return false
		}
		if q.SkipEmergency && b.IsEmergency() {
			return false
		}
		if len(q.Statuses) > 0 {
			return b.HasStatus(q.Statuses...)
		}
		return b.IsActive()
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeBookings) SumSurgeonMinutes(db *gorm.DB, surgeonID uuid.UUID, from, to time.Time, excludeID uuid.UUID) (int64, error) {
	var total int64
	for _, b := range f.filter(func(b *entity.Booking) bool {
		return b.Team.SurgeonID == surgeonID && b.ID != excludeID && b.Status != entity.BookingStatusCancelled &&
			!b.Schedule.PlannedStartTime.Before(from) && !b.Schedule.PlannedEndTime.After(to)
	}) {
		total += int64(b.Schedule.PlannedEndTime.Sub(b.Schedule.PlannedStartTime) / time.Minute)
	}
	return total, nil
}

func (f *fakeBookings) CountDelayed(db *gorm.DB, q entity.DelayStatsQuery) (int64, error) {
	return int64(len(f.filter(func(b *entity.Booking) bool {
		if b.Status != entity.BookingStatusDelayed {
			return false
		}
		if q.SurgeonID != nil && b.Team.SurgeonID != *q.SurgeonID {
			return false
		}
		return q.RoomID == nil || b.RoomID == *q.RoomID
	}))), nil
}

func (f *fakeBookings) FindAll(db *gorm.DB, filter entity.BookingFilter) ([]entity.Booking, error) {
	return f.filter(func(b *entity.Booking) bool {
		if filter.RoomID != nil && b.RoomID != *filter.RoomID {
			return false
		}
		if filter.SurgeonID != nil && b.Team.SurgeonID != *filter.SurgeonID {
			return false
		}
		return filter.Status == nil || b.Status == *filter.Status
	}), nil
}

// =============================================================================
// Requests
// =============================================================================

type fakeRequests struct{ s *store }

func (f *fakeRequests) Create(db *gorm.DB, request *entity.SurgeryRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.requests[request.ID] = clone(*request)
	return nil
}

func (f *fakeRequests) FindByID(db *gorm.DB, id uuid.UUID) (*entity.SurgeryRequest, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.requests[id]
	if !ok {
		return nil, nil
	}
	out := clone(r)
	return &out, nil
}

func (f *fakeRequests) FindByBookingID(db *gorm.DB, bookingID uuid.UUID) (*entity.SurgeryRequest, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, r := range f.s.requests {
		if r.BookingID != nil && *r.BookingID == bookingID {
			out := clone(r)
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeRequests) FindAll(db *gorm.DB, status *entity.RequestStatus) ([]entity.SurgeryRequest, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []entity.SurgeryRequest
	for _, r := range f.s.requests {
		if status == nil || r.Status == *status {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (f *fakeRequests) FindByRequester(db *gorm.DB, surgeonID uuid.UUID) ([]entity.SurgeryRequest, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []entity.SurgeryRequest
	for _, r := range f.s.requests {
		if r.RequestedBy == surgeonID {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (f *fakeRequests) Update(db *gorm.DB, request *entity.SurgeryRequest) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.requests[request.ID] = clone(*request)
	return nil
}

// =============================================================================
// Directory
// =============================================================================

type fakeRooms struct{ s *store }

func (f *fakeRooms) Create(db *gorm.DB, room *entity.Room) error {
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	return f.Update(db, room)
}

func (f *fakeRooms) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Room, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.rooms[id]
	if !ok {
		return nil, nil
	}
	out := clone(r)
	return &out, nil
}

func (f *fakeRooms) FindActive(db *gorm.DB) ([]entity.Room, error) {
	all, _ := f.FindAll(db)
	out := all[:0]
	for _, r := range all {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRooms) FindAll(db *gorm.DB) ([]entity.Room, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]entity.Room, 0, len(f.s.rooms))
	for _, r := range f.s.rooms {
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f *fakeRooms) Update(db *gorm.DB, room *entity.Room) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.rooms[room.ID] = clone(*room)
	return nil
}

type fakeStaff struct{ s *store }

func (f *fakeStaff) Create(db *gorm.DB, staff *entity.Staff) error {
	if staff.ID == uuid.Nil {
		staff.ID = uuid.New()
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.staff[staff.ID] = *staff
	return nil
}

func (f *fakeStaff) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Staff, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	st, ok := f.s.staff[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (f *fakeStaff) FindByIDs(db *gorm.DB, ids []uuid.UUID) ([]entity.Staff, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []entity.Staff
	for _, id := range ids {
		if st, ok := f.s.staff[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStaff) FindActiveByRole(db *gorm.DB, role entity.StaffRole) ([]entity.Staff, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []entity.Staff
	for _, st := range f.s.staff {
		if st.Active && st.Role == role {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStaff) FindAll(db *gorm.DB) ([]entity.Staff, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []entity.Staff
	for _, st := range f.s.staff {
		out = append(out, st)
	}
	return out, nil
}

type fakeSurgeons struct{ s *store }

func (f *fakeSurgeons) Create(db *gorm.DB, surgeon *entity.Surgeon) error {
	if surgeon.ID == uuid.Nil {
		surgeon.ID = uuid.New()
	}
	return f.Update(db, surgeon)
}

func (f *fakeSurgeons) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Surgeon, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	sg, ok := f.s.surgeons[id]
	if !ok {
		return nil, nil
	}
	out := clone(sg)
	return &out, nil
}

func (f *fakeSurgeons) FindAll(db *gorm.DB) ([]entity.Surgeon, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []entity.Surgeon
	for _, sg := range f.s.surgeons {
		out = append(out, clone(sg))
	}
	return out, nil
}

func (f *fakeSurgeons) Update(db *gorm.DB, surgeon *entity.Surgeon) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.surgeons[surgeon.ID] = clone(*surgeon)
	return nil
}

type fakeMobile struct{ s *store }

func (f *fakeMobile) Upsert(db *gorm.DB, item *entity.MobileEquipment) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	f.s.mobile[item.Name] = *item
	return nil
}

func (f *fakeMobile) FindActive(db *gorm.DB) ([]entity.MobileEquipment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []entity.MobileEquipment
	for _, m := range f.s.mobile {
		if m.Active {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakePatients struct{ s *store }

func (f *fakePatients) Create(db *gorm.DB, patient *entity.Patient) error {
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	return f.Update(db, patient)
}

func (f *fakePatients) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Patient, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePatients) Update(db *gorm.DB, patient *entity.Patient) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.patients[patient.ID] = *patient
	return nil
}

// =============================================================================
// Fixtures
// =============================================================================

// day is a fixed Monday used by every scenario.
var day = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type fixture struct {
	store   *store
	room    entity.Room
	room2   entity.Room
	surgeon entity.Surgeon
	anes    entity.Staff
	nurse   entity.Staff
	patient entity.Patient
}

// newFixture seeds two general rooms, one surgeon, an anesthesiologist, a nurse
// and a PAC-cleared patient.
func newFixture() *fixture {
	s := newStore()
	f := &fixture{
		store: s,
		room: entity.Room{
			ID: uuid.New(), Code: "OT-1", Name: "General Theatre 1", Active: true,
			Specializations: []string{"general"}, HVACClass: "Laminar Airflow",
		},
		room2: entity.Room{
			ID: uuid.New(), Code: "OT-2", Name: "General Theatre 2", Active: true,
			Specializations: []string{"general"}, HVACClass: "Standard",
		},
		surgeon: entity.Surgeon{ID: uuid.New(), Code: "S-1", Name: "Dr. Rao", MaxHoursPerWeek: 48, Active: true},
		anes:    entity.Staff{ID: uuid.New(), Code: "A-1", Name: "Dr. Iyer", Role: entity.StaffRoleAnesthesiologist, Active: true},
		nurse:   entity.Staff{ID: uuid.New(), Code: "N-1", Name: "Nurse Mary", Role: entity.StaffRoleNurse, Active: true},
		patient: entity.Patient{ID: uuid.New(), MRN: "MRN-1", Name: "Patient One", PACStatus: entity.PACStatusCleared},
	}
	s.rooms[f.room.ID] = f.room
	s.rooms[f.room2.ID] = f.room2
	s.surgeons[f.surgeon.ID] = f.surgeon
	s.staff[f.anes.ID] = f.anes
	s.staff[f.nurse.ID] = f.nurse
	s.patients[f.patient.ID] = f.patient
	return f
}

func (f *fixture) team() entity.Team {
	return entity.Team{
		SurgeonID:          f.surgeon.ID,
		AnesthesiologistID: f.anes.ID,
		AnesthesiaType:     entity.AnesthesiaSpinal,
		NurseIDs:           entity.NurseIDStrings([]uuid.UUID{f.nurse.ID}),
	}
}

// seedBooking stores a Scheduled booking in roomID for [start, end).
func (f *fixture) seedBooking(code string, roomID uuid.UUID, start, end time.Time, mutate ...func(*entity.Booking)) entity.Booking {
	b := entity.Booking{
		ID:        uuid.New(),
		CaseCode:  code,
		Title:     "Appendectomy",
		PatientID: f.patient.ID,
		RoomID:    roomID,
		Priority:  entity.PriorityElective,
		Team:      f.team(),
		Schedule:  entity.NewSchedule(start, end),
		Status:    entity.BookingStatusScheduled,
		Arrangement: entity.Arrangement{
			SurgeonAckStatus: entity.AckNotRequired,
		},
		RoomStatus: entity.RoomStatusIdle,
		Version:    1,
	}
	for _, m := range mutate {
		m(&b)
	}
	f.store.putBooking(b)
	return b
}

func completeChecklist() entity.PreOpChecklist {
	return entity.PreOpChecklist{
		IdentityVerified:        true,
		ConsentSigned:           true,
		SiteMarked:              true,
		PulseOximeterFunctional: true,
		AllergiesReviewed:       true,
		NPOConfirmed:            true,
		EquipmentReady:          true,
		SafetyTimeout:           true,
		AnesthesiaMachineCheck:  entity.MachineCheckPass,
	}
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
