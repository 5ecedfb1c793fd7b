package usecase

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"or-scheduler/internal/delivery/http/middleware"
	"or-scheduler/internal/domain/entity"
	"or-scheduler/internal/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// memStore backs every repository the usecases touch. Transactions still go
// through sqlmock, so Begin/Commit are observable while rows stay in memory.
type memStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]entity.Booking
	requests map[uuid.UUID]entity.SurgeryRequest
	rooms    map[uuid.UUID]entity.Room
	staff    map[uuid.UUID]entity.Staff
	surgeons map[uuid.UUID]entity.Surgeon
	patients map[uuid.UUID]entity.Patient
}

func copyOf[T any](v T) T {
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

type memBookings struct{ s *memStore }

func (m *memBookings) Create(db *gorm.DB, booking *entity.Booking) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.bookings[booking.ID] = copyOf(*booking)
	return nil
}

func (m *memBookings) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Booking, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	b, ok := m.s.bookings[id]
	if !ok {
		return nil, nil
	}
	out := copyOf(b)
	return &out, nil
}

func (m *memBookings) Update(db *gorm.DB, booking *entity.Booking) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.bookings[booking.ID]
	if !ok || stored.Version != booking.Version {
		return 0, nil
	}
	booking.Version++
	m.s.bookings[booking.ID] = copyOf(*booking)
	return 1, nil
}

func (m *memBookings) where(keep func(b *entity.Booking) bool) []entity.Booking {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []entity.Booking
	for _, b := range m.s.bookings {
		b := b
		if keep(&b) {
			out = append(out, copyOf(b))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Schedule.PlannedStartTime.Before(out[j].Schedule.PlannedStartTime)
	})
	return out
}

func (m *memBookings) FindOverlapping(db *gorm.DB, q entity.OverlapQuery) ([]entity.Booking, error) {
	return m.where(q.Overlaps), nil
}

func (m *memBookings) FindOccupying(db *gorm.DB, q entity.OccupancyQuery) ([]entity.Booking, error) {
	return m.where(func(b *entity.Booking) bool {
		return b.ID != q.ExcludeID && b.HasStatus(q.Statuses...) && (q.RoomID == nil || b.RoomID == *q.RoomID)
	}), nil
}

func (m *memBookings) FindRoomQueue(db *gorm.DB, q entity.RoomQueueQuery) ([]entity.Booking, error) {
	return m.where(func(b *entity.Booking) bool {
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
	}), nil
}

func (m *memBookings) SumSurgeonMinutes(db *gorm.DB, surgeonID uuid.UUID, from, to time.Time, excludeID uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *memBookings) CountDelayed(db *gorm.DB, q entity.DelayStatsQuery) (int64, error) {
	return 0, nil
}

func (m *memBookings) FindAll(db *gorm.DB, filter entity.BookingFilter) ([]entity.Booking, error) {
	return m.where(func(b *entity.Booking) bool { return true }), nil
}

type memRequests struct{ s *memStore }

func (m *memRequests) Create(db *gorm.DB, request *entity.SurgeryRequest) error {
	return m.Update(db, request)
}

func (m *memRequests) FindByID(db *gorm.DB, id uuid.UUID) (*entity.SurgeryRequest, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.requests[id]
	if !ok {
		return nil, nil
	}
	out := copyOf(r)
	return &out, nil
}

func (m *memRequests) FindByBookingID(db *gorm.DB, bookingID uuid.UUID) (*entity.SurgeryRequest, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, r := range m.s.requests {
		if r.BookingID != nil && *r.BookingID == bookingID {
			out := copyOf(r)
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memRequests) FindAll(db *gorm.DB, status *entity.RequestStatus) ([]entity.SurgeryRequest, error) {
	return nil, nil
}

func (m *memRequests) FindByRequester(db *gorm.DB, surgeonID uuid.UUID) ([]entity.SurgeryRequest, error) {
	return nil, nil
}

func (m *memRequests) Update(db *gorm.DB, request *entity.SurgeryRequest) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.requests[request.ID] = copyOf(*request)
	return nil
}

type memRooms struct{ s *memStore }

func (m *memRooms) Create(db *gorm.DB, room *entity.Room) error { return m.Update(db, room) }

func (m *memRooms) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Room, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.rooms[id]
	if !ok {
		return nil, nil
	}
	out := copyOf(r)
	return &out, nil
}

func (m *memRooms) FindActive(db *gorm.DB) ([]entity.Room, error) {
	all, _ := m.FindAll(db)
	out := all[:0]
	for _, r := range all {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRooms) FindAll(db *gorm.DB) ([]entity.Room, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]entity.Room, 0, len(m.s.rooms))
	for _, r := range m.s.rooms {
		out = append(out, copyOf(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memRooms) Update(db *gorm.DB, room *entity.Room) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.rooms[room.ID] = copyOf(*room)
	return nil
}

type memStaff struct{ s *memStore }

func (m *memStaff) Create(db *gorm.DB, staff *entity.Staff) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.staff[staff.ID] = *staff
	return nil
}

func (m *memStaff) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Staff, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	st, ok := m.s.staff[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *memStaff) FindByIDs(db *gorm.DB, ids []uuid.UUID) ([]entity.Staff, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []entity.Staff
	for _, id := range ids {
		if st, ok := m.s.staff[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *memStaff) FindActiveByRole(db *gorm.DB, role entity.StaffRole) ([]entity.Staff, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []entity.Staff
	for _, st := range m.s.staff {
		if st.Active && st.Role == role {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *memStaff) FindAll(db *gorm.DB) ([]entity.Staff, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]entity.Staff, 0, len(m.s.staff))
	for _, st := range m.s.staff {
		out = append(out, st)
	}
	return out, nil
}

type memSurgeons struct{ s *memStore }

func (m *memSurgeons) Create(db *gorm.DB, surgeon *entity.Surgeon) error { return m.Update(db, surgeon) }

func (m *memSurgeons) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Surgeon, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sg, ok := m.s.surgeons[id]
	if !ok {
		return nil, nil
	}
	out := copyOf(sg)
	return &out, nil
}

func (m *memSurgeons) FindAll(db *gorm.DB) ([]entity.Surgeon, error) {
	return nil, nil
}

func (m *memSurgeons) Update(db *gorm.DB, surgeon *entity.Surgeon) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.surgeons[surgeon.ID] = copyOf(*surgeon)
	return nil
}

type memMobile struct{}

func (memMobile) Upsert(db *gorm.DB, item *entity.MobileEquipment) error { return nil }

func (memMobile) FindActive(db *gorm.DB) ([]entity.MobileEquipment, error) { return nil, nil }

type memPatients struct{ s *memStore }

func (m *memPatients) Create(db *gorm.DB, patient *entity.Patient) error { return m.Update(db, patient) }

func (m *memPatients) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Patient, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memPatients) Update(db *gorm.DB, patient *entity.Patient) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.patients[patient.ID] = *patient
	return nil
}

// =============================================================================
// Recorders
// =============================================================================

type auditEntry struct {
	Method   string
	Action   string
	EntityID string
	InTx     bool
}

// recordingAudit notes each audit call and whether it ran inside a transaction.
type recordingAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func inTransaction(db *gorm.DB) bool {
	if db == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}

func (a *recordingAudit) record(method, action, entityID string, tx *gorm.DB) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{Method: method, Action: action, EntityID: entityID, InTx: inTransaction(tx)})
	return nil
}

func (a *recordingAudit) LogCreate(ctx context.Context, tx *gorm.DB, actorID *uuid.UUID, action string, entityName string, entityID string, newValue interface{}) error {
	return a.record("create", action, entityID, tx)
}

func (a *recordingAudit) LogUpdate(ctx context.Context, tx *gorm.DB, actorID *uuid.UUID, action string, entityName string, entityID string, oldValue, newValue interface{}) error {
	return a.record("update", action, entityID, tx)
}

func (a *recordingAudit) LogEvent(ctx context.Context, tx *gorm.DB, actorID *uuid.UUID, action string, entityName string, entityID string, details map[string]interface{}) error {
	return a.record("event", action, entityID, tx)
}

func (a *recordingAudit) actions() []auditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]auditEntry(nil), a.entries...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []service.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event service.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) ofType(t service.EventType) []service.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []service.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// Harness
// =============================================================================

var day = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type harness struct {
	store    *memStore
	db       *gorm.DB
	sql      sqlmock.Sqlmock
	audit    *recordingAudit
	notifier *recordingNotifier
	deps     service.Deps
	locker   *service.LocalSlotLocker

	admin   uuid.UUID
	room    entity.Room
	room2   entity.Room
	surgeon entity.Surgeon
	anes    entity.Staff
	nurse   entity.Staff
	patient entity.Patient
}

// newHarness seeds two general rooms, a team and a PAC-cleared patient.
func newHarness(t *testing.T) *harness {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	s := &memStore{
		bookings: make(map[uuid.UUID]entity.Booking),
		requests: make(map[uuid.UUID]entity.SurgeryRequest),
		rooms:    make(map[uuid.UUID]entity.Room),
		staff:    make(map[uuid.UUID]entity.Staff),
		surgeons: make(map[uuid.UUID]entity.Surgeon),
		patients: make(map[uuid.UUID]entity.Patient),
	}
	h := &harness{
		store:    s,
		db:       db,
		sql:      mock,
		audit:    &recordingAudit{},
		notifier: &recordingNotifier{},
		locker:   service.NewLocalSlotLocker(time.Second),
		admin:    uuid.New(),
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
	t.Cleanup(h.locker.Stop)

	s.rooms[h.room.ID] = h.room
	s.rooms[h.room2.ID] = h.room2
	s.surgeons[h.surgeon.ID] = h.surgeon
	s.staff[h.anes.ID] = h.anes
	s.staff[h.nurse.ID] = h.nurse
	s.patients[h.patient.ID] = h.patient

	h.deps = service.Deps{
		DB:       db,
		Log:      log,
		Bookings: &memBookings{s},
		Requests: &memRequests{s},
		Rooms:    &memRooms{s},
		Staff:    &memStaff{s},
		Surgeons: &memSurgeons{s},
		Mobile:   memMobile{},
		Patients: &memPatients{s},
		Now:      func() time.Time { return at(7, 0) },
		Location: time.UTC,
	}
	return h
}

func (h *harness) adminCtx() context.Context {
	return middleware.WithActor(context.Background(), h.admin, entity.RoleAdmin)
}

func (h *harness) services() (*service.ScheduleValidator, *service.RoomScorer, *service.Rescheduler, *service.Lifecycle) {
	scorer := service.NewRoomScorer(h.deps)
	return service.NewScheduleValidator(h.deps, service.ValidatorConfig{}), scorer, service.NewRescheduler(h.deps, scorer), service.NewLifecycle(h.deps)
}

func (h *harness) bookingUsecase() BookingUsecase {
	validator, _, rescheduler, lifecycle := h.services()
	return NewBookingUsecase(h.db, h.deps.Log, h.deps.Bookings, h.deps.Patients, validator, rescheduler, lifecycle,
		h.locker, h.notifier, h.audit, time.UTC)
}

func (h *harness) requestUsecase() SurgeryRequestUsecase {
	validator, scorer, rescheduler, lifecycle := h.services()
	return NewSurgeryRequestUsecase(h.db, h.deps.Log, h.deps.Requests, h.deps.Bookings, h.deps.Patients, scorer, validator,
		rescheduler, lifecycle, h.locker, h.notifier, h.audit)
}

// expectCommit expects n committed transactions.
func (h *harness) expectCommit(n int) {
	for i := 0; i < n; i++ {
		h.sql.ExpectBegin()
		h.sql.ExpectCommit()
	}
}

func (h *harness) team() entity.Team {
	return entity.Team{
		SurgeonID:          h.surgeon.ID,
		AnesthesiologistID: h.anes.ID,
		AnesthesiaType:     entity.AnesthesiaSpinal,
		NurseIDs:           entity.NurseIDStrings([]uuid.UUID{h.nurse.ID}),
	}
}

// otherTeam registers a second, disjoint team.
func (h *harness) otherTeam() entity.Team {
	surgeon := entity.Surgeon{ID: uuid.New(), Code: "S-2", Name: "Dr. Shah", Active: true}
	anes := entity.Staff{ID: uuid.New(), Code: "A-2", Name: "Dr. Nair", Role: entity.StaffRoleAnesthesiologist, Active: true}
	nurse := entity.Staff{ID: uuid.New(), Code: "N-2", Name: "Nurse Ann", Role: entity.StaffRoleNurse, Active: true}
	h.store.surgeons[surgeon.ID] = surgeon
	h.store.staff[anes.ID] = anes
	h.store.staff[nurse.ID] = nurse
	return entity.Team{
		SurgeonID:          surgeon.ID,
		AnesthesiologistID: anes.ID,
		AnesthesiaType:     entity.AnesthesiaSpinal,
		NurseIDs:           entity.NurseIDStrings([]uuid.UUID{nurse.ID}),
	}
}

// seedBooking stores a Scheduled booking in roomID for [start, end).
func (h *harness) seedBooking(code string, roomID uuid.UUID, start, end time.Time, team entity.Team) entity.Booking {
	b := entity.Booking{
		ID:          uuid.New(),
		CaseCode:    code,
		Title:       "Appendectomy",
		PatientID:   h.patient.ID,
		RoomID:      roomID,
		Priority:    entity.PriorityElective,
		Team:        team,
		Schedule:    entity.NewSchedule(start, end),
		Status:      entity.BookingStatusScheduled,
		Arrangement: entity.Arrangement{SurgeonAckStatus: entity.AckNotRequired},
		RoomStatus:  entity.RoomStatusIdle,
		Version:     1,
	}
	h.store.bookings[b.ID] = copyOf(b)
	return b
}

func (h *harness) booking(t *testing.T, id uuid.UUID) entity.Booking {
	t.Helper()
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	b, ok := h.store.bookings[id]
	require.True(t, ok, "booking %s not stored", id)
	return copyOf(b)
}
