package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"or-scheduler/internal/domain/entity"
	"or-scheduler/pkg/apperror"
	"or-scheduler/pkg/textmatch"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

const (
	defaultDelayLookbackDays     = 30
	defaultSurgeonDelayThreshold = 3
	defaultRoomDelayThreshold    = 5

	delayTrendHint = "Delay trend: recent delays detected for this surgeon or room. Consider a +15 min turnover buffer."
)

// ValidateOptions control which conflicts a caller is allowed to push through.
type ValidateOptions struct {
	AllowEmergencyPreempt bool
	ForceOverrides        []apperror.ConflictType
}

func (o ValidateOptions) forced(t apperror.ConflictType) bool {
	for _, f := range o.ForceOverrides {
		if f == t {
			return true
		}
	}
	return false
}

// ValidateInput is a proposed booking. BookingID is set when an existing booking is revalidated.
type ValidateInput struct {
	BookingID        uuid.UUID
	RoomID           uuid.UUID
	Priority         entity.Priority
	Title            string
	ProcedureType    string
	Team             entity.Team
	Start            time.Time
	End              time.Time
	AnesthesiaPrepAt *time.Time
	Resources        entity.Resources
	Options          ValidateOptions
}

// Collision is a conflicting booking that was pushed through by an override.
type Collision struct {
	Type    apperror.ConflictType
	Booking entity.Booking
}

// ValidationResult is the normalized booking data plus non-fatal findings.
type ValidationResult struct {
	Schedule     entity.Schedule
	Resources    entity.Resources
	Room         *entity.Room
	Surgeon      *entity.Surgeon
	Warnings     []string
	AdvisoryHint string
	Overridden   []Collision
	WeeklyHours  decimal.Decimal
}

// ApplyTo copies the computed plan onto a booking, keeping captured actuals.
func (r *ValidationResult) ApplyTo(b *entity.Booking) {
	b.RoomID = r.Room.ID
	b.Schedule.PlannedStartTime = r.Schedule.PlannedStartTime
	b.Schedule.PlannedEndTime = r.Schedule.PlannedEndTime
	b.Schedule.BufferEndTime = r.Schedule.BufferEndTime
	b.Schedule.EstimatedDurationMinutes = r.Schedule.EstimatedDurationMinutes
	b.Schedule.EstimatedFinishTime = r.Schedule.EstimatedFinishTime
	b.Schedule.AnesthesiaPrepAt = r.Schedule.AnesthesiaPrepAt
	b.Resources = r.Resources
	b.AdvisoryHint = r.AdvisoryHint
}

type ValidatorConfig struct {
	DelayLookbackDays     int
	SurgeonDelayThreshold int
	RoomDelayThreshold    int
}

type ScheduleValidator struct {
	deps Deps
	cfg  ValidatorConfig
}

func NewScheduleValidator(deps Deps, cfg ValidatorConfig) *ScheduleValidator {
	if cfg.DelayLookbackDays <= 0 {
		cfg.DelayLookbackDays = defaultDelayLookbackDays
	}
	if cfg.SurgeonDelayThreshold <= 0 {
		cfg.SurgeonDelayThreshold = defaultSurgeonDelayThreshold
	}
	if cfg.RoomDelayThreshold <= 0 {
		cfg.RoomDelayThreshold = defaultRoomDelayThreshold
	}
	return &ScheduleValidator{deps: deps, cfg: cfg}
}

// validationSnapshot holds everything read from the stores for one validation.
type validationSnapshot struct {
	room           *entity.Room
	surgeon        *entity.Surgeon
	assistant      *entity.Surgeon
	staff          []entity.Staff
	roomHits       []entity.Booking
	surgeonHits    []entity.Booking
	assistantHits  []entity.Booking
	anesthesiaHits []entity.Booking
	nurseHits      []entity.Booking
	roomOccupying  []entity.Booking
	allOccupying   []entity.Booking
	pool           []entity.MobileEquipment
	weekMinutes    int64
	surgeonDelays  int64
	roomDelays     int64
}

// Validate checks a proposed booking against every conflict dimension.
//
// Flow:
// 1. Time window and buffer
// 2. Anesthesia prep ordering
// 3. Room overlap (forceable as "ot", skipped for emergency preemption)
// 4. Maintenance blocks (never forceable)
// 5. Surgeon, assistant, anesthesiologist and nurse overlap (each forceable)
// 6. Staff identities and shift windows (never forceable)
// 7. Environment requirement
// 8. Preference-card merge, material consolidation and availability
// 9. Weekly fatigue projection and delay-trend hint (warnings only)
func (v *ScheduleValidator) Validate(ctx context.Context, in ValidateInput) (*ValidationResult, error) {
	if in.Start.IsZero() || in.End.IsZero() {
		return nil, apperror.Validation("schedule start and end time are required")
	}
	if !in.End.After(in.Start) {
		return nil, apperror.Validation("schedule end time must be after start time")
	}

	schedule := entity.NewSchedule(in.Start, in.End)
	schedule.AnesthesiaPrepAt = in.AnesthesiaPrepAt

	if in.Team.AnesthesiaType == entity.AnesthesiaGeneral && in.AnesthesiaPrepAt == nil {
		return nil, apperror.Validation("anesthesia prep time is required for general anesthesia")
	}
	if in.AnesthesiaPrepAt != nil && !in.AnesthesiaPrepAt.Before(in.Start) {
		return nil, apperror.Validation("anesthesia prep time must be before the scheduled start")
	}
	if in.Team.AssistantSurgeonID != nil && *in.Team.AssistantSurgeonID == in.Team.SurgeonID {
		return nil, apperror.Validation("assistant surgeon must differ from the primary surgeon")
	}

	snap, err := v.load(ctx, in, schedule)
	if err != nil {
		return nil, err
	}

	if snap.room == nil {
		return nil, apperror.NotFound("operating room not found")
	}
	if !snap.room.Active {
		return nil, apperror.Conflict("operating room %s is not active", snap.room.Code)
	}
	if snap.surgeon == nil {
		return nil, apperror.NotFound("surgeon not found")
	}
	if !snap.surgeon.Active {
		return nil, apperror.Validation("surgeon %s is not active", snap.surgeon.Name)
	}
	if in.Team.AssistantSurgeonID != nil && snap.assistant == nil {
		return nil, apperror.NotFound("assistant surgeon not found")
	}

	result := &ValidationResult{
		Schedule: schedule,
		Room:     snap.room,
		Surgeon:  snap.surgeon,
	}

	emergencyPreempt := in.Options.AllowEmergencyPreempt && in.Priority == entity.PriorityEmergency
	if !emergencyPreempt {
		if err := v.collide(result, in.Options, apperror.ConflictRoom, snap.roomHits, func(b entity.Booking) string {
			return fmt.Sprintf("Operating room %s is already booked by %s until %s",
				snap.room.Code, b.CaseCode, b.Schedule.BufferEndTime.In(v.deps.location()).Format("15:04"))
		}); err != nil {
			return nil, err
		}
	}

	if block, ok := snap.room.MaintenanceAt(schedule.PlannedStartTime, schedule.BufferEndTime); ok {
		return nil, apperror.Conflict("Operating room %s is under maintenance from %s to %s",
			snap.room.Code, block.Start.In(v.deps.location()).Format(time.RFC3339), block.End.In(v.deps.location()).Format(time.RFC3339))
	}

	staffByID := make(map[uuid.UUID]entity.Staff, len(snap.staff))
	for _, s := range snap.staff {
		staffByID[s.ID] = s
	}
	staffName := func(id uuid.UUID) string {
		if s, ok := staffByID[id]; ok {
			return s.Name
		}
		return id.String()
	}

	if err := v.collide(result, in.Options, apperror.ConflictSurgeon, snap.surgeonHits, func(b entity.Booking) string {
		return fmt.Sprintf("Surgeon %s is already assigned to %s in this window", snap.surgeon.Name, b.CaseCode)
	}); err != nil {
		return nil, err
	}
	if err := v.collide(result, in.Options, apperror.ConflictAssistant, snap.assistantHits, func(b entity.Booking) string {
		return fmt.Sprintf("Assistant surgeon %s is already assigned to %s in this window", snap.assistant.Name, b.CaseCode)
	}); err != nil {
		return nil, err
	}
	if err := v.collide(result, in.Options, apperror.ConflictAnesthesiologist, anesthesiaStillHeld(snap.anesthesiaHits, in.Start), func(b entity.Booking) string {
		return fmt.Sprintf("Anesthesiologist %s is already assigned to %s in this window", staffName(in.Team.AnesthesiologistID), b.CaseCode)
	}); err != nil {
		return nil, err
	}
	if err := v.collide(result, in.Options, apperror.ConflictNurse, snap.nurseHits, func(b entity.Booking) string {
		return fmt.Sprintf("Nurse %s is already assigned to %s in this window", staffName(firstSharedNurse(b, in.Team)), b.CaseCode)
	}); err != nil {
		return nil, err
	}

	if err := v.checkStaff(in, staffByID); err != nil {
		return nil, err
	}

	if required := strings.TrimSpace(in.Resources.RequiredHVACClass); required != "" {
		if !textmatch.Match(required, snap.room.HVACClass) && !textmatch.MatchAny(required, snap.room.Tags()) {
			return nil, apperror.Conflict("Operating room %s does not meet required environment: %s", snap.room.Code, required)
		}
	}

	resources := in.Resources
	if card, ok := snap.surgeon.PreferenceFor(in.ProcedureType); ok {
		resources.Materials = mergePreferenceMaterials(resources.Materials, card.Materials)
	}
	materials, err := ConsolidateMaterials(resources.Materials)
	if err != nil {
		return nil, err
	}
	resources.Materials = materials

	if err := v.checkMaterials(materials, snap); err != nil {
		return nil, err
	}
	result.Resources = resources

	projected := decimal.NewFromInt(snap.weekMinutes + int64(schedule.EstimatedDurationMinutes)).Div(decimal.NewFromInt(60))
	result.WeeklyHours = projected
	if projected.GreaterThan(decimal.NewFromInt(int64(snap.surgeon.WeeklyCapHours()))) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Fatigue alert: weekly load projected at %sh for surgeon %s.",
			projected.StringFixed(1), snap.surgeon.Name))
	}

	if snap.surgeonDelays >= int64(v.cfg.SurgeonDelayThreshold) || snap.roomDelays >= int64(v.cfg.RoomDelayThreshold) {
		result.AdvisoryHint = delayTrendHint
	}

	return result, nil
}

// load fans out the independent store reads of one validation.
func (v *ScheduleValidator) load(ctx context.Context, in ValidateInput, schedule entity.Schedule) (*validationSnapshot, error) {
	snap := &validationSnapshot{}
	db := v.deps.conn(ctx)
	now := v.deps.now()
	weekStart := StartOfWeek(in.Start, v.deps.location())
	since := now.AddDate(0, 0, -v.cfg.DelayLookbackDays)

	staffWindow := entity.OverlapQuery{ExcludeID: in.BookingID, Start: schedule.PlannedStartTime, End: schedule.PlannedEndTime}
	roomWindow := entity.OverlapQuery{ExcludeID: in.BookingID, Start: schedule.PlannedStartTime, End: schedule.BufferEndTime, BufferAware: true}

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) (err error) {
		snap.room, err = v.deps.Rooms.FindByID(db, in.RoomID)
		return wrapLoad("room", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.surgeon, err = v.deps.Surgeons.FindByID(db, in.Team.SurgeonID)
		return wrapLoad("surgeon", err)
	})
	if in.Team.AssistantSurgeonID != nil {
		p.Go(func(ctx context.Context) (err error) {
			snap.assistant, err = v.deps.Surgeons.FindByID(db, *in.Team.AssistantSurgeonID)
			return wrapLoad("assistant surgeon", err)
		})
		p.Go(func(ctx context.Context) (err error) {
			q := staffWindow
			q.AssistantID = in.Team.AssistantSurgeonID
			snap.assistantHits, err = v.deps.Bookings.FindOverlapping(db, q)
			return wrapLoad("assistant overlaps", err)
		})
	}
	p.Go(func(ctx context.Context) (err error) {
		ids := append([]uuid.UUID{in.Team.AnesthesiologistID}, in.Team.Nurses()...)
		snap.staff, err = v.deps.Staff.FindByIDs(db, ids)
		return wrapLoad("staff", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		q := roomWindow
		q.RoomID = &in.RoomID
		snap.roomHits, err = v.deps.Bookings.FindOverlapping(db, q)
		return wrapLoad("room overlaps", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		q := staffWindow
		q.SurgeonID = &in.Team.SurgeonID
		snap.surgeonHits, err = v.deps.Bookings.FindOverlapping(db, q)
		return wrapLoad("surgeon overlaps", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		q := staffWindow
		q.AnesthesiologistID = &in.Team.AnesthesiologistID
		snap.anesthesiaHits, err = v.deps.Bookings.FindOverlapping(db, q)
		return wrapLoad("anesthesiologist overlaps", err)
	})
	if nurses := in.Team.Nurses(); len(nurses) > 0 {
		p.Go(func(ctx context.Context) (err error) {
			q := staffWindow
			q.NurseIDs = nurses
			snap.nurseHits, err = v.deps.Bookings.FindOverlapping(db, q)
			return wrapLoad("nurse overlaps", err)
		})
	}
	p.Go(func(ctx context.Context) (err error) {
		snap.roomOccupying, err = v.deps.Bookings.FindOccupying(db, entity.OccupancyQuery{
			Statuses: entity.OccupyingStatuses, RoomID: &in.RoomID, ExcludeID: in.BookingID,
		})
		return wrapLoad("room occupancy", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.allOccupying, err = v.deps.Bookings.FindOccupying(db, entity.OccupancyQuery{
			Statuses: entity.OccupyingStatuses, ExcludeID: in.BookingID,
		})
		return wrapLoad("pool occupancy", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.pool, err = v.deps.Mobile.FindActive(db)
		return wrapLoad("mobile pool", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.weekMinutes, err = v.deps.Bookings.SumSurgeonMinutes(db, in.Team.SurgeonID, weekStart, weekStart.AddDate(0, 0, 7), in.BookingID)
		return wrapLoad("weekly load", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.surgeonDelays, err = v.deps.Bookings.CountDelayed(db, entity.DelayStatsQuery{SurgeonID: &in.Team.SurgeonID, Since: since})
		return wrapLoad("surgeon delay stats", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.roomDelays, err = v.deps.Bookings.CountDelayed(db, entity.DelayStatsQuery{RoomID: &in.RoomID, Since: since})
		return wrapLoad("room delay stats", err)
	})

	if err := p.Wait(); err != nil {
		v.deps.Log.Warnf("Failed to load validation data for room %s: %+v", in.RoomID, err)
		return nil, err
	}
	return snap, nil
}

func wrapLoad(what string, err error) error {
	if err != nil {
		return fmt.Errorf("load %s: %w", what, err)
	}
	return nil
}

// collide fails on the first hit unless the conflict type is overridden, in which
// case every hit is recorded on the result.
func (v *ScheduleValidator) collide(result *ValidationResult, opts ValidateOptions, t apperror.ConflictType, hits []entity.Booking, describe func(entity.Booking) string) error {
	if len(hits) == 0 {
		return nil
	}
	if !opts.forced(t) {
		return apperror.ScheduleConflict(t, hits[0].CaseCode, "%s", describe(hits[0]))
	}
	for _, b := range hits {
		result.Overridden = append(result.Overridden, Collision{Type: t, Booking: b})
		result.Warnings = append(result.Warnings, fmt.Sprintf("Forced past %s conflict with %s", t, b.CaseCode))
	}
	return nil
}

func (v *ScheduleValidator) checkStaff(in ValidateInput, staffByID map[uuid.UUID]entity.Staff) error {
	loc := v.deps.location()

	anesthesiologist, ok := staffByID[in.Team.AnesthesiologistID]
	if !ok || !anesthesiologist.Active || anesthesiologist.Role != entity.StaffRoleAnesthesiologist {
		return apperror.Validation("invalid or inactive anesthesiologist")
	}
	if !anesthesiologist.WithinShift(in.Start, in.End, loc) {
		return apperror.Conflict("Anesthesiologist %s is outside shift window (%s-%s)",
			anesthesiologist.Name, anesthesiologist.ShiftStart, anesthesiologist.ShiftEnd)
	}

	for _, id := range in.Team.Nurses() {
		nurse, ok := staffByID[id]
		if !ok || !nurse.Active || nurse.Role != entity.StaffRoleNurse {
			return apperror.Validation("invalid or inactive nurse %s", id)
		}
		if !nurse.WithinShift(in.Start, in.End, loc) {
			return apperror.Conflict("Nurse %s is outside shift window (%s-%s)", nurse.Name, nurse.ShiftStart, nurse.ShiftEnd)
		}
	}
	return nil
}

func (v *ScheduleValidator) checkMaterials(materials []entity.Material, snap *validationSnapshot) error {
	tags := snap.room.Tags()
	pool := entity.MobilePool(snap.pool)

	for _, m := range materials {
		if textmatch.MatchAny(m.Name, tags) {
			continue
		}

		roomFree := snap.room.Inventory.QuantityOf(m.Name) - heldQuantity(snap.roomOccupying, m.Name)
		if roomFree >= m.Quantity {
			continue
		}

		poolFree := pool.QuantityOf(m.Name) - heldQuantity(snap.allOccupying, m.Name)
		if poolFree >= m.Quantity {
			continue
		}

		return apperror.Conflict("Material/equipment currently occupied or unavailable: %s", m.Name)
	}
	return nil
}

// heldQuantity sums what the given bookings have reserved of an item.
func heldQuantity(bookings []entity.Booking, name string) int {
	total := 0
	for _, b := range bookings {
		for _, m := range b.Resources.Materials {
			if textmatch.SameMaterial(m.Name, name) {
				total += m.Quantity
			}
		}
	}
	return total
}

// anesthesiaStillHeld drops bookings whose anesthesiologist was released by start.
func anesthesiaStillHeld(hits []entity.Booking, start time.Time) []entity.Booking {
	held := make([]entity.Booking, 0, len(hits))
	for _, b := range hits {
		if released := b.Schedule.AnesthesiaReleasedAt; released != nil && !released.After(start) {
			continue
		}
		held = append(held, b)
	}
	return held
}

func firstSharedNurse(b entity.Booking, team entity.Team) uuid.UUID {
	for _, x := range b.Team.Nurses() {
		for _, y := range team.Nurses() {
			if x == y {
				return x
			}
		}
	}
	return uuid.Nil
}

// ConsolidateMaterials canonicalizes names and merges duplicates, summing quantities.
// A zero quantity counts as one.
func ConsolidateMaterials(materials []entity.Material) ([]entity.Material, error) {
	out := make([]entity.Material, 0, len(materials))
	index := make(map[string]int, len(materials))

	for _, m := range materials {
		name := textmatch.CanonicalMaterial(m.Name)
		if name == "" {
			continue
		}
		if m.Quantity < 0 || m.Consumed < 0 {
			return nil, apperror.Validation("material %s quantity must not be negative", name)
		}
		qty := m.Quantity
		if qty == 0 {
			qty = 1
		}

		key := strings.ToLower(name)
		if i, ok := index[key]; ok {
			out[i].Quantity += qty
			out[i].Consumed += m.Consumed
			continue
		}
		index[key] = len(out)
		out = append(out, entity.Material{Name: name, Quantity: qty, Consumed: m.Consumed})
	}
	return out, nil
}

func mergePreferenceMaterials(requested, template []entity.Material) []entity.Material {
	merged := append([]entity.Material(nil), requested...)
	for _, t := range template {
		present := false
		for _, r := range merged {
			if textmatch.SameMaterial(r.Name, t.Name) {
				present = true
				break
			}
		}
		if !present {
			merged = append(merged, entity.Material{Name: t.Name, Quantity: t.Quantity})
		}
	}
	return merged
}

// StartOfWeek returns Sunday 00:00 of the week containing t, in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return day.AddDate(0, 0, -int(day.Weekday()))
}
