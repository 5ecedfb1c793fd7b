package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"or-scheduler/internal/domain/entity"
	"or-scheduler/pkg/apperror"

	"github.com/google/uuid"
)

// errAlreadyDisplaced marks a move whose booking already carries the plan's event.
var errAlreadyDisplaced = errors.New("booking already displaced by this event")

const (
	rippleExtraMinutes = 30
	forceExtraMinutes  = entity.BufferMinutes
)

type MoveAction string

const (
	MoveActionMoved     MoveAction = "moved"
	MoveActionPostponed MoveAction = "postponed"
)

type PlanKind string

const (
	PlanKindRipple        PlanKind = "ripple"
	PlanKindForcePostpone PlanKind = "force_postpone"
	PlanKindDelayShift    PlanKind = "delay_shift"
)

// PlannedMove is one displacement, computed before anything is written.
type PlannedMove struct {
	BookingID      uuid.UUID            `json:"booking_id"`
	CaseCode       string               `json:"case_code"`
	ReadVersion    int                  `json:"-"`
	Action         MoveAction           `json:"action"`
	ShiftMinutes   int                  `json:"shift_minutes"`
	PreviousRoomID uuid.UUID            `json:"previous_room_id"`
	NewRoomID      uuid.UUID            `json:"new_room_id"`
	NewRoomCode    string               `json:"new_room_code,omitempty"`
	PreviousStart  time.Time            `json:"previous_start"`
	PreviousEnd    time.Time            `json:"previous_end"`
	NewStart       time.Time            `json:"new_start"`
	NewEnd         time.Time            `json:"new_end"`
	Status         entity.BookingStatus `json:"status"`
	RequireAck     bool                 `json:"require_ack"`
	Delay          entity.DelayLog      `json:"-"`
	HistoryNote    string               `json:"-"`
	SurgeonID      uuid.UUID            `json:"surgeon_id"`
	Notify         []uuid.UUID          `json:"notify"`
}

// Plan is an ordered list of displacements caused by one event. EventID is
// written as the delay-log trigger of every move, so replanning the same
// event skips bookings it already displaced.
type Plan struct {
	Kind           PlanKind
	EventID        uuid.UUID
	SourceCaseCode string
	Moves          []PlannedMove
}

// ApplyResult lists the moves written and those never attempted after a failure.
type ApplyResult struct {
	Applied   []PlannedMove `json:"applied"`
	Unapplied []PlannedMove `json:"unapplied,omitempty"`
}

type Rescheduler struct {
	deps   Deps
	scorer *RoomScorer
}

func NewRescheduler(deps Deps, scorer *RoomScorer) *Rescheduler {
	return &Rescheduler{deps: deps, scorer: scorer}
}

// displaceable reports whether a booking may still be moved by another event.
func displaceable(b *entity.Booking) bool {
	if b.CaseLocked || !b.IsActive() {
		return false
	}
	if b.HasStatus(entity.BookingStatusRecovery, entity.BookingStatusCleaning, entity.BookingStatusPostOp) {
		return false
	}
	if b.HasStatus(entity.BookingStatusInProgress, entity.BookingStatusDelayed) && b.Schedule.ActualStartTime != nil {
		return false
	}
	return true
}

func baseMove(b *entity.Booking) PlannedMove {
	return PlannedMove{
		BookingID:      b.ID,
		CaseCode:       b.CaseCode,
		ReadVersion:    b.Version,
		PreviousRoomID: b.RoomID,
		NewRoomID:      b.RoomID,
		PreviousStart:  b.Schedule.PlannedStartTime,
		PreviousEnd:    b.Schedule.PlannedEndTime,
		NewStart:       b.Schedule.PlannedStartTime,
		NewEnd:         b.Schedule.PlannedEndTime,
		Status:         b.Status,
		SurgeonID:      b.Team.SurgeonID,
		Notify:         b.StaffIDs(),
	}
}

func postponeMove(b *entity.Booking, shift int) PlannedMove {
	move := baseMove(b)
	d := time.Duration(shift) * time.Minute
	move.Action = MoveActionPostponed
	move.ShiftMinutes = shift
	move.NewStart = move.PreviousStart.Add(d)
	move.NewEnd = move.PreviousEnd.Add(d)
	move.Status = entity.BookingStatusPostponed
	return move
}

// roomClaim is a window a plan has already assigned to a room.
type roomClaim struct {
	roomID     uuid.UUID
	start, end time.Time
}

func claimed(claims []roomClaim, roomID uuid.UUID, start, end time.Time) bool {
	for _, c := range claims {
		if c.roomID == roomID && c.start.Before(end) && c.end.After(start) {
			return true
		}
	}
	return false
}

// ====================================================================
// Planning
// ====================================================================

// PlanRipple plans the displacement caused by inserting an emergency case.
//
// Flow:
// 1. List non-emergency bookings in the source room starting at or after its start
// 2. Move each to the best free compatible room not already claimed by this plan
// 3. Otherwise postpone it by the source duration + 30 minutes
// 4. Flag every displaced booking for surgeon acknowledgement
func (r *Rescheduler) PlanRipple(ctx context.Context, source *entity.Booking, actorID *uuid.UUID) (*Plan, error) {
	shift := source.Schedule.EstimatedDurationMinutes + rippleExtraMinutes
	return r.planRoomShift(ctx, rippleSpec{
		kind:          PlanKindRipple,
		eventID:       displacementEventID(PlanKindRipple, source),
		caseCode:      source.CaseCode,
		roomID:        source.RoomID,
		from:          source.Schedule.PlannedStartTime,
		excludeID:     source.ID,
		skipEmergency: true,
		shift:         shift,
		reason:        entity.DelayReasonEmergencyBump,
		actorID:       actorID,
	})
}

// displacementEventID names one displacement run of source. A retry against the
// same saved source yields the same id; every reschedule bumps the version and
// so starts a new event.
func displacementEventID(kind PlanKind, source *entity.Booking) uuid.UUID {
	return uuid.NewSHA1(source.ID, []byte(fmt.Sprintf("%s:%d", kind, source.Version)))
}

// PlanDelayShift plans the knock-on of a delay: cases after the delayed
// booking's planned end shift by minutes or move rooms.
func (r *Rescheduler) PlanDelayShift(ctx context.Context, delayed *entity.Booking, previousEnd time.Time, minutes int, reason entity.DelayReason, actorID *uuid.UUID) (*Plan, error) {
	if minutes <= 0 {
		return &Plan{Kind: PlanKindDelayShift, EventID: uuid.New(), SourceCaseCode: delayed.CaseCode}, nil
	}
	return r.planRoomShift(ctx, rippleSpec{
		kind:      PlanKindDelayShift,
		eventID:   uuid.New(),
		caseCode:  delayed.CaseCode,
		roomID:    delayed.RoomID,
		from:      previousEnd,
		excludeID: delayed.ID,
		shift:     minutes,
		reason:    reason,
		actorID:   actorID,
	})
}

type rippleSpec struct {
	kind          PlanKind
	eventID       uuid.UUID
	caseCode      string
	roomID        uuid.UUID
	from          time.Time
	excludeID     uuid.UUID
	skipEmergency bool
	shift         int
	reason        entity.DelayReason
	actorID       *uuid.UUID
}

func (r *Rescheduler) planRoomShift(ctx context.Context, rs rippleSpec) (*Plan, error) {
	queue, err := r.deps.Bookings.FindRoomQueue(r.deps.conn(ctx), entity.RoomQueueQuery{
		RoomID:        rs.roomID,
		From:          rs.from,
		ExcludeID:     rs.excludeID,
		SkipEmergency: rs.skipEmergency,
	})
	if err != nil {
		r.deps.Log.Warnf("Failed to list room queue of %s: %+v", rs.roomID, err)
		return nil, fmt.Errorf("list room queue: %w", err)
	}

	now := r.deps.now()
	plan := &Plan{Kind: rs.kind, EventID: rs.eventID, SourceCaseCode: rs.caseCode}
	var claims []roomClaim

	for i := range queue {
		b := &queue[i]
		if !displaceable(b) || b.DisplacedBy(rs.eventID) {
			continue
		}

		candidates, err := r.scorer.CandidateRooms(ctx, CandidateQuery{
			Start:         b.Schedule.PlannedStartTime,
			BufferEnd:     b.Schedule.BufferEndTime,
			ExcludeRoomID: rs.roomID,
			Demand:        ScoreInputFromBooking(b),
		})
		if err != nil {
			return nil, err
		}

		var move PlannedMove
		for _, c := range candidates {
			if claimed(claims, c.RoomID, b.Schedule.PlannedStartTime, b.Schedule.BufferEndTime) {
				continue
			}
			move = baseMove(b)
			move.Action = MoveActionMoved
			move.NewRoomID = c.RoomID
			move.NewRoomCode = c.RoomCode
			move.HistoryNote = fmt.Sprintf("Moved to %s due %s", c.RoomCode, rs.caseCode)
			move.Delay = entity.DelayLog{
				Reason: rs.reason,
				Note:   fmt.Sprintf("Moved from original room due %s", rs.caseCode),
			}
			claims = append(claims, roomClaim{roomID: c.RoomID, start: b.Schedule.PlannedStartTime, end: b.Schedule.BufferEndTime})
			break
		}

		if move.Action == "" {
			move = postponeMove(b, rs.shift)
			move.HistoryNote = fmt.Sprintf("Auto shifted by %d mins due %s", rs.shift, rs.caseCode)
			move.Delay = entity.DelayLog{
				Reason:  rs.reason,
				Minutes: rs.shift,
				Note:    fmt.Sprintf("Auto shift +%d mins", rs.shift),
			}
		}

		eventID := rs.eventID
		move.Delay.TriggeredBy = &eventID
		move.Delay.LoggedBy = rs.actorID
		move.Delay.LoggedAt = now
		move.RequireAck = true
		plan.Moves = append(plan.Moves, move)
	}
	return plan, nil
}

// PlanForcePostpone plans postponing every booking that collides with source
// on one of the overridden conflict types. Nothing is relocated.
func (r *Rescheduler) PlanForcePostpone(ctx context.Context, source *entity.Booking, overrides []apperror.ConflictType, actorID *uuid.UUID) (*Plan, error) {
	eventID := displacementEventID(PlanKindForcePostpone, source)
	plan := &Plan{Kind: PlanKindForcePostpone, EventID: eventID, SourceCaseCode: source.CaseCode}
	db := r.deps.conn(ctx)
	sched := source.Schedule

	seen := make(map[uuid.UUID]struct{})
	var conflicts []entity.Booking
	for _, t := range overrides {
		q := entity.OverlapQuery{ExcludeID: source.ID, Start: sched.PlannedStartTime, End: sched.PlannedEndTime}
		switch t {
		case apperror.ConflictRoom:
			q.End = sched.BufferEndTime
			q.BufferAware = true
			q.RoomID = &source.RoomID
		case apperror.ConflictSurgeon:
			q.SurgeonID = &source.Team.SurgeonID
		case apperror.ConflictAssistant:
			if source.Team.AssistantSurgeonID == nil {
				continue
			}
			q.AssistantID = source.Team.AssistantSurgeonID
		case apperror.ConflictAnesthesiologist:
			q.AnesthesiologistID = &source.Team.AnesthesiologistID
		case apperror.ConflictNurse:
			if len(source.Team.Nurses()) == 0 {
				continue
			}
			q.NurseIDs = source.Team.Nurses()
		default:
			continue
		}

		hits, err := r.deps.Bookings.FindOverlapping(db, q)
		if err != nil {
			r.deps.Log.Warnf("Failed to find %s conflicts of %s: %+v", t, source.CaseCode, err)
			return nil, fmt.Errorf("find %s conflicts: %w", t, err)
		}
		for _, h := range hits {
			if _, dup := seen[h.ID]; dup {
				continue
			}
			seen[h.ID] = struct{}{}
			conflicts = append(conflicts, h)
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Schedule.PlannedStartTime.Before(conflicts[j].Schedule.PlannedStartTime)
	})

	shift := sched.EstimatedDurationMinutes + forceExtraMinutes
	now := r.deps.now()
	for i := range conflicts {
		b := &conflicts[i]
		if !displaceable(b) || b.DisplacedBy(eventID) {
			continue
		}
		move := postponeMove(b, shift)
		move.HistoryNote = fmt.Sprintf("Auto postponed by %d mins due force schedule for %s", shift, source.CaseCode)
		move.Delay = entity.DelayLog{
			Reason:      entity.DelayReasonOther,
			Minutes:     shift,
			Note:        fmt.Sprintf("Force Schedule: auto postponed by %d mins due %s", shift, source.CaseCode),
			TriggeredBy: &eventID,
			LoggedBy:    actorID,
			LoggedAt:    now,
		}
		plan.Moves = append(plan.Moves, move)
	}
	return plan, nil
}

// ====================================================================
// Applying
// ====================================================================

// Apply writes the plan move by move. Each booking is re-read and saved with a
// version check; the first failure stops the run, leaving earlier moves
// committed and the rest listed as unapplied. Bookings that already carry the
// plan's event are skipped and appear in neither list.
func (r *Rescheduler) Apply(ctx context.Context, plan *Plan, actorID *uuid.UUID) (*ApplyResult, error) {
	result := &ApplyResult{Applied: make([]PlannedMove, 0, len(plan.Moves))}

	for i, move := range plan.Moves {
		err := r.applyMove(ctx, move, actorID)
		if errors.Is(err, errAlreadyDisplaced) {
			r.deps.Log.Debugf("Skipped %s of %s: already displaced by %s", plan.Kind, move.CaseCode, plan.SourceCaseCode)
			continue
		}
		if err != nil {
			result.Unapplied = append(result.Unapplied, plan.Moves[i:]...)
			r.deps.Log.Warnf("Stopped %s plan of %s at %s after %d moves: %+v",
				plan.Kind, plan.SourceCaseCode, move.CaseCode, len(result.Applied), err)
			return result, err
		}
		result.Applied = append(result.Applied, move)
	}
	return result, nil
}

func (r *Rescheduler) applyMove(ctx context.Context, move PlannedMove, actorID *uuid.UUID) error {
	b, err := r.deps.findBooking(ctx, move.BookingID)
	if err != nil {
		return err
	}
	if b.Version != move.ReadVersion {
		return ErrConcurrentUpdate
	}
	if move.Delay.TriggeredBy != nil && b.DisplacedBy(*move.Delay.TriggeredBy) {
		return errAlreadyDisplaced
	}

	now := r.deps.now()
	switch move.Action {
	case MoveActionMoved:
		b.RoomID = move.NewRoomID
	case MoveActionPostponed:
		b.Schedule.Shift(time.Duration(move.ShiftMinutes) * time.Minute)
		b.Status = move.Status
		b.RoomStatus = entity.RoomStatusIdle
	}
	b.AddDelay(move.Delay)
	b.AddHistory(move.HistoryNote, actorID, now)

	if move.RequireAck {
		b.Arrangement.RequireAck()
		b.Arrangement.ChangeRequestReason = ""
		b.Arrangement.ChangeRequestedAt = nil
		b.AddHistory("Awaiting surgeon acknowledgment for emergency arrangement", actorID, now)
	}

	return r.deps.saveBooking(ctx, b)
}

// RippleShift plans and applies the displacement of an emergency insertion.
func (r *Rescheduler) RippleShift(ctx context.Context, source *entity.Booking, actorID *uuid.UUID) (*ApplyResult, error) {
	plan, err := r.PlanRipple(ctx, source, actorID)
	if err != nil {
		return nil, err
	}
	return r.Apply(ctx, plan, actorID)
}

// ForcePostpone plans and applies an admin override.
func (r *Rescheduler) ForcePostpone(ctx context.Context, source *entity.Booking, overrides []apperror.ConflictType, actorID *uuid.UUID) (*ApplyResult, error) {
	plan, err := r.PlanForcePostpone(ctx, source, overrides, actorID)
	if err != nil {
		return nil, err
	}
	return r.Apply(ctx, plan, actorID)
}

// DelayAndShift plans and applies the knock-on of a logged delay.
func (r *Rescheduler) DelayAndShift(ctx context.Context, delayed *entity.Booking, previousEnd time.Time, minutes int, reason entity.DelayReason, actorID *uuid.UUID) (*ApplyResult, error) {
	plan, err := r.PlanDelayShift(ctx, delayed, previousEnd, minutes, reason, actorID)
	if err != nil {
		return nil, err
	}
	return r.Apply(ctx, plan, actorID)
}

// DisplacementEvents builds the notifications of applied moves.
func DisplacementEvents(plan PlanKind, sourceCaseCode string, result *ApplyResult, at time.Time) []Event {
	events := make([]Event, 0, len(result.Applied))
	for _, m := range result.Applied {
		var msg string
		if m.Action == MoveActionMoved {
			msg = fmt.Sprintf("Case %s moved to %s due %s.", m.CaseCode, m.NewRoomCode, sourceCaseCode)
		} else {
			msg = fmt.Sprintf("Case %s postponed by %d mins due %s.", m.CaseCode, m.ShiftMinutes, sourceCaseCode)
		}
		if m.RequireAck {
			msg += " Surgeon acceptance required."
		}
		events = append(events, Event{
			Type:       EventBookingDisplaced,
			BookingID:  m.BookingID,
			CaseCode:   m.CaseCode,
			RoomID:     m.NewRoomID,
			Recipients: m.Notify,
			Message:    msg,
			Payload: map[string]interface{}{
				"plan":           plan,
				"action":         m.Action,
				"shift_minutes":  m.ShiftMinutes,
				"previous_start": m.PreviousStart,
				"new_start":      m.NewStart,
				"previous_room":  m.PreviousRoomID,
				"new_room":       m.NewRoomID,
			},
			OccurredAt: at,
		})
	}
	return events
}
