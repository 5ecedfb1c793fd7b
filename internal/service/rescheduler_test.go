package service

import (
	"context"
	"testing"

	"or-scheduler/internal/domain/entity"
	"or-scheduler/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) rescheduler() *Rescheduler {
	deps := f.store.deps(at(7, 0))
	return NewRescheduler(deps, NewRoomScorer(deps))
}

func emergency(b *entity.Booking) {
	b.Priority = entity.PriorityEmergency
}

func TestForcePostpone_ShiftsConflictByDurationPlusBuffer(t *testing.T) {
	f := newFixture()
	other := f.otherTeam()
	a := f.seedBooking("CASE-A", f.room.ID, at(10, 0), at(11, 0), func(b *entity.Booking) { b.Team = other })
	src := f.seedBooking("CASE-B", f.room.ID, at(10, 30), at(11, 0))
	actor := uuidPtr(uuid.New())

	result, err := f.rescheduler().ForcePostpone(context.Background(), &src, []apperror.ConflictType{apperror.ConflictRoom}, actor)
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)
	assert.Empty(t, result.Unapplied)

	move := result.Applied[0]
	assert.Equal(t, MoveActionPostponed, move.Action)
	assert.Equal(t, 50, move.ShiftMinutes)
	assert.False(t, move.RequireAck)

	got := f.store.booking(t, a.ID)
	assert.True(t, got.Schedule.PlannedStartTime.Equal(at(10, 50)))
	assert.True(t, got.Schedule.PlannedEndTime.Equal(at(11, 50)))
	assert.True(t, got.Schedule.BufferEndTime.Equal(at(12, 10)))
	assert.Equal(t, entity.BookingStatusPostponed, got.Status)
	assert.Equal(t, entity.RoomStatusIdle, got.RoomStatus)
	require.Len(t, got.DelayLogs, 1)
	assert.Equal(t, "Force Schedule: auto postponed by 50 mins due CASE-B", got.DelayLogs[0].Note)
	require.NotNil(t, got.DelayLogs[0].TriggeredBy)
	assert.Equal(t, displacementEventID(PlanKindForcePostpone, &src), *got.DelayLogs[0].TriggeredBy)
	assert.Equal(t, "Auto postponed by 50 mins due force schedule for CASE-B", got.StatusHistory[len(got.StatusHistory)-1].Note)
	assert.Equal(t, 2, got.Version)
}

func TestForcePostpone_IsIdempotent(t *testing.T) {
	f := newFixture()
	other := f.otherTeam()
	a := f.seedBooking("CASE-A", f.room.ID, at(10, 0), at(11, 0), func(b *entity.Booking) { b.Team = other })
	src := f.seedBooking("CASE-B", f.room.ID, at(10, 30), at(11, 0))
	r := f.rescheduler()
	overrides := []apperror.ConflictType{apperror.ConflictRoom}

	_, err := r.ForcePostpone(context.Background(), &src, overrides, nil)
	require.NoError(t, err)

	plan, err := r.PlanForcePostpone(context.Background(), &src, overrides, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Moves)

	got := f.store.booking(t, a.ID)
	assert.Len(t, got.DelayLogs, 1)
	assert.True(t, got.Schedule.PlannedStartTime.Equal(at(10, 50)))
}

func TestForcePostpone_RescheduledSourceDisplacesAgain(t *testing.T) {
	f := newFixture()
	other := f.otherTeam()
	a := f.seedBooking("CASE-A", f.room.ID, at(10, 0), at(11, 0), func(b *entity.Booking) { b.Team = other })
	src := f.seedBooking("CASE-B", f.room.ID, at(10, 30), at(11, 0))
	r := f.rescheduler()
	overrides := []apperror.ConflictType{apperror.ConflictRoom}

	_, err := r.ForcePostpone(context.Background(), &src, overrides, nil)
	require.NoError(t, err)
	require.True(t, f.store.booking(t, a.ID).Schedule.PlannedStartTime.Equal(at(10, 50)))

	src.Schedule = entity.NewSchedule(at(11, 0), at(11, 30))
	src.Version++
	f.store.putBooking(src)

	plan, err := r.PlanForcePostpone(context.Background(), &src, overrides, nil)
	require.NoError(t, err)
	require.Len(t, plan.Moves, 1)
	assert.Equal(t, a.ID, plan.Moves[0].BookingID)
	assert.Equal(t, 50, plan.Moves[0].ShiftMinutes)

	result, err := r.Apply(context.Background(), plan, nil)
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)

	got := f.store.booking(t, a.ID)
	assert.True(t, got.Schedule.PlannedStartTime.Equal(at(11, 40)))
	require.Len(t, got.DelayLogs, 2)
	assert.NotEqual(t, *got.DelayLogs[0].TriggeredBy, *got.DelayLogs[1].TriggeredBy)
	assert.Equal(t, plan.EventID, *got.DelayLogs[1].TriggeredBy)
}

func TestForcePostpone_DedupesAcrossConflictTypes(t *testing.T) {
	f := newFixture()
	a := f.seedBooking("CASE-A", f.room.ID, at(10, 0), at(11, 0))
	src := f.seedBooking("CASE-B", f.room.ID, at(10, 30), at(11, 0))

	plan, err := f.rescheduler().PlanForcePostpone(context.Background(), &src, apperror.ConflictTypes, nil)
	require.NoError(t, err)
	require.Len(t, plan.Moves, 1)
	assert.Equal(t, a.ID, plan.Moves[0].BookingID)
}

func TestRippleShift_MovesOrPostpones(t *testing.T) {
	f := newFixture()
	other := f.otherTeam()
	src := f.seedBooking("CASE-E", f.room.ID, at(10, 0), at(11, 0), emergency)
	a := f.seedBooking("CASE-A", f.room.ID, at(11, 30), at(12, 30))
	c := f.seedBooking("CASE-C", f.room.ID, at(13, 0), at(14, 0))
	d := f.seedBooking("CASE-D", f.room.ID, at(15, 0), at(16, 0), emergency)
	// OT-2 is taken while CASE-C runs.
	f.seedBooking("CASE-X", f.room2.ID, at(13, 0), at(14, 0), func(b *entity.Booking) { b.Team = other })

	result, err := f.rescheduler().RippleShift(context.Background(), &src, nil)
	require.NoError(t, err)
	require.Len(t, result.Applied, 2)

	moved := f.store.booking(t, a.ID)
	assert.Equal(t, f.room2.ID, moved.RoomID)
	assert.True(t, moved.Schedule.PlannedStartTime.Equal(at(11, 30)))
	assert.Equal(t, entity.BookingStatusScheduled, moved.Status)
	assert.True(t, moved.Arrangement.RequiresSurgeonAck)
	assert.Equal(t, entity.AckPending, moved.Arrangement.SurgeonAckStatus)
	assert.Equal(t, entity.DelayReasonEmergencyBump, moved.DelayLogs[0].Reason)

	postponed := f.store.booking(t, c.ID)
	assert.Equal(t, f.room.ID, postponed.RoomID)
	assert.True(t, postponed.Schedule.PlannedStartTime.Equal(at(14, 30)))
	assert.Equal(t, entity.BookingStatusPostponed, postponed.Status)
	assert.Equal(t, entity.AckPending, postponed.Arrangement.SurgeonAckStatus)
	assert.Equal(t, "Auto shift +90 mins", postponed.DelayLogs[0].Note)

	untouched := f.store.booking(t, d.ID)
	assert.Empty(t, untouched.DelayLogs)
	assert.Equal(t, 1, untouched.Version)

	assert.Equal(t, MoveActionMoved, result.Applied[0].Action)
	assert.Equal(t, "OT-2", result.Applied[0].NewRoomCode)
	assert.Equal(t, MoveActionPostponed, result.Applied[1].Action)
}

func TestPlanRipple_ClaimsRoomsWithinPlan(t *testing.T) {
	f := newFixture()
	other := f.otherTeam()
	src := f.seedBooking("CASE-E", f.room.ID, at(10, 0), at(11, 0), emergency)
	f.seedBooking("CASE-A", f.room.ID, at(11, 30), at(12, 30))
	f.seedBooking("CASE-A2", f.room.ID, at(11, 45), at(12, 15), func(b *entity.Booking) { b.Team = other })

	plan, err := f.rescheduler().PlanRipple(context.Background(), &src, nil)
	require.NoError(t, err)
	require.Len(t, plan.Moves, 2)

	assert.Equal(t, MoveActionMoved, plan.Moves[0].Action)
	assert.Equal(t, f.room2.ID, plan.Moves[0].NewRoomID)
	assert.Equal(t, MoveActionPostponed, plan.Moves[1].Action, "OT-2 is already claimed by CASE-A")
}

func TestPlanRipple_SkipsStartedAndLockedCases(t *testing.T) {
	f := newFixture()
	src := f.seedBooking("CASE-E", f.room.ID, at(10, 0), at(11, 0), emergency)
	started := at(10, 5)
	f.seedBooking("CASE-LIVE", f.room.ID, at(10, 0), at(11, 0), func(b *entity.Booking) {
		b.Status = entity.BookingStatusInProgress
		b.Schedule.ActualStartTime = &started
	})
	f.seedBooking("CASE-LOCKED", f.room.ID, at(12, 0), at(13, 0), func(b *entity.Booking) {
		b.Status = entity.BookingStatusPostOp
		b.CaseLocked = true
	})
	f.seedBooking("CASE-GONE", f.room.ID, at(12, 0), at(13, 0), func(b *entity.Booking) {
		b.Status = entity.BookingStatusCancelled
	})

	plan, err := f.rescheduler().PlanRipple(context.Background(), &src, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Moves)
}

func TestPostponedMovesOnlyShiftForward(t *testing.T) {
	f := newFixture()
	room2 := f.store.rooms[f.room2.ID]
	room2.Active = false
	f.store.rooms[f.room2.ID] = room2

	src := f.seedBooking("CASE-E", f.room.ID, at(8, 0), at(9, 0), emergency)
	for i, h := range []int{9, 11, 13, 15} {
		f.seedBooking("CASE-Q"+string(rune('1'+i)), f.room.ID, at(h, 0), at(h+1, 0))
	}

	plan, err := f.rescheduler().PlanRipple(context.Background(), &src, nil)
	require.NoError(t, err)
	require.Len(t, plan.Moves, 4)
	for _, m := range plan.Moves {
		assert.Equal(t, MoveActionPostponed, m.Action)
		assert.True(t, m.NewStart.After(m.PreviousStart), m.CaseCode)
		assert.Equal(t, m.PreviousEnd.Sub(m.PreviousStart), m.NewEnd.Sub(m.NewStart), m.CaseCode)
	}
}

func TestApply_StopsAtFirstFailure(t *testing.T) {
	f := newFixture()
	room2 := f.store.rooms[f.room2.ID]
	room2.Active = false
	f.store.rooms[f.room2.ID] = room2

	src := f.seedBooking("CASE-E", f.room.ID, at(8, 0), at(9, 0), emergency)
	first := f.seedBooking("CASE-1", f.room.ID, at(9, 0), at(10, 0))
	second := f.seedBooking("CASE-2", f.room.ID, at(11, 0), at(12, 0))
	third := f.seedBooking("CASE-3", f.room.ID, at(13, 0), at(14, 0))
	f.store.failUpdateOf = second.ID

	result, err := f.rescheduler().RippleShift(context.Background(), &src, nil)
	require.ErrorIs(t, err, ErrConcurrentUpdate)
	require.Len(t, result.Applied, 1)
	require.Len(t, result.Unapplied, 2)
	assert.Equal(t, first.ID, result.Applied[0].BookingID)

	assert.Len(t, f.store.booking(t, first.ID).DelayLogs, 1)
	assert.Empty(t, f.store.booking(t, second.ID).DelayLogs)
	assert.Empty(t, f.store.booking(t, third.ID).DelayLogs)

	// A retry skips what was already committed.
	f.store.failUpdateOf = uuid.Nil
	result, err = f.rescheduler().RippleShift(context.Background(), &src, nil)
	require.NoError(t, err)
	require.Len(t, result.Applied, 2)
	assert.Len(t, f.store.booking(t, first.ID).DelayLogs, 1)
	assert.Len(t, f.store.booking(t, third.ID).DelayLogs, 1)
}

func TestApply_RejectsStalePlan(t *testing.T) {
	f := newFixture()
	other := f.otherTeam()
	a := f.seedBooking("CASE-A", f.room.ID, at(10, 0), at(11, 0), func(b *entity.Booking) { b.Team = other })
	src := f.seedBooking("CASE-B", f.room.ID, at(10, 30), at(11, 0))
	r := f.rescheduler()

	plan, err := r.PlanForcePostpone(context.Background(), &src, []apperror.ConflictType{apperror.ConflictRoom}, nil)
	require.NoError(t, err)

	changed := f.store.booking(t, a.ID)
	changed.Title = "Edited elsewhere"
	changed.Version++
	f.store.putBooking(changed)

	result, err := r.Apply(context.Background(), plan, nil)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Empty(t, result.Applied)
}

func TestApply_SkipsBookingsAlreadyCarryingEvent(t *testing.T) {
	f := newFixture()
	other := f.otherTeam()
	a := f.seedBooking("CASE-A", f.room.ID, at(10, 0), at(11, 0), func(b *entity.Booking) { b.Team = other })
	c := f.seedBooking("CASE-C", f.room.ID, at(10, 15), at(10, 45), func(b *entity.Booking) { b.Team = other })
	src := f.seedBooking("CASE-B", f.room.ID, at(10, 30), at(11, 0))
	r := f.rescheduler()

	plan, err := r.PlanForcePostpone(context.Background(), &src, []apperror.ConflictType{apperror.ConflictRoom}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Moves, 2)

	// Same version, but the event is already recorded on CASE-A.
	marked := f.store.booking(t, a.ID)
	eventID := plan.EventID
	marked.AddDelay(entity.DelayLog{Reason: entity.DelayReasonOther, TriggeredBy: &eventID})
	f.store.putBooking(marked)

	result, err := r.Apply(context.Background(), plan, nil)
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)
	assert.Equal(t, c.ID, result.Applied[0].BookingID)
	assert.Empty(t, result.Unapplied)

	untouched := f.store.booking(t, a.ID)
	assert.True(t, untouched.Schedule.PlannedStartTime.Equal(at(10, 0)))
	assert.Equal(t, 1, untouched.Version)
	assert.Len(t, untouched.DelayLogs, 1)

	events := DisplacementEvents(plan.Kind, src.CaseCode, result, at(7, 0))
	assert.Len(t, events, 1)
}

func TestDelayAndShift(t *testing.T) {
	f := newFixture()
	room2 := f.store.rooms[f.room2.ID]
	room2.Active = false
	f.store.rooms[f.room2.ID] = room2

	delayed := f.seedBooking("CASE-D", f.room.ID, at(9, 0), at(11, 0))
	next := f.seedBooking("CASE-N", f.room.ID, at(11, 30), at(12, 30))
	f.seedBooking("CASE-EARLY", f.room.ID, at(7, 0), at(8, 0))

	result, err := f.rescheduler().DelayAndShift(context.Background(), &delayed, at(11, 0), 15, entity.DelayReasonStaff, nil)
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)

	got := f.store.booking(t, next.ID)
	assert.True(t, got.Schedule.PlannedStartTime.Equal(at(11, 45)))
	assert.Equal(t, entity.DelayReasonStaff, got.DelayLogs[0].Reason)
	assert.True(t, got.Arrangement.Blocking())

	plan, err := f.rescheduler().PlanDelayShift(context.Background(), &delayed, at(11, 0), 0, entity.DelayReasonStaff, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Moves)
}

func TestDisplacementEvents(t *testing.T) {
	result := &ApplyResult{Applied: []PlannedMove{
		{CaseCode: "CASE-A", Action: MoveActionMoved, NewRoomCode: "OT-2", RequireAck: true},
		{CaseCode: "CASE-C", Action: MoveActionPostponed, ShiftMinutes: 90},
	}}

	events := DisplacementEvents(PlanKindRipple, "CASE-E", result, at(9, 0))
	require.Len(t, events, 2)
	assert.Equal(t, EventBookingDisplaced, events[0].Type)
	assert.Equal(t, "Case CASE-A moved to OT-2 due CASE-E. Surgeon acceptance required.", events[0].Message)
	assert.Equal(t, "Case CASE-C postponed by 90 mins due CASE-E.", events[1].Message)
}
