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
)

const (
	lateFlagTolerance = 1.1
	turnoverMinutes   = 20
)

var (
	ErrCaseLocked         = apperror.Conflict("case is locked and cannot be modified")
	ErrArrangementPending = apperror.Conflict("arrangement acknowledgement pending")
)

type TransitionAction string

const (
	ActionPreOp              TransitionAction = "pre-op"
	ActionStartSetup         TransitionAction = "start-setup"
	ActionSignIn             TransitionAction = "sign-in"
	ActionSurgeonReady       TransitionAction = "surgeon-ready"
	ActionTimeOut            TransitionAction = "time-out"
	ActionTransferToRecovery TransitionAction = "transfer-to-recovery"
	ActionStartTurnover      TransitionAction = "start-turnover"
	ActionMarkCleaned        TransitionAction = "mark-cleaned"
	ActionCloseCase          TransitionAction = "close-case"
	ActionCancel             TransitionAction = "cancel"
	ActionPostpone           TransitionAction = "postpone"
	ActionSchedule           TransitionAction = "schedule"
)

// TransitionActions lists every action accepted by Transition.
var TransitionActions = []TransitionAction{
	ActionPreOp, ActionStartSetup, ActionSignIn, ActionSurgeonReady, ActionTimeOut,
	ActionTransferToRecovery, ActionStartTurnover, ActionMarkCleaned, ActionCloseCase,
	ActionCancel, ActionPostpone, ActionSchedule,
}

// ackExempt actions may run while an arrangement waits on the surgeon, so a
// compromised case can always be called off.
func ackExempt(a TransitionAction) bool {
	return a == ActionCancel || a == ActionPostpone
}

type TransitionInput struct {
	BookingID uuid.UUID
	Action    TransitionAction
	ActorID   *uuid.UUID
	Note      string
	// Reason and Minutes apply to postpone.
	Reason  entity.DelayReason
	Minutes int
}

type TransitionResult struct {
	Booking *entity.Booking
	Events  []Event
}

type Lifecycle struct {
	deps Deps
}

func NewLifecycle(deps Deps) *Lifecycle {
	return &Lifecycle{deps: deps}
}

// loadMutable re-reads a booking and rejects locked cases.
func (l *Lifecycle) loadMutable(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	b, err := l.deps.findBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.CaseLocked {
		return nil, ErrCaseLocked
	}
	return b, nil
}

func procedureText(b *entity.Booking) string {
	return b.Title + " " + b.ProcedureType
}

// Transition moves a booking through one clinical workflow step.
//
// Flow:
// 1. Re-read the booking; locked cases are rejected
// 2. Reject while the arrangement waits on the surgeon (cancel and postpone exempt)
// 3. Check the step's preconditions and apply it
// 4. Save with a version check and return the resulting events
func (l *Lifecycle) Transition(ctx context.Context, in TransitionInput) (*TransitionResult, error) {
	b, err := l.loadMutable(ctx, in.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Arrangement.Blocking() && !ackExempt(in.Action) {
		return nil, ErrArrangementPending
	}

	now := l.deps.now()
	from := b.Status
	var events []Event

	switch in.Action {
	case ActionPreOp:
		err = l.preOp(b, in, now)
	case ActionStartSetup:
		err = l.startSetup(b, in, now)
	case ActionSignIn:
		err = l.signIn(b, in, now)
	case ActionSurgeonReady:
		err = l.surgeonReady(b, in, now)
	case ActionTimeOut:
		err = l.timeOut(b, in, now)
	case ActionTransferToRecovery:
		events, err = l.transferToRecovery(ctx, b, in, now)
	case ActionStartTurnover:
		err = l.startTurnover(b, in, now)
	case ActionMarkCleaned:
		events, err = l.markCleaned(ctx, b, in, now)
	case ActionCloseCase:
		err = l.closeCase(b, in, now)
	case ActionCancel:
		err = l.cancel(b, in, now)
	case ActionPostpone:
		err = l.postpone(b, in, now)
	case ActionSchedule:
		err = l.schedule(ctx, b, in, now)
	default:
		return nil, apperror.Validation("unknown transition action %q", in.Action)
	}
	if err != nil {
		return nil, err
	}

	if err := l.deps.saveBooking(ctx, b); err != nil {
		return nil, err
	}

	events = append(events, Event{
		Type:       EventBookingStatusChange,
		BookingID:  b.ID,
		CaseCode:   b.CaseCode,
		RoomID:     b.RoomID,
		Recipients: b.StaffIDs(),
		Message:    fmt.Sprintf("Case %s: %s (%s -> %s)", b.CaseCode, in.Action, from, b.Status),
		Payload: map[string]interface{}{
			"action":      in.Action,
			"from":        from,
			"status":      b.Status,
			"room_status": b.RoomStatus,
		},
		OccurredAt: now,
	})
	return &TransitionResult{Booking: b, Events: events}, nil
}

func noteOr(note, fallback string) string {
	if n := strings.TrimSpace(note); n != "" {
		return n
	}
	return fallback
}

func (l *Lifecycle) preOp(b *entity.Booking, in TransitionInput, now time.Time) error {
	if b.Status != entity.BookingStatusScheduled {
		return apperror.Conflict("Cannot move to Pre-Op from %s", b.Status)
	}
	if missing := b.PreOpChecklist.Missing(procedureText(b)); len(missing) > 0 {
		return apperror.Conflict("Pre-Op checklist incomplete: %s", strings.Join(missing, ", "))
	}
	b.SetStatus(entity.BookingStatusPreOp, noteOr(in.Note, "Checklist completed"), in.ActorID, now)
	return nil
}

func (l *Lifecycle) startSetup(b *entity.Booking, in TransitionInput, now time.Time) error {
	if !b.HasStatus(entity.BookingStatusScheduled, entity.BookingStatusPreOp) {
		return apperror.Conflict("Cannot start setup when status is %s", b.Status)
	}
	b.Workflow.SetupStartedAt = &now
	b.RoomStatus = entity.RoomStatusReady
	b.AddHistory(noteOr(in.Note, "Room setup started"), in.ActorID, now)
	return nil
}

func (l *Lifecycle) signIn(b *entity.Booking, in TransitionInput, now time.Time) error {
	if b.Workflow.SetupStartedAt == nil {
		return apperror.Conflict("Cannot complete Sign-In before room setup is started")
	}
	b.Workflow.SignInCompletedAt = &now
	if b.Schedule.ActualTimeIn == nil {
		b.Schedule.ActualTimeIn = &now
	}
	b.RoomStatus = entity.RoomStatusPatientInRoom
	b.AddHistory(noteOr(in.Note, "WHO Sign-In completed"), in.ActorID, now)
	return nil
}

func (l *Lifecycle) surgeonReady(b *entity.Booking, in TransitionInput, now time.Time) error {
	if b.Workflow.SignInCompletedAt == nil {
		return apperror.Conflict("Cannot mark surgeon ready before WHO Sign-In is completed")
	}
	if !b.PreOpChecklist.Complete(procedureText(b)) {
		return apperror.Conflict("Cannot mark ready before Pre-Op checklist is completed")
	}
	b.SurgeonReady = true
	b.Workflow.SurgeonReadyAt = &now
	b.AddHistory(noteOr(in.Note, "Surgeon marked ready"), in.ActorID, now)
	return nil
}

func (l *Lifecycle) timeOut(b *entity.Booking, in TransitionInput, now time.Time) error {
	if b.Workflow.SignInCompletedAt == nil {
		return apperror.Conflict("Sign-In must be completed before Time-Out")
	}
	if !b.SurgeonReady {
		return apperror.Conflict("Surgeon must mark ready before Time-Out")
	}
	if !b.PreOpChecklist.Complete(procedureText(b)) {
		return apperror.Conflict("Pre-Op checklist must be completed before Time-Out")
	}
	if !b.HasStatus(entity.BookingStatusScheduled, entity.BookingStatusPreOp, entity.BookingStatusDelayed) {
		return apperror.Conflict("Cannot move to In-Progress from %s. Complete previous workflow step first.", b.Status)
	}

	b.Workflow.TimeOutCompletedAt = &now
	if b.Schedule.ActualTimeIn == nil {
		b.Schedule.ActualTimeIn = &now
	}
	if b.Schedule.ActualStartTime == nil {
		b.Schedule.ActualStartTime = &now
	}
	b.RoomStatus = entity.RoomStatusLive
	if now.After(b.Schedule.PlannedStartTime) {
		b.SetStatus(entity.BookingStatusDelayed, noteOr(in.Note, "Start delayed - reason required"), in.ActorID, now)
	} else {
		b.SetStatus(entity.BookingStatusInProgress, noteOr(in.Note, "Surgeon Time-Out logged (incision timestamp captured)"), in.ActorID, now)
	}
	return nil
}

func (l *Lifecycle) transferToRecovery(ctx context.Context, b *entity.Booking, in TransitionInput, now time.Time) ([]Event, error) {
	if !b.HasStatus(entity.BookingStatusInProgress, entity.BookingStatusDelayed) || b.Schedule.ActualStartTime == nil {
		return nil, apperror.Conflict("Cannot transfer to PACU from %s. Start surgery first.", b.Status)
	}

	b.Schedule.AnesthesiaReleasedAt = &now
	if b.Schedule.ActualEndTime == nil {
		b.Schedule.ActualEndTime = &now
	}
	actual := int(b.Schedule.ActualEndTime.Sub(*b.Schedule.ActualStartTime) / time.Minute)
	b.Schedule.ActualDurationMinutes = &actual
	b.RoomStatus = entity.RoomStatusRecovery
	b.SetStatus(entity.BookingStatusRecovery, noteOr(in.Note, "Transferred to PACU (anesthesia released)"), in.ActorID, now)

	event, err := l.lateFlag(ctx, b, actual, now)
	if err != nil || event == nil {
		return nil, err
	}
	return []Event{*event}, nil
}

// lateFlag fires once per booking when the actual duration overruns the
// estimate by more than 10%, naming the next case in the room.
func (l *Lifecycle) lateFlag(ctx context.Context, b *entity.Booking, actual int, now time.Time) (*Event, error) {
	estimated := b.Schedule.EstimatedDurationMinutes
	if estimated <= 0 || b.Schedule.LateFlagSentAt != nil {
		return nil, nil
	}
	if float64(actual) <= float64(estimated)*lateFlagTolerance {
		return nil, nil
	}

	next, err := l.nextCase(ctx, b, now, nil)
	if err != nil {
		return nil, err
	}

	b.Schedule.LateFlagSentAt = &now
	msg := fmt.Sprintf("Late flag: %s exceeded estimate by >10%% (%dm vs %dm).", b.CaseCode, actual, estimated)
	event := &Event{
		Type:       EventCaseRunningLate,
		BookingID:  b.ID,
		CaseCode:   b.CaseCode,
		RoomID:     b.RoomID,
		Recipients: b.StaffIDs(),
		Payload:    map[string]interface{}{"estimated": estimated, "actual": actual},
		OccurredAt: now,
	}
	if next != nil {
		msg += " Next queue: " + next.CaseCode
		event.Recipients = append(event.Recipients, next.StaffIDs()...)
		event.Payload["next_booking_id"] = next.ID
		event.Payload["next_case_code"] = next.CaseCode
	}
	event.Message = msg
	return event, nil
}

func (l *Lifecycle) nextCase(ctx context.Context, b *entity.Booking, from time.Time, statuses []entity.BookingStatus) (*entity.Booking, error) {
	queue, err := l.deps.Bookings.FindRoomQueue(l.deps.conn(ctx), entity.RoomQueueQuery{
		RoomID:    b.RoomID,
		From:      from,
		ExcludeID: b.ID,
		Statuses:  statuses,
		Limit:     1,
	})
	if err != nil {
		l.deps.Log.Warnf("Failed to find next case after %s: %+v", b.CaseCode, err)
		return nil, fmt.Errorf("find next case: %w", err)
	}
	if len(queue) == 0 {
		return nil, nil
	}
	return &queue[0], nil
}

func (l *Lifecycle) startTurnover(b *entity.Booking, in TransitionInput, now time.Time) error {
	if b.Status != entity.BookingStatusRecovery {
		return apperror.Conflict("Cannot request turnover while status is %s. Transfer to PACU first.", b.Status)
	}
	ends := now.Add(turnoverMinutes * time.Minute)
	b.Workflow.TurnoverRequestedAt = &now
	b.TurnoverEndsAt = &ends
	b.RoomStatus = entity.RoomStatusCleaning
	b.SetStatus(entity.BookingStatusCleaning, noteOr(in.Note, "Turnover requested"), in.ActorID, now)
	return nil
}

func (l *Lifecycle) markCleaned(ctx context.Context, b *entity.Booking, in TransitionInput, now time.Time) ([]Event, error) {
	if b.Status != entity.BookingStatusCleaning {
		return nil, apperror.Conflict("Cannot mark room cleaned while status is %s. Start cleaning first.", b.Status)
	}
	b.Workflow.CleanedAt = &now
	b.TurnoverEndsAt = &now
	b.RoomStatus = entity.RoomStatusReady
	b.SetStatus(entity.BookingStatusPostOp, noteOr(in.Note, "Room cleaned and ready (awaiting surgeon close)"), in.ActorID, now)

	next, err := l.nextCase(ctx, b, now, []entity.BookingStatus{entity.BookingStatusScheduled, entity.BookingStatusPreOp})
	if err != nil || next == nil {
		return nil, err
	}
	return []Event{{
		Type:       EventNextPatientReady,
		BookingID:  next.ID,
		CaseCode:   next.CaseCode,
		RoomID:     b.RoomID,
		Recipients: next.StaffIDs(),
		Message:    fmt.Sprintf("Room ready after %s. Bring next patient for %s.", b.CaseCode, next.CaseCode),
		Payload:    map[string]interface{}{"previous_booking_id": b.ID},
		OccurredAt: now,
	}}, nil
}

func (l *Lifecycle) closeCase(b *entity.Booking, in TransitionInput, now time.Time) error {
	if !b.HasStatus(entity.BookingStatusPostOp, entity.BookingStatusCompleted, entity.BookingStatusCleaning, entity.BookingStatusRecovery) {
		return apperror.Conflict("Cannot close case while status is %s. Finish procedural workflow first.", b.Status)
	}
	b.CaseLocked = true
	b.CaseLockedAt = &now
	b.CaseLockedBy = in.ActorID
	b.RoomStatus = entity.RoomStatusIdle
	b.SetStatus(entity.BookingStatusCompleted, noteOr(in.Note, "Case closed and locked"), in.ActorID, now)
	return nil
}

func started(b *entity.Booking) bool {
	return b.Schedule.ActualStartTime != nil
}

func (l *Lifecycle) cancel(b *entity.Booking, in TransitionInput, now time.Time) error {
	if started(b) || !b.HasStatus(entity.BookingStatusPending, entity.BookingStatusScheduled, entity.BookingStatusPreOp,
		entity.BookingStatusPostponed, entity.BookingStatusDelayed) {
		return apperror.Conflict("Cannot cancel case while status is %s", b.Status)
	}
	if len(b.Arrangement.AppliedAlternatives) > 0 {
		b.Arrangement.ReservationReleasedAt = &now
	}
	b.RoomStatus = entity.RoomStatusIdle
	b.SetStatus(entity.BookingStatusCancelled, noteOr(in.Note, "Case cancelled"), in.ActorID, now)
	return nil
}

func (l *Lifecycle) postpone(b *entity.Booking, in TransitionInput, now time.Time) error {
	if started(b) || !b.HasStatus(entity.BookingStatusPending, entity.BookingStatusScheduled, entity.BookingStatusPreOp,
		entity.BookingStatusDelayed) {
		return apperror.Conflict("Cannot postpone case while status is %s", b.Status)
	}
	if in.Minutes < 0 {
		return apperror.Validation("minutes must not be negative")
	}
	reason := in.Reason
	if !entity.ValidDelayReason(reason) {
		reason = entity.DelayReasonOther
	}
	if in.Minutes > 0 {
		b.Schedule.Shift(time.Duration(in.Minutes) * time.Minute)
	}
	b.AddDelay(entity.DelayLog{
		Reason:   reason,
		Minutes:  in.Minutes,
		Note:     strings.TrimSpace(in.Note),
		LoggedBy: in.ActorID,
		LoggedAt: now,
	})
	b.RoomStatus = entity.RoomStatusIdle
	b.SetStatus(entity.BookingStatusPostponed, noteOr(in.Note, "Case postponed"), in.ActorID, now)
	return nil
}

func (l *Lifecycle) schedule(ctx context.Context, b *entity.Booking, in TransitionInput, now time.Time) error {
	switch b.Status {
	case entity.BookingStatusPostponed:
	case entity.BookingStatusPending:
		cleared, err := l.pacCleared(ctx, b.PatientID)
		if err != nil {
			return err
		}
		if !cleared {
			return apperror.Conflict("patient PAC clearance is pending")
		}
	default:
		return apperror.Conflict("Cannot schedule case while status is %s", b.Status)
	}
	b.SetStatus(entity.BookingStatusScheduled, noteOr(in.Note, "Scheduled"), in.ActorID, now)
	return nil
}

func (l *Lifecycle) pacCleared(ctx context.Context, patientID uuid.UUID) (bool, error) {
	patient, err := l.deps.Patients.FindByID(l.deps.conn(ctx), patientID)
	if err != nil {
		l.deps.Log.Warnf("Failed to find patient %s: %+v", patientID, err)
		return false, fmt.Errorf("find patient: %w", err)
	}
	if patient == nil {
		return false, apperror.NotFound("patient not found")
	}
	return patient.IsPACCleared(), nil
}

// ====================================================================
// Checklist, materials and delays
// ====================================================================

// UpdateChecklist replaces the pre-op checklist. A complete checklist moves a
// Scheduled case to Pre-Op unless its arrangement still waits on the surgeon.
func (l *Lifecycle) UpdateChecklist(ctx context.Context, bookingID uuid.UUID, checklist entity.PreOpChecklist, actorID *uuid.UUID) (*entity.Booking, error) {
	b, err := l.loadMutable(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if checklist.AnesthesiaMachineCheck == "" {
		checklist.AnesthesiaMachineCheck = entity.MachineCheckPending
	}

	now := l.deps.now()
	b.PreOpChecklist = checklist
	if b.Status == entity.BookingStatusScheduled && checklist.Complete(procedureText(b)) && !b.Arrangement.Blocking() {
		b.SetStatus(entity.BookingStatusPreOp, "Checklist completed", actorID, now)
	}

	if err := l.deps.saveBooking(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// LogMaterialConsumption records used quantity against the booking's materials.
func (l *Lifecycle) LogMaterialConsumption(ctx context.Context, bookingID uuid.UUID, name string, quantity int, actorID *uuid.UUID) (*entity.Booking, error) {
	name = textmatch.CanonicalMaterial(name)
	if name == "" || quantity <= 0 {
		return nil, apperror.Validation("name and positive quantity are required")
	}
	b, err := l.loadMutable(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range b.Resources.Materials {
		if textmatch.SameMaterial(b.Resources.Materials[i].Name, name) {
			b.Resources.Materials[i].Consumed += quantity
			found = true
			break
		}
	}
	if !found {
		b.Resources.Materials = append(b.Resources.Materials, entity.Material{Name: name, Quantity: quantity, Consumed: quantity})
	}

	b.AddHistory(fmt.Sprintf("Material consumed: %s x%d", name, quantity), actorID, l.deps.now())
	if err := l.deps.saveBooking(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

type DelayInput struct {
	BookingID uuid.UUID
	Minutes   int
	Reason    entity.DelayReason
	Note      string
	ActorID   *uuid.UUID
}

type DelayResult struct {
	Booking     *entity.Booking
	PreviousEnd time.Time
}

// LogDelay records a delay on a booking. A case that has not started moves its
// whole window; a running case extends its end.
func (l *Lifecycle) LogDelay(ctx context.Context, in DelayInput) (*DelayResult, error) {
	if in.Minutes <= 0 {
		return nil, apperror.Validation("minutes must be a positive number")
	}
	b, err := l.loadMutable(ctx, in.BookingID)
	if err != nil {
		return nil, err
	}
	if !b.HasStatus(entity.BookingStatusScheduled, entity.BookingStatusPreOp, entity.BookingStatusInProgress, entity.BookingStatusDelayed) {
		return nil, apperror.Conflict("Cannot log a delay while status is %s", b.Status)
	}

	reason := in.Reason
	if !entity.ValidDelayReason(reason) {
		reason = entity.DelayReasonOther
	}

	now := l.deps.now()
	previousEnd := b.Schedule.PlannedEndTime
	d := time.Duration(in.Minutes) * time.Minute
	if started(b) {
		b.Schedule.PlannedEndTime = b.Schedule.PlannedEndTime.Add(d)
		b.Schedule.BufferEndTime = b.Schedule.BufferEndTime.Add(d)
		b.Schedule.EstimatedFinishTime = b.Schedule.EstimatedFinishTime.Add(d)
		b.Schedule.EstimatedDurationMinutes += in.Minutes
	} else {
		b.Schedule.Shift(d)
	}

	b.AddDelay(entity.DelayLog{
		Reason:   reason,
		Minutes:  in.Minutes,
		Note:     strings.TrimSpace(fmt.Sprintf("%s: +%d mins %s", reason, in.Minutes, in.Note)),
		LoggedBy: in.ActorID,
		LoggedAt: now,
	})
	b.SetStatus(entity.BookingStatusDelayed, fmt.Sprintf("Delay added: +%d mins", in.Minutes), in.ActorID, now)

	if err := l.deps.saveBooking(ctx, b); err != nil {
		return nil, err
	}
	return &DelayResult{Booking: b, PreviousEnd: previousEnd}, nil
}
