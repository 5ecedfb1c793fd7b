package service

import (
	"context"
	"fmt"
	"strings"

	"or-scheduler/internal/domain/entity"
	"or-scheduler/pkg/apperror"

	"github.com/google/uuid"
)

const minChangeReasonLength = 5

var ErrNotAssignedSurgeon = apperror.Forbidden("only the assigned surgeon can respond to this arrangement")

// Arrangement lets the assigned surgeon sign off on, or push back against, a
// compromised booking arrangement.
type Arrangement struct {
	deps Deps
}

func NewArrangement(deps Deps) *Arrangement {
	return &Arrangement{deps: deps}
}

func (a *Arrangement) loadForSurgeon(ctx context.Context, bookingID, surgeonID uuid.UUID) (*entity.Booking, error) {
	b, err := a.deps.findBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Team.SurgeonID != surgeonID {
		return nil, ErrNotAssignedSurgeon
	}
	if b.CaseLocked {
		return nil, ErrCaseLocked
	}
	return b, nil
}

// Acknowledge accepts the current arrangement.
//
// Flow:
// 1. Only the assigned surgeon may acknowledge
// 2. Mark the arrangement acknowledged (or not required when nothing was flagged)
// 3. Postponed cases return to Scheduled; Pending cases advance once PAC is cleared
// 4. Save and notify the anesthesiologist and nurses
func (a *Arrangement) Acknowledge(ctx context.Context, bookingID, surgeonID uuid.UUID) (*TransitionResult, error) {
	b, err := a.loadForSurgeon(ctx, bookingID, surgeonID)
	if err != nil {
		return nil, err
	}

	now := a.deps.now()
	actor := &surgeonID
	if !b.Arrangement.RequiresSurgeonAck {
		b.Arrangement.SurgeonAckStatus = entity.AckNotRequired
	} else {
		b.Arrangement.SurgeonAckStatus = entity.AckAcknowledged
		b.Arrangement.AcknowledgedBy = actor
		b.Arrangement.AcknowledgedAt = &now
		b.Arrangement.ChangeRequestReason = ""
		b.Arrangement.ChangeRequestedAt = nil
	}
	b.AddHistory("Surgeon acknowledged OT arrangement", actor, now)

	switch b.Status {
	case entity.BookingStatusPostponed:
		b.SetStatus(entity.BookingStatusScheduled, "Rescheduled case accepted by surgeon", actor, now)
	case entity.BookingStatusPending:
		patient, err := a.deps.Patients.FindByID(a.deps.conn(ctx), b.PatientID)
		if err != nil {
			a.deps.Log.Warnf("Failed to find patient %s: %+v", b.PatientID, err)
			return nil, fmt.Errorf("find patient: %w", err)
		}
		if patient != nil && patient.IsPACCleared() {
			b.SetStatus(entity.BookingStatusScheduled, "Scheduled after surgeon arrangement acknowledgment", actor, now)
		} else {
			b.AddHistory("Waiting for PAC clearance", actor, now)
		}
	}

	if err := a.deps.saveBooking(ctx, b); err != nil {
		return nil, err
	}

	recipients := []uuid.UUID{b.Team.AnesthesiologistID}
	recipients = append(recipients, b.Team.Nurses()...)
	event := Event{
		Type:       EventBookingStatusChange,
		BookingID:  b.ID,
		CaseCode:   b.CaseCode,
		RoomID:     b.RoomID,
		Recipients: recipients,
		Message:    fmt.Sprintf("Surgeon acknowledged arrangement for %s", b.CaseCode),
		Payload:    map[string]interface{}{"ack_status": b.Arrangement.SurgeonAckStatus, "status": b.Status},
		OccurredAt: now,
	}
	return &TransitionResult{Booking: b, Events: []Event{event}}, nil
}

// RequestChange records the surgeon's objection to the arrangement. The
// booking stays blocked until the arrangement is reworked and acknowledged.
func (a *Arrangement) RequestChange(ctx context.Context, bookingID, surgeonID uuid.UUID, reason string) (*TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minChangeReasonLength {
		return nil, apperror.Validation("reason must be at least %d characters", minChangeReasonLength)
	}
	b, err := a.loadForSurgeon(ctx, bookingID, surgeonID)
	if err != nil {
		return nil, err
	}

	now := a.deps.now()
	actor := &surgeonID
	b.Arrangement.RequiresSurgeonAck = true
	b.Arrangement.SurgeonAckStatus = entity.AckChangeRequested
	b.Arrangement.ChangeRequestReason = reason
	b.Arrangement.ChangeRequestedAt = &now
	b.Arrangement.AcknowledgedBy = nil
	b.Arrangement.AcknowledgedAt = nil
	b.AddHistory("Surgeon requested arrangement change: "+reason, actor, now)

	if err := a.deps.saveBooking(ctx, b); err != nil {
		return nil, err
	}

	if err := a.mirrorOnRequest(ctx, b, entity.ChangeRequest{Reason: reason, RequestedBy: surgeonID, RequestedAt: now}); err != nil {
		return nil, err
	}

	event := Event{
		Type:       EventChangeRequested,
		BookingID:  b.ID,
		CaseCode:   b.CaseCode,
		RoomID:     b.RoomID,
		Message:    fmt.Sprintf("Surgeon requested arrangement change for %s: %s", b.CaseCode, reason),
		Payload:    map[string]interface{}{"reason": reason},
		OccurredAt: now,
	}
	return &TransitionResult{Booking: b, Events: []Event{event}}, nil
}

func (a *Arrangement) mirrorOnRequest(ctx context.Context, b *entity.Booking, change entity.ChangeRequest) error {
	if a.deps.Requests == nil {
		return nil
	}
	request, err := a.deps.Requests.FindByBookingID(a.deps.conn(ctx), b.ID)
	if err != nil {
		a.deps.Log.Warnf("Failed to find request for booking %s: %+v", b.ID, err)
		return fmt.Errorf("find request: %w", err)
	}
	if request == nil {
		return nil
	}
	request.ChangeRequest = &change
	if err := a.deps.Requests.Update(a.deps.conn(ctx), request); err != nil {
		a.deps.Log.Warnf("Failed to update request %s: %+v", request.ID, err)
		return fmt.Errorf("update request: %w", err)
	}
	return nil
}
