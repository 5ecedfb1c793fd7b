package usecase

import (
	"context"
	"strings"

	"or-scheduler/internal/converter"
	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/domain/entity"
	"or-scheduler/internal/domain/repository"
	"or-scheduler/internal/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WorkflowUsecase drives a booking through its clinical day: lifecycle steps,
// checklist, material usage and the surgeon's arrangement sign-off.
type WorkflowUsecase interface {
	Transition(ctx context.Context, bookingID uuid.UUID, req *dto.TransitionRequest) (*dto.BookingResponse, error)
	UpdateChecklist(ctx context.Context, bookingID uuid.UUID, req *dto.ChecklistRequest) (*dto.BookingResponse, error)
	LogMaterialConsumption(ctx context.Context, bookingID uuid.UUID, req *dto.MaterialConsumptionRequest) (*dto.BookingResponse, error)
	AcknowledgeArrangement(ctx context.Context, bookingID uuid.UUID) (*dto.BookingResponse, error)
	RequestArrangementChange(ctx context.Context, bookingID uuid.UUID, req *dto.ChangeArrangementRequest) (*dto.BookingResponse, error)
}

type workflowUsecase struct {
	db          *gorm.DB
	log         *logrus.Logger
	bookingRepo repository.BookingRepository
	lifecycle   *service.Lifecycle
	arrangement *service.Arrangement
	notifier    service.Notifier
	displacer   displacer
}

func NewWorkflowUsecase(
	db *gorm.DB,
	log *logrus.Logger,
	bookingRepo repository.BookingRepository,
	lifecycle *service.Lifecycle,
	arrangement *service.Arrangement,
	notifier service.Notifier,
	auditService service.AuditService,
) WorkflowUsecase {
	return &workflowUsecase{
		db:          db,
		log:         log,
		bookingRepo: bookingRepo,
		lifecycle:   lifecycle,
		arrangement: arrangement,
		notifier:    notifier,
		displacer:   displacer{db: db, log: log, notifier: notifier, auditService: auditService},
	}
}

// authorize resolves the caller and checks they are on the case team.
// Admins may act on any case.
func (u *workflowUsecase) authorize(ctx context.Context, bookingID uuid.UUID) (*uuid.UUID, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if isAdmin(ctx) {
		return actorID, nil
	}

	booking, err := u.bookingRepo.FindByID(u.db.WithContext(ctx), bookingID)
	if err != nil {
		u.log.Warnf("Failed to find booking %s: %+v", bookingID, err)
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}

	for _, id := range booking.StaffIDs() {
		if id == *actorID {
			return actorID, nil
		}
	}
	return nil, ErrNotAssignedStaff
}

// Transition applies one lifecycle action to the booking.
//
// Flow:
// 1. Caller must be assigned to the case (or admin)
// 2. Apply the action through the lifecycle state machine
// 3. Audit and notify
func (u *workflowUsecase) Transition(ctx context.Context, bookingID uuid.UUID, req *dto.TransitionRequest) (*dto.BookingResponse, error) {
	actorID, err := u.authorize(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	result, err := u.lifecycle.Transition(ctx, service.TransitionInput{
		BookingID: bookingID,
		Action:    service.TransitionAction(strings.ToLower(strings.TrimSpace(req.Action))),
		ActorID:   actorID,
		Note:      req.Note,
		Reason:    entity.DelayReason(req.Reason),
		Minutes:   req.Minutes,
	})
	if err != nil {
		return nil, err
	}

	b := result.Booking
	u.displacer.audit(ctx, actorID, entity.AuditActionBookingTransition, b, map[string]interface{}{
		"action":      req.Action,
		"status":      b.Status,
		"room_status": b.RoomStatus,
	})
	service.NotifyAll(ctx, u.notifier, u.log, result.Events)

	u.log.Infof("Booking %s transitioned: action=%s, status=%s", b.CaseCode, req.Action, b.Status)
	return converter.BookingToResponse(b), nil
}

func (u *workflowUsecase) UpdateChecklist(ctx context.Context, bookingID uuid.UUID, req *dto.ChecklistRequest) (*dto.BookingResponse, error) {
	actorID, err := u.authorize(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	b, err := u.lifecycle.UpdateChecklist(ctx, bookingID, converter.ChecklistFromRequest(*req), actorID)
	if err != nil {
		return nil, err
	}

	u.displacer.audit(ctx, actorID, entity.AuditActionBookingChecklist, b, map[string]interface{}{
		"status":   b.Status,
		"complete": b.PreOpChecklist.Complete(b.Title + " " + b.ProcedureType),
	})
	return converter.BookingToResponse(b), nil
}

func (u *workflowUsecase) LogMaterialConsumption(ctx context.Context, bookingID uuid.UUID, req *dto.MaterialConsumptionRequest) (*dto.BookingResponse, error) {
	actorID, err := u.authorize(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	b, err := u.lifecycle.LogMaterialConsumption(ctx, bookingID, req.Name, req.Quantity, actorID)
	if err != nil {
		return nil, err
	}

	u.displacer.audit(ctx, actorID, entity.AuditActionBookingMaterial, b, map[string]interface{}{
		"material": req.Name,
		"quantity": req.Quantity,
	})
	return converter.BookingToResponse(b), nil
}

// AcknowledgeArrangement signs off a compromised arrangement as the assigned surgeon.
func (u *workflowUsecase) AcknowledgeArrangement(ctx context.Context, bookingID uuid.UUID) (*dto.BookingResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	result, err := u.arrangement.Acknowledge(ctx, bookingID, *actorID)
	if err != nil {
		return nil, err
	}

	b := result.Booking
	u.displacer.audit(ctx, actorID, entity.AuditActionArrangementAck, b, map[string]interface{}{
		"status":     b.Status,
		"ack_status": b.Arrangement.SurgeonAckStatus,
	})
	service.NotifyAll(ctx, u.notifier, u.log, result.Events)

	u.log.Infof("Arrangement acknowledged: booking=%s, status=%s", b.CaseCode, b.Status)
	return converter.BookingToResponse(b), nil
}

// RequestArrangementChange records the assigned surgeon's objection to the arrangement.
func (u *workflowUsecase) RequestArrangementChange(ctx context.Context, bookingID uuid.UUID, req *dto.ChangeArrangementRequest) (*dto.BookingResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	result, err := u.arrangement.RequestChange(ctx, bookingID, *actorID, req.Reason)
	if err != nil {
		return nil, err
	}

	b := result.Booking
	u.displacer.audit(ctx, actorID, entity.AuditActionArrangementChange, b, map[string]interface{}{
		"reason": b.Arrangement.ChangeRequestReason,
	})
	service.NotifyAll(ctx, u.notifier, u.log, result.Events)

	u.log.Infof("Arrangement change requested: booking=%s", b.CaseCode)
	return converter.BookingToResponse(b), nil
}
