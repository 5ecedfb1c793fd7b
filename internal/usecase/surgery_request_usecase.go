package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"or-scheduler/internal/converter"
	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/domain/entity"
	"or-scheduler/internal/domain/repository"
	"or-scheduler/internal/service"
	"or-scheduler/pkg/apperror"
	"or-scheduler/pkg/textmatch"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrRequestNotFound   = apperror.NotFound("surgery request not found")
	ErrRequestNotOpen    = apperror.Conflict("surgery request is no longer open")
	ErrRequestNotOwned   = apperror.Forbidden("surgery request does not belong to you")
	ErrRequestNoBooking  = apperror.Conflict("surgery request has no booking to finalize")
	ErrRoomNotSuggested  = apperror.NotFound("selected room is not an active operating room")
	ErrGapUnresolvable   = apperror.Conflict(service.GapMessageImpossible)
	ErrGapNotAcknowledge = apperror.Conflict(service.GapMessageAcknowledge)
)

type SurgeryRequestUsecase interface {
	// surgeon
	CreateRequest(ctx context.Context, req *dto.CreateSurgeryRequestRequest) (*dto.SurgeryRequestResponse, error)
	GetMyRequests(ctx context.Context) (*dto.SurgeryRequestListResponse, error)
	CancelRequest(ctx context.Context, requestID uuid.UUID) (*dto.SurgeryRequestResponse, error)

	// admin
	GetAllRequests(ctx context.Context, status string) (*dto.SurgeryRequestListResponse, error)
	GetRequest(ctx context.Context, requestID uuid.UUID) (*dto.SurgeryRequestResponse, error)
	ReviewRequest(ctx context.Context, requestID uuid.UUID, req *dto.ReviewSurgeryRequestRequest) (*dto.SurgeryRequestResponse, error)
	GetSuggestions(ctx context.Context, requestID uuid.UUID, start *time.Time) (*dto.SuggestionResponse, error)
	ConfirmRequest(ctx context.Context, requestID uuid.UUID, req *dto.ConfirmSurgeryRequestRequest) (*dto.ConfirmSurgeryRequestResponse, error)
	FinalizeRequest(ctx context.Context, requestID uuid.UUID) (*dto.BookingResponse, error)
	RejectRequest(ctx context.Context, requestID uuid.UUID, req *dto.RejectSurgeryRequestRequest) (*dto.SurgeryRequestResponse, error)
}

type surgeryRequestUsecase struct {
	db           *gorm.DB
	log          *logrus.Logger
	requestRepo  repository.SurgeryRequestRepository
	bookingRepo  repository.BookingRepository
	patientRepo  repository.PatientRepository
	scorer       *service.RoomScorer
	validator    *service.ScheduleValidator
	rescheduler  *service.Rescheduler
	lifecycle    *service.Lifecycle
	locker       service.SlotLocker
	notifier     service.Notifier
	auditService service.AuditService
	displacer    displacer
}

func NewSurgeryRequestUsecase(
	db *gorm.DB,
	log *logrus.Logger,
	requestRepo repository.SurgeryRequestRepository,
	bookingRepo repository.BookingRepository,
	patientRepo repository.PatientRepository,
	scorer *service.RoomScorer,
	validator *service.ScheduleValidator,
	rescheduler *service.Rescheduler,
	lifecycle *service.Lifecycle,
	locker service.SlotLocker,
	notifier service.Notifier,
	auditService service.AuditService,
) SurgeryRequestUsecase {
	return &surgeryRequestUsecase{
		db:           db,
		log:          log,
		requestRepo:  requestRepo,
		bookingRepo:  bookingRepo,
		patientRepo:  patientRepo,
		scorer:       scorer,
		validator:    validator,
		rescheduler:  rescheduler,
		lifecycle:    lifecycle,
		locker:       locker,
		notifier:     notifier,
		auditService: auditService,
		displacer:    displacer{db: db, log: log, notifier: notifier, auditService: auditService},
	}
}

// CreateRequest stores a surgeon's request for an unscheduled case
func (u *surgeryRequestUsecase) CreateRequest(ctx context.Context, req *dto.CreateSurgeryRequestRequest) (*dto.SurgeryRequestResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	patient, err := u.patientRepo.FindByID(u.db.WithContext(ctx), req.PatientID)
	if err != nil {
		u.log.Warnf("Failed to find patient %s: %+v", req.PatientID, err)
		return nil, err
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}

	request := converter.SurgeryRequestFromRequest(req, patient)
	request.ID = uuid.New()
	request.Code = generateCode("REQ", req.PreferredStart)
	request.RequestedBy = *actorID

	tx := u.db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := u.requestRepo.Create(tx, request); err != nil {
		u.log.Warnf("Failed to create surgery request: %+v", err)
		return nil, err
	}

	if err := u.auditService.LogCreate(ctx, tx, actorID, entity.AuditActionRequestCreate, "surgery_request", request.ID.String(), request); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		u.log.Warnf("Failed to commit surgery request: %+v", err)
		return nil, err
	}

	u.log.Infof("Surgery request created: code=%s, surgeon=%s", request.Code, request.RequestedBy)
	return converter.SurgeryRequestToResponse(request), nil
}

func (u *surgeryRequestUsecase) GetMyRequests(ctx context.Context) (*dto.SurgeryRequestListResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	requests, err := u.requestRepo.FindByRequester(u.db.WithContext(ctx), *actorID)
	if err != nil {
		u.log.Warnf("Failed to find requests for surgeon %s: %+v", actorID, err)
		return nil, err
	}

	return &dto.SurgeryRequestListResponse{
		Requests: converter.SurgeryRequestsToResponses(requests),
		Total:    len(requests),
	}, nil
}

// CancelRequest withdraws an open request. Only the requesting surgeon may cancel.
func (u *surgeryRequestUsecase) CancelRequest(ctx context.Context, requestID uuid.UUID) (*dto.SurgeryRequestResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	request, err := u.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.RequestedBy != *actorID {
		return nil, ErrRequestNotOwned
	}
	if !request.IsOpen() {
		return nil, ErrRequestNotOpen
	}

	previous := request.Status
	request.Status = entity.RequestStatusCancelled
	if err := u.saveRequest(ctx, actorID, entity.AuditActionRequestCancel, request, previous); err != nil {
		return nil, err
	}
	return converter.SurgeryRequestToResponse(request), nil
}

func (u *surgeryRequestUsecase) GetAllRequests(ctx context.Context, status string) (*dto.SurgeryRequestListResponse, error) {
	var filter *entity.RequestStatus
	if status != "" {
		s := entity.RequestStatus(status)
		filter = &s
	}

	requests, err := u.requestRepo.FindAll(u.db.WithContext(ctx), filter)
	if err != nil {
		u.log.Warnf("Failed to find surgery requests: %+v", err)
		return nil, err
	}

	return &dto.SurgeryRequestListResponse{
		Requests: converter.SurgeryRequestsToResponses(requests),
		Total:    len(requests),
	}, nil
}

func (u *surgeryRequestUsecase) GetRequest(ctx context.Context, requestID uuid.UUID) (*dto.SurgeryRequestResponse, error) {
	request, err := u.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return converter.SurgeryRequestToResponse(request), nil
}

// ReviewRequest marks an open request as under review
func (u *surgeryRequestUsecase) ReviewRequest(ctx context.Context, requestID uuid.UUID, req *dto.ReviewSurgeryRequestRequest) (*dto.SurgeryRequestResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	request, err := u.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !request.IsOpen() {
		return nil, ErrRequestNotOpen
	}

	now := time.Now()
	previous := request.Status
	request.Status = entity.RequestStatusUnderReview
	request.ReviewedBy = actorID
	request.ReviewedAt = &now
	if notes := strings.TrimSpace(req.AdminNotes); notes != "" {
		request.AdminNotes = notes
	}

	if err := u.saveRequest(ctx, actorID, entity.AuditActionRequestReview, request, previous); err != nil {
		return nil, err
	}
	return converter.SurgeryRequestToResponse(request), nil
}

// GetSuggestions ranks every active room for the request
func (u *surgeryRequestUsecase) GetSuggestions(ctx context.Context, requestID uuid.UUID, start *time.Time) (*dto.SuggestionResponse, error) {
	request, err := u.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	in := service.ScoreInputFromRequest(request, start)
	result, err := u.scorer.ScoreRequest(ctx, in)
	if err != nil {
		return nil, err
	}

	return &dto.SuggestionResponse{
		RequestID: request.ID,
		Start:     in.Start,
		End:       in.End,
		Result:    result,
	}, nil
}

// ConfirmRequest turns a request into a booking in the admin-picked room.
//
// Flow:
// 1. Score every room and evaluate the selected one
// 2. Unresolvable items are rejected; gaps need the admin's acknowledgement
// 3. Take the slot lock and validate the booking
// 4. Insert booking, update request + audit in one transaction
// 5. Force-postpone overridden collisions and notify the surgeon when the
//    arrangement needs sign-off
func (u *surgeryRequestUsecase) ConfirmRequest(ctx context.Context, requestID uuid.UUID, req *dto.ConfirmSurgeryRequestRequest) (*dto.ConfirmSurgeryRequestResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	overrides, err := parseOverrides(req.ForceOverrides)
	if err != nil {
		return nil, err
	}

	request, err := u.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !request.IsOpen() {
		return nil, ErrRequestNotOpen
	}

	patient, err := u.patientRepo.FindByID(u.db.WithContext(ctx), request.PatientID)
	if err != nil {
		u.log.Warnf("Failed to find patient %s: %+v", request.PatientID, err)
		return nil, err
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}

	// Step 1: score and evaluate the selection
	in := service.ScoreInputFromRequest(request, req.Start)
	scored, err := u.scorer.ScoreRequest(ctx, in)
	if err != nil {
		return nil, err
	}
	gap := u.scorer.EvaluateSelection(scored, req.RoomID)
	if gap.Selected == nil {
		return nil, ErrRoomNotSuggested
	}

	// Step 2: gate on the gap report
	if gap.HasUnresolvable {
		return nil, ErrGapUnresolvable
	}
	if gap.RequiresAcknowledge && !req.AcknowledgeGap {
		return nil, ErrGapNotAcknowledge
	}

	// Step 3 + 4
	booking, result, err := u.validateAndCommit(ctx, request, patient, req, in, gap, overrides, actorID)
	if err != nil {
		return nil, err
	}

	resp := &dto.ConfirmSurgeryRequestResponse{
		Request:  converter.SurgeryRequestToResponse(request),
		Booking:  converter.BookingToResponse(booking),
		Gap:      gap,
		Warnings: result.Warnings,
	}

	// Step 5
	if len(overrides) > 0 {
		resp.Displacements = append(resp.Displacements, u.displacer.run(ctx, actorID, service.PlanKindForcePostpone, booking, func() (*service.ApplyResult, error) {
			return u.rescheduler.ForcePostpone(ctx, booking, overrides, actorID)
		}))
	}
	if booking.Arrangement.Blocking() {
		service.NotifyAll(ctx, u.notifier, u.log, []service.Event{{
			Type:       service.EventArrangementPending,
			BookingID:  booking.ID,
			CaseCode:   booking.CaseCode,
			RoomID:     booking.RoomID,
			Recipients: []uuid.UUID{booking.Team.SurgeonID},
			Message:    fmt.Sprintf("Case %s confirmed in %s with a compromised arrangement. Surgeon acknowledgement required.", booking.CaseCode, gap.Selected.RoomCode),
			Payload: map[string]interface{}{
				"gap_items":            booking.Arrangement.GapItems,
				"applied_alternatives": booking.Arrangement.AppliedAlternatives,
			},
			OccurredAt: time.Now(),
		}})
	}

	u.log.Infof("Surgery request confirmed: request=%s, booking=%s, room=%s, status=%s", request.Code, booking.CaseCode, gap.Selected.RoomCode, booking.Status)
	return resp, nil
}

func (u *surgeryRequestUsecase) validateAndCommit(
	ctx context.Context,
	request *entity.SurgeryRequest,
	patient *entity.Patient,
	req *dto.ConfirmSurgeryRequestRequest,
	in service.ScoreInput,
	gap *service.GapEvaluation,
	overrides []apperror.ConflictType,
	actorID *uuid.UUID,
) (*entity.Booking, *service.ValidationResult, error) {
	anesthesia := entity.AnesthesiaType(req.AnesthesiaType)
	if anesthesia == "" {
		anesthesia = request.Procedure.AnesthesiaPreference
	}
	if anesthesia == "" {
		anesthesia = entity.AnesthesiaGeneral
	}
	team := entity.Team{
		SurgeonID:          request.RequestedBy,
		AssistantSurgeonID: req.AssistantSurgeonID,
		AnesthesiologistID: req.AnesthesiologistID,
		AnesthesiaType:     anesthesia,
		NurseIDs:           entity.NurseIDStrings(req.NurseIDs),
	}
	alternatives := gap.Selected.AppliedAlternatives()
	resources := requestResources(request, alternatives)

	release, err := u.locker.Acquire(ctx, service.SlotKeys(req.RoomID, team))
	if err != nil {
		return nil, nil, err
	}
	defer release()

	result, err := u.validator.Validate(ctx, service.ValidateInput{
		RoomID:           req.RoomID,
		Priority:         request.Procedure.Urgency,
		Title:            request.Procedure.Name,
		ProcedureType:    request.Procedure.ProcedureType,
		Team:             team,
		Start:            in.Start,
		End:              in.End,
		AnesthesiaPrepAt: req.AnesthesiaPrepAt,
		Resources:        resources,
		Options:          service.ValidateOptions{ForceOverrides: overrides},
	})
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	priority := request.Procedure.Urgency
	if priority == "" {
		priority = entity.PriorityElective
	}
	requestID := request.ID
	booking := &entity.Booking{
		ID:             uuid.New(),
		CaseCode:       generateCode("CASE", in.Start),
		Title:          request.Procedure.Name,
		ProcedureType:  request.Procedure.ProcedureType,
		PatientID:      patient.ID,
		RequestID:      &requestID,
		Priority:       priority,
		Team:           team,
		PreOpChecklist: entity.PreOpChecklist{AnesthesiaMachineCheck: entity.MachineCheckPending},
		Arrangement:    entity.Arrangement{SurgeonAckStatus: entity.AckNotRequired},
		RoomStatus:     entity.RoomStatusIdle,
		Version:        1,
		CreatedBy:      actorID,
	}
	result.ApplyTo(booking)

	if gap.RequiresAcknowledge {
		booking.Arrangement = entity.Arrangement{
			GapItems:            gap.Selected.MissingFixed,
			AppliedAlternatives: alternatives,
			Note:                gap.Message,
		}
		booking.Arrangement.RequireAck()
	}

	switch {
	case gap.RequiresAcknowledge:
		booking.SetStatus(entity.BookingStatusPending, "Confirmed from request, awaiting surgeon acknowledgment", actorID, now)
	case !patient.IsPACCleared():
		booking.SetStatus(entity.BookingStatusPending, "Confirmed from request, waiting for PAC clearance", actorID, now)
	default:
		booking.SetStatus(entity.BookingStatusScheduled, "Confirmed from request", actorID, now)
	}

	bookingID := booking.ID
	previous := request.Status
	request.Status = entity.RequestStatusScheduled
	request.BookingID = &bookingID
	request.ConfirmedBy = actorID
	request.ConfirmedAt = &now
	request.ChangeRequest = nil
	if notes := strings.TrimSpace(req.AdminNotes); notes != "" {
		request.AdminNotes = notes
	}
	request.Assignment = &entity.RequestAssignment{
		RoomID:              gap.Selected.RoomID,
		RoomCode:            gap.Selected.RoomCode,
		ScheduledStart:      booking.Schedule.PlannedStartTime,
		ScheduledEnd:        booking.Schedule.PlannedEndTime,
		AnesthesiologistID:  req.AnesthesiologistID,
		NurseIDs:            req.NurseIDs,
		Score:               gap.Selected.Score,
		AppliedAlternatives: alternatives,
		AssignedBy:          actorID,
		AssignedAt:          now,
	}

	tx := u.db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := u.bookingRepo.Create(tx, booking); err != nil {
		u.log.Warnf("Failed to create booking for request %s: %+v", request.Code, err)
		return nil, nil, err
	}

	if err := u.requestRepo.Update(tx, request); err != nil {
		u.log.Warnf("Failed to update request %s: %+v", request.Code, err)
		return nil, nil, err
	}

	if err := u.auditService.LogUpdate(ctx, tx, actorID, entity.AuditActionRequestConfirm, "surgery_request", request.ID.String(),
		map[string]interface{}{"status": previous},
		map[string]interface{}{"status": request.Status, "booking_id": booking.ID, "assignment": request.Assignment},
	); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit().Error; err != nil {
		u.log.Warnf("Failed to commit confirmation of %s: %+v", request.Code, err)
		return nil, nil, err
	}

	return booking, result, nil
}

// requestResources builds the booking resources of a request. Materials the
// room only covers through a substitute are carried by the arrangement rather
// than reserved against the room inventory.
func requestResources(request *entity.SurgeryRequest, alternatives []entity.AppliedAlternative) entity.Resources {
	substituted := func(name string) bool {
		for _, alt := range alternatives {
			if textmatch.SameMaterial(alt.MissingItem, name) {
				return true
			}
		}
		return false
	}

	resources := entity.Resources{
		Drugs:               request.Resources.Drugs,
		Instruments:         request.Resources.Equipment,
		RequiredHVACClass:   request.Procedure.RequiredEnvironment,
		SpecialRequirements: request.Procedure.Side,
	}
	for _, name := range request.Resources.Materials {
		if substituted(name) {
			continue
		}
		resources.Materials = append(resources.Materials, entity.Material{Name: name, Quantity: 1})
	}
	return resources
}

// FinalizeRequest schedules the request's booking once PAC is cleared.
func (u *surgeryRequestUsecase) FinalizeRequest(ctx context.Context, requestID uuid.UUID) (*dto.BookingResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	request, err := u.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.BookingID == nil || request.Status != entity.RequestStatusScheduled {
		return nil, ErrRequestNoBooking
	}

	result, err := u.lifecycle.Transition(ctx, service.TransitionInput{
		BookingID: *request.BookingID,
		Action:    service.ActionSchedule,
		ActorID:   actorID,
		Note:      "Finalized after PAC clearance",
	})
	if err != nil {
		return nil, err
	}

	u.displacer.audit(ctx, actorID, entity.AuditActionRequestFinalize, result.Booking, map[string]interface{}{
		"request_id": request.ID,
		"status":     result.Booking.Status,
	})
	service.NotifyAll(ctx, u.notifier, u.log, result.Events)

	return converter.BookingToResponse(result.Booking), nil
}

func (u *surgeryRequestUsecase) RejectRequest(ctx context.Context, requestID uuid.UUID, req *dto.RejectSurgeryRequestRequest) (*dto.SurgeryRequestResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	request, err := u.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !request.IsOpen() {
		return nil, ErrRequestNotOpen
	}

	now := time.Now()
	previous := request.Status
	request.Status = entity.RequestStatusRejected
	request.RejectionReason = strings.TrimSpace(req.Reason)
	request.ReviewedBy = actorID
	request.ReviewedAt = &now

	if err := u.saveRequest(ctx, actorID, entity.AuditActionRequestReject, request, previous); err != nil {
		return nil, err
	}
	return converter.SurgeryRequestToResponse(request), nil
}

func (u *surgeryRequestUsecase) findRequest(ctx context.Context, requestID uuid.UUID) (*entity.SurgeryRequest, error) {
	request, err := u.requestRepo.FindByID(u.db.WithContext(ctx), requestID)
	if err != nil {
		u.log.Warnf("Failed to find surgery request %s: %+v", requestID, err)
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}
	return request, nil
}

// saveRequest persists a request status change with its audit entry.
func (u *surgeryRequestUsecase) saveRequest(ctx context.Context, actorID *uuid.UUID, action string, request *entity.SurgeryRequest, previous entity.RequestStatus) error {
	tx := u.db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := u.requestRepo.Update(tx, request); err != nil {
		u.log.Warnf("Failed to update surgery request %s: %+v", request.Code, err)
		return err
	}

	if err := u.auditService.LogUpdate(ctx, tx, actorID, action, "surgery_request", request.ID.String(),
		map[string]interface{}{"status": previous},
		map[string]interface{}{"status": request.Status},
	); err != nil {
		return err
	}

	if err := tx.Commit().Error; err != nil {
		u.log.Warnf("Failed to commit surgery request %s: %+v", request.Code, err)
		return err
	}

	u.log.Infof("Surgery request %s: %s -> %s", request.Code, previous, request.Status)
	return nil
}
