package usecase

import (
	"context"
	"fmt"
	"time"

	"or-scheduler/internal/converter"
	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/domain/entity"
	"or-scheduler/internal/domain/repository"
	"or-scheduler/internal/service"
	"or-scheduler/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type BookingUsecase interface {
	CreateBooking(ctx context.Context, req *dto.CreateBookingRequest) (*dto.BookingMutationResponse, error)
	CreateEmergencyBooking(ctx context.Context, req *dto.CreateBookingRequest) (*dto.BookingMutationResponse, error)
	RescheduleBooking(ctx context.Context, bookingID uuid.UUID, req *dto.RescheduleBookingRequest) (*dto.BookingMutationResponse, error)
	LogDelay(ctx context.Context, bookingID uuid.UUID, req *dto.LogDelayRequest) (*dto.BookingMutationResponse, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*dto.BookingResponse, error)
	GetAllBookings(ctx context.Context, req *dto.BookingListRequest) (*dto.BookingListResponse, error)
}

type bookingUsecase struct {
	db           *gorm.DB
	log          *logrus.Logger
	bookingRepo  repository.BookingRepository
	patientRepo  repository.PatientRepository
	validator    *service.ScheduleValidator
	rescheduler  *service.Rescheduler
	lifecycle    *service.Lifecycle
	locker       service.SlotLocker
	auditService service.AuditService
	displacer    displacer
	location     *time.Location
}

func NewBookingUsecase(
	db *gorm.DB,
	log *logrus.Logger,
	bookingRepo repository.BookingRepository,
	patientRepo repository.PatientRepository,
	validator *service.ScheduleValidator,
	rescheduler *service.Rescheduler,
	lifecycle *service.Lifecycle,
	locker service.SlotLocker,
	notifier service.Notifier,
	auditService service.AuditService,
	location *time.Location,
) BookingUsecase {
	if location == nil {
		location = time.Local
	}
	return &bookingUsecase{
		db:           db,
		log:          log,
		bookingRepo:  bookingRepo,
		patientRepo:  patientRepo,
		validator:    validator,
		rescheduler:  rescheduler,
		lifecycle:    lifecycle,
		locker:       locker,
		auditService: auditService,
		displacer:    displacer{db: db, log: log, notifier: notifier, auditService: auditService},
		location:     location,
	}
}

func (u *bookingUsecase) CreateBooking(ctx context.Context, req *dto.CreateBookingRequest) (*dto.BookingMutationResponse, error) {
	return u.create(ctx, req, req.AllowEmergencyPreempt)
}

// CreateEmergencyBooking inserts an emergency case, preempting the room.
func (u *bookingUsecase) CreateEmergencyBooking(ctx context.Context, req *dto.CreateBookingRequest) (*dto.BookingMutationResponse, error) {
	req.Priority = string(entity.PriorityEmergency)
	return u.create(ctx, req, true)
}

// create validates and stores a new booking.
//
// Flow:
// 1. Resolve actor, overrides and patient
// 2. Take the slot lock for the room and team
// 3. Validate the proposed booking
// 4. Insert booking + audit in one transaction
// 5. Release the lock, then ripple (emergency) and force-postpone (overrides)
func (u *bookingUsecase) create(ctx context.Context, req *dto.CreateBookingRequest, allowPreempt bool) (*dto.BookingMutationResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	overrides, err := parseOverrides(req.ForceOverrides)
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

	priority := entity.Priority(req.Priority)
	if priority == "" {
		priority = entity.PriorityElective
	}
	team := converter.TeamFromRequest(req.Team)

	booking, result, err := u.validateAndInsert(ctx, req, priority, team, patient, overrides, allowPreempt, actorID)
	if err != nil {
		return nil, err
	}

	resp := &dto.BookingMutationResponse{
		Booking:      converter.BookingToResponse(booking),
		Warnings:     result.Warnings,
		AdvisoryHint: result.AdvisoryHint,
	}

	if booking.IsEmergency() {
		resp.Displacements = append(resp.Displacements, u.displacer.run(ctx, actorID, service.PlanKindRipple, booking, func() (*service.ApplyResult, error) {
			return u.rescheduler.RippleShift(ctx, booking, actorID)
		}))
	}
	if len(overrides) > 0 {
		resp.Displacements = append(resp.Displacements, u.displacer.run(ctx, actorID, service.PlanKindForcePostpone, booking, func() (*service.ApplyResult, error) {
			return u.rescheduler.ForcePostpone(ctx, booking, overrides, actorID)
		}))
	}

	u.log.Infof("Booking created: id=%s, code=%s, room=%s, status=%s", booking.ID, booking.CaseCode, booking.RoomID, booking.Status)
	return resp, nil
}

func (u *bookingUsecase) validateAndInsert(
	ctx context.Context,
	req *dto.CreateBookingRequest,
	priority entity.Priority,
	team entity.Team,
	patient *entity.Patient,
	overrides []apperror.ConflictType,
	allowPreempt bool,
	actorID *uuid.UUID,
) (*entity.Booking, *service.ValidationResult, error) {
	release, err := u.locker.Acquire(ctx, service.SlotKeys(req.RoomID, team))
	if err != nil {
		return nil, nil, err
	}
	defer release()

	result, err := u.validator.Validate(ctx, service.ValidateInput{
		RoomID:           req.RoomID,
		Priority:         priority,
		Title:            req.Title,
		ProcedureType:    req.ProcedureType,
		Team:             team,
		Start:            req.Start,
		End:              req.End,
		AnesthesiaPrepAt: req.AnesthesiaPrepAt,
		Resources:        converter.ResourcesFromRequest(req.Resources),
		Options: service.ValidateOptions{
			AllowEmergencyPreempt: allowPreempt,
			ForceOverrides:        overrides,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	caseCode := req.CaseCode
	if caseCode == "" {
		caseCode = generateCode("CASE", req.Start)
	}

	now := time.Now()
	booking := &entity.Booking{
		ID:             uuid.New(),
		CaseCode:       caseCode,
		ProcedureCode:  req.ProcedureCode,
		Title:          req.Title,
		ProcedureType:  req.ProcedureType,
		PatientID:      patient.ID,
		Priority:       priority,
		Team:           team,
		PreOpChecklist: entity.PreOpChecklist{AnesthesiaMachineCheck: entity.MachineCheckPending},
		Arrangement:    entity.Arrangement{SurgeonAckStatus: entity.AckNotRequired},
		RoomStatus:     entity.RoomStatusIdle,
		Version:        1,
		CreatedBy:      actorID,
	}
	result.ApplyTo(booking)

	if patient.IsPACCleared() {
		booking.SetStatus(entity.BookingStatusScheduled, "Booking created", actorID, now)
	} else {
		booking.SetStatus(entity.BookingStatusPending, "Booking created, waiting for PAC clearance", actorID, now)
	}

	tx := u.db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := u.bookingRepo.Create(tx, booking); err != nil {
		u.log.Warnf("Failed to create booking: %+v", err)
		return nil, nil, err
	}

	if err := u.auditService.LogCreate(ctx, tx, actorID, entity.AuditActionBookingCreate, "booking", booking.ID.String(), booking); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit().Error; err != nil {
		u.log.Warnf("Failed to commit booking creation: %+v", err)
		return nil, nil, err
	}

	return booking, result, nil
}

// RescheduleBooking moves a booking to a new window and optionally a new room.
//
// Flow:
// 1. Load the booking; locked or started cases cannot move
// 2. Take the slot lock and revalidate, excluding the booking itself
// 3. Save with a version check + audit
// 4. Force-postpone collisions pushed through by overrides
func (u *bookingUsecase) RescheduleBooking(ctx context.Context, bookingID uuid.UUID, req *dto.RescheduleBookingRequest) (*dto.BookingMutationResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	overrides, err := parseOverrides(req.ForceOverrides)
	if err != nil {
		return nil, err
	}

	booking, err := u.findBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.CaseLocked {
		return nil, service.ErrCaseLocked
	}
	if booking.Schedule.ActualStartTime != nil || !booking.HasStatus(entity.BookingStatusPending, entity.BookingStatusScheduled,
		entity.BookingStatusPreOp, entity.BookingStatusPostponed, entity.BookingStatusDelayed) {
		return nil, ErrBookingNotMovable
	}

	roomID := booking.RoomID
	if req.RoomID != nil {
		roomID = *req.RoomID
	}

	result, err := u.revalidateAndSave(ctx, booking, roomID, req, overrides, actorID)
	if err != nil {
		return nil, err
	}

	resp := &dto.BookingMutationResponse{
		Booking:      converter.BookingToResponse(booking),
		Warnings:     result.Warnings,
		AdvisoryHint: result.AdvisoryHint,
	}
	if len(overrides) > 0 {
		resp.Displacements = append(resp.Displacements, u.displacer.run(ctx, actorID, service.PlanKindForcePostpone, booking, func() (*service.ApplyResult, error) {
			return u.rescheduler.ForcePostpone(ctx, booking, overrides, actorID)
		}))
	}

	u.log.Infof("Booking rescheduled: code=%s, room=%s, start=%s", booking.CaseCode, booking.RoomID, booking.Schedule.PlannedStartTime)
	return resp, nil
}

func (u *bookingUsecase) revalidateAndSave(
	ctx context.Context,
	booking *entity.Booking,
	roomID uuid.UUID,
	req *dto.RescheduleBookingRequest,
	overrides []apperror.ConflictType,
	actorID *uuid.UUID,
) (*service.ValidationResult, error) {
	release, err := u.locker.Acquire(ctx, service.SlotKeys(roomID, booking.Team))
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := u.validator.Validate(ctx, service.ValidateInput{
		BookingID:        booking.ID,
		RoomID:           roomID,
		Priority:         booking.Priority,
		Title:            booking.Title,
		ProcedureType:    booking.ProcedureType,
		Team:             booking.Team,
		Start:            req.Start,
		End:              req.End,
		AnesthesiaPrepAt: req.AnesthesiaPrepAt,
		Resources:        booking.Resources,
		Options:          service.ValidateOptions{ForceOverrides: overrides},
	})
	if err != nil {
		return nil, err
	}

	previous := booking.Schedule
	previousRoom := booking.RoomID
	result.ApplyTo(booking)
	booking.AddHistory(fmt.Sprintf("Rescheduled from %s to %s",
		previous.PlannedStartTime.In(u.location).Format("2006-01-02 15:04"),
		booking.Schedule.PlannedStartTime.In(u.location).Format("2006-01-02 15:04")), actorID, time.Now())

	tx := u.db.WithContext(ctx).Begin()
	defer tx.Rollback()

	rows, err := u.bookingRepo.Update(tx, booking)
	if err != nil {
		u.log.Warnf("Failed to update booking %s: %+v", booking.ID, err)
		return nil, err
	}
	if rows == 0 {
		return nil, service.ErrConcurrentUpdate
	}

	oldValue := map[string]interface{}{"room_id": previousRoom, "schedule": previous}
	newValue := map[string]interface{}{"room_id": booking.RoomID, "schedule": booking.Schedule}
	if err := u.auditService.LogUpdate(ctx, tx, actorID, entity.AuditActionBookingReschedule, "booking", booking.ID.String(), oldValue, newValue); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		u.log.Warnf("Failed to commit reschedule of %s: %+v", booking.ID, err)
		return nil, err
	}

	return result, nil
}

// LogDelay records a delay on a booking and shifts the cases queued after it.
func (u *bookingUsecase) LogDelay(ctx context.Context, bookingID uuid.UUID, req *dto.LogDelayRequest) (*dto.BookingMutationResponse, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	reason := entity.DelayReason(req.Reason)
	delayed, err := u.lifecycle.LogDelay(ctx, service.DelayInput{
		BookingID: bookingID,
		Minutes:   req.Minutes,
		Reason:    reason,
		Note:      req.Note,
		ActorID:   actorID,
	})
	if err != nil {
		return nil, err
	}

	booking := delayed.Booking
	u.displacer.audit(ctx, actorID, entity.AuditActionBookingDelay, booking, map[string]interface{}{
		"minutes": req.Minutes,
		"reason":  booking.DelayLogs[len(booking.DelayLogs)-1].Reason,
	})

	displacement := u.displacer.run(ctx, actorID, service.PlanKindDelayShift, booking, func() (*service.ApplyResult, error) {
		return u.rescheduler.DelayAndShift(ctx, booking, delayed.PreviousEnd, req.Minutes, reason, actorID)
	})

	return &dto.BookingMutationResponse{
		Booking:       converter.BookingToResponse(booking),
		Displacements: []dto.DisplacementResponse{displacement},
	}, nil
}

func (u *bookingUsecase) GetBooking(ctx context.Context, bookingID uuid.UUID) (*dto.BookingResponse, error) {
	booking, err := u.findBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return converter.BookingToResponse(booking), nil
}

func (u *bookingUsecase) GetAllBookings(ctx context.Context, req *dto.BookingListRequest) (*dto.BookingListResponse, error) {
	filter := entity.BookingFilter{
		RoomID:    req.RoomID,
		SurgeonID: req.SurgeonID,
	}
	if req.Status != "" {
		status := entity.BookingStatus(req.Status)
		filter.Status = &status
	}
	if req.Date != nil {
		d := *req.Date
		from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, u.location)
		to := from.AddDate(0, 0, 1)
		filter.From = &from
		filter.To = &to
	}

	bookings, err := u.bookingRepo.FindAll(u.db.WithContext(ctx), filter)
	if err != nil {
		u.log.Warnf("Failed to find bookings: %+v", err)
		return nil, err
	}

	return &dto.BookingListResponse{
		Bookings: converter.BookingsToResponses(bookings),
		Total:    len(bookings),
	}, nil
}

func (u *bookingUsecase) findBooking(ctx context.Context, bookingID uuid.UUID) (*entity.Booking, error) {
	booking, err := u.bookingRepo.FindByID(u.db.WithContext(ctx), bookingID)
	if err != nil {
		u.log.Warnf("Failed to find booking %s: %+v", bookingID, err)
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}
