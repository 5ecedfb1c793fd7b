package usecase

import (
	"context"
	"strings"
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

var (
	ErrRoomNotFound    = apperror.NotFound("room not found")
	ErrSurgeonNotFound = apperror.NotFound("surgeon not found")
	ErrPACAlreadyClear = apperror.Conflict("patient PAC is already cleared")
)

// DirectoryUsecase maintains the reference data the scheduler arbitrates over.
type DirectoryUsecase interface {
	// rooms
	CreateRoom(ctx context.Context, req *dto.CreateRoomRequest) (*dto.RoomResponse, error)
	GetAllRooms(ctx context.Context) (*dto.RoomListResponse, error)
	GetRoom(ctx context.Context, roomID uuid.UUID) (*dto.RoomResponse, error)
	AddMaintenanceBlock(ctx context.Context, roomID uuid.UUID, req *dto.MaintenanceBlockRequest) (*dto.RoomResponse, error)

	// staff
	CreateStaff(ctx context.Context, req *dto.CreateStaffRequest) (*dto.StaffResponse, error)
	GetAllStaff(ctx context.Context) (*dto.StaffListResponse, error)

	// surgeons
	CreateSurgeon(ctx context.Context, req *dto.CreateSurgeonRequest) (*dto.SurgeonResponse, error)
	GetAllSurgeons(ctx context.Context) (*dto.SurgeonListResponse, error)
	SetPreferenceCard(ctx context.Context, surgeonID uuid.UUID, req *dto.PreferenceCardRequest) (*dto.SurgeonResponse, error)

	// mobile pool
	UpsertMobileEquipment(ctx context.Context, req *dto.MobileEquipmentRequest) (*entity.MobileEquipment, error)
	GetMobileEquipment(ctx context.Context) (*dto.MobileEquipmentListResponse, error)

	// patients
	CreatePatient(ctx context.Context, req *dto.CreatePatientRequest) (*dto.PatientResponse, error)
	GetPatient(ctx context.Context, patientID uuid.UUID) (*dto.PatientResponse, error)
	ClearPAC(ctx context.Context, patientID uuid.UUID) (*dto.PatientResponse, error)
}

type directoryUsecase struct {
	db           *gorm.DB
	log          *logrus.Logger
	roomRepo     repository.RoomRepository
	staffRepo    repository.StaffRepository
	surgeonRepo  repository.SurgeonRepository
	mobileRepo   repository.MobileEquipmentRepository
	patientRepo  repository.PatientRepository
	auditService service.AuditService
}

func NewDirectoryUsecase(
	db *gorm.DB,
	log *logrus.Logger,
	roomRepo repository.RoomRepository,
	staffRepo repository.StaffRepository,
	surgeonRepo repository.SurgeonRepository,
	mobileRepo repository.MobileEquipmentRepository,
	patientRepo repository.PatientRepository,
	auditService service.AuditService,
) DirectoryUsecase {
	return &directoryUsecase{
		db:           db,
		log:          log,
		roomRepo:     roomRepo,
		staffRepo:    staffRepo,
		surgeonRepo:  surgeonRepo,
		mobileRepo:   mobileRepo,
		patientRepo:  patientRepo,
		auditService: auditService,
	}
}

// write runs fn and its audit entry in one transaction.
func (u *directoryUsecase) write(ctx context.Context, action, entityName string, entityID func() string, value interface{}, fn func(tx *gorm.DB) error) error {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return err
	}

	tx := u.db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		u.log.Warnf("Failed to write %s: %+v", entityName, err)
		return err
	}

	if err := u.auditService.LogCreate(ctx, tx, actorID, action, entityName, entityID(), value); err != nil {
		return err
	}

	if err := tx.Commit().Error; err != nil {
		u.log.Warnf("Failed to commit %s: %+v", entityName, err)
		return err
	}
	return nil
}

// =============================================================================
// Rooms
// =============================================================================

func (u *directoryUsecase) CreateRoom(ctx context.Context, req *dto.CreateRoomRequest) (*dto.RoomResponse, error) {
	room := converter.RoomFromRequest(req)
	room.ID = uuid.New()

	err := u.write(ctx, entity.AuditActionDirectoryUpdate, "room", room.ID.String, room, func(tx *gorm.DB) error {
		return u.roomRepo.Create(tx, room)
	})
	if err != nil {
		return nil, err
	}

	u.log.Infof("Room created: code=%s", room.Code)
	return converter.RoomToResponse(room), nil
}

func (u *directoryUsecase) GetAllRooms(ctx context.Context) (*dto.RoomListResponse, error) {
	rooms, err := u.roomRepo.FindAll(u.db.WithContext(ctx))
	if err != nil {
		u.log.Warnf("Failed to find rooms: %+v", err)
		return nil, err
	}

	return &dto.RoomListResponse{
		Rooms: converter.RoomsToResponses(rooms),
		Total: len(rooms),
	}, nil
}

func (u *directoryUsecase) GetRoom(ctx context.Context, roomID uuid.UUID) (*dto.RoomResponse, error) {
	room, err := u.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return converter.RoomToResponse(room), nil
}

// AddMaintenanceBlock takes a room out of service for a window
func (u *directoryUsecase) AddMaintenanceBlock(ctx context.Context, roomID uuid.UUID, req *dto.MaintenanceBlockRequest) (*dto.RoomResponse, error) {
	room, err := u.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	block := entity.MaintenanceBlock{
		Start:  req.Start,
		End:    req.End,
		Reason: strings.TrimSpace(req.Reason),
		Active: true,
	}
	room.MaintenanceBlocks = append(room.MaintenanceBlocks, block)

	err = u.write(ctx, entity.AuditActionDirectoryUpdate, "room", room.ID.String, map[string]interface{}{"maintenance_block": block}, func(tx *gorm.DB) error {
		return u.roomRepo.Update(tx, room)
	})
	if err != nil {
		return nil, err
	}

	u.log.Infof("Maintenance block added: room=%s, %s - %s", room.Code, block.Start.Format(time.RFC3339), block.End.Format(time.RFC3339))
	return converter.RoomToResponse(room), nil
}

func (u *directoryUsecase) findRoom(ctx context.Context, roomID uuid.UUID) (*entity.Room, error) {
	room, err := u.roomRepo.FindByID(u.db.WithContext(ctx), roomID)
	if err != nil {
		u.log.Warnf("Failed to find room %s: %+v", roomID, err)
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// =============================================================================
// Staff
// =============================================================================

func (u *directoryUsecase) CreateStaff(ctx context.Context, req *dto.CreateStaffRequest) (*dto.StaffResponse, error) {
	staff := &entity.Staff{
		ID:         uuid.New(),
		Code:       req.Code,
		Name:       req.Name,
		Role:       entity.StaffRole(req.Role),
		ShiftStart: req.ShiftStart,
		ShiftEnd:   req.ShiftEnd,
		Active:     true,
	}
	if staff.ShiftStart == "" {
		staff.ShiftStart = "00:00"
	}
	if staff.ShiftEnd == "" {
		staff.ShiftEnd = "23:59"
	}

	err := u.write(ctx, entity.AuditActionDirectoryUpdate, "staff", staff.ID.String, staff, func(tx *gorm.DB) error {
		return u.staffRepo.Create(tx, staff)
	})
	if err != nil {
		return nil, err
	}

	return converter.StaffToResponse(staff), nil
}

func (u *directoryUsecase) GetAllStaff(ctx context.Context) (*dto.StaffListResponse, error) {
	staff, err := u.staffRepo.FindAll(u.db.WithContext(ctx))
	if err != nil {
		u.log.Warnf("Failed to find staff: %+v", err)
		return nil, err
	}

	return &dto.StaffListResponse{
		Staff: converter.StaffListToResponses(staff),
		Total: len(staff),
	}, nil
}

// =============================================================================
// Surgeons
// =============================================================================

func (u *directoryUsecase) CreateSurgeon(ctx context.Context, req *dto.CreateSurgeonRequest) (*dto.SurgeonResponse, error) {
	surgeon := &entity.Surgeon{
		ID:              uuid.New(),
		Code:            req.Code,
		Name:            req.Name,
		Specialization:  req.Specialization,
		MaxHoursPerWeek: req.MaxHoursPerWeek,
		Active:          true,
	}
	if surgeon.MaxHoursPerWeek == 0 {
		surgeon.MaxHoursPerWeek = 40
	}

	err := u.write(ctx, entity.AuditActionDirectoryUpdate, "surgeon", surgeon.ID.String, surgeon, func(tx *gorm.DB) error {
		return u.surgeonRepo.Create(tx, surgeon)
	})
	if err != nil {
		return nil, err
	}

	return converter.SurgeonToResponse(surgeon), nil
}

func (u *directoryUsecase) GetAllSurgeons(ctx context.Context) (*dto.SurgeonListResponse, error) {
	surgeons, err := u.surgeonRepo.FindAll(u.db.WithContext(ctx))
	if err != nil {
		u.log.Warnf("Failed to find surgeons: %+v", err)
		return nil, err
	}

	return &dto.SurgeonListResponse{
		Surgeons: converter.SurgeonsToResponses(surgeons),
		Total:    len(surgeons),
	}, nil
}

// SetPreferenceCard inserts or replaces the surgeon's card for a procedure type
func (u *directoryUsecase) SetPreferenceCard(ctx context.Context, surgeonID uuid.UUID, req *dto.PreferenceCardRequest) (*dto.SurgeonResponse, error) {
	surgeon, err := u.surgeonRepo.FindByID(u.db.WithContext(ctx), surgeonID)
	if err != nil {
		u.log.Warnf("Failed to find surgeon %s: %+v", surgeonID, err)
		return nil, err
	}
	if surgeon == nil {
		return nil, ErrSurgeonNotFound
	}

	card := entity.PreferenceCard{
		ProcedureType: strings.TrimSpace(req.ProcedureType),
		Materials:     converter.MaterialsFromRequest(req.Materials),
	}
	surgeon.SetPreferenceCard(card)

	err = u.write(ctx, entity.AuditActionDirectoryUpdate, "surgeon", surgeon.ID.String, map[string]interface{}{"preference_card": card}, func(tx *gorm.DB) error {
		return u.surgeonRepo.Update(tx, surgeon)
	})
	if err != nil {
		return nil, err
	}

	return converter.SurgeonToResponse(surgeon), nil
}

// =============================================================================
// Mobile equipment pool
// =============================================================================

func (u *directoryUsecase) UpsertMobileEquipment(ctx context.Context, req *dto.MobileEquipmentRequest) (*entity.MobileEquipment, error) {
	item := &entity.MobileEquipment{
		ID:       uuid.New(),
		Name:     strings.TrimSpace(req.Name),
		Quantity: req.Quantity,
		Notes:    req.Notes,
		Active:   true,
	}
	if req.Active != nil {
		item.Active = *req.Active
	}

	err := u.write(ctx, entity.AuditActionDirectoryUpdate, "mobile_equipment", func() string { return item.Name }, item, func(tx *gorm.DB) error {
		return u.mobileRepo.Upsert(tx, item)
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

func (u *directoryUsecase) GetMobileEquipment(ctx context.Context) (*dto.MobileEquipmentListResponse, error) {
	items, err := u.mobileRepo.FindActive(u.db.WithContext(ctx))
	if err != nil {
		u.log.Warnf("Failed to find mobile equipment: %+v", err)
		return nil, err
	}

	return &dto.MobileEquipmentListResponse{
		Items: items,
		Total: len(items),
	}, nil
}

// =============================================================================
// Patients
// =============================================================================

func (u *directoryUsecase) CreatePatient(ctx context.Context, req *dto.CreatePatientRequest) (*dto.PatientResponse, error) {
	patient := &entity.Patient{
		ID:        uuid.New(),
		MRN:       req.MRN,
		Name:      req.Name,
		Age:       req.Age,
		Gender:    req.Gender,
		PACStatus: entity.PACStatusPending,
	}

	err := u.write(ctx, entity.AuditActionDirectoryUpdate, "patient", patient.ID.String, patient, func(tx *gorm.DB) error {
		return u.patientRepo.Create(tx, patient)
	})
	if err != nil {
		return nil, err
	}

	return converter.PatientToResponse(patient), nil
}

func (u *directoryUsecase) GetPatient(ctx context.Context, patientID uuid.UUID) (*dto.PatientResponse, error) {
	patient, err := u.findPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return converter.PatientToResponse(patient), nil
}

// ClearPAC records the patient's pre-anesthesia clearance
func (u *directoryUsecase) ClearPAC(ctx context.Context, patientID uuid.UUID) (*dto.PatientResponse, error) {
	patient, err := u.findPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.IsPACCleared() {
		return nil, ErrPACAlreadyClear
	}

	now := time.Now()
	patient.PACStatus = entity.PACStatusCleared
	patient.PACClearedAt = &now

	err = u.write(ctx, entity.AuditActionPatientClearPAC, "patient", patient.ID.String, map[string]interface{}{"pac_status": patient.PACStatus}, func(tx *gorm.DB) error {
		return u.patientRepo.Update(tx, patient)
	})
	if err != nil {
		return nil, err
	}

	u.log.Infof("PAC cleared: patient=%s", patient.MRN)
	return converter.PatientToResponse(patient), nil
}

func (u *directoryUsecase) findPatient(ctx context.Context, patientID uuid.UUID) (*entity.Patient, error) {
	patient, err := u.patientRepo.FindByID(u.db.WithContext(ctx), patientID)
	if err != nil {
		u.log.Warnf("Failed to find patient %s: %+v", patientID, err)
		return nil, err
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}
	return patient, nil
}
