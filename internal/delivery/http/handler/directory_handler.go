package handler

import (
	"net/http"

	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/delivery/http/middleware"
	"or-scheduler/internal/usecase"
	"or-scheduler/pkg/response"
	"or-scheduler/pkg/validator"
)

type DirectoryHandler struct {
	directoryUsecase usecase.DirectoryUsecase
	validator        *validator.CustomValidator
}

func NewDirectoryHandler(directoryUsecase usecase.DirectoryUsecase, validator *validator.CustomValidator) *DirectoryHandler {
	return &DirectoryHandler{
		directoryUsecase: directoryUsecase,
		validator:        validator,
	}
}

// =============================================================================
// Rooms
// =============================================================================

func (h *DirectoryHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRoomRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	room, err := h.directoryUsecase.CreateRoom(r.Context(), &req)
	if err != nil {
		response.AppError(w, err, "Failed to create room")
		return
	}

	response.Success(w, http.StatusCreated, "Room created successfully", room)
}

func (h *DirectoryHandler) GetAllRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.directoryUsecase.GetAllRooms(r.Context())
	if err != nil {
		response.AppError(w, err, "Failed to get rooms")
		return
	}

	response.Success(w, http.StatusOK, "Rooms retrieved successfully", rooms)
}

func (h *DirectoryHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id", "room")
	if !ok {
		return
	}

	room, err := h.directoryUsecase.GetRoom(r.Context(), roomID)
	if err != nil {
		response.AppError(w, err, "Failed to get room")
		return
	}

	response.Success(w, http.StatusOK, "Room retrieved successfully", room)
}

func (h *DirectoryHandler) AddMaintenanceBlock(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id", "room")
	if !ok {
		return
	}

	var req dto.MaintenanceBlockRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	room, err := h.directoryUsecase.AddMaintenanceBlock(r.Context(), roomID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to add maintenance block")
		return
	}

	response.Success(w, http.StatusOK, "Maintenance block added successfully", room)
}

// =============================================================================
// Staff and surgeons
// =============================================================================

func (h *DirectoryHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateStaffRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	staff, err := h.directoryUsecase.CreateStaff(r.Context(), &req)
	if err != nil {
		response.AppError(w, err, "Failed to create staff")
		return
	}

	response.Success(w, http.StatusCreated, "Staff created successfully", staff)
}

func (h *DirectoryHandler) GetAllStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.directoryUsecase.GetAllStaff(r.Context())
	if err != nil {
		response.AppError(w, err, "Failed to get staff")
		return
	}

	response.Success(w, http.StatusOK, "Staff retrieved successfully", staff)
}

func (h *DirectoryHandler) CreateSurgeon(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSurgeonRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	surgeon, err := h.directoryUsecase.CreateSurgeon(r.Context(), &req)
	if err != nil {
		response.AppError(w, err, "Failed to create surgeon")
		return
	}

	response.Success(w, http.StatusCreated, "Surgeon created successfully", surgeon)
}

func (h *DirectoryHandler) GetAllSurgeons(w http.ResponseWriter, r *http.Request) {
	surgeons, err := h.directoryUsecase.GetAllSurgeons(r.Context())
	if err != nil {
		response.AppError(w, err, "Failed to get surgeons")
		return
	}

	response.Success(w, http.StatusOK, "Surgeons retrieved successfully", surgeons)
}

func (h *DirectoryHandler) SetPreferenceCard(w http.ResponseWriter, r *http.Request) {
	surgeonID, ok := pathID(w, r, "id", "surgeon")
	if !ok {
		return
	}

	var req dto.PreferenceCardRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	surgeon, err := h.directoryUsecase.SetPreferenceCard(r.Context(), surgeonID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to set preference card")
		return
	}

	response.Success(w, http.StatusOK, "Preference card saved successfully", surgeon)
}

// SetMyPreferenceCard lets a surgeon maintain their own cards
func (h *DirectoryHandler) SetMyPreferenceCard(w http.ResponseWriter, r *http.Request) {
	surgeonID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "User not found in context")
		return
	}

	var req dto.PreferenceCardRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	surgeon, err := h.directoryUsecase.SetPreferenceCard(r.Context(), surgeonID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to set preference card")
		return
	}

	response.Success(w, http.StatusOK, "Preference card saved successfully", surgeon)
}

// =============================================================================
// Mobile equipment
// =============================================================================

func (h *DirectoryHandler) UpsertMobileEquipment(w http.ResponseWriter, r *http.Request) {
	var req dto.MobileEquipmentRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	item, err := h.directoryUsecase.UpsertMobileEquipment(r.Context(), &req)
	if err != nil {
		response.AppError(w, err, "Failed to save mobile equipment")
		return
	}

	response.Success(w, http.StatusOK, "Mobile equipment saved successfully", item)
}

func (h *DirectoryHandler) GetMobileEquipment(w http.ResponseWriter, r *http.Request) {
	items, err := h.directoryUsecase.GetMobileEquipment(r.Context())
	if err != nil {
		response.AppError(w, err, "Failed to get mobile equipment")
		return
	}

	response.Success(w, http.StatusOK, "Mobile equipment retrieved successfully", items)
}

// =============================================================================
// Patients
// =============================================================================

func (h *DirectoryHandler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePatientRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	patient, err := h.directoryUsecase.CreatePatient(r.Context(), &req)
	if err != nil {
		response.AppError(w, err, "Failed to create patient")
		return
	}

	response.Success(w, http.StatusCreated, "Patient created successfully", patient)
}

func (h *DirectoryHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	patientID, ok := pathID(w, r, "id", "patient")
	if !ok {
		return
	}

	patient, err := h.directoryUsecase.GetPatient(r.Context(), patientID)
	if err != nil {
		response.AppError(w, err, "Failed to get patient")
		return
	}

	response.Success(w, http.StatusOK, "Patient retrieved successfully", patient)
}

func (h *DirectoryHandler) ClearPAC(w http.ResponseWriter, r *http.Request) {
	patientID, ok := pathID(w, r, "id", "patient")
	if !ok {
		return
	}

	patient, err := h.directoryUsecase.ClearPAC(r.Context(), patientID)
	if err != nil {
		response.AppError(w, err, "Failed to clear PAC")
		return
	}

	response.Success(w, http.StatusOK, "PAC cleared successfully", patient)
}
