package handler

import (
	"net/http"
	"time"

	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/usecase"
	"or-scheduler/pkg/response"
	"or-scheduler/pkg/validator"
)

type SurgeryRequestHandler struct {
	requestUsecase usecase.SurgeryRequestUsecase
	validator      *validator.CustomValidator
}

func NewSurgeryRequestHandler(requestUsecase usecase.SurgeryRequestUsecase, validator *validator.CustomValidator) *SurgeryRequestHandler {
	return &SurgeryRequestHandler{
		requestUsecase: requestUsecase,
		validator:      validator,
	}
}

// =============================================================================
// Surgeon
// =============================================================================

func (h *SurgeryRequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSurgeryRequestRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	request, err := h.requestUsecase.CreateRequest(r.Context(), &req)
	if err != nil {
		response.AppError(w, err, "Failed to create surgery request")
		return
	}

	response.Success(w, http.StatusCreated, "Surgery request created successfully", request)
}

func (h *SurgeryRequestHandler) GetMyRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.requestUsecase.GetMyRequests(r.Context())
	if err != nil {
		response.AppError(w, err, "Failed to get surgery requests")
		return
	}

	response.Success(w, http.StatusOK, "Surgery requests retrieved successfully", requests)
}

func (h *SurgeryRequestHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "id", "request")
	if !ok {
		return
	}

	request, err := h.requestUsecase.CancelRequest(r.Context(), requestID)
	if err != nil {
		response.AppError(w, err, "Failed to cancel surgery request")
		return
	}

	response.Success(w, http.StatusOK, "Surgery request cancelled successfully", request)
}

// =============================================================================
// Admin
// =============================================================================

func (h *SurgeryRequestHandler) GetAllRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.requestUsecase.GetAllRequests(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		response.AppError(w, err, "Failed to get surgery requests")
		return
	}

	response.Success(w, http.StatusOK, "Surgery requests retrieved successfully", requests)
}

func (h *SurgeryRequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "id", "request")
	if !ok {
		return
	}

	request, err := h.requestUsecase.GetRequest(r.Context(), requestID)
	if err != nil {
		response.AppError(w, err, "Failed to get surgery request")
		return
	}

	response.Success(w, http.StatusOK, "Surgery request retrieved successfully", request)
}

func (h *SurgeryRequestHandler) ReviewRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "id", "request")
	if !ok {
		return
	}

	var req dto.ReviewSurgeryRequestRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	request, err := h.requestUsecase.ReviewRequest(r.Context(), requestID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to review surgery request")
		return
	}

	response.Success(w, http.StatusOK, "Surgery request under review", request)
}

// GetSuggestions ranks rooms for the request; ?start=RFC3339 overrides the preferred start
func (h *SurgeryRequestHandler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "id", "request")
	if !ok {
		return
	}

	var start *time.Time
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid start, use RFC3339", nil)
			return
		}
		start = &parsed
	}

	suggestions, err := h.requestUsecase.GetSuggestions(r.Context(), requestID, start)
	if err != nil {
		response.AppError(w, err, "Failed to get room suggestions")
		return
	}

	response.Success(w, http.StatusOK, "Room suggestions retrieved successfully", suggestions)
}

func (h *SurgeryRequestHandler) ConfirmRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "id", "request")
	if !ok {
		return
	}

	var req dto.ConfirmSurgeryRequestRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	result, err := h.requestUsecase.ConfirmRequest(r.Context(), requestID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to confirm surgery request")
		return
	}

	response.Success(w, http.StatusCreated, "Surgery request confirmed successfully", result)
}

func (h *SurgeryRequestHandler) FinalizeRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "id", "request")
	if !ok {
		return
	}

	booking, err := h.requestUsecase.FinalizeRequest(r.Context(), requestID)
	if err != nil {
		response.AppError(w, err, "Failed to finalize surgery request")
		return
	}

	response.Success(w, http.StatusOK, "Surgery request finalized successfully", booking)
}

func (h *SurgeryRequestHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "id", "request")
	if !ok {
		return
	}

	var req dto.RejectSurgeryRequestRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	request, err := h.requestUsecase.RejectRequest(r.Context(), requestID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to reject surgery request")
		return
	}

	response.Success(w, http.StatusOK, "Surgery request rejected", request)
}
