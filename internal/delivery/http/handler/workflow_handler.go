package handler

import (
	"net/http"

	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/usecase"
	"or-scheduler/pkg/response"
	"or-scheduler/pkg/validator"
)

type WorkflowHandler struct {
	workflowUsecase usecase.WorkflowUsecase
	validator       *validator.CustomValidator
}

func NewWorkflowHandler(workflowUsecase usecase.WorkflowUsecase, validator *validator.CustomValidator) *WorkflowHandler {
	return &WorkflowHandler{
		workflowUsecase: workflowUsecase,
		validator:       validator,
	}
}

func (h *WorkflowHandler) Transition(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(w, r, "id", "booking")
	if !ok {
		return
	}

	var req dto.TransitionRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	booking, err := h.workflowUsecase.Transition(r.Context(), bookingID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to apply transition")
		return
	}

	response.Success(w, http.StatusOK, "Transition applied successfully", booking)
}

func (h *WorkflowHandler) UpdateChecklist(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(w, r, "id", "booking")
	if !ok {
		return
	}

	var req dto.ChecklistRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	booking, err := h.workflowUsecase.UpdateChecklist(r.Context(), bookingID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to update checklist")
		return
	}

	response.Success(w, http.StatusOK, "Checklist updated successfully", booking)
}

func (h *WorkflowHandler) LogMaterialConsumption(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(w, r, "id", "booking")
	if !ok {
		return
	}

	var req dto.MaterialConsumptionRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	booking, err := h.workflowUsecase.LogMaterialConsumption(r.Context(), bookingID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to log material consumption")
		return
	}

	response.Success(w, http.StatusOK, "Material consumption logged successfully", booking)
}

func (h *WorkflowHandler) AcknowledgeArrangement(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(w, r, "id", "booking")
	if !ok {
		return
	}

	booking, err := h.workflowUsecase.AcknowledgeArrangement(r.Context(), bookingID)
	if err != nil {
		response.AppError(w, err, "Failed to acknowledge arrangement")
		return
	}

	response.Success(w, http.StatusOK, "Arrangement acknowledged successfully", booking)
}

func (h *WorkflowHandler) RequestArrangementChange(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(w, r, "id", "booking")
	if !ok {
		return
	}

	var req dto.ChangeArrangementRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	booking, err := h.workflowUsecase.RequestArrangementChange(r.Context(), bookingID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to request arrangement change")
		return
	}

	response.Success(w, http.StatusOK, "Arrangement change requested successfully", booking)
}
