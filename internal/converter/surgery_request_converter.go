package converter

import (
	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/domain/entity"
)

// SurgeryRequestToResponse converts a SurgeryRequest entity to SurgeryRequestResponse DTO
func SurgeryRequestToResponse(req *entity.SurgeryRequest) *dto.SurgeryRequestResponse {
	if req == nil {
		return nil
	}

	return &dto.SurgeryRequestResponse{
		ID:              req.ID,
		Code:            req.Code,
		RequestedBy:     req.RequestedBy,
		PatientID:       req.PatientID,
		Patient:         req.Patient,
		Procedure:       req.Procedure,
		PreferredStart:  req.PreferredStart,
		Resources:       req.Resources,
		Status:          string(req.Status),
		Assignment:      req.Assignment,
		ChangeRequest:   req.ChangeRequest,
		BookingID:       req.BookingID,
		AdminNotes:      req.AdminNotes,
		RejectionReason: req.RejectionReason,
		ReviewedAt:      req.ReviewedAt,
		ConfirmedAt:     req.ConfirmedAt,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
}

// SurgeryRequestsToResponses converts a slice of SurgeryRequest entities
func SurgeryRequestsToResponses(reqs []entity.SurgeryRequest) []dto.SurgeryRequestResponse {
	responses := make([]dto.SurgeryRequestResponse, len(reqs))
	for i := range reqs {
		responses[i] = *SurgeryRequestToResponse(&reqs[i])
	}
	return responses
}

// SurgeryRequestFromRequest builds a new request entity from the create DTO.
// Blank snapshot fields are filled from the patient record.
func SurgeryRequestFromRequest(req *dto.CreateSurgeryRequestRequest, patient *entity.Patient) *entity.SurgeryRequest {
	snapshot := entity.PatientSnapshot{
		Name:   req.Patient.Name,
		MRN:    req.Patient.MRN,
		Age:    req.Patient.Age,
		Gender: req.Patient.Gender,
	}
	if patient != nil {
		if snapshot.Name == "" {
			snapshot.Name = patient.Name
		}
		if snapshot.MRN == "" {
			snapshot.MRN = patient.MRN
		}
		if snapshot.Age == 0 {
			snapshot.Age = patient.Age
		}
		if snapshot.Gender == "" {
			snapshot.Gender = patient.Gender
		}
	}

	urgency := entity.Priority(req.Procedure.Urgency)
	if urgency == "" {
		urgency = entity.PriorityElective
	}

	return &entity.SurgeryRequest{
		PatientID: req.PatientID,
		Patient:   snapshot,
		Procedure: entity.RequestProcedure{
			Name:                 req.Procedure.Name,
			ProcedureType:        req.Procedure.ProcedureType,
			Side:                 req.Procedure.Side,
			DurationMinutes:      req.Procedure.DurationMinutes,
			Urgency:              urgency,
			AnesthesiaPreference: entity.AnesthesiaType(req.Procedure.AnesthesiaPreference),
			RequiredEnvironment:  req.Procedure.RequiredEnvironment,
		},
		PreferredStart: req.PreferredStart,
		Resources: entity.RequestResources{
			Equipment: req.Equipment,
			Materials: req.Materials,
			Drugs:     req.Drugs,
		},
		Status: entity.RequestStatusPending,
	}
}
