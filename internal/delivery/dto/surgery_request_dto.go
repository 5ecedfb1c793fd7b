package dto

import (
	"time"

	"or-scheduler/internal/domain/entity"
	"or-scheduler/internal/service"

	"github.com/google/uuid"
)

// Request DTOs

type PatientSnapshotRequest struct {
	Name   string `json:"name" validate:"omitempty,max=100"`
	MRN    string `json:"mrn" validate:"omitempty,max=40"`
	Age    int    `json:"age" validate:"omitempty,gte=0,lte=130"`
	Gender string `json:"gender" validate:"omitempty,max=10"`
}

type ProcedureRequest struct {
	Name                 string `json:"name" validate:"required,max=200"`
	ProcedureType        string `json:"procedure_type" validate:"omitempty,max=100"`
	Side                 string `json:"side" validate:"omitempty,max=20"`
	DurationMinutes      int    `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	Urgency              string `json:"urgency" validate:"omitempty,oneof=Elective Emergency"`
	AnesthesiaPreference string `json:"anesthesia_preference" validate:"omitempty,oneof=General Spinal Local MAC Regional Sedation"`
	RequiredEnvironment  string `json:"required_environment" validate:"omitempty,max=50"`
}

type CreateSurgeryRequestRequest struct {
	PatientID      uuid.UUID              `json:"patient_id" validate:"required"`
	Patient        PatientSnapshotRequest `json:"patient"`
	Procedure      ProcedureRequest       `json:"procedure"`
	PreferredStart time.Time              `json:"preferred_start" validate:"required"`
	Equipment      []string               `json:"equipment" validate:"omitempty"`
	Materials      []string               `json:"materials" validate:"omitempty"`
	Drugs          []string               `json:"drugs" validate:"omitempty"`
}

type ReviewSurgeryRequestRequest struct {
	AdminNotes string `json:"admin_notes" validate:"omitempty,max=1000"`
}

type ConfirmSurgeryRequestRequest struct {
	RoomID             uuid.UUID   `json:"room_id" validate:"required"`
	Start              *time.Time  `json:"start" validate:"omitempty"`
	AssistantSurgeonID *uuid.UUID  `json:"assistant_surgeon_id" validate:"omitempty"`
	AnesthesiologistID uuid.UUID   `json:"anesthesiologist_id" validate:"required"`
	AnesthesiaType     string      `json:"anesthesia_type" validate:"omitempty,oneof=General Spinal Local MAC Regional Sedation"`
	NurseIDs           []uuid.UUID `json:"nurse_ids" validate:"omitempty,dive,required"`
	AnesthesiaPrepAt   *time.Time  `json:"anesthesia_prep_at" validate:"omitempty"`
	AcknowledgeGap     bool        `json:"acknowledge_gap"`
	ForceOverrides     []string    `json:"force_overrides" validate:"omitempty,dive,oneof=ot surgeon assistant anesthesiologist nurse"`
	AdminNotes         string      `json:"admin_notes" validate:"omitempty,max=1000"`
}

type RejectSurgeryRequestRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=1000"`
}

// Response DTOs

type SurgeryRequestResponse struct {
	ID              uuid.UUID                 `json:"id"`
	Code            string                    `json:"code"`
	RequestedBy     uuid.UUID                 `json:"requested_by"`
	PatientID       uuid.UUID                 `json:"patient_id"`
	Patient         entity.PatientSnapshot    `json:"patient"`
	Procedure       entity.RequestProcedure   `json:"procedure"`
	PreferredStart  time.Time                 `json:"preferred_start"`
	Resources       entity.RequestResources   `json:"resources"`
	Status          string                    `json:"status"`
	Assignment      *entity.RequestAssignment `json:"assignment,omitempty"`
	ChangeRequest   *entity.ChangeRequest     `json:"change_request,omitempty"`
	BookingID       *uuid.UUID                `json:"booking_id,omitempty"`
	AdminNotes      string                    `json:"admin_notes,omitempty"`
	RejectionReason string                    `json:"rejection_reason,omitempty"`
	ReviewedAt      *time.Time                `json:"reviewed_at,omitempty"`
	ConfirmedAt     *time.Time                `json:"confirmed_at,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

type SurgeryRequestListResponse struct {
	Requests []SurgeryRequestResponse `json:"requests"`
	Total    int                      `json:"total"`
}

type SuggestionResponse struct {
	RequestID uuid.UUID            `json:"request_id"`
	Start     time.Time            `json:"start"`
	End       time.Time            `json:"end"`
	Result    *service.ScoreResult `json:"result"`
}

type ConfirmSurgeryRequestResponse struct {
	Request       *SurgeryRequestResponse `json:"request"`
	Booking       *BookingResponse        `json:"booking"`
	Gap           *service.GapEvaluation  `json:"gap"`
	Warnings      []string                `json:"warnings,omitempty"`
	Displacements []DisplacementResponse  `json:"displacements,omitempty"`
}
