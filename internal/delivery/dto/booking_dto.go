package dto

import (
	"time"

	"or-scheduler/internal/domain/entity"
	"or-scheduler/internal/service"

	"github.com/google/uuid"
)

// Request DTOs

type TeamRequest struct {
	SurgeonID          uuid.UUID   `json:"surgeon_id" validate:"required"`
	AssistantSurgeonID *uuid.UUID  `json:"assistant_surgeon_id" validate:"omitempty"`
	AnesthesiologistID uuid.UUID   `json:"anesthesiologist_id" validate:"required"`
	AnesthesiaType     string      `json:"anesthesia_type" validate:"required,oneof=General Spinal Local MAC Regional Sedation"`
	NurseIDs           []uuid.UUID `json:"nurse_ids" validate:"omitempty,dive,required"`
}

type MaterialRequest struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type ResourcesRequest struct {
	StandardTray        string            `json:"standard_tray" validate:"omitempty"`
	Drugs               []string          `json:"drugs" validate:"omitempty"`
	Instruments         []string          `json:"instruments" validate:"omitempty"`
	Materials           []MaterialRequest `json:"materials" validate:"omitempty,dive"`
	SpecialRequirements string            `json:"special_requirements" validate:"omitempty"`
	RequiredHVACClass   string            `json:"required_hvac_class" validate:"omitempty"`
}

type CreateBookingRequest struct {
	CaseCode              string           `json:"case_code" validate:"omitempty,max=40"`
	ProcedureCode         string           `json:"procedure_code" validate:"omitempty,max=40"`
	Title                 string           `json:"title" validate:"required,max=200"`
	ProcedureType         string           `json:"procedure_type" validate:"omitempty,max=100"`
	PatientID             uuid.UUID        `json:"patient_id" validate:"required"`
	RoomID                uuid.UUID        `json:"room_id" validate:"required"`
	Priority              string           `json:"priority" validate:"omitempty,oneof=Elective Emergency"`
	Team                  TeamRequest      `json:"team"`
	Start                 time.Time        `json:"start" validate:"required"`
	End                   time.Time        `json:"end" validate:"required,gtfield=Start"`
	AnesthesiaPrepAt      *time.Time       `json:"anesthesia_prep_at" validate:"omitempty"`
	Resources             ResourcesRequest `json:"resources"`
	AllowEmergencyPreempt bool             `json:"allow_emergency_preempt"`
	ForceOverrides        []string         `json:"force_overrides" validate:"omitempty,dive,oneof=ot surgeon assistant anesthesiologist nurse"`
}

type RescheduleBookingRequest struct {
	RoomID           *uuid.UUID `json:"room_id" validate:"omitempty"`
	Start            time.Time  `json:"start" validate:"required"`
	End              time.Time  `json:"end" validate:"required,gtfield=Start"`
	AnesthesiaPrepAt *time.Time `json:"anesthesia_prep_at" validate:"omitempty"`
	ForceOverrides   []string   `json:"force_overrides" validate:"omitempty,dive,oneof=ot surgeon assistant anesthesiologist nurse"`
}

type LogDelayRequest struct {
	Minutes int    `json:"minutes" validate:"required,min=1"`
	Reason  string `json:"reason" validate:"omitempty"`
	Note    string `json:"note" validate:"omitempty,max=500"`
}

type TransitionRequest struct {
	Action  string `json:"action" validate:"required"`
	Note    string `json:"note" validate:"omitempty,max=500"`
	Reason  string `json:"reason" validate:"omitempty"`
	Minutes int    `json:"minutes" validate:"omitempty,min=0"`
}

type ChecklistRequest struct {
	IdentityVerified        bool   `json:"identity_verified"`
	ConsentSigned           bool   `json:"consent_signed"`
	SiteMarked              bool   `json:"site_marked"`
	PulseOximeterFunctional bool   `json:"pulse_oximeter_functional"`
	AllergiesReviewed       bool   `json:"allergies_reviewed"`
	NPOConfirmed            bool   `json:"npo_confirmed"`
	EquipmentReady          bool   `json:"equipment_ready"`
	SafetyTimeout           bool   `json:"safety_timeout"`
	AnesthesiaMachineCheck  string `json:"anesthesia_machine_check" validate:"omitempty,oneof=Pending Pass Fail"`
	ProsthesisCheck         bool   `json:"prosthesis_check"`
	AntibioticProphylaxis   bool   `json:"antibiotic_prophylaxis"`
	RadiologyReady          bool   `json:"radiology_ready"`
	BloodAvailability       bool   `json:"blood_availability"`
	AnticoagulationChecked  bool   `json:"anticoagulation_checked"`
	BowelPrep               bool   `json:"bowel_prep"`
}

type MaterialConsumptionRequest struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type ChangeArrangementRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=500"`
}

type BookingListRequest struct {
	RoomID    *uuid.UUID
	SurgeonID *uuid.UUID
	Status    string
	Date      *time.Time
}

// Response DTOs

type BookingResponse struct {
	ID             uuid.UUID                   `json:"id"`
	CaseCode       string                      `json:"case_code"`
	ProcedureCode  string                      `json:"procedure_code,omitempty"`
	Title          string                      `json:"title"`
	ProcedureType  string                      `json:"procedure_type,omitempty"`
	PatientID      uuid.UUID                   `json:"patient_id"`
	RoomID         uuid.UUID                   `json:"room_id"`
	RequestID      *uuid.UUID                  `json:"request_id,omitempty"`
	Priority       string                      `json:"priority"`
	Team           entity.Team                 `json:"team"`
	Schedule       entity.Schedule             `json:"schedule"`
	PreOpChecklist entity.PreOpChecklist       `json:"pre_op_checklist"`
	Resources      entity.Resources            `json:"resources"`
	Arrangement    entity.Arrangement          `json:"arrangement"`
	Workflow       entity.Workflow             `json:"workflow"`
	Status         string                      `json:"status"`
	RoomStatus     string                      `json:"room_status"`
	SurgeonReady   bool                        `json:"surgeon_ready"`
	StatusHistory  []entity.StatusHistoryEntry `json:"status_history"`
	DelayLogs      []entity.DelayLog           `json:"delay_logs"`
	CaseLocked     bool                        `json:"case_locked"`
	CaseLockedAt   *time.Time                  `json:"case_locked_at,omitempty"`
	TurnoverEndsAt *time.Time                  `json:"turnover_ends_at,omitempty"`
	AdvisoryHint   string                      `json:"advisory_hint,omitempty"`
	Version        int                         `json:"version"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

type BookingListResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Total    int               `json:"total"`
}

// DisplacementResponse reports the bookings moved as a side effect of a write.
type DisplacementResponse struct {
	Kind      string                `json:"kind"`
	Applied   []service.PlannedMove `json:"applied"`
	Unapplied []service.PlannedMove `json:"unapplied,omitempty"`
	Error     string                `json:"error,omitempty"`
}

type BookingMutationResponse struct {
	Booking       *BookingResponse       `json:"booking"`
	Warnings      []string               `json:"warnings,omitempty"`
	AdvisoryHint  string                 `json:"advisory_hint,omitempty"`
	Displacements []DisplacementResponse `json:"displacements,omitempty"`
}
