package entity

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the status of a surgery request
type RequestStatus string

const (
	RequestStatusPending     RequestStatus = "Pending"
	RequestStatusUnderReview RequestStatus = "Under-Review"
	RequestStatusScheduled   RequestStatus = "Scheduled"
	RequestStatusRejected    RequestStatus = "Rejected"
	RequestStatusCancelled   RequestStatus = "Cancelled"
)

// PatientSnapshot is the patient data captured when the request was raised
type PatientSnapshot struct {
	Name   string `json:"name"`
	MRN    string `json:"mrn"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

// RequestProcedure describes the procedure a surgeon asks for
type RequestProcedure struct {
	Name                 string         `json:"name"`
	ProcedureType        string         `json:"procedure_type"`
	Side                 string         `json:"side,omitempty"`
	DurationMinutes      int            `json:"duration_minutes"`
	Urgency              Priority       `json:"urgency"`
	AnesthesiaPreference AnesthesiaType `json:"anesthesia_preference"`
	RequiredEnvironment  string         `json:"required_environment,omitempty"`
}

// RequestResources is the surgeon's wish-list
type RequestResources struct {
	Equipment []string `json:"equipment,omitempty"`
	Materials []string `json:"materials,omitempty"`
	Drugs     []string `json:"drugs,omitempty"`
}

// Items returns every requested equipment and material name.
func (r RequestResources) Items() []string {
	items := make([]string, 0, len(r.Equipment)+len(r.Materials))
	items = append(items, r.Equipment...)
	return append(items, r.Materials...)
}

// RequestAssignment is the snapshot of the room match chosen for a request
type RequestAssignment struct {
	RoomID              uuid.UUID            `json:"room_id"`
	RoomCode            string               `json:"room_code"`
	ScheduledStart      time.Time            `json:"scheduled_start"`
	ScheduledEnd        time.Time            `json:"scheduled_end"`
	AnesthesiologistID  uuid.UUID            `json:"anesthesiologist_id"`
	NurseIDs            []uuid.UUID          `json:"nurse_ids,omitempty"`
	Score               int                  `json:"score"`
	AppliedAlternatives []AppliedAlternative `json:"applied_alternatives,omitempty"`
	AssignedBy          *uuid.UUID           `json:"assigned_by,omitempty"`
	AssignedAt          time.Time            `json:"assigned_at"`
}

// ChangeRequest is a surgeon's request to rework an arrangement
type ChangeRequest struct {
	Reason      string    `json:"reason"`
	RequestedBy uuid.UUID `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// SurgeryRequest is a surgeon's ask for an unscheduled case
type SurgeryRequest struct {
	ID              uuid.UUID          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Code            string             `gorm:"type:varchar(40);uniqueIndex;not null" json:"code"`
	RequestedBy     uuid.UUID          `gorm:"type:uuid;not null;index" json:"requested_by"`
	PatientID       uuid.UUID          `gorm:"type:uuid;not null;index" json:"patient_id"`
	Patient         PatientSnapshot    `gorm:"type:jsonb;serializer:json" json:"patient"`
	Procedure       RequestProcedure   `gorm:"type:jsonb;serializer:json" json:"procedure"`
	PreferredStart  time.Time          `gorm:"not null" json:"preferred_start"`
	Resources       RequestResources   `gorm:"type:jsonb;serializer:json" json:"resources"`
	Status          RequestStatus      `gorm:"type:varchar(20);not null;default:'Pending';index" json:"status"`
	Assignment      *RequestAssignment `gorm:"type:jsonb;serializer:json" json:"assignment,omitempty"`
	ChangeRequest   *ChangeRequest     `gorm:"type:jsonb;serializer:json" json:"change_request,omitempty"`
	BookingID       *uuid.UUID         `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	AdminNotes      string             `gorm:"type:text" json:"admin_notes,omitempty"`
	RejectionReason string             `gorm:"type:text" json:"rejection_reason,omitempty"`
	ReviewedBy      *uuid.UUID         `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time         `json:"reviewed_at,omitempty"`
	ConfirmedBy     *uuid.UUID         `gorm:"type:uuid" json:"confirmed_by,omitempty"`
	ConfirmedAt     *time.Time         `json:"confirmed_at,omitempty"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SurgeryRequest) TableName() string {
	return "surgery_requests"
}

// IsOpen checks if the request can still be reviewed or confirmed
func (r *SurgeryRequest) IsOpen() bool {
	return r.Status == RequestStatusPending || r.Status == RequestStatusUnderReview
}
