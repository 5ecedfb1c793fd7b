package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// BufferMinutes is the fixed turnaround appended to every booking's occupied window.
const BufferMinutes = 20

// BookingStatus is the clinical status of a surgical case
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "Pending"
	BookingStatusScheduled  BookingStatus = "Scheduled"
	BookingStatusPreOp      BookingStatus = "Pre-Op"
	BookingStatusInProgress BookingStatus = "In-Progress"
	BookingStatusDelayed    BookingStatus = "Delayed"
	BookingStatusRecovery   BookingStatus = "Recovery"
	BookingStatusCleaning   BookingStatus = "Cleaning"
	BookingStatusPostOp     BookingStatus = "Post-Op"
	BookingStatusCompleted  BookingStatus = "Completed"
	BookingStatusCancelled  BookingStatus = "Cancelled"
	BookingStatusPostponed  BookingStatus = "Postponed"
)

// OccupyingStatuses are the statuses in which a case physically holds its room and materials.
var OccupyingStatuses = []BookingStatus{
	BookingStatusPreOp,
	BookingStatusInProgress,
	BookingStatusRecovery,
	BookingStatusCleaning,
	BookingStatusDelayed,
}

// RoomStatus is the physical occupancy state of the room for a case
type RoomStatus string

const (
	RoomStatusIdle          RoomStatus = "Idle"
	RoomStatusReady         RoomStatus = "Ready"
	RoomStatusPatientInRoom RoomStatus = "Patient In-Room"
	RoomStatusLive          RoomStatus = "Live"
	RoomStatusRecovery      RoomStatus = "Recovery"
	RoomStatusCleaning      RoomStatus = "Cleaning"
)

type Priority string

const (
	PriorityElective  Priority = "Elective"
	PriorityEmergency Priority = "Emergency"
)

type AnesthesiaType string

const (
	AnesthesiaGeneral  AnesthesiaType = "General"
	AnesthesiaSpinal   AnesthesiaType = "Spinal"
	AnesthesiaLocal    AnesthesiaType = "Local"
	AnesthesiaMAC      AnesthesiaType = "MAC"
	AnesthesiaRegional AnesthesiaType = "Regional"
	AnesthesiaSedation AnesthesiaType = "Sedation"
)

// Team is the staff assigned to a booking
type Team struct {
	SurgeonID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"surgeon_id"`
	AssistantSurgeonID *uuid.UUID     `gorm:"type:uuid;index" json:"assistant_surgeon_id,omitempty"`
	AnesthesiologistID uuid.UUID      `gorm:"type:uuid;not null;index" json:"anesthesiologist_id"`
	AnesthesiaType     AnesthesiaType `gorm:"type:varchar(20);not null" json:"anesthesia_type"`
	NurseIDs           pq.StringArray `gorm:"type:text[]" json:"nurse_ids"`
}

// Nurses returns the parsed nurse ids, skipping malformed entries.
func (t Team) Nurses() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.NurseIDs))
	for _, raw := range t.NurseIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// NurseIDStrings converts nurse ids into the stored representation.
func NurseIDStrings(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// Schedule holds planned and actual timing of a case
type Schedule struct {
	PlannedStartTime         time.Time  `gorm:"not null;index" json:"planned_start_time"`
	PlannedEndTime           time.Time  `gorm:"not null" json:"planned_end_time"`
	BufferEndTime            time.Time  `gorm:"not null;index" json:"buffer_end_time"`
	EstimatedDurationMinutes int        `gorm:"not null" json:"estimated_duration_minutes"`
	EstimatedFinishTime      time.Time  `json:"estimated_finish_time"`
	AnesthesiaPrepAt         *time.Time `json:"anesthesia_prep_at,omitempty"`
	AnesthesiaReleasedAt     *time.Time `json:"anesthesia_released_at,omitempty"`
	ActualTimeIn             *time.Time `json:"actual_time_in,omitempty"`
	ActualStartTime          *time.Time `json:"actual_start_time,omitempty"`
	ActualEndTime            *time.Time `json:"actual_end_time,omitempty"`
	ActualDurationMinutes    *int       `json:"actual_duration_minutes,omitempty"`
	LateFlagSentAt           *time.Time `json:"late_flag_sent_at,omitempty"`
}

// NewSchedule computes the derived fields of a planned window.
func NewSchedule(start, end time.Time) Schedule {
	duration := int(end.Sub(start) / time.Minute)
	return Schedule{
		PlannedStartTime:         start,
		PlannedEndTime:           end,
		BufferEndTime:            end.Add(BufferMinutes * time.Minute),
		EstimatedDurationMinutes: duration,
		EstimatedFinishTime:      end,
	}
}

// Shift moves the whole planned window by d.
func (s *Schedule) Shift(d time.Duration) {
	s.PlannedStartTime = s.PlannedStartTime.Add(d)
	s.PlannedEndTime = s.PlannedEndTime.Add(d)
	s.BufferEndTime = s.BufferEndTime.Add(d)
	s.EstimatedFinishTime = s.EstimatedFinishTime.Add(d)
}

// Booking represents a scheduled surgical case
type Booking struct {
	ID             uuid.UUID            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CaseCode       string               `gorm:"type:varchar(40);uniqueIndex;not null" json:"case_code"`
	ProcedureCode  string               `gorm:"type:varchar(40)" json:"procedure_code"`
	Title          string               `gorm:"type:varchar(200);not null" json:"title"`
	ProcedureType  string               `gorm:"type:varchar(100)" json:"procedure_type"`
	PatientID      uuid.UUID            `gorm:"type:uuid;not null;index" json:"patient_id"`
	RoomID         uuid.UUID            `gorm:"type:uuid;not null;index" json:"room_id"`
	RequestID      *uuid.UUID           `gorm:"type:uuid;index" json:"request_id,omitempty"`
	Priority       Priority             `gorm:"type:varchar(20);not null;default:'Elective'" json:"priority"`
	Team           Team                 `gorm:"embedded" json:"team"`
	Schedule       Schedule             `gorm:"embedded;embeddedPrefix:schedule_" json:"schedule"`
	PreOpChecklist PreOpChecklist       `gorm:"type:jsonb;serializer:json" json:"pre_op_checklist"`
	Resources      Resources            `gorm:"type:jsonb;serializer:json" json:"resources"`
	Arrangement    Arrangement          `gorm:"type:jsonb;serializer:json" json:"arrangement"`
	Workflow       Workflow             `gorm:"type:jsonb;serializer:json" json:"workflow"`
	Status         BookingStatus        `gorm:"type:varchar(20);not null;index" json:"status"`
	RoomStatus     RoomStatus           `gorm:"type:varchar(20);not null" json:"room_status"`
	SurgeonReady   bool                 `gorm:"not null;default:false" json:"surgeon_ready"`
	StatusHistory  []StatusHistoryEntry `gorm:"type:jsonb;serializer:json" json:"status_history"`
	DelayLogs      []DelayLog           `gorm:"type:jsonb;serializer:json" json:"delay_logs"`
	CaseLocked     bool                 `gorm:"not null;default:false" json:"case_locked"`
	CaseLockedAt   *time.Time           `json:"case_locked_at,omitempty"`
	CaseLockedBy   *uuid.UUID           `gorm:"type:uuid" json:"case_locked_by,omitempty"`
	TurnoverEndsAt *time.Time           `json:"turnover_ends_at,omitempty"`
	AdvisoryHint   string               `gorm:"type:text" json:"advisory_hint,omitempty"`
	Version        int                  `gorm:"not null;default:1" json:"version"`
	CreatedBy      *uuid.UUID           `gorm:"type:uuid" json:"created_by,omitempty"`
	CreatedAt      time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Booking) TableName() string {
	return "bookings"
}

// IsActive reports whether the booking still takes part in conflict checks
func (b *Booking) IsActive() bool {
	return b.Status != BookingStatusCancelled && b.Status != BookingStatusCompleted
}

// IsEmergency checks if booking has emergency priority
func (b *Booking) IsEmergency() bool {
	return b.Priority == PriorityEmergency
}

// HasStatus reports whether the booking is in any of the given statuses
func (b *Booking) HasStatus(statuses ...BookingStatus) bool {
	for _, s := range statuses {
		if b.Status == s {
			return true
		}
	}
	return false
}

// AddHistory appends a status-history entry for the current status.
func (b *Booking) AddHistory(note string, actorID *uuid.UUID, at time.Time) {
	b.StatusHistory = append(b.StatusHistory, StatusHistoryEntry{
		Status:     b.Status,
		RoomStatus: b.RoomStatus,
		Note:       note,
		ChangedBy:  actorID,
		ChangedAt:  at,
	})
}

// SetStatus changes the status and records it in the history.
func (b *Booking) SetStatus(status BookingStatus, note string, actorID *uuid.UUID, at time.Time) {
	b.Status = status
	b.AddHistory(note, actorID, at)
}

// AddDelay appends a delay-log entry.
func (b *Booking) AddDelay(entry DelayLog) {
	b.DelayLogs = append(b.DelayLogs, entry)
}

// DisplacedBy reports whether a delay log already records the given displacement event.
func (b *Booking) DisplacedBy(eventID uuid.UUID) bool {
	for _, d := range b.DelayLogs {
		if d.TriggeredBy != nil && *d.TriggeredBy == eventID {
			return true
		}
	}
	return false
}

// StaffIDs returns every staff member assigned to the booking.
func (b *Booking) StaffIDs() []uuid.UUID {
	ids := []uuid.UUID{b.Team.SurgeonID, b.Team.AnesthesiologistID}
	if b.Team.AssistantSurgeonID != nil {
		ids = append(ids, *b.Team.AssistantSurgeonID)
	}
	return append(ids, b.Team.Nurses()...)
}
