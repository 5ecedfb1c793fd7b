package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type MachineCheck string

const (
	MachineCheckPending MachineCheck = "Pending"
	MachineCheckPass    MachineCheck = "Pass"
	MachineCheckFail    MachineCheck = "Fail"
)

// PreOpChecklist is the WHO-style pre-operative checklist of a case
type PreOpChecklist struct {
	IdentityVerified        bool         `json:"identity_verified"`
	ConsentSigned           bool         `json:"consent_signed"`
	SiteMarked              bool         `json:"site_marked"`
	PulseOximeterFunctional bool         `json:"pulse_oximeter_functional"`
	AllergiesReviewed       bool         `json:"allergies_reviewed"`
	NPOConfirmed            bool         `json:"npo_confirmed"`
	EquipmentReady          bool         `json:"equipment_ready"`
	SafetyTimeout           bool         `json:"safety_timeout"`
	AnesthesiaMachineCheck  MachineCheck `json:"anesthesia_machine_check"`

	ProsthesisCheck        bool `json:"prosthesis_check"`
	AntibioticProphylaxis  bool `json:"antibiotic_prophylaxis"`
	RadiologyReady         bool `json:"radiology_ready"`
	BloodAvailability      bool `json:"blood_availability"`
	AnticoagulationChecked bool `json:"anticoagulation_checked"`
	BowelPrep              bool `json:"bowel_prep"`
}

// Missing returns the names of the unmet checklist gates for a procedure.
// Specialty gates apply when the procedure text names the specialty.
func (c PreOpChecklist) Missing(procedureText string) []string {
	var missing []string
	gate := func(ok bool, name string) {
		if !ok {
			missing = append(missing, name)
		}
	}

	gate(c.IdentityVerified, "identity_verified")
	gate(c.ConsentSigned, "consent_signed")
	gate(c.SiteMarked, "site_marked")
	gate(c.PulseOximeterFunctional, "pulse_oximeter_functional")
	gate(c.AllergiesReviewed, "allergies_reviewed")
	gate(c.NPOConfirmed, "npo_confirmed")
	gate(c.EquipmentReady, "equipment_ready")
	gate(c.SafetyTimeout, "safety_timeout")
	gate(c.AnesthesiaMachineCheck == MachineCheckPass, "anesthesia_machine_check")

	text := strings.ToLower(procedureText)
	if containsAny(text, "knee", "hip", "ortho") {
		gate(c.ProsthesisCheck, "prosthesis_check")
		gate(c.AntibioticProphylaxis, "antibiotic_prophylaxis")
		gate(c.RadiologyReady, "radiology_ready")
	}
	if containsAny(text, "cardiac", "vascular", "heart", "cabg") {
		gate(c.BloodAvailability, "blood_availability")
		gate(c.AnticoagulationChecked, "anticoagulation_checked")
	}
	if containsAny(text, "abdominal", "general surgery", "bowel", "colectomy", "laparotomy") {
		gate(c.BowelPrep, "bowel_prep")
	}
	return missing
}

// Complete reports whether every gate for the procedure is satisfied.
func (c PreOpChecklist) Complete(procedureText string) bool {
	return len(c.Missing(procedureText)) == 0
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// Material is a requested consumable or piece of equipment
type Material struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Consumed int    `json:"consumed"`
}

// Resources is what a case needs in the room
type Resources struct {
	StandardTray        string     `json:"standard_tray,omitempty"`
	Drugs               []string   `json:"drugs,omitempty"`
	Instruments         []string   `json:"instruments,omitempty"`
	Materials           []Material `json:"materials,omitempty"`
	SpecialRequirements string     `json:"special_requirements,omitempty"`
	RequiredHVACClass   string     `json:"required_hvac_class,omitempty"`
}

// AckStatus is the surgeon's response to a compromised arrangement
type AckStatus string

const (
	AckNotRequired     AckStatus = "NotRequired"
	AckPending         AckStatus = "Pending"
	AckAcknowledged    AckStatus = "Acknowledged"
	AckChangeRequested AckStatus = "ChangeRequested"
)

type AlternativeSource string

const (
	AlternativeSourceMobilePool AlternativeSource = "mobile_pool"
	AlternativeSourceOtherRoom  AlternativeSource = "other_ot_inventory"
	AlternativeSourceManual     AlternativeSource = "manual"
)

// AppliedAlternative records a substitute used for an item the room lacks
type AppliedAlternative struct {
	MissingItem  string            `json:"missing_item"`
	Alternative  string            `json:"alternative"`
	SourceType   AlternativeSource `json:"source_type"`
	SourceRoomID *uuid.UUID        `json:"source_room_id,omitempty"`
}

// Arrangement records any resource or room compromise applied to a booking
type Arrangement struct {
	GapItems              []string             `json:"gap_items,omitempty"`
	AppliedAlternatives   []AppliedAlternative `json:"applied_alternatives,omitempty"`
	Note                  string               `json:"note,omitempty"`
	RequiresSurgeonAck    bool                 `json:"requires_surgeon_ack"`
	SurgeonAckStatus      AckStatus            `json:"surgeon_ack_status"`
	AcknowledgedBy        *uuid.UUID           `json:"acknowledged_by,omitempty"`
	AcknowledgedAt        *time.Time           `json:"acknowledged_at,omitempty"`
	ChangeRequestReason   string               `json:"change_request_reason,omitempty"`
	ChangeRequestedAt     *time.Time           `json:"change_requested_at,omitempty"`
	ReservationReleasedAt *time.Time           `json:"reservation_released_at,omitempty"`
}

// Blocking reports whether the arrangement still waits on the surgeon.
func (a Arrangement) Blocking() bool {
	return a.RequiresSurgeonAck &&
		(a.SurgeonAckStatus == AckPending || a.SurgeonAckStatus == AckChangeRequested)
}

// RequireAck flags the arrangement for surgeon review.
func (a *Arrangement) RequireAck() {
	a.RequiresSurgeonAck = true
	a.SurgeonAckStatus = AckPending
	a.AcknowledgedBy = nil
	a.AcknowledgedAt = nil
}

// Workflow holds the intra-operative milestones of a case
type Workflow struct {
	SetupStartedAt      *time.Time `json:"setup_started_at,omitempty"`
	SignInCompletedAt   *time.Time `json:"sign_in_completed_at,omitempty"`
	SurgeonReadyAt      *time.Time `json:"surgeon_ready_at,omitempty"`
	TimeOutCompletedAt  *time.Time `json:"time_out_completed_at,omitempty"`
	TurnoverRequestedAt *time.Time `json:"turnover_requested_at,omitempty"`
	CleanedAt           *time.Time `json:"cleaned_at,omitempty"`
}

// StatusHistoryEntry is one line of the append-only status log
type StatusHistoryEntry struct {
	Status     BookingStatus `json:"status"`
	RoomStatus RoomStatus    `json:"room_status"`
	Note       string        `json:"note,omitempty"`
	ChangedBy  *uuid.UUID    `json:"changed_by,omitempty"`
	ChangedAt  time.Time     `json:"changed_at"`
}

type DelayReason string

const (
	DelayReasonPatientLate   DelayReason = "Patient Late"
	DelayReasonEquipment     DelayReason = "Equipment Issue"
	DelayReasonStaff         DelayReason = "Staff Delay"
	DelayReasonEmergencyBump DelayReason = "Emergency Bump"
	DelayReasonOther         DelayReason = "Other"
)

// DelayLog is a structured record of a delay or displacement
type DelayLog struct {
	Reason      DelayReason `json:"reason"`
	Minutes     int         `json:"minutes"`
	Note        string      `json:"note,omitempty"`
	TriggeredBy *uuid.UUID  `json:"triggered_by,omitempty"`
	LoggedBy    *uuid.UUID  `json:"logged_by,omitempty"`
	LoggedAt    time.Time   `json:"logged_at"`
}

// ValidDelayReason reports whether r is a known delay reason.
func ValidDelayReason(r DelayReason) bool {
	switch r {
	case DelayReasonPatientLate, DelayReasonEquipment, DelayReasonStaff, DelayReasonEmergencyBump, DelayReasonOther:
		return true
	}
	return false
}
