package entity

import (
	"time"

	"github.com/google/uuid"
)

// PACStatus is the pre-anesthesia clearance state of a patient
type PACStatus string

const (
	PACStatusPending PACStatus = "Pending"
	PACStatusCleared PACStatus = "Cleared"
)

// Patient represents a surgical patient
type Patient struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	MRN          string     `gorm:"type:varchar(40);uniqueIndex;not null" json:"mrn"`
	Name         string     `gorm:"type:varchar(100);not null" json:"name"`
	Age          int        `json:"age"`
	Gender       string     `gorm:"type:varchar(10)" json:"gender"`
	PACStatus    PACStatus  `gorm:"type:varchar(20);not null;default:'Pending'" json:"pac_status"`
	PACClearedAt *time.Time `json:"pac_cleared_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Patient) TableName() string {
	return "patients"
}

// IsPACCleared checks if the patient is cleared for anesthesia
func (p *Patient) IsPACCleared() bool {
	return p.PACStatus == PACStatusCleared
}
