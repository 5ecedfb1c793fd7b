package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FatigueCeilingHours is the hard weekly ceiling regardless of a surgeon's own cap.
const FatigueCeilingHours = 48

// PreferenceCard is a surgeon's saved material list for a procedure type
type PreferenceCard struct {
	ProcedureType string     `json:"procedure_type"`
	Materials     []Material `json:"materials"`
}

// Surgeon represents an operating surgeon
type Surgeon struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Code            string           `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	Name            string           `gorm:"type:varchar(100);not null" json:"name"`
	Specialization  string           `gorm:"type:varchar(100)" json:"specialization"`
	MaxHoursPerWeek int              `gorm:"not null;default:40" json:"max_hours_per_week"`
	PreferenceCards []PreferenceCard `gorm:"type:jsonb;serializer:json" json:"preference_cards"`
	Active          bool             `gorm:"not null;default:true" json:"active"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Surgeon) TableName() string {
	return "surgeons"
}

// WeeklyCapHours returns the lesser of the surgeon's cap and the hard ceiling.
func (s *Surgeon) WeeklyCapHours() int {
	if s.MaxHoursPerWeek <= 0 || s.MaxHoursPerWeek > FatigueCeilingHours {
		return FatigueCeilingHours
	}
	return s.MaxHoursPerWeek
}

// PreferenceFor returns the preference card for a procedure type.
func (s *Surgeon) PreferenceFor(procedureType string) (*PreferenceCard, bool) {
	for i := range s.PreferenceCards {
		if strings.EqualFold(strings.TrimSpace(s.PreferenceCards[i].ProcedureType), strings.TrimSpace(procedureType)) {
			return &s.PreferenceCards[i], true
		}
	}
	return nil, false
}

// SetPreferenceCard inserts or replaces the card for its procedure type.
func (s *Surgeon) SetPreferenceCard(card PreferenceCard) {
	for i := range s.PreferenceCards {
		if strings.EqualFold(s.PreferenceCards[i].ProcedureType, card.ProcedureType) {
			s.PreferenceCards[i] = card
			return
		}
	}
	s.PreferenceCards = append(s.PreferenceCards, card)
}
