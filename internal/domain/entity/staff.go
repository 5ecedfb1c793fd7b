package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type StaffRole string

const (
	StaffRoleAnesthesiologist StaffRole = "Anesthesiologist"
	StaffRoleNurse            StaffRole = "Nurse"
	StaffRoleTechnician       StaffRole = "Technician"
)

const (
	defaultShiftStart = "00:00"
	defaultShiftEnd   = "23:59"
)

// Staff represents support personnel assigned to cases
type Staff struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Code       string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	Name       string    `gorm:"type:varchar(100);not null" json:"name"`
	Role       StaffRole `gorm:"type:varchar(30);not null;index" json:"role"`
	ShiftStart string    `gorm:"type:varchar(5);not null;default:'00:00'" json:"shift_start"`
	ShiftEnd   string    `gorm:"type:varchar(5);not null;default:'23:59'" json:"shift_end"`
	Active     bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Staff) TableName() string {
	return "staff"
}

// WithinShift reports whether the time-of-day of start and end, read in loc,
// both fall inside the staff member's shift window.
func (s *Staff) WithinShift(start, end time.Time, loc *time.Location) bool {
	shiftStart, err := ParseClock(s.ShiftStart, defaultShiftStart)
	if err != nil {
		return false
	}
	shiftEnd, err := ParseClock(s.ShiftEnd, defaultShiftEnd)
	if err != nil {
		return false
	}

	startMin := minuteOfDay(start.In(loc))
	endMin := minuteOfDay(end.In(loc))
	return startMin >= shiftStart && endMin <= shiftEnd
}

// ParseClock parses "HH:MM" into minutes after midnight, using fallback when empty.
func ParseClock(value, fallback string) (int, error) {
	if value == "" {
		value = fallback
	}
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
