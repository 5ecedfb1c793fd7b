package dto

import (
	"time"

	"or-scheduler/internal/domain/entity"

	"github.com/google/uuid"
)

// Request DTOs

type InventoryItemRequest struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

type CreateRoomRequest struct {
	Code                string                 `json:"code" validate:"required,max=30"`
	Name                string                 `json:"name" validate:"required,max=100"`
	Location            string                 `json:"location" validate:"omitempty,max=100"`
	Specializations     []string               `json:"specializations" validate:"omitempty"`
	FixedInfrastructure []string               `json:"fixed_infrastructure" validate:"omitempty"`
	Capabilities        []string               `json:"capabilities" validate:"omitempty"`
	Functionality       string                 `json:"functionality" validate:"omitempty"`
	HVACClass           string                 `json:"hvac_class" validate:"omitempty,max=50"`
	Inventory           []InventoryItemRequest `json:"inventory" validate:"omitempty,dive"`
}

type MaintenanceBlockRequest struct {
	Start  time.Time `json:"start" validate:"required"`
	End    time.Time `json:"end" validate:"required,gtfield=Start"`
	Reason string    `json:"reason" validate:"omitempty,max=200"`
}

type CreateStaffRequest struct {
	Code       string `json:"code" validate:"required,max=30"`
	Name       string `json:"name" validate:"required,max=100"`
	Role       string `json:"role" validate:"required,oneof=Anesthesiologist Nurse Technician"`
	ShiftStart string `json:"shift_start" validate:"omitempty,datetime=15:04"`
	ShiftEnd   string `json:"shift_end" validate:"omitempty,datetime=15:04"`
}

type CreateSurgeonRequest struct {
	Code            string `json:"code" validate:"required,max=30"`
	Name            string `json:"name" validate:"required,max=100"`
	Specialization  string `json:"specialization" validate:"omitempty,max=100"`
	MaxHoursPerWeek int    `json:"max_hours_per_week" validate:"omitempty,min=1,max=168"`
}

type PreferenceCardRequest struct {
	ProcedureType string            `json:"procedure_type" validate:"required,max=100"`
	Materials     []MaterialRequest `json:"materials" validate:"required,min=1,dive"`
}

type MobileEquipmentRequest struct {
	Name     string `json:"name" validate:"required,max=150"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Notes    string `json:"notes" validate:"omitempty"`
	Active   *bool  `json:"active" validate:"omitempty"`
}

type CreatePatientRequest struct {
	MRN    string `json:"mrn" validate:"required,max=40"`
	Name   string `json:"name" validate:"required,max=100"`
	Age    int    `json:"age" validate:"omitempty,gte=0,lte=130"`
	Gender string `json:"gender" validate:"omitempty,max=10"`
}

// Response DTOs

type RoomResponse struct {
	ID                  uuid.UUID                 `json:"id"`
	Code                string                    `json:"code"`
	Name                string                    `json:"name"`
	Location            string                    `json:"location,omitempty"`
	Specializations     []string                  `json:"specializations"`
	FixedInfrastructure []string                  `json:"fixed_infrastructure"`
	Capabilities        []string                  `json:"capabilities"`
	Functionality       string                    `json:"functionality,omitempty"`
	HVACClass           string                    `json:"hvac_class,omitempty"`
	Inventory           entity.Inventory          `json:"inventory"`
	MaintenanceBlocks   []entity.MaintenanceBlock `json:"maintenance_blocks"`
	Active              bool                      `json:"active"`
}

type RoomListResponse struct {
	Rooms []RoomResponse `json:"rooms"`
	Total int            `json:"total"`
}

type StaffResponse struct {
	ID         uuid.UUID `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	ShiftStart string    `json:"shift_start"`
	ShiftEnd   string    `json:"shift_end"`
	Active     bool      `json:"active"`
}

type StaffListResponse struct {
	Staff []StaffResponse `json:"staff"`
	Total int             `json:"total"`
}

type SurgeonResponse struct {
	ID              uuid.UUID               `json:"id"`
	Code            string                  `json:"code"`
	Name            string                  `json:"name"`
	Specialization  string                  `json:"specialization,omitempty"`
	MaxHoursPerWeek int                     `json:"max_hours_per_week"`
	PreferenceCards []entity.PreferenceCard `json:"preference_cards"`
	Active          bool                    `json:"active"`
}

type SurgeonListResponse struct {
	Surgeons []SurgeonResponse `json:"surgeons"`
	Total    int               `json:"total"`
}

type MobileEquipmentListResponse struct {
	Items []entity.MobileEquipment `json:"items"`
	Total int                      `json:"total"`
}

type PatientResponse struct {
	ID           uuid.UUID  `json:"id"`
	MRN          string     `json:"mrn"`
	Name         string     `json:"name"`
	Age          int        `json:"age,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	PACStatus    string     `json:"pac_status"`
	PACClearedAt *time.Time `json:"pac_cleared_at,omitempty"`
}
