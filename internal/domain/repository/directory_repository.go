package repository

import (
	"or-scheduler/internal/domain/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RoomRepository interface {
	Create(db *gorm.DB, room *entity.Room) error
	FindByID(db *gorm.DB, id uuid.UUID) (*entity.Room, error)
	FindActive(db *gorm.DB) ([]entity.Room, error)
	FindAll(db *gorm.DB) ([]entity.Room, error)
	Update(db *gorm.DB, room *entity.Room) error
}

type StaffRepository interface {
	Create(db *gorm.DB, staff *entity.Staff) error
	FindByID(db *gorm.DB, id uuid.UUID) (*entity.Staff, error)
	FindByIDs(db *gorm.DB, ids []uuid.UUID) ([]entity.Staff, error)
	FindActiveByRole(db *gorm.DB, role entity.StaffRole) ([]entity.Staff, error)
	FindAll(db *gorm.DB) ([]entity.Staff, error)
}

type SurgeonRepository interface {
	Create(db *gorm.DB, surgeon *entity.Surgeon) error
	FindByID(db *gorm.DB, id uuid.UUID) (*entity.Surgeon, error)
	FindAll(db *gorm.DB) ([]entity.Surgeon, error)
	Update(db *gorm.DB, surgeon *entity.Surgeon) error
}

type MobileEquipmentRepository interface {
	Upsert(db *gorm.DB, item *entity.MobileEquipment) error
	FindActive(db *gorm.DB) ([]entity.MobileEquipment, error)
}

type PatientRepository interface {
	Create(db *gorm.DB, patient *entity.Patient) error
	FindByID(db *gorm.DB, id uuid.UUID) (*entity.Patient, error)
	Update(db *gorm.DB, patient *entity.Patient) error
}
