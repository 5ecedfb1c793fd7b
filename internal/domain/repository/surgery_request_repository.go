package repository

import (
	"or-scheduler/internal/domain/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SurgeryRequestRepository interface {
	Create(db *gorm.DB, request *entity.SurgeryRequest) error
	FindByID(db *gorm.DB, id uuid.UUID) (*entity.SurgeryRequest, error)
	FindByBookingID(db *gorm.DB, bookingID uuid.UUID) (*entity.SurgeryRequest, error)
	FindAll(db *gorm.DB, status *entity.RequestStatus) ([]entity.SurgeryRequest, error)
	FindByRequester(db *gorm.DB, surgeonID uuid.UUID) ([]entity.SurgeryRequest, error)
	Update(db *gorm.DB, request *entity.SurgeryRequest) error
}
