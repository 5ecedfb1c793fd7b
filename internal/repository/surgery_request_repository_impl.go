package repository

import (
	"errors"

	"or-scheduler/internal/domain/entity"
	domainRepo "or-scheduler/internal/domain/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type surgeryRequestRepository struct{}

func NewSurgeryRequestRepository() domainRepo.SurgeryRequestRepository {
	return &surgeryRequestRepository{}
}

func (r *surgeryRequestRepository) Create(db *gorm.DB, request *entity.SurgeryRequest) error {
	return db.Create(request).Error
}

func (r *surgeryRequestRepository) FindByID(db *gorm.DB, id uuid.UUID) (*entity.SurgeryRequest, error) {
	var request entity.SurgeryRequest
	err := db.Where("id = ?", id).First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *surgeryRequestRepository) FindByBookingID(db *gorm.DB, bookingID uuid.UUID) (*entity.SurgeryRequest, error) {
	var request entity.SurgeryRequest
	err := db.Where("booking_id = ?", bookingID).First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *surgeryRequestRepository) FindAll(db *gorm.DB, status *entity.RequestStatus) ([]entity.SurgeryRequest, error) {
	query := db.Model(&entity.SurgeryRequest{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var requests []entity.SurgeryRequest
	if err := query.Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *surgeryRequestRepository) FindByRequester(db *gorm.DB, surgeonID uuid.UUID) ([]entity.SurgeryRequest, error) {
	var requests []entity.SurgeryRequest
	err := db.Where("requested_by = ?", surgeonID).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *surgeryRequestRepository) Update(db *gorm.DB, request *entity.SurgeryRequest) error {
	return db.Save(request).Error
}
