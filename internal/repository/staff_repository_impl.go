package repository

import (
	"errors"

	"or-scheduler/internal/domain/entity"
	domainRepo "or-scheduler/internal/domain/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type staffRepository struct{}

func NewStaffRepository() domainRepo.StaffRepository {
	return &staffRepository{}
}

func (r *staffRepository) Create(db *gorm.DB, staff *entity.Staff) error {
	return db.Create(staff).Error
}

func (r *staffRepository) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Staff, error) {
	var staff entity.Staff
	err := db.Where("id = ?", id).First(&staff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &staff, nil
}

func (r *staffRepository) FindByIDs(db *gorm.DB, ids []uuid.UUID) ([]entity.Staff, error) {
	var staff []entity.Staff
	if len(ids) == 0 {
		return staff, nil
	}
	if err := db.Where("id IN ?", ids).Find(&staff).Error; err != nil {
		return nil, err
	}
	return staff, nil
}

func (r *staffRepository) FindActiveByRole(db *gorm.DB, role entity.StaffRole) ([]entity.Staff, error) {
	var staff []entity.Staff
	err := db.Where("role = ? AND active = ?", role, true).
		Order("name ASC").
		Find(&staff).Error
	if err != nil {
		return nil, err
	}
	return staff, nil
}

func (r *staffRepository) FindAll(db *gorm.DB) ([]entity.Staff, error) {
	var staff []entity.Staff
	if err := db.Order("role ASC, name ASC").Find(&staff).Error; err != nil {
		return nil, err
	}
	return staff, nil
}
