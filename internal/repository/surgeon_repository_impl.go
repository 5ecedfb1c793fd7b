package repository

import (
	"errors"

	"or-scheduler/internal/domain/entity"
	domainRepo "or-scheduler/internal/domain/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type surgeonRepository struct{}

func NewSurgeonRepository() domainRepo.SurgeonRepository {
	return &surgeonRepository{}
}

func (r *surgeonRepository) Create(db *gorm.DB, surgeon *entity.Surgeon) error {
	return db.Create(surgeon).Error
}

func (r *surgeonRepository) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Surgeon, error) {
	var surgeon entity.Surgeon
	err := db.Where("id = ?", id).First(&surgeon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &surgeon, nil
}

func (r *surgeonRepository) FindAll(db *gorm.DB) ([]entity.Surgeon, error) {
	var surgeons []entity.Surgeon
	if err := db.Order("name ASC").Find(&surgeons).Error; err != nil {
		return nil, err
	}
	return surgeons, nil
}

func (r *surgeonRepository) Update(db *gorm.DB, surgeon *entity.Surgeon) error {
	return db.Save(surgeon).Error
}
