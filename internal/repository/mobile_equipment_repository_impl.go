package repository

import (
	"or-scheduler/internal/domain/entity"
	domainRepo "or-scheduler/internal/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type mobileEquipmentRepository struct{}

func NewMobileEquipmentRepository() domainRepo.MobileEquipmentRepository {
	return &mobileEquipmentRepository{}
}

// Upsert inserts the item or overwrites quantity, notes and active flag of the
// item with the same name.
func (r *mobileEquipmentRepository) Upsert(db *gorm.DB, item *entity.MobileEquipment) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "notes", "active", "updated_at"}),
	}).Create(item).Error
}

func (r *mobileEquipmentRepository) FindActive(db *gorm.DB) ([]entity.MobileEquipment, error) {
	var items []entity.MobileEquipment
	if err := db.Where("active = ?", true).Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
