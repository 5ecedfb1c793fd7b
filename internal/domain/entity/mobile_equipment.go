package entity

import (
	"time"

	"github.com/google/uuid"
)

// MobileEquipment is an item of the shared, room-independent pool
type MobileEquipment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"type:varchar(150);uniqueIndex;not null" json:"name"`
	Quantity  int       `gorm:"not null;default:0" json:"quantity"`
	Notes     string    `gorm:"type:text" json:"notes,omitempty"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MobileEquipment) TableName() string {
	return "mobile_equipment"
}

// MobilePool converts the pool snapshot into an inventory.
func MobilePool(items []MobileEquipment) Inventory {
	inv := make([]InventoryItem, 0, len(items))
	for _, item := range items {
		if item.Active {
			inv = append(inv, InventoryItem{Name: item.Name, Quantity: item.Quantity})
		}
	}
	return NewInventory(inv)
}
