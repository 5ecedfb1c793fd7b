package entity

import (
	"time"

	"or-scheduler/pkg/textmatch"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// InventoryItem is a stocked item of a room
type InventoryItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Inventory is an ordered list of stocked items keyed by canonical name
type Inventory []InventoryItem

// NewInventory canonicalizes names and merges duplicates, keeping first-seen order.
func NewInventory(items []InventoryItem) Inventory {
	inv := make(Inventory, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		name := textmatch.CanonicalMaterial(item.Name)
		if name == "" {
			continue
		}
		if i, ok := index[name]; ok {
			inv[i].Quantity += item.Quantity
			continue
		}
		index[name] = len(inv)
		inv = append(inv, InventoryItem{Name: name, Quantity: item.Quantity})
	}
	return inv
}

// QuantityOf sums the stock of every entry matching name.
func (inv Inventory) QuantityOf(name string) int {
	total := 0
	for _, item := range inv {
		if textmatch.SameMaterial(item.Name, name) {
			total += item.Quantity
		}
	}
	return total
}

// Find returns the first stocked entry matching name.
func (inv Inventory) Find(name string) (InventoryItem, bool) {
	for _, item := range inv {
		if item.Quantity > 0 && textmatch.SameMaterial(item.Name, name) {
			return item, true
		}
	}
	return InventoryItem{}, false
}

// MaintenanceBlock is a window during which a room cannot be used
type MaintenanceBlock struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason,omitempty"`
	Active bool      `json:"active"`
}

// Overlaps reports whether an active block intersects [start, end).
func (m MaintenanceBlock) Overlaps(start, end time.Time) bool {
	return m.Active && m.Start.Before(end) && m.End.After(start)
}

// Room represents an operating theater
type Room struct {
	ID                  uuid.UUID          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Code                string             `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	Name                string             `gorm:"type:varchar(100);not null" json:"name"`
	Location            string             `gorm:"type:varchar(100)" json:"location"`
	Specializations     pq.StringArray     `gorm:"type:text[]" json:"specializations"`
	FixedInfrastructure pq.StringArray     `gorm:"type:text[]" json:"fixed_infrastructure"`
	Capabilities        pq.StringArray     `gorm:"type:text[]" json:"capabilities"`
	Functionality       string             `gorm:"type:text" json:"functionality"`
	HVACClass           string             `gorm:"type:varchar(50)" json:"hvac_class"`
	Inventory           Inventory          `gorm:"type:jsonb;serializer:json" json:"inventory"`
	MaintenanceBlocks   []MaintenanceBlock `gorm:"type:jsonb;serializer:json" json:"maintenance_blocks"`
	Active              bool               `gorm:"not null;default:true" json:"active"`
	CreatedAt           time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Room) TableName() string {
	return "rooms"
}

// Tags returns the fixed-infrastructure and capability tags of the room.
func (r *Room) Tags() []string {
	tags := make([]string, 0, len(r.FixedInfrastructure)+len(r.Capabilities))
	tags = append(tags, r.FixedInfrastructure...)
	return append(tags, r.Capabilities...)
}

// MaintenanceAt returns the first active block intersecting [start, end).
func (r *Room) MaintenanceAt(start, end time.Time) (*MaintenanceBlock, bool) {
	for i := range r.MaintenanceBlocks {
		if r.MaintenanceBlocks[i].Overlaps(start, end) {
			return &r.MaintenanceBlocks[i], true
		}
	}
	return nil, false
}
