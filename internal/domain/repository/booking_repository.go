package repository

import (
	"time"

	"or-scheduler/internal/domain/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingRepository interface {
	Create(db *gorm.DB, booking *entity.Booking) error
	FindByID(db *gorm.DB, id uuid.UUID) (*entity.Booking, error)
	// Update saves the booking only if its version is unchanged, then bumps the version.
	// Returns the number of affected rows; zero means a concurrent writer won.
	Update(db *gorm.DB, booking *entity.Booking) (int64, error)
	FindOverlapping(db *gorm.DB, q entity.OverlapQuery) ([]entity.Booking, error)
	FindOccupying(db *gorm.DB, q entity.OccupancyQuery) ([]entity.Booking, error)
	FindRoomQueue(db *gorm.DB, q entity.RoomQueueQuery) ([]entity.Booking, error)
	SumSurgeonMinutes(db *gorm.DB, surgeonID uuid.UUID, from, to time.Time, excludeID uuid.UUID) (int64, error)
	CountDelayed(db *gorm.DB, q entity.DelayStatsQuery) (int64, error)
	FindAll(db *gorm.DB, filter entity.BookingFilter) ([]entity.Booking, error)
}
