package repository

import (
	"errors"
	"time"

	"or-scheduler/internal/domain/entity"
	domainRepo "or-scheduler/internal/domain/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var inactiveStatuses = []entity.BookingStatus{entity.BookingStatusCancelled, entity.BookingStatusCompleted}

type bookingRepository struct{}

func NewBookingRepository() domainRepo.BookingRepository {
	return &bookingRepository{}
}

func (r *bookingRepository) Create(db *gorm.DB, booking *entity.Booking) error {
	if booking.Version == 0 {
		booking.Version = 1
	}
	return db.Create(booking).Error
}

func (r *bookingRepository) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Booking, error) {
	var booking entity.Booking
	err := db.Where("id = ?", id).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// Update writes every column guarded by the version the caller read.
// Returns affected rows: 1 = saved, 0 = someone else saved first.
func (r *bookingRepository) Update(db *gorm.DB, booking *entity.Booking) (int64, error) {
	readVersion := booking.Version
	booking.Version = readVersion + 1

	result := db.Model(booking).
		Where("version = ?", readVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(booking)
	if result.Error != nil || result.RowsAffected == 0 {
		booking.Version = readVersion
	}
	return result.RowsAffected, result.Error
}

func (r *bookingRepository) FindOverlapping(db *gorm.DB, q entity.OverlapQuery) ([]entity.Booking, error) {
	endColumn := "schedule_planned_end_time"
	if q.BufferAware {
		endColumn = "schedule_buffer_end_time"
	}

	query := db.Where("status NOT IN ?", inactiveStatuses).
		Where("schedule_planned_start_time < ?", q.End).
		Where(endColumn+" > ?", q.Start)

	if q.ExcludeID != uuid.Nil {
		query = query.Where("id <> ?", q.ExcludeID)
	}
	if q.RoomID != nil {
		query = query.Where("room_id = ?", *q.RoomID)
	}
	if q.SurgeonID != nil {
		query = query.Where("surgeon_id = ?", *q.SurgeonID)
	}
	if q.AssistantID != nil {
		query = query.Where("assistant_surgeon_id = ?", *q.AssistantID)
	}
	if q.AnesthesiologistID != nil {
		query = query.Where("anesthesiologist_id = ?", *q.AnesthesiologistID)
	}
	if len(q.NurseIDs) > 0 {
		query = query.Where("nurse_ids && ?::text[]", entity.NurseIDStrings(q.NurseIDs))
	}

	var bookings []entity.Booking
	if err := query.Order("schedule_planned_start_time ASC").Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *bookingRepository) FindOccupying(db *gorm.DB, q entity.OccupancyQuery) ([]entity.Booking, error) {
	query := db.Where("status IN ?", q.Statuses)
	if q.RoomID != nil {
		query = query.Where("room_id = ?", *q.RoomID)
	}
	if q.ExcludeID != uuid.Nil {
		query = query.Where("id <> ?", q.ExcludeID)
	}

	var bookings []entity.Booking
	if err := query.Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *bookingRepository) FindRoomQueue(db *gorm.DB, q entity.RoomQueueQuery) ([]entity.Booking, error) {
	query := db.Where("room_id = ? AND schedule_planned_start_time >= ?", q.RoomID, q.From)

	if len(q.Statuses) > 0 {
		query = query.Where("status IN ?", q.Statuses)
	} else {
		query = query.Where("status NOT IN ?", inactiveStatuses)
	}
	if q.ExcludeID != uuid.Nil {
		query = query.Where("id <> ?", q.ExcludeID)
	}
	if q.SkipEmergency {
		query = query.Where("priority <> ?", entity.PriorityEmergency)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var bookings []entity.Booking
	if err := query.Order("schedule_planned_start_time ASC").Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *bookingRepository) SumSurgeonMinutes(db *gorm.DB, surgeonID uuid.UUID, from, to time.Time, excludeID uuid.UUID) (int64, error) {
	var minutes float64
	query := db.Model(&entity.Booking{}).
		Select("COALESCE(SUM(EXTRACT(EPOCH FROM (schedule_planned_end_time - schedule_planned_start_time)) / 60), 0)").
		Where("surgeon_id = ? AND status <> ?", surgeonID, entity.BookingStatusCancelled).
		Where("schedule_planned_start_time >= ? AND schedule_planned_end_time <= ?", from, to)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}

	if err := query.Scan(&minutes).Error; err != nil {
		return 0, err
	}
	return int64(minutes), nil
}

func (r *bookingRepository) CountDelayed(db *gorm.DB, q entity.DelayStatsQuery) (int64, error) {
	query := db.Model(&entity.Booking{}).
		Where("status = ? AND updated_at >= ?", entity.BookingStatusDelayed, q.Since)
	if q.SurgeonID != nil {
		query = query.Where("surgeon_id = ?", *q.SurgeonID)
	}
	if q.RoomID != nil {
		query = query.Where("room_id = ?", *q.RoomID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *bookingRepository) FindAll(db *gorm.DB, filter entity.BookingFilter) ([]entity.Booking, error) {
	query := db.Model(&entity.Booking{})
	if filter.RoomID != nil {
		query = query.Where("room_id = ?", *filter.RoomID)
	}
	if filter.SurgeonID != nil {
		query = query.Where("surgeon_id = ?", *filter.SurgeonID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		query = query.Where("schedule_planned_start_time >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("schedule_planned_start_time < ?", *filter.To)
	}

	var bookings []entity.Booking
	if err := query.Order("schedule_planned_start_time ASC").Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}
