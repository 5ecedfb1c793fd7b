package service

import (
	"context"
	"fmt"
	"time"

	"or-scheduler/internal/domain/entity"
	"or-scheduler/internal/domain/repository"
	"or-scheduler/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrConcurrentUpdate is returned when a booking changed between read and save.
var ErrConcurrentUpdate = apperror.Conflict("booking was modified concurrently, reload and retry")

// Deps is the dependency bundle threaded through every scheduling component.
type Deps struct {
	DB       *gorm.DB
	Log      *logrus.Logger
	Bookings repository.BookingRepository
	Requests repository.SurgeryRequestRepository
	Rooms    repository.RoomRepository
	Staff    repository.StaffRepository
	Surgeons repository.SurgeonRepository
	Mobile   repository.MobileEquipmentRepository
	Patients repository.PatientRepository

	// Now and Location default to time.Now and time.Local.
	Now      func() time.Time
	Location *time.Location
}

func (d Deps) conn(ctx context.Context) *gorm.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.WithContext(ctx)
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d Deps) location() *time.Location {
	if d.Location == nil {
		return time.Local
	}
	return d.Location
}

// findBooking re-reads the latest stored state of a booking.
func (d Deps) findBooking(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	booking, err := d.Bookings.FindByID(d.conn(ctx), id)
	if err != nil {
		d.Log.Warnf("Failed to find booking %s: %+v", id, err)
		return nil, fmt.Errorf("find booking %s: %w", id, err)
	}
	if booking == nil {
		return nil, apperror.NotFound("booking not found")
	}
	return booking, nil
}

// saveBooking persists a booking with a version check.
func (d Deps) saveBooking(ctx context.Context, booking *entity.Booking) error {
	rows, err := d.Bookings.Update(d.conn(ctx), booking)
	if err != nil {
		d.Log.Warnf("Failed to save booking %s: %+v", booking.ID, err)
		return fmt.Errorf("save booking %s: %w", booking.ID, err)
	}
	if rows == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}
