package entity

import (
	"time"

	"github.com/google/uuid"
)

// OverlapQuery searches active bookings intersecting a window. Every set dimension
// must match. With BufferAware the stored buffer end is compared instead of the planned end.
type OverlapQuery struct {
	ExcludeID          uuid.UUID
	Start              time.Time
	End                time.Time
	BufferAware        bool
	RoomID             *uuid.UUID
	SurgeonID          *uuid.UUID
	AssistantID        *uuid.UUID
	AnesthesiologistID *uuid.UUID
	NurseIDs           []uuid.UUID
}

// Overlaps reports whether b satisfies the query.
func (q OverlapQuery) Overlaps(b *Booking) bool {
	if !b.IsActive() || b.ID == q.ExcludeID {
		return false
	}
	end := b.Schedule.PlannedEndTime
	if q.BufferAware {
		end = b.Schedule.BufferEndTime
	}
	if !b.Schedule.PlannedStartTime.Before(q.End) || !end.After(q.Start) {
		return false
	}
	if q.RoomID != nil && b.RoomID != *q.RoomID {
		return false
	}
	if q.SurgeonID != nil && b.Team.SurgeonID != *q.SurgeonID {
		return false
	}
	if q.AssistantID != nil && (b.Team.AssistantSurgeonID == nil || *b.Team.AssistantSurgeonID != *q.AssistantID) {
		return false
	}
	if q.AnesthesiologistID != nil && b.Team.AnesthesiologistID != *q.AnesthesiologistID {
		return false
	}
	if len(q.NurseIDs) > 0 && !sharesNurse(b.Team.Nurses(), q.NurseIDs) {
		return false
	}
	return true
}

func sharesNurse(a, b []uuid.UUID) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// OccupancyQuery searches bookings currently holding resources
type OccupancyQuery struct {
	Statuses  []BookingStatus
	RoomID    *uuid.UUID
	ExcludeID uuid.UUID
}

// RoomQueueQuery lists active bookings of a room starting at or after From, earliest first
type RoomQueueQuery struct {
	RoomID        uuid.UUID
	From          time.Time
	ExcludeID     uuid.UUID
	SkipEmergency bool
	Statuses      []BookingStatus
	Limit         int
}

// DelayStatsQuery counts Delayed bookings updated since a point in time
type DelayStatsQuery struct {
	SurgeonID *uuid.UUID
	RoomID    *uuid.UUID
	Since     time.Time
}

// BookingFilter is the admin listing filter
type BookingFilter struct {
	RoomID    *uuid.UUID
	SurgeonID *uuid.UUID
	Status    *BookingStatus
	From      *time.Time
	To        *time.Time
}
