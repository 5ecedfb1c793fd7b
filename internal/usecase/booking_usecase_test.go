package usecase

import (
	"testing"
	"time"

	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/domain/entity"
	"or-scheduler/internal/service"
	"or-scheduler/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) createRequest(start, end time.Time, overrides ...string) *dto.CreateBookingRequest {
	return &dto.CreateBookingRequest{
		Title:     "Laparoscopic Appendectomy",
		PatientID: h.patient.ID,
		RoomID:    h.room.ID,
		Team: dto.TeamRequest{
			SurgeonID:          h.surgeon.ID,
			AnesthesiologistID: h.anes.ID,
			AnesthesiaType:     string(entity.AnesthesiaSpinal),
			NurseIDs:           []uuid.UUID{h.nurse.ID},
		},
		Start:          start,
		End:            end,
		ForceOverrides: overrides,
	}
}

func TestCreateBooking_RoomConflictWithoutOverride(t *testing.T) {
	h := newHarness(t)
	a := h.seedBooking("CASE-A", h.room.ID, at(10, 0), at(11, 0), h.otherTeam())

	_, err := h.bookingUsecase().CreateBooking(h.adminCtx(), h.createRequest(at(10, 30), at(11, 0)))

	appErr, ok := apperror.As(err)
	require.True(t, ok, "expected *apperror.Error, got %T", err)
	assert.Equal(t, apperror.KindConflict, appErr.Kind)
	assert.Equal(t, apperror.ConflictRoom, appErr.ConflictType)
	assert.Equal(t, "CASE-A", appErr.ConflictCaseCode)

	assert.Len(t, h.store.bookings, 1)
	assert.True(t, h.booking(t, a.ID).Schedule.PlannedStartTime.Equal(at(10, 0)))
	assert.Empty(t, h.audit.actions())
	require.NoError(t, h.sql.ExpectationsWereMet())
}

func TestCreateBooking_ForcedRoomOverridePostponesCollision(t *testing.T) {
	h := newHarness(t)
	a := h.seedBooking("CASE-A", h.room.ID, at(10, 0), at(11, 0), h.otherTeam())
	h.expectCommit(1)

	resp, err := h.bookingUsecase().CreateBooking(h.adminCtx(), h.createRequest(at(10, 30), at(11, 0), "ot"))
	require.NoError(t, err)

	assert.Equal(t, string(entity.BookingStatusScheduled), resp.Booking.Status)
	assert.Contains(t, resp.Warnings, "Forced past ot conflict with CASE-A")

	require.Len(t, resp.Displacements, 1)
	displacement := resp.Displacements[0]
	assert.Equal(t, string(service.PlanKindForcePostpone), displacement.Kind)
	assert.Empty(t, displacement.Error)
	require.Len(t, displacement.Applied, 1)
	assert.Equal(t, a.ID, displacement.Applied[0].BookingID)
	assert.Equal(t, 50, displacement.Applied[0].ShiftMinutes)

	moved := h.booking(t, a.ID)
	assert.True(t, moved.Schedule.PlannedStartTime.Equal(at(10, 50)))
	assert.Equal(t, entity.BookingStatusPostponed, moved.Status)

	assert.Equal(t, []auditEntry{
		{Method: "create", Action: entity.AuditActionBookingCreate, EntityID: resp.Booking.ID.String(), InTx: true},
		{Method: "event", Action: entity.AuditActionBookingDisplace, EntityID: resp.Booking.ID.String(), InTx: false},
	}, h.audit.actions())

	displaced := h.notifier.ofType(service.EventBookingDisplaced)
	require.Len(t, displaced, 1)
	assert.Equal(t, a.ID, displaced[0].BookingID)
	require.NoError(t, h.sql.ExpectationsWereMet())
}

func TestCreateBooking_PendingUntilPACCleared(t *testing.T) {
	h := newHarness(t)
	patient := h.patient
	patient.PACStatus = entity.PACStatusPending
	h.store.patients[patient.ID] = patient
	h.expectCommit(1)

	resp, err := h.bookingUsecase().CreateBooking(h.adminCtx(), h.createRequest(at(10, 0), at(11, 0)))
	require.NoError(t, err)

	assert.Equal(t, string(entity.BookingStatusPending), resp.Booking.Status)
	assert.Empty(t, resp.Displacements)
	stored := h.booking(t, resp.Booking.ID)
	assert.Equal(t, "Booking created, waiting for PAC clearance", stored.StatusHistory[len(stored.StatusHistory)-1].Note)
	require.NoError(t, h.sql.ExpectationsWereMet())
}

func TestCreateBooking_UnknownOverrideRejectedBeforeWrite(t *testing.T) {
	h := newHarness(t)

	_, err := h.bookingUsecase().CreateBooking(h.adminCtx(), h.createRequest(at(10, 0), at(11, 0), "janitor"))

	assert.ErrorIs(t, err, ErrInvalidOverride)
	assert.Empty(t, h.store.bookings)
	require.NoError(t, h.sql.ExpectationsWereMet())
}

func TestRescheduleBooking_ForcedTwiceKeepsClearingCollision(t *testing.T) {
	h := newHarness(t)
	a := h.seedBooking("CASE-A", h.room.ID, at(10, 0), at(11, 0), h.otherTeam())
	uc := h.bookingUsecase()
	h.expectCommit(2)

	created, err := uc.CreateBooking(h.adminCtx(), h.createRequest(at(10, 30), at(11, 0), "ot"))
	require.NoError(t, err)
	require.True(t, h.booking(t, a.ID).Schedule.PlannedStartTime.Equal(at(10, 50)))

	resp, err := uc.RescheduleBooking(h.adminCtx(), created.Booking.ID, &dto.RescheduleBookingRequest{
		Start:          at(11, 0),
		End:            at(11, 30),
		ForceOverrides: []string{"ot"},
	})
	require.NoError(t, err)

	require.Len(t, resp.Displacements, 1)
	require.Len(t, resp.Displacements[0].Applied, 1)
	assert.Equal(t, a.ID, resp.Displacements[0].Applied[0].BookingID)

	moved := h.booking(t, a.ID)
	assert.True(t, moved.Schedule.PlannedStartTime.Equal(at(11, 40)))
	assert.Len(t, moved.DelayLogs, 2)

	source := h.booking(t, created.Booking.ID)
	assert.Equal(t, 2, source.Version)
	assert.True(t, source.Schedule.PlannedStartTime.Equal(at(11, 0)))
	assert.True(t, source.Schedule.PlannedEndTime.Before(moved.Schedule.PlannedStartTime))

	var rescheduled []auditEntry
	for _, e := range h.audit.actions() {
		if e.Action == entity.AuditActionBookingReschedule {
			rescheduled = append(rescheduled, e)
		}
	}
	require.Len(t, rescheduled, 1)
	assert.True(t, rescheduled[0].InTx)
	require.NoError(t, h.sql.ExpectationsWereMet())
}

func TestRescheduleBooking_LockedCaseCannotMove(t *testing.T) {
	h := newHarness(t)
	b := h.seedBooking("CASE-L", h.room.ID, at(10, 0), at(11, 0), h.team())
	locked := h.booking(t, b.ID)
	locked.CaseLocked = true
	h.store.bookings[b.ID] = locked

	_, err := h.bookingUsecase().RescheduleBooking(h.adminCtx(), b.ID, &dto.RescheduleBookingRequest{Start: at(12, 0), End: at(13, 0)})

	assert.ErrorIs(t, err, service.ErrCaseLocked)
	require.NoError(t, h.sql.ExpectationsWereMet())
}
