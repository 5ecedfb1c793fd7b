package handler

import (
	"net/http"
	"time"

	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/usecase"
	"or-scheduler/pkg/response"
	"or-scheduler/pkg/validator"

	"github.com/google/uuid"
)

type BookingHandler struct {
	bookingUsecase usecase.BookingUsecase
	validator      *validator.CustomValidator
}

func NewBookingHandler(bookingUsecase usecase.BookingUsecase, validator *validator.CustomValidator) *BookingHandler {
	return &BookingHandler{
		bookingUsecase: bookingUsecase,
		validator:      validator,
	}
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBookingRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	result, err := h.bookingUsecase.CreateBooking(r.Context(), &req)
	if err != nil {
		response.AppError(w, err, "Failed to create booking")
		return
	}

	response.Success(w, http.StatusCreated, "Booking created successfully", result)
}

func (h *BookingHandler) CreateEmergencyBooking(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBookingRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	result, err := h.bookingUsecase.CreateEmergencyBooking(r.Context(), &req)
	if err != nil {
		response.AppError(w, err, "Failed to create emergency booking")
		return
	}

	response.Success(w, http.StatusCreated, "Emergency booking created successfully", result)
}

func (h *BookingHandler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(w, r, "id", "booking")
	if !ok {
		return
	}

	var req dto.RescheduleBookingRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	result, err := h.bookingUsecase.RescheduleBooking(r.Context(), bookingID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to reschedule booking")
		return
	}

	response.Success(w, http.StatusOK, "Booking rescheduled successfully", result)
}

func (h *BookingHandler) LogDelay(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(w, r, "id", "booking")
	if !ok {
		return
	}

	var req dto.LogDelayRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	result, err := h.bookingUsecase.LogDelay(r.Context(), bookingID, &req)
	if err != nil {
		response.AppError(w, err, "Failed to log delay")
		return
	}

	response.Success(w, http.StatusOK, "Delay logged successfully", result)
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(w, r, "id", "booking")
	if !ok {
		return
	}

	booking, err := h.bookingUsecase.GetBooking(r.Context(), bookingID)
	if err != nil {
		response.AppError(w, err, "Failed to get booking")
		return
	}

	response.Success(w, http.StatusOK, "Booking retrieved successfully", booking)
}

// GetAllBookings lists bookings filtered by room_id, surgeon_id, status and date (YYYY-MM-DD)
func (h *BookingHandler) GetAllBookings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := dto.BookingListRequest{Status: query.Get("status")}

	if raw := query.Get("room_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid room ID", nil)
			return
		}
		req.RoomID = &id
	}
	if raw := query.Get("surgeon_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid surgeon ID", nil)
			return
		}
		req.SurgeonID = &id
	}
	if raw := query.Get("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid date format, use YYYY-MM-DD", nil)
			return
		}
		req.Date = &date
	}

	bookings, err := h.bookingUsecase.GetAllBookings(r.Context(), &req)
	if err != nil {
		response.AppError(w, err, "Failed to get bookings")
		return
	}

	response.Success(w, http.StatusOK, "Bookings retrieved successfully", bookings)
}
