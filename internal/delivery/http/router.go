package http

import (
	"net/http"

	"or-scheduler/internal/delivery/http/handler"
	"or-scheduler/internal/delivery/http/middleware"

	"github.com/gorilla/mux"
)

type Router struct {
	router           *mux.Router
	bookingHandler   *handler.BookingHandler
	requestHandler   *handler.SurgeryRequestHandler
	workflowHandler  *handler.WorkflowHandler
	directoryHandler *handler.DirectoryHandler
	auditLogHandler  *handler.AuditLogHandler
	authMiddleware   *middleware.AuthMiddleware
	corsMiddleware   *middleware.CORSMiddleware
}

func NewRouter(
	bookingHandler *handler.BookingHandler,
	requestHandler *handler.SurgeryRequestHandler,
	workflowHandler *handler.WorkflowHandler,
	directoryHandler *handler.DirectoryHandler,
	auditLogHandler *handler.AuditLogHandler,
	authMiddleware *middleware.AuthMiddleware,
	corsMiddleware *middleware.CORSMiddleware,
) *Router {
	return &Router{
		router:           mux.NewRouter(),
		bookingHandler:   bookingHandler,
		requestHandler:   requestHandler,
		workflowHandler:  workflowHandler,
		directoryHandler: directoryHandler,
		auditLogHandler:  auditLogHandler,
		authMiddleware:   authMiddleware,
		corsMiddleware:   corsMiddleware,
	}
}

func (r *Router) Setup() *mux.Router {
	// API versioning
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	// Admin routes (protected - admin only)
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(r.authMiddleware.Authenticate)
	admin.Use(middleware.RequireAdmin)

	// Booking management (admin)
	admin.HandleFunc("/bookings", r.bookingHandler.CreateBooking).Methods(http.MethodPost)
	admin.HandleFunc("/bookings/emergency", r.bookingHandler.CreateEmergencyBooking).Methods(http.MethodPost)
	admin.HandleFunc("/bookings", r.bookingHandler.GetAllBookings).Methods(http.MethodGet)
	admin.HandleFunc("/bookings/{id}", r.bookingHandler.GetBooking).Methods(http.MethodGet)
	admin.HandleFunc("/bookings/{id}/schedule", r.bookingHandler.RescheduleBooking).Methods(http.MethodPut)
	admin.HandleFunc("/bookings/{id}/delay", r.bookingHandler.LogDelay).Methods(http.MethodPost)

	// Surgery request workflow (admin)
	admin.HandleFunc("/requests", r.requestHandler.GetAllRequests).Methods(http.MethodGet)
	admin.HandleFunc("/requests/{id}", r.requestHandler.GetRequest).Methods(http.MethodGet)
	admin.HandleFunc("/requests/{id}/review", r.requestHandler.ReviewRequest).Methods(http.MethodPost)
	admin.HandleFunc("/requests/{id}/suggestions", r.requestHandler.GetSuggestions).Methods(http.MethodGet)
	admin.HandleFunc("/requests/{id}/confirm", r.requestHandler.ConfirmRequest).Methods(http.MethodPost)
	admin.HandleFunc("/requests/{id}/finalize", r.requestHandler.FinalizeRequest).Methods(http.MethodPost)
	admin.HandleFunc("/requests/{id}/reject", r.requestHandler.RejectRequest).Methods(http.MethodPost)

	// Directory (admin)
	admin.HandleFunc("/rooms", r.directoryHandler.CreateRoom).Methods(http.MethodPost)
	admin.HandleFunc("/rooms", r.directoryHandler.GetAllRooms).Methods(http.MethodGet)
	admin.HandleFunc("/rooms/{id}", r.directoryHandler.GetRoom).Methods(http.MethodGet)
	admin.HandleFunc("/rooms/{id}/maintenance", r.directoryHandler.AddMaintenanceBlock).Methods(http.MethodPost)
	admin.HandleFunc("/staff", r.directoryHandler.CreateStaff).Methods(http.MethodPost)
	admin.HandleFunc("/staff", r.directoryHandler.GetAllStaff).Methods(http.MethodGet)
	admin.HandleFunc("/surgeons", r.directoryHandler.CreateSurgeon).Methods(http.MethodPost)
	admin.HandleFunc("/surgeons", r.directoryHandler.GetAllSurgeons).Methods(http.MethodGet)
	admin.HandleFunc("/surgeons/{id}/preference-cards", r.directoryHandler.SetPreferenceCard).Methods(http.MethodPut)
	admin.HandleFunc("/mobile-equipment", r.directoryHandler.UpsertMobileEquipment).Methods(http.MethodPut)
	admin.HandleFunc("/mobile-equipment", r.directoryHandler.GetMobileEquipment).Methods(http.MethodGet)
	admin.HandleFunc("/patients", r.directoryHandler.CreatePatient).Methods(http.MethodPost)
	admin.HandleFunc("/patients/{id}", r.directoryHandler.GetPatient).Methods(http.MethodGet)
	admin.HandleFunc("/patients/{id}/clear-pac", r.directoryHandler.ClearPAC).Methods(http.MethodPost)

	// Audit logs (admin)
	admin.HandleFunc("/audit-logs", r.auditLogHandler.GetAllAuditLogs).Methods(http.MethodGet)
	admin.HandleFunc("/audit-logs/{id}", r.auditLogHandler.GetAuditLog).Methods(http.MethodGet)

	// Surgeon routes (protected - surgeon only)
	surgeon := api.PathPrefix("/surgeon").Subrouter()
	surgeon.Use(r.authMiddleware.Authenticate)
	surgeon.Use(middleware.RequireSurgeon)

	surgeon.HandleFunc("/requests", r.requestHandler.CreateRequest).Methods(http.MethodPost)
	surgeon.HandleFunc("/requests", r.requestHandler.GetMyRequests).Methods(http.MethodGet)
	surgeon.HandleFunc("/requests/{id}/cancel", r.requestHandler.CancelRequest).Methods(http.MethodPost)
	surgeon.HandleFunc("/bookings/{id}/acknowledge", r.workflowHandler.AcknowledgeArrangement).Methods(http.MethodPost)
	surgeon.HandleFunc("/bookings/{id}/request-change", r.workflowHandler.RequestArrangementChange).Methods(http.MethodPost)
	surgeon.HandleFunc("/preference-cards", r.directoryHandler.SetMyPreferenceCard).Methods(http.MethodPut)

	// Clinical workflow routes (protected - case team and admin)
	clinical := api.PathPrefix("/bookings").Subrouter()
	clinical.Use(r.authMiddleware.Authenticate)
	clinical.Use(middleware.RequireClinical)

	clinical.HandleFunc("/{id}", r.bookingHandler.GetBooking).Methods(http.MethodGet)
	clinical.HandleFunc("/{id}/checklist", r.workflowHandler.UpdateChecklist).Methods(http.MethodPut)
	clinical.HandleFunc("/{id}/transitions", r.workflowHandler.Transition).Methods(http.MethodPost)
	clinical.HandleFunc("/{id}/materials", r.workflowHandler.LogMaterialConsumption).Methods(http.MethodPost)

	// Add CORS middleware
	r.router.Use(r.corsMiddleware.Handle)

	return r.router
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}
