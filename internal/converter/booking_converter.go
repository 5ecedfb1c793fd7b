package converter

import (
	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/domain/entity"
	"or-scheduler/internal/service"

	"github.com/google/uuid"
)

// BookingToResponse converts a Booking entity to BookingResponse DTO
func BookingToResponse(booking *entity.Booking) *dto.BookingResponse {
	if booking == nil {
		return nil
	}

	return &dto.BookingResponse{
		ID:             booking.ID,
		CaseCode:       booking.CaseCode,
		ProcedureCode:  booking.ProcedureCode,
		Title:          booking.Title,
		ProcedureType:  booking.ProcedureType,
		PatientID:      booking.PatientID,
		RoomID:         booking.RoomID,
		RequestID:      booking.RequestID,
		Priority:       string(booking.Priority),
		Team:           booking.Team,
		Schedule:       booking.Schedule,
		PreOpChecklist: booking.PreOpChecklist,
		Resources:      booking.Resources,
		Arrangement:    booking.Arrangement,
		Workflow:       booking.Workflow,
		Status:         string(booking.Status),
		RoomStatus:     string(booking.RoomStatus),
		SurgeonReady:   booking.SurgeonReady,
		StatusHistory:  booking.StatusHistory,
		DelayLogs:      booking.DelayLogs,
		CaseLocked:     booking.CaseLocked,
		CaseLockedAt:   booking.CaseLockedAt,
		TurnoverEndsAt: booking.TurnoverEndsAt,
		AdvisoryHint:   booking.AdvisoryHint,
		Version:        booking.Version,
		CreatedAt:      booking.CreatedAt,
		UpdatedAt:      booking.UpdatedAt,
	}
}

// BookingsToResponses converts a slice of Booking entities to slice of BookingResponse DTOs
func BookingsToResponses(bookings []entity.Booking) []dto.BookingResponse {
	responses := make([]dto.BookingResponse, len(bookings))
	for i := range bookings {
		responses[i] = *BookingToResponse(&bookings[i])
	}
	return responses
}

// TeamFromRequest converts the team DTO into the stored team
func TeamFromRequest(req dto.TeamRequest) entity.Team {
	return entity.Team{
		SurgeonID:          req.SurgeonID,
		AssistantSurgeonID: req.AssistantSurgeonID,
		AnesthesiologistID: req.AnesthesiologistID,
		AnesthesiaType:     entity.AnesthesiaType(req.AnesthesiaType),
		NurseIDs:           entity.NurseIDStrings(req.NurseIDs),
	}
}

// MaterialsFromRequest converts requested materials
func MaterialsFromRequest(items []dto.MaterialRequest) []entity.Material {
	materials := make([]entity.Material, 0, len(items))
	for _, item := range items {
		materials = append(materials, entity.Material{Name: item.Name, Quantity: item.Quantity})
	}
	return materials
}

// ResourcesFromRequest converts the resources DTO
func ResourcesFromRequest(req dto.ResourcesRequest) entity.Resources {
	return entity.Resources{
		StandardTray:        req.StandardTray,
		Drugs:               req.Drugs,
		Instruments:         req.Instruments,
		Materials:           MaterialsFromRequest(req.Materials),
		SpecialRequirements: req.SpecialRequirements,
		RequiredHVACClass:   req.RequiredHVACClass,
	}
}

// ChecklistFromRequest converts the checklist DTO
func ChecklistFromRequest(req dto.ChecklistRequest) entity.PreOpChecklist {
	check := entity.MachineCheck(req.AnesthesiaMachineCheck)
	if check == "" {
		check = entity.MachineCheckPending
	}
	return entity.PreOpChecklist{
		IdentityVerified:        req.IdentityVerified,
		ConsentSigned:           req.ConsentSigned,
		SiteMarked:              req.SiteMarked,
		PulseOximeterFunctional: req.PulseOximeterFunctional,
		AllergiesReviewed:       req.AllergiesReviewed,
		NPOConfirmed:            req.NPOConfirmed,
		EquipmentReady:          req.EquipmentReady,
		SafetyTimeout:           req.SafetyTimeout,
		AnesthesiaMachineCheck:  check,
		ProsthesisCheck:         req.ProsthesisCheck,
		AntibioticProphylaxis:   req.AntibioticProphylaxis,
		RadiologyReady:          req.RadiologyReady,
		BloodAvailability:       req.BloodAvailability,
		AnticoagulationChecked:  req.AnticoagulationChecked,
		BowelPrep:               req.BowelPrep,
	}
}

// DisplacementToResponse converts a rescheduling outcome. A nil result with an
// error reports a plan that could not be computed.
func DisplacementToResponse(kind service.PlanKind, result *service.ApplyResult, err error) dto.DisplacementResponse {
	resp := dto.DisplacementResponse{Kind: string(kind), Applied: []service.PlannedMove{}}
	if result != nil {
		resp.Applied = result.Applied
		resp.Unapplied = result.Unapplied
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// UUIDPtr returns a pointer to a copy of id
func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
