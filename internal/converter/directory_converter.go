package converter

import (
	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/domain/entity"
)

// RoomToResponse converts a Room entity to RoomResponse DTO
func RoomToResponse(room *entity.Room) *dto.RoomResponse {
	if room == nil {
		return nil
	}

	return &dto.RoomResponse{
		ID:                  room.ID,
		Code:                room.Code,
		Name:                room.Name,
		Location:            room.Location,
		Specializations:     room.Specializations,
		FixedInfrastructure: room.FixedInfrastructure,
		Capabilities:        room.Capabilities,
		Functionality:       room.Functionality,
		HVACClass:           room.HVACClass,
		Inventory:           room.Inventory,
		MaintenanceBlocks:   room.MaintenanceBlocks,
		Active:              room.Active,
	}
}

func RoomsToResponses(rooms []entity.Room) []dto.RoomResponse {
	responses := make([]dto.RoomResponse, len(rooms))
	for i := range rooms {
		responses[i] = *RoomToResponse(&rooms[i])
	}
	return responses
}

// RoomFromRequest builds a room entity, canonicalizing its inventory
func RoomFromRequest(req *dto.CreateRoomRequest) *entity.Room {
	items := make([]entity.InventoryItem, 0, len(req.Inventory))
	for _, item := range req.Inventory {
		items = append(items, entity.InventoryItem{Name: item.Name, Quantity: item.Quantity})
	}
	return &entity.Room{
		Code:                req.Code,
		Name:                req.Name,
		Location:            req.Location,
		Specializations:     req.Specializations,
		FixedInfrastructure: req.FixedInfrastructure,
		Capabilities:        req.Capabilities,
		Functionality:       req.Functionality,
		HVACClass:           req.HVACClass,
		Inventory:           entity.NewInventory(items),
		Active:              true,
	}
}

func StaffToResponse(staff *entity.Staff) *dto.StaffResponse {
	if staff == nil {
		return nil
	}

	return &dto.StaffResponse{
		ID:         staff.ID,
		Code:       staff.Code,
		Name:       staff.Name,
		Role:       string(staff.Role),
		ShiftStart: staff.ShiftStart,
		ShiftEnd:   staff.ShiftEnd,
		Active:     staff.Active,
	}
}

func StaffListToResponses(staff []entity.Staff) []dto.StaffResponse {
	responses := make([]dto.StaffResponse, len(staff))
	for i := range staff {
		responses[i] = *StaffToResponse(&staff[i])
	}
	return responses
}

func SurgeonToResponse(surgeon *entity.Surgeon) *dto.SurgeonResponse {
	if surgeon == nil {
		return nil
	}

	cards := surgeon.PreferenceCards
	if cards == nil {
		cards = []entity.PreferenceCard{}
	}
	return &dto.SurgeonResponse{
		ID:              surgeon.ID,
		Code:            surgeon.Code,
		Name:            surgeon.Name,
		Specialization:  surgeon.Specialization,
		MaxHoursPerWeek: surgeon.MaxHoursPerWeek,
		PreferenceCards: cards,
		Active:          surgeon.Active,
	}
}

func SurgeonsToResponses(surgeons []entity.Surgeon) []dto.SurgeonResponse {
	responses := make([]dto.SurgeonResponse, len(surgeons))
	for i := range surgeons {
		responses[i] = *SurgeonToResponse(&surgeons[i])
	}
	return responses
}

func PatientToResponse(patient *entity.Patient) *dto.PatientResponse {
	if patient == nil {
		return nil
	}

	return &dto.PatientResponse{
		ID:           patient.ID,
		MRN:          patient.MRN,
		Name:         patient.Name,
		Age:          patient.Age,
		Gender:       patient.Gender,
		PACStatus:    string(patient.PACStatus),
		PACClearedAt: patient.PACClearedAt,
	}
}
