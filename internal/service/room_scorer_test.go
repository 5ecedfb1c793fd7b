package service

import (
	"context"
	"testing"
	"time"

	"or-scheduler/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) addOrthoRoom() entity.Room {
	room := entity.Room{
		ID:                  uuid.New(),
		Code:                "OT-3",
		Name:                "Orthopedic Theatre",
		Active:              true,
		Specializations:     []string{"orthopedic", "joint replacement"},
		Capabilities:        []string{"orthopedic", "trauma"},
		FixedInfrastructure: []string{"Laminar Airflow", "Ceiling Mounted C-Arm"},
		Functionality:       "implant positioning imaging sterile",
		HVACClass:           "Laminar Airflow",
		Inventory:           entity.NewInventory([]entity.InventoryItem{{Name: "Knee Prosthesis Set", Quantity: 2}}),
	}
	f.store.rooms[room.ID] = room
	return room
}

func kneeInput(items ...string) ScoreInput {
	return ScoreInput{
		ProcedureName:        "Total Knee Arthroplasty",
		AnesthesiaPreference: "Regional",
		Items:                items,
		Start:                at(10, 0),
		End:                  at(12, 0),
	}
}

func TestInferDemand(t *testing.T) {
	demand := InferDemand(kneeInput())
	assert.Equal(t, []string{"ORTHO"}, demand.Domains)
	assert.Contains(t, demand.SpecialtyTokens, "joint")
	assert.Contains(t, demand.SpecialtyTokens, "knee")
	assert.Contains(t, demand.FunctionalityTokens, "regional")

	assert.Empty(t, InferDemand(ScoreInput{ProcedureName: "Cataract extraction"}).Domains)
}

func TestScoreRequest_RanksSpecialtyRoomFirst(t *testing.T) {
	f := newFixture()
	ortho := f.addOrthoRoom()
	scorer := NewRoomScorer(f.store.deps(at(7, 0)))

	result, err := scorer.ScoreRequest(context.Background(), kneeInput("Knee Prosthesis Set"))
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 3)

	best := result.Best()
	assert.Equal(t, ortho.ID, best.RoomID)
	assert.Equal(t, []string{"Knee Prosthesis Set"}, best.MatchedItems)
	assert.Empty(t, best.Unresolvable)
	assert.Greater(t, best.Score, result.Suggestions[1].Score)
	assert.Equal(t, []string{"ORTHO"}, result.Domains)
	for i := 1; i < len(result.Suggestions); i++ {
		assert.GreaterOrEqual(t, result.Suggestions[i-1].Score, result.Suggestions[i].Score)
	}
}

func TestScoreRequest_MobilePoolCoversMissingItem(t *testing.T) {
	f := newFixture()
	f.store.mobile["Harmonic Scalpel Unit"] = entity.MobileEquipment{ID: uuid.New(), Name: "Harmonic Scalpel Unit", Quantity: 1, Active: true}
	scorer := NewRoomScorer(f.store.deps(at(7, 0)))

	result, err := scorer.ScoreRequest(context.Background(), ScoreInput{
		ProcedureName: "Laparoscopic Cholecystectomy",
		Items:         []string{"Harmonic Scalpel"},
		Start:         at(10, 0),
		End:           at(11, 0),
	})
	require.NoError(t, err)

	suggestion := result.Find(f.room.ID)
	require.NotNil(t, suggestion)
	assert.Equal(t, []MobileMove{{Missing: "Harmonic Scalpel", Alternative: "Harmonic Scalpel Unit", Direct: true}}, suggestion.MobileMoves)
	assert.Equal(t, []string{"Harmonic Scalpel"}, suggestion.MatchedItems)
	assert.Empty(t, suggestion.Unresolvable)

	alternatives := suggestion.AppliedAlternatives()
	require.Len(t, alternatives, 1)
	assert.Equal(t, entity.AlternativeSourceMobilePool, alternatives[0].SourceType)
}

func TestScoreRequest_ConsumableGaps(t *testing.T) {
	f := newFixture()
	room2 := f.store.rooms[f.room2.ID]
	room2.Inventory = entity.NewInventory([]entity.InventoryItem{{Name: "Titanium Mesh", Quantity: 1}})
	f.store.rooms[f.room2.ID] = room2
	scorer := NewRoomScorer(f.store.deps(at(7, 0)))

	result, err := scorer.ScoreRequest(context.Background(), ScoreInput{
		ProcedureName: "Hernia Repair",
		Items:         []string{"Titanium Mesh", "Bone Cement"},
		Start:         at(10, 0),
		End:           at(11, 0),
	})
	require.NoError(t, err)

	first := result.Find(f.room.ID)
	require.NotNil(t, first)
	assert.ElementsMatch(t, []string{"Titanium Mesh", "Bone Cement"}, first.MissingFixed)
	assert.Equal(t, []CrossRoomMove{{Missing: "Titanium Mesh", SourceRoomID: f.room2.ID, SourceRoomCode: "OT-2"}}, first.CrossRoomMoves)
	assert.Equal(t, []string{"Bone Cement"}, first.Unresolvable)
	assert.Greater(t, first.Score, 0, "penalty factors are floored")

	second := result.Find(f.room2.ID)
	require.NotNil(t, second)
	assert.Equal(t, []string{"Titanium Mesh"}, second.MatchedItems)
	assert.Equal(t, f.room2.ID, result.Best().RoomID)
}

func TestScoreRequest_BookedRoomRanksLower(t *testing.T) {
	f := newFixture()
	f.seedBooking("CASE-A", f.room.ID, at(9, 0), at(10, 30))
	scorer := NewRoomScorer(f.store.deps(at(7, 0)))

	result, err := scorer.ScoreRequest(context.Background(), ScoreInput{ProcedureName: "Appendectomy", Start: at(10, 0), End: at(11, 0)})
	require.NoError(t, err)

	assert.Equal(t, f.room2.ID, result.Suggestions[0].RoomID)
	booked := result.Find(f.room.ID)
	assert.True(t, booked.Booked)
	assert.True(t, booked.Breakdown.BookedPenalty)
	assert.Contains(t, booked.Summary, "Room busy")
}

func TestScoreRequest_BufferCountsAsBusy(t *testing.T) {
	f := newFixture()
	// CASE-A ends 09:50; its buffer runs to 10:10.
	f.seedBooking("CASE-A", f.room.ID, at(9, 0), at(9, 50))
	scorer := NewRoomScorer(f.store.deps(at(7, 0)))

	result, err := scorer.ScoreRequest(context.Background(), ScoreInput{ProcedureName: "Appendectomy", Start: at(10, 0), End: at(11, 0)})
	require.NoError(t, err)
	assert.True(t, result.Find(f.room.ID).Booked)
}

func TestEvaluateSelection(t *testing.T) {
	f := newFixture()
	ortho := f.addOrthoRoom()
	scorer := NewRoomScorer(f.store.deps(at(7, 0)))

	result, err := scorer.ScoreRequest(context.Background(), kneeInput("Knee Prosthesis Set"))
	require.NoError(t, err)

	eval := scorer.EvaluateSelection(result, ortho.ID)
	assert.False(t, eval.RequiresAcknowledge)
	assert.Equal(t, GapMessageCompatible, eval.Message)

	eval = scorer.EvaluateSelection(result, f.room.ID)
	assert.True(t, eval.SubOptimal)
	assert.True(t, eval.RequiresAcknowledge)
	assert.Equal(t, GapMessageAcknowledge, eval.Message)

	eval = scorer.EvaluateSelection(result, uuid.New())
	assert.Nil(t, eval.Selected)
	assert.Equal(t, GapMessageNoSelection, eval.Message)
}

func TestEvaluateSelection_Unresolvable(t *testing.T) {
	f := newFixture()
	scorer := NewRoomScorer(f.store.deps(at(7, 0)))

	result, err := scorer.ScoreRequest(context.Background(), ScoreInput{
		ProcedureName: "Spinal Fusion",
		Items:         []string{"Pedicle Screw Implant Kit"},
		Start:         at(10, 0),
		End:           at(11, 0),
	})
	require.NoError(t, err)

	eval := scorer.EvaluateSelection(result, f.room.ID)
	assert.True(t, eval.HasUnresolvable)
	assert.Equal(t, GapMessageImpossible, eval.Message)
}

func TestCandidateRooms(t *testing.T) {
	f := newFixture()
	ortho := f.addOrthoRoom()
	scorer := NewRoomScorer(f.store.deps(at(7, 0)))
	demand := kneeInput()

	// OT-2 is booked in the window; OT-1 is the excluded source room.
	f.seedBooking("CASE-B", f.room2.ID, at(10, 30), at(11, 0))

	candidates, err := scorer.CandidateRooms(context.Background(), CandidateQuery{
		Start:         at(10, 0),
		BufferEnd:     at(12, 20),
		ExcludeRoomID: f.room.ID,
		Demand:        demand,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, ortho.ID, candidates[0].RoomID)

	room := f.store.rooms[ortho.ID]
	room.MaintenanceBlocks = []entity.MaintenanceBlock{{Start: at(12, 0), End: at(13, 0), Active: true}}
	f.store.rooms[ortho.ID] = room

	candidates, err = scorer.CandidateRooms(context.Background(), CandidateQuery{
		Start:         at(10, 0),
		BufferEnd:     at(12, 20),
		ExcludeRoomID: f.room.ID,
		Demand:        demand,
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestCandidateRooms_Environment(t *testing.T) {
	f := newFixture()
	scorer := NewRoomScorer(f.store.deps(at(7, 0)))

	demand := ScoreInput{ProcedureName: "Appendectomy", RequiredEnvironment: "Laminar Airflow", Start: at(10, 0), End: at(11, 0)}
	candidates, err := scorer.CandidateRooms(context.Background(), CandidateQuery{
		Start:     at(10, 0),
		BufferEnd: at(11, 20),
		Demand:    demand,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, f.room.ID, candidates[0].RoomID)
}

func TestScoreInputFromRequest(t *testing.T) {
	bookingID := uuid.New()
	req := &entity.SurgeryRequest{
		PreferredStart: at(9, 0),
		Procedure:      entity.RequestProcedure{Name: "Knee Arthroscopy", AnesthesiaPreference: entity.AnesthesiaSpinal},
		Resources:      entity.RequestResources{Equipment: []string{"Arthroscope", "Arthroscope"}, Materials: []string{"Suture"}},
		BookingID:      &bookingID,
	}

	in := ScoreInputFromRequest(req, nil)
	assert.True(t, in.Start.Equal(at(9, 0)))
	assert.Equal(t, time.Duration(defaultRequestDurationMinutes)*time.Minute, in.End.Sub(in.Start))
	assert.Equal(t, []string{"Arthroscope", "Suture"}, in.Items)
	assert.Equal(t, bookingID, in.ExcludeBookingID)

	override := at(13, 0)
	req.Procedure.DurationMinutes = 90
	in = ScoreInputFromRequest(req, &override)
	assert.True(t, in.End.Equal(at(14, 30)))
}
