package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"or-scheduler/internal/domain/entity"
	"or-scheduler/pkg/textmatch"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

const defaultRequestDurationMinutes = 60

// ====================================================================
// Demand profile
// ====================================================================

type domainRule struct {
	domain        string
	triggers      []string
	specialties   []string
	capabilities  []string
	functionality []string
}

var domainRules = []domainRule{
	{
		domain:        "ORTHO",
		triggers:      []string{"hip", "knee", "arthroplasty", "fracture", "joint", "orthopedic", "ortho", "spine"},
		specialties:   []string{"joint", "bone", "fracture", "orthopedic", "spine"},
		capabilities:  []string{"orthopedic", "trauma", "spine"},
		functionality: []string{"implant", "positioning", "imaging", "sterile"},
	},
	{
		domain:        "CARDIAC",
		triggers:      []string{"cardiac", "vascular", "tavi", "endovascular", "angioplasty", "valve", "aortic"},
		specialties:   []string{"cardiac", "vascular", "interventional"},
		capabilities:  []string{"cardiac", "vascular", "hybrid", "trauma"},
		functionality: []string{"angiography", "endovascular", "radiology", "open"},
	},
	{
		domain:        "ROBOTIC",
		triggers:      []string{"robotic", "laparoscopic", "prostatectomy", "urology", "gynecology", "bariatric", "minimally"},
		specialties:   []string{"urology", "gynecology", "bariatric", "cardiothoracic", "gastro"},
		capabilities:  []string{"robotic", "minimally", "laparoscopy"},
		functionality: []string{"console", "display", "4k", "booms", "robotic"},
	},
	{
		domain:        "NEURO",
		triggers:      []string{"neuro", "brain", "tumor", "dbs", "microsurgery", "spinal", "fusion"},
		specialties:   []string{"brain", "neuro", "spinal"},
		capabilities:  []string{"neuro", "microsurgery", "spine"},
		functionality: []string{"navigation", "microscope", "magnification", "cranial"},
	},
}

type mobileAlternative struct {
	keys        []string
	alternative string
}

// mobileAlternatives maps substrings of a missing item onto a pool substitute.
var mobileAlternatives = []mobileAlternative{
	{keys: []string{"c-arm", "x-ray"}, alternative: "Mobile C-Arm (X-Ray)"},
	{keys: []string{"ultrasound"}, alternative: "Portable Ultrasound"},
	{keys: []string{"laparoscopy", "tower"}, alternative: "Laparoscopic Tower (Mobile)"},
	{keys: []string{"harmonic"}, alternative: "Harmonic Scalpel Unit"},
	{keys: []string{"esu", "electrosurgical"}, alternative: "Electrosurgical Generator (ESU)"},
	{keys: []string{"robotic", "davinci", "console"}, alternative: "Mobile Robotic Unit #2"},
	{keys: []string{"4k", "video", "monitor", "display", "view box"}, alternative: "Portable Monitor Cart"},
	{keys: []string{"angiography", "fluoroscopy"}, alternative: "Mobile C-Arm (X-Ray)"},
	{keys: []string{"neuro", "navigation"}, alternative: "Portable Neuro Navigation Cart"},
}

var consumableKeywords = []string{"cement", "prosthesis", "mesh", "suture", "implant", "drug", "medication", "kit"}

// DemandProfile is the keyword profile inferred from a procedure.
type DemandProfile struct {
	Domains             []string
	SpecialtyTokens     []string
	CapabilityTokens    []string
	FunctionalityTokens []string
}

// InferDemand matches the procedure text against the domain rules.
func InferDemand(in ScoreInput) DemandProfile {
	text := strings.Join(append([]string{in.ProcedureName, in.AnesthesiaPreference}, in.Items...), " ")
	tokens := make(map[string]struct{})
	for _, t := range textmatch.Tokens(text) {
		tokens[t] = struct{}{}
	}

	var profile DemandProfile
	for _, rule := range domainRules {
		hit := false
		for _, trigger := range rule.triggers {
			for _, t := range textmatch.Tokens(trigger) {
				if _, ok := tokens[t]; ok {
					hit = true
				}
			}
		}
		if !hit {
			continue
		}
		profile.Domains = append(profile.Domains, rule.domain)
		profile.SpecialtyTokens = append(profile.SpecialtyTokens, rule.specialties...)
		profile.CapabilityTokens = append(profile.CapabilityTokens, rule.capabilities...)
		profile.FunctionalityTokens = append(profile.FunctionalityTokens, rule.functionality...)
	}

	nameTokens := textmatch.Tokens(in.ProcedureName)
	if len(nameTokens) > 4 {
		nameTokens = nameTokens[:4]
	}
	profile.SpecialtyTokens = uniqueStrings(append(profile.SpecialtyTokens, nameTokens...))
	profile.CapabilityTokens = uniqueStrings(profile.CapabilityTokens)
	profile.FunctionalityTokens = uniqueStrings(append(profile.FunctionalityTokens, textmatch.Tokens(in.AnesthesiaPreference)...))
	return profile
}

func uniqueStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func isConsumable(item string) bool {
	lower := strings.ToLower(item)
	for _, k := range consumableKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func alternativeFor(item string) string {
	lower := strings.ToLower(item)
	for _, rule := range mobileAlternatives {
		for _, k := range rule.keys {
			if strings.Contains(lower, k) {
				return rule.alternative
			}
		}
	}
	return ""
}

func coverage(tokens []string, text string) float64 {
	if len(tokens) == 0 {
		return 1
	}
	hits := 0
	for _, t := range tokens {
		if textmatch.Match(text, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// ====================================================================
// Scoring
// ====================================================================

// ScoreInput describes what a case needs and when.
type ScoreInput struct {
	ProcedureName        string
	AnesthesiaPreference string
	RequiredEnvironment  string
	Items                []string
	Start                time.Time
	End                  time.Time
	ExcludeBookingID     uuid.UUID
}

// ScoreInputFromRequest builds the scorer input of a surgery request. A non-nil
// start overrides the preferred start.
func ScoreInputFromRequest(req *entity.SurgeryRequest, start *time.Time) ScoreInput {
	begin := req.PreferredStart
	if start != nil {
		begin = *start
	}
	duration := req.Procedure.DurationMinutes
	if duration <= 0 {
		duration = defaultRequestDurationMinutes
	}
	var exclude uuid.UUID
	if req.BookingID != nil {
		exclude = *req.BookingID
	}
	return ScoreInput{
		ProcedureName:        req.Procedure.Name,
		AnesthesiaPreference: string(req.Procedure.AnesthesiaPreference),
		RequiredEnvironment:  req.Procedure.RequiredEnvironment,
		Items:                uniqueStrings(req.Resources.Items()),
		Start:                begin,
		End:                  begin.Add(time.Duration(duration) * time.Minute),
		ExcludeBookingID:     exclude,
	}
}

// ScoreInputFromBooking builds the scorer input of an existing booking.
func ScoreInputFromBooking(b *entity.Booking) ScoreInput {
	items := append([]string(nil), b.Resources.Instruments...)
	for _, m := range b.Resources.Materials {
		items = append(items, m.Name)
	}
	return ScoreInput{
		ProcedureName:        strings.TrimSpace(b.Title + " " + b.ProcedureType),
		AnesthesiaPreference: string(b.Team.AnesthesiaType),
		RequiredEnvironment:  b.Resources.RequiredHVACClass,
		Items:                uniqueStrings(items),
		Start:                b.Schedule.PlannedStartTime,
		End:                  b.Schedule.PlannedEndTime,
		ExcludeBookingID:     b.ID,
	}
}

// MobileMove is an item covered from the shared pool. Direct is set when the pool
// stocks the item itself rather than a substitute.
type MobileMove struct {
	Missing     string `json:"missing"`
	Alternative string `json:"alternative"`
	Direct      bool   `json:"direct"`
}

// CrossRoomMove is an item only another room stocks.
type CrossRoomMove struct {
	Missing        string    `json:"missing"`
	SourceRoomID   uuid.UUID `json:"source_room_id"`
	SourceRoomCode string    `json:"source_room_code"`
}

type ScoreBreakdown struct {
	SpecialtyFit      int  `json:"specialty_fit"`
	CapabilityFit     int  `json:"capability_fit"`
	FunctionalityFit  int  `json:"functionality_fit"`
	CoverageFit       int  `json:"coverage_fit"`
	ReadinessFit      int  `json:"readiness_fit"`
	BookedPenalty     bool `json:"booked_penalty"`
	MissingRatio      int  `json:"missing_ratio"`
	UnresolvableRatio int  `json:"unresolvable_ratio"`
}

// RoomSuggestion is the compatibility verdict of one room.
type RoomSuggestion struct {
	RoomID         uuid.UUID       `json:"room_id"`
	RoomCode       string          `json:"room_code"`
	RoomName       string          `json:"room_name"`
	Booked         bool            `json:"booked"`
	Score          int             `json:"score"`
	MatchedItems   []string        `json:"matched_items"`
	MissingFixed   []string        `json:"missing_fixed"`
	MobileMoves    []MobileMove    `json:"mobile_moves"`
	CrossRoomMoves []CrossRoomMove `json:"cross_room_moves"`
	Unresolvable   []string        `json:"unresolvable"`
	Breakdown      ScoreBreakdown  `json:"breakdown"`
	Summary        string          `json:"summary"`
}

// AppliedAlternatives lists the substitutions the suggestion relies on.
func (s *RoomSuggestion) AppliedAlternatives() []entity.AppliedAlternative {
	out := make([]entity.AppliedAlternative, 0, len(s.MobileMoves)+len(s.CrossRoomMoves))
	for _, m := range s.MobileMoves {
		out = append(out, entity.AppliedAlternative{
			MissingItem: m.Missing, Alternative: m.Alternative, SourceType: entity.AlternativeSourceMobilePool,
		})
	}
	for _, m := range s.CrossRoomMoves {
		source := m.SourceRoomID
		out = append(out, entity.AppliedAlternative{
			MissingItem: m.Missing, Alternative: m.Missing, SourceType: entity.AlternativeSourceOtherRoom, SourceRoomID: &source,
		})
	}
	return out
}

type ScoreResult struct {
	RequiredItems []string         `json:"required_items"`
	Domains       []string         `json:"domains"`
	Suggestions   []RoomSuggestion `json:"suggestions"`
}

// Best returns the top-ranked suggestion, nil when no room is active.
func (r *ScoreResult) Best() *RoomSuggestion {
	if len(r.Suggestions) == 0 {
		return nil
	}
	return &r.Suggestions[0]
}

func (r *ScoreResult) Find(roomID uuid.UUID) *RoomSuggestion {
	for i := range r.Suggestions {
		if r.Suggestions[i].RoomID == roomID {
			return &r.Suggestions[i]
		}
	}
	return nil
}

type RoomScorer struct {
	deps Deps
}

func NewRoomScorer(deps Deps) *RoomScorer {
	return &RoomScorer{deps: deps}
}

type scoringSnapshot struct {
	rooms []entity.Room
	pool  entity.Inventory
	busy  map[uuid.UUID]bool
}

func (s *RoomScorer) load(ctx context.Context, busyWindow entity.OverlapQuery) (*scoringSnapshot, error) {
	db := s.deps.conn(ctx)
	snap := &scoringSnapshot{busy: make(map[uuid.UUID]bool)}

	var mobile []entity.MobileEquipment
	var overlapping []entity.Booking

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) (err error) {
		snap.rooms, err = s.deps.Rooms.FindActive(db)
		return wrapLoad("active rooms", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		mobile, err = s.deps.Mobile.FindActive(db)
		return wrapLoad("mobile pool", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		overlapping, err = s.deps.Bookings.FindOverlapping(db, busyWindow)
		return wrapLoad("room bookings", err)
	})
	if err := p.Wait(); err != nil {
		s.deps.Log.Warnf("Failed to load scoring data: %+v", err)
		return nil, err
	}

	snap.pool = entity.MobilePool(mobile)
	for _, b := range overlapping {
		snap.busy[b.RoomID] = true
	}
	return snap, nil
}

// ScoreRequest ranks every active room for the demand described by in.
//
// Flow:
// 1. Infer the demand profile from the procedure text
// 2. Load active rooms, the mobile pool and bookings overlapping [start, end+buffer)
// 3. Score each room and rank by score, unresolvable count, availability and code
func (s *RoomScorer) ScoreRequest(ctx context.Context, in ScoreInput) (*ScoreResult, error) {
	snap, err := s.load(ctx, entity.OverlapQuery{
		ExcludeID:   in.ExcludeBookingID,
		Start:       in.Start,
		End:         in.End.Add(entity.BufferMinutes * time.Minute),
		BufferAware: true,
	})
	if err != nil {
		return nil, err
	}
	return s.rank(in, snap), nil
}

func (s *RoomScorer) rank(in ScoreInput, snap *scoringSnapshot) *ScoreResult {
	demand := InferDemand(in)
	result := &ScoreResult{
		RequiredItems: uniqueStrings(in.Items),
		Domains:       demand.Domains,
		Suggestions:   make([]RoomSuggestion, 0, len(snap.rooms)),
	}

	for i := range snap.rooms {
		room := &snap.rooms[i]
		result.Suggestions = append(result.Suggestions, scoreRoom(room, snap.rooms, snap.pool, demand, result.RequiredItems, snap.busy[room.ID]))
	}

	sort.SliceStable(result.Suggestions, func(i, j int) bool {
		a, b := result.Suggestions[i], result.Suggestions[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if len(a.Unresolvable) != len(b.Unresolvable) {
			return len(a.Unresolvable) < len(b.Unresolvable)
		}
		if a.Booked != b.Booked {
			return !a.Booked
		}
		return a.RoomCode < b.RoomCode
	})
	return result
}

func scoreRoom(room *entity.Room, rooms []entity.Room, mobile entity.Inventory, demand DemandProfile, items []string, booked bool) RoomSuggestion {
	infraText := joinText(room.FixedInfrastructure, room.Capabilities, room.Specializations, []string{room.Functionality})
	specialtyText := joinText(room.Specializations)
	capabilityText := joinText(room.Capabilities)
	functionalityText := joinText([]string{room.Functionality, room.Name}, room.FixedInfrastructure)

	s := RoomSuggestion{
		RoomID:         room.ID,
		RoomCode:       room.Code,
		RoomName:       room.Name,
		Booked:         booked,
		MatchedItems:   []string{},
		MissingFixed:   []string{},
		MobileMoves:    []MobileMove{},
		CrossRoomMoves: []CrossRoomMove{},
		Unresolvable:   []string{},
	}

	covered := 0
	readiness := 0.0
	for _, item := range items {
		fixed := textmatch.Match(infraText, item)
		local := room.Inventory.QuantityOf(item)
		direct, hasDirect := mobile.Find(item)
		alternative := alternativeFor(item)
		altStock := 0
		if alternative != "" {
			altStock = mobile.QuantityOf(alternative)
		}
		stockPath := local > 0 || hasDirect || altStock > 0

		if isConsumable(item) && !stockPath {
			s.MissingFixed = append(s.MissingFixed, item)
			if move, ok := crossRoomSource(item, room.ID, rooms); ok {
				s.CrossRoomMoves = append(s.CrossRoomMoves, move)
			} else {
				s.Unresolvable = append(s.Unresolvable, item)
			}
			continue
		}

		if fixed || stockPath {
			s.MatchedItems = append(s.MatchedItems, item)
		} else {
			s.MissingFixed = append(s.MissingFixed, item)
		}

		switch {
		case local > 0:
			covered++
			readiness += 1
		case hasDirect:
			covered++
			readiness += 0.7
			s.MobileMoves = append(s.MobileMoves, MobileMove{Missing: item, Alternative: direct.Name, Direct: true})
		case altStock > 0:
			covered++
			readiness += 0.5
			s.MobileMoves = append(s.MobileMoves, MobileMove{Missing: item, Alternative: alternative})
		case !fixed:
			if move, ok := crossRoomSource(item, room.ID, rooms); ok {
				s.CrossRoomMoves = append(s.CrossRoomMoves, move)
			} else {
				s.Unresolvable = append(s.Unresolvable, item)
			}
		}
	}

	specialtyFit := coverage(demand.SpecialtyTokens, specialtyText+" | "+capabilityText+" | "+functionalityText)
	capabilityFit := coverage(demand.CapabilityTokens, capabilityText+" | "+functionalityText)
	functionalityFit := coverage(demand.FunctionalityTokens, functionalityText)

	coverageFit, readinessFit := 1.0, 1.0
	missingFactor, unresolvableFactor := 1.0, 1.0
	missingRatio, unresolvableRatio := 0.0, 0.0
	if n := float64(len(items)); n > 0 {
		coverageFit = float64(covered) / n
		readinessFit = readiness / n
		missingRatio = float64(len(s.MissingFixed)) / n
		unresolvableRatio = float64(len(s.Unresolvable)) / n
		missingFactor = math.Max(0.68, 1-missingRatio*0.22)
		unresolvableFactor = math.Max(0.48, 1-unresolvableRatio*0.4)
	}

	bookedFactor := 1.0
	if booked {
		bookedFactor = 0.9
	}

	weighted := specialtyFit*30 + capabilityFit*20 + functionalityFit*15 + coverageFit*20 + readinessFit*15
	s.Score = int(math.Max(0, math.Round(weighted*bookedFactor*missingFactor*unresolvableFactor)))
	s.Breakdown = ScoreBreakdown{
		SpecialtyFit:      percent(specialtyFit),
		CapabilityFit:     percent(capabilityFit),
		FunctionalityFit:  percent(functionalityFit),
		CoverageFit:       percent(coverageFit),
		ReadinessFit:      percent(readinessFit),
		BookedPenalty:     booked,
		MissingRatio:      percent(missingRatio),
		UnresolvableRatio: percent(unresolvableRatio),
	}
	if booked {
		s.Summary = fmt.Sprintf("Room busy; next-best score %d%%", s.Score)
	} else {
		s.Summary = fmt.Sprintf("Suggested %s (%d%% match)", room.Code, s.Score)
	}
	return s
}

func crossRoomSource(item string, self uuid.UUID, rooms []entity.Room) (CrossRoomMove, bool) {
	for i := range rooms {
		if rooms[i].ID == self {
			continue
		}
		if _, ok := rooms[i].Inventory.Find(item); ok {
			return CrossRoomMove{Missing: item, SourceRoomID: rooms[i].ID, SourceRoomCode: rooms[i].Code}, true
		}
	}
	return CrossRoomMove{}, false
}

func joinText(parts ...[]string) string {
	var all []string
	for _, p := range parts {
		for _, s := range p {
			if s = strings.TrimSpace(s); s != "" {
				all = append(all, s)
			}
		}
	}
	return strings.Join(all, " | ")
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}

// ====================================================================
// Gap evaluation
// ====================================================================

const (
	GapMessageImpossible  = "Impossible to schedule: one or more required items unavailable"
	GapMessageAcknowledge = "Selected room has resource gap/sub-optimal match. Admin acknowledgement required."
	GapMessageCompatible  = "Selected room fully compatible"
	GapMessageNoSelection = "No selected room data"
)

// GapEvaluation is the verdict on an admin-picked room.
type GapEvaluation struct {
	Selected            *RoomSuggestion `json:"selected"`
	Best                *RoomSuggestion `json:"best"`
	SubOptimal          bool            `json:"sub_optimal"`
	HasGap              bool            `json:"has_gap"`
	HasUnresolvable     bool            `json:"has_unresolvable"`
	RequiresAcknowledge bool            `json:"requires_acknowledge"`
	Message             string          `json:"message"`
}

// EvaluateSelection compares the chosen room with the best suggestion.
func (s *RoomScorer) EvaluateSelection(result *ScoreResult, roomID uuid.UUID) *GapEvaluation {
	selected := result.Find(roomID)
	if selected == nil {
		return &GapEvaluation{Message: GapMessageNoSelection}
	}

	best := result.Best()
	eval := &GapEvaluation{
		Selected:        selected,
		Best:            best,
		SubOptimal:      best != nil && best.RoomID != selected.RoomID,
		HasGap:          len(selected.MissingFixed) > 0 || selected.Booked,
		HasUnresolvable: len(selected.Unresolvable) > 0,
	}
	eval.RequiresAcknowledge = eval.SubOptimal || eval.HasGap

	switch {
	case eval.HasUnresolvable:
		eval.Message = GapMessageImpossible
	case eval.RequiresAcknowledge:
		eval.Message = GapMessageAcknowledge
	default:
		eval.Message = GapMessageCompatible
	}
	return eval
}

// ====================================================================
// Candidate rooms
// ====================================================================

// CandidateQuery asks for rooms that can host a window as-is.
type CandidateQuery struct {
	Start         time.Time
	BufferEnd     time.Time
	ExcludeRoomID uuid.UUID
	Demand        ScoreInput
}

// CandidateRooms returns active rooms free of bookings and maintenance in
// [Start, BufferEnd), meeting the environment and with every item resolvable,
// ranked by compatibility.
func (s *RoomScorer) CandidateRooms(ctx context.Context, q CandidateQuery) ([]RoomSuggestion, error) {
	snap, err := s.load(ctx, entity.OverlapQuery{
		ExcludeID:   q.Demand.ExcludeBookingID,
		Start:       q.Start,
		End:         q.BufferEnd,
		BufferAware: true,
	})
	if err != nil {
		return nil, err
	}

	usable := make(map[uuid.UUID]bool, len(snap.rooms))
	for i := range snap.rooms {
		room := &snap.rooms[i]
		if room.ID == q.ExcludeRoomID || snap.busy[room.ID] {
			continue
		}
		if _, blocked := room.MaintenanceAt(q.Start, q.BufferEnd); blocked {
			continue
		}
		if env := strings.TrimSpace(q.Demand.RequiredEnvironment); env != "" &&
			!textmatch.Match(env, room.HVACClass) && !textmatch.MatchAny(env, room.Tags()) {
			continue
		}
		usable[room.ID] = true
	}

	ranked := s.rank(q.Demand, snap)
	candidates := make([]RoomSuggestion, 0, len(usable))
	for _, suggestion := range ranked.Suggestions {
		if usable[suggestion.RoomID] && len(suggestion.Unresolvable) == 0 {
			candidates = append(candidates, suggestion)
		}
	}
	return candidates, nil
}
