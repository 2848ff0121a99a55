// Package sim holds the mutable simulation aggregate and the step
// engine that advances it one month at a time.
package sim

import (
	"fmt"
	"log/slog"

	"github.com/reliefiq/reliefsim/internal/model"
	"github.com/reliefiq/reliefsim/internal/policy"
	"github.com/reliefiq/reliefsim/internal/recovery"
)

// PlacementMode selects how initial assignments are derived from the
// score table.
type PlacementMode uint8

const (
	// PlacementPerScoreRow deploys one assignment per score row: every
	// viable (NGO, district) pair starts active. With a full
	// cross-product score table this leaves no unheld destinations, so
	// reassignment never fires.
	PlacementPerScoreRow PlacementMode = iota

	// PlacementBestFit deploys each NGO once, to its highest-fitness
	// district, leaving the remaining scored districts as reassignment
	// destinations. This is what a cross-product score table wants.
	PlacementBestFit
)

// Config carries the run parameters. Recovery and policy constants are
// embedded so a caller can tune either variant without touching code.
type Config struct {
	HorizonMonths int
	StepMonths    int
	Placement     PlacementMode

	Recovery recovery.Config
	Policy   policy.Config

	// Coordinates annotate Movement records for downstream map
	// animation. Never read by the model or the policy.
	Coordinates map[string]model.LonLat
}

// DefaultConfig returns a 60-month monthly run with canonical constants.
func DefaultConfig() Config {
	return Config{
		HorizonMonths: 60,
		StepMonths:    1,
		Recovery:      recovery.Default(),
		Policy:        policy.Default(),
	}
}

// State is the mutable simulation aggregate: current assignments, the
// lookup indexes, and the timeline built up so far. One State instance
// is owned exclusively by one run; create a fresh State per run.
type State struct {
	Config    Config
	Districts []model.District // Canonical order, immutable after New
	Scores    *model.ScoreIndex

	Assignments []*model.Assignment
	Timeline    model.Timeline

	// districtIndex resolves district IDs; assigned tracks which
	// (NGO, district) pairs currently hold an assignment.
	districtIndex map[string]model.District
	assigned      map[model.ScoreKey]bool

	// prevScore carries the full-precision recovery score per district
	// into the next step's incremental formula.
	prevScore map[string]float64
}

// New validates the input tables and builds the initial state: one
// assignment per usable score row. Fails fast on empty inputs so the
// scheduler is never invoked on invalid state.
func New(cfg Config, districts []model.District, scores []model.ScoreEntry) (*State, error) {
	if len(districts) == 0 {
		return nil, fmt.Errorf("sim: no districts loaded")
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("sim: no NGO score entries loaded")
	}
	if cfg.HorizonMonths <= 0 {
		return nil, fmt.Errorf("sim: horizon must be positive, got %d", cfg.HorizonMonths)
	}
	if cfg.StepMonths <= 0 {
		return nil, fmt.Errorf("sim: step size must be positive, got %d", cfg.StepMonths)
	}
	// The cold-start ramp normalizes against the run horizon.
	cfg.Recovery.HorizonMonths = cfg.HorizonMonths

	districtIndex := make(map[string]model.District, len(districts))
	for _, d := range districts {
		districtIndex[d.ID] = d
	}

	// Score rows naming unknown districts come from user CSVs; drop them
	// rather than fail the run.
	usable := make([]model.ScoreEntry, 0, len(scores))
	dropped := 0
	for _, s := range scores {
		if _, ok := districtIndex[s.DistrictID]; !ok {
			dropped++
			continue
		}
		usable = append(usable, s)
	}
	if dropped > 0 {
		slog.Warn("score rows reference unknown districts", "dropped", dropped)
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("sim: no score entry matches a loaded district")
	}

	idx := model.NewScoreIndex(usable)

	st := &State{
		Config:        cfg,
		Districts:     districts,
		Scores:        idx,
		districtIndex: districtIndex,
		assigned:      make(map[model.ScoreKey]bool, len(usable)),
		prevScore:     make(map[string]float64, len(districts)),
	}
	for _, s := range initialPlacement(cfg.Placement, usable) {
		key := model.ScoreKey{NGOID: s.NGOID, DistrictID: s.DistrictID}
		if st.assigned[key] {
			continue // Index already collapsed duplicates; keep assignments in sync.
		}
		st.assigned[key] = true
		st.Assignments = append(st.Assignments, model.NewAssignment(s, 0, false))
	}
	return st, nil
}

// initialPlacement selects which score rows become starting assignments.
func initialPlacement(mode PlacementMode, scores []model.ScoreEntry) []model.ScoreEntry {
	if mode == PlacementPerScoreRow {
		return scores
	}

	// Best fit: first row per NGO wins ties, so placement is stable in
	// input order.
	best := make(map[string]model.ScoreEntry)
	var ngoOrder []string
	for _, s := range scores {
		cur, seen := best[s.NGOID]
		if !seen {
			best[s.NGOID] = s
			ngoOrder = append(ngoOrder, s.NGOID)
			continue
		}
		if s.Fitness > cur.Fitness {
			best[s.NGOID] = s
		}
	}

	out := make([]model.ScoreEntry, 0, len(ngoOrder))
	for _, ngo := range ngoOrder {
		out = append(out, best[ngo])
	}
	return out
}

// IsAssigned reports whether the NGO currently holds the district.
func (s *State) IsAssigned(ngoID, districtID string) bool {
	return s.assigned[model.ScoreKey{NGOID: ngoID, DistrictID: districtID}]
}

// ActiveNGOs returns the number of distinct NGOs holding assignments.
func (s *State) ActiveNGOs() int {
	seen := make(map[string]struct{}, len(s.Assignments))
	for _, a := range s.Assignments {
		seen[a.NGOID] = struct{}{}
	}
	return len(seen)
}

// move replaces an assignment with a fresh one at the target district.
// The old assignment is removed and the new one appended, never aliased.
func (s *State) move(a *model.Assignment, target string, month int) (*model.Assignment, error) {
	entry, ok := s.Scores.Lookup(a.NGOID, target)
	if !ok {
		return nil, fmt.Errorf("sim: no score entry for %s in %s", a.NGOID, target)
	}

	for i, cur := range s.Assignments {
		if cur == a {
			s.Assignments = append(s.Assignments[:i], s.Assignments[i+1:]...)
			break
		}
	}
	delete(s.assigned, model.ScoreKey{NGOID: a.NGOID, DistrictID: a.DistrictID})

	next := model.NewAssignment(entry, month, true)
	s.Assignments = append(s.Assignments, next)
	s.assigned[model.ScoreKey{NGOID: next.NGOID, DistrictID: next.DistrictID}] = true
	return next, nil
}

// coordOf returns the annotation coordinate for a district, if known.
func (s *State) coordOf(districtID string) *model.LonLat {
	if s.Config.Coordinates == nil {
		return nil
	}
	c, ok := s.Config.Coordinates[districtID]
	if !ok {
		return nil
	}
	out := c
	return &out
}
