package sim

import (
	"log/slog"

	"github.com/reliefiq/reliefsim/internal/model"
	"github.com/reliefiq/reliefsim/internal/policy"
	"github.com/reliefiq/reliefsim/internal/recovery"
)

// Advance runs one simulation step: recompute every district's recovery
// state, apply the reassignment policy up to the per-step cap, clear
// elapsed cooldowns, and append the resulting snapshot to the timeline.
func (s *State) Advance(month int) *model.Snapshot {
	states := s.advanceRecovery(month)

	recoveryByDistrict := make(map[string]float64, len(states))
	for _, ds := range states {
		recoveryByDistrict[ds.DistrictID] = ds.RecoveryScore
	}

	movements := s.applyReassignments(month, recoveryByDistrict)
	s.clearCooldowns(month)

	snap := &model.Snapshot{
		Month:           month,
		DistrictStates:  states,
		Movements:       movements,
		TotalActiveNGOs: s.ActiveNGOs(),
		TotalAssigns:    len(s.Assignments),
	}
	s.Timeline = append(s.Timeline, snap)
	return snap
}

// advanceRecovery recomputes every district's runtime state in canonical
// order. Incremental mode applies once a prior snapshot exists;
// otherwise the cold-start ramp runs.
func (s *State) advanceRecovery(month int) []model.DistrictState {
	// Assemble the currently-assigned score entries per district.
	byDistrict := make(map[string][]model.ScoreEntry, len(s.Districts))
	for _, a := range s.Assignments {
		byDistrict[a.DistrictID] = append(byDistrict[a.DistrictID], model.ScoreEntry{
			NGOID:      a.NGOID,
			DistrictID: a.DistrictID,
			Match:      a.Match,
			Urgency:    a.Urgency,
			Fitness:    a.Fitness,
		})
	}

	hasPrev := len(s.Timeline) > 0
	states := make([]model.DistrictState, 0, len(s.Districts))
	for _, d := range s.Districts {
		var prev *float64
		if hasPrev {
			p := s.prevScore[d.ID]
			prev = &p
		}
		ds, raw := recovery.Compute(s.Config.Recovery, d, byDistrict[d.ID], month, prev)
		s.prevScore[d.ID] = raw
		states = append(states, ds)
	}
	return states
}

// applyReassignments evaluates the policy per assignment, at most one
// move per NGO per step, bounded by the global movement cap. Capped-out
// assignments stay eligible and are re-evaluated next step.
func (s *State) applyReassignments(month int, recoveryByDistrict map[string]float64) []model.Movement {
	ngoCount := make(map[string]int, len(s.Districts))
	perDistrict := make(map[string]map[string]struct{}, len(s.Districts))
	for _, a := range s.Assignments {
		set, ok := perDistrict[a.DistrictID]
		if !ok {
			set = make(map[string]struct{})
			perDistrict[a.DistrictID] = set
		}
		set[a.NGOID] = struct{}{}
	}
	for id, set := range perDistrict {
		ngoCount[id] = len(set)
	}

	env := policy.Env{
		Month:      month,
		Districts:  s.Districts,
		Recovery:   recoveryByDistrict,
		NGOCount:   ngoCount,
		Scores:     s.Scores,
		AssignedTo: s.IsAssigned,
	}

	var movements []model.Movement
	moved := make(map[string]bool)

	// Snapshot the slice: moves mutate s.Assignments underneath us.
	pending := make([]*model.Assignment, len(s.Assignments))
	copy(pending, s.Assignments)

	for _, a := range pending {
		if len(movements) >= s.Config.Policy.MaxMovesPerStep {
			break
		}
		if moved[a.NGOID] {
			continue // One active move per NGO per step.
		}

		decision := policy.Evaluate(s.Config.Policy, a, env)
		if !decision.Move {
			continue
		}

		from := a.DistrictID
		next, err := s.move(a, decision.Target, month)
		if err != nil {
			// Candidates were filtered against the score index, so this
			// indicates a bug rather than bad input.
			slog.Error("reassignment failed", "ngo", a.NGOID, "target", decision.Target, "error", err)
			continue
		}
		moved[a.NGOID] = true
		ngoCount[from]--
		ngoCount[next.DistrictID]++

		movements = append(movements, model.Movement{
			NGOID:          next.NGOID,
			FromDistrictID: from,
			ToDistrictID:   next.DistrictID,
			Month:          month,
			Reason:         decision.Reason,
			FromCoord:      s.coordOf(from),
			ToCoord:        s.coordOf(next.DistrictID),
		})
	}
	return movements
}

// clearCooldowns releases assignments whose post-move grace period has
// elapsed.
func (s *State) clearCooldowns(month int) {
	for _, a := range s.Assignments {
		if a.CoolingDown && month-a.SinceMonth >= s.Config.Policy.CooldownMonths {
			a.CoolingDown = false
		}
	}
}
