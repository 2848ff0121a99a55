// Package policy decides, per assignment per step, whether an NGO
// should relocate and where. All selection is deterministic: candidate
// order follows the canonical district list and the spreading trigger
// uses an identifier hash instead of a PRNG, so identical inputs always
// produce identical movement sequences.
package policy

import (
	"hash/fnv"
	"math"
	"sort"
	"strconv"

	"github.com/reliefiq/reliefsim/internal/model"
)

// Config exposes the reassignment rules as named configuration. The
// spreading trigger is a policy knob, not core business logic: the
// simple variant leaves it disabled.
type Config struct {
	RecoveryThreshold float64 // Districts at or above this score release their NGOs

	// Candidate ranking weights (sum to 1.0) plus coverage bonuses for
	// under-served destinations.
	NeedWeight        float64
	UrgencyWeight     float64
	FitnessWeight     float64
	CoverageBonusZero float64 // Destination currently has no NGOs
	CoverageBonusOne  float64 // Destination currently has one NGO

	// RelaxWhenSaturated widens the candidate search to already-recovered
	// districts when every scored destination is above the threshold.
	// With it off, a saturated NGO simply stays put.
	RelaxWhenSaturated bool

	CooldownMonths  int // Post-move grace period before an NGO may move again
	MaxMovesPerStep int // Global per-step movement cap; excess is deferred, not dropped

	// Coverage-optimization ("spreading") trigger.
	EnableSpreading  bool
	SpreadWarmup     int     // First month the trigger may fire
	SpreadCrowdedMin int     // Minimum NGOs on a district to count as crowded
	SpreadChance     float64 // Pseudo-probability for crowded districts
	SpreadLateWarmup int     // Month after which the weaker late trigger applies
	SpreadLateChance float64
}

// Default returns the canonical (non-spreading) policy configuration.
func Default() Config {
	return Config{
		RecoveryThreshold:  70,
		NeedWeight:         0.4,
		UrgencyWeight:      0.3,
		FitnessWeight:      0.3,
		CoverageBonusZero:  20,
		CoverageBonusOne:   10,
		RelaxWhenSaturated: true,
		CooldownMonths:     3,
		MaxMovesPerStep:    15,
		EnableSpreading:    false,
		SpreadWarmup:       6,
		SpreadCrowdedMin:   3,
		SpreadChance:       0.15,
		SpreadLateWarmup:   24,
		SpreadLateChance:   0.05,
	}
}

// Env is the read-only view of the current step that Evaluate ranks
// against. The engine rebuilds it each step and keeps the counts
// current as moves apply within the step.
type Env struct {
	Month     int
	Districts []model.District   // Canonical order, drives tie-breaking
	Recovery  map[string]float64 // District ID → current recovery score
	NGOCount  map[string]int     // District ID → assigned NGO count
	Scores    *model.ScoreIndex

	// AssignedTo reports whether the NGO under evaluation already holds
	// the given district.
	AssignedTo func(ngoID, districtID string) bool
}

// Decision is the outcome of evaluating one assignment.
type Decision struct {
	Move   bool
	Target string
	Reason string
}

// Evaluate applies the trigger conditions in priority order and, if one
// fires, selects the highest-priority destination for the assignment.
func Evaluate(cfg Config, a *model.Assignment, env Env) Decision {
	reason, triggered := trigger(cfg, a, env)
	if !triggered {
		return Decision{}
	}

	target, ok := selectTarget(cfg, a, env)
	if !ok {
		return Decision{}
	}
	return Decision{Move: true, Target: target, Reason: reason}
}

// trigger returns the movement reason if any trigger condition fires.
// A cooling-down assignment never moves regardless of trigger.
func trigger(cfg Config, a *model.Assignment, env Env) (string, bool) {
	if a.CoolingDown {
		return "", false
	}

	if env.Recovery[a.DistrictID] >= cfg.RecoveryThreshold {
		return model.ReasonRecovered, true
	}

	if cfg.EnableSpreading && env.Month >= cfg.SpreadWarmup {
		crowded := env.NGOCount[a.DistrictID] >= cfg.SpreadCrowdedMin
		if crowded && hashChance(a.NGOID, env.Month, 0) < cfg.SpreadChance {
			return model.ReasonSpreading, true
		}
		if env.Month >= cfg.SpreadLateWarmup && hashChance(a.NGOID, env.Month, 1) < cfg.SpreadLateChance {
			return model.ReasonSpreading, true
		}
	}

	return "", false
}

// selectTarget ranks candidate destinations and returns the best one.
// Candidates require a score entry for the NGO, must not already be
// held by it, and must be below the recovery threshold, unless no such
// district exists and RelaxWhenSaturated permits widening the search.
func selectTarget(cfg Config, a *model.Assignment, env Env) (string, bool) {
	type candidate struct {
		districtID string
		priority   float64
	}

	gather := func(relaxed bool) []candidate {
		var out []candidate
		for _, d := range env.Districts { // Canonical order = stable tie-break
			if d.ID == a.DistrictID || env.AssignedTo(a.NGOID, d.ID) {
				continue
			}
			entry, ok := env.Scores.Lookup(a.NGOID, d.ID)
			if !ok {
				continue
			}
			score := env.Recovery[d.ID]
			if !relaxed && score >= cfg.RecoveryThreshold {
				continue
			}
			out = append(out, candidate{
				districtID: d.ID,
				priority:   priority(cfg, score, entry, env.NGOCount[d.ID]),
			})
		}
		return out
	}

	candidates := gather(false)
	if len(candidates) == 0 && cfg.RelaxWhenSaturated {
		candidates = gather(true)
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].priority > candidates[j].priority
	})
	return candidates[0].districtID, true
}

// priority scores a destination: unmet need dominates, then how urgent
// and well-matched the NGO is there, plus a bonus for thin coverage.
func priority(cfg Config, recoveryScore float64, entry model.ScoreEntry, ngoCount int) float64 {
	p := cfg.NeedWeight*(100-recoveryScore) +
		cfg.UrgencyWeight*sanitize(entry.Urgency) +
		cfg.FitnessWeight*sanitize(entry.Fitness)
	switch ngoCount {
	case 0:
		p += cfg.CoverageBonusZero
	case 1:
		p += cfg.CoverageBonusOne
	}
	return p
}

// hashChance maps (ngoID, month, salt) to a deterministic value in
// [0, 1). Repeated runs with identical input must produce byte-identical
// timelines, so no PRNG is permitted anywhere in the core.
func hashChance(ngoID string, month, salt int) float64 {
	h := fnv.New64a()
	h.Write([]byte(ngoID))
	h.Write([]byte(":"))
	h.Write([]byte(strconv.Itoa(month)))
	h.Write([]byte(":"))
	h.Write([]byte(strconv.Itoa(salt)))
	return float64(h.Sum64()>>11) / float64(uint64(1)<<53)
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
