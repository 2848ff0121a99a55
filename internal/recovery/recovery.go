// Package recovery computes a district's recovery trajectory from the
// NGOs currently assigned to it. Pure: no I/O, no mutation of inputs.
package recovery

import (
	"math"

	"github.com/reliefiq/reliefsim/internal/model"
)

// Config exposes every weighting constant of the recovery model. The
// two source variants of the formula disagreed on magic numbers, so
// nothing is hard-coded; Default() is the canonical incremental tuning.
type Config struct {
	BaseRate     float64 // Monthly recovery rate with zero NGOs present (> 0)
	EffectWeight float64 // Effectiveness contributed per assignment (k1)
	MatchBonus   float64 // Rate amplification from average match quality (k2)
	GainFactor   float64 // Incremental-mode gain scale (k3)
	RampScale    float64 // Cold-start exponential ramp scale (k4)

	// Cold-start logistic ramp shape.
	SigmoidSlope    float64
	SigmoidMidpoint float64

	// HorizonMonths normalizes the cold-start time factor.
	HorizonMonths int
}

// Default returns the canonical model constants.
func Default() Config {
	return Config{
		BaseRate:        0.01,
		EffectWeight:    0.08,
		MatchBonus:      0.5,
		GainFactor:      0.5,
		RampScale:       1.0,
		SigmoidSlope:    0.25,
		SigmoidMidpoint: 6,
		HorizonMonths:   60,
	}
}

// Compute returns the runtime state of one district at the given month
// plus the unrounded recovery score. prev is the full-precision score
// from the previous step; nil selects cold-start mode (month 0 or no
// prior snapshot). The snapshot value is rounded to one decimal for
// display stability, but the unrounded score must be the one carried
// forward, otherwise rounding error compounds across the horizon.
// assigned may be empty; recovery still progresses at BaseRate.
func Compute(cfg Config, d model.District, assigned []model.ScoreEntry, monthsElapsed int, prev *float64) (model.DistrictState, float64) {
	rate, avgMatch := Rate(cfg, assigned)

	var score float64
	if prev != nil {
		p := clamp(sanitize(*prev), 0, 100)
		gain := rate * (1 - p/100) * cfg.GainFactor
		score = math.Min(100, p+gain*100)
	} else {
		score = coldStart(cfg, rate, monthsElapsed)
	}

	damage := sanitize(d.InitialDamagePct) * (1 - score/100*0.9)
	if damage < 0 {
		damage = 0
	}

	ngoIDs := make([]string, 0, len(assigned))
	for _, s := range assigned {
		ngoIDs = append(ngoIDs, s.NGOID)
	}

	return model.DistrictState{
		DistrictID:         d.ID,
		RecoveryScore:      round1(score),
		DamagePctRemaining: round1(damage),
		AssignedNGOIDs:     ngoIDs,
		AvgMatch:           round1(avgMatch),
	}, score
}

// Rate returns the monthly recovery rate and average match for a set of
// assigned score entries. Malformed numeric fields count as 0.
func Rate(cfg Config, assigned []model.ScoreEntry) (rate, avgMatch float64) {
	effectiveness := 0.0
	matchSum := 0.0
	for _, s := range assigned {
		m := clamp(sanitize(s.Match), 0, 100)
		f := clamp(sanitize(s.Fitness), 0, 100)
		effectiveness += (m / 100) * (f / 100) * cfg.EffectWeight
		matchSum += m
	}
	if len(assigned) > 0 {
		avgMatch = matchSum / float64(len(assigned))
	}
	rate = cfg.BaseRate + effectiveness*(1+avgMatch/100*cfg.MatchBonus)
	return rate, avgMatch
}

// coldStart ramps recovery up from zero with a logistic onset: relief
// operations take time to spin up, so early months contribute little.
func coldStart(cfg Config, rate float64, monthsElapsed int) float64 {
	t := float64(monthsElapsed)
	horizon := float64(cfg.HorizonMonths)
	if horizon <= 0 {
		horizon = 1
	}
	timeFactor := math.Min(t/horizon, 1)
	rampFactor := sigmoid(cfg.SigmoidSlope * (t - cfg.SigmoidMidpoint))
	recoveryFactor := timeFactor * rampFactor * (1 - math.Exp(-rate*t*cfg.RampScale))
	return math.Min(100, recoveryFactor*100)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// sanitize coerces NaN/Inf to 0. Upstream data is user-supplied CSV and
// partial rows are expected, never an error.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// round1 rounds to one decimal place for display stability.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
