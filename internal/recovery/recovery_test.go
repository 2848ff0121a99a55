package recovery

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefiq/reliefsim/internal/model"
)

var testDistrict = model.District{
	ID:               "sindhupalchok",
	DisplayName:      "Sindhupalchok",
	InitialDamagePct: 80,
}

func strongNGO() []model.ScoreEntry {
	return []model.ScoreEntry{{
		NGOID:      "relief-one",
		DistrictID: testDistrict.ID,
		Match:      90,
		Urgency:    90,
		Fitness:    90,
	}}
}

func TestColdStartMonthZeroIsLow(t *testing.T) {
	ds, raw := Compute(Default(), testDistrict, strongNGO(), 0, nil)
	assert.Less(t, ds.RecoveryScore, 10.0)
	assert.Equal(t, 0.0, raw)
	assert.Equal(t, 80.0, ds.DamagePctRemaining)
}

func TestSixtyMonthTrajectory(t *testing.T) {
	cfg := Default()
	assigned := strongNGO()

	ds, raw := Compute(cfg, testDistrict, assigned, 0, nil)
	require.Less(t, ds.RecoveryScore, 10.0)

	prevRounded := ds.RecoveryScore
	for month := 1; month <= 60; month++ {
		ds, raw = Compute(cfg, testDistrict, assigned, month, &raw)

		assert.Greater(t, ds.RecoveryScore, prevRounded, "month %d must strictly increase", month)
		assert.Less(t, ds.RecoveryScore, 100.0, "month %d must never reach 100", month)
		assert.GreaterOrEqual(t, ds.DamagePctRemaining, 0.0)
		assert.LessOrEqual(t, ds.DamagePctRemaining, testDistrict.InitialDamagePct)
		prevRounded = ds.RecoveryScore
	}

	assert.Greater(t, ds.RecoveryScore, 90.0, "recovery should exceed 90 by month 60")
}

func TestIncrementalMonotonicity(t *testing.T) {
	cfg := Default()
	assigned := strongNGO()

	for _, start := range []float64{0, 12.5, 50, 69.9, 99.9, 100} {
		prev := start
		ds, raw := Compute(cfg, testDistrict, assigned, 10, &prev)
		assert.GreaterOrEqual(t, ds.RecoveryScore, math.Floor(start*10)/10)
		assert.GreaterOrEqual(t, raw, start)
		assert.LessOrEqual(t, raw, 100.0)
	}
}

func TestNoNGOBaselineIsStrictlyLower(t *testing.T) {
	cfg := Default()

	run := func(assigned []model.ScoreEntry) float64 {
		_, raw := Compute(cfg, testDistrict, assigned, 0, nil)
		for month := 1; month <= 60; month++ {
			_, raw = Compute(cfg, testDistrict, assigned, month, &raw)
		}
		return raw
	}

	withNGO := run(strongNGO())
	without := run(nil)

	assert.Greater(t, without, 0.0, "baseline recovery still progresses")
	assert.Less(t, without, withNGO, "an assigned NGO must strictly improve recovery")
}

func TestBoundednessUnderExtremeInputs(t *testing.T) {
	cfg := Default()

	// A district drowning in aid: 50 perfect NGOs.
	crowded := make([]model.ScoreEntry, 50)
	for i := range crowded {
		crowded[i] = model.ScoreEntry{NGOID: "ngo", DistrictID: testDistrict.ID, Match: 100, Fitness: 100}
	}

	prev := 0.0
	for month := 1; month <= 24; month++ {
		ds, raw := Compute(cfg, testDistrict, crowded, month, &prev)
		assert.GreaterOrEqual(t, ds.RecoveryScore, 0.0)
		assert.LessOrEqual(t, ds.RecoveryScore, 100.0)
		assert.GreaterOrEqual(t, ds.DamagePctRemaining, 0.0)
		prev = raw
	}
}

func TestMalformedScoresCoerceToZero(t *testing.T) {
	cfg := Default()
	garbage := []model.ScoreEntry{{
		NGOID:      "broken",
		DistrictID: testDistrict.ID,
		Match:      math.NaN(),
		Urgency:    math.Inf(1),
		Fitness:    math.NaN(),
	}}

	rate, avgMatch := Rate(cfg, garbage)
	assert.Equal(t, cfg.BaseRate, rate, "NaN scores contribute nothing")
	assert.Equal(t, 0.0, avgMatch)

	ds, _ := Compute(cfg, testDistrict, garbage, 5, nil)
	assert.False(t, math.IsNaN(ds.RecoveryScore))
	assert.False(t, math.IsNaN(ds.DamagePctRemaining))
}

func TestAvgMatchAndAssignedIDs(t *testing.T) {
	assigned := []model.ScoreEntry{
		{NGOID: "a", DistrictID: testDistrict.ID, Match: 80, Fitness: 70},
		{NGOID: "b", DistrictID: testDistrict.ID, Match: 40, Fitness: 90},
	}
	ds, _ := Compute(Default(), testDistrict, assigned, 3, nil)
	assert.Equal(t, 60.0, ds.AvgMatch)
	assert.Equal(t, []string{"a", "b"}, ds.AssignedNGOIDs)
}
