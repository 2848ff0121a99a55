// Package synthdata generates plausible district damage and NGO score
// tables for demo and test runs, using layered simplex noise so nearby
// districts suffer correlated damage. Generation is fully deterministic
// from the seed: the same seed always yields byte-identical tables.
package synthdata

import (
	"fmt"
	"hash/fnv"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/reliefiq/reliefsim/internal/model"
)

// Capability categories mirrored from the NGO capability taxonomy of
// the upstream data pipeline.
var Categories = []string{
	"Emergency Health Response",
	"Water & Sanitation Recovery",
	"Emergency Food Distribution",
	"Emergency Shelter & Housing",
	"Critical Infrastructure Restoration",
}

// Site is one district to generate data for. Lon/Lat place it in the
// noise field; zero coordinates fall back to an index-derived position.
type Site struct {
	Name string
	Lon  float64
	Lat  float64
}

// DamageRow is a synthetic post-disaster needs-assessment row.
type DamageRow struct {
	District               string
	HousesDestroyedPct     float64
	HealthFacilitiesPct    float64
	WaterFacilitiesPct     float64
	FoodInsecurePct        float64
	DisplacedPopPct        float64
	RoadAccessibilityScore float64
	PublicInfraPct         float64
}

// Config holds generation parameters.
type Config struct {
	Seed      int64
	Frequency float64 // Noise sampling frequency over lon/lat space
}

// DefaultConfig returns the standard demo tuning.
func DefaultConfig() Config {
	return Config{Seed: 42, Frequency: 0.8}
}

// GenerateDamage produces one damage row per site. Independent noise
// layers per damage dimension, offset by layer index the way the world
// generator separates elevation, rainfall, and temperature.
func GenerateDamage(cfg Config, sites []Site) []DamageRow {
	layers := make([]opensimplex.Noise, 7)
	for i := range layers {
		layers[i] = opensimplex.NewNormalized(cfg.Seed + int64(i))
	}

	out := make([]DamageRow, 0, len(sites))
	for i, site := range sites {
		x, y := samplePoint(cfg, site, i)
		sample := func(layer int, lo, hi float64) float64 {
			v := layers[layer].Eval2(x, y)
			return round2(lo + v*(hi-lo))
		}

		out = append(out, DamageRow{
			District:               site.Name,
			HousesDestroyedPct:     sample(0, 5, 95),
			HealthFacilitiesPct:    sample(1, 0, 90),
			WaterFacilitiesPct:     sample(2, 0, 90),
			FoodInsecurePct:        sample(3, 10, 85),
			DisplacedPopPct:        sample(4, 0, 70),
			RoadAccessibilityScore: sample(5, 20, 95),
			PublicInfraPct:         sample(6, 0, 85),
		})
	}
	return out
}

// GenerateCapabilities assigns each NGO a capacity score per category.
// Roughly half the (NGO, category) pairs end up with zero capacity so
// the match computation has real structure to discriminate on.
func GenerateCapabilities(cfg Config, ngoNames []string) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(ngoNames))
	for _, ngo := range ngoNames {
		caps := make(map[string]float64, len(Categories))
		for _, cat := range Categories {
			h := hash01(fmt.Sprintf("%d:%s:%s", cfg.Seed, ngo, cat))
			if h < 0.45 {
				caps[cat] = 0
			} else {
				caps[cat] = round2(1 + h*9)
			}
		}
		out[ngo] = caps
	}
	return out
}

// GenerateScores derives the (NGO, district) score table from damage
// and capabilities, reproducing the upstream matcher: urgency is a
// weighted damage blend, match is capability-vs-need overlap, and
// fitness blends the two 60/40.
func GenerateScores(damage []DamageRow, capabilities map[string]map[string]float64, ngoNames []string) []model.ScoreEntry {
	var out []model.ScoreEntry
	for _, ngo := range ngoNames {
		caps := capabilities[ngo]
		for _, row := range damage {
			urgency := urgencyOf(row)
			match := matchOf(row, caps)
			fitness := match*0.6 + urgency*0.4

			out = append(out, model.ScoreEntry{
				NGOID:      ngo,
				DistrictID: row.District,
				Match:      round2(match * 100),
				Urgency:    round2(urgency * 100),
				Fitness:    round2(fitness * 100),
			})
		}
	}
	return out
}

// urgencyOf blends the damage dimensions into a 0–1 urgency figure.
func urgencyOf(row DamageRow) float64 {
	return (row.HousesDestroyedPct*0.2 +
		row.HealthFacilitiesPct*0.15 +
		row.WaterFacilitiesPct*0.15 +
		row.FoodInsecurePct*0.2 +
		row.DisplacedPopPct*0.15 +
		(100-row.RoadAccessibilityScore)*0.15) / 100
}

// matchOf measures how well an NGO's capabilities line up with the
// district's high-damage dimensions (those above 50%). A district with
// no acute needs yields the neutral 0.5.
func matchOf(row DamageRow, caps map[string]float64) float64 {
	type need struct {
		damaged  float64
		category string
	}
	needs := []need{
		{row.HealthFacilitiesPct, "Emergency Health Response"},
		{row.WaterFacilitiesPct, "Water & Sanitation Recovery"},
		{row.FoodInsecurePct, "Emergency Food Distribution"},
		{row.HousesDestroyedPct, "Emergency Shelter & Housing"},
		{row.PublicInfraPct, "Critical Infrastructure Restoration"},
	}

	score, weight := 0.0, 0.0
	for _, n := range needs {
		if n.damaged <= 50 {
			continue
		}
		weight += 0.2
		if caps[n.category] > 0 {
			score += 0.2
		}
	}
	if weight == 0 {
		return 0.5
	}
	return score / weight
}

// Districts converts damage rows into the simulation's district table.
func Districts(damage []DamageRow) []model.District {
	out := make([]model.District, 0, len(damage))
	for _, row := range damage {
		out = append(out, model.District{
			ID:               row.District,
			DisplayName:      row.District,
			InitialDamagePct: row.HousesDestroyedPct,
		})
	}
	return out
}

func samplePoint(cfg Config, site Site, index int) (x, y float64) {
	if site.Lon != 0 || site.Lat != 0 {
		return site.Lon * cfg.Frequency, site.Lat * cfg.Frequency
	}
	// No coordinates: spread sites along a ring so noise still varies.
	angle := float64(index) * 2 * math.Pi / 16
	radius := 3 + float64(index)*0.37
	return math.Cos(angle) * radius * cfg.Frequency, math.Sin(angle) * radius * cfg.Frequency
}

func hash01(s string) float64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return float64(h.Sum64()>>11) / float64(uint64(1)<<53)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
