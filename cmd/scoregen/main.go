// Command scoregen writes synthetic district damage and NGO score CSVs
// in the format the simulation ingests. Output is deterministic from
// the seed, so regenerating with the same seed reproduces the tables
// byte for byte.
package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/reliefiq/reliefsim/internal/ingest"
	"github.com/reliefiq/reliefsim/internal/model"
	"github.com/reliefiq/reliefsim/internal/synthdata"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	outDir := "data/input"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}
	cfg := synthdata.DefaultConfig()
	if v := os.Getenv("SCOREGEN_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = seed
		}
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		slog.Error("create output dir", "error", err)
		os.Exit(1)
	}

	sites := make([]synthdata.Site, 0, len(synthdata.DemoDistricts))
	for _, name := range synthdata.DemoDistricts {
		sites = append(sites, synthdata.Site{Name: ingest.NormalizeDistrict(name)})
	}

	damage := synthdata.GenerateDamage(cfg, sites)
	capabilities := synthdata.GenerateCapabilities(cfg, synthdata.DemoNGOs)
	scores := synthdata.GenerateScores(damage, capabilities, synthdata.DemoNGOs)

	damagePath := filepath.Join(outDir, "pdna_district_damage.csv")
	if err := writeDamage(damagePath, damage); err != nil {
		slog.Error("write damage CSV", "error", err)
		os.Exit(1)
	}

	scoresPath := filepath.Join(outDir, "ngo_region_scores.csv")
	if err := writeScores(scoresPath, scores); err != nil {
		slog.Error("write scores CSV", "error", err)
		os.Exit(1)
	}

	slog.Info("synthetic tables written",
		"seed", cfg.Seed,
		"districts", len(damage),
		"ngos", len(synthdata.DemoNGOs),
		"score_rows", humanize.Comma(int64(len(scores))),
		"damage_csv", damagePath,
		"scores_csv", scoresPath,
	)
}

func writeDamage(path string, rows []synthdata.DamageRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"district", "houses_destroyed_pct", "health_facilities_damaged_pct",
		"water_facilities_damaged_pct", "food_insecure_households_pct",
		"displaced_pop_pct", "road_accessibility_score", "public_infra_damaged_pct",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.District,
			f2(row.HousesDestroyedPct),
			f2(row.HealthFacilitiesPct),
			f2(row.WaterFacilitiesPct),
			f2(row.FoodInsecurePct),
			f2(row.DisplacedPopPct),
			f2(row.RoadAccessibilityScore),
			f2(row.PublicInfraPct),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeScores(path string, scores []model.ScoreEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"NGO", "district", "match", "urgency", "fitness_score"}); err != nil {
		return err
	}
	for _, s := range scores {
		record := []string{s.NGOID, s.DistrictID, f2(s.Match), f2(s.Urgency), f2(s.Fitness)}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

func f2(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
