// Command reliefsim runs the district recovery/reallocation simulation
// and serves its timeline to the dashboard over HTTP.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/reliefiq/reliefsim/internal/api"
	"github.com/reliefiq/reliefsim/internal/ingest"
	"github.com/reliefiq/reliefsim/internal/model"
	"github.com/reliefiq/reliefsim/internal/persistence"
	"github.com/reliefiq/reliefsim/internal/sim"
	"github.com/reliefiq/reliefsim/internal/synthdata"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("ReliefIQ recovery simulation")

	dataDir := envOr("RELIEF_DATA_DIR", "data")
	port := envInt("RELIEF_PORT", 8080)
	horizon := envInt("RELIEF_HORIZON_MONTHS", 60)
	stepMonths := envInt("RELIEF_STEP_MONTHS", 1)
	adminKey := os.Getenv("RELIEF_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("RELIEF_ADMIN_KEY not set, run control endpoints disabled")
	}

	districts, scores, coords := loadInputs(dataDir)
	slog.Info("input tables ready",
		"districts", humanize.Comma(int64(len(districts))),
		"score_entries", humanize.Comma(int64(len(scores))),
		"coordinates", len(coords),
	)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		slog.Error("failed to create data directory", "path", dataDir, "error", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(dataDir, "reliefsim.db")
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	// ── Simulation + API ──────────────────────────────────────────────
	cfg := sim.DefaultConfig()
	cfg.HorizonMonths = horizon
	cfg.StepMonths = stepMonths
	// Score tables are full cross-products; deploy each NGO to its best
	// district and keep the rest as reassignment destinations.
	cfg.Placement = sim.PlacementBestFit
	cfg.Policy.EnableSpreading = os.Getenv("RELIEF_SPREADING") == "1"

	runner := &api.Runner{
		Districts:   districts,
		Scores:      scores,
		Coordinates: coords,
		DB:          db,
		Yield:       time.Millisecond,
	}

	server := &api.Server{
		Runner:     runner,
		Port:       port,
		AdminKey:   adminKey,
		BaseConfig: cfg,
	}
	server.Start()

	// Kick off an initial run so the dashboard has a timeline on boot.
	started := time.Now()
	runID, err := runner.Start(cfg)
	if err != nil {
		slog.Error("initial run failed to start", "error", err)
		os.Exit(1)
	}
	slog.Info("initial run started",
		"run_id", runID,
		"horizon_months", horizon,
		"step_months", stepMonths,
	)

	// ── Shutdown ──────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down",
		"signal", sig,
		"uptime", humanize.Time(started),
	)
	runner.Cancel()
	// Give the scheduler a moment to persist the truncated run.
	time.Sleep(200 * time.Millisecond)
}

// loadInputs reads the damage/score CSVs, falling back to deterministic
// synthetic tables when the data directory is incomplete so the server
// always has something to simulate.
func loadInputs(dataDir string) ([]model.District, []model.ScoreEntry, map[string]model.LonLat) {
	damagePath := filepath.Join(dataDir, "input", "pdna_district_damage.csv")
	scoresPath := filepath.Join(dataDir, "input", "ngo_region_scores.csv")
	geoPath := filepath.Join(dataDir, "nepal-districts.geojson")

	coords, err := ingest.LoadCoordinates(geoPath)
	if err != nil {
		slog.Warn("no district coordinates, movements will not be annotated", "error", err)
		coords = nil
	}

	districts, derr := ingest.LoadDistricts(damagePath)
	scores, serr := ingest.LoadScores(scoresPath)
	if derr != nil || serr != nil || len(districts) == 0 || len(scores) == 0 {
		slog.Warn("input CSVs unavailable, generating synthetic demo tables",
			"damage_error", derr, "scores_error", serr)
		return demoTables(coords)
	}
	return districts, scores, coords
}

// demoTables builds a small deterministic input set from the synthetic
// data generator.
func demoTables(coords map[string]model.LonLat) ([]model.District, []model.ScoreEntry, map[string]model.LonLat) {
	cfg := synthdata.DefaultConfig()

	sites := make([]synthdata.Site, 0, len(synthdata.DemoDistricts))
	for _, name := range synthdata.DemoDistricts {
		site := synthdata.Site{Name: ingest.NormalizeDistrict(name)}
		if c, ok := coords[site.Name]; ok {
			site.Lon, site.Lat = c.Lon, c.Lat
		}
		sites = append(sites, site)
	}

	damage := synthdata.GenerateDamage(cfg, sites)
	capabilities := synthdata.GenerateCapabilities(cfg, synthdata.DemoNGOs)
	scores := synthdata.GenerateScores(damage, capabilities, synthdata.DemoNGOs)
	return synthdata.Districts(damage), scores, coords
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
