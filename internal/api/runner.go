package api

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reliefiq/reliefsim/internal/model"
	"github.com/reliefiq/reliefsim/internal/persistence"
	"github.com/reliefiq/reliefsim/internal/scheduler"
	"github.com/reliefiq/reliefsim/internal/sim"
)

// ErrRunInProgress is returned by Start while another run is in flight.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner owns at most one in-flight simulation run and the progressive
// timeline it exposes to read handlers. A fresh sim.State is built per
// run; the input tables are shared read-only across runs.
type Runner struct {
	Districts   []model.District
	Scores      []model.ScoreEntry
	Coordinates map[string]model.LonLat
	DB          *persistence.DB // Optional; runs are persisted when set
	Yield       time.Duration

	mu        sync.Mutex
	running   bool
	runID     string
	timeline  model.Timeline
	cancelRun func()
}

// Status summarizes the runner for the status endpoint.
type Status struct {
	Running        bool   `json:"running"`
	RunID          string `json:"run_id,omitempty"`
	StepsCompleted int    `json:"steps_completed"`
}

// Status returns the current run state.
func (rn *Runner) Status() Status {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return Status{
		Running:        rn.running,
		RunID:          rn.runID,
		StepsCompleted: len(rn.timeline),
	}
}

// Timeline returns the snapshots produced so far by the current (or
// most recently finished) run. Snapshots are immutable, so sharing the
// backing pointers is safe.
func (rn *Runner) Timeline() model.Timeline {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	out := make(model.Timeline, len(rn.timeline))
	copy(out, rn.timeline)
	return out
}

// Start launches a new run with the given config. Exactly one run may
// be in flight at a time.
func (rn *Runner) Start(cfg sim.Config) (string, error) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.running {
		return "", ErrRunInProgress
	}

	cfg.Coordinates = rn.Coordinates
	state, err := sim.New(cfg, rn.Districts, rn.Scores)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	rn.running = true
	rn.runID = runID
	rn.timeline = nil

	rn.cancelRun = scheduler.Run(state, scheduler.Options{YieldEvery: rn.Yield},
		func(snap *model.Snapshot, stepIndex int) {
			rn.mu.Lock()
			rn.timeline = append(rn.timeline, snap)
			rn.mu.Unlock()
		},
		func(timeline model.Timeline) {
			rn.finish(runID, cfg, state, timeline)
		},
	)
	return runID, nil
}

// Cancel stops the in-flight run, if any. The timeline produced so far
// stays available.
func (rn *Runner) Cancel() bool {
	rn.mu.Lock()
	cancel := rn.cancelRun
	running := rn.running
	rn.mu.Unlock()

	if !running || cancel == nil {
		return false
	}
	cancel()
	return true
}

func (rn *Runner) finish(runID string, cfg sim.Config, state *sim.State, timeline model.Timeline) {
	rn.mu.Lock()
	cancelled := len(timeline) < cfg.HorizonMonths/cfg.StepMonths+1
	rn.running = false
	rn.cancelRun = nil
	rn.timeline = timeline
	rn.mu.Unlock()

	if rn.DB == nil {
		return
	}
	meta := persistence.RunMeta{
		ID:            runID,
		CreatedAt:     time.Now(),
		HorizonMonths: cfg.HorizonMonths,
		StepMonths:    cfg.StepMonths,
		Districts:     len(rn.Districts),
		NGOs:          state.ActiveNGOs(),
		Cancelled:     cancelled,
	}
	if err := rn.DB.SaveRun(meta, timeline); err != nil {
		// Persistence is best-effort; the in-memory timeline stays served.
		slog.Error("save run failed", "run_id", runID, "error", err)
	}
}
