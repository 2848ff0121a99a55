// Package persistence provides SQLite-backed storage for completed
// simulation runs, so the dashboard can reload a timeline without
// re-simulating.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/reliefiq/reliefsim/internal/model"
)

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		horizon_months INTEGER NOT NULL,
		step_months INTEGER NOT NULL,
		districts INTEGER NOT NULL,
		ngos INTEGER NOT NULL,
		snapshots INTEGER NOT NULL,
		cancelled INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		total_active_ngos INTEGER NOT NULL,
		total_assignments INTEGER NOT NULL,
		district_states_json TEXT NOT NULL,
		PRIMARY KEY (run_id, month)
	);

	CREATE TABLE IF NOT EXISTS movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		ngo_id TEXT NOT NULL,
		from_district TEXT NOT NULL,
		to_district TEXT NOT NULL,
		reason TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id);
	CREATE INDEX IF NOT EXISTS idx_movements_run_month ON movements(run_id, month);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunMeta describes one stored simulation run.
type RunMeta struct {
	ID            string    `db:"id" json:"id"`
	CreatedAt     time.Time `db:"-" json:"created_at"`
	CreatedAtRaw  string    `db:"created_at" json:"-"`
	HorizonMonths int       `db:"horizon_months" json:"horizon_months"`
	StepMonths    int       `db:"step_months" json:"step_months"`
	Districts     int       `db:"districts" json:"districts"`
	NGOs          int       `db:"ngos" json:"ngos"`
	Snapshots     int       `db:"snapshots" json:"snapshots"`
	Cancelled     bool      `db:"-" json:"cancelled"`
	CancelledRaw  int       `db:"cancelled" json:"-"`
}

// SaveRun stores a completed (or cancelled) run with its full timeline.
func (db *DB) SaveRun(meta RunMeta, timeline model.Timeline) error {
	slog.Info("saving run", "run_id", meta.ID, "snapshots", len(timeline))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs
		(id, created_at, horizon_months, step_months, districts, ngos, snapshots, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.CreatedAt.UTC().Format(time.RFC3339),
		meta.HorizonMonths, meta.StepMonths, meta.Districts, meta.NGOs,
		len(timeline), boolToInt(meta.Cancelled),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	snapStmt, err := tx.Preparex(`INSERT INTO snapshots
		(run_id, month, total_active_ngos, total_assignments, district_states_json)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer snapStmt.Close()

	for _, snap := range timeline {
		statesJSON, err := json.Marshal(snap.DistrictStates)
		if err != nil {
			return fmt.Errorf("marshal snapshot month %d: %w", snap.Month, err)
		}
		if _, err := snapStmt.Exec(meta.ID, snap.Month, snap.TotalActiveNGOs, snap.TotalAssigns, string(statesJSON)); err != nil {
			return fmt.Errorf("insert snapshot month %d: %w", snap.Month, err)
		}

		for _, m := range snap.Movements {
			_, err := tx.Exec(`INSERT INTO movements
				(run_id, month, ngo_id, from_district, to_district, reason)
				VALUES (?, ?, ?, ?, ?, ?)`,
				meta.ID, m.Month, m.NGOID, m.FromDistrictID, m.ToDistrictID, m.Reason,
			)
			if err != nil {
				return fmt.Errorf("insert movement: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run saved", "run_id", meta.ID)
	return nil
}

// LoadTimeline reconstructs a run's timeline from storage.
func (db *DB) LoadTimeline(runID string) (model.Timeline, error) {
	type snapRow struct {
		Month       int    `db:"month"`
		ActiveNGOs  int    `db:"total_active_ngos"`
		Assignments int    `db:"total_assignments"`
		StatesJSON  string `db:"district_states_json"`
	}
	var rows []snapRow
	err := db.conn.Select(&rows,
		`SELECT month, total_active_ngos, total_assignments, district_states_json
		 FROM snapshots WHERE run_id = ? ORDER BY month`, runID)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("run %s has no snapshots", runID)
	}

	type moveRow struct {
		Month  int    `db:"month"`
		NGOID  string `db:"ngo_id"`
		From   string `db:"from_district"`
		To     string `db:"to_district"`
		Reason string `db:"reason"`
	}
	var moves []moveRow
	err = db.conn.Select(&moves,
		`SELECT month, ngo_id, from_district, to_district, reason
		 FROM movements WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("load movements: %w", err)
	}

	movesByMonth := make(map[int][]model.Movement)
	for _, m := range moves {
		movesByMonth[m.Month] = append(movesByMonth[m.Month], model.Movement{
			NGOID:          m.NGOID,
			FromDistrictID: m.From,
			ToDistrictID:   m.To,
			Month:          m.Month,
			Reason:         m.Reason,
		})
	}

	timeline := make(model.Timeline, 0, len(rows))
	for _, row := range rows {
		var states []model.DistrictState
		if err := json.Unmarshal([]byte(row.StatesJSON), &states); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot month %d: %w", row.Month, err)
		}
		timeline = append(timeline, &model.Snapshot{
			Month:           row.Month,
			DistrictStates:  states,
			Movements:       movesByMonth[row.Month],
			TotalActiveNGOs: row.ActiveNGOs,
			TotalAssigns:    row.Assignments,
		})
	}
	return timeline, nil
}

// RecentRuns returns metadata for the most recent N runs.
func (db *DB) RecentRuns(limit int) ([]RunMeta, error) {
	var metas []RunMeta
	err := db.conn.Select(&metas,
		`SELECT id, created_at, horizon_months, step_months, districts, ngos, snapshots, cancelled
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	for i := range metas {
		if t, err := time.Parse(time.RFC3339, metas[i].CreatedAtRaw); err == nil {
			metas[i].CreatedAt = t
		}
		metas[i].Cancelled = metas[i].CancelledRaw != 0
	}
	return metas, nil
}

// LatestRunID returns the ID of the most recent run.
func (db *DB) LatestRunID() (string, error) {
	var id string
	err := db.conn.Get(&id, "SELECT id FROM runs ORDER BY created_at DESC LIMIT 1")
	return id, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
