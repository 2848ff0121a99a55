// Package model provides the core data types shared by the recovery
// simulation: districts, NGO score entries, assignments, and the
// snapshot timeline consumed by the dashboard layer.
package model

import "fmt"

// District is a geographic administrative unit. Immutable after load.
type District struct {
	ID               string  `json:"id"` // Normalized name (trimmed, lowercase)
	DisplayName      string  `json:"display_name"`
	InitialDamagePct float64 `json:"initial_damage_pct"` // 0–100
}

// ScoreEntry is the upstream matcher's verdict on one (NGO, district)
// pair. Absence of an entry means that NGO may never be assigned there.
type ScoreEntry struct {
	NGOID      string  `json:"ngo_id"`
	DistrictID string  `json:"district_id"`
	Match      float64 `json:"match"`   // 0–100
	Urgency    float64 `json:"urgency"` // 0–100
	Fitness    float64 `json:"fitness"` // 0–100
}

// ScoreKey identifies a ScoreEntry by its (NGO, district) pair.
type ScoreKey struct {
	NGOID      string
	DistrictID string
}

// ScoreIndex provides O(1) lookup of score entries plus the per-NGO
// candidate lists the reassignment policy ranks over. Read-only after
// construction; safe to share across simulation runs.
type ScoreIndex struct {
	byKey map[ScoreKey]ScoreEntry
	byNGO map[string][]ScoreEntry // Entries in input order (determinism)
}

// NewScoreIndex builds the lookup index from the input score table.
func NewScoreIndex(scores []ScoreEntry) *ScoreIndex {
	idx := &ScoreIndex{
		byKey: make(map[ScoreKey]ScoreEntry, len(scores)),
		byNGO: make(map[string][]ScoreEntry),
	}
	for _, s := range scores {
		key := ScoreKey{NGOID: s.NGOID, DistrictID: s.DistrictID}
		if _, dup := idx.byKey[key]; dup {
			continue // First entry wins; duplicates in user CSVs are common.
		}
		idx.byKey[key] = s
		idx.byNGO[s.NGOID] = append(idx.byNGO[s.NGOID], s)
	}
	return idx
}

// Lookup returns the score entry for an (NGO, district) pair.
func (idx *ScoreIndex) Lookup(ngoID, districtID string) (ScoreEntry, bool) {
	s, ok := idx.byKey[ScoreKey{NGOID: ngoID, DistrictID: districtID}]
	return s, ok
}

// ForNGO returns all score entries for one NGO in input order.
func (idx *ScoreIndex) ForNGO(ngoID string) []ScoreEntry {
	return idx.byNGO[ngoID]
}

// Len returns the number of indexed entries.
func (idx *ScoreIndex) Len() int {
	return len(idx.byKey)
}

// Assignment is the mutable unit of simulation state: one NGO actively
// working one district. Scores are copied from the ScoreEntry at
// assignment time, never recomputed.
type Assignment struct {
	NGOID       string  `json:"ngo_id"`
	DistrictID  string  `json:"district_id"`
	Match       float64 `json:"match"`
	Urgency     float64 `json:"urgency"`
	Fitness     float64 `json:"fitness"`
	SinceMonth  int     `json:"since_month"`
	CoolingDown bool    `json:"cooling_down"` // Set on move, cleared after the cooldown window
}

// NewAssignment creates an assignment from a score entry.
func NewAssignment(s ScoreEntry, sinceMonth int, coolingDown bool) *Assignment {
	return &Assignment{
		NGOID:       s.NGOID,
		DistrictID:  s.DistrictID,
		Match:       s.Match,
		Urgency:     s.Urgency,
		Fitness:     s.Fitness,
		SinceMonth:  sinceMonth,
		CoolingDown: coolingDown,
	}
}

// DistrictState is the per-district runtime state recomputed each step.
// Only RecoveryScore carries forward between steps (as the previous
// score fed to the incremental recovery formula).
type DistrictState struct {
	DistrictID         string   `json:"district_id"`
	RecoveryScore      float64  `json:"recovery_score"`       // 0–100
	DamagePctRemaining float64  `json:"damage_pct_remaining"` // 0–100
	AssignedNGOIDs     []string `json:"assigned_ngo_ids"`
	AvgMatch           float64  `json:"avg_match"`
}

// Movement records one NGO relocating between districts.
type Movement struct {
	NGOID          string  `json:"ngo_id"`
	FromDistrictID string  `json:"from_district_id"`
	ToDistrictID   string  `json:"to_district_id"`
	Month          int     `json:"month"`
	Reason         string  `json:"reason"`
	FromCoord      *LonLat `json:"from_coord,omitempty"` // Map-animation annotation only
	ToCoord        *LonLat `json:"to_coord,omitempty"`
}

// LonLat is a geographic coordinate pair.
type LonLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Movement reasons recorded in snapshots.
const (
	ReasonRecovered = "district_recovered"
	ReasonSpreading = "coverage_spreading"
)

// Snapshot is the full simulation state at one month. Immutable once
// appended to the timeline.
type Snapshot struct {
	Month           int             `json:"month"`
	DistrictStates  []DistrictState `json:"district_states"`
	Movements       []Movement      `json:"movements"`
	TotalActiveNGOs int             `json:"total_active_ngos"`
	TotalAssigns    int             `json:"total_assignments"`
}

// StateFor returns the runtime state of one district in the snapshot.
func (s *Snapshot) StateFor(districtID string) (DistrictState, bool) {
	for _, ds := range s.DistrictStates {
		if ds.DistrictID == districtID {
			return ds, true
		}
	}
	return DistrictState{}, false
}

// Timeline is the ordered, append-only sequence of snapshots produced
// by a run. It outlives the simulation state that produced it.
type Timeline []*Snapshot

// At returns the snapshot at a position, for scrubbing/playback.
func (t Timeline) At(i int) (*Snapshot, error) {
	if i < 0 || i >= len(t) {
		return nil, fmt.Errorf("snapshot index %d out of range [0,%d)", i, len(t))
	}
	return t[i], nil
}

// Last returns the most recent snapshot, or nil for an empty timeline.
func (t Timeline) Last() *Snapshot {
	if len(t) == 0 {
		return nil
	}
	return t[len(t)-1]
}
