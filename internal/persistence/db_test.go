package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefiq/reliefsim/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleTimeline() model.Timeline {
	return model.Timeline{
		&model.Snapshot{
			Month: 0,
			DistrictStates: []model.DistrictState{
				{DistrictID: "gorkha", RecoveryScore: 2.5, DamagePctRemaining: 79.7, AssignedNGOIDs: []string{"relief-one"}, AvgMatch: 90},
				{DistrictID: "dolakha", RecoveryScore: 0, DamagePctRemaining: 70},
			},
			TotalActiveNGOs: 1,
			TotalAssigns:    1,
		},
		&model.Snapshot{
			Month: 1,
			DistrictStates: []model.DistrictState{
				{DistrictID: "gorkha", RecoveryScore: 8.1, DamagePctRemaining: 74.2},
				{DistrictID: "dolakha", RecoveryScore: 0, DamagePctRemaining: 70, AssignedNGOIDs: []string{"relief-one"}, AvgMatch: 70},
			},
			Movements: []model.Movement{
				{NGOID: "relief-one", FromDistrictID: "gorkha", ToDistrictID: "dolakha", Month: 1, Reason: model.ReasonRecovered},
			},
			TotalActiveNGOs: 1,
			TotalAssigns:    1,
		},
	}
}

func TestSaveAndLoadTimeline(t *testing.T) {
	db := openTestDB(t)

	meta := RunMeta{
		ID:            "run-1",
		CreatedAt:     time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
		HorizonMonths: 60,
		StepMonths:    1,
		Districts:     2,
		NGOs:          1,
	}
	original := sampleTimeline()
	require.NoError(t, db.SaveRun(meta, original))

	loaded, err := db.LoadTimeline("run-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, 0, loaded[0].Month)
	assert.Equal(t, original[0].DistrictStates, loaded[0].DistrictStates)
	assert.Empty(t, loaded[0].Movements)

	assert.Equal(t, 1, loaded[1].Month)
	assert.Equal(t, original[1].DistrictStates, loaded[1].DistrictStates)
	require.Len(t, loaded[1].Movements, 1)
	assert.Equal(t, "relief-one", loaded[1].Movements[0].NGOID)
	assert.Equal(t, model.ReasonRecovered, loaded[1].Movements[0].Reason)
	assert.Equal(t, 1, loaded[1].TotalActiveNGOs)
}

func TestLoadTimelineUnknownRun(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LoadTimeline("nope")
	require.Error(t, err)
}

func TestRecentRunsAndLatest(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		meta := RunMeta{
			ID:            id,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
			HorizonMonths: 60,
			StepMonths:    1,
			Districts:     2,
			NGOs:          1,
			Cancelled:     id == "run-b",
		}
		require.NoError(t, db.SaveRun(meta, sampleTimeline()))
	}

	metas, err := db.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "run-c", metas[0].ID, "newest first")
	assert.Equal(t, "run-b", metas[1].ID)
	assert.True(t, metas[1].Cancelled)
	assert.False(t, metas[0].Cancelled)
	assert.Equal(t, base.Add(2*time.Minute), metas[0].CreatedAt)
	assert.Equal(t, 2, metas[0].Snapshots, "snapshot count recorded at save time")

	latest, err := db.LatestRunID()
	require.NoError(t, err)
	assert.Equal(t, "run-c", latest)
}

func TestSaveRunRejectsDuplicateID(t *testing.T) {
	db := openTestDB(t)
	meta := RunMeta{ID: "run-1", CreatedAt: time.Now()}
	require.NoError(t, db.SaveRun(meta, sampleTimeline()))
	require.Error(t, db.SaveRun(meta, sampleTimeline()))
}
