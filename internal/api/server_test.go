package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefiq/reliefsim/internal/model"
	"github.com/reliefiq/reliefsim/internal/sim"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := sim.DefaultConfig()
	cfg.HorizonMonths = 12
	cfg.Placement = sim.PlacementBestFit

	return &Server{
		Runner: &Runner{
			Districts: []model.District{
				{ID: "gorkha", DisplayName: "Gorkha", InitialDamagePct: 81.5},
				{ID: "dolakha", DisplayName: "Dolakha", InitialDamagePct: 70},
			},
			Scores: []model.ScoreEntry{
				{NGOID: "relief-one", DistrictID: "gorkha", Match: 90, Urgency: 90, Fitness: 90},
				{NGOID: "relief-one", DistrictID: "dolakha", Match: 70, Urgency: 80, Fitness: 75},
			},
			Coordinates: map[string]model.LonLat{
				"gorkha": {Lon: 84.6, Lat: 28.0},
			},
		},
		AdminKey:   "test-key",
		BaseConfig: cfg,
	}
}

func waitForIdle(t *testing.T, rn *Runner) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !rn.Status().Running {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("run did not finish")
}

func TestHealthAndDistricts(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/districts")
	require.NoError(t, err)
	defer resp.Body.Close()

	var districts []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&districts))
	require.Len(t, districts, 2)
	assert.Equal(t, "gorkha", districts[0]["id"])
	assert.Equal(t, 81.5, districts[0]["initial_damage_pct"])
	assert.Equal(t, 84.6, districts[0]["lon"], "coordinates attached when known")
	_, hasLon := districts[1]["lon"]
	assert.False(t, hasLon, "no coordinate entry for dolakha")
}

func TestStartRunRequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/run", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/run", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestControlDisabledWithoutAdminKey(t *testing.T) {
	srv := newTestServer(t)
	srv.AdminKey = ""
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRunLifecycle(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := bytes.NewBufferString(`{"horizon_months": 6}`)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/run", body)
	req.Header.Set("Authorization", "Bearer test-key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var started map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.NotEmpty(t, started["run_id"])

	waitForIdle(t, srv.Runner)

	tlResp, err := http.Get(ts.URL + "/api/v1/timeline")
	require.NoError(t, err)
	defer tlResp.Body.Close()
	var timeline []json.RawMessage
	require.NoError(t, json.NewDecoder(tlResp.Body).Decode(&timeline))
	assert.Len(t, timeline, 7, "months 0..6")

	snapResp, err := http.Get(ts.URL + "/api/v1/timeline/3")
	require.NoError(t, err)
	defer snapResp.Body.Close()
	require.Equal(t, http.StatusOK, snapResp.StatusCode)
	var snap map[string]any
	require.NoError(t, json.NewDecoder(snapResp.Body).Decode(&snap))
	assert.Equal(t, 3.0, snap["month"])

	missing, err := http.Get(ts.URL + "/api/v1/timeline/99")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestStartRunRejectsInvalidConfig(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := bytes.NewBufferString(`{"horizon_months": -1}`)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/run", body)
	req.Header.Set("Authorization", "Bearer test-key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, srv.Runner.Status().Running)
}

func TestConcurrentStartConflicts(t *testing.T) {
	srv := newTestServer(t)
	srv.Runner.Yield = 50 * time.Millisecond // Keep the first run in flight
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	start := func() *http.Response {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/run", nil)
		req.Header.Set("Authorization", "Bearer test-key")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	first := start()
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := start()
	second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)

	cancelReq, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/cancel", nil)
	cancelReq.Header.Set("Authorization", "Bearer test-key")
	resp, err := http.DefaultClient.Do(cancelReq)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	waitForIdle(t, srv.Runner)
}

func TestCancelWithoutRun(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/cancel", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, false, status["running"])
	assert.Equal(t, 0.0, status["steps_completed"])
	assert.Equal(t, 12.0, status["horizon_months"])
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/timeline", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
