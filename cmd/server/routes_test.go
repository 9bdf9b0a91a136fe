package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshruti113/ddos-detector/internal/config"
	"github.com/nshruti113/ddos-detector/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv(config.ConfigPathEnvVar, "")

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Detection.Threshold = 10
	cfg.Enforcement.Enabled = true
	cfg.Enforcement.Backend = config.BackendLog

	s, err := NewServer(context.Background(), cfg)
	require.NoError(t, err)
	return s
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func synBatch(source string, n int) string {
	evs := make([]models.PacketEvent, n)
	for i := range evs {
		evs[i] = models.PacketEvent{
			SourceID:  source,
			Protocol:  models.ProtocolTCP,
			TCPFlags:  models.FlagSYN,
			DstPort:   80,
			SizeBytes: 60,
		}
	}
	data, _ := json.Marshal(evs)
	return string(data)
}

func TestDecodeEvents(t *testing.T) {
	evs, err := decodeEvents([]byte(`{"source_id":"203.0.113.1","protocol":"UDP"}`))
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, models.ProtocolUDP, evs[0].Protocol)

	evs, err = decodeEvents([]byte(` [{"source_id":"a","protocol":"TCP"},{"source_id":"b","protocol":"ICMP"}]`))
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	_, err = decodeEvents([]byte("  "))
	assert.Error(t, err)

	_, err = decodeEvents([]byte("{not json"))
	assert.Error(t, err)
}

func TestIngestCountsDrops(t *testing.T) {
	s := newTestServer(t)

	body := `[
		{"source_id":"203.0.113.7","protocol":"UDP","dst_port":53},
		{"source_id":"10.0.0.1","protocol":"UDP"},
		{"source_id":"","protocol":"TCP"}
	]`
	w := do(s, http.MethodPost, "/api/traffic/ingest", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Accepted int `json:"accepted"`
		Dropped  int `json:"dropped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 2, resp.Dropped)
}

func TestIngestRejectsBadJSON(t *testing.T) {
	s := newTestServer(t)
	w := do(s, http.MethodPost, "/api/traffic/ingest", "{")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSynFloodFlowsToAPI(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.engine.Start(context.Background()))
	t.Cleanup(s.engine.Stop)

	w := do(s, http.MethodPost, "/api/traffic/ingest", synBatch("203.0.113.9", 10))
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool {
		return len(s.engine.Alerts().Blocked()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	w = do(s, http.MethodGet, "/api/alerts/recent?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var recent struct {
		Alerts []models.AlertView `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recent))
	require.Len(t, recent.Alerts, 1)
	assert.Equal(t, models.SynFlood, recent.Alerts[0].AttackType)
	assert.True(t, recent.Alerts[0].Blocked)

	w = do(s, http.MethodGet, "/api/stats/summary", "")
	assert.Contains(t, w.Body.String(), `"status":"UNDER_ATTACK"`)

	w = do(s, http.MethodGet, "/api/blocked", "")
	assert.Contains(t, w.Body.String(), "203.0.113.9")

	w = do(s, http.MethodDelete, "/api/blocked/203.0.113.9", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, s.engine.Alerts().Blocked())

	w = do(s, http.MethodDelete, "/api/blocked/203.0.113.9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTopSourcesLimit(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.engine.Start(context.Background()))
	t.Cleanup(s.engine.Stop)

	for _, src := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		do(s, http.MethodPost, "/api/traffic/ingest", `{"source_id":"`+src+`","protocol":"UDP"}`)
	}
	assert.Eventually(t, func() bool {
		return s.engine.Statistics().TrackedSources == 3
	}, 3*time.Second, 20*time.Millisecond)

	w := do(s, http.MethodGet, "/api/sources/top?n=2", "")
	var resp struct {
		Sources []models.SourceStats `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Sources, 2)
}

func TestHistoryWithoutRedis(t *testing.T) {
	s := newTestServer(t)
	w := do(s, http.MethodGet, "/api/alerts/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	w := do(s, http.MethodOptions, "/api/blocked", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
