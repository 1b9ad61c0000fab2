package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse/adpulse/internal/application"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(":0", application.NewPipeline(application.DefaultConfig()))
}

// analyzeBody builds an analyze payload with ten steady days and one
// collapsed day so the run produces validated verdicts.
func analyzeBody(t *testing.T) []byte {
	t.Helper()
	var rows []map[string]any
	for i := 0; i < 10; i++ {
		rows = append(rows, map[string]any{
			"date":        fmt.Sprintf("2025-06-%02dT00:00:00Z", 20+i%10),
			"campaign":    "summer-sale",
			"spend":       100,
			"impressions": 10000,
			"clicks":      160,
			"revenue":     300,
		})
	}
	rows = append(rows, map[string]any{
		"date":        "2025-06-30T00:00:00Z",
		"campaign":    "summer-sale",
		"spend":       100,
		"impressions": 10000,
		"clicks":      160,
		"revenue":     30,
	})
	body, err := json.Marshal(map[string]any{"rows": rows})
	require.NoError(t, err)
	return body
}

func TestHandleAnalyze(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(analyzeBody(t)))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result application.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.RunID)
	assert.NotEmpty(t, result.Verdicts)
	assert.Greater(t, result.Metrics.NumPassed, 0)
}

func TestHandleAnalyzeEmptyRows(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"rows":[]}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "no rows")
}

func TestHandleAnalyzeBadJSON(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{broken`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAnalyzeMalformedConfidenceCoerced(t *testing.T) {
	s := newTestServer(t)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(analyzeBody(t), &payload))
	payload["hypotheses"] = []map[string]any{
		{"id": "ext-1", "hypothesis": "external claim", "initial_confidence": "not-a-number"},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result application.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	var found bool
	for _, v := range result.Verdicts {
		if v.ID == "ext-1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestHandleAnalyzeCSVUpload(t *testing.T) {
	s := newTestServer(t)

	var csv strings.Builder
	csv.WriteString("date,campaign,creative_id,spend,impressions,clicks,revenue\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&csv, "2025-06-%02d,summer-sale,cr-1,100,10000,160,300\n", 20+i)
	}
	csv.WriteString("2025-06-30,summer-sale,cr-1,100,10000,160,30\n")

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(csv.String()))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result application.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 11, result.Summary.Totals.Rows)
	assert.NotEmpty(t, result.Verdicts)
}

func TestHandleAnalyzeCSVUploadEmpty(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze",
		strings.NewReader("date,campaign,creative_id,spend,impressions,clicks,revenue\n"))
	req.Header.Set("Content-Type", "text/csv; charset=utf-8")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpointAfterRun(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(analyzeBody(t)))
	s.Router().ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "adpulse_runs_total 1")
	assert.Contains(t, body, "adpulse_stage_duration_seconds")
}

func TestMetricsSnapshotEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(analyzeBody(t)))
	s.Router().ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/snapshot", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap struct {
		Metrics []metricSnapshot `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.Metrics)

	byName := make(map[string]metricSnapshot)
	for _, m := range snap.Metrics {
		if m.Labels == nil {
			byName[m.Name] = m
		}
	}
	assert.InDelta(t, 1.0, byName["adpulse_runs_total"].Value, 1e-9)
	assert.Equal(t, "COUNTER", byName["adpulse_runs_total"].Type)
}

func TestWebsocketEventStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the hub to register the client before running.
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/analyze", bytes.NewReader(analyzeBody(t)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev application.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "run_started", ev.Name)
	assert.Equal(t, "pipeline", ev.Stage)
}
