package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skywatch/backend/internal/ai"
	"github.com/skywatch/backend/internal/analyzer"
	"github.com/skywatch/backend/internal/config"
	"github.com/skywatch/backend/internal/correlation"
	"github.com/skywatch/backend/internal/orchestrator"
	"github.com/skywatch/backend/internal/priority"
	"github.com/skywatch/backend/internal/risk"
	"github.com/skywatch/backend/pkg/common"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Defaults()
	cfg.Priority.SimulationTrials = 500
	logger := zap.NewNop()
	completer := ai.Disabled{}

	an := analyzer.New(cfg.Analyzer, cfg.AI, completer, logger, nil)
	pe := priority.New(cfg.Priority, cfg.AI, completer, logger, nil)
	rc := risk.New(cfg.Risk, cfg.AI, completer, logger, nil)
	ce := correlation.New(cfg.Correlation, cfg.AI, completer, logger, nil)
	orch := orchestrator.New(cfg.Orchestrator, an, pe, rc, ce, nil, nil, logger, nil)

	router := gin.New()
	Register(router, NewHandler(orch, logger), logger)
	return router
}

func startBody() []byte {
	body := map[string]interface{}{
		"events": []map[string]interface{}{
			{
				"id":                   "neo-1",
				"source":               "nasa_neo",
				"type":                 "asteroid",
				"title":                "close approach",
				"severity":             "critical",
				"detected_at":          "2024-03-01T10:00:00Z",
				"time_to_impact_hours": 5.0,
				"impact_probability":   0.7,
				"confidence_score":     0.9,
				"data_quality_score":   0.9,
				"payload":              map[string]interface{}{"distance_km": 50000.0},
			},
			{
				"id":                 "eq-1",
				"source":             "usgs",
				"type":               "earth_event",
				"title":              "minor quake",
				"severity":           "low",
				"detected_at":        "2024-03-01T11:00:00Z",
				"impact_probability": 0.1,
				"confidence_score":   0.5,
				"data_quality_score": 0.5,
			},
		},
		"sources":       []string{"nasa_neo", "usgs"},
		"lookback_days": 7,
	}
	data, _ := json.Marshal(body)
	return data
}

func doRequest(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func awaitCompleted(t *testing.T, router *gin.Engine, sessionID string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		w := doRequest(router, http.MethodGet, "/api/v1/assessments/"+sessionID+"/status", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var status struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		if status.Status == "completed" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session never completed")
}

func TestStartStatusResultsFlow(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/assessments", startBody())
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var started struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.NotEmpty(t, started.SessionID)

	awaitCompleted(t, router, started.SessionID)

	w = doRequest(router, http.MethodGet, "/api/v1/assessments/"+started.SessionID+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var session struct {
		Assessments map[string]json.RawMessage `json:"assessments"`
		Metrics     struct {
			EventsAssessed int `json:"events_assessed"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.Len(t, session.Assessments, 2)
	assert.Equal(t, 2, session.Metrics.EventsAssessed)
}

func TestStartWithCallerSessionID(t *testing.T) {
	router := newTestRouter(t)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(startBody(), &body))
	body["session_id"] = "retry-42"
	data, _ := json.Marshal(body)

	w := doRequest(router, http.MethodPost, "/api/v1/assessments", data)
	require.Equal(t, http.StatusAccepted, w.Code)
	var started struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, "retry-42", started.SessionID)

	// The same id again is a validation failure, not a second session.
	w = doRequest(router, http.MethodPost, "/api/v1/assessments", data)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), common.CodeValidation)
}

func TestResultsSummaryFormat(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/assessments", startBody())
	require.Equal(t, http.StatusAccepted, w.Code)
	var started struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	awaitCompleted(t, router, started.SessionID)

	w = doRequest(router, http.MethodGet, "/api/v1/assessments/"+started.SessionID+"/results?format=summary", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
		Threats   map[string]struct {
			FinalPriority      string   `json:"final_priority"`
			FinalRisk          string   `json:"final_risk"`
			RequiresMonitoring bool     `json:"requires_monitoring"`
			ActionItems        []string `json:"action_items"`
		} `json:"threats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, started.SessionID, summary.SessionID)
	assert.Equal(t, "completed", summary.Status)
	require.Len(t, summary.Threats, 2)
	assert.Equal(t, "critical", summary.Threats["neo-1"].FinalPriority)
	assert.True(t, summary.Threats["neo-1"].RequiresMonitoring)
	assert.NotContains(t, w.Body.String(), "category_scores", "summary omits the engine internals")

	w = doRequest(router, http.MethodGet, "/api/v1/assessments/"+started.SessionID+"/results?format=csv", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), common.CodeValidation)
}

func TestResultsBeforeTerminalIs409(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/assessments", startBody())
	require.Equal(t, http.StatusAccepted, w.Code)
	var started struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))

	// The session may finish between the two calls; a conflict is the only
	// acceptable non-200 answer while it runs.
	w = doRequest(router, http.MethodGet, "/api/v1/assessments/"+started.SessionID+"/results", nil)
	if w.Code != http.StatusOK {
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), common.CodeNotReady)
	}
}

func TestStartRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/assessments", []byte(`{"events":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), common.CodeValidation)
}

func TestStatusUnknownSessionIs404(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/assessments/nope/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), common.CodeNotFound)
}

func TestCleanupValidation(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/assessments/cleanup", []byte(`{"max_age_hours":-1}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/assessments/cleanup", []byte(`{"max_age_hours":24}`))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Removed int `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Removed)
}

func TestPriorityQueueEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/assessments", startBody())
	require.Equal(t, http.StatusAccepted, w.Code)
	var started struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	awaitCompleted(t, router, started.SessionID)

	w = doRequest(router, http.MethodGet, "/api/v1/priorities/top?n=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var top struct {
		Priorities []struct {
			ThreatID string `json:"threat_id"`
		} `json:"priorities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &top))
	require.Len(t, top.Priorities, 1)
	assert.Equal(t, "neo-1", top.Priorities[0].ThreatID)

	w = doRequest(router, http.MethodGet, "/api/v1/priorities/level/critical", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/priorities/level/apocalyptic", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/priorities/top?n=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "ok", report.Status)
}
