package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skywatch/backend/internal/ai"
	"github.com/skywatch/backend/internal/analyzer"
	"github.com/skywatch/backend/internal/config"
	"github.com/skywatch/backend/internal/correlation"
	"github.com/skywatch/backend/internal/priority"
	"github.com/skywatch/backend/internal/risk"
	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/common"
	"github.com/skywatch/backend/pkg/threat"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *clockwork.FakeClock) {
	t.Helper()
	cfg := config.Defaults()
	// Fewer trials keep the refinement stage fast under test.
	cfg.Priority.SimulationTrials = 500
	return buildOrchestrator(t, cfg, ai.Disabled{})
}

func buildOrchestrator(t *testing.T, cfg *config.Config, completer ai.Completer) (*Orchestrator, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := zap.NewNop()

	an := analyzer.New(cfg.Analyzer, cfg.AI, completer, logger, clock)
	pe := priority.New(cfg.Priority, cfg.AI, completer, logger, clock)
	rc := risk.New(cfg.Risk, cfg.AI, completer, logger, clock)
	ce := correlation.New(cfg.Correlation, cfg.AI, completer, logger, clock)

	return New(cfg.Orchestrator, an, pe, rc, ce, nil, nil, logger, clock), clock
}

func batchEvents() []*threat.Event {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tti := 5.0

	return []*threat.Event{
		{
			ID: "neo-1", Source: "nasa_neo", Type: threat.TypeAsteroid,
			Title: "close approach", Severity: threat.SeverityCritical,
			Coordinates: &threat.Coordinates{Lat: 10, Lng: 10},
			DetectedAt:  base, TimeToImpactHrs: &tti,
			ImpactProbability: 0.7, ConfidenceScore: 0.9, DataQualityScore: 0.9,
			Payload: map[string]interface{}{"distance_km": 50000.0},
		},
		{
			ID: "neo-2", Source: "nasa_neo", Type: threat.TypeAsteroid,
			Title: "companion object", Severity: threat.SeverityHigh,
			Coordinates: &threat.Coordinates{Lat: 10.01, Lng: 10.01},
			DetectedAt:  base.Add(time.Hour),
			ImpactProbability: 0.5, ConfidenceScore: 0.8, DataQualityScore: 0.8,
		},
		{
			ID: "eq-1", Source: "usgs", Type: threat.TypeEarthEvent,
			Title: "minor quake", Severity: threat.SeverityLow,
			DetectedAt: base.Add(2 * time.Hour),
			ImpactProbability: 0.1, ConfidenceScore: 0.5, DataQualityScore: 0.5,
			Payload: map[string]interface{}{"magnitude": 3.0, "category": "earthquake"},
		},
	}
}

func awaitTerminal(t *testing.T, o *Orchestrator, sessionID string) *assessment.OrchestrationSession {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		session, err := o.GetStatus(context.Background(), sessionID)
		require.NoError(t, err)
		if session.Status.Terminal() {
			return session
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session did not reach a terminal status")
	return nil
}

func TestOrchestrationCompletesEndToEnd(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	sessionID, err := o.Start(batchEvents(), StartOptions{
		Sources:            []string{"nasa_neo", "usgs"},
		LookbackDays:       7,
		IncludePredictions: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	session := awaitTerminal(t, o, sessionID)
	assert.Equal(t, assessment.StatusCompleted, session.Status)
	assert.Equal(t, assessment.PhaseComplete, session.Phase)
	require.NotNil(t, session.EndedAt)

	assert.Equal(t, 3, session.Metrics.EventsCollected)
	assert.Equal(t, 3, session.Metrics.EventsAssessed)
	assert.Equal(t, 0, session.Metrics.EventsFailed)
	assert.Equal(t, 1.0, session.Metrics.CompletenessRatio)
	assert.Greater(t, session.Metrics.AverageConfidence, 0.0)

	require.Len(t, session.Assessments, 3)
	for id, ca := range session.Assessments {
		assert.Equal(t, id, ca.ThreatID)
		require.NotNil(t, ca.Analysis)
		require.NotNil(t, ca.Priority)
		require.NotNil(t, ca.Risk)
		assert.Equal(t, ca.Priority.Level, ca.FinalPriority)
		assert.Equal(t, ca.Risk.Level, ca.FinalRisk)
		assert.NotEmpty(t, ca.Risk.PredictedSeries, "requested forecasts must reach the results")
	}

	require.NotNil(t, session.Correlation)
	assert.Equal(t, len(session.Correlation.Correlations), session.Metrics.CorrelationsFound)

	// The imminent critical asteroid must carry the urgent action items.
	urgent := session.Assessments["neo-1"]
	require.NotNil(t, urgent)
	assert.Equal(t, assessment.PriorityCritical, urgent.FinalPriority)
	assert.Contains(t, urgent.ActionItems, "escalate to continuous monitoring")
	assert.Contains(t, urgent.ActionItems, "initiate emergency response protocol")
	assert.True(t, urgent.RequiresMonitoring)

	// The co-located asteroids reference each other.
	assert.Contains(t, urgent.RelatedThreatIDs, "neo-2")
}

func TestResultsUnavailableWhileRunning(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	sessionID, err := o.Start(batchEvents(), StartOptions{})
	require.NoError(t, err)

	// Immediately after start the session is almost certainly still running;
	// either way the call must never return partial results.
	if _, err := o.GetResults(context.Background(), sessionID); err == nil {
		session, gerr := o.GetStatus(context.Background(), sessionID)
		require.NoError(t, gerr)
		assert.True(t, session.Status.Terminal())
	} else {
		assert.True(t, common.IsErrorCode(err, common.CodeNotReady),
			"a not-yet-finished session is not a client error: %v", err)
	}

	awaitTerminal(t, o, sessionID)
	session, err := o.GetResults(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusCompleted, session.Status)
}

func TestStartRejectsEmptyBatch(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.Start(nil, StartOptions{})
	assert.Error(t, err)
}

func TestStartHonorsCallerSessionID(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	sessionID, err := o.Start(batchEvents(), StartOptions{SessionID: "replay-7"})
	require.NoError(t, err)
	assert.Equal(t, "replay-7", sessionID)

	// A second start under the same id must be refused, running or not.
	_, err = o.Start(batchEvents(), StartOptions{SessionID: "replay-7"})
	require.Error(t, err)
	assert.True(t, common.IsErrorCode(err, common.CodeValidation))

	awaitTerminal(t, o, "replay-7")
	_, err = o.Start(batchEvents(), StartOptions{SessionID: "replay-7"})
	assert.Error(t, err, "a finished session still occupies its id")
}

func TestPredictionsOmittedWhenNotRequested(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	sessionID, err := o.Start(batchEvents(), StartOptions{})
	require.NoError(t, err)

	session := awaitTerminal(t, o, sessionID)
	require.Equal(t, assessment.StatusCompleted, session.Status)
	for _, ca := range session.Assessments {
		assert.Empty(t, ca.Risk.PredictedSeries)
	}
}

// stallRiskCompleter blocks risk-adjustment prompts until the stage budget
// expires and fails every other prompt immediately, so only the risk stage
// can exhaust its budget.
type stallRiskCompleter struct{}

func (stallRiskCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	if strings.Contains(req.Prompt, "heuristic_risk") {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "", common.NewError(common.CodeProvider, "ai backend unavailable", nil)
}

func TestStageBudgetExhaustionEndsSessionAsTimeout(t *testing.T) {
	cfg := config.Defaults()
	cfg.Priority.SimulationTrials = 500
	// One slot and a short budget: the first risk analysis blocks the
	// semaphore until the stage deadline, so the queued events are discarded.
	cfg.Orchestrator.MaxConcurrentAnalyses = 1
	cfg.Orchestrator.GlobalTimeout = 2 * time.Second
	o, _ := buildOrchestrator(t, cfg, stallRiskCompleter{})

	sessionID, err := o.Start(batchEvents(), StartOptions{})
	require.NoError(t, err)

	session := awaitTerminal(t, o, sessionID)
	assert.Equal(t, assessment.StatusTimeout, session.Status,
		"an exhausted stage budget must not report the session as completed")
	assert.Equal(t, assessment.PhaseComplete, session.Phase, "completed work is retained")
	require.NotNil(t, session.EndedAt)

	// Risk stage order is by event id: eq-1 occupies the slot, neo-1 and
	// neo-2 never run.
	assert.Equal(t, 1, session.Metrics.EventsAssessed)
	assert.Equal(t, 2, session.Metrics.EventsFailed)
	require.Len(t, session.Assessments, 1)
	require.NotNil(t, session.Assessments["eq-1"])

	exhausted := false
	for _, w := range session.Warnings {
		if strings.Contains(w, common.CodeStageTimeout) {
			exhausted = true
		}
	}
	assert.True(t, exhausted, "stage exhaustion is surfaced as a warning")
}

func TestInvalidEventsAreIsolated(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	events := batchEvents()
	events = append(events, &threat.Event{ID: "", Type: "bogus"})

	sessionID, err := o.Start(events, StartOptions{})
	require.NoError(t, err)

	session := awaitTerminal(t, o, sessionID)
	assert.Equal(t, assessment.StatusCompleted, session.Status)
	assert.Equal(t, 4, session.Metrics.EventsCollected)
	assert.Equal(t, 3, session.Metrics.EventsAssessed)
	assert.NotEmpty(t, session.Errors, "validation failures are recorded")
	assert.InDelta(t, 0.75, session.Metrics.CompletenessRatio, 1e-9)
}

func TestAllInvalidEventsFailSession(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	sessionID, err := o.Start([]*threat.Event{{ID: ""}}, StartOptions{})
	require.NoError(t, err)

	session := awaitTerminal(t, o, sessionID)
	assert.Equal(t, assessment.StatusFailed, session.Status)
	assert.Equal(t, assessment.PhaseError, session.Phase)
}

func TestGetStatusUnknownSession(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.GetStatus(context.Background(), "no-such-session")
	assert.Error(t, err)
}

func TestCleanupRemovesOnlyOldTerminalSessions(t *testing.T) {
	o, clock := newTestOrchestrator(t)

	oldID, err := o.Start(batchEvents(), StartOptions{})
	require.NoError(t, err)
	awaitTerminal(t, o, oldID)

	clock.Advance(48 * time.Hour)

	youngID, err := o.Start(batchEvents(), StartOptions{})
	require.NoError(t, err)
	awaitTerminal(t, o, youngID)

	removed := o.Cleanup(24 * time.Hour)
	assert.Equal(t, 1, removed)

	_, err = o.GetStatus(context.Background(), oldID)
	assert.Error(t, err, "old session is gone")
	_, err = o.GetStatus(context.Background(), youngID)
	assert.NoError(t, err, "young session survives")
}

func TestHealthReport(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	sessionID, err := o.Start(batchEvents(), StartOptions{})
	require.NoError(t, err)
	awaitTerminal(t, o, sessionID)

	report := o.Health(context.Background())
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, 0, report.ActiveSessions)
	assert.Equal(t, 1, report.TrackedSessions)
	assert.Equal(t, 3, report.QueueDepth)
	assert.False(t, report.SnapshotStore, "no snapshot store configured")
	assert.NotNil(t, report.ErrorCounts)
}
