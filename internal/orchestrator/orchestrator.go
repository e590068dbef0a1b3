// Package orchestrator coordinates the end-to-end assessment pipeline:
// per-event analysis, priority and risk scoring under bounded concurrency,
// batch correlation, optional AI enhancement, and finalization into a
// pollable session. Individual event failures are isolated; a session only
// fails outright when no event survives.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/skywatch/backend/internal/analyzer"
	"github.com/skywatch/backend/internal/config"
	"github.com/skywatch/backend/internal/correlation"
	"github.com/skywatch/backend/internal/metrics"
	"github.com/skywatch/backend/internal/priority"
	"github.com/skywatch/backend/internal/risk"
	"github.com/skywatch/backend/internal/storage"
	"github.com/skywatch/backend/internal/streaming"
	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/common"
	"github.com/skywatch/backend/pkg/threat"
)

// Orchestrator runs assessment sessions.
type Orchestrator struct {
	cfg config.OrchestratorConfig

	analyzer    *analyzer.Analyzer
	priority    *priority.Engine
	risk        *risk.Calculator
	correlation *correlation.Engine

	// Optional collaborators; nil disables them.
	snapshots *storage.SnapshotStore
	publisher *streaming.Publisher

	store  *sessionStore
	sem    chan struct{}
	logger *zap.Logger
	clock  clockwork.Clock
}

// New creates an Orchestrator. A nil clock selects the real clock; snapshots
// and publisher may be nil.
func New(
	cfg config.OrchestratorConfig,
	an *analyzer.Analyzer,
	pe *priority.Engine,
	rc *risk.Calculator,
	ce *correlation.Engine,
	snapshots *storage.SnapshotStore,
	publisher *streaming.Publisher,
	logger *zap.Logger,
	clock clockwork.Clock,
) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		cfg:         cfg,
		analyzer:    an,
		priority:    pe,
		risk:        rc,
		correlation: ce,
		snapshots:   snapshots,
		publisher:   publisher,
		store:       newSessionStore(),
		sem:         make(chan struct{}, cfg.MaxConcurrentAnalyses),
		logger:      logger,
		clock:       clock,
	}
}

// StartOptions carries the caller-controlled session parameters. A zero
// SessionID mints one; a caller-supplied id must not already be in use.
type StartOptions struct {
	SessionID          string
	Sources            []string
	LookbackDays       int
	IncludePredictions bool
}

// Start validates the request, registers a new session, and launches the
// pipeline in the background. It returns the session id immediately.
func (o *Orchestrator) Start(events []*threat.Event, opts StartOptions) (string, error) {
	if len(events) == 0 {
		return "", common.NewError(common.CodeValidation, "no events to assess", nil)
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session := &assessment.OrchestrationSession{
		SessionID:    sessionID,
		Phase:        assessment.PhaseInitialization,
		Status:       assessment.StatusPending,
		Sources:      opts.Sources,
		LookbackDays: opts.LookbackDays,
		StartedAt:    o.clock.Now().UTC(),
	}
	if !o.store.putIfAbsent(session) {
		return "", common.NewError(common.CodeValidation, "session id already in use", map[string]interface{}{
			"session_id": sessionID,
		})
	}
	metrics.SessionsStarted.Inc()
	metrics.ActiveSessions.Inc()

	o.logger.Info("orchestration session started",
		zap.String("session_id", session.SessionID),
		zap.Int("events", len(events)),
	)

	go o.run(session.SessionID, events, opts.IncludePredictions)
	return session.SessionID, nil
}

// GetStatus returns a snapshot of the session, restoring from the snapshot
// store when the in-memory registry no longer holds it.
func (o *Orchestrator) GetStatus(ctx context.Context, sessionID string) (*assessment.OrchestrationSession, error) {
	if session := o.store.get(sessionID); session != nil {
		return session, nil
	}
	if o.snapshots != nil {
		if session, err := o.snapshots.Load(ctx, sessionID); err == nil {
			return session, nil
		}
	}
	return nil, common.NewError(common.CodeNotFound, "session not found", map[string]interface{}{
		"session_id": sessionID,
	})
}

// GetResults returns the full results of a terminal session. A session still
// in flight is reported as such without exposing partial results.
func (o *Orchestrator) GetResults(ctx context.Context, sessionID string) (*assessment.OrchestrationSession, error) {
	session, err := o.GetStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.Terminal() {
		return nil, common.NewError(common.CodeNotReady, "session still in progress", map[string]interface{}{
			"session_id": sessionID,
			"phase":      string(session.Phase),
		})
	}
	return session, nil
}

// Cleanup removes terminal sessions older than maxAge and returns the count.
func (o *Orchestrator) Cleanup(maxAge time.Duration) int {
	removed := o.store.cleanup(o.clock.Now().Add(-maxAge))
	if removed > 0 {
		o.logger.Info("session cleanup", zap.Int("removed", removed))
	}
	return removed
}

// HealthReport summarizes the orchestrator's operational state.
type HealthReport struct {
	Status          string            `json:"status"`
	ActiveSessions  int               `json:"active_sessions"`
	TrackedSessions int               `json:"tracked_sessions"`
	QueueDepth      int               `json:"queue_depth"`
	HistorySize     int               `json:"history_size"`
	SnapshotStore   bool              `json:"snapshot_store"`
	ErrorCounts     map[string]uint64 `json:"error_counts"`
}

// Health reports liveness of the pipeline and its optional collaborators.
func (o *Orchestrator) Health(ctx context.Context) HealthReport {
	return HealthReport{
		Status:          "ok",
		ActiveSessions:  o.store.activeCount(),
		TrackedSessions: o.store.len(),
		QueueDepth:      o.priority.Queue().Len(),
		HistorySize:     o.analyzer.History().Size(),
		SnapshotStore:   o.snapshots.Healthy(ctx),
		ErrorCounts:     common.ErrorCounts(),
	}
}

// Queue exposes the ranked priority queue for the API surface.
func (o *Orchestrator) Queue() *priority.RankedQueue { return o.priority.Queue() }

// eventResult accumulates the per-event pipeline outputs.
type eventResult struct {
	event    *threat.Event
	analysis *assessment.AnalysisResult
	priority *assessment.PriorityScore
	risk     *assessment.RiskAssessment
}

// run drives one session through every phase. It owns all mutations of the
// session and always leaves it in a terminal status.
func (o *Orchestrator) run(sessionID string, events []*threat.Event, includePredictions bool) {
	start := o.clock.Now()
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.GlobalTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestration panicked",
				zap.String("session_id", sessionID),
				zap.Any("panic", r),
			)
			o.finish(sessionID, assessment.StatusFailed, assessment.PhaseError,
				common.NewError(common.CodeFatal, "orchestration panic", map[string]interface{}{
					"panic": fmt.Sprint(r),
				}).Error())
		}
	}()

	o.setPhase(sessionID, assessment.PhaseDataCollection, assessment.StatusInProgress)

	valid := make([]*eventResult, 0, len(events))
	var validationErrors []string
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			validationErrors = append(validationErrors, err.Error())
			metrics.EventsAssessed.WithLabelValues("invalid").Inc()
			continue
		}
		valid = append(valid, &eventResult{event: ev})
	}
	o.store.update(sessionID, func(s *assessment.OrchestrationSession) {
		s.Metrics.EventsCollected = len(events)
		s.Errors = append(s.Errors, validationErrors...)
	})
	if len(valid) == 0 {
		o.finish(sessionID, assessment.StatusFailed, assessment.PhaseError, "no valid events after validation")
		return
	}

	// The analysis stages share a budget of half the session timeout; the
	// rest is reserved for correlation and finalization.
	stageCtx, stageCancel := context.WithTimeout(ctx, o.cfg.GlobalTimeout/2)
	defer stageCancel()

	var stageTimedOut bool

	o.setPhase(sessionID, assessment.PhaseThreatAnalysis, assessment.StatusInProgress)
	valid, timedOut := o.runStage(stageCtx, sessionID, "analysis", valid, func(ctx context.Context, r *eventResult) {
		r.analysis = o.analyzer.Analyze(ctx, r.event)
	})
	stageTimedOut = stageTimedOut || timedOut

	o.setPhase(sessionID, assessment.PhasePriorityCalculation, assessment.StatusInProgress)
	valid, timedOut = o.runStage(stageCtx, sessionID, "priority", valid, func(ctx context.Context, r *eventResult) {
		r.priority = o.priority.Calculate(ctx, r.event)
	})
	stageTimedOut = stageTimedOut || timedOut

	o.setPhase(sessionID, assessment.PhaseRiskAssessment, assessment.StatusInProgress)
	valid, timedOut = o.runStage(stageCtx, sessionID, "risk", valid, func(ctx context.Context, r *eventResult) {
		r.risk = o.risk.Assess(ctx, r.event)
	})
	stageTimedOut = stageTimedOut || timedOut

	if len(valid) == 0 {
		status := assessment.StatusFailed
		if ctx.Err() != nil || stageCtx.Err() != nil {
			status = assessment.StatusTimeout
		}
		o.finish(sessionID, status, assessment.PhaseError, "no events survived the analysis stages")
		return
	}

	survivors := make([]*threat.Event, len(valid))
	for i, r := range valid {
		survivors[i] = r.event
	}

	o.setPhase(sessionID, assessment.PhaseCorrelationAnalysis, assessment.StatusInProgress)
	analysis := o.correlation.Analyze(ctx, survivors)
	metrics.CorrelationsFound.Observe(float64(len(analysis.Correlations)))

	if o.cfg.EnableAIEnhancement {
		o.setPhase(sessionID, assessment.PhaseAIEnhancement, assessment.StatusInProgress)
		if err := o.correlation.EnhancePatterns(ctx, survivors, analysis); err != nil {
			metrics.AIFallbacks.WithLabelValues("correlation").Inc()
			o.store.update(sessionID, func(s *assessment.OrchestrationSession) {
				s.Warnings = append(s.Warnings, "ai enhancement unavailable: "+err.Error())
			})
		}
	}

	// Completed work is retained, but an exhausted stage budget makes the
	// session terminal state timeout rather than completed.
	status := assessment.StatusCompleted
	if stageTimedOut {
		status = assessment.StatusTimeout
	}

	o.setPhase(sessionID, assessment.PhaseFinalization, assessment.StatusInProgress)
	o.finalize(sessionID, valid, analysis, start, status, includePredictions)
}

// stageOutcome is one event's result from a pipeline stage.
type stageOutcome struct {
	result *eventResult
	err    error
}

// runStage fans fn out over the pending events under the concurrency limit,
// isolating panics per event. Events whose stage did not run before the
// budget expired are discarded with a warning; the second return value
// reports whether that happened so the session can finish as timed out.
func (o *Orchestrator) runStage(ctx context.Context, sessionID, stage string, pending []*eventResult, fn func(context.Context, *eventResult)) ([]*eventResult, bool) {
	results := make(chan stageOutcome, len(pending))
	launched := 0

	for _, r := range pending {
		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			o.recordStageTimeout(sessionID, stage, len(pending)-launched)
			return o.collectStage(sessionID, stage, results, launched), true
		}
		launched++
		go func(r *eventResult) {
			defer func() { <-o.sem }()
			defer func() {
				if p := recover(); p != nil {
					results <- stageOutcome{result: r, err: common.NewError(common.CodeFatal, "stage panic", map[string]interface{}{
						"stage":     stage,
						"threat_id": r.event.ID,
						"panic":     fmt.Sprint(p),
					})}
				}
			}()
			start := time.Now()
			fn(ctx, r)
			metrics.AnalysisDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
			results <- stageOutcome{result: r}
		}(r)
	}
	return o.collectStage(sessionID, stage, results, launched), false
}

func (o *Orchestrator) collectStage(sessionID, stage string, results <-chan stageOutcome, launched int) []*eventResult {
	survivors := make([]*eventResult, 0, launched)
	for i := 0; i < launched; i++ {
		out := <-results
		if out.err != nil {
			metrics.EventsAssessed.WithLabelValues("failed").Inc()
			o.logger.Error("event failed in stage",
				zap.String("session_id", sessionID),
				zap.String("stage", stage),
				zap.String("threat_id", out.result.event.ID),
				zap.Error(out.err),
			)
			o.store.update(sessionID, func(s *assessment.OrchestrationSession) {
				s.Errors = append(s.Errors, out.err.Error())
				s.Metrics.EventsFailed++
			})
			continue
		}
		survivors = append(survivors, out.result)
	}
	// Keep event order stable across stages.
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].event.ID < survivors[j].event.ID })
	return survivors
}

func (o *Orchestrator) recordStageTimeout(sessionID, stage string, discarded int) {
	err := common.NewError(common.CodeStageTimeout, "stage budget exhausted", map[string]interface{}{
		"stage":     stage,
		"discarded": discarded,
	})
	o.logger.Warn("stage budget exhausted",
		zap.String("session_id", sessionID),
		zap.String("stage", stage),
		zap.Int("discarded", discarded),
	)
	o.store.update(sessionID, func(s *assessment.OrchestrationSession) {
		s.Warnings = append(s.Warnings, err.Error())
		s.Metrics.EventsFailed += discarded
	})
}

// finalize aggregates per-event results and correlation context into the
// session, persists a snapshot, and publishes the summary. The terminal
// status is timeout when a stage budget expired along the way, completed
// otherwise; either way the surviving assessments are kept.
func (o *Orchestrator) finalize(sessionID string, results []*eventResult, analysis *assessment.CorrelationAnalysis, start time.Time, status assessment.SessionStatus, includePredictions bool) {
	assessments := make(map[string]*assessment.ComprehensiveAssessment, len(results))
	var confSum, qualitySum float64
	for _, r := range results {
		assessments[r.event.ID] = o.comprehensive(r, analysis, includePredictions)
		confSum += r.analysis.ConfidenceScore
		qualitySum += r.event.DataQualityScore
		metrics.EventsAssessed.WithLabelValues("assessed").Inc()
	}

	now := o.clock.Now().UTC()
	duration := now.Sub(start).Seconds()

	o.store.update(sessionID, func(s *assessment.OrchestrationSession) {
		s.Assessments = assessments
		s.Correlation = analysis
		s.Metrics.EventsAssessed = len(results)
		s.Metrics.AverageConfidence = confSum / float64(len(results))
		s.Metrics.AverageDataQuality = qualitySum / float64(len(results))
		if s.Metrics.EventsCollected > 0 {
			s.Metrics.CompletenessRatio = float64(len(results)) / float64(s.Metrics.EventsCollected)
		}
		s.Metrics.CorrelationsFound = len(analysis.Correlations)
		s.Metrics.ClustersFound = len(analysis.Clusters)
		s.Metrics.DurationSeconds = duration
		s.Phase = assessment.PhaseComplete
		s.Status = status
		s.EndedAt = &now
	})

	metrics.SessionDuration.Observe(duration)
	metrics.SessionsFinished.WithLabelValues(string(status)).Inc()
	metrics.ActiveSessions.Dec()

	final := o.store.get(sessionID)
	o.persistAndPublish(final)

	o.logger.Info("orchestration session finished",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)),
		zap.Int("assessed", len(results)),
		zap.Int("correlations", len(analysis.Correlations)),
		zap.Float64("duration_s", duration),
	)
}

// persistAndPublish saves the snapshot and emits the summary. Both are
// best-effort; failures become session warnings.
func (o *Orchestrator) persistAndPublish(session *assessment.OrchestrationSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if o.snapshots != nil {
		if err := o.snapshots.Save(ctx, session); err != nil {
			o.logger.Warn("snapshot save failed", zap.String("session_id", session.SessionID), zap.Error(err))
			o.store.update(session.SessionID, func(s *assessment.OrchestrationSession) {
				s.Warnings = append(s.Warnings, "snapshot save failed: "+err.Error())
			})
		}
	}
	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, session); err != nil {
			o.logger.Warn("summary publish failed", zap.String("session_id", session.SessionID), zap.Error(err))
			o.store.update(session.SessionID, func(s *assessment.OrchestrationSession) {
				s.Warnings = append(s.Warnings, "summary publish failed: "+err.Error())
			})
		}
	}
}

// comprehensive merges one event's results with its correlation context and
// derives action items.
func (o *Orchestrator) comprehensive(r *eventResult, analysis *assessment.CorrelationAnalysis, includePredictions bool) *assessment.ComprehensiveAssessment {
	id := r.event.ID

	// The cached risk assessment is shared; trim a copy, not the original.
	riskResult := r.risk
	if !includePredictions {
		trimmed := *r.risk
		trimmed.PredictedSeries = nil
		riskResult = &trimmed
	}

	related := make(map[string]struct{})
	maxCorr := 0.0
	for _, c := range analysis.Correlations {
		if !c.Involves(id) {
			continue
		}
		related[c.Other(id)] = struct{}{}
		if c.Score > maxCorr {
			maxCorr = c.Score
		}
	}
	relatedIDs := make([]string, 0, len(related))
	for rid := range related {
		relatedIDs = append(relatedIDs, rid)
	}
	sort.Strings(relatedIDs)

	ca := &assessment.ComprehensiveAssessment{
		ThreatID:            id,
		Analysis:            r.analysis,
		Priority:            r.priority,
		Risk:                riskResult,
		RelatedThreatIDs:    relatedIDs,
		CorrelationStrength: assessment.StrengthFromScore(maxCorr),
		FinalSeverity:       r.analysis.SeverityScore,
		FinalPriority:       r.priority.Level,
		FinalRisk:           r.risk.Level,
	}

	if ca.FinalPriority == assessment.PriorityCritical {
		ca.ActionItems = append(ca.ActionItems, "escalate to continuous monitoring")
	}
	if r.risk.OverallRiskScore >= 0.8 {
		ca.ActionItems = append(ca.ActionItems, "activate mitigation planning")
	}
	if maxCorr > 0.6 {
		ca.ActionItems = append(ca.ActionItems, "watch correlated threats for cascade effects")
	}
	if hours, ok := r.event.HoursToImpact(); ok && hours < 24 {
		ca.ActionItems = append(ca.ActionItems, "initiate emergency response protocol")
	}

	ca.RequiresMonitoring = ca.FinalPriority == assessment.PriorityCritical ||
		ca.FinalPriority == assessment.PriorityHigh ||
		ca.FinalRisk == assessment.RiskCritical ||
		ca.FinalRisk == assessment.RiskHigh

	return ca
}

func (o *Orchestrator) setPhase(sessionID string, phase assessment.SessionPhase, status assessment.SessionStatus) {
	o.store.update(sessionID, func(s *assessment.OrchestrationSession) {
		s.Phase = phase
		s.Status = status
	})
}

// finish drives the session to a terminal failure state.
func (o *Orchestrator) finish(sessionID string, status assessment.SessionStatus, phase assessment.SessionPhase, reason string) {
	now := o.clock.Now().UTC()
	o.store.update(sessionID, func(s *assessment.OrchestrationSession) {
		s.Phase = phase
		s.Status = status
		s.Errors = append(s.Errors, reason)
		s.EndedAt = &now
		s.Metrics.DurationSeconds = now.Sub(s.StartedAt).Seconds()
	})
	metrics.SessionsFinished.WithLabelValues(string(status)).Inc()
	metrics.ActiveSessions.Dec()
	o.logger.Error("orchestration session failed",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)),
		zap.String("reason", reason),
	)
}
