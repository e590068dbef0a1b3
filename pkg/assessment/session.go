package assessment

import "time"

// SessionPhase is the orchestrator state machine position.
type SessionPhase string

const (
	PhaseInitialization      SessionPhase = "initialization"
	PhaseDataCollection      SessionPhase = "data_collection"
	PhaseThreatAnalysis      SessionPhase = "threat_analysis"
	PhasePriorityCalculation SessionPhase = "priority_calculation"
	PhaseRiskAssessment      SessionPhase = "risk_assessment"
	PhaseCorrelationAnalysis SessionPhase = "correlation_analysis"
	PhaseAIEnhancement       SessionPhase = "ai_enhancement"
	PhaseFinalization        SessionPhase = "finalization"
	PhaseComplete            SessionPhase = "complete"
	PhaseError               SessionPhase = "error"
)

// SessionStatus is the externally visible lifecycle state of a session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
	StatusTimeout    SessionStatus = "timeout"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// SessionMetrics are the aggregates computed during finalization.
type SessionMetrics struct {
	EventsCollected   int     `json:"events_collected"`
	EventsAssessed    int     `json:"events_assessed"`
	EventsFailed      int     `json:"events_failed"`
	AverageConfidence float64 `json:"average_confidence"`
	AverageDataQuality float64 `json:"average_data_quality"`
	CompletenessRatio float64 `json:"completeness_ratio"`
	CorrelationsFound int     `json:"correlations_found"`
	ClustersFound     int     `json:"clusters_found"`
	DurationSeconds   float64 `json:"duration_seconds"`
}

// OrchestrationSession is one pollable end-to-end pipeline invocation.
// A session is created once per orchestration call and is mutated only by
// the single goroutine running that call; readers receive snapshots.
type OrchestrationSession struct {
	SessionID    string                              `json:"session_id"`
	Phase        SessionPhase                        `json:"phase"`
	Status       SessionStatus                       `json:"status"`
	Sources      []string                            `json:"sources,omitempty"`
	LookbackDays int                                 `json:"lookback_days"`
	Metrics      SessionMetrics                      `json:"metrics"`
	Assessments  map[string]*ComprehensiveAssessment `json:"assessments,omitempty"`
	Correlation  *CorrelationAnalysis                `json:"correlation_analysis,omitempty"`
	Errors       []string                            `json:"errors,omitempty"`
	Warnings     []string                            `json:"warnings,omitempty"`
	StartedAt    time.Time                           `json:"started_at"`
	EndedAt      *time.Time                          `json:"ended_at,omitempty"`
}

// Clone returns a deep-enough copy for handing to concurrent readers: the
// maps and slices are copied, while the immutable per-event results are
// shared by pointer.
func (s *OrchestrationSession) Clone() *OrchestrationSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.Assessments != nil {
		out.Assessments = make(map[string]*ComprehensiveAssessment, len(s.Assessments))
		for k, v := range s.Assessments {
			out.Assessments[k] = v
		}
	}
	out.Errors = append([]string(nil), s.Errors...)
	out.Warnings = append([]string(nil), s.Warnings...)
	out.Sources = append([]string(nil), s.Sources...)
	if s.EndedAt != nil {
		ended := *s.EndedAt
		out.EndedAt = &ended
	}
	return &out
}
