package assessment

import "time"

// AnalysisResult is the cross-validated per-event analysis produced by the
// threat analyzer. All score fields are clamped to [0, 1].
type AnalysisResult struct {
	ThreatID        string          `json:"threat_id"`
	SeverityScore   float64         `json:"severity_score"`
	ImpactProbability float64       `json:"impact_probability"`
	DamagePotential float64         `json:"damage_potential"`
	TimeCriticality float64         `json:"time_criticality"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	ConfidenceScore float64         `json:"confidence_score"`
	RiskFactors     []string        `json:"risk_factors,omitempty"`
	Insights        []string        `json:"insights,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
	// DegradedReasons records estimator fallbacks applied during analysis.
	DegradedReasons []string  `json:"degraded_reasons,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// SimulationResult summarizes a Monte Carlo refinement run.
type SimulationResult struct {
	Trials              int     `json:"trials"`
	MeanImpactProbability float64 `json:"mean_impact_probability"`
	StdDev              float64 `json:"std_dev"`
	Interval95Low       float64 `json:"interval_95_low"`
	Interval95High      float64 `json:"interval_95_high"`
	Confidence          float64 `json:"confidence"`
}

// PriorityScore is the urgency ranking for a single event.
type PriorityScore struct {
	ThreatID          string        `json:"threat_id"`
	OverallScore      float64       `json:"overall_score"`
	Level             PriorityLevel `json:"priority_level"`
	ImpactProbability float64       `json:"impact_probability"`
	DamagePotential   float64       `json:"damage_potential"`
	TimeCriticality   float64       `json:"time_criticality"`
	DataReliability   float64       `json:"data_reliability"`
	UrgencyMultiplier float64       `json:"urgency_multiplier"`
	ImpactCategory    string        `json:"impact_category"`
	Simulation        *SimulationResult `json:"simulation_results,omitempty"`
	CalculatedAt      time.Time     `json:"calculated_at"`
}

// ConfidenceInterval is a symmetric interval around the risk point estimate.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	ConfidenceLevel float64 `json:"confidence_level"`
	Mean            float64 `json:"mean"`
}

// RiskAssessment is the uncertainty-aware magnitude-of-harm estimate for a
// single event. Assessments are time-bounded: past ExpiresAt they are stale
// and must be recomputed on next access.
type RiskAssessment struct {
	ThreatID         string               `json:"threat_id"`
	OverallRiskScore float64              `json:"overall_risk_score"`
	Level            RiskLevel            `json:"risk_level"`
	Interval         ConfidenceInterval   `json:"confidence_interval"`
	CategoryScores   map[string]float64   `json:"category_scores"`
	Trend            EvolutionTrend       `json:"evolution_trend"`
	PredictedScores  map[time.Time]float64 `json:"-"`
	// PredictedSeries is the forecast in timestamp order; the map above is
	// the lookup form, this is the wire form.
	PredictedSeries []ForecastPoint `json:"predicted_scores,omitempty"`
	VolatilityIndex  float64              `json:"volatility_index"`
	CreatedAt        time.Time            `json:"created_at"`
	ExpiresAt        time.Time            `json:"expires_at"`
}

// Expired reports whether the assessment is stale at the given instant.
func (r *RiskAssessment) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// ForecastPoint is one extrapolated risk score, used for JSON encoding of
// the forecast series in timestamp order.
type ForecastPoint struct {
	At    time.Time `json:"at"`
	Score float64   `json:"score"`
}

// ComprehensiveAssessment aggregates every per-event result plus the
// relationships discovered for it during batch correlation.
type ComprehensiveAssessment struct {
	ThreatID            string              `json:"threat_id"`
	Analysis            *AnalysisResult     `json:"analysis,omitempty"`
	Priority            *PriorityScore      `json:"priority,omitempty"`
	Risk                *RiskAssessment     `json:"risk,omitempty"`
	RelatedThreatIDs    []string            `json:"related_threat_ids,omitempty"`
	CorrelationStrength CorrelationStrength `json:"correlation_strength"`
	FinalSeverity       float64             `json:"final_severity"`
	FinalPriority       PriorityLevel       `json:"final_priority"`
	FinalRisk           RiskLevel           `json:"final_risk"`
	ActionItems         []string            `json:"action_items,omitempty"`
	RequiresMonitoring  bool                `json:"requires_monitoring"`
}
