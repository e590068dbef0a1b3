// Package assessment defines the derived entities produced by the analysis
// pipeline: per-event analysis results, priority and risk scores, pairwise
// correlations, clusters, and orchestration sessions.
package assessment

// ConfidenceLevel is the categorical confidence attached to an analysis.
type ConfidenceLevel string

const (
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
)

// ConfidenceFromScore buckets a [0,1] confidence into the five levels.
func ConfidenceFromScore(score float64) ConfidenceLevel {
	switch {
	case score >= 0.9:
		return ConfidenceVeryHigh
	case score >= 0.7:
		return ConfidenceHigh
	case score >= 0.5:
		return ConfidenceMedium
	case score >= 0.3:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// PriorityLevel is the urgency bucket derived from the overall priority score.
type PriorityLevel string

const (
	PriorityCritical PriorityLevel = "critical"
	PriorityHigh     PriorityLevel = "high"
	PriorityMedium   PriorityLevel = "medium"
	PriorityLow      PriorityLevel = "low"
	PriorityMinimal  PriorityLevel = "minimal"
)

// PriorityFromScore maps a final priority score to its level. Thresholds are
// inclusive at the lower bound: exactly 0.80 is critical.
func PriorityFromScore(score float64) PriorityLevel {
	switch {
	case score >= 0.8:
		return PriorityCritical
	case score >= 0.6:
		return PriorityHigh
	case score >= 0.4:
		return PriorityMedium
	case score >= 0.2:
		return PriorityLow
	default:
		return PriorityMinimal
	}
}

// RiskLevel buckets the overall risk score.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
	RiskMinimal  RiskLevel = "minimal"
)

// RiskFromScore maps a risk score to its level using the same band edges as
// priority so the two axes read comparably in reports.
func RiskFromScore(score float64) RiskLevel {
	switch {
	case score >= 0.8:
		return RiskCritical
	case score >= 0.6:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	case score >= 0.2:
		return RiskLow
	default:
		return RiskMinimal
	}
}

// CorrelationStrength buckets a pairwise correlation score.
type CorrelationStrength string

const (
	StrengthVeryStrong CorrelationStrength = "very_strong"
	StrengthStrong     CorrelationStrength = "strong"
	StrengthModerate   CorrelationStrength = "moderate"
	StrengthWeak       CorrelationStrength = "weak"
	StrengthVeryWeak   CorrelationStrength = "very_weak"
)

// StrengthFromScore buckets a correlation score into the five strengths.
func StrengthFromScore(score float64) CorrelationStrength {
	switch {
	case score >= 0.8:
		return StrengthVeryStrong
	case score >= 0.6:
		return StrengthStrong
	case score >= 0.4:
		return StrengthModerate
	case score >= 0.2:
		return StrengthWeak
	default:
		return StrengthVeryWeak
	}
}

// EvolutionTrend classifies short-term risk movement.
type EvolutionTrend string

const (
	TrendRapidlyIncreasing EvolutionTrend = "rapidly_increasing"
	TrendIncreasing        EvolutionTrend = "increasing"
	TrendStable            EvolutionTrend = "stable"
	TrendDecreasing        EvolutionTrend = "decreasing"
	TrendRapidlyDecreasing EvolutionTrend = "rapidly_decreasing"
)
