// Package correlation implements relationship discovery across a batch of
// hazard events: spatial, temporal, causal, and similarity analysis, graph
// clustering, geographic hotspot detection, cascade sequencing, and an
// optional AI pattern pass.
package correlation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/skywatch/backend/internal/ai"
	"github.com/skywatch/backend/internal/config"
	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/threat"
)

// Engine runs batch correlation analysis. It is constructed once and safe
// for use from a single orchestration goroutine per batch.
type Engine struct {
	cal    config.CorrelationCalibration
	ai     ai.Completer
	aiCfg  config.AIConfig
	logger *zap.Logger
	clock  clockwork.Clock
}

// New creates an Engine. A nil clock selects the real clock.
func New(cal config.CorrelationCalibration, aiCfg config.AIConfig, completer ai.Completer, logger *zap.Logger, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		cal:    cal,
		ai:     completer,
		aiCfg:  aiCfg,
		logger: logger,
		clock:  clock,
	}
}

// Analyze discovers relationships across the whole event set. It runs once
// per batch, after all per-event assessments exist. The AI pattern pass is
// separate (EnhancePatterns) so the orchestrator can toggle it; Analyze
// itself never fails.
func (e *Engine) Analyze(ctx context.Context, events []*threat.Event) *assessment.CorrelationAnalysis {
	now := e.clock.Now()

	// Sort by id so pair iteration, clustering, and cluster ids are
	// deterministic for identical inputs.
	ordered := make([]*threat.Event, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	correlations := e.pairwise(ordered)
	clusters := buildClusters(ordered, correlations)
	hotspots := buildHotspots(ordered, e.cal.HotspotRadiusKm)
	cascades := detectCascades(ordered, e.cal.CascadeMaxGapHours, e.cal.CascadeMinLength)

	var areas []*assessment.CompoundRiskArea
	for _, c := range clusters {
		if c.CompoundRiskScore >= e.cal.CompoundRiskThreshold {
			areas = append(areas, &assessment.CompoundRiskArea{
				ClusterID:         c.ClusterID,
				CompoundRiskScore: c.CompoundRiskScore,
				ThreatCount:       len(c.ThreatIDs),
			})
		}
	}

	confidence, quality := e.batchQuality(ordered)

	return &assessment.CorrelationAnalysis{
		Correlations:      correlations,
		Clusters:          clusters,
		Hotspots:          hotspots,
		Cascades:          cascades,
		CompoundRiskAreas: areas,
		OverallConfidence: confidence,
		QualityLabel:      quality,
		AnalyzedAt:        now.UTC(),
	}
}

// pairwise runs the four analyzers over every pair and keeps correlations at
// or above the significance threshold. Pair ids are normalized so the result
// is order-independent.
func (e *Engine) pairwise(events []*threat.Event) []*assessment.ThreatCorrelation {
	var out []*assessment.ThreatCorrelation
	now := e.clock.Now()

	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			a, b := events[i], events[j]

			if ps, ok := spatialScore(a, b); ok {
				out = e.retain(out, a, b, assessment.CorrelationSpatial, ps, now)
			}
			out = e.retain(out, a, b, assessment.CorrelationTemporal, temporalScore(a, b), now)
			if ps, ok := causalScore(a, b); ok {
				out = e.retain(out, a, b, assessment.CorrelationCausal, ps, now)
			}
			ps := similarityScore(a, b)
			if ps.score >= e.cal.SimilarityThreshold {
				out = e.retain(out, a, b, assessment.CorrelationSimilarity, ps, now)
			}
		}
	}
	return out
}

// retain appends the correlation when it clears the significance threshold.
func (e *Engine) retain(out []*assessment.ThreatCorrelation, a, b *threat.Event, typ assessment.CorrelationType, ps pairScore, now time.Time) []*assessment.ThreatCorrelation {
	if ps.score < e.cal.SignificanceThreshold {
		return out
	}
	id1, id2 := assessment.NormalizePair(a.ID, b.ID)
	return append(out, &assessment.ThreatCorrelation{
		Threat1ID:       id1,
		Threat2ID:       id2,
		Type:            typ,
		Strength:        assessment.StrengthFromScore(ps.score),
		Score:           ps.score,
		DistanceKm:      ps.distanceKm,
		SpatialOverlap:  ps.spatialOverlap,
		TimeGapHours:    ps.timeGapHours,
		OverlapHours:    ps.overlapHours,
		CausalDirection: ps.causalDirection,
		SharedTraits:    ps.sharedTraits,
		CreatedAt:       now.UTC(),
		ExpiresAt:       now.Add(e.cal.CorrelationTTL).UTC(),
	})
}

// batchQuality derives the overall confidence level and quality label from
// the batch's declared confidence and data quality.
func (e *Engine) batchQuality(events []*threat.Event) (assessment.ConfidenceLevel, string) {
	if len(events) == 0 {
		return assessment.ConfidenceVeryLow, "empty"
	}
	var conf, quality float64
	for _, ev := range events {
		conf += ev.ConfidenceScore
		quality += ev.DataQualityScore
	}
	conf /= float64(len(events))
	quality /= float64(len(events))

	label := "low"
	switch {
	case quality >= 0.8:
		label = "high"
	case quality >= 0.5:
		label = "moderate"
	}
	return assessment.ConfidenceFromScore(conf), label
}

// EnhancePatterns sends a compact textual summary of the top threats and
// correlations to the completion collaborator and parses structured pattern
// annotations into the analysis. Any failure degrades to the empty pattern
// set and is reported so the caller can record a warning.
func (e *Engine) EnhancePatterns(ctx context.Context, events []*threat.Event, analysis *assessment.CorrelationAnalysis) error {
	if len(events) == 0 {
		return nil
	}

	summary := e.buildSummary(events, analysis.Correlations)
	prompt := fmt.Sprintf(
		"Review this hazard batch summary and answer with a single JSON object "+
			"{\"hidden_patterns\":[],\"cascades\":[],\"early_warnings\":[]}.\n%s",
		summary,
	)

	text, err := e.ai.Complete(ctx, ai.CompletionRequest{
		Prompt:      prompt,
		Model:       e.aiCfg.Model,
		Temperature: e.aiCfg.Temperature,
		MaxTokens:   e.aiCfg.MaxTokens,
	})
	if err != nil {
		e.logger.Debug("ai pattern pass unavailable", zap.Error(err))
		return err
	}

	var patterns assessment.AIPatterns
	if err := ai.ExtractJSON(text, &patterns); err != nil {
		e.logger.Debug("ai pattern pass unparseable", zap.Error(err))
		return err
	}
	analysis.AIPatterns = patterns
	return nil
}

const (
	summaryTopThreats      = 10
	summaryTopCorrelations = 10
)

func (e *Engine) buildSummary(events []*threat.Event, correlations []*assessment.ThreatCorrelation) string {
	bySeverity := make([]*threat.Event, len(events))
	copy(bySeverity, events)
	sort.Slice(bySeverity, func(i, j int) bool {
		return bySeverity[i].Severity.Score() > bySeverity[j].Severity.Score()
	})
	if len(bySeverity) > summaryTopThreats {
		bySeverity = bySeverity[:summaryTopThreats]
	}

	byScore := make([]*assessment.ThreatCorrelation, len(correlations))
	copy(byScore, correlations)
	sort.Slice(byScore, func(i, j int) bool { return byScore[i].Score > byScore[j].Score })
	if len(byScore) > summaryTopCorrelations {
		byScore = byScore[:summaryTopCorrelations]
	}

	var sb strings.Builder
	sb.WriteString("threats:\n")
	for _, ev := range bySeverity {
		fmt.Fprintf(&sb, "- %s type=%s severity=%s prob=%.2f %s\n",
			ev.ID, ev.Type, ev.Severity, ev.ImpactProbability, ai.PromptBudget(ev.Title, 80))
	}
	sb.WriteString("correlations:\n")
	for _, c := range byScore {
		fmt.Fprintf(&sb, "- %s<->%s %s score=%.2f\n", c.Threat1ID, c.Threat2ID, c.Type, c.Score)
	}
	return sb.String()
}
