// Package analyzer implements cross-validated per-event threat analysis.
// Three independent estimators run concurrently: a feature-vector heuristic,
// a generative-AI judgment, and a historical-pattern lookup. Their scores are
// blended by confidence weighting; any estimator failure is replaced by a
// documented fallback so the caller never sees an error.
package analyzer

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/skywatch/backend/internal/ai"
	"github.com/skywatch/backend/internal/config"
	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/common"
	"github.com/skywatch/backend/pkg/threat"
)

const estimatorCount = 3

// Analyzer performs cross-validated analysis of single events.
type Analyzer struct {
	cal     config.AnalyzerCalibration
	ai      ai.Completer
	aiCfg   config.AIConfig
	history *HistoryStore
	logger  *zap.Logger
	clock   clockwork.Clock
}

// New creates an Analyzer. A nil clock selects the real clock.
func New(cal config.AnalyzerCalibration, aiCfg config.AIConfig, completer ai.Completer, logger *zap.Logger, clock clockwork.Clock) *Analyzer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Analyzer{
		cal:     cal,
		ai:      completer,
		aiCfg:   aiCfg,
		history: NewHistoryStore(cal.HistoryWindow, clock),
		logger:  logger,
		clock:   clock,
	}
}

// History exposes the store so the orchestrator can report its size.
func (a *Analyzer) History() *HistoryStore { return a.history }

// estimate is one estimator's contribution.
type estimate struct {
	name       string
	score      float64
	confidence float64
	insights   []string
	recs       []string
	err        error
}

// Analyze produces an AnalysisResult for the event. It never returns an
// error: estimator failures and timeouts degrade confidence and are recorded
// in DegradedReasons instead.
func (a *Analyzer) Analyze(ctx context.Context, ev *threat.Event) *assessment.AnalysisResult {
	ctx, cancel := context.WithTimeout(ctx, a.cal.Timeout)
	defer cancel()

	results := make(chan estimate, estimatorCount)
	go a.runEstimator(ctx, results, "pattern", func() estimate {
		score, conf := patternScore(ev)
		return estimate{score: score, confidence: conf}
	})
	go a.runEstimator(ctx, results, "ai", func() estimate {
		return a.aiEstimate(ctx, ev)
	})
	go a.runEstimator(ctx, results, "history", func() estimate {
		score, conf, ok := a.history.Lookup(ev)
		if !ok {
			return estimate{err: common.NewError(common.CodeEstimator, "no comparable history", nil)}
		}
		return estimate{score: score, confidence: conf}
	})

	estimates := make([]estimate, 0, estimatorCount)
	var degraded []string
	for i := 0; i < estimatorCount; i++ {
		select {
		case est := <-results:
			if est.err != nil {
				degraded = append(degraded, fmt.Sprintf("%s estimator failed: %v", est.name, est.err))
				est = a.fallback(est.name)
			}
			estimates = append(estimates, est)
		case <-ctx.Done():
			// Remaining estimators missed the wall-clock budget; their
			// goroutines observe ctx and exit on their own.
			for ; i < estimatorCount; i++ {
				degraded = append(degraded, "estimator timed out")
				estimates = append(estimates, a.fallback("timeout"))
			}
		}
	}

	result := a.compose(ev, estimates, degraded)
	a.history.Record(ev, result)
	return result
}

// runEstimator executes one estimator with a panic guard, tagging its output.
func (a *Analyzer) runEstimator(ctx context.Context, out chan<- estimate, name string, fn func() estimate) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("estimator panicked",
				zap.String("estimator", name),
				zap.Any("panic", r),
			)
			select {
			case out <- estimate{name: name, err: common.NewError(common.CodeEstimator, "estimator panic", map[string]interface{}{"panic": fmt.Sprint(r)})}:
			case <-ctx.Done():
			}
		}
	}()

	est := fn()
	est.name = name
	select {
	case out <- est:
	case <-ctx.Done():
	}
}

// fallback is the documented replacement for a failed estimator.
func (a *Analyzer) fallback(name string) estimate {
	return estimate{
		name:       name,
		score:      a.cal.FallbackScore,
		confidence: a.cal.FallbackConfidence,
	}
}

// aiJudgment is the JSON contract expected inside the completion text.
type aiJudgment struct {
	SeverityScore   float64  `json:"severity_score"`
	Confidence      float64  `json:"confidence"`
	RiskFactors     []string `json:"risk_factors"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// aiEstimate delegates judgment to the completion collaborator.
func (a *Analyzer) aiEstimate(ctx context.Context, ev *threat.Event) estimate {
	prompt := buildAnalysisPrompt(ev)
	text, err := a.ai.Complete(ctx, ai.CompletionRequest{
		Prompt:      prompt,
		Model:       a.aiCfg.Model,
		Temperature: a.aiCfg.Temperature,
		MaxTokens:   a.aiCfg.MaxTokens,
	})
	if err != nil {
		return estimate{err: common.WrapWithCode(err, common.CodeEstimator, "ai completion failed", nil)}
	}

	var judgment aiJudgment
	if err := ai.ExtractJSON(text, &judgment); err != nil {
		return estimate{err: common.WrapWithCode(err, common.CodeEstimator, "unparseable ai judgment", nil)}
	}

	return estimate{
		score:      common.Clamp01(judgment.SeverityScore),
		confidence: common.Clamp01(judgment.Confidence),
		insights:   append(judgment.RiskFactors, judgment.Insights...),
		recs:       judgment.Recommendations,
	}
}

func buildAnalysisPrompt(ev *threat.Event) string {
	coords := "unknown"
	if ev.Coordinates != nil {
		coords = fmt.Sprintf("%.4f,%.4f", ev.Coordinates.Lat, ev.Coordinates.Lng)
	}
	tti := "unknown"
	if hrs, ok := ev.HoursToImpact(); ok {
		tti = fmt.Sprintf("%.1fh", hrs)
	}
	return fmt.Sprintf(
		"Assess this hazard event and answer with a single JSON object "+
			"{\"severity_score\":0..1,\"confidence\":0..1,\"risk_factors\":[],\"insights\":[],\"recommendations\":[]}.\n"+
			"type=%s severity=%s probability=%.2f coordinates=%s time_to_impact=%s\ntitle=%s\ndescription=%s",
		ev.Type, ev.Severity, ev.ImpactProbability, coords, tti,
		ai.PromptBudget(ev.Title, 200), ai.PromptBudget(ev.Description, 600),
	)
}

// compose blends the estimator outputs into the final result. Each
// estimator's weight is its own confidence normalized against the sum of all
// confidences, so a low-confidence estimator contributes proportionally less.
func (a *Analyzer) compose(ev *threat.Event, estimates []estimate, degraded []string) *assessment.AnalysisResult {
	var confSum float64
	for _, est := range estimates {
		confSum += est.confidence
	}

	var blended float64
	if confSum > 0 {
		for _, est := range estimates {
			blended += est.score * (est.confidence / confSum)
		}
	} else {
		blended = a.cal.FallbackScore
	}

	overallConf := confSum / float64(len(estimates))
	f := extractFeatures(ev)

	var insights, recs []string
	for _, est := range estimates {
		insights = append(insights, est.insights...)
		recs = append(recs, est.recs...)
	}
	if len(recs) == 0 {
		recs = defaultRecommendations(blended)
	}

	return &assessment.AnalysisResult{
		ThreatID:          ev.ID,
		SeverityScore:     common.Clamp01(blended),
		ImpactProbability: common.Clamp01(ev.ImpactProbability),
		DamagePotential:   common.Clamp01((f.severity + f.size + f.velocity) / 3),
		TimeCriticality:   common.Clamp01(f.time),
		ConfidenceLevel:   assessment.ConfidenceFromScore(overallConf),
		ConfidenceScore:   common.Clamp01(overallConf),
		RiskFactors:       riskFactors(ev),
		Insights:          insights,
		Recommendations:   recs,
		DegradedReasons:   degraded,
		Timestamp:         a.clock.Now().UTC(),
	}
}

func defaultRecommendations(score float64) []string {
	switch {
	case score >= 0.8:
		return []string{"escalate to continuous monitoring", "notify response coordinators"}
	case score >= 0.6:
		return []string{"increase observation cadence"}
	case score >= 0.4:
		return []string{"schedule routine follow-up"}
	default:
		return []string{"monitor passively"}
	}
}
