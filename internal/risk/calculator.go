// Package risk implements uncertainty-aware magnitude-of-harm scoring with
// short-term trend forecasting. Assessments carry a TTL and are recomputed
// on access once expired.
package risk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/skywatch/backend/internal/ai"
	"github.com/skywatch/backend/internal/config"
	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/common"
	"github.com/skywatch/backend/pkg/threat"
)

// Calculator computes risk assessments.
type Calculator struct {
	cal    config.RiskCalibration
	ai     ai.Completer
	aiCfg  config.AIConfig
	logger *zap.Logger
	clock  clockwork.Clock

	mu      sync.Mutex
	cache   map[string]*assessment.RiskAssessment
	history map[string][]samplePoint
}

// New creates a Calculator. A nil clock selects the real clock.
func New(cal config.RiskCalibration, aiCfg config.AIConfig, completer ai.Completer, logger *zap.Logger, clock clockwork.Clock) *Calculator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Calculator{
		cal:     cal,
		ai:      completer,
		aiCfg:   aiCfg,
		logger:  logger,
		clock:   clock,
		cache:   make(map[string]*assessment.RiskAssessment),
		history: make(map[string][]samplePoint),
	}
}

// Assess returns the current risk assessment for the event, reusing the
// cached one while it is fresh and recomputing once expired. It never
// returns an error: AI adjustment failures fall back to a neutral factor.
func (c *Calculator) Assess(ctx context.Context, ev *threat.Event) *assessment.RiskAssessment {
	now := c.clock.Now()

	c.mu.Lock()
	if cached, ok := c.cache[ev.ID]; ok && !cached.Expired(now) {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	result := c.compute(ctx, ev, now)

	c.mu.Lock()
	c.cache[ev.ID] = result
	samples := append(c.history[ev.ID], samplePoint{at: now, score: result.OverallRiskScore})
	c.history[ev.ID] = trimWindow(samples, now.Add(-c.cal.HistoryWindow))
	c.mu.Unlock()

	return result
}

// factor weights per threat type; re-normalized so absent emphasis still
// sums to one.
type factorWeights struct {
	severity    float64
	probability float64
	impact      float64
	time        float64
	uncertainty float64
}

var typeWeights = map[threat.Type]factorWeights{
	threat.TypeAsteroid:       {severity: 0.25, probability: 0.30, impact: 0.25, time: 0.15, uncertainty: 0.05},
	threat.TypeEarthEvent:     {severity: 0.30, probability: 0.20, impact: 0.30, time: 0.10, uncertainty: 0.10},
	threat.TypeSpaceWeather:   {severity: 0.25, probability: 0.25, impact: 0.20, time: 0.20, uncertainty: 0.10},
	threat.TypeOrbitalDebris:  {severity: 0.20, probability: 0.30, impact: 0.25, time: 0.20, uncertainty: 0.05},
	threat.TypeCommDisruption: {severity: 0.25, probability: 0.20, impact: 0.30, time: 0.15, uncertainty: 0.10},
}

// Provider reliability priors; unknown sources get a conservative default.
var sourceReliability = map[string]float64{
	"nasa_neo":   0.95,
	"nasa_donki": 0.92,
	"nasa_eonet": 0.90,
	"esa":        0.90,
	"usgs":       0.93,
	"noaa":       0.90,
	"spacex":     0.85,
}

const defaultSourceReliability = 0.7

func (c *Calculator) compute(ctx context.Context, ev *threat.Event, now time.Time) *assessment.RiskAssessment {
	factors := c.factorScores(ev)
	weights := normalizedWeights(ev.Type)

	adaptive := factors["severity"]*weights.severity +
		factors["probability"]*weights.probability +
		factors["impact"]*weights.impact +
		factors["time"]*weights.time +
		factors["uncertainty"]*weights.uncertainty
	adaptive = common.Clamp01(adaptive)

	c.mu.Lock()
	samples := append([]samplePoint(nil), c.history[ev.ID]...)
	c.mu.Unlock()
	samples = trimWindow(samples, now.Add(-c.cal.HistoryWindow))

	trend, slope := c.classifyTrend(samples, adaptive)
	vol := volatility(samples)

	aiAdjust := c.aiAdjustment(ctx, ev, adaptive)
	trendMult := trendMultiplier(trend)

	// Volatile or uncertain threats carry a small additive premium so they
	// are not under-ranked while evidence is unstable.
	volatilityBonus := 0.1 * common.Clamp01(vol*2)
	uncertaintyBonus := 0.05 * factors["uncertainty"]

	final := common.Clamp01(adaptive*aiAdjust*trendMult + volatilityBonus + uncertaintyBonus)

	interval := c.confidenceInterval(ev, factors, final)
	forecast := c.forecast(final, slope, now)

	return &assessment.RiskAssessment{
		ThreatID:         ev.ID,
		OverallRiskScore: final,
		Level:            assessment.RiskFromScore(final),
		Interval:         interval,
		CategoryScores:   factors,
		Trend:            trend,
		PredictedScores:  forecast,
		PredictedSeries:  ForecastSeries(forecast),
		VolatilityIndex:  common.Clamp01(vol),
		CreatedAt:        now.UTC(),
		ExpiresAt:        now.Add(c.cal.TTL).UTC(),
	}
}

// factorScores computes the five normalized risk factors.
func (c *Calculator) factorScores(ev *threat.Event) map[string]float64 {
	impact := ev.Severity.Score()
	if d, ok := ev.PayloadFloat("diameter_m"); ok && d > 0 {
		impact = common.Clamp01(impact*0.7 + 0.3*common.Clamp01(d/500))
	}
	if m, ok := ev.PayloadFloat("magnitude"); ok {
		impact = common.Clamp01(impact*0.7 + 0.3*common.Clamp01(m/9))
	}

	timeScore := 0.2
	if hours, ok := ev.HoursToImpact(); ok {
		switch {
		case hours < 6:
			timeScore = 1.0
		case hours < 24:
			timeScore = 0.8
		case hours < 168:
			timeScore = 0.6
		case hours < 720:
			timeScore = 0.4
		}
	}

	return map[string]float64{
		"severity":    ev.Severity.Score(),
		"probability": common.Clamp01(ev.ImpactProbability),
		"impact":      impact,
		"time":        timeScore,
		"uncertainty": common.Clamp01(1 - (ev.ConfidenceScore+ev.DataQualityScore)/2),
	}
}

func normalizedWeights(t threat.Type) factorWeights {
	w, ok := typeWeights[t]
	if !ok {
		w = factorWeights{severity: 0.25, probability: 0.25, impact: 0.25, time: 0.15, uncertainty: 0.10}
	}
	sum := w.severity + w.probability + w.impact + w.time + w.uncertainty
	if sum == 0 {
		return factorWeights{severity: 0.2, probability: 0.2, impact: 0.2, time: 0.2, uncertainty: 0.2}
	}
	return factorWeights{
		severity:    w.severity / sum,
		probability: w.probability / sum,
		impact:      w.impact / sum,
		time:        w.time / sum,
		uncertainty: w.uncertainty / sum,
	}
}

// classifyTrend fits the recent history and buckets the day-over-day
// percentage change. The slope (per hour) is returned for forecasting.
func (c *Calculator) classifyTrend(samples []samplePoint, current float64) (assessment.EvolutionTrend, float64) {
	slope, _, ok := linearFit(samples)
	if !ok {
		return assessment.TrendStable, 0
	}

	base := current
	if base < 0.01 {
		base = 0.01
	}
	dailyPct := slope * 24 / base * 100

	switch {
	case dailyPct > c.cal.RapidChangePct:
		return assessment.TrendRapidlyIncreasing, slope
	case dailyPct > c.cal.ModerateChangePct:
		return assessment.TrendIncreasing, slope
	case dailyPct < -c.cal.RapidChangePct:
		return assessment.TrendRapidlyDecreasing, slope
	case dailyPct < -c.cal.ModerateChangePct:
		return assessment.TrendDecreasing, slope
	default:
		return assessment.TrendStable, slope
	}
}

func trendMultiplier(trend assessment.EvolutionTrend) float64 {
	switch trend {
	case assessment.TrendRapidlyIncreasing:
		return 1.2
	case assessment.TrendIncreasing:
		return 1.1
	case assessment.TrendDecreasing:
		return 0.9
	case assessment.TrendRapidlyDecreasing:
		return 0.8
	default:
		return 1.0
	}
}

// forecast extrapolates the fitted slope at the calibrated step out to the
// horizon, clamping every point to [0, 1].
func (c *Calculator) forecast(current, slope float64, now time.Time) map[time.Time]float64 {
	out := make(map[time.Time]float64)
	for dt := c.cal.ForecastStep; dt <= c.cal.ForecastHorizon; dt += c.cal.ForecastStep {
		out[now.Add(dt).UTC()] = common.Clamp01(current + slope*dt.Hours())
	}
	return out
}

// confidenceInterval blends three uncertainty sources into a symmetric
// margin: 40% data-confidence gap, 40% mean factor uncertainty, 20%
// source-reliability gap.
func (c *Calculator) confidenceInterval(ev *threat.Event, factors map[string]float64, point float64) assessment.ConfidenceInterval {
	reliability, ok := sourceReliability[ev.Source]
	if !ok {
		reliability = defaultSourceReliability
	}

	blended := 0.4*(1-ev.ConfidenceScore) +
		0.4*factors["uncertainty"] +
		0.2*(1-reliability)
	margin := c.cal.IntervalMargin * blended

	return assessment.ConfidenceInterval{
		Lower:           common.Clamp01(point - margin),
		Upper:           common.Clamp01(point + margin),
		ConfidenceLevel: 0.95,
		Mean:            point,
	}
}

// aiAdjustment asks the completion collaborator for a risk adjustment
// factor; failures fall back to neutral 1.0.
func (c *Calculator) aiAdjustment(ctx context.Context, ev *threat.Event, adaptive float64) float64 {
	prompt := fmt.Sprintf(
		"Given hazard type=%s severity=%s heuristic_risk=%.2f title=%q, "+
			"answer with a single JSON object {\"adjustment\":0.8..1.2}.",
		ev.Type, ev.Severity, adaptive, ai.PromptBudget(ev.Title, 120),
	)
	text, err := c.ai.Complete(ctx, ai.CompletionRequest{
		Prompt:      prompt,
		Model:       c.aiCfg.Model,
		Temperature: c.aiCfg.Temperature,
		MaxTokens:   64,
	})
	if err != nil {
		c.logger.Debug("risk ai adjustment unavailable", zap.String("threat_id", ev.ID), zap.Error(err))
		return 1.0
	}
	var out struct {
		Adjustment float64 `json:"adjustment"`
	}
	if err := ai.ExtractJSON(text, &out); err != nil {
		return 1.0
	}
	return common.ClampRange(out.Adjustment, c.cal.AIAdjustMin, c.cal.AIAdjustMax)
}

// ForecastSeries converts the forecast map into timestamp order for
// stable JSON output.
func ForecastSeries(m map[time.Time]float64) []assessment.ForecastPoint {
	out := make([]assessment.ForecastPoint, 0, len(m))
	for at, score := range m {
		out = append(out, assessment.ForecastPoint{At: at, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func trimWindow(samples []samplePoint, cutoff time.Time) []samplePoint {
	idx := 0
	for idx < len(samples) && samples[idx].at.Before(cutoff) {
		idx++
	}
	return samples[idx:]
}
