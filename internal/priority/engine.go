// Package priority implements urgency scoring for hazard events: four
// weighted type-specific sub-scores, an AI multiplier for medium-and-above
// scores, Monte Carlo refinement for high-risk scores, and a bounded ranked
// queue of every scored event.
package priority

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

// Engine computes priority scores.
type Engine struct {
	cal    config.PriorityCalibration
	ai     ai.Completer
	aiCfg  config.AIConfig
	sim    *Simulator
	queue  *RankedQueue
	logger *zap.Logger
	clock  clockwork.Clock
}

// New creates an Engine. A nil clock selects the real clock; the simulator
// is seeded from it.
func New(cal config.PriorityCalibration, aiCfg config.AIConfig, completer ai.Completer, logger *zap.Logger, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		cal:    cal,
		ai:     completer,
		aiCfg:  aiCfg,
		sim:    NewSimulator(cal.SimulationTrials, clock.Now().UnixNano()),
		queue:  NewRankedQueue(cal.QueueCapacity),
		logger: logger,
		clock:  clock,
	}
}

// Queue exposes the ranked queue for results formatting and health checks.
func (e *Engine) Queue() *RankedQueue { return e.queue }

// Calculate scores the event and records the result in the ranked queue.
// It never returns an error: AI refinement failures leave the heuristic
// score in place.
func (e *Engine) Calculate(ctx context.Context, ev *threat.Event) *assessment.PriorityScore {
	impact := e.impactSubScore(ev)
	damage := e.damageSubScore(ev)
	timeCrit := e.timeSubScore(ev)
	reliability := common.Clamp01((ev.ConfidenceScore + ev.DataQualityScore) / 2)

	score := impact*e.cal.WeightImpactProbability +
		damage*e.cal.WeightDamagePotential +
		timeCrit*e.cal.WeightTimeCriticality +
		reliability*e.cal.WeightDataReliability
	score = common.Clamp01(score)

	// Medium-and-above scores consult the AI-derived multiplier.
	if score > e.cal.AIMultiplierGate {
		if mult, err := e.aiMultiplier(ctx, ev, score); err == nil {
			score = common.Clamp01(score * mult)
		} else {
			e.logger.Warn("ai multiplier unavailable, keeping heuristic score",
				zap.String("threat_id", ev.ID),
				zap.Error(err),
			)
		}
	}

	// High-risk scores get stochastic refinement.
	var sim *assessment.SimulationResult
	if score > e.cal.SimulationGate {
		sim = e.sim.Run(ev, impact)
		delta := common.ClampRange(sim.MeanImpactProbability-impact, -1, 1)
		score = common.Clamp01(score * (1 + delta*e.cal.SimulationMaxAdjust))
	}

	urgency := e.urgencyMultiplier(timeCrit, reliability)
	score = common.Clamp01(score * urgency)

	result := &assessment.PriorityScore{
		ThreatID:          ev.ID,
		OverallScore:      score,
		Level:             assessment.PriorityFromScore(score),
		ImpactProbability: impact,
		DamagePotential:   damage,
		TimeCriticality:   timeCrit,
		DataReliability:   reliability,
		UrgencyMultiplier: urgency,
		ImpactCategory:    impactCategory(ev.Type),
		Simulation:        sim,
		CalculatedAt:      e.clock.Now().UTC(),
	}
	e.queue.Upsert(result)
	return result
}

// impactSubScore applies the type-specific probability rules.
func (e *Engine) impactSubScore(ev *threat.Event) float64 {
	switch ev.Type {
	case threat.TypeAsteroid:
		return asteroidDistanceScore(ev)
	case threat.TypeSpaceWeather:
		return spaceWeatherScore(ev)
	case threat.TypeEarthEvent:
		return earthEventScore(ev)
	case threat.TypeOrbitalDebris, threat.TypeCommDisruption:
		return common.Clamp01(ev.ImpactProbability)
	default:
		return common.Clamp01(ev.ImpactProbability)
	}
}

// asteroidDistanceScore is the distance-band step function for near-Earth
// objects. Absent distance data falls back to the declared probability.
func asteroidDistanceScore(ev *threat.Event) float64 {
	distance, ok := ev.PayloadFloat("distance_km")
	if !ok {
		return common.Clamp01(ev.ImpactProbability)
	}
	switch {
	case distance < 100_000:
		return 0.9
	case distance < 1_000_000:
		return 0.7
	case distance < 5_000_000:
		return 0.5
	case distance < 10_000_000:
		return 0.3
	default:
		return 0.1
	}
}

// spaceWeatherScore normalizes Kp index and solar flux.
func spaceWeatherScore(ev *threat.Event) float64 {
	kp, hasKp := ev.PayloadFloat("kp_index")
	flux, hasFlux := ev.PayloadFloat("solar_flux")
	if !hasKp && !hasFlux {
		return common.Clamp01(ev.ImpactProbability)
	}
	score := 0.0
	if hasKp {
		score += 0.7 * common.Clamp01(kp/9)
	}
	if hasFlux {
		// 300 sfu is an extreme flux reading.
		score += 0.3 * common.Clamp01(flux/300)
	}
	return common.Clamp01(score)
}

// Category factors for terrestrial events, scaled against magnitude.
var earthCategoryFactors = map[string]float64{
	"earthquake": 1.0,
	"tsunami":    1.1,
	"volcano":    0.9,
	"cyclone":    0.8,
	"storm":      0.7,
	"flood":      0.6,
	"wildfire":   0.5,
	"landslide":  0.5,
}

// earthEventScore is category-type-factor times normalized magnitude.
func earthEventScore(ev *threat.Event) float64 {
	magnitude, hasMag := ev.PayloadFloat("magnitude")
	if !hasMag {
		return common.Clamp01(ev.ImpactProbability)
	}
	factor := 0.7
	if category, ok := ev.PayloadString("category"); ok {
		if f, known := earthCategoryFactors[category]; known {
			factor = f
		}
	}
	return common.Clamp01(factor * magnitude / 9)
}

// timeSubScore is the step function over hours-to-impact. Events without a
// known impact window score the floor value.
func (e *Engine) timeSubScore(ev *threat.Event) float64 {
	hours, ok := ev.HoursToImpact()
	if !ok {
		return 0.2
	}
	switch {
	case hours < 6:
		return 1.0
	case hours < 24:
		return 0.8
	case hours < 168:
		return 0.6
	case hours < 720:
		return 0.4
	default:
		return 0.2
	}
}

// damageSubScore estimates magnitude of harm from severity plus physical
// size/energy hints.
func (e *Engine) damageSubScore(ev *threat.Event) float64 {
	base := ev.Severity.Score()
	if diameter, ok := ev.PayloadFloat("diameter_m"); ok && diameter > 0 {
		// A 500m object saturates the size contribution.
		base = common.Clamp01(base*0.7 + 0.3*common.Clamp01(diameter/500))
	}
	if magnitude, ok := ev.PayloadFloat("magnitude"); ok {
		base = common.Clamp01(base*0.7 + 0.3*common.Clamp01(magnitude/9))
	}
	return base
}

// urgencyMultiplier boosts near-term, high-confidence threats, capped by
// calibration (default 1.5x).
func (e *Engine) urgencyMultiplier(timeCrit, reliability float64) float64 {
	mult := 1 + (e.cal.UrgencyMultiplierCap-1)*timeCrit*reliability
	if mult > e.cal.UrgencyMultiplierCap {
		mult = e.cal.UrgencyMultiplierCap
	}
	return mult
}

func impactCategory(t threat.Type) string {
	switch t {
	case threat.TypeAsteroid, threat.TypeOrbitalDebris:
		return "kinetic"
	case threat.TypeEarthEvent:
		return "terrestrial"
	case threat.TypeSpaceWeather:
		return "electromagnetic"
	case threat.TypeCommDisruption:
		return "infrastructure"
	default:
		return "unclassified"
	}
}

// aiMultiplier asks the completion collaborator for a refinement multiplier,
// clamped to the calibrated range.
func (e *Engine) aiMultiplier(ctx context.Context, ev *threat.Event, score float64) (float64, error) {
	prompt := fmt.Sprintf(
		"Given hazard type=%s severity=%s heuristic_priority=%.2f title=%q, "+
			"answer with a single JSON object {\"multiplier\":0.8..1.2} refining the priority.",
		ev.Type, ev.Severity, score, ai.PromptBudget(ev.Title, 120),
	)
	text, err := e.ai.Complete(ctx, ai.CompletionRequest{
		Prompt:      prompt,
		Model:       e.aiCfg.Model,
		Temperature: e.aiCfg.Temperature,
		MaxTokens:   64,
	})
	if err != nil {
		return 0, err
	}
	var out struct {
		Multiplier float64 `json:"multiplier"`
	}
	if err := ai.ExtractJSON(text, &out); err != nil {
		return 0, err
	}
	return common.ClampRange(out.Multiplier, e.cal.AIMultiplierMin, e.cal.AIMultiplierMax), nil
}
