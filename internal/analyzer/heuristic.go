package analyzer

import (
	"math"

	"github.com/skywatch/backend/pkg/common"
	"github.com/skywatch/backend/pkg/threat"
)

// featureVector is the input to the pattern heuristic. All features are
// normalized to [0, 1] before weighting.
type featureVector struct {
	severity    float64
	probability float64
	distance    float64
	velocity    float64
	size        float64
	time        float64
	reliability float64
}

// Feature weights for the pattern model. Hand-tuned; severity and declared
// probability dominate, physical features refine.
var featureWeights = featureVector{
	severity:    0.25,
	probability: 0.25,
	distance:    0.10,
	velocity:    0.10,
	size:        0.10,
	time:        0.10,
	reliability: 0.10,
}

// extractFeatures builds the normalized feature vector for an event.
// Payload fields that are absent normalize to a neutral 0.5 so a sparse
// provider record neither inflates nor suppresses the score.
func extractFeatures(ev *threat.Event) featureVector {
	f := featureVector{
		severity:    ev.Severity.Score(),
		probability: common.Clamp01(ev.ImpactProbability),
		distance:    0.5,
		velocity:    0.5,
		size:        0.5,
		time:        0.2,
		reliability: common.Clamp01((ev.ConfidenceScore + ev.DataQualityScore) / 2),
	}

	if d, ok := ev.PayloadFloat("distance_km"); ok {
		// Nearer is more threatening: 0 at 10M km and beyond, 1 at contact.
		f.distance = common.Clamp01(1 - d/1e7)
	}
	if v, ok := ev.PayloadFloat("velocity_kms"); ok {
		// 40 km/s is at the top of observed NEO encounter speeds.
		f.velocity = common.Clamp01(v / 40)
	}
	if s, ok := ev.PayloadFloat("diameter_m"); ok {
		// Log scale: 1m -> 0, 1km -> 1.
		if s > 1 {
			f.size = common.Clamp01(math.Log10(s) / 3)
		} else {
			f.size = 0
		}
	}
	if m, ok := ev.PayloadFloat("magnitude"); ok {
		// Richter-like magnitudes: 9+ saturates.
		f.size = common.Clamp01(m / 9)
	}
	if kp, ok := ev.PayloadFloat("kp_index"); ok {
		f.size = common.Clamp01(kp / 9)
	}
	if hrs, ok := ev.HoursToImpact(); ok {
		f.time = timeCriticality(hrs)
	}
	return f
}

// timeCriticality is the step function over hours-to-impact shared with the
// priority engine's time sub-score.
func timeCriticality(hours float64) float64 {
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

// patternScore runs the feature-vector heuristic. The returned confidence is
// the event's reliability feature: a heuristic over poor data is worth less.
func patternScore(ev *threat.Event) (score, confidence float64) {
	f := extractFeatures(ev)
	score = f.severity*featureWeights.severity +
		f.probability*featureWeights.probability +
		f.distance*featureWeights.distance +
		f.velocity*featureWeights.velocity +
		f.size*featureWeights.size +
		f.time*featureWeights.time +
		f.reliability*featureWeights.reliability
	return common.Clamp01(score), common.Clamp01(0.4 + 0.6*f.reliability)
}

// riskFactors derives the human-readable factors reported alongside the
// heuristic estimate.
func riskFactors(ev *threat.Event) []string {
	var factors []string
	f := extractFeatures(ev)

	if f.severity >= 0.75 {
		factors = append(factors, "high declared severity")
	}
	if f.probability >= 0.5 {
		factors = append(factors, "elevated impact probability")
	}
	if f.time >= 0.8 {
		factors = append(factors, "imminent time window")
	}
	if f.distance >= 0.9 && ev.Type == threat.TypeAsteroid {
		factors = append(factors, "close approach distance")
	}
	if f.reliability < 0.4 {
		factors = append(factors, "low data reliability")
	}
	return factors
}
