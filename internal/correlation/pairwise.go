package correlation

import (
	"math"

	"github.com/skywatch/backend/pkg/common"
	"github.com/skywatch/backend/pkg/threat"
)

// pairScore is the outcome of one pairwise analyzer.
type pairScore struct {
	score float64

	distanceKm     *float64
	spatialOverlap *float64
	timeGapHours   *float64
	overlapHours   *float64
	causalDirection string
	sharedTraits   []string
}

// spatialScore maps great-circle distance onto fixed bands. Events without
// coordinates do not correlate spatially. Declared effect radii contribute a
// fractional overlap attribute.
func spatialScore(a, b *threat.Event) (pairScore, bool) {
	if a.Coordinates == nil || b.Coordinates == nil {
		return pairScore{}, false
	}

	d := Haversine(*a.Coordinates, *b.Coordinates)
	var score float64
	switch {
	case d < 100:
		score = 0.95
	case d < 500:
		score = 0.7
	case d < 1000:
		score = 0.5
	case d < 2500:
		score = 0.35
	case d < 5000:
		score = 0.2
	default:
		score = 0.05
	}

	ps := pairScore{score: score, distanceKm: &d}

	ra, okA := a.PayloadFloat("effect_radius_km")
	rb, okB := b.PayloadFloat("effect_radius_km")
	if okA && okB && ra+rb > 0 {
		overlap := common.Clamp01((ra + rb - d) / (ra + rb))
		ps.spatialOverlap = &overlap
	}
	return ps, true
}

// temporalScore maps the absolute hour gap between detection times onto
// fixed bands.
func temporalScore(a, b *threat.Event) pairScore {
	gap := math.Abs(a.DetectedAt.Sub(b.DetectedAt).Hours())
	var score float64
	switch {
	case gap < 1:
		score = 0.95
	case gap < 6:
		score = 0.8
	case gap < 12:
		score = 0.65
	case gap < 24:
		score = 0.5
	case gap < 48:
		score = 0.35
	case gap < 72:
		score = 0.2
	default:
		score = 0.05
	}

	ps := pairScore{score: score, timeGapHours: &gap}

	// When both events declare impact windows, report the shared hours.
	ha, okA := a.HoursToImpact()
	hb, okB := b.HoursToImpact()
	if okA && okB {
		overlap := math.Min(ha, hb)
		if overlap > 0 {
			ps.overlapHours = &overlap
		}
	}
	return ps
}

// causalRule is one entry in the static domain-knowledge table.
type causalRule struct {
	confidence float64
	direction  string
}

type typePair struct {
	from, to threat.Type
}

// Causal links between hazard categories. Directions read source->target.
var causalTable = map[typePair]causalRule{
	{threat.TypeSpaceWeather, threat.TypeCommDisruption}:  {0.85, "space_weather->comm_disruption"},
	{threat.TypeSpaceWeather, threat.TypeOrbitalDebris}:   {0.50, "space_weather->orbital_debris"},
	{threat.TypeAsteroid, threat.TypeEarthEvent}:          {0.60, "asteroid->earth_event"},
	{threat.TypeAsteroid, threat.TypeOrbitalDebris}:       {0.50, "asteroid->orbital_debris"},
	{threat.TypeOrbitalDebris, threat.TypeCommDisruption}: {0.65, "orbital_debris->comm_disruption"},
	{threat.TypeEarthEvent, threat.TypeCommDisruption}:    {0.55, "earth_event->comm_disruption"},
}

// causalScore looks the type pair up in both directions.
func causalScore(a, b *threat.Event) (pairScore, bool) {
	if rule, ok := causalTable[typePair{a.Type, b.Type}]; ok {
		return pairScore{score: rule.confidence, causalDirection: rule.direction}, true
	}
	if rule, ok := causalTable[typePair{b.Type, a.Type}]; ok {
		return pairScore{score: rule.confidence, causalDirection: rule.direction}, true
	}
	return pairScore{}, false
}

// similarityFeatures builds the vector for cosine similarity: type one-hot,
// severity, probability, confidence, time criticality, has-coordinates flag.
func similarityFeatures(ev *threat.Event) []float64 {
	features := make([]float64, 0, len(threat.AllTypes)+5)
	for _, t := range threat.AllTypes {
		if ev.Type == t {
			features = append(features, 1)
		} else {
			features = append(features, 0)
		}
	}

	timeCrit := 0.2
	if hours, ok := ev.HoursToImpact(); ok {
		switch {
		case hours < 6:
			timeCrit = 1.0
		case hours < 24:
			timeCrit = 0.8
		case hours < 168:
			timeCrit = 0.6
		case hours < 720:
			timeCrit = 0.4
		}
	}

	hasCoords := 0.0
	if ev.Coordinates != nil {
		hasCoords = 1.0
	}

	return append(features,
		ev.Severity.Score(),
		common.Clamp01(ev.ImpactProbability),
		common.Clamp01(ev.ConfidenceScore),
		timeCrit,
		hasCoords,
	)
}

// proximityDamping discounts the similarity of located events by their
// separation. Two events with identical profiles thousands of kilometers
// apart are distinct situations, not one; without the discount every
// co-typed pair in a batch scores near-perfect cosine similarity and
// clustering degenerates into one cluster per type.
func proximityDamping(a, b *threat.Event) float64 {
	if a.Coordinates == nil || b.Coordinates == nil {
		return 1.0
	}
	d := Haversine(*a.Coordinates, *b.Coordinates)
	switch {
	case d < 500:
		return 1.0
	case d < 2500:
		return 0.6
	case d < 5000:
		return 0.35
	default:
		return 0.15
	}
}

// similarityScore is the cosine similarity of the two feature vectors,
// damped by geographic separation, with the traits driving it reported for
// explanation.
func similarityScore(a, b *threat.Event) pairScore {
	fa := similarityFeatures(a)
	fb := similarityFeatures(b)

	var dot, normA, normB float64
	for i := range fa {
		dot += fa[i] * fb[i]
		normA += fa[i] * fa[i]
		normB += fb[i] * fb[i]
	}
	if normA == 0 || normB == 0 {
		return pairScore{}
	}

	var traits []string
	if a.Type == b.Type {
		traits = append(traits, "type")
	}
	if a.Severity == b.Severity {
		traits = append(traits, "severity")
	}
	if a.Source == b.Source {
		traits = append(traits, "source")
	}

	cosine := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return pairScore{
		score:        common.Clamp01(cosine * proximityDamping(a, b)),
		sharedTraits: traits,
	}
}
