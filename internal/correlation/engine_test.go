package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skywatch/backend/internal/ai"
	"github.com/skywatch/backend/internal/config"
	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/threat"
)

func newTestEngine(t *testing.T) (*Engine, *clockwork.FakeClock) {
	t.Helper()
	cfg := config.Defaults()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(cfg.Correlation, cfg.AI, ai.Disabled{}, zap.NewNop(), clock), clock
}

// scenarioEvents builds two co-located asteroids and one unrelated remote
// event with nothing in common with them.
func scenarioEvents() []*threat.Event {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	a1 := locatedEvent("neo-1", 10, 10, base)
	a2 := locatedEvent("neo-2", 10.01, 10.01, base.Add(30*time.Minute))

	far := &threat.Event{
		ID:                "sw-9",
		Source:            "amateur_feed",
		Type:              threat.TypeSpaceWeather,
		Severity:          threat.SeverityLow,
		DetectedAt:        base.Add(100 * time.Hour),
		ImpactProbability: 0.1,
		ConfidenceScore:   0.3,
		DataQualityScore:  0.3,
	}
	return []*threat.Event{a1, a2, far}
}

func TestAnalyzeRetainsOnlySignificantPairs(t *testing.T) {
	e, clock := newTestEngine(t)

	analysis := e.Analyze(context.Background(), scenarioEvents())
	require.NotNil(t, analysis)
	require.NotEmpty(t, analysis.Correlations)

	for _, c := range analysis.Correlations {
		assert.GreaterOrEqual(t, c.Score, 0.4, "below-threshold correlations must be dropped")
		assert.LessOrEqual(t, c.Threat1ID, c.Threat2ID, "pair ids are normalized")
		assert.Equal(t, clock.Now().Add(6*time.Hour).UTC(), c.ExpiresAt)
	}

	// The remote low-grade event correlates with nothing.
	for _, c := range analysis.Correlations {
		assert.False(t, c.Involves("sw-9"), "unexpected correlation %s-%s (%s %.2f)",
			c.Threat1ID, c.Threat2ID, c.Type, c.Score)
	}
}

func TestAnalyzeNearbyAsteroidsCorrelateStrongly(t *testing.T) {
	e, _ := newTestEngine(t)

	analysis := e.Analyze(context.Background(), scenarioEvents())

	var spatial *assessment.ThreatCorrelation
	for _, c := range analysis.Correlations {
		if c.Type == assessment.CorrelationSpatial && c.Involves("neo-1") && c.Involves("neo-2") {
			spatial = c
		}
	}
	require.NotNil(t, spatial, "co-located asteroids must correlate spatially")
	assert.GreaterOrEqual(t, spatial.Score, 0.8)
	assert.Equal(t, assessment.StrengthVeryStrong, spatial.Strength)
	require.NotNil(t, spatial.DistanceKm)
	assert.Less(t, *spatial.DistanceKm, 100.0)
}

func TestAnalyzeIsOrderIndependent(t *testing.T) {
	e, _ := newTestEngine(t)

	events := scenarioEvents()
	reversed := []*threat.Event{events[2], events[1], events[0]}

	first := e.Analyze(context.Background(), events)
	second := e.Analyze(context.Background(), reversed)

	require.Equal(t, len(first.Correlations), len(second.Correlations))
	for i := range first.Correlations {
		assert.Equal(t, first.Correlations[i].Threat1ID, second.Correlations[i].Threat1ID)
		assert.Equal(t, first.Correlations[i].Threat2ID, second.Correlations[i].Threat2ID)
		assert.Equal(t, first.Correlations[i].Type, second.Correlations[i].Type)
		assert.Equal(t, first.Correlations[i].Score, second.Correlations[i].Score)
	}

	require.Equal(t, len(first.Clusters), len(second.Clusters))
	for i := range first.Clusters {
		assert.Equal(t, first.Clusters[i].ClusterID, second.Clusters[i].ClusterID)
		assert.Equal(t, first.Clusters[i].ThreatIDs, second.Clusters[i].ThreatIDs)
	}
}

func TestDistantLookalikeAsteroidsStaySeparate(t *testing.T) {
	e, _ := newTestEngine(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	near1 := locatedEvent("ast-1", 10, 10, base)
	near2 := locatedEvent("ast-2", 10.01, 10.01, base.Add(30*time.Minute))
	remote := locatedEvent("ast-3", 80, -80, base.Add(80*time.Hour))

	// An identical profile on the far side of the planet must not score as
	// similar; the damped cosine stays under the weak-correlation line.
	assert.Less(t, similarityScore(near1, remote).score, 0.2)
	assert.Less(t, similarityScore(near2, remote).score, 0.2)

	analysis := e.Analyze(context.Background(), []*threat.Event{near1, near2, remote})

	var spatial *assessment.ThreatCorrelation
	for _, c := range analysis.Correlations {
		assert.False(t, c.Involves("ast-3"), "unexpected correlation %s-%s (%s %.2f)",
			c.Threat1ID, c.Threat2ID, c.Type, c.Score)
		if c.Type == assessment.CorrelationSpatial {
			spatial = c
		}
	}
	require.NotNil(t, spatial, "co-located asteroids must correlate spatially")
	assert.GreaterOrEqual(t, spatial.Score, 0.8)
	assert.Equal(t, assessment.StrengthVeryStrong, spatial.Strength)

	require.Len(t, analysis.Clusters, 1, "the remote asteroid must not join the pair's cluster")
	assert.Equal(t, []string{"ast-1", "ast-2"}, analysis.Clusters[0].ThreatIDs)
}

func TestClusteringSeparatesUnrelatedEvents(t *testing.T) {
	e, _ := newTestEngine(t)

	analysis := e.Analyze(context.Background(), scenarioEvents())
	require.Len(t, analysis.Clusters, 1, "only the co-located pair clusters")

	cluster := analysis.Clusters[0]
	assert.Equal(t, "cluster-1", cluster.ClusterID)
	assert.Equal(t, []string{"neo-1", "neo-2"}, cluster.ThreatIDs)
	assert.Equal(t, string(threat.TypeAsteroid), cluster.DominantType)
	assert.GreaterOrEqual(t, cluster.CompoundRiskScore, 0.0)
	assert.LessOrEqual(t, cluster.CompoundRiskScore, 1.0)
	assert.GreaterOrEqual(t, cluster.AmplificationFactor, 1.0)
	assert.LessOrEqual(t, cluster.AmplificationFactor, 2.0)
}

func TestHotspotsRequireTwoLocatedMembers(t *testing.T) {
	e, _ := newTestEngine(t)

	analysis := e.Analyze(context.Background(), scenarioEvents())
	require.Len(t, analysis.Hotspots, 1)

	h := analysis.Hotspots[0]
	assert.Equal(t, []string{"neo-1", "neo-2"}, h.ThreatIDs)
	assert.InDelta(t, 10.005, h.CenterLat, 0.01)
	assert.Less(t, h.RadiusKm, 250.0)
	assert.InDelta(t, 0.75, h.MeanSeverity, 1e-9)
}

func TestCascadeDetection(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	storm := locatedEvent("sw-1", 20, 20, base)
	storm.Type = threat.TypeSpaceWeather
	storm.Severity = threat.SeverityMedium

	debris := locatedEvent("od-1", 20, 21, base.Add(10*time.Hour))
	debris.Type = threat.TypeOrbitalDebris
	debris.Severity = threat.SeverityHigh

	outage := locatedEvent("cd-1", 21, 21, base.Add(30*time.Hour))
	outage.Type = threat.TypeCommDisruption
	outage.Severity = threat.SeverityCritical

	sequences := detectCascades([]*threat.Event{outage, storm, debris}, 72, 3)
	require.Len(t, sequences, 1)
	assert.Equal(t, []string{"sw-1", "od-1", "cd-1"}, sequences[0].ThreatIDs)
	assert.Equal(t, 20.0, sequences[0].MaxGapHours)
}

func TestCascadeBreaksOnLargeGap(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []*threat.Event{
		locatedEvent("a", 0, 0, base),
		locatedEvent("b", 0, 0, base.Add(10*time.Hour)),
		locatedEvent("c", 0, 0, base.Add(100*time.Hour)),
	}
	assert.Empty(t, detectCascades(events, 72, 3), "a gap past the window splits the run below minimum length")
}

func TestEnhancePatternsDegradesToEmpty(t *testing.T) {
	e, _ := newTestEngine(t)

	events := scenarioEvents()
	analysis := e.Analyze(context.Background(), events)

	err := e.EnhancePatterns(context.Background(), events, analysis)
	assert.Error(t, err, "disabled collaborator reports failure")
	assert.True(t, analysis.AIPatterns.Empty(), "failed pass leaves patterns empty")
}

func TestAnalyzeEmptyBatch(t *testing.T) {
	e, _ := newTestEngine(t)

	analysis := e.Analyze(context.Background(), nil)
	require.NotNil(t, analysis)
	assert.Empty(t, analysis.Correlations)
	assert.Empty(t, analysis.Clusters)
	assert.Equal(t, assessment.ConfidenceVeryLow, analysis.OverallConfidence)
	assert.Equal(t, "empty", analysis.QualityLabel)
}
