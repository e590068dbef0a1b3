package assessment

import "time"

// CorrelationType enumerates the axes along which two threats can relate.
type CorrelationType string

const (
	CorrelationSpatial    CorrelationType = "spatial"
	CorrelationTemporal   CorrelationType = "temporal"
	CorrelationCausal     CorrelationType = "causal"
	CorrelationSimilarity CorrelationType = "similarity"
	CorrelationCompound   CorrelationType = "compound"
	CorrelationPattern    CorrelationType = "pattern"
)

// ThreatCorrelation is a scored relationship between two threats. Pair ids
// are stored in lexicographic order so the relation is order-independent.
// Correlations are time-bounded and stale past ExpiresAt.
type ThreatCorrelation struct {
	Threat1ID string              `json:"threat_1_id"`
	Threat2ID string              `json:"threat_2_id"`
	Type      CorrelationType     `json:"type"`
	Strength  CorrelationStrength `json:"strength"`
	Score     float64             `json:"score"`

	// Type-specific attributes.
	DistanceKm      *float64 `json:"distance_km,omitempty"`
	SpatialOverlap  *float64 `json:"spatial_overlap,omitempty"`
	TimeGapHours    *float64 `json:"time_gap_hours,omitempty"`
	OverlapHours    *float64 `json:"overlap_hours,omitempty"`
	CausalDirection string   `json:"causal_direction,omitempty"`
	SharedTraits    []string `json:"shared_traits,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NormalizePair orders the two threat ids lexicographically.
func NormalizePair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Expired reports whether the correlation is stale at the given instant.
func (c *ThreatCorrelation) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Involves reports whether the correlation touches the given threat id.
func (c *ThreatCorrelation) Involves(id string) bool {
	return c.Threat1ID == id || c.Threat2ID == id
}

// Other returns the id on the opposite side of the pair from id, or "" when
// id is not part of the pair.
func (c *ThreatCorrelation) Other(id string) string {
	switch id {
	case c.Threat1ID:
		return c.Threat2ID
	case c.Threat2ID:
		return c.Threat1ID
	default:
		return ""
	}
}

// ThreatCluster groups threats whose pairwise correlations exceed the
// significance threshold, treated as one compound risk.
type ThreatCluster struct {
	ClusterID           string   `json:"cluster_id"`
	ThreatIDs           []string `json:"threat_ids"`
	DominantType        string   `json:"dominant_type"`
	CompoundRiskScore   float64  `json:"compound_risk_score"`
	AmplificationFactor float64  `json:"amplification_factor"`
	StabilityScore      float64  `json:"stability_score"`
}

// Hotspot is a geography-only density cluster reported independently of
// correlation scores.
type Hotspot struct {
	CenterLat   float64  `json:"center_lat"`
	CenterLng   float64  `json:"center_lng"`
	RadiusKm    float64  `json:"radius_km"`
	ThreatIDs   []string `json:"threat_ids"`
	MeanSeverity float64 `json:"mean_severity"`
}

// CascadeSequence is a time-ordered run of threats detected by the greedy
// cascade walk (length >= 3, consecutive gaps under the cascade window).
type CascadeSequence struct {
	ThreatIDs   []string  `json:"threat_ids"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	MaxGapHours float64   `json:"max_gap_hours"`
}

// AIPatterns carries the structured annotations returned by the optional AI
// pattern pass. A failed pass degrades to the zero value.
type AIPatterns struct {
	HiddenPatterns []string `json:"hidden_patterns,omitempty"`
	Cascades       []string `json:"cascades,omitempty"`
	EarlyWarnings  []string `json:"early_warnings,omitempty"`
}

// Empty reports whether the pass produced no annotations.
func (p AIPatterns) Empty() bool {
	return len(p.HiddenPatterns) == 0 && len(p.Cascades) == 0 && len(p.EarlyWarnings) == 0
}

// CompoundRiskArea marks a cluster whose compound risk crosses the reporting
// threshold.
type CompoundRiskArea struct {
	ClusterID         string  `json:"cluster_id"`
	CompoundRiskScore float64 `json:"compound_risk_score"`
	ThreatCount       int     `json:"threat_count"`
}

// CorrelationAnalysis bundles the output of one batch correlation run.
type CorrelationAnalysis struct {
	Correlations      []*ThreatCorrelation `json:"correlations"`
	Clusters          []*ThreatCluster     `json:"clusters"`
	Hotspots          []*Hotspot           `json:"hotspots"`
	Cascades          []*CascadeSequence   `json:"cascades"`
	AIPatterns        AIPatterns           `json:"ai_patterns"`
	CompoundRiskAreas []*CompoundRiskArea  `json:"compound_risk_areas"`
	OverallConfidence ConfidenceLevel      `json:"overall_confidence"`
	QualityLabel      string               `json:"quality_label"`
	AnalyzedAt        time.Time            `json:"analyzed_at"`
}
