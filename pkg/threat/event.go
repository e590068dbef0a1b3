// Package threat defines the canonical normalized hazard event consumed by
// the assessment pipeline, together with its closed type and severity
// enumerations and validation rules.
package threat

import (
	"time"

	"github.com/skywatch/backend/pkg/common"
)

// Type enumerates the hazard categories the pipeline understands. The set is
// closed: scoring rules switch exhaustively over it and unknown values are
// rejected at validation time.
type Type string

const (
	TypeAsteroid       Type = "asteroid"
	TypeEarthEvent     Type = "earth_event"
	TypeSpaceWeather   Type = "space_weather"
	TypeOrbitalDebris  Type = "orbital_debris"
	TypeCommDisruption Type = "comm_disruption"
)

// AllTypes lists every valid hazard type, in a stable order used for feature
// vector one-hot encoding.
var AllTypes = []Type{
	TypeAsteroid,
	TypeEarthEvent,
	TypeSpaceWeather,
	TypeOrbitalDebris,
	TypeCommDisruption,
}

// Valid reports whether t is a member of the closed type set.
func (t Type) Valid() bool {
	switch t {
	case TypeAsteroid, TypeEarthEvent, TypeSpaceWeather, TypeOrbitalDebris, TypeCommDisruption:
		return true
	}
	return false
}

// Severity is the normalized severity reported by upstream providers.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a member of the closed severity set.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Score maps a severity onto [0, 1] for use in feature vectors and
// aggregate scoring.
func (s Severity) Score() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.75
	case SeverityMedium:
		return 0.5
	case SeverityLow:
		return 0.25
	default:
		return 0.25
	}
}

// Coordinates is a WGS84 lat/lng pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Event is the canonical hazard record handed to the pipeline by the
// upstream integrator. Events are immutable once normalized; only lazily
// filled enrichment fields (Region) may be set afterwards.
type Event struct {
	ID               string       `json:"id"`
	Source           string       `json:"source"`
	Type             Type         `json:"type"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Severity         Severity     `json:"severity"`
	Coordinates      *Coordinates `json:"coordinates,omitempty"`
	DetectedAt       time.Time    `json:"detected_at"`
	TimeToImpactHrs  *float64     `json:"time_to_impact_hours,omitempty"`
	ImpactProbability float64     `json:"impact_probability"`
	ConfidenceScore  float64      `json:"confidence_score"`
	DataQualityScore float64      `json:"data_quality_score"`

	// Region is enrichment filled lazily after normalization.
	Region string `json:"region,omitempty"`

	// Payload carries provider-specific fields used by type-specific
	// scoring rules (distance_km, velocity_kms, diameter_m, kp_index,
	// solar_flux, magnitude, category, effect_radius_km, ...).
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Validate checks the upstream contract: required fields present, enums in
// their closed sets, and probability/confidence/quality inside [0, 1].
func (e *Event) Validate() error {
	if e == nil {
		return common.NewError(common.CodeValidation, "nil event", nil)
	}
	if e.ID == "" {
		return common.NewError(common.CodeValidation, "event id is required", nil)
	}
	if e.Source == "" {
		return common.NewError(common.CodeValidation, "event source is required", map[string]interface{}{
			"event_id": e.ID,
		})
	}
	if !e.Type.Valid() {
		return common.NewError(common.CodeValidation, "unknown threat type", map[string]interface{}{
			"event_id": e.ID,
			"type":     string(e.Type),
		})
	}
	if !e.Severity.Valid() {
		return common.NewError(common.CodeValidation, "unknown severity", map[string]interface{}{
			"event_id": e.ID,
			"severity": string(e.Severity),
		})
	}
	if e.DetectedAt.IsZero() {
		return common.NewError(common.CodeValidation, "detection time is required", map[string]interface{}{
			"event_id": e.ID,
		})
	}
	for name, v := range map[string]float64{
		"impact_probability": e.ImpactProbability,
		"confidence_score":   e.ConfidenceScore,
		"data_quality_score": e.DataQualityScore,
	} {
		if v < 0 || v > 1 {
			return common.NewError(common.CodeValidation, "field out of unit range", map[string]interface{}{
				"event_id": e.ID,
				"field":    name,
				"value":    v,
			})
		}
	}
	if e.Coordinates != nil {
		if e.Coordinates.Lat < -90 || e.Coordinates.Lat > 90 ||
			e.Coordinates.Lng < -180 || e.Coordinates.Lng > 180 {
			return common.NewError(common.CodeValidation, "coordinates out of range", map[string]interface{}{
				"event_id": e.ID,
			})
		}
	}
	return nil
}

// PayloadFloat reads a numeric payload field, tolerating the JSON number
// types providers actually send. ok is false when the field is absent or not
// numeric.
func (e *Event) PayloadFloat(key string) (float64, bool) {
	if e.Payload == nil {
		return 0, false
	}
	switch v := e.Payload[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// PayloadString reads a string payload field.
func (e *Event) PayloadString(key string) (string, bool) {
	if e.Payload == nil {
		return "", false
	}
	s, ok := e.Payload[key].(string)
	return s, ok
}

// HoursToImpact returns the time-to-impact in hours and whether it is known.
func (e *Event) HoursToImpact() (float64, bool) {
	if e.TimeToImpactHrs == nil {
		return 0, false
	}
	return *e.TimeToImpactHrs, true
}
