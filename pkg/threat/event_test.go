package threat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() *Event {
	return &Event{
		ID:                "neo-1",
		Source:            "nasa_neo",
		Type:              TypeAsteroid,
		Title:             "close approach",
		Severity:          SeverityHigh,
		DetectedAt:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ImpactProbability: 0.4,
		ConfidenceScore:   0.8,
		DataQualityScore:  0.9,
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr bool
	}{
		{"valid", func(e *Event) {}, false},
		{"missing id", func(e *Event) { e.ID = "" }, true},
		{"missing source", func(e *Event) { e.Source = "" }, true},
		{"unknown type", func(e *Event) { e.Type = "meteor_shower" }, true},
		{"unknown severity", func(e *Event) { e.Severity = "extreme" }, true},
		{"zero detection time", func(e *Event) { e.DetectedAt = time.Time{} }, true},
		{"probability above one", func(e *Event) { e.ImpactProbability = 1.2 }, true},
		{"negative confidence", func(e *Event) { e.ConfidenceScore = -0.1 }, true},
		{"latitude out of range", func(e *Event) { e.Coordinates = &Coordinates{Lat: 91, Lng: 0} }, true},
		{"longitude out of range", func(e *Event) { e.Coordinates = &Coordinates{Lat: 0, Lng: -181} }, true},
		{"valid coordinates", func(e *Event) { e.Coordinates = &Coordinates{Lat: -45, Lng: 170} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := validEvent()
			tt.mutate(ev)
			err := ev.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNilEventValidate(t *testing.T) {
	var ev *Event
	assert.Error(t, ev.Validate())
}

func TestPayloadFloat(t *testing.T) {
	ev := validEvent()
	ev.Payload = map[string]interface{}{
		"distance_km": 250000.0,
		"kp_index":    7,
		"category":    "earthquake",
	}

	d, ok := ev.PayloadFloat("distance_km")
	require.True(t, ok)
	assert.Equal(t, 250000.0, d)

	kp, ok := ev.PayloadFloat("kp_index")
	require.True(t, ok)
	assert.Equal(t, 7.0, kp)

	_, ok = ev.PayloadFloat("category")
	assert.False(t, ok, "string payload must not read as float")

	_, ok = ev.PayloadFloat("missing")
	assert.False(t, ok)
}

func TestSeverityScore(t *testing.T) {
	assert.Equal(t, 1.0, SeverityCritical.Score())
	assert.Equal(t, 0.75, SeverityHigh.Score())
	assert.Equal(t, 0.5, SeverityMedium.Score())
	assert.Equal(t, 0.25, SeverityLow.Score())
}

func TestHoursToImpact(t *testing.T) {
	ev := validEvent()
	_, ok := ev.HoursToImpact()
	assert.False(t, ok)

	hours := 5.0
	ev.TimeToImpactHrs = &hours
	got, ok := ev.HoursToImpact()
	require.True(t, ok)
	assert.Equal(t, 5.0, got)
}
