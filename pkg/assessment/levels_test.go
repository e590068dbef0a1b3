package assessment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityFromScoreBandEdges(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  PriorityLevel
	}{
		{"exactly critical threshold", 0.80, PriorityCritical},
		{"just under critical", 0.7999, PriorityHigh},
		{"exactly high threshold", 0.60, PriorityHigh},
		{"just under high", 0.5999, PriorityMedium},
		{"exactly medium threshold", 0.40, PriorityMedium},
		{"exactly low threshold", 0.20, PriorityLow},
		{"just under low", 0.1999, PriorityMinimal},
		{"zero", 0, PriorityMinimal},
		{"one", 1, PriorityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PriorityFromScore(tt.score))
		})
	}
}

func TestConfidenceFromScore(t *testing.T) {
	assert.Equal(t, ConfidenceVeryHigh, ConfidenceFromScore(0.95))
	assert.Equal(t, ConfidenceHigh, ConfidenceFromScore(0.7))
	assert.Equal(t, ConfidenceMedium, ConfidenceFromScore(0.5))
	assert.Equal(t, ConfidenceLow, ConfidenceFromScore(0.3))
	assert.Equal(t, ConfidenceVeryLow, ConfidenceFromScore(0.29))
}

func TestStrengthFromScore(t *testing.T) {
	assert.Equal(t, StrengthVeryStrong, StrengthFromScore(0.8))
	assert.Equal(t, StrengthStrong, StrengthFromScore(0.6))
	assert.Equal(t, StrengthModerate, StrengthFromScore(0.4))
	assert.Equal(t, StrengthWeak, StrengthFromScore(0.2))
	assert.Equal(t, StrengthVeryWeak, StrengthFromScore(0.19))
}

func TestRiskFromScoreMatchesPriorityBands(t *testing.T) {
	for _, score := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1} {
		assert.Equal(t, string(PriorityFromScore(score)), string(RiskFromScore(score)),
			"risk and priority bands must align at %.2f", score)
	}
}

func TestNormalizePair(t *testing.T) {
	a, b := NormalizePair("neo-2", "neo-1")
	assert.Equal(t, "neo-1", a)
	assert.Equal(t, "neo-2", b)

	a, b = NormalizePair("neo-1", "neo-2")
	assert.Equal(t, "neo-1", a)
	assert.Equal(t, "neo-2", b)
}

func TestSessionStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusTimeout.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}
