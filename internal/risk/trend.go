package risk

import (
	"math"
	"time"
)

// samplePoint is one historical risk observation.
type samplePoint struct {
	at    time.Time
	score float64
}

// linearFit returns the least-squares slope (score units per hour) and
// intercept over the samples. ok is false with fewer than two points.
func linearFit(samples []samplePoint) (slope, intercept float64, ok bool) {
	n := float64(len(samples))
	if n < 2 {
		return 0, 0, false
	}

	origin := samples[0].at
	var sumX, sumY, sumXY, sumXX float64
	for _, s := range samples {
		x := s.at.Sub(origin).Hours()
		sumX += x
		sumY += s.score
		sumXY += x * s.score
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0, false
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept, true
}

// volatility is the standard deviation of the sample scores.
func volatility(samples []samplePoint) float64 {
	n := float64(len(samples))
	if n < 2 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.score
	}
	mean := sum / n
	var sq float64
	for _, s := range samples {
		d := s.score - mean
		sq += d * d
	}
	return math.Sqrt(sq / n)
}
