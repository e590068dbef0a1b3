package priority

import (
	"math"
	"math/rand"
	"sync"

	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/common"
	"github.com/skywatch/backend/pkg/threat"
)

// Simulator runs Monte Carlo refinement of an event's impact probability by
// perturbing the uncertain physical inputs with normal noise.
type Simulator struct {
	trials int

	mu  sync.Mutex
	rng *rand.Rand
}

// Relative noise applied per trial to each uncertain input.
const (
	distanceNoise = 0.10
	velocityNoise = 0.10
	energyNoise   = 0.15
)

// NewSimulator creates a simulator with the given trial count and seed.
func NewSimulator(trials int, seed int64) *Simulator {
	return &Simulator{
		trials: trials,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Run simulates the event's impact probability distribution around the given
// baseline. It returns the trial mean, standard deviation, a 95% interval,
// and a confidence derived from the standard error of the mean.
func (s *Simulator) Run(ev *threat.Event, baseline float64) *assessment.SimulationResult {
	distance, hasDistance := ev.PayloadFloat("distance_km")
	velocity, hasVelocity := ev.PayloadFloat("velocity_kms")

	s.mu.Lock()
	defer s.mu.Unlock()

	var sum, sumSq float64
	for i := 0; i < s.trials; i++ {
		p := baseline

		// Energy-style perturbation applies to every type; distance and
		// velocity refine when the provider supplied them.
		p *= 1 + energyNoise*s.rng.NormFloat64()

		if hasDistance && distance > 0 {
			perturbed := distance * (1 + distanceNoise*s.rng.NormFloat64())
			// A closer-than-nominal pass raises the trial probability.
			p *= common.ClampRange(distance/math.Max(perturbed, 1), 0.5, 1.5)
		}
		if hasVelocity && velocity > 0 {
			perturbed := velocity * (1 + velocityNoise*s.rng.NormFloat64())
			p *= common.ClampRange(perturbed/velocity, 0.8, 1.2)
		}

		p = common.Clamp01(p)
		sum += p
		sumSq += p * p
	}

	n := float64(s.trials)
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	std := math.Sqrt(variance)
	stderr := std / math.Sqrt(n)

	return &assessment.SimulationResult{
		Trials:                s.trials,
		MeanImpactProbability: mean,
		StdDev:                std,
		Interval95Low:         common.Clamp01(mean - 1.96*std),
		Interval95High:        common.Clamp01(mean + 1.96*std),
		// Confidence decays with the standard error of the mean; at the
		// default 10k trials the stderr is small and confidence high.
		Confidence: common.Clamp01(1 / (1 + 100*stderr)),
	}
}
