package ensemble

import "math/rand"

// Synthetic bootstrap sizes used when recorded history is too thin to
// train on.
const (
	syntheticNormal    = 800
	syntheticAnomalous = 200
)

// SyntheticTrainingSet fabricates a labeled training matrix: ordinary
// business-hours sessions plus a minority of inflated off-hours ones.
func SyntheticTrainingSet(rng *rand.Rand) ([][]float64, []float64) {
	samples := make([][]float64, 0, syntheticNormal+syntheticAnomalous)
	labels := make([]float64, 0, syntheticNormal+syntheticAnomalous)

	for i := 0; i < syntheticNormal; i++ {
		samples = append(samples, normalSession(rng))
		labels = append(labels, 0)
	}
	for i := 0; i < syntheticAnomalous; i++ {
		samples = append(samples, anomalousSession(rng))
		labels = append(labels, 1)
	}

	return samples, labels
}

func normalSession(rng *rand.Rand) []float64 {
	external := 0.0
	if rng.Float64() < 0.1 {
		external = 1.0
	}
	return []float64{
		positive(rng.NormFloat64()*5 + 10),    // MB transferred
		positive(rng.NormFloat64()*30 + 60),   // minutes
		positive(rng.NormFloat64()*5 + 10),    // screenshots
		positive(rng.NormFloat64()*3 + 5),     // clipboard ops
		positive(rng.NormFloat64()*2 + 3),     // file ops
		positive(rng.NormFloat64()*2000 + 5000),
		positive(rng.NormFloat64()*2500 + 6000),
		float64(8 + rng.Intn(10)), // business hours
		float64(rng.Intn(5)),      // weekday
		external,
	}
}

func anomalousSession(rng *rand.Rand) []float64 {
	hour := float64(rng.Intn(7)) // small hours
	if rng.Float64() < 0.4 {
		hour = float64(20 + rng.Intn(4))
	}
	return []float64{
		positive(rng.NormFloat64()*30 + 120),
		positive(rng.NormFloat64()*120 + 360),
		positive(rng.NormFloat64()*80 + 250),
		positive(rng.NormFloat64()*30 + 90),
		positive(rng.NormFloat64()*15 + 45),
		positive(rng.NormFloat64()*20000 + 60000),
		positive(rng.NormFloat64()*25000 + 70000),
		hour,
		float64(rng.Intn(7)),
		1.0,
	}
}

func positive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
