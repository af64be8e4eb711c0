package ensemble

import (
	"math"
	"math/rand"
)

// Training hyperparameters for the supervised classifier.
const (
	classifierEpochs = 300
	classifierRate   = 0.1
)

// Classifier is a logistic model over scaled feature vectors, trained on
// past threat labels.
type Classifier struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Trained bool      `json:"trained"`
}

// TrainClassifier fits the model with stochastic gradient descent.
// Labels are 1 for threat-linked sessions, 0 for clean ones. Fitting
// needs both classes present; on a single-class set the logistic model
// collapses into a constant vote, so it is left untrained instead.
func TrainClassifier(samples [][]float64, labels []float64, rng *rand.Rand) *Classifier {
	c := &Classifier{Weights: make([]float64, FeatureCount)}
	if len(samples) == 0 || classCount(labels) < 2 {
		return c
	}
	c.Trained = true

	for epoch := 0; epoch < classifierEpochs; epoch++ {
		for _, i := range rng.Perm(len(samples)) {
			p := c.Probability(samples[i])
			grad := p - labels[i]
			for j, v := range samples[i] {
				c.Weights[j] -= classifierRate * grad * v
			}
			c.Bias -= classifierRate * grad
		}
	}

	return c
}

func classCount(labels []float64) int {
	var pos, neg bool
	for _, l := range labels {
		if l > 0.5 {
			pos = true
		} else {
			neg = true
		}
	}
	n := 0
	if pos {
		n++
	}
	if neg {
		n++
	}
	return n
}

// Probability returns the predicted threat probability for a scaled vector.
func (c *Classifier) Probability(features []float64) float64 {
	z := c.Bias
	for j, w := range c.Weights {
		z += w * features[j]
	}
	return 1 / (1 + math.Exp(-z))
}

// Predict reports whether the vector classifies as a threat, with the
// confidence of that call (the probability of the predicted class).
func (c *Classifier) Predict(features []float64) (bool, float64) {
	p := c.Probability(features)
	if p > 0.5 {
		return true, p
	}
	return false, 1 - p
}
