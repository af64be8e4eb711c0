package ensemble

import (
	"math"
	"math/rand"
)

// Isolation forest defaults.
const (
	forestTrees     = 100
	forestSubsample = 256
)

// forestNode is one node of an isolation tree. Leaves carry the size of
// the partition that reached them.
type forestNode struct {
	Feature   int         `json:"f"`
	Threshold float64     `json:"t"`
	Left      *forestNode `json:"l,omitempty"`
	Right     *forestNode `json:"r,omitempty"`
	Size      int         `json:"n,omitempty"`
}

// Forest is an isolation forest: anomalies isolate in short paths because
// random splits separate outliers quickly.
type Forest struct {
	Trees      []*forestNode `json:"trees"`
	SampleSize int           `json:"sample_size"`
}

// TrainForest fits an isolation forest on the (scaled) training matrix.
// The rng is injected so training is reproducible in tests.
func TrainForest(samples [][]float64, rng *rand.Rand) *Forest {
	sampleSize := forestSubsample
	if sampleSize > len(samples) {
		sampleSize = len(samples)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	f := &Forest{SampleSize: sampleSize}
	for i := 0; i < forestTrees; i++ {
		sub := subsample(samples, sampleSize, rng)
		f.Trees = append(f.Trees, buildTree(sub, 0, maxDepth, rng))
	}
	return f
}

// Score returns the decision value for a scaled feature vector: positive
// for inliers, negative for outliers, roughly in [-0.5, 0.5].
func (f *Forest) Score(features []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}

	var total float64
	for _, tree := range f.Trees {
		total += pathLength(tree, features, 0)
	}
	mean := total / float64(len(f.Trees))

	anomaly := math.Pow(2, -mean/avgPathLength(f.SampleSize))
	return 0.5 - anomaly
}

// Anomalous reports whether the vector scores as an outlier.
func (f *Forest) Anomalous(features []float64) bool {
	return f.Score(features) < 0
}

func buildTree(samples [][]float64, depth, maxDepth int, rng *rand.Rand) *forestNode {
	if depth >= maxDepth || len(samples) <= 1 {
		return &forestNode{Feature: -1, Size: len(samples)}
	}

	feature := rng.Intn(FeatureCount)
	lo, hi := columnRange(samples, feature)
	if hi-lo < 1e-12 {
		return &forestNode{Feature: -1, Size: len(samples)}
	}
	threshold := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range samples {
		if row[feature] < threshold {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &forestNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      buildTree(left, depth+1, maxDepth, rng),
		Right:     buildTree(right, depth+1, maxDepth, rng),
	}
}

func pathLength(node *forestNode, features []float64, depth int) float64 {
	if node.Feature < 0 {
		return float64(depth) + avgPathLength(node.Size)
	}
	if features[node.Feature] < node.Threshold {
		return pathLength(node.Left, features, depth+1)
	}
	return pathLength(node.Right, features, depth+1)
}

// avgPathLength is the expected path length of an unsuccessful BST search
// over n items, the standard normalizer for isolation forests.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

func subsample(samples [][]float64, size int, rng *rand.Rand) [][]float64 {
	if size >= len(samples) {
		return samples
	}
	perm := rng.Perm(len(samples))
	out := make([][]float64, size)
	for i := 0; i < size; i++ {
		out[i] = samples[perm[i]]
	}
	return out
}

func columnRange(samples [][]float64, feature int) (float64, float64) {
	lo, hi := samples[0][feature], samples[0][feature]
	for _, row := range samples[1:] {
		v := row[feature]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
