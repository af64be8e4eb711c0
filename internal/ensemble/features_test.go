package ensemble

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vncguard/internal/model"
)

func TestFeaturesVector(t *testing.T) {
	start := time.Date(2026, 6, 1, 14, 30, 0, 0, time.UTC) // Monday
	sess := &model.Session{
		ClientIP:            "8.8.8.8",
		StartTime:           start,
		DataTransferredMB:   42.5,
		ScreenshotCount:     7,
		ClipboardOperations: 3,
		FileOperations:      2,
		PacketsSent:         1000,
		PacketsReceived:     2000,
	}

	f := Features(sess, start.Add(90*time.Minute))
	require.Len(t, f, FeatureCount)

	assert.Equal(t, 42.5, f[0])
	assert.Equal(t, 90.0, f[1])
	assert.Equal(t, 7.0, f[2])
	assert.Equal(t, 3.0, f[3])
	assert.Equal(t, 2.0, f[4])
	assert.Equal(t, 1000.0, f[5])
	assert.Equal(t, 2000.0, f[6])
	assert.Equal(t, 14.0, f[7])
	assert.Equal(t, float64(time.Monday), f[8])
	assert.Equal(t, 1.0, f[9], "public client addresses are flagged external")

	sess.ClientIP = "192.168.1.5"
	f = Features(sess, start.Add(90*time.Minute))
	assert.Equal(t, 0.0, f[9])
}

func TestScalerStandardizes(t *testing.T) {
	samples := [][]float64{
		{2, 10, 0, 0, 0, 0, 0, 9, 1, 0},
		{4, 20, 0, 0, 0, 0, 0, 11, 2, 0},
		{6, 30, 0, 0, 0, 0, 0, 13, 3, 1},
	}

	s := FitScaler(samples)
	assert.Equal(t, 4.0, s.Mean[0])
	assert.Equal(t, 20.0, s.Mean[1])

	// Constant columns fall back to unit spread instead of dividing by zero.
	assert.Equal(t, 1.0, s.Std[2])

	scaled := s.TransformAll(samples)
	for j := 0; j < FeatureCount; j++ {
		sum := 0.0
		for i := range scaled {
			sum += scaled[i][j]
		}
		assert.InDelta(t, 0.0, sum/float64(len(scaled)), 1e-9,
			"scaled column %d should be centered", j)
	}
}

func TestForestScoresOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	// Tight cluster near the origin plus a handful of far-away points.
	var samples [][]float64
	for i := 0; i < 300; i++ {
		row := make([]float64, FeatureCount)
		for j := range row {
			row[j] = rng.NormFloat64() * 0.5
		}
		samples = append(samples, row)
	}

	forest := TrainForest(samples, rng)

	center := make([]float64, FeatureCount)
	outlier := make([]float64, FeatureCount)
	for j := range outlier {
		outlier[j] = 25.0
	}

	assert.Greater(t, forest.Score(center), forest.Score(outlier),
		"points inside the cluster should isolate later than distant outliers")
	assert.True(t, forest.Anomalous(outlier))
}

func TestClassifierLearnsSeparableData(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	var samples [][]float64
	var labels []float64
	for i := 0; i < 200; i++ {
		row := make([]float64, FeatureCount)
		label := 0.0
		if i%2 == 0 {
			label = 1.0
		}
		for j := range row {
			row[j] = rng.NormFloat64()*0.3 + label*3.0
		}
		samples = append(samples, row)
		labels = append(labels, label)
	}

	c := TrainClassifier(samples, labels, rng)

	high := make([]float64, FeatureCount)
	for j := range high {
		high[j] = 3.0
	}
	low := make([]float64, FeatureCount)

	isThreat, confidence := c.Predict(high)
	assert.True(t, isThreat)
	assert.Greater(t, confidence, 0.8)

	isThreat, confidence = c.Predict(low)
	assert.False(t, isThreat)
	assert.Greater(t, confidence, 0.8)
}

func TestClassifierSingleClassStaysUntrained(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	var samples [][]float64
	var labels []float64
	for i := 0; i < 100; i++ {
		row := make([]float64, FeatureCount)
		for j := range row {
			row[j] = rng.NormFloat64()*0.3 + 3.0
		}
		samples = append(samples, row)
		labels = append(labels, 1.0)
	}

	c := TrainClassifier(samples, labels, rng)
	assert.False(t, c.Trained)

	// Without a second class to fit against, the model must not call
	// everything a threat.
	isThreat, _ := c.Predict(make([]float64, FeatureCount))
	assert.False(t, isThreat)
}
