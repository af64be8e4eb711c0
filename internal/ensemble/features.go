// Package ensemble scores sessions with a pair of learned models: an
// isolation forest for unsupervised outlier detection and a logistic
// classifier trained on past threat labels.
package ensemble

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/util"
)

// FeatureCount is the dimensionality of a session feature vector.
const FeatureCount = 10

// Features extracts the feature vector for one session. Order is fixed;
// persisted models depend on it.
func Features(sess *model.Session, now time.Time) []float64 {
	external := 0.0
	if !util.IsInternalIP(sess.ClientIP) {
		external = 1.0
	}

	ref := sess.StartTime
	return []float64{
		sess.DataTransferredMB,
		sess.Duration(now).Minutes(),
		float64(sess.ScreenshotCount),
		float64(sess.ClipboardOperations),
		float64(sess.FileOperations),
		float64(sess.PacketsSent),
		float64(sess.PacketsReceived),
		float64(ref.Hour()),
		float64(ref.Weekday()),
		external,
	}
}

// Scaler standardizes feature vectors to zero mean and unit variance per
// dimension, using the statistics of the training set.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-dimension statistics over the training matrix.
func FitScaler(samples [][]float64) *Scaler {
	s := &Scaler{
		Mean: make([]float64, FeatureCount),
		Std:  make([]float64, FeatureCount),
	}

	column := make([]float64, len(samples))
	for j := 0; j < FeatureCount; j++ {
		for i, row := range samples {
			column[i] = row[j]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if math.IsNaN(std) || std < 1e-9 {
			std = 1.0
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}

	return s
}

// Transform returns the standardized copy of a feature vector.
func (s *Scaler) Transform(features []float64) []float64 {
	out := make([]float64, len(features))
	for j, v := range features {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// TransformAll standardizes a whole matrix.
func (s *Scaler) TransformAll(samples [][]float64) [][]float64 {
	out := make([][]float64, len(samples))
	for i, row := range samples {
		out[i] = s.Transform(row)
	}
	return out
}
