package ensemble

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/storage"
	"github.com/user/vncguard/internal/util"
)

// Training set composition.
const (
	minTrainingExamples = 50
	negativeRatio       = 4
	artifactName        = "ensemble.json"
)

// Result is the ensemble verdict for one session.
type Result struct {
	Ready      bool    `json:"ready"`
	IsAnomaly  bool    `json:"is_anomaly"`
	Confidence float64 `json:"confidence"`

	ForestScore           float64 `json:"forest_score"`
	ClassifierProbability float64 `json:"classifier_probability"`
}

// artifact is the persisted form of a trained ensemble.
type artifact struct {
	TrainedAt time.Time   `json:"trained_at"`
	Samples   int         `json:"samples"`
	Synthetic bool        `json:"synthetic"`
	Scaler    *Scaler     `json:"scaler"`
	Forest    *Forest     `json:"forest"`
	Model     *Classifier `json:"classifier"`
}

// Scorer owns the trained models. Detect is safe for concurrent use;
// training swaps the models atomically under the lock.
type Scorer struct {
	mu sync.RWMutex
	artifact

	store    *storage.SessionStorage
	modelDir string
}

// NewScorer builds an untrained scorer persisting artifacts under modelDir.
func NewScorer(store *storage.SessionStorage, modelDir string) *Scorer {
	return &Scorer{store: store, modelDir: modelDir}
}

// Ready reports whether trained models are loaded.
func (s *Scorer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Forest != nil && s.Model != nil
}

// TrainedAtTime returns when the current models were trained.
func (s *Scorer) TrainedAtTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TrainedAt
}

// LoadOrTrain restores a persisted ensemble, training a fresh one when no
// usable artifact exists.
func (s *Scorer) LoadOrTrain(now time.Time) error {
	if err := s.Load(); err == nil {
		util.Info("ensemble loaded: trained %s on %d samples",
			s.TrainedAtTime().Format(time.RFC3339), s.artifact.Samples)
		return nil
	}
	return s.Train(now)
}

// Load restores the persisted artifact.
func (s *Scorer) Load() error {
	data, err := os.ReadFile(filepath.Join(s.modelDir, artifactName))
	if err != nil {
		return err
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("failed to decode ensemble artifact: %w", err)
	}
	if a.Scaler == nil || a.Forest == nil || a.Model == nil {
		return fmt.Errorf("ensemble artifact is incomplete")
	}

	s.mu.Lock()
	s.artifact = a
	s.mu.Unlock()
	return nil
}

// Train rebuilds the ensemble from recorded history. Threat-linked
// sessions are positives; threat-free ones are negatives, capped at four
// per positive. Too little history falls back to a synthetic set.
func (s *Scorer) Train(now time.Time) error {
	samples, labels, synthetic, err := s.trainingSet(now)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(now.UnixNano()))
	s.TrainOn(samples, labels, rng, now, synthetic)

	if err := s.save(); err != nil {
		util.Warn("failed to persist ensemble artifact: %v", err)
	}

	util.Info("ensemble trained on %d samples (synthetic=%v)", len(samples), synthetic)
	return nil
}

// TrainOn fits the models on a prepared training set. Exposed so tests
// can train deterministically.
func (s *Scorer) TrainOn(samples [][]float64, labels []float64, rng *rand.Rand, now time.Time, synthetic bool) {
	scaler := FitScaler(samples)
	scaled := scaler.TransformAll(samples)

	forest := TrainForest(scaled, rng)
	classifier := TrainClassifier(scaled, labels, rng)

	s.mu.Lock()
	s.artifact = artifact{
		TrainedAt: now,
		Samples:   len(samples),
		Synthetic: synthetic,
		Scaler:    scaler,
		Forest:    forest,
		Model:     classifier,
	}
	s.mu.Unlock()
}

// Detect scores one session. An untrained scorer returns a not-ready
// result rather than guessing.
func (s *Scorer) Detect(sess *model.Session, now time.Time) Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Forest == nil || s.Model == nil {
		return Result{}
	}

	scaled := s.Scaler.Transform(Features(sess, now))

	forestScore := s.Forest.Score(scaled)
	forestAnomaly := forestScore < 0
	forestConfidence := clamp01((1 - math.Abs(forestScore)) / 2)

	result := Result{
		Ready:       true,
		IsAnomaly:   forestAnomaly,
		Confidence:  forestConfidence,
		ForestScore: forestScore,
	}

	// An untrained classifier has no vote; the forest carries the verdict
	// alone until both classes show up in the training data.
	if s.Model.Trained {
		classAnomaly, classConfidence := s.Model.Predict(scaled)
		result.IsAnomaly = forestAnomaly || classAnomaly
		result.Confidence = (forestConfidence + classConfidence) / 2
		result.ClassifierProbability = s.Model.Probability(scaled)
	}

	return result
}

func (s *Scorer) trainingSet(now time.Time) ([][]float64, []float64, bool, error) {
	positives, err := s.store.GetThreatLinked()
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to load positive examples: %w", err)
	}
	negatives, err := s.store.GetThreatFree(len(positives) * negativeRatio)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to load negative examples: %w", err)
	}

	if len(positives)+len(negatives) < minTrainingExamples {
		rng := rand.New(rand.NewSource(now.UnixNano()))
		samples, labels := SyntheticTrainingSet(rng)
		return samples, labels, true, nil
	}

	samples := make([][]float64, 0, len(positives)+len(negatives))
	labels := make([]float64, 0, len(positives)+len(negatives))
	for i := range positives {
		samples = append(samples, Features(&positives[i], now))
		labels = append(labels, 1)
	}
	for i := range negatives {
		samples = append(samples, Features(&negatives[i], now))
		labels = append(labels, 0)
	}

	return samples, labels, false, nil
}

func (s *Scorer) save() error {
	s.mu.RLock()
	data, err := json.Marshal(s.artifact)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := util.EnsureDir(s.modelDir); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.modelDir, artifactName), data, 0o644)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
