package threat

import (
	"fmt"
	"time"

	"github.com/user/vncguard/internal/baseline"
	"github.com/user/vncguard/internal/ensemble"
	"github.com/user/vncguard/internal/metrics"
	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/notify"
	"github.com/user/vncguard/internal/sessions"
	"github.com/user/vncguard/internal/storage"
	"github.com/user/vncguard/internal/util"
)

// Decision thresholds for turning scores into threats.
const (
	mlHighConfidence  = 0.9
	ruleHighRiskScore = 85.0
)

// Analyzer runs one analysis pass over the sessions worth looking at:
// everything live plus everything that started inside the recent window.
// The rule-based and learned detectors run independently; a session can
// produce a threat from each in the same pass.
type Analyzer struct {
	store    *storage.SessionStorage
	tracker  *sessions.Tracker
	rules    *baseline.Engine
	scorer   *ensemble.Scorer
	recorder *Recorder
	sink     notify.Sink
	metrics  *metrics.Metrics

	riskThreshold       float64
	confidenceThreshold float64
	recentWindow        time.Duration
}

// NewAnalyzer wires one analysis pipeline.
func NewAnalyzer(store *storage.SessionStorage, tracker *sessions.Tracker,
	rules *baseline.Engine, scorer *ensemble.Scorer, recorder *Recorder,
	sink notify.Sink, m *metrics.Metrics, riskThreshold, confidenceThreshold float64,
	recentWindow time.Duration) *Analyzer {
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Analyzer{
		store:               store,
		tracker:             tracker,
		rules:               rules,
		scorer:              scorer,
		recorder:            recorder,
		sink:                sink,
		metrics:             m,
		riskThreshold:       riskThreshold,
		confidenceThreshold: confidenceThreshold,
		recentWindow:        recentWindow,
	}
}

// Run performs one full analysis pass.
func (a *Analyzer) Run(now time.Time) error {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
		}
	}()

	candidates, err := a.candidates(now)
	if err != nil {
		return err
	}

	for i := range candidates {
		sess := &candidates[i]
		a.analyzeRules(sess, now)
		a.analyzeEnsemble(sess, now)
	}

	util.Debug("analysis pass covered %d sessions", len(candidates))
	return nil
}

// candidates merges live sessions with recently started ones, deduplicated
// by session ID.
func (a *Analyzer) candidates(now time.Time) ([]model.Session, error) {
	recent, err := a.store.GetStartedSince(now.Add(-a.recentWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load recent sessions: %w", err)
	}

	seen := make(map[int64]struct{}, len(recent))
	out := make([]model.Session, 0, len(recent))
	for _, sess := range recent {
		seen[sess.ID] = struct{}{}
		out = append(out, sess)
	}
	if a.tracker != nil {
		for _, sess := range a.tracker.Active() {
			if _, ok := seen[sess.ID]; !ok {
				out = append(out, sess)
			}
		}
	}
	return out, nil
}

func (a *Analyzer) analyzeRules(sess *model.Session, now time.Time) {
	eval := a.rules.Evaluate(sess, now)

	// Last writer wins on the stored risk score.
	if err := a.persistRisk(sess, eval.RiskScore); err != nil {
		util.Error("failed to persist risk for session %d: %v", sess.ID, err)
	}

	if len(eval.Anomalies) > 0 {
		a.sink.Publish(notify.NewEvent(notify.EventAnomalyDetected, eval))
	}

	if eval.RiskScore <= a.riskThreshold {
		return
	}

	severity := model.SeverityMedium
	if eval.RiskScore > ruleHighRiskScore {
		severity = model.SeverityHigh
	}

	id := sess.ID
	rec := &model.ThreatRecord{
		Timestamp:       now,
		ThreatType:      model.ThreatTrafficAnomaly,
		Severity:        severity,
		Confidence:      eval.RiskScore / 100,
		SourceIP:        sess.ClientIP,
		SourcePort:      sess.ClientPort,
		Description:     fmt.Sprintf("traffic analysis risk score %.0f for session %d", eval.RiskScore, sess.ID),
		DetectionMethod: model.MethodRuleBased,
		SessionID:       &id,
	}
	if err := rec.SetMetadata(eval); err != nil {
		util.Error("failed to encode evaluation metadata: %v", err)
	}
	if err := a.recorder.Record(rec); err != nil {
		util.Error("failed to record rule-based threat: %v", err)
	}
}

func (a *Analyzer) analyzeEnsemble(sess *model.Session, now time.Time) {
	result := a.scorer.Detect(sess, now)
	if !result.Ready {
		return
	}

	if err := a.store.UpdateAnomalyScore(sess.ID, result.ForestScore); err != nil {
		util.Error("failed to persist anomaly score for session %d: %v", sess.ID, err)
	}

	if result.IsAnomaly {
		a.sink.Publish(notify.NewEvent(notify.EventAnomalyDetected, result))
	}

	if !result.IsAnomaly || result.Confidence <= a.confidenceThreshold {
		return
	}

	severity := model.SeverityMedium
	if result.Confidence > mlHighConfidence {
		severity = model.SeverityHigh
	}

	id := sess.ID
	rec := &model.ThreatRecord{
		Timestamp:       now,
		ThreatType:      model.ThreatMLAnomaly,
		Severity:        severity,
		Confidence:      result.Confidence,
		SourceIP:        sess.ClientIP,
		SourcePort:      sess.ClientPort,
		Description:     fmt.Sprintf("ensemble flagged session %d with confidence %.2f", sess.ID, result.Confidence),
		DetectionMethod: model.MethodML,
		SessionID:       &id,
	}
	if err := rec.SetMetadata(result); err != nil {
		util.Error("failed to encode ensemble metadata: %v", err)
	}
	if err := a.recorder.Record(rec); err != nil {
		util.Error("failed to record ensemble threat: %v", err)
	}
}

func (a *Analyzer) persistRisk(sess *model.Session, score float64) error {
	if a.tracker != nil && sess.Status == model.StatusActive {
		return a.tracker.UpdateRisk(sess.ID, score)
	}
	return a.store.UpdateRisk(sess.ID, score)
}
