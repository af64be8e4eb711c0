// Package baseline maintains rolling traffic statistics and evaluates
// sessions against them with z-score rules.
package baseline

import (
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/user/vncguard/internal/intel"
	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/storage"
	"github.com/user/vncguard/internal/util"
)

// Z-score and rate thresholds for the rule-based detectors.
const (
	transferZThreshold   = 3.0
	transferZHigh        = 5.0
	durationZThreshold   = 2.0
	screenshotRateFactor = 10.0
	screenshotRateHigh   = 20.0
	clipboardRateFactor  = 5.0
	clipboardRateHigh    = 10.0
)

// Risk point contributions per detected factor.
const (
	riskDataTransfer = 30
	riskLongDuration = 10
	riskScreenshots  = 25
	riskClipboard    = 20
)

// Fixed remediation hints per risk factor.
var factorRecommendations = map[string][]string{
	"excessive_data_transfer": {
		"implement data loss prevention (DLP) policies",
		"monitor and limit file transfer sizes",
	},
	"screenshot_spam": {
		"limit screenshot capture frequency",
		"monitor screen sharing activity",
	},
	"clipboard_abuse": {
		"restrict clipboard operations for sensitive data",
		"enable clipboard monitoring",
	},
	"external_client": {
		"restrict VNC access to internal networks only",
		"require VPN access for external clients",
	},
	"known_suspicious_ip": {
		"block access from known malicious addresses",
		"enable enhanced monitoring for this address",
	},
}

// Anomaly is one rule-based finding about a session.
type Anomaly struct {
	Type      string         `json:"type"`
	Severity  model.Severity `json:"severity"`
	Detail    string         `json:"detail"`
	Value     float64        `json:"value"`
	Reference float64        `json:"reference"`
}

// Evaluation is the full rule-based assessment of one session.
type Evaluation struct {
	SessionID       int64     `json:"session_id"`
	Anomalies       []Anomaly `json:"anomalies"`
	RiskFactors     []string  `json:"risk_factors"`
	RiskScore       float64   `json:"risk_score"`
	Recommendations []string  `json:"recommendations"`
}

// MaxSeverity returns the highest severity among the anomalies, or low if
// there are none.
func (e *Evaluation) MaxSeverity() model.Severity {
	rank := map[model.Severity]int{
		model.SeverityLow:      0,
		model.SeverityMedium:   1,
		model.SeverityHigh:     2,
		model.SeverityCritical: 3,
	}
	max := model.SeverityLow
	for _, a := range e.Anomalies {
		if rank[a.Severity] > rank[max] {
			max = a.Severity
		}
	}
	return max
}

// Engine owns the rolling baseline. Recompute is called on a schedule;
// Evaluate reads the current snapshot and is safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	baseline model.Baseline

	store      *storage.SessionStorage
	reputation *intel.Reputation
	window     time.Duration
}

// NewEngine starts from the fallback baseline until the first recompute.
func NewEngine(store *storage.SessionStorage, reputation *intel.Reputation, window time.Duration) *Engine {
	return &Engine{
		baseline:   model.DefaultBaseline(),
		store:      store,
		reputation: reputation,
		window:     window,
	}
}

// Baseline returns the current baseline snapshot.
func (e *Engine) Baseline() model.Baseline {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.baseline
}

// Recompute rebuilds the baseline from completed sessions in the rolling
// window. An empty window keeps the fallback values.
func (e *Engine) Recompute(now time.Time) error {
	sessions, err := e.store.GetStartedSince(now.Add(-e.window))
	if err != nil {
		return fmt.Errorf("failed to load baseline window: %w", err)
	}

	var transfers, durations []float64
	for i := range sessions {
		sess := &sessions[i]
		if sess.EndTime == nil {
			continue
		}
		transfers = append(transfers, sess.DataTransferredMB)
		durations = append(durations, sess.Duration(now).Hours())
	}

	next := model.DefaultBaseline()
	next.ComputedAt = now
	next.Samples = len(transfers)

	// Any real history replaces the default means. The stddevs keep their
	// fallbacks until there are at least two samples to spread over.
	if len(transfers) > 0 {
		mean, std := stat.MeanStdDev(transfers, nil)
		next.AvgDataTransferMB = mean
		next.StdDataTransferMB = fallbackStd(std, next.StdDataTransferMB)

		mean, std = stat.MeanStdDev(durations, nil)
		next.AvgDurationHours = mean
		next.StdDurationHours = fallbackStd(std, next.StdDurationHours)
	}

	e.mu.Lock()
	e.baseline = next
	e.mu.Unlock()

	util.Info("baseline recomputed from %d sessions: transfer %.1f±%.1f MB, duration %.2f±%.2f h",
		next.Samples, next.AvgDataTransferMB, next.StdDataTransferMB,
		next.AvgDurationHours, next.StdDurationHours)
	return nil
}

// fallbackStd guards the z-score denominators. A degenerate or tiny spread
// would turn ordinary variation into huge z values.
func fallbackStd(std, fallback float64) float64 {
	if math.IsNaN(std) || std < 1e-9 {
		return fallback
	}
	return std
}

// Evaluate assesses one session against the current baseline. Scoring
// starts from the session's current risk score, so findings accumulate
// across repeated passes. It has no side effects; callers decide what to
// do with the result.
func (e *Engine) Evaluate(sess *model.Session, now time.Time) Evaluation {
	b := e.Baseline()

	eval := Evaluation{SessionID: sess.ID, RiskScore: sess.RiskScore}

	e.checkTransfer(&eval, sess, b)
	e.checkDuration(&eval, sess, b, now)
	e.checkScreenshots(&eval, sess, b, now)
	e.checkClipboard(&eval, sess, b, now)
	e.checkOrigin(&eval, sess)

	eval.RiskScore = model.ClampRisk(eval.RiskScore)
	for _, factor := range eval.RiskFactors {
		eval.Recommendations = append(eval.Recommendations, factorRecommendations[factor]...)
	}

	return eval
}

func (e *Engine) checkTransfer(eval *Evaluation, sess *model.Session, b model.Baseline) {
	z := (sess.DataTransferredMB - b.AvgDataTransferMB) / b.StdDataTransferMB
	if z <= transferZThreshold {
		return
	}

	severity := model.SeverityMedium
	if z > transferZHigh {
		severity = model.SeverityHigh
	}
	eval.Anomalies = append(eval.Anomalies, Anomaly{
		Type:      model.ThreatLargeTransfer,
		Severity:  severity,
		Detail:    fmt.Sprintf("data transfer %.1f MB is %.1f standard deviations above normal", sess.DataTransferredMB, z),
		Value:     sess.DataTransferredMB,
		Reference: b.AvgDataTransferMB,
	})
	eval.RiskFactors = append(eval.RiskFactors, "excessive_data_transfer")
	eval.RiskScore += riskDataTransfer
}

// checkDuration only fires on ended sessions; an open session's length is
// still growing and would trip the rule spuriously.
func (e *Engine) checkDuration(eval *Evaluation, sess *model.Session, b model.Baseline, now time.Time) {
	if sess.EndTime == nil {
		return
	}

	hours := sess.Duration(now).Hours()
	z := (hours - b.AvgDurationHours) / b.StdDurationHours
	if math.Abs(z) <= durationZThreshold {
		return
	}

	eval.Anomalies = append(eval.Anomalies, Anomaly{
		Type:      "unusual_session_duration",
		Severity:  model.SeverityMedium,
		Detail:    fmt.Sprintf("session length %.2f h deviates %.1f standard deviations from normal", hours, z),
		Value:     hours,
		Reference: b.AvgDurationHours,
	})
	eval.RiskFactors = append(eval.RiskFactors, "unusual_duration")
	eval.RiskScore += riskLongDuration
}

func (e *Engine) checkScreenshots(eval *Evaluation, sess *model.Session, b model.Baseline, now time.Time) {
	rate := perMinute(float64(sess.ScreenshotCount), sess.Duration(now))
	if rate <= b.NormalScreenshotRate*screenshotRateFactor {
		return
	}

	severity := model.SeverityMedium
	if rate > b.NormalScreenshotRate*screenshotRateHigh {
		severity = model.SeverityHigh
	}
	eval.Anomalies = append(eval.Anomalies, Anomaly{
		Type:      model.ThreatScreenshotSpam,
		Severity:  severity,
		Detail:    fmt.Sprintf("screenshot rate %.1f/min far exceeds normal %.1f/min", rate, b.NormalScreenshotRate),
		Value:     rate,
		Reference: b.NormalScreenshotRate,
	})
	eval.RiskFactors = append(eval.RiskFactors, "screenshot_spam")
	eval.RiskScore += riskScreenshots
}

func (e *Engine) checkClipboard(eval *Evaluation, sess *model.Session, b model.Baseline, now time.Time) {
	rate := perMinute(float64(sess.ClipboardOperations), sess.Duration(now))
	if rate <= b.NormalClipboardRate*clipboardRateFactor {
		return
	}

	severity := model.SeverityMedium
	if rate > b.NormalClipboardRate*clipboardRateHigh {
		severity = model.SeverityHigh
	}
	eval.Anomalies = append(eval.Anomalies, Anomaly{
		Type:      model.ThreatClipboardAbuse,
		Severity:  severity,
		Detail:    fmt.Sprintf("clipboard rate %.1f/min far exceeds normal %.1f/min", rate, b.NormalClipboardRate),
		Value:     rate,
		Reference: b.NormalClipboardRate,
	})
	eval.RiskFactors = append(eval.RiskFactors, "clipboard_abuse")
	eval.RiskScore += riskClipboard
}

// checkOrigin only labels the factors. The origin point contributions are
// already part of the session's initial risk score and must not be added
// again on every pass.
func (e *Engine) checkOrigin(eval *Evaluation, sess *model.Session) {
	if !util.IsInternalIP(sess.ClientIP) {
		eval.RiskFactors = append(eval.RiskFactors, "external_client")
	}
	if e.reputation != nil && e.reputation.IsSuspicious(sess.ClientIP) {
		eval.RiskFactors = append(eval.RiskFactors, "known_suspicious_ip")
	}
}

// perMinute guards against zero-length sessions.
func perMinute(count float64, d time.Duration) float64 {
	minutes := d.Minutes()
	if minutes < 1.0/60 {
		minutes = 1.0 / 60
	}
	return count / minutes
}
