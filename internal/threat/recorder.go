// Package threat records detections and drives the automated response.
package threat

import (
	"fmt"
	"time"

	"github.com/user/vncguard/internal/metrics"
	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/notify"
	"github.com/user/vncguard/internal/response"
	"github.com/user/vncguard/internal/sessions"
	"github.com/user/vncguard/internal/storage"
	"github.com/user/vncguard/internal/util"
)

// Recorder persists threats and triggers automatic blocks for severe ones.
type Recorder struct {
	threats *storage.ThreatStorage
	blocker *response.Engine
	tracker *sessions.Tracker
	sink    notify.Sink
	metrics *metrics.Metrics
}

// NewRecorder wires the recorder to its collaborators. tracker may be nil
// when there is no live-session map to update.
func NewRecorder(threats *storage.ThreatStorage, blocker *response.Engine,
	tracker *sessions.Tracker, sink notify.Sink, m *metrics.Metrics) *Recorder {
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Recorder{
		threats: threats,
		blocker: blocker,
		tracker: tracker,
		sink:    sink,
		metrics: m,
	}
}

// Record persists the threat and, for high and critical severities, blocks
// the source address. The record's ActionTaken and BlockedAutomatically
// fields reflect what actually happened.
func (r *Recorder) Record(rec *model.ThreatRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.ActionTaken == "" {
		rec.ActionTaken = "logged"
	}

	if err := r.threats.Insert(rec); err != nil {
		return fmt.Errorf("failed to record threat: %w", err)
	}

	if r.metrics != nil {
		r.metrics.ThreatsDetected.
			WithLabelValues(string(rec.DetectionMethod), string(rec.Severity)).Inc()
	}
	r.sink.Publish(notify.NewEvent(notify.EventThreatRecorded, rec))
	util.Warn("threat recorded: %s from %s (severity %s, confidence %.2f)",
		rec.ThreatType, rec.SourceIP, rec.Severity, rec.Confidence)

	if rec.Severity == model.SeverityHigh || rec.Severity == model.SeverityCritical {
		r.autoBlock(rec)
	}

	return nil
}

func (r *Recorder) autoBlock(rec *model.ThreatRecord) {
	if r.blocker == nil {
		return
	}

	if _, err := r.blocker.AutoBlockFromThreat(rec); err != nil {
		util.Warn("automatic block for threat %d failed: %v", rec.ID, err)
		return
	}

	rec.ActionTaken = "blocked"
	rec.BlockedAutomatically = true
	if err := r.threats.UpdateAction(rec.ID, rec.ActionTaken, true); err != nil {
		util.Error("failed to update threat %d action: %v", rec.ID, err)
	}

	if r.tracker != nil {
		r.tracker.MarkBlocked(rec.SourceIP, time.Now())
	}
}
