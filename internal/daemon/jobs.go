package daemon

import (
	"context"
	"time"

	"github.com/user/vncguard/internal/util"
)

// registerJobs wires the pipeline's periodic work into the scheduler.
// Every job keeps its own cadence; none waits on another.
func (d *Daemon) registerJobs() {
	d.scheduler.AddJob(&Job{
		Name:     "connection_poll",
		Interval: d.config.PollInterval,
		Run:      d.runConnectionPoll,
	})

	d.scheduler.AddJob(&Job{
		Name:     "traffic_analysis",
		Interval: d.config.AnalysisInterval,
		Run:      d.runTrafficAnalysis,
	})

	d.scheduler.AddJob(&Job{
		Name:     "block_sweep",
		Interval: d.config.SweepInterval,
		Run:      d.runBlockSweep,
	})

	d.scheduler.AddJob(&Job{
		Name:     "baseline_recompute",
		Interval: d.config.BaselineInterval,
		Run:      d.runBaselineRecompute,
	})

	d.scheduler.AddJob(&Job{
		Name:     "reputation_refresh",
		Interval: d.config.SweepInterval,
		Run:      d.runReputationRefresh,
	})

	d.scheduler.AddJob(&Job{
		Name:     "status_write",
		Interval: d.config.StatusInterval,
		Run:      d.runStatusWrite,
	})
}

func (d *Daemon) runConnectionPoll(ctx context.Context) error {
	return d.tracker.Poll(time.Now())
}

func (d *Daemon) runTrafficAnalysis(ctx context.Context) error {
	return d.analyzer.Run(time.Now())
}

func (d *Daemon) runBlockSweep(ctx context.Context) error {
	removed, err := d.blocker.SweepExpired(time.Now())
	if err != nil {
		return err
	}
	if removed > 0 {
		util.Debug("block sweep removed %d expired blocks", removed)
	}
	return nil
}

func (d *Daemon) runBaselineRecompute(ctx context.Context) error {
	if err := d.baseline.Recompute(time.Now()); err != nil {
		return err
	}
	// Retrain opportunistically once real history accumulates.
	if !d.scorer.Ready() {
		return d.scorer.Train(time.Now())
	}
	return nil
}

func (d *Daemon) runReputationRefresh(ctx context.Context) error {
	return d.reputation.Refresh()
}

func (d *Daemon) runStatusWrite(ctx context.Context) error {
	stats, err := d.collectStats()
	if err != nil {
		util.Warn("stats collection incomplete: %v", err)
	}
	return WriteStatusFile(d.config.DataDir, d.GetStatus(), stats)
}
