// Package daemon runs the detection and response pipeline as a background
// service.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/user/vncguard/internal/baseline"
	"github.com/user/vncguard/internal/ensemble"
	"github.com/user/vncguard/internal/intel"
	"github.com/user/vncguard/internal/metrics"
	"github.com/user/vncguard/internal/notify"
	"github.com/user/vncguard/internal/response"
	"github.com/user/vncguard/internal/sessions"
	"github.com/user/vncguard/internal/simulation"
	"github.com/user/vncguard/internal/storage"
	"github.com/user/vncguard/internal/threat"
	"github.com/user/vncguard/internal/util"
)

// Daemon owns the pipeline components and the scheduler driving them.
type Daemon struct {
	config    *util.Config
	scheduler *Scheduler
	db        *storage.DB

	sessionStore *storage.SessionStorage
	threatStore  *storage.ThreatStorage
	ruleStore    *storage.RuleStorage
	auditStore   *storage.AuditStorage

	reputation *intel.Reputation
	hub        *notify.Hub
	sink       notify.Sink
	metrics    *metrics.Metrics
	simulator  *simulation.Simulator
	tracker    *sessions.Tracker
	baseline   *baseline.Engine
	scorer     *ensemble.Scorer
	blocker    *response.Engine
	recorder   *threat.Recorder
	analyzer   *threat.Analyzer

	pidFile   string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	startTime time.Time
	mu        sync.RWMutex
}

// New builds the daemon and wires every pipeline component.
func New(cfg *util.Config) (*Daemon, error) {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:  cfg,
		db:      db,
		pidFile: filepath.Join(cfg.DataDir, "vncguard.pid"),
		ctx:     ctx,
		cancel:  cancel,
	}

	d.sessionStore = storage.NewSessionStorage(db)
	d.threatStore = storage.NewThreatStorage(db)
	d.ruleStore = storage.NewRuleStorage(db)
	d.auditStore = storage.NewAuditStorage(db)

	d.reputation, err = intel.NewReputation(cfg.SuspiciousIPs, cfg.ReputationFile, cfg.ReputationCache)
	if err != nil {
		cancel()
		db.Close()
		return nil, fmt.Errorf("failed to build reputation list: %w", err)
	}

	d.metrics = metrics.New()
	d.hub = notify.NewHub()
	d.sink = d.buildSink()

	var enforcer response.Enforcer = response.NewCommandEnforcer()
	if cfg.EnforcementDryRun {
		enforcer = response.NoopEnforcer{}
	}
	d.blocker = response.NewEngine(enforcer, d.ruleStore, d.auditStore, d.sink, d.metrics, cfg.VNCPorts)

	d.simulator = simulation.New(localServerIP())
	source := sessions.NewMultiSource(sessions.NewProcSource(cfg.VNCPorts), d.simulator)
	d.tracker = sessions.NewTracker(source, d.sessionStore, d.reputation, d.sink, d.metrics)

	d.baseline = baseline.NewEngine(d.sessionStore, d.reputation, cfg.BaselineWindow)
	d.scorer = ensemble.NewScorer(d.sessionStore, cfg.ModelDir)
	d.recorder = threat.NewRecorder(d.threatStore, d.blocker, d.tracker, d.sink, d.metrics)
	d.analyzer = threat.NewAnalyzer(d.sessionStore, d.tracker, d.baseline, d.scorer,
		d.recorder, d.sink, d.metrics, cfg.RiskThreshold, cfg.ConfidenceThreshold, cfg.RecentWindow)

	d.scheduler = NewScheduler(ctx)

	return d, nil
}

func (d *Daemon) buildSink() notify.Sink {
	sinks := []notify.Sink{d.hub}
	if d.config.NATSURL != "" {
		nats, err := notify.NewNATSSink(d.config.NATSURL)
		if err != nil {
			util.Warn("nats sink disabled: %v", err)
		} else {
			sinks = append(sinks, nats)
		}
	}
	return notify.NewMultiSink(sinks...)
}

// Start restores persisted state, registers jobs, and launches the
// scheduler.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	util.Info("daemon starting")

	now := time.Now()
	if err := d.blocker.Restore(now); err != nil {
		util.Error("block restore failed: %v", err)
	}
	if err := d.tracker.Restore(); err != nil {
		util.Error("session restore failed: %v", err)
	}
	if err := d.baseline.Recompute(now); err != nil {
		util.Warn("initial baseline recompute failed: %v", err)
	}
	if err := d.scorer.LoadOrTrain(now); err != nil {
		util.Warn("ensemble bootstrap failed: %v", err)
	}

	d.registerJobs()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scheduler.Run()
	}()

	// Not part of the wait group: this goroutine calls Stop itself, and
	// Stop waits on the group.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go d.handleSignals(sigCh)

	util.Info("daemon started with PID %d", os.Getpid())
	return nil
}

// Wait blocks until the daemon has shut down.
func (d *Daemon) Wait() {
	d.wg.Wait()
}

// Stop shuts the daemon down gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	util.Info("daemon stopping")

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		util.Info("daemon stopped gracefully")
	case <-time.After(30 * time.Second):
		util.Warn("daemon stop timed out")
	}

	d.removePIDFile()
	d.sink.Close()
	if d.db != nil {
		d.db.Close()
	}

	return nil
}

func (d *Daemon) handleSignals(sigCh chan os.Signal) {
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		util.Info("received signal: %v", sig)
		d.Stop()
	case <-d.ctx.Done():
	}
}

func (d *Daemon) writePIDFile() error {
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (d *Daemon) removePIDFile() {
	os.Remove(d.pidFile)
}

// IsRunning reports whether the daemon is active.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Status is the current daemon state.
type Status struct {
	Running   bool
	PID       int
	StartTime time.Time
	Uptime    time.Duration
	Jobs      []JobStatus
}

// GetStatus returns the daemon status snapshot.
func (d *Daemon) GetStatus() *Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &Status{
		Running:   d.running,
		PID:       os.Getpid(),
		StartTime: d.startTime,
		Uptime:    time.Since(d.startTime),
		Jobs:      d.scheduler.GetJobStatuses(),
	}
}

// Accessors for the serving surfaces (web, TUI, CLI).

func (d *Daemon) GetDB() *storage.DB                { return d.db }
func (d *Daemon) GetConfig() *util.Config           { return d.config }
func (d *Daemon) GetContext() context.Context       { return d.ctx }
func (d *Daemon) Sessions() *storage.SessionStorage { return d.sessionStore }
func (d *Daemon) Threats() *storage.ThreatStorage   { return d.threatStore }
func (d *Daemon) Tracker() *sessions.Tracker        { return d.tracker }
func (d *Daemon) Blocker() *response.Engine         { return d.blocker }
func (d *Daemon) Simulator() *simulation.Simulator  { return d.simulator }
func (d *Daemon) Hub() *notify.Hub                  { return d.hub }
func (d *Daemon) Metrics() *metrics.Metrics         { return d.metrics }
func (d *Daemon) Baseline() *baseline.Engine        { return d.baseline }
func (d *Daemon) Scorer() *ensemble.Scorer          { return d.scorer }

// localServerIP returns the address simulated sessions claim to target.
func localServerIP() string {
	return "127.0.0.1"
}
