package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/user/vncguard/internal/model"
)

// CheckRunning reports whether a daemon is already running for this data
// directory, and its PID.
func CheckRunning(dataDir string) (bool, int) {
	pidFile := filepath.Join(dataDir, "vncguard.pid")

	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// Signal 0 probes for existence without touching the process.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, 0
	}

	return true, pid
}

// SendStop signals the running daemon to shut down.
func SendStop(dataDir string) error {
	running, pid := CheckRunning(dataDir)
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}

	return nil
}

// StatusFile is the serialized daemon status written for the CLI and
// other out-of-process readers.
type StatusFile struct {
	Running   bool                `json:"running"`
	PID       int                 `json:"pid"`
	StartTime string              `json:"start_time"`
	Uptime    string              `json:"uptime"`
	Stats     *model.SessionStats `json:"stats,omitempty"`
	Jobs      []JobStatus         `json:"jobs"`
}

// WriteStatusFile serializes the daemon status to the data directory.
func WriteStatusFile(dataDir string, status *Status, stats *model.SessionStats) error {
	statusFile := filepath.Join(dataDir, "status.json")

	sf := StatusFile{
		Running:   status.Running,
		PID:       status.PID,
		StartTime: status.StartTime.Format("2006-01-02 15:04:05"),
		Uptime:    status.Uptime.String(),
		Stats:     stats,
		Jobs:      status.Jobs,
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(statusFile, data, 0644)
}

// ReadStatusFile loads the last written daemon status.
func ReadStatusFile(dataDir string) (*StatusFile, error) {
	statusFile := filepath.Join(dataDir, "status.json")

	data, err := os.ReadFile(statusFile)
	if err != nil {
		return nil, err
	}

	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, err
	}

	return &sf, nil
}

// collectStats gathers the point-in-time summary for status surfaces.
// Partial results are returned alongside the first error encountered.
func (d *Daemon) collectStats() (*model.SessionStats, error) {
	stats := &model.SessionStats{}
	var firstErr error

	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	var err error
	stats.ActiveSessions, err = d.sessionStore.CountActive()
	note(err)
	stats.TotalSessions, err = d.sessionStore.Count()
	note(err)
	stats.ThreatsDetected, err = d.threatStore.CountSince(time.Time{})
	note(err)
	stats.ThreatsBlocked, err = d.threatStore.CountBlocked()
	note(err)
	stats.ActiveRules, err = d.ruleStore.CountActive()
	note(err)
	stats.ActiveBlocks = d.blocker.Stats().ActiveBlocks

	return stats, firstErr
}
