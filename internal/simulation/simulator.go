// Package simulation injects synthetic attack traffic so detection and
// response can be exercised end to end without a hostile client.
package simulation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/vncguard/internal/sessions"
	"github.com/user/vncguard/internal/util"
)

// How long a simulated connection stays up before it disappears from the
// source and the tracker closes it.
const defaultRunDuration = 2 * time.Minute

// profile describes how a scenario's counters grow per minute of run time.
type profile struct {
	description string
	clientIP    string
	serverPort  int

	mbPerMinute        float64
	screenshotsPerMin  float64
	clipboardOpsPerMin float64
	fileOpsPerMin      float64
	packetsSentPerMin  float64
	packetsRecvPerMin  float64
}

// Scenario profiles. Client addresses come from documentation ranges so a
// simulation can never block real infrastructure.
var scenarios = map[string]profile{
	"file_exfiltration": {
		description:       "bulk file pulls over the VNC file transfer channel",
		clientIP:          "203.0.113.5",
		serverPort:        5900,
		mbPerMinute:       120,
		fileOpsPerMin:     40,
		packetsSentPerMin: 2000,
		packetsRecvPerMin: 90000,
	},
	"screenshot_spam": {
		description:       "rapid-fire framebuffer captures",
		clientIP:          "198.51.100.10",
		serverPort:        5901,
		mbPerMinute:       25,
		screenshotsPerMin: 60,
		packetsSentPerMin: 1500,
		packetsRecvPerMin: 30000,
	},
	"clipboard_stealing": {
		description:        "continuous clipboard polling",
		clientIP:           "192.0.2.50",
		serverPort:         5900,
		mbPerMinute:        2,
		clipboardOpsPerMin: 80,
		packetsSentPerMin:  4000,
		packetsRecvPerMin:  4000,
	},
	"large_data_transfer": {
		description:       "sustained high-volume transfer",
		clientIP:          "203.0.113.77",
		serverPort:        5902,
		mbPerMinute:       200,
		packetsSentPerMin: 3000,
		packetsRecvPerMin: 150000,
	},
	"credential_harvesting": {
		description:        "clipboard and keystroke capture mixed with file reads",
		clientIP:           "185.220.101.5",
		serverPort:         5900,
		mbPerMinute:        8,
		clipboardOpsPerMin: 50,
		fileOpsPerMin:      15,
		screenshotsPerMin:  10,
		packetsSentPerMin:  6000,
		packetsRecvPerMin:  8000,
	},
	"lateral_movement": {
		description:       "one client fanning out across several VNC hosts",
		clientIP:          "185.220.102.8",
		serverPort:        5903,
		mbPerMinute:       15,
		fileOpsPerMin:     10,
		packetsSentPerMin: 8000,
		packetsRecvPerMin: 12000,
	},
}

// Run is one active simulation.
type Run struct {
	ID       string    `json:"id"`
	Scenario string    `json:"scenario"`
	ClientIP string    `json:"client_ip"`
	Started  time.Time `json:"started"`
	Until    time.Time `json:"until"`
}

// Simulator is a connection source that reports synthetic VNC connections
// for every active run.
type Simulator struct {
	mu       sync.Mutex
	runs     map[string]*Run
	serverIP string
	duration time.Duration
}

// New builds a simulator presenting serverIP as the attacked host.
func New(serverIP string) *Simulator {
	return &Simulator{
		runs:     make(map[string]*Run),
		serverIP: serverIP,
		duration: defaultRunDuration,
	}
}

// Scenarios lists the available scenario names, sorted.
func Scenarios() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the scenario description, or an error for unknown names.
func Describe(name string) (string, error) {
	p, ok := scenarios[name]
	if !ok {
		return "", fmt.Errorf("unknown scenario %q", name)
	}
	return p.description, nil
}

// Start begins a scenario run and returns it.
func (s *Simulator) Start(scenario string, now time.Time) (*Run, error) {
	if _, ok := scenarios[scenario]; !ok {
		return nil, fmt.Errorf("unknown scenario %q (available: %v)", scenario, Scenarios())
	}

	run := &Run{
		ID:       uuid.NewString(),
		Scenario: scenario,
		ClientIP: scenarios[scenario].clientIP,
		Started:  now,
		Until:    now.Add(s.duration),
	}

	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	util.Info("simulation started: %s (%s) as %s", scenario, run.ID, run.ClientIP)
	return run, nil
}

// Stop ends a run early. Returns false if the run is unknown.
func (s *Simulator) Stop(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return false
	}
	delete(s.runs, runID)
	return true
}

// Active returns the current runs.
func (s *Simulator) Active() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, *run)
	}
	return out
}

// Poll reports one connection per active run, with counters grown in
// proportion to elapsed run time. Expired runs are dropped, which makes
// their connections vanish and the tracker close the sessions.
func (s *Simulator) Poll() ([]sessions.ConnectionDescriptor, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []sessions.ConnectionDescriptor
	for id, run := range s.runs {
		if now.After(run.Until) {
			delete(s.runs, id)
			util.Info("simulation finished: %s (%s)", run.Scenario, id)
			continue
		}

		p := scenarios[run.Scenario]
		minutes := now.Sub(run.Started).Minutes()
		out = append(out, sessions.ConnectionDescriptor{
			ServerIP:   s.serverIP,
			ServerPort: p.serverPort,
			ClientIP:   run.ClientIP,
			ClientPort: clientPort(id),

			DataTransferredMB:   p.mbPerMinute * minutes,
			ScreenshotCount:     int64(p.screenshotsPerMin * minutes),
			ClipboardOperations: int64(p.clipboardOpsPerMin * minutes),
			FileOperations:      int64(p.fileOpsPerMin * minutes),
			PacketsSent:         int64(p.packetsSentPerMin * minutes),
			PacketsReceived:     int64(p.packetsRecvPerMin * minutes),
		})
	}

	return out, nil
}

// clientPort derives a stable ephemeral port from the run ID so the
// connection key stays constant across polls.
func clientPort(runID string) int {
	var h uint32
	for _, c := range runID {
		h = h*31 + uint32(c)
	}
	return 40000 + int(h%20000)
}
