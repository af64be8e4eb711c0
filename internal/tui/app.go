// Package tui provides a terminal user interface.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/vncguard/internal/daemon"
	"github.com/user/vncguard/internal/storage"
	"github.com/user/vncguard/internal/util"
)

// App is the main TUI application. It reads the shared database and status
// file, so it works whether or not it runs in the daemon process.
type App struct {
	db     *storage.DB
	config *util.Config
}

// NewApp creates a new TUI application.
func NewApp(db *storage.DB, cfg *util.Config) *App {
	return &App{
		db:     db,
		config: cfg,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(newModel(a.db, a.config), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// tickInterval drives periodic refresh.
const tickInterval = 5 * time.Second

type model struct {
	db        *storage.DB
	config    *util.Config
	dashboard *Dashboard
	spinner   spinner.Model
	ready     bool
	width     int
	height    int
	err       error
}

func newModel(db *storage.DB, cfg *util.Config) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		db:      db,
		config:  cfg,
		spinner: s,
	}
}

// Init initializes the model.
func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		loadData(m.db, m.config),
		tick(),
	)
}

// Update handles messages.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, loadData(m.db, m.config)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.dashboard != nil {
			m.dashboard.SetSize(msg.Width, msg.Height)
		}

	case dataMsg:
		m.ready = true
		m.err = nil
		m.dashboard = NewDashboard(msg, m.width, m.height)

	case tickMsg:
		return m, tea.Batch(loadData(m.db, m.config), tick())

	case errMsg:
		m.err = msg.err

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI.
func (m model) View() string {
	if m.err != nil {
		return ErrorStyle.Render("Error: " + m.err.Error())
	}

	if !m.ready {
		return LoadingStyle.Render(m.spinner.View() + " Loading...")
	}

	return m.dashboard.View()
}

// Messages
type dataMsg struct {
	Data *DashboardData
}

type errMsg struct {
	err error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func loadData(db *storage.DB, cfg *util.Config) tea.Cmd {
	return func() tea.Msg {
		data, err := fetchDashboardData(db, cfg)
		if err != nil {
			return errMsg{err}
		}
		return dataMsg{Data: data}
	}
}

func fetchDashboardData(db *storage.DB, cfg *util.Config) (*DashboardData, error) {
	data := &DashboardData{}

	running, pid := daemon.CheckRunning(cfg.DataDir)
	data.DaemonRunning = running
	data.DaemonPID = pid
	if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil {
		data.Uptime = sf.Uptime
	}

	sessionStore := storage.NewSessionStorage(db)
	if sessions, err := sessionStore.GetActive(); err == nil {
		for _, s := range sessions {
			data.Sessions = append(data.Sessions, SessionInfo{
				Client:   s.ClientIP,
				Server:   util.HostPort(s.ServerIP, s.ServerPort),
				MB:       s.DataTransferredMB,
				Risk:     s.RiskScore,
				Duration: time.Since(s.StartTime).Round(time.Second).String(),
			})
		}
	}
	if count, err := sessionStore.Count(); err == nil {
		data.TotalSessions = count
	}

	threatStore := storage.NewThreatStorage(db)
	if threats, err := threatStore.GetRecent(10); err == nil {
		for _, t := range threats {
			data.Threats = append(data.Threats, ThreatInfo{
				Time:     t.Timestamp.Format("15:04:05"),
				Type:     t.ThreatType,
				Severity: string(t.Severity),
				Source:   t.SourceIP,
				Blocked:  t.BlockedAutomatically,
			})
		}
	}
	if count, err := threatStore.CountSince(time.Now().Add(-24 * time.Hour)); err == nil {
		data.ThreatsToday = count
	}

	ruleStore := storage.NewRuleStorage(db)
	if rules, err := ruleStore.GetActive(); err == nil {
		for _, r := range rules {
			expires := "never"
			if r.ExpiresAt != nil {
				expires = r.ExpiresAt.Format("15:04:05")
			}
			data.Blocks = append(data.Blocks, BlockInfo{
				Address: r.SourceIP,
				Reason:  r.Description,
				Expires: expires,
			})
		}
	}

	return data, nil
}
