package tui

import (
	"fmt"
	"strings"
)

// DashboardData holds data for the dashboard view.
type DashboardData struct {
	DaemonRunning bool
	DaemonPID     int
	Uptime        string
	TotalSessions int
	ThreatsToday  int

	Sessions []SessionInfo
	Threats  []ThreatInfo
	Blocks   []BlockInfo
}

// SessionInfo is one active session for display.
type SessionInfo struct {
	Client   string
	Server   string
	MB       float64
	Risk     float64
	Duration string
}

// ThreatInfo is one recent threat for display.
type ThreatInfo struct {
	Time     string
	Type     string
	Severity string
	Source   string
	Blocked  bool
}

// BlockInfo is one active block for display.
type BlockInfo struct {
	Address string
	Reason  string
	Expires string
}

// Dashboard is the main dashboard view.
type Dashboard struct {
	data   *DashboardData
	width  int
	height int
}

// NewDashboard creates a new dashboard.
func NewDashboard(msg dataMsg, width, height int) *Dashboard {
	return &Dashboard{
		data:   msg.Data,
		width:  width,
		height: height,
	}
}

// SetSize updates the dashboard size.
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var sb strings.Builder

	header := HeaderStyle.Width(d.width).Render("🛡 VNCGuard")
	sb.WriteString(header)
	sb.WriteString("\n\n")

	sb.WriteString(d.renderStatusSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderSessionsSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderThreatsSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderBlocksSection())
	sb.WriteString("\n")

	help := HelpStyle.Render("Press 'r' to refresh • 'q' to quit")
	sb.WriteString(help)

	return sb.String()
}

func (d *Dashboard) sectionWidth() int {
	w := d.width - 4
	if w < 40 {
		w = 40
	}
	return w
}

func (d *Dashboard) renderStatusSection() string {
	daemonLine := RenderStatus(d.data.DaemonRunning, "daemon running", "daemon stopped")
	if d.data.DaemonRunning {
		daemonLine += DimStyle.Render(fmt.Sprintf("  pid %d  up %s", d.data.DaemonPID, d.data.Uptime))
	}

	content := fmt.Sprintf(
		"%s\n%s %s\n%s %s",
		daemonLine,
		LabelStyle.Render("Sessions:"),
		ValueStyle.Render(fmt.Sprintf("%d total, %d active", d.data.TotalSessions, len(d.data.Sessions))),
		LabelStyle.Render("Threats 24h:"),
		ValueStyle.Render(fmt.Sprintf("%d", d.data.ThreatsToday)),
	)

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("📡 Status") + "\n" + content)
}

func (d *Dashboard) renderSessionsSection() string {
	if len(d.data.Sessions) == 0 {
		content := DimStyle.Render("No active VNC sessions")
		return SectionStyle.Width(d.sectionWidth()).Render(
			SectionTitleStyle.Render("🖥️ Active Sessions") + "\n" + content)
	}

	var rows []string
	rows = append(rows, fmt.Sprintf("%-18s %-20s %8s %6s %10s", "Client", "Server", "MB", "Risk", "Duration"))
	rows = append(rows, strings.Repeat("─", 68))

	for i, s := range d.data.Sessions {
		if i >= 10 {
			rows = append(rows, DimStyle.Render(fmt.Sprintf("... and %d more", len(d.data.Sessions)-10)))
			break
		}
		risk := fmt.Sprintf("%.0f", s.Risk)
		if s.Risk > 70 {
			risk = ErrorStyle.Render(risk)
		} else if s.Risk > 40 {
			risk = WarningStyle.Render(risk)
		}
		rows = append(rows, fmt.Sprintf("%-18s %-20s %8.1f %6s %10s",
			s.Client, s.Server, s.MB, risk, s.Duration))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("🖥️ Active Sessions") + "\n" + strings.Join(rows, "\n"))
}

func (d *Dashboard) renderThreatsSection() string {
	if len(d.data.Threats) == 0 {
		content := DimStyle.Render("No threats recorded")
		return SectionStyle.Width(d.sectionWidth()).Render(
			SectionTitleStyle.Render("⚠️ Recent Threats") + "\n" + content)
	}

	var rows []string
	rows = append(rows, fmt.Sprintf("%-10s %-26s %-9s %-18s %s", "Time", "Type", "Severity", "Source", "Action"))
	rows = append(rows, strings.Repeat("─", 74))

	for _, t := range d.data.Threats {
		severity := t.Severity
		switch t.Severity {
		case "high", "critical":
			severity = ErrorStyle.Render(severity)
		case "medium":
			severity = WarningStyle.Render(severity)
		}
		action := "logged"
		if t.Blocked {
			action = SuccessStyle.Render("blocked")
		}
		rows = append(rows, fmt.Sprintf("%-10s %-26s %-9s %-18s %s",
			t.Time, truncate(t.Type, 24), severity, t.Source, action))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("⚠️ Recent Threats") + "\n" + strings.Join(rows, "\n"))
}

func (d *Dashboard) renderBlocksSection() string {
	if len(d.data.Blocks) == 0 {
		content := DimStyle.Render("No active blocks")
		return SectionStyle.Width(d.sectionWidth()).Render(
			SectionTitleStyle.Render("🚫 Active Blocks") + "\n" + content)
	}

	var rows []string
	rows = append(rows, fmt.Sprintf("%-18s %-36s %s", "Address", "Reason", "Expires"))
	rows = append(rows, strings.Repeat("─", 66))

	for _, b := range d.data.Blocks {
		rows = append(rows, fmt.Sprintf("%-18s %-36s %s", b.Address, truncate(b.Reason, 34), b.Expires))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("🚫 Active Blocks") + "\n" + strings.Join(rows, "\n"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
