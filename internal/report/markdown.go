package report

import (
	"fmt"
	"strings"

	"github.com/user/vncguard/internal/model"
)

// RenderMarkdown renders the report as markdown with an embedded Mermaid
// severity chart.
func RenderMarkdown(data *Data) string {
	var sb strings.Builder

	sb.WriteString("# VNCGuard Incident Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s  \n", data.GeneratedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("Covering: since %s\n\n", data.Since.Format("2006-01-02 15:04:05")))

	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- Sessions observed: **%d** (%d still active, %d high risk)\n",
		data.SessionCount, data.ActiveCount, data.HighRiskCount))
	sb.WriteString(fmt.Sprintf("- Threats detected: **%d** (%d auto-blocked)\n",
		data.ThreatCount, data.BlockedCount))
	sb.WriteString(fmt.Sprintf("- Active blocks: **%d**\n\n", len(data.Blocks)))

	if data.ThreatCount > 0 {
		sb.WriteString("```mermaid\npie title Threats by severity\n")
		for _, sev := range []model.Severity{model.SeverityLow, model.SeverityMedium,
			model.SeverityHigh, model.SeverityCritical} {
			if n := data.ThreatsBySeverity[sev]; n > 0 {
				sb.WriteString(fmt.Sprintf("    %q : %d\n", string(sev), n))
			}
		}
		sb.WriteString("```\n\n")
	}

	if len(data.Threats) > 0 {
		sb.WriteString("## Threats\n\n")
		sb.WriteString("| Time | Type | Severity | Source | Confidence | Action |\n")
		sb.WriteString("|------|------|----------|--------|-----------:|--------|\n")
		for _, t := range data.Threats {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %.2f | %s |\n",
				t.Timestamp.Format("01-02 15:04"), t.ThreatType, t.Severity,
				t.SourceIP, t.Confidence, t.ActionTaken))
		}
		sb.WriteString("\n")
	}

	if len(data.Blocks) > 0 {
		sb.WriteString("## Active Blocks\n\n")
		sb.WriteString("| Address | Created | Expires | Origin | Reason |\n")
		sb.WriteString("|---------|---------|---------|--------|--------|\n")
		for _, b := range data.Blocks {
			expires := "never"
			if b.ExpiresAt != nil {
				expires = b.ExpiresAt.Format("01-02 15:04")
			}
			origin := "manual"
			if b.AutoCreated {
				origin = "auto"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				b.SourceIP, b.CreatedAt.Format("01-02 15:04"), expires, origin, b.Description))
		}
		sb.WriteString("\n")
	}

	if len(data.Audit) > 0 {
		sb.WriteString("## Recent Response Actions\n\n")
		for _, a := range data.Audit {
			outcome := "ok"
			if !a.Success {
				outcome = "FAILED: " + a.Error
			}
			sb.WriteString(fmt.Sprintf("- %s %s %s by %s (%s)\n",
				a.Timestamp.Format("01-02 15:04:05"), a.Action, a.Target, a.Actor, outcome))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
