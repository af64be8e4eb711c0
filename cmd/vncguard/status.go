package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/vncguard/internal/daemon"
	"github.com/user/vncguard/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  "Show the current status of the vncguard daemon and latest results.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("86"))

	runningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	stoppedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	running, pid := daemon.CheckRunning(cfg.DataDir)

	fmt.Println(titleStyle.Render("VNCGuard Status"))
	fmt.Println()

	fmt.Print(labelStyle.Render("Daemon: "))
	if running {
		fmt.Println(runningStyle.Render(fmt.Sprintf("Running (PID %d)", pid)))
	} else {
		fmt.Println(stoppedStyle.Render("Stopped"))
	}

	if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil {
		fmt.Print(labelStyle.Render("Started: "))
		fmt.Println(valueStyle.Render(sf.StartTime))

		fmt.Print(labelStyle.Render("Uptime: "))
		fmt.Println(valueStyle.Render(sf.Uptime))

		if sf.Stats != nil {
			fmt.Print(labelStyle.Render("Active sessions: "))
			fmt.Println(valueStyle.Render(fmt.Sprintf("%d", sf.Stats.ActiveSessions)))

			fmt.Print(labelStyle.Render("Active blocks: "))
			fmt.Println(valueStyle.Render(fmt.Sprintf("%d", sf.Stats.ActiveBlocks)))
		}

		if len(sf.Jobs) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Jobs"))

			for _, job := range sf.Jobs {
				statusStr := "idle"
				if job.Running {
					statusStr = "running"
				}
				fmt.Printf("  %s: %s (last: %s, errors: %d)\n",
					labelStyle.Render(job.Name),
					valueStyle.Render(statusStr),
					job.LastRun.Format("15:04:05"),
					job.ErrorCount)
			}
		}
	}

	db, err := storage.Initialize(cfg.DataDir)
	if err == nil {
		defer db.Close()

		fmt.Println()
		fmt.Println(titleStyle.Render("Database Stats"))

		sessionStore := storage.NewSessionStorage(db)
		if count, err := sessionStore.Count(); err == nil {
			fmt.Printf("  %s %s\n",
				labelStyle.Render("Sessions recorded:"),
				valueStyle.Render(fmt.Sprintf("%d", count)))
		}
		if count, err := sessionStore.CountActive(); err == nil {
			fmt.Printf("  %s %s\n",
				labelStyle.Render("Sessions active:"),
				valueStyle.Render(fmt.Sprintf("%d", count)))
		}

		threatStore := storage.NewThreatStorage(db)
		if count, err := threatStore.CountSince(time.Now().Add(-24 * time.Hour)); err == nil {
			fmt.Printf("  %s %s\n",
				labelStyle.Render("Threats (24h):"),
				valueStyle.Render(fmt.Sprintf("%d", count)))
		}
		if count, err := threatStore.CountBlocked(); err == nil {
			fmt.Printf("  %s %s\n",
				labelStyle.Render("Auto-blocked:"),
				valueStyle.Render(fmt.Sprintf("%d", count)))
		}

		ruleStore := storage.NewRuleStorage(db)
		if count, err := ruleStore.CountActive(); err == nil {
			fmt.Printf("  %s %s\n",
				labelStyle.Render("Active rules:"),
				valueStyle.Render(fmt.Sprintf("%d", count)))
		}

		// Show latest threats
		if threats, err := threatStore.GetRecent(5); err == nil && len(threats) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Latest Threats"))
			for _, t := range threats {
				fmt.Printf("  %s %s from %s (%s)\n",
					labelStyle.Render(t.Timestamp.Format("15:04:05")),
					valueStyle.Render(t.ThreatType),
					t.SourceIP,
					t.Severity)
			}
		}
	}

	return nil
}
