package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/vncguard/internal/report"
	"github.com/user/vncguard/internal/storage"
)

var (
	reportSince  string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate an incident report",
	Long: `Generate a markdown incident report covering sessions, threats,
blocks, and response actions.

Examples:
  vncguard report
  vncguard report --since 7d --output incidents.md`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportSince, "since", "s", "24h",
		"Report window (e.g. 24h, 7d)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "",
		"Write report to file instead of stdout")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	window, err := parseWindow(reportSince)
	if err != nil {
		return err
	}

	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	gen := report.NewGenerator(db)
	data, err := gen.Generate(time.Now().Add(-window))
	if err != nil {
		return err
	}

	rendered := report.RenderMarkdown(data)

	if reportOutput == "" {
		fmt.Print(rendered)
		return nil
	}

	if err := os.WriteFile(reportOutput, []byte(rendered), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Printf("Report written to %s\n", reportOutput)
	return nil
}

// parseWindow accepts Go durations plus a day suffix.
func parseWindow(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", s, err)
	}
	return d, nil
}
