package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/vncguard/internal/storage"
	"github.com/user/vncguard/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal dashboard",
	Long: `Launch an interactive terminal dashboard showing live monitoring status.

The dashboard shows:
- Daemon status and job health
- Active VNC sessions with risk scores
- Recent threats
- Active blocks

Press 'r' to refresh, 'q' to quit.`,
	RunE: runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	app := tui.NewApp(db, cfg)
	return app.Run()
}
