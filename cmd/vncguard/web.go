package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/vncguard/internal/daemon"
	"github.com/user/vncguard/internal/web"
)

var webPort int

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Run the daemon with the web dashboard in the foreground",
	Long: `Run the monitoring pipeline with the web dashboard in the foreground.

The web server provides:
- Live session, threat, and block views
- Manual block and unblock controls
- Attack simulation triggers
- Prometheus metrics at /metrics
- A live event stream over websocket at /ws

Examples:
  vncguard web
  vncguard web --port 8080`,
	RunE: runWeb,
}

func init() {
	webCmd.Flags().IntVarP(&webPort, "port", "p", 8080, "Web server port")
}

func runWeb(cmd *cobra.Command, args []string) error {
	if running, pid := daemon.CheckRunning(cfg.DataDir); running {
		return fmt.Errorf("daemon already running (PID %d); use start --with-web instead", pid)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Printf("Starting web server on http://localhost:%d\n", webPort)
	fmt.Println("Press Ctrl+C to stop")

	srv := web.NewServer(d, webPort)
	return srv.Start()
}
