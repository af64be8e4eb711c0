package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/vncguard/internal/simulation"
)

var simulatePort int

var simulateCmd = &cobra.Command{
	Use:   "simulate [scenario]",
	Short: "Run an attack simulation against the running daemon",
	Long: `Inject a synthetic attack session so detection and response can be
verified end to end. Without arguments, lists the available scenarios.

The daemon must be running with the web API enabled (start --with-web).

Examples:
  vncguard simulate
  vncguard simulate file_exfiltration`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVarP(&simulatePort, "port", "p", 8080,
		"Port of the daemon's web API")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println("Available scenarios:")
		for _, name := range simulation.Scenarios() {
			desc, _ := simulation.Describe(name)
			fmt.Printf("  %-24s %s\n", name, desc)
		}
		return nil
	}

	scenario := args[0]
	if _, err := simulation.Describe(scenario); err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]string{"scenario": scenario})
	url := fmt.Sprintf("http://localhost:%d/api/simulations", simulatePort)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cannot reach daemon API at %s (is it running with --with-web?): %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]string
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("simulation rejected: %s", apiErr["error"])
	}

	var run simulation.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}

	fmt.Printf("Simulation started: %s\n", run.Scenario)
	fmt.Printf("  run ID:    %s\n", run.ID)
	fmt.Printf("  client IP: %s\n", run.ClientIP)
	fmt.Printf("  runs until %s\n", run.Until.Format("15:04:05"))
	fmt.Println("Watch `vncguard status` or the dashboard for detections.")

	return nil
}
