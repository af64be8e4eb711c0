package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/vncguard/internal/daemon"
	"github.com/user/vncguard/internal/response"
	"github.com/user/vncguard/internal/storage"
)

var (
	blockMinutes int
	blockReason  string
)

var blockCmd = &cobra.Command{
	Use:   "block <ip>",
	Short: "Block an address",
	Long: `Block an address at the firewall and record the rule.

Examples:
  vncguard block 203.0.113.5
  vncguard block 203.0.113.5 --minutes 60 --reason "manual review"`,
	Args: cobra.ExactArgs(1),
	RunE: runBlock,
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <ip>",
	Short: "Unblock an address",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnblock,
}

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List active blocks",
	RunE:  runBlocks,
}

var allowVPNCmd = &cobra.Command{
	Use:   "allow-vpn <cidr>",
	Short: "Record a VPN-only allow rule for the VNC ports",
	Long: `Record a persistent allow rule restricting VNC access to a VPN network.

Examples:
  vncguard allow-vpn 10.8.0.0/24`,
	Args: cobra.ExactArgs(1),
	RunE: runAllowVPN,
}

func init() {
	blockCmd.Flags().IntVarP(&blockMinutes, "minutes", "m", 0,
		"Block duration in minutes (0 = permanent)")
	blockCmd.Flags().StringVarP(&blockReason, "reason", "r", "manual block",
		"Reason recorded with the block")
}

// blockEngine builds a response engine over the shared database. Changes
// made here reach a running daemon's in-memory ledger at its next restart;
// the firewall and the rule table are updated immediately.
func blockEngine() (*response.Engine, *storage.DB, error) {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var enforcer response.Enforcer = response.NewCommandEnforcer()
	if cfg.EnforcementDryRun {
		enforcer = response.NoopEnforcer{}
	}

	engine := response.NewEngine(enforcer, storage.NewRuleStorage(db),
		storage.NewAuditStorage(db), nil, nil, cfg.VNCPorts)
	return engine, db, nil
}

func runBlock(cmd *cobra.Command, args []string) error {
	engine, db, err := blockEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	entry, err := engine.Block(args[0], time.Duration(blockMinutes)*time.Minute,
		blockReason, nil, response.ActorAdmin)
	if err != nil {
		return err
	}

	if entry.ExpiresAt != nil {
		fmt.Printf("Blocked %s until %s\n", entry.Address,
			entry.ExpiresAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Printf("Blocked %s permanently\n", entry.Address)
	}

	if running, pid := daemon.CheckRunning(cfg.DataDir); running {
		fmt.Printf("Note: the running daemon (PID %d) picks this up on restart\n", pid)
	}
	return nil
}

func runAllowVPN(cmd *cobra.Command, args []string) error {
	engine, db, err := blockEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	rule, err := engine.AllowVPNOnly(args[0], response.ActorAdmin)
	if err != nil {
		return err
	}

	fmt.Printf("Recorded allow rule %s for ports %s\n", rule.RuleName, rule.Ports)
	return nil
}

func runUnblock(cmd *cobra.Command, args []string) error {
	engine, db, err := blockEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	ok, err := engine.Unblock(args[0], response.ActorAdmin)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s was not blocked\n", args[0])
		return nil
	}

	fmt.Printf("Unblocked %s\n", args[0])
	return nil
}

func runBlocks(cmd *cobra.Command, args []string) error {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	rules, err := storage.NewRuleStorage(db).GetActive()
	if err != nil {
		return err
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	fmt.Println(titleStyle.Render("Active Blocks"))
	if len(rules) == 0 {
		fmt.Println(dimStyle.Render("  none"))
		return nil
	}

	for _, r := range rules {
		if r.Action != "deny" {
			continue
		}
		expires := "never"
		if r.ExpiresAt != nil {
			expires = r.ExpiresAt.Format("2006-01-02 15:04:05")
		}
		origin := "manual"
		if r.AutoCreated {
			origin = "auto"
		}
		fmt.Printf("  %-18s %-6s expires %-20s %s\n",
			r.SourceIP, origin, expires, dimStyle.Render(r.Description))
	}

	return nil
}
