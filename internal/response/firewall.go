// Package response blocks offending addresses, keeps firewall state
// consistent with the database, and expires blocks on schedule.
package response

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/user/vncguard/internal/util"
)

// Enforcer applies a block at the host firewall. Enforcement is best
// effort: the block ledger stays authoritative even when the host refuses
// the rule.
type Enforcer interface {
	Block(addr string) error
	Unblock(addr string) error
}

// NoopEnforcer records nothing at the host. Used in dry-run mode.
type NoopEnforcer struct{}

func (NoopEnforcer) Block(addr string) error {
	util.Debug("dry-run: would block %s", addr)
	return nil
}

func (NoopEnforcer) Unblock(addr string) error {
	util.Debug("dry-run: would unblock %s", addr)
	return nil
}

// CommandEnforcer shells out to the platform firewall tool.
type CommandEnforcer struct {
	run func(name string, args ...string) error
}

// NewCommandEnforcer builds an enforcer for the current platform.
func NewCommandEnforcer() *CommandEnforcer {
	return &CommandEnforcer{
		run: func(name string, args ...string) error {
			out, err := exec.Command(name, args...).CombinedOutput()
			if err != nil {
				return fmt.Errorf("%s: %w (%s)", name, err, out)
			}
			return nil
		},
	}
}

func (c *CommandEnforcer) Block(addr string) error {
	if runtime.GOOS == "windows" {
		return c.run("netsh", "advfirewall", "firewall", "add", "rule",
			"name=vncguard-block-"+addr, "dir=in", "action=block",
			"remoteip="+addr)
	}
	return c.run("iptables", "-I", "INPUT", "-s", addr, "-j", "DROP")
}

func (c *CommandEnforcer) Unblock(addr string) error {
	if runtime.GOOS == "windows" {
		return c.run("netsh", "advfirewall", "firewall", "delete", "rule",
			"name=vncguard-block-"+addr)
	}
	return c.run("iptables", "-D", "INPUT", "-s", addr, "-j", "DROP")
}
