package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// IsInternalIP reports whether an address is private, loopback, or link-local.
// The response engine refuses to block internal infrastructure.
func IsInternalIP(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// ValidIP reports whether the string parses as an IPv4 or IPv6 address.
func ValidIP(addr string) bool {
	return net.ParseIP(addr) != nil
}

// PortsCSV renders a port set as the comma-separated form stored on
// firewall rules and passed to the enforcement commands.
func PortsCSV(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

// ContainsPort reports whether port is in the configured VNC port set.
func ContainsPort(ports []int, port int) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}

// HostPort formats an address and port for logging.
func HostPort(addr string, port int) string {
	return fmt.Sprintf("%s:%d", addr, port)
}
