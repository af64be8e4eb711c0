// Package sessions tracks live VNC connections and their activity counters.
package sessions

// ConnectionDescriptor is one observed VNC connection snapshot as reported
// by a source. Counters are cumulative for the connection's lifetime.
type ConnectionDescriptor struct {
	ServerIP   string
	ServerPort int
	ClientIP   string
	ClientPort int

	DataTransferredMB   float64
	PacketsSent         int64
	PacketsReceived     int64
	ScreenshotCount     int64
	ClipboardOperations int64
	FileOperations      int64
}

// ConnectionSource enumerates the VNC connections visible right now.
// Implementations include the host connection table and the attack
// simulator.
type ConnectionSource interface {
	Poll() ([]ConnectionDescriptor, error)
}

// SourceFunc adapts a function to the ConnectionSource interface.
type SourceFunc func() ([]ConnectionDescriptor, error)

func (f SourceFunc) Poll() ([]ConnectionDescriptor, error) { return f() }
