package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsInternalIP(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.5", true},
		{"172.16.0.1", true},
		{"192.168.1.50", true},
		{"169.254.1.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"8.8.8.8", false},
		{"203.0.113.5", false},
		{"2001:db8::1", false},
		{"not-an-ip", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsInternalIP(tt.addr), "address %s", tt.addr)
	}
}

func TestValidIP(t *testing.T) {
	assert.True(t, ValidIP("203.0.113.5"))
	assert.True(t, ValidIP("2001:db8::1"))
	assert.False(t, ValidIP("203.0.113.5/24"))
	assert.False(t, ValidIP("example.com"))
	assert.False(t, ValidIP(""))
}

func TestPortsCSV(t *testing.T) {
	assert.Equal(t, "5900,5901,5902", PortsCSV([]int{5900, 5901, 5902}))
	assert.Equal(t, "5900", PortsCSV([]int{5900}))
	assert.Equal(t, "", PortsCSV(nil))
}

func TestContainsPort(t *testing.T) {
	ports := []int{5900, 5901}
	assert.True(t, ContainsPort(ports, 5900))
	assert.False(t, ContainsPort(ports, 5999))
	assert.False(t, ContainsPort(nil, 5900))
}

func TestHostPort(t *testing.T) {
	assert.Equal(t, "192.168.1.10:5900", HostPort("192.168.1.10", 5900))
}
