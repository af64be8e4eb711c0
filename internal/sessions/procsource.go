package sessions

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/user/vncguard/internal/util"
)

// tcpEstablished is the kernel state code for an established TCP connection.
const tcpEstablished = "01"

// ProcSource enumerates established TCP connections to the watched VNC
// ports from the kernel connection table. It sees the connection tuple
// only; activity counters come from other sources.
type ProcSource struct {
	ports []int
	paths []string
}

// NewProcSource watches the given local ports.
func NewProcSource(ports []int) *ProcSource {
	return &ProcSource{
		ports: ports,
		paths: []string{"/proc/net/tcp", "/proc/net/tcp6"},
	}
}

// Poll parses the connection tables and returns descriptors for every
// established connection whose local port is a watched VNC port.
func (p *ProcSource) Poll() ([]ConnectionDescriptor, error) {
	var out []ConnectionDescriptor
	for _, path := range p.paths {
		descriptors, err := p.parseFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		out = append(out, descriptors...)
	}
	return out, nil
}

func (p *ProcSource) parseFile(path string) ([]ConnectionDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []ConnectionDescriptor
	scanner := bufio.NewScanner(f)
	scanner.Scan() // header row

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[3] != tcpEstablished {
			continue
		}

		localIP, localPort, err := parseHexAddr(fields[1])
		if err != nil {
			util.Debug("skipping unparsable local address %q: %v", fields[1], err)
			continue
		}
		if !util.ContainsPort(p.ports, localPort) {
			continue
		}

		remoteIP, remotePort, err := parseHexAddr(fields[2])
		if err != nil {
			util.Debug("skipping unparsable remote address %q: %v", fields[2], err)
			continue
		}

		out = append(out, ConnectionDescriptor{
			ServerIP:   localIP,
			ServerPort: localPort,
			ClientIP:   remoteIP,
			ClientPort: remotePort,
		})
	}

	return out, scanner.Err()
}

// parseHexAddr decodes the kernel's "HEXADDR:HEXPORT" form. IPv4 addresses
// are little-endian 32-bit values; IPv6 addresses are four such words.
func parseHexAddr(s string) (string, int, error) {
	host, portHex, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, fmt.Errorf("missing port separator")
	}

	port, err := strconv.ParseInt(portHex, 16, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port: %w", err)
	}

	raw, err := hex.DecodeString(host)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address: %w", err)
	}

	var ip net.IP
	switch len(raw) {
	case 4:
		v := binary.BigEndian.Uint32(raw)
		ip = make(net.IP, 4)
		binary.LittleEndian.PutUint32(ip, v)
	case 16:
		ip = make(net.IP, 16)
		for i := 0; i < 4; i++ {
			v := binary.BigEndian.Uint32(raw[i*4 : i*4+4])
			binary.LittleEndian.PutUint32(ip[i*4:i*4+4], v)
		}
	default:
		return "", 0, fmt.Errorf("unexpected address length %d", len(raw))
	}

	return ip.String(), int(port), nil
}

// MultiSource merges several sources into one poll result.
type MultiSource struct {
	sources []ConnectionSource
}

// NewMultiSource combines the given sources. Nil sources are skipped.
func NewMultiSource(sources ...ConnectionSource) *MultiSource {
	m := &MultiSource{}
	for _, s := range sources {
		if s != nil {
			m.sources = append(m.sources, s)
		}
	}
	return m
}

// Poll concatenates every source's result. A failing source is logged and
// skipped so one bad source does not blind the others.
func (m *MultiSource) Poll() ([]ConnectionDescriptor, error) {
	var out []ConnectionDescriptor
	for _, s := range m.sources {
		descriptors, err := s.Poll()
		if err != nil {
			util.Warn("connection source failed: %v", err)
			continue
		}
		out = append(out, descriptors...)
	}
	return out, nil
}
