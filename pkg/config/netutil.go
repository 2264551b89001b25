package config

import (
	"net"
	"strconv"
)

// LocalIP returns the first non-loopback, non-link-local interface address,
// preferring IPv4. It falls back to 127.0.0.1.
func LocalIP() string {
	ip := "127.0.0.1"
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ip
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		candidate := ipNet.IP
		if candidate.IsLoopback() || candidate.IsLinkLocalUnicast() || candidate.IsLinkLocalMulticast() {
			continue
		}
		ip = candidate.String()
		if candidate.To4() != nil {
			break
		}
	}
	return ip
}

// AvailablePort returns the first port at or above start that can be bound on
// all interfaces, or 0 when none is free.
func AvailablePort(start int) int {
	if start < 1 {
		start = 1
	}
	for port := start; port < 65535; port++ {
		if PortAvailable(port) {
			return port
		}
	}
	return 0
}

// PortAvailable reports whether port can be bound on all interfaces.
func PortAvailable(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	defer ln.Close()
	tcp, ok := ln.Addr().(*net.TCPAddr)
	return ok && tcp.Port == port
}
