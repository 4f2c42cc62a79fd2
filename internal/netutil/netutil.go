// Package netutil discovers the LAN address and free ports the server
// advertises to players.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrNoFreePort is returned when every candidate port is in use.
var ErrNoFreePort = errors.New("no free port")

// fallbackIP is returned when no usable address can be discovered.
const fallbackIP = "127.0.0.1"

// LocalIP returns the first non-loopback, non-link-local IPv4 address of an
// up interface. When interface enumeration finds none it asks the routing
// table via an unconnected UDP socket, and falls back to 127.0.0.1.
//
// Postcondition: Always returns a dotted IPv4 string.
func LocalIP() string {
	if ip := interfaceIP(); ip != "" {
		return ip
	}
	if ip := routedIP(); ip != "" {
		return ip
	}
	return fallbackIP
}

func interfaceIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ip := usableIPv4(addr); ip != nil {
				return ip.String()
			}
		}
	}
	return ""
}

func usableIPv4(addr net.Addr) net.IP {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	}
	ip = ip.To4()
	if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return nil
	}
	return ip
}

// routedIP reads the source address the kernel would use for an outbound
// route. No packet is sent.
func routedIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return ""
	}
	return addr.IP.String()
}

// FindFreePort returns the first port in [start, start+attempts) that host
// can bind.
//
// Precondition: attempts >= 1.
// Postcondition: Returns a bindable port, or an error wrapping ErrNoFreePort.
func FindFreePort(host string, start, attempts int) (int, error) {
	for port := start; port < start+attempts && port <= 65535; port++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("%s ports %d-%d: %w", host, start, start+attempts-1, ErrNoFreePort)
}
