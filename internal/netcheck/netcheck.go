// Package netcheck gates server access on the local network address.
// Installations restrict the tool to office subnets by listing allowed
// IP prefixes; an empty list disables the gate.
package netcheck

import (
	"net"

	"go.uber.org/zap"

	"github.com/MarceloCBif/BuscaBoleto/internal/logging"
)

// Allowed reports whether any local address falls inside the allowed
// prefixes. With no prefixes configured every network is allowed. When
// no interface address matches, the routed outbound address is checked
// as well before denying.
func Allowed(prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}

	ips := localIPs()
	if matchesAny(ips, prefixes) {
		return true
	}

	if ip := outboundIP(); ip != "" {
		if matchesAny([]string{ip}, prefixes) {
			return true
		}
		ips = append(ips, ip)
	}

	logging.Warn("local address outside allowed networks",
		zap.Strings("addresses", ips),
		zap.Strings("allowed", prefixes),
	)
	return false
}

func localIPs() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP == nil {
			continue
		}
		ips = append(ips, ipNet.IP.String())
	}
	return ips
}

// outboundIP finds the source address the kernel picks for external
// traffic. The dial is UDP, so nothing is sent.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}

func matchesAny(ips, prefixes []string) bool {
	for _, ip := range ips {
		for _, prefix := range prefixes {
			if prefix != "" && len(ip) >= len(prefix) && ip[:len(prefix)] == prefix {
				return true
			}
		}
	}
	return false
}
