// Package netinfo discovers the address this host shows to the local network.
package netinfo

import (
	"context"
	"net"
)

// Fallback is shown when no route to the outside can be resolved. It is the
// address the sensor access point hands to its first client.
const Fallback = "192.168.4.2"

// probeAddr is only used to select a route; connecting a UDP socket sends nothing.
const probeAddr = "8.8.8.8:80"

// LocalIP returns the IPv4 address of the interface that routes to probeAddr,
// or Fallback when there is none.
func LocalIP(ctx context.Context) string {
	return localIP(ctx, probeAddr)
}

func localIP(ctx context.Context, target string) string {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "udp4", target)
	if err != nil {
		return Fallback
	}
	defer conn.Close()

	ua, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || ua.IP.IsUnspecified() {
		return Fallback
	}

	return ua.IP.String()
}
