package client

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

const discoveryPayload = "SimpleJsonRpc Ping"

// Discover broadcasts a discovery ping and returns the first responding
// agent's address and RPC port. bcast is "host:port" of the discovery
// responder (or a broadcast address).
func Discover(bcast string, timeout time.Duration) (string, int, error) {
	raddr, err := net.ResolveUDPAddr("udp", bcast)
	if err != nil {
		return "", 0, fmt.Errorf("bad discovery address %s: %w", bcast, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open discovery socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write([]byte(discoveryPayload)); err != nil {
		return "", 0, fmt.Errorf("failed to send discovery ping: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 8)
	n, peer, err := conn.ReadFromUDP(buf)
	if err != nil {
		return "", 0, fmt.Errorf("no discovery response: %w", err)
	}
	if n < 4 {
		return "", 0, fmt.Errorf("short discovery response: %d bytes", n)
	}

	port := int(binary.LittleEndian.Uint32(buf[:4]))
	return peer.IP.String(), port, nil
}
