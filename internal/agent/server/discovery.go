package server

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/simpleremote/simpleremote/pkg/logger"
)

// DiscoveryPayload is the datagram that elicits a discovery response
const DiscoveryPayload = "SimpleJsonRpc Ping"

// Discovery answers broadcast pings with the RPC server's port encoded
// as a 4-byte little-endian integer.
type Discovery struct {
	conn    *net.UDPConn
	rpcPort int
	logger  *logger.Logger
	wg      sync.WaitGroup
}

// StartDiscovery binds the UDP responder on the given port
func StartDiscovery(port, rpcPort int) (*Discovery, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind discovery responder: %w", err)
	}

	d := &Discovery{
		conn:    conn,
		rpcPort: rpcPort,
		logger:  logger.WithComponent("discovery"),
	}

	d.logger.Info("discovery responder listening", "port", port, "rpcPort", rpcPort)
	d.wg.Add(1)
	go d.respond()
	return d, nil
}

func (d *Discovery) respond() {
	defer d.wg.Done()

	reply := make([]byte, 4)
	binary.LittleEndian.PutUint32(reply, uint32(d.rpcPort))

	buf := make([]byte, 64)
	for {
		n, peer, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if !bytes.Equal(bytes.TrimSpace(buf[:n]), []byte(DiscoveryPayload)) {
			d.logger.Debug("ignoring unrecognized datagram", "peer", peer)
			continue
		}
		if _, err := d.conn.WriteToUDP(reply, peer); err != nil {
			d.logger.Warn("failed to answer discovery ping", "peer", peer, "error", err)
		}
	}
}

// Port returns the bound UDP port
func (d *Discovery) Port() int {
	return d.conn.LocalAddr().(*net.UDPAddr).Port
}

// Stop closes the responder
func (d *Discovery) Stop() {
	_ = d.conn.Close()
	d.wg.Wait()
}
