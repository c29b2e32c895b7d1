package client

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/simpleremote/simpleremote/internal/agent/transfer"
)

// SendTree connects to an Upload transfer port and streams a tar archive
// of the local path (file or directory). It half-closes the write side,
// reads the agent's ASCII byte-count trailer, and verifies it against
// the content bytes sent.
func SendTree(addr, path string, timeout time.Duration) (int64, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return 0, fmt.Errorf("failed to reach transfer port %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	sent, err := transfer.WriteArchive(conn, path)
	if err != nil {
		return sent, err
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return sent, fmt.Errorf("failed to read byte-count trailer: %w", err)
	}
	acked, err := strconv.ParseInt(strings.TrimRight(line, "\r\n"), 10, 64)
	if err != nil {
		return sent, fmt.Errorf("malformed byte-count trailer %q: %w", line, err)
	}
	if acked != sent {
		return sent, fmt.Errorf("byte-count mismatch: sent %d, agent acknowledged %d", sent, acked)
	}
	return sent, nil
}

// ReceiveTree connects to a Download transfer port and extracts the
// served archive under dest. Returns the decoded content bytes.
func ReceiveTree(addr, dest string, timeout time.Duration) (int64, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return 0, fmt.Errorf("failed to reach transfer port %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	return transfer.ExtractArchive(conn, dest, true)
}

// ReceiveArchive connects to a Download transfer port and copies the raw
// tar stream to w, returning the bytes copied (headers included).
func ReceiveArchive(addr string, w io.Writer, timeout time.Duration) (int64, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return 0, fmt.Errorf("failed to reach transfer port %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	return io.Copy(w, conn)
}
