// Package transfer implements the bulk-transfer subsystem: one-shot TCP
// listeners and the tar stream protocols driven over them.
package transfer

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/simpleremote/simpleremote/pkg/errors"
	"github.com/simpleremote/simpleremote/pkg/logger"
)

// OneShotListener accepts exactly one peer and then releases its port.
type OneShotListener struct {
	ln     net.Listener
	port   int
	logger *logger.Logger
}

// Listen binds a transfer listener. Port 0 asks the OS for an ephemeral
// port. SO_REUSEADDR is applied only for caller-assigned ports; a
// collision on those surfaces as a protocol error.
func Listen(port int, log *logger.Logger) (*OneShotListener, error) {
	addr := fmt.Sprintf(":%d", port)

	var ln net.Listener
	var err error
	if port != 0 {
		lc := net.ListenConfig{Control: reuseAddr}
		ln, err = lc.Listen(context.Background(), "tcp", addr)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, errors.WrapTransferError(addr, "listen",
			fmt.Errorf("%w: %v", errors.ErrTransferProtocol, err))
	}

	bound := ln.Addr().(*net.TCPAddr).Port
	if log == nil {
		log = logger.WithComponent("transfer-listener")
	}
	log.Debug("transfer listener bound", "port", bound)

	return &OneShotListener{ln: ln, port: bound, logger: log}, nil
}

func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return serr
}

// Port returns the bound port, available immediately after Listen
func (l *OneShotListener) Port() int {
	return l.port
}

// AcceptOne waits for a single peer within the timeout. The listener is
// closed in every path so the port is freed before the transfer runs.
func (l *OneShotListener) AcceptOne(timeout time.Duration) (net.Conn, error) {
	defer func() { _ = l.ln.Close() }()

	if tcp, ok := l.ln.(*net.TCPListener); ok {
		if err := tcp.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, errors.WrapTransferError(l.ln.Addr().String(), "accept", err)
		}
	}

	conn, err := l.ln.Accept()
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			l.logger.Warn("no peer connected before timeout", "port", l.port, "timeout", timeout)
			return nil, errors.WrapTransferError(l.ln.Addr().String(), "accept", errors.ErrTransferTimeout)
		}
		return nil, errors.WrapTransferError(l.ln.Addr().String(), "accept", err)
	}

	l.logger.Debug("transfer peer accepted", "port", l.port, "peer", conn.RemoteAddr())
	return conn, nil
}

// Close releases the port without accepting
func (l *OneShotListener) Close() error {
	return l.ln.Close()
}
