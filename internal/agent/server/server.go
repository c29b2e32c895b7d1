// Package server is the boundary adapter: it exposes the job and
// transfer subsystems as JSON-RPC operations over line-delimited TCP and
// answers broadcast discovery pings.
package server

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/simpleremote/simpleremote/internal/agent/jsonrpc"
	"github.com/simpleremote/simpleremote/internal/agent/state"
	"github.com/simpleremote/simpleremote/pkg/config"
	"github.com/simpleremote/simpleremote/pkg/errors"
	"github.com/simpleremote/simpleremote/pkg/logger"
)

// callContext carries per-connection facts a handler may need, most
// importantly the caller's address for defaulted callback endpoints.
type callContext struct {
	clientIP string
}

type handlerFunc func(ctx *callContext, params jsonrpc.Params) (interface{}, error)

// Server owns the RPC listener and the dispatch table. Handlers are
// stateless with respect to the transport; shared state lives in the job
// registry.
type Server struct {
	cfg      *config.Config
	registry *state.Registry
	logger   *logger.Logger

	handlers map[string]handlerFunc

	mu sync.Mutex
	ln net.Listener

	wg       sync.WaitGroup
	shutdown chan struct{}
}

// New builds a server around the given registry
func New(cfg *config.Config, registry *state.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   logger.WithComponent("rpc-server"),
		shutdown: make(chan struct{}),
	}
	s.handlers = map[string]handlerFunc{
		"StartJob":                 s.handleStartJob,
		"StartJobWithNotification": s.handleStartJobWithNotification,
		"StartJobWithProgress":     s.handleStartJobWithProgress,
		"IsJobComplete":            s.handleIsJobComplete,
		"StopJob":                  s.handleStopJob,
		"GetJobResult":             s.handleGetJobResult,
		"GetAllJobs":               s.handleGetAllJobs,
		"Run":                      s.handleRun,
		"RunWithResult":            s.handleRunWithResult,
		"KillProcess":              s.handleKillProcess,
		"Upload":                   s.handleUpload,
		"Download":                 s.handleDownload,
		"GetVersion":               s.handleGetVersion,
		"GetHeartbeat":             s.handleGetHeartbeat,
		"GetClientIP":              s.handleGetClientIP,
	}
	return s
}

// Start binds the RPC listener and begins accepting connections. It does
// not block.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.GetServerAddress())
	if err != nil {
		return fmt.Errorf("failed to bind rpc listener: %w", err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("rpc server listening", "address", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Port returns the bound RPC port
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn services exactly one request: read a line, dispatch, write
// the response line, close.
func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.NetworkTimeout))

	req, err := jsonrpc.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		var rpcErr *jsonrpc.Error
		if stderrors.As(err, &rpcErr) {
			var id []byte
			if req != nil {
				id = req.ID
			}
			_ = jsonrpc.WriteResponse(conn, &jsonrpc.Response{Error: rpcErr, ID: id})
		}
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	ctx := &callContext{clientIP: remoteIP(conn)}
	log := s.logger.WithFields("method", req.Method, "client", ctx.clientIP)
	log.Debug("rpc request received")

	handler, ok := s.handlers[req.Method]
	if !ok {
		log.Warn("unknown rpc method")
		_ = jsonrpc.WriteResponse(conn, jsonrpc.NewError(req.ID, jsonrpc.CodeMethodNotFound,
			fmt.Sprintf("method not found: %s", req.Method)))
		return
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		log.Warn("rpc request failed", "error", err)
		_ = jsonrpc.WriteResponse(conn, jsonrpc.NewError(req.ID, rpcCode(err), err.Error()))
		return
	}

	resp, err := jsonrpc.NewResult(req.ID, result)
	if err != nil {
		log.Error("failed to marshal rpc result", "error", err)
		_ = jsonrpc.WriteResponse(conn, jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, "result marshal failed"))
		return
	}
	_ = jsonrpc.WriteResponse(conn, resp)
}

// rpcCode maps errors to wire codes, honoring codec-level errors first
func rpcCode(err error) int {
	var rpcErr *jsonrpc.Error
	if stderrors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return errors.RPCCode(err)
}

func remoteIP(conn net.Conn) string {
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

// Stop closes the listener and waits for in-flight requests
func (s *Server) Stop() {
	close(s.shutdown)

	s.mu.Lock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
