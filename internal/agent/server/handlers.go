package server

import (
	"context"
	"os"

	"github.com/simpleremote/simpleremote/internal/agent/core/job"
	"github.com/simpleremote/simpleremote/internal/agent/core/spawner"
	"github.com/simpleremote/simpleremote/internal/agent/domain"
	"github.com/simpleremote/simpleremote/internal/agent/jsonrpc"
	"github.com/simpleremote/simpleremote/internal/agent/transfer"
	"github.com/simpleremote/simpleremote/pkg/errors"
	"github.com/simpleremote/simpleremote/pkg/version"
)

// jobSettings derives per-job settings from the agent configuration
func (s *Server) jobSettings() job.Settings {
	return job.Settings{
		NetworkTimeout:  s.cfg.NetworkTimeout,
		CallbackRetries: s.cfg.CallbackAttempts,
		InitialBackoff:  s.cfg.CallbackInitialBackoff,
		BackupDir:       s.cfg.BackupLogDir,
	}
}

// splitArgs turns the protocol's single optional argument string into an
// argv slice. A null or empty string means no arguments.
func splitArgs(args string) []string {
	if args == "" {
		return nil
	}
	return splitFields(args)
}

// splitFields splits on spaces (not tabs or newlines) and honors double
// quotes, matching how the composed argument string is produced by
// clients.
func splitFields(s string) []string {
	var fields []string
	var current []rune
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if len(current) > 0 {
				fields = append(fields, string(current))
				current = current[:0]
			}
		default:
			current = append(current, r)
		}
	}
	if len(current) > 0 {
		fields = append(fields, string(current))
	}
	return fields
}

// startJob creates and registers a job, returning its id
func (s *Server) startJob(spec domain.JobSpec) (int64, error) {
	id := s.registry.NextID()
	j, err := job.Start(id, spec, s.jobSettings())
	if err != nil {
		return 0, err
	}
	s.registry.Put(j)
	return id, nil
}

func (s *Server) handleStartJob(_ *callContext, params jsonrpc.Params) (interface{}, error) {
	program, err := params.String(0)
	if err != nil {
		return nil, err
	}
	args, err := params.String(1)
	if err != nil {
		return nil, err
	}

	return s.startJob(domain.JobSpec{Command: program, Args: splitArgs(args)})
}

func (s *Server) handleStartJobWithNotification(ctx *callContext, params jsonrpc.Params) (interface{}, error) {
	address, err := params.String(0)
	if err != nil {
		return nil, err
	}
	port, err := params.Int(1)
	if err != nil {
		return nil, err
	}
	program, err := params.String(2)
	if err != nil {
		return nil, err
	}
	args, err := params.String(3)
	if err != nil {
		return nil, err
	}

	if address == "" {
		address = ctx.clientIP
	}

	return s.startJob(domain.JobSpec{
		Command:    program,
		Args:       splitArgs(args),
		Completion: domain.Endpoint{Address: address, Port: port},
	})
}

func (s *Server) handleStartJobWithProgress(ctx *callContext, params jsonrpc.Params) (interface{}, error) {
	address, err := params.String(0)
	if err != nil {
		return nil, err
	}
	callbackPort, err := params.Int(1)
	if err != nil {
		return nil, err
	}
	progressPort, err := params.Int(2)
	if err != nil {
		return nil, err
	}
	program, err := params.String(3)
	if err != nil {
		return nil, err
	}
	args, err := params.String(4)
	if err != nil {
		return nil, err
	}

	if address == "" {
		address = ctx.clientIP
	}

	return s.startJob(domain.JobSpec{
		Command:    program,
		Args:       splitArgs(args),
		Completion: domain.Endpoint{Address: address, Port: callbackPort},
		Progress:   domain.Endpoint{Address: address, Port: progressPort},
	})
}

func (s *Server) handleIsJobComplete(_ *callContext, params jsonrpc.Params) (interface{}, error) {
	id, err := params.Int64(0)
	if err != nil {
		return nil, err
	}

	j, ok := s.registry.TryGet(id)
	if !ok {
		return nil, errors.NewInvalidJobIDError(id)
	}
	return j.IsDone(), nil
}

// handleStopJob removes and kills a running job. A finished job is put
// back so its buffered output remains retrievable.
func (s *Server) handleStopJob(_ *callContext, params jsonrpc.Params) (interface{}, error) {
	id, err := params.Int64(0)
	if err != nil {
		return nil, err
	}

	j, ok := s.registry.TryRemove(id)
	if !ok {
		return nil, errors.NewInvalidJobIDError(id)
	}
	if j.IsDone() {
		s.registry.Put(j)
		return nil, errors.WrapJobError(id, "stop", errors.ErrJobAlreadyFinished)
	}

	if err := j.Kill(); err != nil {
		// The child can finish between the done check and the kill;
		// keep the job retrievable in that case.
		s.registry.Put(j)
		return nil, err
	}
	return true, nil
}

// handleGetJobResult returns the drained output and removes the job from
// the registry on success.
func (s *Server) handleGetJobResult(_ *callContext, params jsonrpc.Params) (interface{}, error) {
	id, err := params.Int64(0)
	if err != nil {
		return nil, err
	}

	j, ok := s.registry.TryGet(id)
	if !ok {
		return nil, errors.NewInvalidJobIDError(id)
	}

	result, err := j.GetResult()
	if err != nil {
		return nil, err
	}

	s.registry.TryRemove(id)
	return result, nil
}

func (s *Server) handleGetAllJobs(_ *callContext, _ jsonrpc.Params) (interface{}, error) {
	return s.registry.Snapshot(), nil
}

// handleRun is fire-and-forget: the child is spawned, reaped in the
// background, and never tracked.
func (s *Server) handleRun(_ *callContext, params jsonrpc.Params) (interface{}, error) {
	program, err := params.String(0)
	if err != nil {
		return nil, err
	}
	args, err := params.String(1)
	if err != nil {
		return nil, err
	}

	spec := domain.JobSpec{Command: program, Args: splitArgs(args)}
	j, err := job.Start(0, spec, s.jobSettings())
	if err != nil {
		return nil, err
	}
	go func() { _ = j.WaitDone(context.Background()) }()
	return true, nil
}

// handleRunWithResult blocks until the child finishes and returns its
// merged output.
func (s *Server) handleRunWithResult(_ *callContext, params jsonrpc.Params) (interface{}, error) {
	program, err := params.String(0)
	if err != nil {
		return nil, err
	}
	args, err := params.String(1)
	if err != nil {
		return nil, err
	}

	spec := domain.JobSpec{Command: program, Args: splitArgs(args)}
	j, err := job.Start(0, spec, s.jobSettings())
	if err != nil {
		return nil, err
	}
	if err := j.WaitDone(context.Background()); err != nil {
		return nil, err
	}
	return j.GetResult()
}

func (s *Server) handleKillProcess(_ *callContext, params jsonrpc.Params) (interface{}, error) {
	name, err := params.String(0)
	if err != nil {
		return nil, err
	}

	killed, err := spawner.KillByName(name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("killed processes by name", "name", name, "count", killed)
	return true, nil
}

// handleUpload opens a one-shot listener, returns its port immediately,
// and extracts the inbound archive on the accepted connection.
func (s *Server) handleUpload(_ *callContext, params jsonrpc.Params) (interface{}, error) {
	dest, err := params.String(0)
	if err != nil {
		return nil, err
	}
	overwrite, err := params.Bool(1)
	if err != nil {
		return nil, err
	}
	port, err := params.Int(2)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, errors.WrapTransferError(dest, "prepare",
			errors.ErrPermissionDenied)
	}

	ln, err := transfer.Listen(port, s.logger)
	if err != nil {
		return nil, err
	}

	go func() {
		conn, err := ln.AcceptOne(s.cfg.TransferAcceptTimeout)
		if err != nil {
			s.logger.Warn("upload transfer never started", "dest", dest, "error", err)
			return
		}
		if _, err := transfer.ServeUpload(conn, dest, overwrite, s.logger); err != nil {
			s.logger.Error("upload transfer failed", "dest", dest, "error", err)
		}
	}()

	return ln.Port(), nil
}

// handleDownload pre-computes the byte total, opens a one-shot listener,
// and streams the archive on the accepted connection. The reply carries
// [port, total] so the client can show progress.
func (s *Server) handleDownload(_ *callContext, params jsonrpc.Params) (interface{}, error) {
	path, err := params.String(0)
	if err != nil {
		return nil, err
	}
	port, err := params.Int(1)
	if err != nil {
		return nil, err
	}

	total, err := transfer.ProbeSize(path)
	if err != nil {
		return nil, err
	}

	ln, err := transfer.Listen(port, s.logger)
	if err != nil {
		return nil, err
	}

	go func() {
		conn, err := ln.AcceptOne(s.cfg.TransferAcceptTimeout)
		if err != nil {
			s.logger.Warn("download transfer never started", "path", path, "error", err)
			return
		}
		if _, err := transfer.ServeDownload(conn, path, s.logger); err != nil {
			s.logger.Error("download transfer failed", "path", path, "error", err)
		}
	}()

	return []int64{int64(ln.Port()), total}, nil
}

func (s *Server) handleGetVersion(_ *callContext, _ jsonrpc.Params) (interface{}, error) {
	return version.GetVersion(), nil
}

func (s *Server) handleGetHeartbeat(_ *callContext, _ jsonrpc.Params) (interface{}, error) {
	return true, nil
}

func (s *Server) handleGetClientIP(ctx *callContext, _ jsonrpc.Params) (interface{}, error) {
	return ctx.clientIP, nil
}
