// Package job composes the spawner, line pump, and output sink into a
// tracked job with an optional completion callback.
package job

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/simpleremote/simpleremote/internal/agent/core/pump"
	"github.com/simpleremote/simpleremote/internal/agent/core/sink"
	"github.com/simpleremote/simpleremote/internal/agent/core/spawner"
	"github.com/simpleremote/simpleremote/internal/agent/domain"
	"github.com/simpleremote/simpleremote/pkg/errors"
	"github.com/simpleremote/simpleremote/pkg/logger"
)

// completionFormat is the exact callback payload, no trailing newline
const completionFormat = "JOB %d COMPLETED"

// Settings carries the timeouts and retry policy jobs inherit from the
// agent configuration.
type Settings struct {
	NetworkTimeout  time.Duration
	CallbackRetries int
	InitialBackoff  time.Duration
	BackupDir       string
}

// DefaultSettings mirrors the agent's shipped configuration
func DefaultSettings() Settings {
	return Settings{
		NetworkTimeout:  5 * time.Second,
		CallbackRetries: 5,
		InitialBackoff:  1 * time.Second,
	}
}

// Job owns one spawned child process, its output plumbing, and the
// completion notification. All mutation happens on the job's own
// goroutines except Kill.
type Job struct {
	ID   int64
	Spec domain.JobSpec

	handle   *spawner.Handle
	pump     *pump.LinePump
	sink     *sink.Sink
	settings Settings
	logger   *logger.Logger

	startTime time.Time

	mu       sync.Mutex
	state    domain.JobState
	exitCode int

	exited  chan struct{} // child has left the Running state
	drained chan struct{} // pump fully consumed, sinks closed
}

// Start allocates the plumbing and launches the child. It does not block
// on the child; spawn failures are returned synchronously.
func Start(id int64, spec domain.JobSpec, settings Settings) (*Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, errors.WrapJobError(id, "start", err)
	}

	log := logger.WithComponent("job").WithJob(id).WithField("command", spec.Command)

	handle, err := spawner.Start(spec.Command, spec.Args)
	if err != nil {
		log.Error("spawn failed", "error", err)
		return nil, err
	}

	j := &Job{
		ID:        id,
		Spec:      spec,
		handle:    handle,
		settings:  settings,
		logger:    log,
		startTime: time.Now(),
		state:     domain.StateRunning,
		exited:    make(chan struct{}),
		drained:   make(chan struct{}),
	}

	j.sink = sink.New(sink.Options{
		JobID:       id,
		CommandLine: spec.CommandLine(),
		Progress:    spec.Progress,
		DialTimeout: settings.NetworkTimeout,
		BackupDir:   settings.BackupDir,
	})
	j.pump = pump.New(handle.Stdout(), handle.Stderr())

	go j.drain()
	go j.supervise()

	log.Info("job started", "pid", handle.Pid(), "sink", j.sink.Mode())
	return j, nil
}

// drain consumes the merged line channel into the sink. The channel close
// is the pump's end-of-stream sentinel.
func (j *Job) drain() {
	for line := range j.pump.Lines() {
		j.sink.WriteLine(line)
	}
	j.sink.Close()
	close(j.drained)
}

// supervise runs the explicit completion sequence: wait for both pipes to
// reach EOF, reap the child, then wait for the drain before announcing
// completion. The callback therefore always observes fully flushed output.
func (j *Job) supervise() {
	<-j.pump.SourcesDone()

	code, err := j.handle.Wait()
	if err != nil {
		j.logger.Warn("wait on child returned error", "error", err)
	}

	j.mu.Lock()
	j.exitCode = code
	if j.state == domain.StateRunning {
		j.state = domain.StateExited
	}
	state := j.state
	j.mu.Unlock()
	close(j.exited)

	<-j.drained

	j.logger.Info("job finished", "state", state, "exitCode", code)

	if j.Spec.Completion.Enabled() {
		go j.notifyCompletion()
	}
}

// notifyCompletion opens a fresh TCP connection to the completion
// endpoint and writes the announcement. Failed connects retry with
// exponential backoff; ultimate failure is logged only.
func (j *Job) notifyCompletion() {
	endpoint := j.Spec.Completion.HostPort()
	payload := []byte(fmt.Sprintf(completionFormat, j.ID))
	backoff := j.settings.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= j.settings.CallbackRetries; attempt++ {
		conn, err := net.DialTimeout("tcp", endpoint, j.settings.NetworkTimeout)
		if err == nil {
			_, werr := conn.Write(payload)
			_ = conn.Close()
			if werr == nil {
				j.logger.Debug("completion callback delivered", "endpoint", endpoint)
				return
			}
			err = werr
		}
		lastErr = err
		j.logger.Warn("completion callback attempt failed",
			"endpoint", endpoint, "attempt", attempt, "error", err)
		time.Sleep(backoff)
		backoff *= 2
	}

	j.logger.Error("completion callback abandoned",
		"endpoint", endpoint,
		"error", fmt.Errorf("%w: %v", errors.ErrCallbackUnreachable, lastErr))
}

// IsDone reports whether the child has exited, regardless of whether
// output has finished draining.
func (j *Job) IsDone() bool {
	select {
	case <-j.exited:
		return true
	default:
		return false
	}
}

// Kill force-terminates the child process group. The normal completion
// sequence still runs: readers observe EOF, the drain finishes, and any
// configured callback fires.
func (j *Job) Kill() error {
	j.mu.Lock()
	if j.state != domain.StateRunning {
		j.mu.Unlock()
		return errors.WrapJobError(j.ID, "kill", errors.ErrJobAlreadyFinished)
	}
	j.state = domain.StateKilled
	j.mu.Unlock()

	j.logger.Info("killing job")
	return j.handle.Kill()
}

// GetResult waits for the pump to drain so post-exit bytes are not lost,
// then returns the buffered output. Streaming sinks return an empty
// string because the caller received the output out of band. Fails while
// the child is still running.
func (j *Job) GetResult() (string, error) {
	if !j.IsDone() {
		return "", errors.WrapJobError(j.ID, "result", errors.ErrJobNotFinished)
	}
	<-j.drained
	return j.sink.Result(), nil
}

// GetExitCode fails while the child is still running; once it has exited,
// it waits for output to drain before returning the code.
func (j *Job) GetExitCode() (int, error) {
	if !j.IsDone() {
		return 0, errors.WrapJobError(j.ID, "exit-code", errors.ErrJobNotFinished)
	}
	<-j.drained

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.exitCode, nil
}

// State returns the current lifecycle state
func (j *Job) State() domain.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// WaitDone blocks until the child has exited and all output has drained,
// or the context is cancelled.
func (j *Job) WaitDone(ctx context.Context) error {
	select {
	case <-j.drained:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-j.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info returns an enumeration snapshot
func (j *Job) Info() domain.JobInfo {
	j.mu.Lock()
	state := j.state
	j.mu.Unlock()

	return domain.JobInfo{
		ID:         j.ID,
		Command:    j.Spec.Command,
		State:      state,
		StartTime:  j.startTime,
		BackupPath: j.sink.BackupPath(),
	}
}
