// Package sink routes captured job output to its configured destination:
// an in-memory buffer, a live TCP stream with a file backup, or the
// backup file alone.
package sink

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/simpleremote/simpleremote/internal/agent/domain"
	"github.com/simpleremote/simpleremote/pkg/errors"
	"github.com/simpleremote/simpleremote/pkg/logger"
)

const backupFilePrefix = "SimpleRemote-JobOutput-"

// Options configures sink selection for one job
type Options struct {
	JobID       int64
	CommandLine string
	Progress    domain.Endpoint
	DialTimeout time.Duration
	// BackupDir overrides the system temp directory for backup logs
	BackupDir string
}

// Sink applies the routing policy for one job's output. The mode is fixed
// at creation except for the single permitted transition: a socket-class
// write error downgrades StreamingWithBackup to FileOnly in place.
type Sink struct {
	mu         sync.Mutex
	mode       domain.SinkMode
	buf        strings.Builder
	conn       net.Conn
	file       *os.File
	backupPath string
	dead       bool
	closed     bool
	logger     *logger.Logger
}

// New selects the sink mode. No progress endpoint means InMemory. With a
// progress endpoint the backup file is created first, then the endpoint
// is dialed: success selects StreamingWithBackup, a connect failure
// falls back to FileOnly with a warning.
func New(opts Options) *Sink {
	log := logger.WithComponent("output-sink").WithJob(opts.JobID)

	s := &Sink{logger: log}

	if !opts.Progress.Enabled() {
		s.mode = domain.SinkInMemory
		return s
	}

	file, path, err := createBackupFile(opts)
	if err != nil {
		// Without a backup file neither streaming mode can honor its
		// contract; fall back to buffering so output is not lost.
		log.Error("failed to create backup log, buffering output", "error", err)
		s.mode = domain.SinkInMemory
		return s
	}
	s.file = file
	s.backupPath = path

	conn, err := net.DialTimeout("tcp", opts.Progress.HostPort(), opts.DialTimeout)
	if err != nil {
		log.Warn("progress endpoint unreachable, writing to backup log only",
			"endpoint", opts.Progress.HostPort(), "error", err)
		s.mode = domain.SinkFileOnly
		return s
	}

	s.conn = conn
	s.mode = domain.SinkStreamingWithBackup
	log.Debug("streaming job output", "endpoint", opts.Progress.HostPort(), "backup", path)
	return s
}

// createBackupFile creates the backup log in the temp directory and
// writes the header: job id with timestamp, the spawned command line,
// then a blank line.
func createBackupFile(opts Options) (*os.File, string, error) {
	dir := opts.BackupDir
	if dir == "" {
		dir = os.TempDir()
	}

	stamp := time.Now().Format("2006-01-02T15-04-05.000000000")
	path := filepath.Join(dir, backupFilePrefix+stamp+".txt")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, "", err
	}

	header := fmt.Sprintf("SimpleRemote Job %d Output - %s\n%s\n\n",
		opts.JobID,
		time.Now().Format("2006-01-02 15:04:05"),
		opts.CommandLine)
	if _, err := file.WriteString(header); err != nil {
		_ = file.Close()
		return nil, "", err
	}
	return file, path, nil
}

// WriteLine delivers one captured line to the active destination(s).
// Network write errors downgrade to FileOnly; a backup file write error
// marks the sink dead and further lines are dropped while the child
// keeps running.
func (s *Sink) WriteLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dead || s.closed {
		return
	}

	switch s.mode {
	case domain.SinkInMemory:
		s.buf.WriteString(line)
		s.buf.WriteByte('\n')
		return

	case domain.SinkStreamingWithBackup:
		if _, err := s.conn.Write([]byte(line + "\n")); err != nil {
			s.logger.Warn("progress stream write failed, downgrading to backup log",
				"error", err)
			_ = s.conn.Close()
			s.conn = nil
			s.mode = domain.SinkFileOnly
		}
	}

	if _, err := s.file.WriteString(line + "\n"); err != nil {
		s.logger.Error("backup log write failed, output delivery stopped",
			"path", s.backupPath, "error", fmt.Errorf("%w: %v", errors.ErrSinkFailure, err))
		s.dead = true
		_ = s.file.Close()
		s.file = nil
		if s.conn != nil {
			_ = s.conn.Close()
			s.conn = nil
		}
	}
}

// Close shuts both halves exactly once. Safe to call from any of the
// terminal paths (natural exit, kill, downgrade).
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

// Result returns the buffered output in InMemory mode. In the streaming
// modes the caller already received the output out of band, so the
// result is empty.
func (s *Sink) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == domain.SinkInMemory {
		return s.buf.String()
	}
	return ""
}

// Mode returns the current sink mode
func (s *Sink) Mode() domain.SinkMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// BackupPath returns the backup log location, empty in InMemory mode
func (s *Sink) BackupPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backupPath
}
