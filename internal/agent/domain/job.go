package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobState represents the current state of a job
type JobState string

const (
	StateRunning JobState = "RUNNING"
	StateExited  JobState = "EXITED"
	StateKilled  JobState = "KILLED"
)

// SinkMode selects where captured child output goes. The mode is chosen
// at job creation and may only degrade StreamingWithBackup -> FileOnly.
type SinkMode int

const (
	SinkInMemory SinkMode = iota
	SinkStreamingWithBackup
	SinkFileOnly
)

func (m SinkMode) String() string {
	switch m {
	case SinkInMemory:
		return "in-memory"
	case SinkStreamingWithBackup:
		return "streaming+backup"
	case SinkFileOnly:
		return "file-only"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidCommand is returned when the job command is empty
	ErrInvalidCommand = errors.New("job command cannot be empty")
)

// Endpoint is a client-owned (address, port) pair the agent connects out
// to. A zero or negative port disables the feature.
type Endpoint struct {
	Address string
	Port    int
}

// Enabled reports whether the endpoint is configured
func (e Endpoint) Enabled() bool {
	return e.Port > 0
}

func (e Endpoint) HostPort() string {
	return fmt.Sprintf("%s:%d", e.Address, e.Port)
}

// JobSpec describes a job to start. Completion and Progress are optional
// callback endpoints; an empty Address is filled in by the boundary
// adapter with the RPC caller's own address.
type JobSpec struct {
	Command    string
	Args       []string
	Completion Endpoint
	Progress   Endpoint
}

// CommandLine returns the command plus arguments as a single display string
func (s JobSpec) CommandLine() string {
	if len(s.Args) == 0 {
		return s.Command
	}
	return s.Command + " " + strings.Join(s.Args, " ")
}

// Validate validates the job specification
func (s JobSpec) Validate() error {
	if s.Command == "" {
		return ErrInvalidCommand
	}
	return nil
}

// JobInfo is a point-in-time snapshot of a job used for enumeration
type JobInfo struct {
	ID         int64
	Command    string
	State      JobState
	StartTime  time.Time
	BackupPath string
}

// IsTerminal reports whether the state is one a job can never leave
func (s JobState) IsTerminal() bool {
	return s == StateExited || s == StateKilled
}
