//go:build linux

// Package spawner starts child processes with captured stdout and stderr
// and force-terminates them by process group.
package spawner

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/simpleremote/simpleremote/pkg/errors"
	"github.com/simpleremote/simpleremote/pkg/logger"
)

const (
	// Programs with this suffix are dispatched through the script host
	// instead of being executed directly.
	scriptSuffix = ".ps1"
	scriptHost   = "pwsh"
)

// Handle exposes a started child process: two readable byte streams and
// the exit code once the child terminates.
type Handle struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
	logger *logger.Logger
}

// rewriteScriptCommand substitutes the script host invocation for programs
// the OS cannot execute directly. Other commands pass through unchanged.
func rewriteScriptCommand(command string, args []string) (string, []string) {
	if !strings.HasSuffix(strings.ToLower(command), scriptSuffix) {
		return command, args
	}
	hostArgs := append([]string{"-ExecutionPolicy", "Bypass", "-File", command}, args...)
	return scriptHost, hostArgs
}

// Start launches the program with stdout and stderr captured. The child is
// placed in its own process group so Kill can take the whole tree down.
// Failures to start are reported synchronously.
func Start(command string, args []string) (*Handle, error) {
	log := logger.WithComponent("spawner").WithField("command", command)

	prog, argv := rewriteScriptCommand(command, args)
	cmd := exec.Command(prog, argv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewSpawnError(command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.NewSpawnError(command, err)
	}

	if err := cmd.Start(); err != nil {
		log.Error("failed to start process", "error", err)
		return nil, errors.NewSpawnError(command, err)
	}

	log.Debug("process started", "pid", cmd.Process.Pid)
	return &Handle{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		logger: log.WithField("pid", cmd.Process.Pid),
	}, nil
}

// Stdout returns the captured standard output stream
func (h *Handle) Stdout() io.Reader {
	return h.stdout
}

// Stderr returns the captured standard error stream
func (h *Handle) Stderr() io.Reader {
	return h.stderr
}

// Pid returns the child's process id
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Wait reaps the child and returns its exit code. It must be called after
// both output streams have been read to EOF. A child killed by a signal
// reports a negative exit code.
func (h *Handle) Wait() (int, error) {
	err := h.cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Kill force-terminates the child's process group. Falls back to killing
// just the main process when the group signal fails.
func (h *Handle) Kill() error {
	pid := h.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		h.logger.Warn("failed to kill process group, killing main process", "error", err)
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to kill process %d: %w", pid, err)
		}
	}
	h.logger.Debug("process killed")
	return nil
}

// KillByName sends SIGKILL to every process whose image name matches,
// best-effort. Returns the number of processes signalled.
func KillByName(name string) (int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrPlatformUnsupported, err)
	}

	killed := 0
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "comm"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(comm)) != name {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGKILL); err == nil {
			killed++
		}
	}
	return killed, nil
}
