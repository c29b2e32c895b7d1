package client

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"time"
)

// CompletionListener accepts the agent's one-shot completion callback
// connection and decodes the announced job id.
type CompletionListener struct {
	ln net.Listener
}

// NewCompletionListener binds a callback listener; port 0 picks one
func NewCompletionListener(port int) (*CompletionListener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return &CompletionListener{ln: ln}, nil
}

// Port returns the bound port to hand to StartJobWithNotification
func (l *CompletionListener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Wait blocks for the callback and returns the completed job id. The
// payload is the ASCII bytes "JOB <id> COMPLETED" with no newline.
func (l *CompletionListener) Wait(timeout time.Duration) (int64, error) {
	if tcp, ok := l.ln.(*net.TCPListener); ok {
		_ = tcp.SetDeadline(time.Now().Add(timeout))
	}
	conn, err := l.ln.Accept()
	if err != nil {
		return 0, fmt.Errorf("no completion callback received: %w", err)
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	payload, err := io.ReadAll(conn)
	if err != nil {
		return 0, fmt.Errorf("failed to read completion callback: %w", err)
	}

	var id int64
	if _, err := fmt.Sscanf(string(payload), "JOB %d COMPLETED", &id); err != nil {
		return 0, fmt.Errorf("malformed completion callback %q: %w", payload, err)
	}
	return id, nil
}

// Close releases the listener
func (l *CompletionListener) Close() error {
	return l.ln.Close()
}

// ProgressListener accepts the agent's live output stream and delivers
// it line by line.
type ProgressListener struct {
	ln    net.Listener
	lines chan string
}

// NewProgressListener binds a progress listener; port 0 picks one
func NewProgressListener(port int) (*ProgressListener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	l := &ProgressListener{ln: ln, lines: make(chan string, 64)}
	go l.serve()
	return l, nil
}

// Port returns the bound port to hand to StartJobWithProgress
func (l *ProgressListener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Lines delivers streamed output lines; the channel closes when the
// agent finishes the job and closes the stream.
func (l *ProgressListener) Lines() <-chan string {
	return l.lines
}

func (l *ProgressListener) serve() {
	defer close(l.lines)

	conn, err := l.ln.Accept()
	if err != nil {
		return
	}
	_ = l.ln.Close()
	defer func() { _ = conn.Close() }()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		l.lines <- scanner.Text()
	}
}

// Close releases the listener
func (l *ProgressListener) Close() error {
	return l.ln.Close()
}
