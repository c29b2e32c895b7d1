package sink

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simpleremote/simpleremote/internal/agent/domain"
)

// unusedPort returns a port nothing is listening on
func unusedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestSink_InMemory(t *testing.T) {
	s := New(Options{JobID: 1, CommandLine: "echo hi"})
	defer s.Close()

	require.Equal(t, domain.SinkInMemory, s.Mode())

	s.WriteLine("first")
	s.WriteLine("second")

	assert.Equal(t, "first\nsecond\n", s.Result())
	assert.Empty(t, s.BackupPath())
}

func TestSink_FileOnlyWhenEndpointUnreachable(t *testing.T) {
	dir := t.TempDir()

	s := New(Options{
		JobID:       7,
		CommandLine: "systeminfo -v",
		Progress:    domain.Endpoint{Address: "127.0.0.1", Port: unusedPort(t)},
		DialTimeout: 200 * time.Millisecond,
		BackupDir:   dir,
	})

	require.Equal(t, domain.SinkFileOnly, s.Mode())
	require.NotEmpty(t, s.BackupPath())

	s.WriteLine("OS Name: TestOS")
	s.WriteLine("done")
	s.Close()

	assert.Empty(t, s.Result(), "streamed output must not be returned inline")

	data, err := os.ReadFile(s.BackupPath())
	require.NoError(t, err)
	content := string(data)

	lines := strings.Split(content, "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Contains(t, lines[0], "SimpleRemote Job 7 Output")
	assert.Equal(t, "systeminfo -v", lines[1])
	assert.Equal(t, "", lines[2])
	assert.Contains(t, content, "OS Name: TestOS\ndone\n")

	matches, err := filepath.Glob(filepath.Join(dir, "SimpleRemote-JobOutput-*.txt"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSink_StreamingWithBackup(t *testing.T) {
	dir := t.TempDir()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			received <- ""
			return
		}
		data, _ := io.ReadAll(conn)
		received <- string(data)
	}()

	s := New(Options{
		JobID:       3,
		CommandLine: "worker --run",
		Progress:    domain.Endpoint{Address: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port},
		DialTimeout: 2 * time.Second,
		BackupDir:   dir,
	})
	require.Equal(t, domain.SinkStreamingWithBackup, s.Mode())

	s.WriteLine("alpha")
	s.WriteLine("beta")
	s.Close()

	select {
	case got := <-received:
		assert.Equal(t, "alpha\nbeta\n", got)
	case <-time.After(5 * time.Second):
		t.Fatal("progress stream never arrived")
	}

	data, err := os.ReadFile(s.BackupPath())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "alpha\nbeta\n"),
		"backup log must mirror the stream, got %q", data)
}

func TestSink_DowngradesToFileOnlyOnStreamError(t *testing.T) {
	dir := t.TempDir()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	// Accept and immediately slam the connection shut so subsequent
	// writes fail with a socket error.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
	}()

	s := New(Options{
		JobID:       9,
		CommandLine: "chatty",
		Progress:    domain.Endpoint{Address: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port},
		DialTimeout: 2 * time.Second,
		BackupDir:   dir,
	})
	require.Equal(t, domain.SinkStreamingWithBackup, s.Mode())

	total := 50
	for i := 0; i < total; i++ {
		s.WriteLine("line")
		time.Sleep(10 * time.Millisecond)
		if s.Mode() == domain.SinkFileOnly {
			// keep writing the remainder after the downgrade
			for j := i + 1; j < total; j++ {
				s.WriteLine("line")
			}
			break
		}
	}
	require.Equal(t, domain.SinkFileOnly, s.Mode(), "sink never downgraded")
	s.Close()

	data, err := os.ReadFile(s.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, total, strings.Count(string(data), "line\n"),
		"every line must land in the backup log across the downgrade")
}

func TestSink_CloseIsIdempotent(t *testing.T) {
	s := New(Options{JobID: 2, CommandLine: "noop"})
	s.WriteLine("x")
	s.Close()
	s.Close()

	assert.Equal(t, "x\n", s.Result())
}
