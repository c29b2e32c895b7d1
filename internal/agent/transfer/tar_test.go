package transfer

import (
	"archive/tar"
	"bufio"
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simpleremote/simpleremote/pkg/errors"
)

// makeTree builds the fixture tree used across these tests:
//
//	foo.txt
//	bat.txt
//	bar/baz.txt
func makeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.txt"), []byte("foo contents"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bat.txt"), []byte("bat!"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bar"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bar", "baz.txt"), []byte("baz data here"), 0644))
	return dir
}

func treeSize(paths ...string) int64 {
	var total int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

func TestWriteExtract_DirectoryRoundTrip(t *testing.T) {
	src := makeTree(t)
	dest := t.TempDir()

	var buf bytes.Buffer
	written, err := WriteArchive(&buf, src)
	require.NoError(t, err)

	extracted, err := ExtractArchive(&buf, dest, false)
	require.NoError(t, err)
	assert.Equal(t, written, extracted)

	wantTotal := treeSize(
		filepath.Join(src, "foo.txt"),
		filepath.Join(src, "bat.txt"),
		filepath.Join(src, "bar", "baz.txt"))
	assert.Equal(t, wantTotal, written)

	for _, rel := range []string{"foo.txt", "bat.txt", "bar/baz.txt"} {
		want, err := os.ReadFile(filepath.Join(src, filepath.FromSlash(rel)))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		require.NoError(t, err, "missing %s after round trip", rel)
		assert.Equal(t, want, got, "%s corrupted in round trip", rel)
	}
}

func TestWriteArchive_SingleFileRelativeToParent(t *testing.T) {
	src := makeTree(t)

	var buf bytes.Buffer
	_, err := WriteArchive(&buf, filepath.Join(src, "foo.txt"))
	require.NoError(t, err)

	tr := tar.NewReader(&buf)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "foo.txt", hdr.Name)

	_, err = tr.Next()
	assert.Error(t, err, "single-file archive must contain exactly one entry")
}

func TestWriteArchive_GlobSelection(t *testing.T) {
	src := makeTree(t)

	var buf bytes.Buffer
	written, err := WriteArchive(&buf, filepath.Join(src, "ba*"))
	require.NoError(t, err)

	names := map[string]bool{}
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names[hdr.Name] = true
	}

	assert.True(t, names["bat.txt"])
	assert.True(t, names["bar/"])
	assert.True(t, names["bar/baz.txt"])
	assert.False(t, names["foo.txt"], "glob must not select foo.txt")

	wantTotal := treeSize(filepath.Join(src, "bat.txt"), filepath.Join(src, "bar", "baz.txt"))
	assert.Equal(t, wantTotal, written)
}

func TestProbeSize_MatchesDownload(t *testing.T) {
	src := makeTree(t)

	tests := []struct {
		name string
		path string
	}{
		{"whole directory", src},
		{"single file", filepath.Join(src, "foo.txt")},
		{"glob", filepath.Join(src, "ba*")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probed, err := ProbeSize(tt.path)
			require.NoError(t, err)

			var buf bytes.Buffer
			written, err := WriteArchive(&buf, tt.path)
			require.NoError(t, err)
			assert.Equal(t, probed, written)
		})
	}
}

func TestProbeSize_MissingPath(t *testing.T) {
	_, err := ProbeSize(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)
}

func TestExtractArchive_OverwriteRefused(t *testing.T) {
	src := makeTree(t)
	dest := t.TempDir()
	existing := filepath.Join(dest, "foo.txt")
	require.NoError(t, os.WriteFile(existing, []byte("keep me"), 0644))

	var buf bytes.Buffer
	_, err := WriteArchive(&buf, filepath.Join(src, "foo.txt"))
	require.NoError(t, err)

	_, err = ExtractArchive(&buf, dest, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransferProtocol)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data), "collision must leave the existing file intact")
}

func TestExtractArchive_OverwriteAllowed(t *testing.T) {
	src := makeTree(t)
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "foo.txt"), []byte("old"), 0644))

	var buf bytes.Buffer
	_, err := WriteArchive(&buf, filepath.Join(src, "foo.txt"))
	require.NoError(t, err)

	_, err = ExtractArchive(&buf, dest, true)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "foo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "foo contents", string(data))
}

func TestExtractArchive_RejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../evil.txt",
		Typeflag: tar.TypeReg,
		Mode:     0644,
		Size:     4,
	}))
	_, err := tw.Write([]byte("evil"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	_, err = ExtractArchive(&buf, t.TempDir(), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransferProtocol)
}

func TestServeUpload_TrailerProtocol(t *testing.T) {
	src := makeTree(t)
	dest := t.TempDir()

	ln, err := Listen(0, nil)
	require.NoError(t, err)

	type result struct {
		count int64
		err   error
	}
	serverDone := make(chan result, 1)
	go func() {
		conn, err := ln.AcceptOne(5 * time.Second)
		if err != nil {
			serverDone <- result{0, err}
			return
		}
		count, err := ServeUpload(conn, dest, true, nil)
		serverDone <- result{count, err}
	}()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(ln.Port())))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	sent, err := WriteArchive(conn, src)
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(line, "\r\n"), "trailer must be CRLF-terminated, got %q", line)

	acked, err := strconv.ParseInt(strings.TrimRight(line, "\r\n"), 10, 64)
	require.NoError(t, err)
	assert.Equal(t, sent, acked)

	srv := <-serverDone
	require.NoError(t, srv.err)
	assert.Equal(t, sent, srv.count)

	got, err := os.ReadFile(filepath.Join(dest, "bar", "baz.txt"))
	require.NoError(t, err)
	assert.Equal(t, "baz data here", string(got))
}

func TestServeDownload_StreamsAndCloses(t *testing.T) {
	src := makeTree(t)

	ln, err := Listen(0, nil)
	require.NoError(t, err)

	go func() {
		conn, err := ln.AcceptOne(5 * time.Second)
		if err != nil {
			return
		}
		_, _ = ServeDownload(conn, src, nil)
	}()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(ln.Port())))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	dest := t.TempDir()
	extracted, err := ExtractArchive(conn, dest, true)
	require.NoError(t, err)

	wantTotal := treeSize(
		filepath.Join(src, "foo.txt"),
		filepath.Join(src, "bat.txt"),
		filepath.Join(src, "bar", "baz.txt"))
	assert.Equal(t, wantTotal, extracted)
}
