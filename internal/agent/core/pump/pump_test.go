package pump

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, p *LinePump) []string {
	t.Helper()

	var lines []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-p.Lines():
			if !ok {
				return lines
			}
			lines = append(lines, line)
		case <-timeout:
			t.Fatal("pump did not emit its end-of-stream sentinel")
		}
	}
}

func TestPump_SingleStreamOrdering(t *testing.T) {
	stdout := strings.NewReader("one\ntwo\nthree\n")
	stderr := strings.NewReader("")

	p := New(stdout, stderr)
	lines := collect(t, p)

	assert.Equal(t, []string{"one", "two", "three"}, lines)
}

func TestPump_MergesBothStreams(t *testing.T) {
	stdout := strings.NewReader("a1\na2\n")
	stderr := strings.NewReader("b1\nb2\n")

	p := New(stdout, stderr)
	lines := collect(t, p)

	require.Len(t, lines, 4)

	// Interleaving across streams is arbitrary, but order within each
	// stream must hold.
	assertSubsequence(t, lines, []string{"a1", "a2"})
	assertSubsequence(t, lines, []string{"b1", "b2"})
}

func assertSubsequence(t *testing.T, haystack, needle []string) {
	t.Helper()

	i := 0
	for _, line := range haystack {
		if i < len(needle) && line == needle[i] {
			i++
		}
	}
	assert.Equal(t, len(needle), i, "expected %v in order within %v", needle, haystack)
}

func TestPump_EmptyStreamsCloseImmediately(t *testing.T) {
	p := New(strings.NewReader(""), strings.NewReader(""))

	lines := collect(t, p)
	assert.Empty(t, lines)
}

func TestPump_StripsTrailingNewline(t *testing.T) {
	p := New(strings.NewReader("no newline at eof"), strings.NewReader(""))

	lines := collect(t, p)
	assert.Equal(t, []string{"no newline at eof"}, lines)
}

func TestPump_SourcesDoneBeforeConsumption(t *testing.T) {
	// A slow consumer must not delay the EOF signal.
	var big strings.Builder
	for i := 0; i < 1000; i++ {
		big.WriteString("line\n")
	}

	p := New(strings.NewReader(big.String()), strings.NewReader(""))

	select {
	case <-p.SourcesDone():
	case <-time.After(5 * time.Second):
		t.Fatal("SourcesDone not signalled while output was queued")
	}

	lines := collect(t, p)
	assert.Len(t, lines, 1000)
}

func TestPump_SlowConsumerDoesNotBlockReaders(t *testing.T) {
	var big strings.Builder
	for i := 0; i < 10000; i++ {
		big.WriteString("x\n")
	}

	p := New(strings.NewReader(big.String()), strings.NewReader(""))

	// Consume nothing until the sources are fully drained, then read it
	// all back.
	select {
	case <-p.SourcesDone():
	case <-time.After(5 * time.Second):
		t.Fatal("readers blocked on a slow consumer")
	}

	lines := collect(t, p)
	assert.Len(t, lines, 10000)
}
