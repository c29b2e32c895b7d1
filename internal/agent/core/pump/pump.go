// Package pump merges two captured byte streams into a single
// line-oriented channel. Ordering within each source is preserved;
// interleaving across sources is arbitrary.
package pump

import (
	"bufio"
	"io"
	"sync"

	"github.com/simpleremote/simpleremote/pkg/logger"
)

const (
	// maxLineSize bounds a single output line, not the total buffered
	// volume.
	maxLineSize = 1024 * 1024
)

// LinePump drains two readers continuously so the producing child is
// never blocked on a full OS pipe. Lines queue in memory when the
// consumer is slow; the queue is unbounded, which is acceptable only
// because tested workloads produce bounded output.
type LinePump struct {
	in          chan string
	out         chan string
	sourcesDone chan struct{}
	logger      *logger.Logger
}

// New starts draining both streams immediately. The output channel is
// closed after both streams reach EOF and every queued line has been
// delivered; the close is the end-of-stream sentinel.
func New(stdout, stderr io.Reader) *LinePump {
	p := &LinePump{
		in:          make(chan string, 64),
		out:         make(chan string, 64),
		sourcesDone: make(chan struct{}),
		logger:      logger.WithComponent("line-pump"),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go p.read(stdout, &wg)
	go p.read(stderr, &wg)

	go func() {
		wg.Wait()
		close(p.sourcesDone)
		close(p.in)
	}()

	go p.bridge()
	return p
}

// Lines returns the merged line channel. Each line has its trailing
// newline removed. The channel closes once both sources are exhausted.
func (p *LinePump) Lines() <-chan string {
	return p.out
}

// SourcesDone is closed as soon as both streams hit EOF, before the
// queued lines have necessarily been consumed.
func (p *LinePump) SourcesDone() <-chan struct{} {
	return p.sourcesDone
}

func (p *LinePump) read(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		p.in <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		// A closed pipe after Kill lands here; nothing to recover.
		p.logger.Debug("stream read ended", "error", err)
	}
}

// bridge shuttles lines from the readers to the consumer through an
// unbounded backlog so a slow sink cannot back-pressure the readers.
func (p *LinePump) bridge() {
	defer close(p.out)

	var backlog []string
	in := p.in
	for in != nil || len(backlog) > 0 {
		var outc chan string
		var next string
		if len(backlog) > 0 {
			outc = p.out
			next = backlog[0]
		}

		select {
		case line, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			backlog = append(backlog, line)
		case outc <- next:
			backlog = backlog[1:]
		}
	}
}
