//go:build linux

package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simpleremote/simpleremote/internal/agent/core/job"
	"github.com/simpleremote/simpleremote/internal/agent/domain"
)

func startEcho(t *testing.T, id int64) *job.Job {
	t.Helper()
	j, err := job.Start(id, domain.JobSpec{Command: "/bin/echo", Args: []string{"x"}}, job.DefaultSettings())
	require.NoError(t, err)
	return j
}

func TestRegistry_IDAllocation(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, int64(1), r.NextID())
	assert.Equal(t, int64(2), r.NextID())
	assert.Equal(t, int64(3), r.NextID())
}

func TestRegistry_ConcurrentIDsAreDistinct(t *testing.T) {
	r := NewRegistry()

	const n = 100
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- r.NextID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.Positive(t, id)
		assert.False(t, seen[id], "id %d allocated twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestRegistry_PutGetRemove(t *testing.T) {
	r := NewRegistry()
	j := startEcho(t, r.NextID())
	r.Put(j)

	got, ok := r.TryGet(j.ID)
	require.True(t, ok)
	assert.Same(t, j, got)

	removed, ok := r.TryRemove(j.ID)
	require.True(t, ok)
	assert.Same(t, j, removed)

	_, ok = r.TryGet(j.ID)
	assert.False(t, ok)

	_, ok = r.TryRemove(j.ID)
	assert.False(t, ok)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()

	var jobs []*job.Job
	for i := 0; i < 3; i++ {
		j := startEcho(t, r.NextID())
		r.Put(j)
		jobs = append(jobs, j)
	}

	for _, j := range jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		require.NoError(t, j.WaitDone(ctx))
		cancel()
	}

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 3)
	for _, j := range jobs {
		done, ok := snapshot[j.ID]
		assert.True(t, ok, "job %d missing from snapshot", j.ID)
		assert.True(t, done)
	}
}
