package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/services"
	"archivist/internal/status"
)

func TestPoolRoundRobin(t *testing.T) {
	pool := NewPool("G", 4)
	require.NoError(t, pool.Add(&Worker{ID: "w1"}))
	require.NoError(t, pool.Add(&Worker{ID: "w2"}))

	var mu sync.Mutex
	picked := map[string]int{}
	var futures []*Future
	for i := 0; i < 6; i++ {
		futures = append(futures, pool.Submit(context.Background(), funcTask{run: func(_ context.Context, w *Worker) *status.ItemStatus {
			mu.Lock()
			picked[w.ID]++
			mu.Unlock()
			return status.Outcome(w.ID, status.OK, "")
		}}))
	}
	for _, f := range futures {
		assert.Equal(t, status.OK, f.Wait().Code)
	}
	assert.Equal(t, map[string]int{"w1": 3, "w2": 3}, picked)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const slots = 2
	pool := NewPool("G", slots)
	require.NoError(t, pool.Add(&Worker{ID: "w1"}))

	var running, peak atomic.Int32
	release := make(chan struct{})
	task := funcTask{run: func(context.Context, *Worker) *status.ItemStatus {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return status.Outcome("x", status.OK, "")
	}}

	done := make(chan []*Future)
	go func() {
		var fs []*Future
		for i := 0; i < 5; i++ {
			fs = append(fs, pool.Submit(context.Background(), task))
		}
		done <- fs
	}()

	require.Eventually(t, func() bool { return running.Load() == slots }, time.Second, time.Millisecond)
	close(release)
	for _, f := range <-done {
		f.Wait()
	}
	assert.Equal(t, int32(slots), peak.Load())
}

func TestPoolEmptyResolvesImmediately(t *testing.T) {
	pool := NewPool("G", 1)
	outcome := pool.Submit(context.Background(), funcTask{run: func(context.Context, *Worker) *status.ItemStatus {
		t.Fatal("task must not run without workers")
		return nil
	}}).Wait()
	require.NotNil(t, outcome)
	assert.Equal(t, status.Fatal, outcome.Code)
	assert.True(t, errors.Is(ErrNoWorkers, services.ErrWorkerUnreachable))
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := NewPool("G", 1)
	require.NoError(t, pool.Add(&Worker{ID: "w1"}))
	outcome := pool.Submit(context.Background(), funcTask{run: func(context.Context, *Worker) *status.ItemStatus {
		panic("boom")
	}}).Wait()
	assert.Equal(t, status.Fatal, outcome.Code)

	// the slot was released
	outcome = pool.Submit(context.Background(), funcTask{run: func(context.Context, *Worker) *status.ItemStatus {
		return status.Outcome("x", status.OK, "")
	}}).Wait()
	assert.Equal(t, status.OK, outcome.Code)
}

func TestPoolCancelledContextAbandons(t *testing.T) {
	pool := NewPool("G", 1)
	require.NoError(t, pool.Add(&Worker{ID: "w1"}))
	block := make(chan struct{})
	first := pool.Submit(context.Background(), funcTask{run: func(context.Context, *Worker) *status.ItemStatus {
		<-block
		return status.Outcome("x", status.OK, "")
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	second := pool.Submit(ctx, funcTask{run: func(context.Context, *Worker) *status.ItemStatus {
		t.Fatal("cancelled task must not run")
		return nil
	}})
	assert.Equal(t, status.Fatal, second.Wait().Code)
	close(block)
	assert.Equal(t, status.OK, first.Wait().Code)
}

func TestPoolAddRemove(t *testing.T) {
	pool := NewPool("G", 1)
	require.NoError(t, pool.Add(&Worker{ID: "w1"}))
	assert.Error(t, pool.Add(&Worker{ID: "w1"}))
	assert.Error(t, pool.Add(&Worker{}))

	snapshot := pool.Workers()
	assert.True(t, pool.Remove("w1"))
	assert.False(t, pool.Remove("w1"))
	assert.Equal(t, 0, pool.Len())
	assert.Len(t, snapshot, 1)
	assert.Equal(t, "G", snapshot[0].Group)
}
