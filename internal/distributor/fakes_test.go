package distributor

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"archivist/internal/checkpoint"
	"archivist/internal/status"
	"archivist/internal/worker"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) ListFlat(ctx context.Context, container, collection string) ([]string, error) {
	args := m.Called(ctx, container, collection)
	items, _ := args.Get(0).([]string)
	return items, args.Error(1)
}

func (m *mockSource) LevelIndex(ctx context.Context, container string) (map[int][]string, error) {
	args := m.Called(ctx, container)
	levels, _ := args.Get(0).(map[int][]string)
	return levels, args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Persist(ctx context.Context, container, key string, idx checkpoint.Index) error {
	return m.Called(ctx, container, key, idx).Error(0)
}

func (m *mockStore) Read(ctx context.Context, container, key string) (*checkpoint.Index, bool, error) {
	args := m.Called(ctx, container, key)
	idx, _ := args.Get(0).(*checkpoint.Index)
	return idx, args.Bool(1), args.Error(2)
}

func (m *mockStore) Delete(ctx context.Context, container, key string) error {
	return m.Called(ctx, container, key).Error(0)
}

func (m *mockStore) Close() error { return nil }

// recordingTransport answers every submission and keeps an ordered event log.
type recordingTransport struct {
	mu     sync.Mutex
	events []string
	submit func(worker.Request) (*status.ItemStatus, error)
	alive  func() error
}

func (r *recordingTransport) Submit(_ context.Context, req worker.Request) (*status.ItemStatus, error) {
	r.record("start:" + req.Context.ObjectName)
	defer r.record("end:" + req.Context.ObjectName)
	if r.submit != nil {
		return r.submit(req)
	}
	return status.Outcome(req.Context.ObjectName, status.OK, ""), nil
}

func (r *recordingTransport) CheckLiveness(context.Context) error {
	if r.alive != nil {
		return r.alive()
	}
	return nil
}

func (r *recordingTransport) record(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingTransport) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingTransport) submissions() int {
	n := 0
	for _, e := range r.log() {
		if len(e) > 6 && e[:6] == "start:" {
			n++
		}
	}
	return n
}

// countingStore wraps MemoryStore and counts writes.
type countingStore struct {
	*checkpoint.MemoryStore
	mu       sync.Mutex
	persists []int
	deletes  int
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: checkpoint.NewMemoryStore()}
}

func (c *countingStore) Persist(ctx context.Context, container, key string, idx checkpoint.Index) error {
	c.mu.Lock()
	c.persists = append(c.persists, idx.Offset)
	c.mu.Unlock()
	return c.MemoryStore.Persist(ctx, container, key, idx)
}

func (c *countingStore) Delete(ctx context.Context, container, key string) error {
	c.mu.Lock()
	c.deletes++
	c.mu.Unlock()
	return c.MemoryStore.Delete(ctx, container, key)
}

type batchLog struct {
	mu      sync.Mutex
	batches []Batch
}

func (b *batchLog) observe(batch Batch) {
	b.mu.Lock()
	b.batches = append(b.batches, batch)
	b.mu.Unlock()
}

func (b *batchLog) items() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]string, len(b.batches))
	for i, batch := range b.batches {
		out[i] = batch.Items
	}
	return out
}
