package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/services"
)

func TestRegistryRegisterAndFind(t *testing.T) {
	reg := NewRegistry(logging.NewNop())
	reg.AddPool("G", 4)
	require.NoError(t, reg.Register("G", &Worker{ID: "w1", Transport: &fakeTransport{}}))
	require.NoError(t, reg.Register("H", &Worker{ID: "w2", Transport: &fakeTransport{}}))

	pool, ok := reg.FindPoolByGroup("G")
	require.True(t, ok)
	assert.Equal(t, 4, pool.Capacity())
	_, ok = reg.FindPoolByGroup("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"G", "H"}, reg.Groups())
	assert.Equal(t, []Info{{ID: "w1", Group: "G"}, {ID: "w2", Group: "H"}}, reg.Snapshot())
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry(logging.NewNop())
	require.NoError(t, reg.Register("G", &Worker{ID: "w1"}))

	require.NoError(t, reg.UnregisterWorker("G", "w1"))
	pool, ok := reg.FindPoolByGroup("G")
	require.True(t, ok, "emptied pools stay registered")
	assert.Equal(t, 0, pool.Len())

	err := reg.UnregisterWorker("G", "w1")
	assert.True(t, errors.Is(err, services.ErrNotFound))
	err = reg.UnregisterWorker("missing", "w1")
	assert.True(t, errors.Is(err, services.ErrNotFound))
}

func TestRegistryLookupsRaceWithDeregistration(t *testing.T) {
	reg := NewRegistry(logging.NewNop())
	const workers = 50
	for i := 0; i < workers; i++ {
		require.NoError(t, reg.Register("G", &Worker{ID: fmt.Sprintf("w%d", i)}))
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.UnregisterWorker("G", fmt.Sprintf("w%d", i))
		}()
		go func() {
			defer wg.Done()
			if pool, ok := reg.FindPoolByGroup("G"); ok {
				_ = pool.pick()
				_ = pool.Workers()
			}
		}()
	}
	wg.Wait()

	pool, ok := reg.FindPoolByGroup("G")
	require.True(t, ok)
	assert.Equal(t, 0, pool.Len())
}

func TestRegistryFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Workers.Groups = []config.WorkerGroup{{
		ID:          "DefaultWorker",
		Concurrency: 3,
		Members: []config.WorkerMember{
			{ID: "w1", Address: "127.0.0.1:9001"},
			{ID: "w2", Address: "http://127.0.0.1:9002"},
		},
	}}

	reg, err := NewRegistryFromConfig(&cfg, logging.NewNop())
	require.NoError(t, err)
	pool, ok := reg.FindPoolByGroup("DefaultWorker")
	require.True(t, ok)
	assert.Equal(t, 3, pool.Capacity())
	require.Equal(t, 2, pool.Len())
	transport, ok := pool.Workers()[0].Transport.(*HTTPTransport)
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:9001", transport.baseURL)
}

func TestProbeAll(t *testing.T) {
	reg := NewRegistry(logging.NewNop())
	require.NoError(t, reg.Register("G", &Worker{ID: "alive", Transport: &fakeTransport{}}))
	require.NoError(t, reg.Register("G", &Worker{ID: "dead", Transport: &fakeTransport{alive: func() error {
		return services.Wrap(services.ErrTransient, "transport", "liveness", "refused", nil)
	}}}))

	results := reg.ProbeAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "alive", results[0].ID)
	assert.True(t, results[0].Alive)
	assert.Equal(t, "dead", results[1].ID)
	assert.False(t, results[1].Alive)
	assert.Contains(t, results[1].Error, "refused")

	pool, _ := reg.FindPoolByGroup("G")
	assert.Equal(t, 2, pool.Len(), "probing never deregisters")
}
