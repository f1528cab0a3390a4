package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"archivist/internal/checkpoint"
	"archivist/internal/config"
)

// OpenCheckpointStore opens the store cfg selects and closes it when the test
// ends.
func OpenCheckpointStore(t testing.TB, cfg *config.Config) checkpoint.Store {
	t.Helper()
	store, err := checkpoint.Open(context.Background(), cfg)
	require.NoError(t, err, "open checkpoint store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedCheckpoint persists idx for (container, stepID) so a test can resume
// from it.
func SeedCheckpoint(t testing.TB, store checkpoint.Store, container, stepID string, idx checkpoint.Index) {
	t.Helper()
	require.NoError(t, store.Persist(context.Background(), container, stepID, idx), "seed checkpoint")
}
