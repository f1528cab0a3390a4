package listing_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/listing"
	"archivist/internal/services"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestListFlatSortsAndSkipsHidden(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"c.pdf", "a.pdf", ".tmp", "b.pdf"} {
		writeFile(t, filepath.Join(root, "c1", "ObjectGroup", name), "x")
	}

	items, err := listing.NewWorkspace(root).ListFlat(context.Background(), "c1", "ObjectGroup")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, items)
}

func TestListFlatMissingCollection(t *testing.T) {
	_, err := listing.NewWorkspace(t.TempDir()).ListFlat(context.Background(), "c1", "ObjectGroup")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrNotFound))
	assert.Equal(t, services.MessageListingFailed, services.MessageID(err))
}

func TestListFlatRejectsTraversal(t *testing.T) {
	_, err := listing.NewWorkspace(t.TempDir()).ListFlat(context.Background(), "..", "ObjectGroup")
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestListFlatUnconfiguredWorkspace(t *testing.T) {
	_, err := listing.NewWorkspace("").ListFlat(context.Background(), "c1", "ObjectGroup")
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

func TestLevelIndex(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "c1", listing.LevelIndexDir, listing.LevelIndexFile),
		`{"level_1":["c"],"level_0":["a","b"]}`)

	levels, err := listing.NewWorkspace(root).LevelIndex(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, map[int][]string{0: {"a", "b"}, 1: {"c"}}, levels)
	assert.Equal(t, []int{0, 1}, listing.SortedLevels(levels))
}

func TestLevelIndexErrors(t *testing.T) {
	root := t.TempDir()
	ws := listing.NewWorkspace(root)

	_, err := ws.LevelIndex(context.Background(), "c1")
	assert.ErrorIs(t, err, services.ErrNotFound)

	writeFile(t, filepath.Join(root, "c1", listing.LevelIndexDir, listing.LevelIndexFile), `{"depth_0":["a"]}`)
	_, err = ws.LevelIndex(context.Background(), "c1")
	assert.ErrorIs(t, err, services.ErrConfiguration)

	_, err = listing.ParseLevelIndex([]byte(`{"level_x":["a"]}`))
	assert.ErrorIs(t, err, services.ErrConfiguration)
	_, err = listing.ParseLevelIndex([]byte(`not json`))
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

func TestEncodeLevelIndexRoundTrip(t *testing.T) {
	levels := map[int][]string{0: {"root"}, 2: {"leaf-1", "leaf-2"}}
	data, err := listing.EncodeLevelIndex(levels)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"level_2"`)
	decoded, err := listing.ParseLevelIndex(data)
	require.NoError(t, err)
	assert.Equal(t, levels, decoded)
}

func TestListingHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := listing.NewWorkspace(t.TempDir()).ListFlat(ctx, "c1", "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContainers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "c1", "ObjectGroup", "a.pdf"), "x")
	writeFile(t, filepath.Join(root, "c2", listing.LevelIndexDir, listing.LevelIndexFile), "{}")
	writeFile(t, filepath.Join(root, "stray.txt"), "x")

	containers, err := listing.NewWorkspace(root).Containers()
	require.NoError(t, err)
	require.Len(t, containers, 2)
	assert.Equal(t, "c1", containers[0].Name)
	assert.Equal(t, []string{"ObjectGroup"}, containers[0].Collections)
	assert.Equal(t, []string{listing.LevelIndexDir}, containers[1].Collections)

	missing, err := listing.NewWorkspace(filepath.Join(root, "nope")).Containers()
	require.NoError(t, err)
	assert.Empty(t, missing)
}
