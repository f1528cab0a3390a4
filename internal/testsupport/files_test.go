package testsupport_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/listing"
	"archivist/internal/testsupport"
)

func TestWriteFileCreatesParentsAndSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "blob")

	testsupport.WriteFile(t, path, 2048)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 2048, info.Size())

	testsupport.WriteFile(t, path, 0)
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.Size())
}

func TestWriteWorkspaceIsListable(t *testing.T) {
	root := t.TempDir()
	dir := testsupport.WriteWorkspace(t, root, "c1", map[string][]string{
		"ObjectGroup": {"b", "a", "c"},
	})
	assert.Equal(t, filepath.Join(root, "c1"), dir)

	items, err := listing.NewWorkspace(root).ListFlat(context.Background(), "c1", "ObjectGroup")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, items)
}
