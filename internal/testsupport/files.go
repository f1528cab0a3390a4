package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"archivist/internal/listing"
)

// WriteFile writes size bytes of filler to path, creating parent
// directories. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'x'}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteWorkspace creates <root>/<container>/<collection>/<item> files for
// every entry in collections and returns the container directory.
func WriteWorkspace(t testing.TB, root, container string, collections map[string][]string) string {
	t.Helper()

	dir := filepath.Join(root, container)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for collection, items := range collections {
		collDir := filepath.Join(dir, collection)
		if err := os.MkdirAll(collDir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", collDir, err)
		}
		for _, item := range items {
			WriteFile(t, filepath.Join(collDir, item), 1)
		}
	}
	return dir
}

// WriteLevelIndex writes the hierarchical level index document for container.
func WriteLevelIndex(t testing.TB, root, container string, levels map[int][]string) {
	t.Helper()

	data, err := listing.EncodeLevelIndex(levels)
	if err != nil {
		t.Fatalf("encode level index: %v", err)
	}
	path := filepath.Join(root, container, listing.LevelIndexDir, listing.LevelIndexFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteWorkflow writes a workflow document named file into dir and returns
// its path.
func WriteWorkflow(t testing.TB, dir, file, body string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
