package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"archivist/internal/services"
)

const (
	// LevelIndexDir holds the level document inside a container.
	LevelIndexDir = "UnitsLevel"
	// LevelIndexFile is the level document name.
	LevelIndexFile = "ingestLevelStack.json"

	levelKeyPrefix = "level_"
)

// Source resolves work items for a container.
type Source interface {
	// ListFlat returns the items of collection in a stable order.
	ListFlat(ctx context.Context, container, collection string) ([]string, error)
	// LevelIndex returns the item identifiers per hierarchy level.
	LevelIndex(ctx context.Context, container string) (map[int][]string, error)
}

// Workspace is a Source backed by a local directory tree.
type Workspace struct {
	root string
}

// NewWorkspace returns a source rooted at root.
func NewWorkspace(root string) *Workspace {
	return &Workspace{root: strings.TrimSpace(root)}
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// ListFlat lists the regular files and directories of one collection, sorted
// by name. Hidden entries are skipped. A missing container or collection
// wraps services.ErrNotFound.
func (w *Workspace) ListFlat(ctx context.Context, container, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := w.containerPath(container, collection)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "listing", "list flat", fmt.Sprintf("collection %s/%s", container, collection), nil)
		}
		return nil, services.Wrap(services.ErrConfiguration, "listing", "list flat", dir, err)
	}
	items := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		items = append(items, name)
	}
	sort.Strings(items)
	return items, nil
}

// LevelIndex reads the container's level document.
func (w *Workspace) LevelIndex(ctx context.Context, container string) (map[int][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := w.containerPath(container, LevelIndexDir, LevelIndexFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "listing", "level index", fmt.Sprintf("container %s has no level document", container), nil)
		}
		return nil, services.Wrap(services.ErrConfiguration, "listing", "level index", path, err)
	}
	return ParseLevelIndex(data)
}

// ParseLevelIndex decodes a level document.
func ParseLevelIndex(data []byte) (map[int][]string, error) {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "listing", "level index", "decode level document", err)
	}
	levels := make(map[int][]string, len(raw))
	for key, items := range raw {
		suffix, ok := strings.CutPrefix(key, levelKeyPrefix)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "listing", "level index", fmt.Sprintf("unexpected key %q", key), nil)
		}
		level, err := strconv.Atoi(suffix)
		if err != nil || level < 0 {
			return nil, services.Wrap(services.ErrConfiguration, "listing", "level index", fmt.Sprintf("invalid level %q", key), nil)
		}
		levels[level] = append([]string(nil), items...)
	}
	return levels, nil
}

// EncodeLevelIndex renders levels in the document format.
func EncodeLevelIndex(levels map[int][]string) ([]byte, error) {
	raw := make(map[string][]string, len(levels))
	for level, items := range levels {
		raw[levelKeyPrefix+strconv.Itoa(level)] = items
	}
	return json.MarshalIndent(raw, "", "  ")
}

// SortedLevels returns the level numbers of an index in ascending order.
func SortedLevels(levels map[int][]string) []int {
	out := make([]int, 0, len(levels))
	for level := range levels {
		out = append(out, level)
	}
	sort.Ints(out)
	return out
}

// ContainerInfo describes one container directory.
type ContainerInfo struct {
	Name        string
	Path        string
	ModTime     time.Time
	Collections []string
}

// Containers lists the container directories in the workspace. A missing
// workspace yields no containers.
func (w *Workspace) Containers() ([]ContainerInfo, error) {
	if w.root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []ContainerInfo
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(w.root, entry.Name())
		out = append(out, ContainerInfo{
			Name:        entry.Name(),
			Path:        path,
			ModTime:     info.ModTime(),
			Collections: subdirectories(path),
		})
	}
	return out, nil
}

func subdirectories(path string) []string {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names
}

func (w *Workspace) containerPath(container string, parts ...string) (string, error) {
	if w.root == "" {
		return "", services.Wrap(services.ErrConfiguration, "listing", "resolve", "workspace directory not configured", nil)
	}
	segments := append([]string{container}, parts...)
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." || strings.ContainsAny(segment, `/\`) {
			return "", services.Wrap(services.ErrValidation, "listing", "resolve", fmt.Sprintf("invalid path segment %q", segment), nil)
		}
	}
	return filepath.Join(append([]string{w.root}, segments...)...), nil
}
