package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"archivist/internal/status"
)

// Handler applies one action to one work item inside the worker process.
type Handler interface {
	Name() string
	Execute(ctx context.Context, req Request) (*status.ItemStatus, error)
	HealthCheck(ctx context.Context) Health
}

// Health summarizes the readiness of a handler.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Catalogue holds the handlers a worker can run, by name.
type Catalogue struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewCatalogue registers the given handlers.
func NewCatalogue(handlers ...Handler) *Catalogue {
	c := &Catalogue{handlers: make(map[string]Handler)}
	for _, h := range handlers {
		c.Register(h)
	}
	return c
}

// Register adds or replaces a handler.
func (c *Catalogue) Register(h Handler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[strings.ToUpper(h.Name())] = h
}

// Lookup finds a handler by name, case-insensitively.
func (c *Catalogue) Lookup(name string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[strings.ToUpper(strings.TrimSpace(name))]
	return h, ok
}

// Health reports every handler's readiness, sorted by name.
func (c *Catalogue) Health(ctx context.Context) []Health {
	c.mu.RLock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	out := make([]Health, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, h.HealthCheck(ctx))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BuiltinHandlers returns the handlers every worker ships with. workspaceDir
// is the root LIST_CHECK resolves items against.
func BuiltinHandlers(workspaceDir string) []Handler {
	return []Handler{noopHandler{}, &listCheckHandler{root: workspaceDir}, sleepHandler{}}
}

type noopHandler struct{}

func (noopHandler) Name() string { return "NOOP" }

func (noopHandler) Execute(context.Context, Request) (*status.ItemStatus, error) {
	return status.Outcome("NOOP", status.OK, ""), nil
}

func (noopHandler) HealthCheck(context.Context) Health { return Healthy("NOOP") }

// listCheckHandler verifies the item exists in its workspace collection.
type listCheckHandler struct {
	root string
}

func (h *listCheckHandler) Name() string { return "LIST_CHECK" }

func (h *listCheckHandler) Execute(_ context.Context, req Request) (*status.ItemStatus, error) {
	ec := req.Context
	if ec.ContainerName == "" || ec.ObjectName == "" {
		return nil, errors.New("container and object must be set")
	}
	path := filepath.Join(h.root, ec.ContainerName, req.Step.Distribution().Element, ec.ObjectName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return status.Outcome(h.Name(), status.KO, "OBJECT_MISSING"), nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return status.Outcome(h.Name(), status.OK, ""), nil
}

func (h *listCheckHandler) HealthCheck(context.Context) Health {
	if strings.TrimSpace(h.root) == "" {
		return Unhealthy(h.Name(), "workspace directory not configured")
	}
	info, err := os.Stat(h.root)
	if err != nil {
		return Unhealthy(h.Name(), err.Error())
	}
	if !info.IsDir() {
		return Unhealthy(h.Name(), "workspace path is not a directory")
	}
	return Healthy(h.Name())
}

// SleepProperty names the execution context property holding the SLEEP
// duration in milliseconds.
const SleepProperty = "sleep_ms"

const defaultSleep = 100 * time.Millisecond

// sleepHandler waits before answering OK. It exists to exercise slow workers.
type sleepHandler struct{}

func (sleepHandler) Name() string { return "SLEEP" }

func (sleepHandler) Execute(ctx context.Context, req Request) (*status.ItemStatus, error) {
	wait := defaultSleep
	if raw := strings.TrimSpace(req.Context.Property(SleepProperty)); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("invalid %s %q", SleepProperty, raw)
		}
		wait = time.Duration(ms) * time.Millisecond
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return status.Outcome("SLEEP", status.OK, ""), nil
	}
}

func (sleepHandler) HealthCheck(context.Context) Health { return Healthy("SLEEP") }
