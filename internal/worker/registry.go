package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/services"
)

const defaultProbeParallelism = 8

// Registry maps worker groups to pools. Lookups may race freely with
// registration and deregistration.
type Registry struct {
	mu     sync.RWMutex
	pools  map[string]*Pool
	logger *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		pools:  make(map[string]*Pool),
		logger: logging.NewComponentLogger(logger, "worker-registry"),
	}
}

// NewRegistryFromConfig builds pools and HTTP transports for every configured
// worker group.
func NewRegistryFromConfig(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry(logger)
	if cfg == nil {
		return reg, nil
	}
	timeout := cfg.Liveness.RequestTimeout()
	for _, group := range cfg.Workers.Groups {
		reg.AddPool(group.ID, group.Concurrency)
		for _, member := range group.Members {
			w := &Worker{
				ID:        member.ID,
				Address:   member.Address,
				Transport: NewHTTPTransport(member.Address, timeout),
			}
			if err := reg.Register(group.ID, w); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

// AddPool returns the pool for group, creating it with concurrency slots when
// absent.
func (r *Registry) AddPool(group string, concurrency int) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pool, ok := r.pools[group]; ok {
		return pool
	}
	pool := NewPool(group, concurrency)
	r.pools[group] = pool
	return pool
}

// Register adds w to group, creating a single-slot pool when the group is
// unknown.
func (r *Registry) Register(group string, w *Worker) error {
	pool := r.AddPool(group, 0)
	if err := pool.Add(w); err != nil {
		return err
	}
	r.logger.Info("worker registered",
		logging.String(logging.FieldEventType, "worker_registered"),
		logging.String(logging.FieldWorkerGroup, group),
		logging.String(logging.FieldWorkerID, w.ID),
		logging.String("address", w.Address),
	)
	return nil
}

// FindPoolByGroup returns the pool serving group.
func (r *Registry) FindPoolByGroup(group string) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.pools[group]
	return pool, ok
}

// UnregisterWorker removes a worker from its group's pool. The pool itself is
// kept, so later dispatches to an emptied group fail as unreachable rather
// than as an unknown group.
func (r *Registry) UnregisterWorker(group, workerID string) error {
	pool, ok := r.FindPoolByGroup(group)
	if !ok {
		return services.Wrap(services.ErrNotFound, "worker registry", "unregister", fmt.Sprintf("worker group %s", group), nil)
	}
	if !pool.Remove(workerID) {
		return services.Wrap(services.ErrNotFound, "worker registry", "unregister", fmt.Sprintf("worker %s in group %s", workerID, group), nil)
	}
	logging.WarnWithContext(r.logger, "worker unregistered", "worker_unregistered",
		logging.String(logging.FieldWorkerGroup, group),
		logging.String(logging.FieldWorkerID, workerID),
		logging.Int("remaining_workers", pool.Len()),
		logging.String(logging.FieldErrorHint, "check the worker process and its network path"),
		logging.String(logging.FieldImpact, "items are no longer routed to this worker"),
	)
	return nil
}

// Groups returns the registered group ids in sorted order.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := make([]string, 0, len(r.pools))
	for id := range r.pools {
		groups = append(groups, id)
	}
	sort.Strings(groups)
	return groups
}

// Snapshot lists every registered worker, ordered by group then id.
func (r *Registry) Snapshot() []Info {
	var out []Info
	for _, group := range r.Groups() {
		pool, ok := r.FindPoolByGroup(group)
		if !ok {
			continue
		}
		for _, w := range pool.Workers() {
			out = append(out, w.info())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Group == out[j].Group {
			return out[i].ID < out[j].ID
		}
		return out[i].Group < out[j].Group
	})
	return out
}

// ProbeResult is the outcome of one liveness check.
type ProbeResult struct {
	Info
	Alive   bool          `json:"alive"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// ProbeAll checks every registered worker concurrently. Results keep the
// Snapshot order. Probing never deregisters anything.
func (r *Registry) ProbeAll(ctx context.Context) []ProbeResult {
	var workers []*Worker
	for _, group := range r.Groups() {
		if pool, ok := r.FindPoolByGroup(group); ok {
			workers = append(workers, pool.Workers()...)
		}
	}
	sort.SliceStable(workers, func(i, j int) bool {
		if workers[i].Group == workers[j].Group {
			return workers[i].ID < workers[j].ID
		}
		return workers[i].Group < workers[j].Group
	})

	results := make([]ProbeResult, len(workers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultProbeParallelism)
	for i, w := range workers {
		g.Go(func() error {
			start := time.Now()
			err := w.Transport.CheckLiveness(gctx)
			results[i] = ProbeResult{Info: w.info(), Alive: err == nil, Latency: time.Since(start)}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
