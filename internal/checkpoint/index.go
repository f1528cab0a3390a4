package checkpoint

import (
	"context"
	"errors"
	"time"

	"archivist/internal/status"
)

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Index is the resume point of one step: how many items have already been
// dispatched and the aggregate outcome of those items.
type Index struct {
	RunID     string             `json:"run_id"`
	StepID    string             `json:"step_id"`
	Offset    int                `json:"offset"`
	Level     int                `json:"level"`
	Status    *status.ItemStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Matches reports whether the index belongs to the given run and step.
func (i *Index) Matches(runID, stepID string) bool {
	return i != nil && i.RunID == runID && i.StepID == stepID
}

// Store persists checkpoint indexes.
type Store interface {
	// Persist creates or overwrites the index stored under (container, key).
	Persist(ctx context.Context, container, key string, idx Index) error
	// Read returns the stored index and whether one exists.
	Read(ctx context.Context, container, key string) (*Index, bool, error)
	// Delete removes the index. Deleting a missing index is not an error.
	Delete(ctx context.Context, container, key string) error
	Close() error
}

func prepared(idx Index) Index {
	if idx.UpdatedAt.IsZero() {
		idx.UpdatedAt = time.Now().UTC()
	}
	idx.Status = idx.Status.Clone()
	return idx
}
