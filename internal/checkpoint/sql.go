package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"archivist/internal/config"
	"archivist/internal/status"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore persists checkpoints in SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	target  string
}

// Open returns the store selected by the [checkpoint] section.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Checkpoint.Driver {
	case config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.Checkpoint.DSN)
	case config.DriverSQLite, "":
		return OpenSQLite(ctx, cfg.CheckpointPath())
	default:
		return nil, fmt.Errorf("checkpoint driver: unsupported value %q", cfg.Checkpoint.Driver)
	}
}

// OpenSQLite opens (creating if needed) a SQLite checkpoint database.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure checkpoint directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	return initialize(ctx, db, dialectSQLite, path)
}

// OpenPostgres connects to a PostgreSQL checkpoint database through pgx.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return initialize(ctx, db, dialectPostgres, "postgres")
}

func initialize(ctx context.Context, db *sql.DB, d dialect, target string) (*SQLStore, error) {
	store := &SQLStore{db: db, dialect: d, target: target}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Target returns the database file path, or "postgres".
func (s *SQLStore) Target() string { return s.target }

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var version int
	err = tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, s.rebind("INSERT INTO schema_version (version) VALUES (?)"), schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has version %d, expected %d (run 'archivist checkpoint clear' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

const upsertCheckpoint = `INSERT INTO checkpoints
    (container, checkpoint_key, run_id, step_id, item_offset, unit_level, status_json, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (container, checkpoint_key) DO UPDATE SET
    run_id = excluded.run_id,
    step_id = excluded.step_id,
    item_offset = excluded.item_offset,
    unit_level = excluded.unit_level,
    status_json = excluded.status_json,
    updated_at = excluded.updated_at`

const selectCheckpoint = `SELECT run_id, step_id, item_offset, unit_level, status_json, updated_at
FROM checkpoints WHERE container = ? AND checkpoint_key = ?`

const deleteCheckpoint = `DELETE FROM checkpoints WHERE container = ? AND checkpoint_key = ?`

// Persist upserts idx.
func (s *SQLStore) Persist(ctx context.Context, container, key string, idx Index) error {
	idx = prepared(idx)
	payload, err := json.Marshal(idx.Status)
	if err != nil {
		return fmt.Errorf("encode checkpoint status: %w", err)
	}
	err = s.withRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, s.rebind(upsertCheckpoint),
			container, key, idx.RunID, idx.StepID, idx.Offset, idx.Level, string(payload),
			idx.UpdatedAt.UTC().Format(time.RFC3339Nano))
		return execErr
	})
	if err != nil {
		return fmt.Errorf("persist checkpoint %s/%s: %w", container, key, err)
	}
	return nil
}

// Read loads the index stored under (container, key).
func (s *SQLStore) Read(ctx context.Context, container, key string) (*Index, bool, error) {
	var (
		idx        Index
		payload    string
		updatedRaw string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(selectCheckpoint), container, key).
		Scan(&idx.RunID, &idx.StepID, &idx.Offset, &idx.Level, &payload, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read checkpoint %s/%s: %w", container, key, err)
	}
	var snapshot status.ItemStatus
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, false, fmt.Errorf("decode checkpoint %s/%s: %w", container, key, err)
	}
	idx.Status = &snapshot
	if ts, parseErr := time.Parse(time.RFC3339Nano, updatedRaw); parseErr == nil {
		idx.UpdatedAt = ts
	}
	return &idx, true, nil
}

// Delete removes the index stored under (container, key).
func (s *SQLStore) Delete(ctx context.Context, container, key string) error {
	err := s.withRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, s.rebind(deleteCheckpoint), container, key)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint %s/%s: %w", container, key, err)
	}
	return nil
}

// withRetry retries op while SQLite reports the database as busy.
func (s *SQLStore) withRetry(ctx context.Context, op func() error) error {
	if s.dialect != dialectSQLite {
		return op()
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = busyRetryInitialBackoff
	policy.MaxInterval = busyRetryMaxBackoff
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, busyRetryAttempts-1), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isSQLiteBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Describe labels store for status output.
func Describe(store Store) string {
	switch s := store.(type) {
	case *SQLStore:
		return s.Target()
	case *MemoryStore:
		return config.DriverMemory
	default:
		return ""
	}
}
