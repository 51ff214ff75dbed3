// Package catalog owns the per-run SQLite stores: schema, ingestion writes,
// the filtered query engine, and manifest linking.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"BucketCatalog/internal/dbopen"
	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/ports"
	"BucketCatalog/internal/validate"
)

var (
	_ ports.Catalog         = (*Manager)(nil)
	_ ports.ManifestCatalog = (*Manager)(nil)
	_ ports.RunStore        = (*Store)(nil)
	_ ports.ManifestStore   = (*Store)(nil)
)

const (
	storeExt = ".db"
	tmpExt   = ".tmp"
	// runIDLayout names store files after the run's start time.
	runIDLayout = "2006-01-02T15-04-05Z"
)

// Manager locates, creates and caches run stores inside one data directory.
type Manager struct {
	dir    string
	logger *slog.Logger
	opts   StoreOptions

	mu     sync.Mutex
	stores map[string]*Store
}

// StoreOptions tunes how store files are opened. Zero values keep the
// dbopen defaults.
type StoreOptions struct {
	BusyTimeout time.Duration
	// Synchronous is the durable mode restored after every ingestion batch.
	Synchronous  string
	MaxOpenConns int
}

var synchronousModes = map[string]struct{}{"OFF": {}, "NORMAL": {}, "FULL": {}, "EXTRA": {}}

func (o StoreOptions) normalize() (StoreOptions, error) {
	o.Synchronous = strings.ToUpper(strings.TrimSpace(o.Synchronous))
	if o.Synchronous == "" {
		o.Synchronous = "FULL"
	}
	if _, ok := synchronousModes[o.Synchronous]; !ok {
		return o, fmt.Errorf("unknown synchronous mode %q", o.Synchronous)
	}
	return o, nil
}

func (o StoreOptions) dbopen() []dbopen.Option {
	opts := []dbopen.Option{dbopen.WithSynchronous(o.Synchronous)}
	if o.BusyTimeout > 0 {
		opts = append(opts, dbopen.WithBusyTimeout(int(o.BusyTimeout/time.Millisecond)))
	}
	if o.MaxOpenConns > 0 {
		opts = append(opts, dbopen.WithMaxOpenConns(o.MaxOpenConns))
	}
	return opts
}

// NewManager prepares the data directory with default store options.
func NewManager(dir string, logger *slog.Logger) (*Manager, error) {
	return NewManagerWithOptions(dir, logger, StoreOptions{})
}

// NewManagerWithOptions prepares the data directory.
func NewManagerWithOptions(dir string, logger *slog.Logger, opts StoreOptions) (*Manager, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dir: dir, logger: logger, opts: opts, stores: map[string]*Store{}}, nil
}

// Dir returns the data directory.
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) path(runID string) string {
	return filepath.Join(m.dir, runID+storeExt)
}

// NewRunID derives a path-safe run identifier from a start time, adding a
// numeric suffix when a store with that name already exists.
func (m *Manager) NewRunID(startedAt time.Time) string {
	base := startedAt.UTC().Format(runIDLayout)
	id := base
	for n := 1; m.fileExists(id); n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}

func (m *Manager) fileExists(runID string) bool {
	_, err := os.Stat(m.path(runID))
	return err == nil
}

// Exists reports whether a store for runID is present.
func (m *Manager) Exists(runID string) bool {
	if validate.RunID(runID) != nil {
		return false
	}
	return m.fileExists(runID)
}

// Create builds a new store with a running fetch row. The store is written
// under a temporary name and only renamed into place once complete.
func (m *Manager) Create(ctx context.Context, runID, bucket, prefix string, startedAt time.Time) error {
	if err := validate.RunID(runID); err != nil {
		return err
	}
	final := m.path(runID)
	if m.fileExists(runID) {
		return fmt.Errorf("%w: store %s already exists", domain.ErrStoreCreation, runID)
	}

	tmp := final + tmpExt
	removeFiles(tmp)

	if err := initStore(ctx, tmp, bucket, prefix, startedAt, m.opts); err != nil {
		removeFiles(tmp)
		return fmt.Errorf("%w: %v", domain.ErrStoreCreation, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		removeFiles(tmp)
		return fmt.Errorf("%w: rename: %v", domain.ErrStoreCreation, err)
	}
	removeFiles(tmp)
	return nil
}

func initStore(ctx context.Context, path, bucket, prefix string, startedAt time.Time, opts StoreOptions) error {
	db, err := dbopen.Open(path, opts.dbopen()...)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(ctx, db); err != nil {
		return err
	}

	var prefixVal any
	if prefix != "" {
		prefixVal = prefix
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO fetch (id, bucket_name, prefix, started_at, status) VALUES (1, ?, ?, ?, ?)`,
		bucket, prefixVal, formatTime(startedAt), string(domain.RunRunning))
	if err != nil {
		return fmt.Errorf("insert fetch row: %w", err)
	}
	// Fold the WAL into the main file before the rename.
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Open returns the cached store for runID, opening and migrating it on first use.
func (m *Manager) Open(ctx context.Context, runID string) (*Store, error) {
	if err := validate.RunID(runID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[runID]; ok {
		return s, nil
	}
	if !m.fileExists(runID) {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
	}

	s, err := openStore(ctx, runID, m.path(runID), m.opts)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", runID, err)
	}
	m.stores[runID] = s
	return s, nil
}

// Run reads the fetch row of one store.
func (m *Manager) Run(ctx context.Context, runID string) (domain.Run, error) {
	s, err := m.Open(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	return s.Run(ctx)
}

// ListRuns reads every store in the data directory, newest first.
// Stores that cannot be read are skipped with a warning.
func (m *Manager) ListRuns(ctx context.Context) ([]domain.Run, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	runs := make([]domain.Run, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, storeExt) {
			continue
		}
		runID := strings.TrimSuffix(name, storeExt)
		run, err := m.Run(ctx, runID)
		if err != nil {
			m.logger.Warn("skip unreadable store", "file", name, "error", err)
			continue
		}
		runs = append(runs, run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// Delete closes and removes a store. It reports false when the store does not
// exist or could not be removed.
func (m *Manager) Delete(runID string) bool {
	if validate.RunID(runID) != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[runID]; ok {
		_ = s.close()
		delete(m.stores, runID)
	}

	path := m.path(runID)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if err := os.Remove(path); err != nil {
		m.logger.Error("delete store", "run", runID, "error", err)
		return false
	}
	removeFiles(path + "-wal")
	removeFiles(path + "-shm")
	return true
}

// SizeMB reports the on-disk size of a store, rounded to two decimals.
func (m *Manager) SizeMB(runID string) float64 {
	if validate.RunID(runID) != nil {
		return 0
	}
	return fileSizeMB(m.path(runID))
}

// Close releases every cached store handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, s := range m.stores {
		if err := s.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(m.stores, id)
	}
	return errors.Join(errs...)
}

func fileSizeMB(path string) float64 {
	var total int64
	for _, p := range []string{path, path + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	mb := float64(total) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}

func removeFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		_ = os.Remove(p)
	}
}

// OpenRun is Open narrowed to the ingestion write surface.
func (m *Manager) OpenRun(ctx context.Context, runID string) (ports.RunStore, error) {
	s, err := m.Open(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenManifest is Open narrowed to the manifest surface.
func (m *Manager) OpenManifest(ctx context.Context, runID string) (ports.ManifestStore, error) {
	s, err := m.Open(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Page queries one page of a run's objects.
func (m *Manager) Page(ctx context.Context, runID string, filter domain.Filter, sort domain.SortOrder, page, size int) (domain.Page, error) {
	s, err := m.Open(ctx, runID)
	if err != nil {
		return domain.Page{}, err
	}
	return s.Page(ctx, filter, sort, page, size)
}

// Names lists every matching object name of a run.
func (m *Manager) Names(ctx context.Context, runID string, filter domain.Filter, sort domain.SortOrder) ([]string, error) {
	s, err := m.Open(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s.Names(ctx, filter, sort)
}
