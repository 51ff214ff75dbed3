package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/metrics"
	"BucketCatalog/internal/ports"
)

const (
	// DefaultBatchSize is the number of objects written per upsert.
	DefaultBatchSize = 1000
	// DefaultStaleLockAfter is the age beyond which a lock file left by a
	// crashed process is cleared.
	DefaultStaleLockAfter = 4 * time.Hour

	lockFileName = ".lock"
)

// FetcherDeps wires the orchestrator's collaborators.
type FetcherDeps struct {
	Catalog        ports.Catalog
	Lister         ports.ObjectLister
	Metrics        ports.Metrics
	Logger         *slog.Logger
	LockDir        string
	BatchSize      int
	StaleLockAfter time.Duration
	Now            func() time.Time
}

// Fetcher is the single-flight fetch orchestrator. At most one run ingests
// per process; the lock file extends that to every process sharing LockDir.
type Fetcher struct {
	catalog   ports.Catalog
	lister    ports.ObjectLister
	metrics   ports.Metrics
	logger    *slog.Logger
	lock      lockFile
	batchSize int
	staleAge  time.Duration
	now       func() time.Time

	mu     sync.Mutex
	active *activeRun
	wg     sync.WaitGroup
}

type activeRun struct {
	id        string
	bucket    string
	startedAt time.Time
	token     string
	processed atomic.Int64
	canceled  atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewFetcher builds the orchestrator and clears a stale lock left by a
// crashed process.
func NewFetcher(deps FetcherDeps) (*Fetcher, error) {
	if deps.Catalog == nil {
		return nil, errors.New("fetcher: catalog is required")
	}
	if deps.Lister == nil {
		return nil, errors.New("fetcher: lister is required")
	}
	if deps.LockDir == "" {
		return nil, errors.New("fetcher: lock dir is required")
	}

	f := &Fetcher{
		catalog:   deps.Catalog,
		lister:    deps.Lister,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		lock:      lockFile{path: filepath.Join(deps.LockDir, lockFileName)},
		batchSize: deps.BatchSize,
		staleAge:  deps.StaleLockAfter,
		now:       deps.Now,
	}
	if f.metrics == nil {
		f.metrics = metrics.Nop{}
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.batchSize <= 0 {
		f.batchSize = DefaultBatchSize
	}
	if f.staleAge <= 0 {
		f.staleAge = DefaultStaleLockAfter
	}
	if f.now == nil {
		f.now = time.Now
	}

	cleared, err := f.lock.clearStale(f.now(), f.staleAge)
	if err != nil {
		f.logger.Warn("stale lock cleanup failed", "path", f.lock.path, "error", err)
	} else if cleared {
		f.logger.Warn("cleared stale lock", "path", f.lock.path, "max_age", f.staleAge)
	}
	return f, nil
}

// Start creates a new run and begins ingesting it in the background. It
// returns domain.ErrAlreadyRunning without side effects when a run is active.
func (f *Fetcher) Start(ctx context.Context, bucket, prefix string) (domain.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.active != nil {
		return domain.StartResult{}, fmt.Errorf("%w: run %s", domain.ErrAlreadyRunning, f.active.id)
	}

	startedAt := f.now().UTC()
	runID := f.catalog.NewRunID(startedAt)
	token := uuid.NewString()

	if err := f.lock.acquire(lockInfo{PID: os.Getpid(), Token: token, RunID: runID, StartedAt: startedAt}); err != nil {
		return domain.StartResult{}, err
	}

	if err := f.catalog.Create(ctx, runID, bucket, prefix, startedAt); err != nil {
		f.releaseLock(token)
		return domain.StartResult{}, err
	}
	store, err := f.catalog.OpenRun(ctx, runID)
	if err != nil {
		f.releaseLock(token)
		return domain.StartResult{}, fmt.Errorf("%w: open %s: %v", domain.ErrStoreCreation, runID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := &activeRun{
		id:        runID,
		bucket:    bucket,
		startedAt: startedAt,
		token:     token,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	f.active = run
	f.metrics.RunStarted()

	f.wg.Add(1)
	go f.ingest(runCtx, run, store, bucket, prefix)

	f.logger.Info("fetch started", "run", runID, "bucket", bucket, "prefix", prefix)
	return domain.StartResult{RunID: runID, StartedAt: startedAt}, nil
}

func (f *Fetcher) ingest(ctx context.Context, run *activeRun, store ports.RunStore, bucket, prefix string) {
	defer f.wg.Done()
	defer f.finish(run)

	began := time.Now()
	batch := make([]domain.Object, 0, f.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.UpsertObjects(ctx, batch); err != nil {
			return err
		}
		run.processed.Add(int64(len(batch)))
		f.metrics.ObjectsIngested(len(batch))
		batch = batch[:0]
		return nil
	}

	err := f.lister.List(ctx, bucket, prefix, func(obj domain.Object) error {
		batch = append(batch, obj)
		if len(batch) < f.batchSize {
			return nil
		}
		if err := flush(); err != nil {
			return err
		}

		processed := run.processed.Load()
		if err := store.UpdateRun(ctx, domain.RunUpdate{Status: domain.RunRunning, RecordCount: &processed}); err != nil {
			return err
		}
		elapsed := time.Since(began).Seconds()
		f.logger.Debug("batch written", "run", run.id, "processed", processed,
			"rate_per_sec", int64(float64(processed)/max(elapsed, 0.001)))
		return ctx.Err()
	})
	if err == nil {
		err = flush()
	}

	status := domain.RunSuccess
	var message *string
	switch {
	case err != nil && run.canceled.Load():
		status = domain.RunCanceled
	case err != nil:
		status = domain.RunError
		msg := err.Error()
		message = &msg
	}

	ended := f.now().UTC()
	count := run.processed.Load()
	size := store.SizeMB()
	update := domain.RunUpdate{Status: status, EndedAt: &ended, RecordCount: &count, Error: message, SizeMB: &size}
	if uerr := store.UpdateRun(context.Background(), update); uerr != nil {
		f.logger.Error("record run outcome", "run", run.id, "status", status, "error", uerr)
	}

	f.metrics.ObserveDuration("ingest", time.Since(began))
	f.metrics.RunFinished(status)

	if status == domain.RunError {
		f.logger.Error("fetch failed", "run", run.id, "processed", count,
			"error", fmt.Errorf("%w: %v", domain.ErrIngestion, err))
		return
	}
	f.logger.Info("fetch finished", "run", run.id, "status", status, "processed", count,
		"size_mb", size, "duration", time.Since(began).Round(time.Millisecond))
}

// finish clears the run state and releases the lock under the same mutex
// that Start acquires them with.
func (f *Fetcher) finish(run *activeRun) {
	f.mu.Lock()
	if f.active == run {
		f.active = nil
	}
	f.releaseLock(run.token)
	f.mu.Unlock()

	run.cancel()
	close(run.done)
}

func (f *Fetcher) releaseLock(token string) {
	if err := f.lock.release(token); err != nil {
		f.logger.Warn("release lock", "path", f.lock.path, "error", err)
	}
}

// Status reports the current single-flight state without blocking on ingestion.
func (f *Fetcher) Status() domain.FetchStatus {
	f.mu.Lock()
	run := f.active
	f.mu.Unlock()

	if run != nil {
		started := run.startedAt
		msg := "ingesting"
		if run.canceled.Load() {
			msg = "canceling"
		}
		return domain.FetchStatus{
			Running:   true,
			RunID:     run.id,
			StartedAt: &started,
			Processed: run.processed.Load(),
			Message:   msg,
		}
	}

	if info, ok := f.foreignRun(); ok {
		started := info.StartedAt
		return domain.FetchStatus{
			Running:   true,
			RunID:     info.RunID,
			StartedAt: &started,
			Message:   fmt.Sprintf("running in another process (pid %d)", info.PID),
		}
	}
	return domain.FetchStatus{Message: "No fetch in progress"}
}

// foreignRun reads a fresh lock held by another process.
func (f *Fetcher) foreignRun() (lockInfo, bool) {
	info, ok := f.lock.read()
	if !ok || f.now().Sub(info.StartedAt) > f.staleAge {
		return lockInfo{}, false
	}
	return info, true
}

// Cancel asks the active run to stop after its current batch. It reports
// whether a run was active.
func (f *Fetcher) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.active == nil {
		return false
	}
	f.active.canceled.Store(true)
	f.active.cancel()
	f.logger.Info("fetch cancel requested", "run", f.active.id)
	return true
}

// Wait blocks until the active run, if any, has terminated.
func (f *Fetcher) Wait(ctx context.Context) error {
	f.mu.Lock()
	run := f.active
	f.mu.Unlock()

	if run == nil {
		return nil
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the active run and waits for it to record its outcome.
func (f *Fetcher) Shutdown(ctx context.Context) error {
	f.Cancel()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for ingestion: %w", ctx.Err())
	}
}

// IsActive reports whether runID is ingesting here or in another process.
func (f *Fetcher) IsActive(runID string) bool {
	f.mu.Lock()
	run := f.active
	f.mu.Unlock()

	if run != nil && run.id == runID {
		return true
	}
	info, ok := f.foreignRun()
	return ok && info.RunID == runID
}

// Delete removes a finished run. Active runs are refused with domain.ErrRunActive.
func (f *Fetcher) Delete(runID string) error {
	if f.IsActive(runID) {
		return fmt.Errorf("%w: %s", domain.ErrRunActive, runID)
	}
	if !f.catalog.Delete(runID) {
		return fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
	}
	f.logger.Info("run deleted", "run", runID)
	return nil
}
