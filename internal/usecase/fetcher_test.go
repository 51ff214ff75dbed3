package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BucketCatalog/internal/catalog"
	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/ports"
)

// fakeLister yields count synthetic objects, optionally pausing after
// pauseAfter objects until release is closed or the context ends.
type fakeLister struct {
	count      int
	pauseAfter int
	release    chan struct{}
	paused     chan struct{}
	failAfter  int
	failErr    error

	pauseOnce sync.Once
}

func (l *fakeLister) Name() string { return "fake" }

func (l *fakeLister) List(ctx context.Context, _, _ string, yield func(domain.Object) error) error {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < l.count; i++ {
		if l.failErr != nil && i == l.failAfter {
			return l.failErr
		}
		if l.release != nil && i == l.pauseAfter {
			if l.paused != nil {
				l.pauseOnce.Do(func() { close(l.paused) })
			}
			select {
			case <-l.release:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		created := base.Add(time.Duration(i) * time.Second)
		if err := yield(domain.Object{
			Name:        fmt.Sprintf("obj-%05d", i),
			Size:        int64(i),
			Updated:     created,
			TimeCreated: &created,
		}); err != nil {
			return err
		}
	}
	return nil
}

func newFetcher(t *testing.T, lister ports.ObjectLister) (*Fetcher, *catalog.Manager) {
	t.Helper()
	mgr, err := catalog.NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	f, err := NewFetcher(FetcherDeps{Catalog: mgr, Lister: lister, LockDir: mgr.Dir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.Shutdown(ctx)
	})
	return f, mgr
}

func waitRun(t *testing.T, f *Fetcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx))
}

func TestFetchIngestsAllObjects(t *testing.T) {
	t.Parallel()
	f, mgr := newFetcher(t, &fakeLister{count: 1500})

	res, err := f.Start(context.Background(), "bucket", "")
	require.NoError(t, err)
	waitRun(t, f)

	run, err := mgr.Run(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, run.Status)
	assert.Equal(t, int64(1500), run.RecordCount)
	assert.NotNil(t, run.EndedAt)
	assert.Empty(t, run.Error)

	store, err := mgr.Open(context.Background(), res.RunID)
	require.NoError(t, err)
	page, err := store.Page(context.Background(), domain.Filter{}, domain.SortNameAsc, 2, 1000)
	require.NoError(t, err)
	assert.Len(t, page.Items, 500)
	assert.Equal(t, "obj-01000", page.Items[0].Name)

	assert.False(t, f.Status().Running)
	_, err = os.Stat(filepath.Join(mgr.Dir(), lockFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestStartTwiceIsRejected(t *testing.T) {
	t.Parallel()
	lister := &fakeLister{count: 1200, pauseAfter: 1100, release: make(chan struct{}), paused: make(chan struct{})}
	f, mgr := newFetcher(t, lister)

	res, err := f.Start(context.Background(), "bucket", "pub/")
	require.NoError(t, err)

	_, err = f.Start(context.Background(), "bucket", "pub/")
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)

	<-lister.paused
	status := f.Status()
	assert.True(t, status.Running)
	assert.Equal(t, res.RunID, status.RunID)
	assert.Equal(t, int64(1000), status.Processed)

	run, err := mgr.Run(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, run.Status)
	assert.Equal(t, int64(1000), run.RecordCount)

	assert.ErrorIs(t, f.Delete(res.RunID), domain.ErrRunActive)

	close(lister.release)
	waitRun(t, f)

	// The lister is reused; its pause channel is already released.
	second, err := f.Start(context.Background(), "bucket", "pub/")
	require.NoError(t, err)
	waitRun(t, f)

	run, err = mgr.Run(context.Background(), second.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, run.Status)
	assert.Equal(t, int64(1200), run.RecordCount)
}

func TestFetchRecordsIngestionError(t *testing.T) {
	t.Parallel()
	f, mgr := newFetcher(t, &fakeLister{count: 2000, failAfter: 1200, failErr: errors.New("listing broke")})

	res, err := f.Start(context.Background(), "bucket", "")
	require.NoError(t, err)
	waitRun(t, f)

	run, err := mgr.Run(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunError, run.Status)
	assert.Equal(t, int64(1000), run.RecordCount)
	assert.Contains(t, run.Error, "listing broke")
	assert.False(t, f.Status().Running)
}

func TestCancelStopsBetweenBatches(t *testing.T) {
	t.Parallel()
	lister := &fakeLister{count: 5000, pauseAfter: 1000, release: make(chan struct{}), paused: make(chan struct{})}
	f, mgr := newFetcher(t, lister)

	assert.False(t, f.Cancel())

	res, err := f.Start(context.Background(), "bucket", "")
	require.NoError(t, err)
	<-lister.paused

	assert.True(t, f.Cancel())
	waitRun(t, f)

	run, err := mgr.Run(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCanceled, run.Status)
	assert.Equal(t, int64(1000), run.RecordCount)
}

func TestDeleteFinishedRun(t *testing.T) {
	t.Parallel()
	f, mgr := newFetcher(t, &fakeLister{count: 3})

	res, err := f.Start(context.Background(), "bucket", "")
	require.NoError(t, err)
	waitRun(t, f)

	require.NoError(t, f.Delete(res.RunID))
	assert.False(t, mgr.Exists(res.RunID))
	assert.ErrorIs(t, f.Delete(res.RunID), domain.ErrNotFound)
}

func writeLock(t *testing.T, dir string, info lockInfo) {
	t.Helper()
	raw, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), raw, 0o644))
}

func TestStaleLockIsClearedAtStartup(t *testing.T) {
	t.Parallel()
	mgr, err := catalog.NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	writeLock(t, mgr.Dir(), lockInfo{PID: 1, Token: "old", RunID: "crashed", StartedAt: time.Now().Add(-5 * time.Hour)})

	f, err := NewFetcher(FetcherDeps{Catalog: mgr, Lister: &fakeLister{count: 1}, LockDir: mgr.Dir()})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(mgr.Dir(), lockFileName))
	assert.True(t, os.IsNotExist(err))

	_, err = f.Start(context.Background(), "bucket", "")
	require.NoError(t, err)
	waitRun(t, f)
}

func TestForeignLockBlocksStart(t *testing.T) {
	t.Parallel()
	mgr, err := catalog.NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	writeLock(t, mgr.Dir(), lockInfo{PID: 4242, Token: "other", RunID: "2025-01-01T00-00-00Z", StartedAt: time.Now().Add(-time.Minute)})

	f, err := NewFetcher(FetcherDeps{Catalog: mgr, Lister: &fakeLister{count: 1}, LockDir: mgr.Dir()})
	require.NoError(t, err)

	status := f.Status()
	assert.True(t, status.Running)
	assert.Equal(t, "2025-01-01T00-00-00Z", status.RunID)
	assert.Contains(t, status.Message, "4242")

	_, err = f.Start(context.Background(), "bucket", "")
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)
	assert.ErrorIs(t, f.Delete("2025-01-01T00-00-00Z"), domain.ErrRunActive)

	runs, err := mgr.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

type failingCatalog struct {
	*catalog.Manager
}

func (failingCatalog) Create(context.Context, string, string, string, time.Time) error {
	return fmt.Errorf("%w: disk full", domain.ErrStoreCreation)
}

func TestStoreCreationFailureReleasesLock(t *testing.T) {
	t.Parallel()
	mgr, err := catalog.NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	f, err := NewFetcher(FetcherDeps{Catalog: failingCatalog{mgr}, Lister: &fakeLister{count: 1}, LockDir: mgr.Dir()})
	require.NoError(t, err)

	_, err = f.Start(context.Background(), "bucket", "")
	assert.ErrorIs(t, err, domain.ErrStoreCreation)
	assert.False(t, f.Status().Running)

	_, err = os.Stat(filepath.Join(mgr.Dir(), lockFileName))
	assert.True(t, os.IsNotExist(err))
}
