package ports

import (
	"context"
	"time"

	"BucketCatalog/internal/domain"
)

// ObjectLister streams the objects of a bucket. List calls yield once per
// object in arrival order; a non-nil error from yield stops the listing and
// is returned as is. A listing is finite and cannot be restarted.
type ObjectLister interface {
	Name() string
	List(ctx context.Context, bucket, prefix string, yield func(domain.Object) error) error
}

// ManifestSource retrieves raw manifest documents.
type ManifestSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RunStore is the per-run catalog the orchestrator writes into.
type RunStore interface {
	UpsertObjects(ctx context.Context, batch []domain.Object) error
	UpdateRun(ctx context.Context, u domain.RunUpdate) error
	SizeMB() float64
}

// Catalog creates, opens and removes run stores.
type Catalog interface {
	NewRunID(startedAt time.Time) string
	Create(ctx context.Context, runID, bucket, prefix string, startedAt time.Time) error
	OpenRun(ctx context.Context, runID string) (RunStore, error)
	ListRuns(ctx context.Context) ([]domain.Run, error)
	Run(ctx context.Context, runID string) (domain.Run, error)
	Delete(runID string) bool
}

// Metrics receives ingestion and linking observations.
type Metrics interface {
	ObjectsIngested(n int)
	RunStarted()
	RunFinished(status domain.RunStatus)
	LinkedObjects(n int64)
	ObserveDuration(operation string, d time.Duration)
}

// Scheduler controls when periodic fetches execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// ManifestStore is the manifest surface of one run store.
type ManifestStore interface {
	Manifest(ctx context.Context) (domain.Manifest, bool, error)
	ManifestEntries(ctx context.Context) ([]domain.ManifestEntry, error)
	ReplaceManifest(ctx context.Context, m domain.Manifest, entries []domain.ManifestEntry) error
	SetManifestStatus(ctx context.Context, status domain.ManifestStatus) error
	ClearManifest(ctx context.Context) error
	ClearLinks(ctx context.Context) error
	Link(ctx context.Context) (domain.LinkStats, error)
	LinkStats(ctx context.Context) (domain.LinkStats, error)
}

// ManifestCatalog opens the manifest surface of a run.
type ManifestCatalog interface {
	OpenManifest(ctx context.Context, runID string) (ManifestStore, error)
}
