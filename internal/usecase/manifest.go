package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/manifest"
	"BucketCatalog/internal/metrics"
	"BucketCatalog/internal/ports"
	"BucketCatalog/internal/validate"
)

// ManifestDeps wires the manifest service.
type ManifestDeps struct {
	Catalog ports.ManifestCatalog
	Source  ports.ManifestSource
	Metrics ports.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// ManifestService loads manifests into run stores and links objects to them.
type ManifestService struct {
	catalog ports.ManifestCatalog
	source  ports.ManifestSource
	metrics ports.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewManifestService constructs the service.
func NewManifestService(deps ManifestDeps) *ManifestService {
	s := &ManifestService{
		catalog: deps.Catalog,
		source:  deps.Source,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		now:     deps.Now,
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Load fetches the manifest at url into runID's store and links objects to
// its patterns. A document whose hash equals the stored one is not
// recompiled; the stored entries are returned with Cached set.
func (s *ManifestService) Load(ctx context.Context, runID, url string) (domain.ManifestLoad, error) {
	if err := validate.ManifestURL(url); err != nil {
		return domain.ManifestLoad{}, err
	}
	store, err := s.catalog.OpenManifest(ctx, runID)
	if err != nil {
		return domain.ManifestLoad{}, err
	}

	raw, err := s.fetch(ctx, url)
	if err != nil {
		return domain.ManifestLoad{}, err
	}
	hash := contentHash(raw)

	current, ok, err := store.Manifest(ctx)
	if err != nil {
		return domain.ManifestLoad{}, err
	}
	// A processing status means an earlier link pass never completed.
	if ok && current.ContentHash == hash && current.Status == domain.ManifestIdle {
		s.logger.Debug("manifest unchanged", "run", runID, "hash", hash)
		return s.snapshot(ctx, store, true, 0)
	}

	compiled, err := manifest.CompileBytes(raw)
	if err != nil {
		return domain.ManifestLoad{}, fmt.Errorf("%w: %v", domain.ErrManifestParse, err)
	}

	m := domain.Manifest{SourceURL: url, ContentHash: hash, LoadedAt: s.now().UTC()}
	if err := store.ReplaceManifest(ctx, m, toEntries(compiled)); err != nil {
		return domain.ManifestLoad{}, err
	}
	if _, err := s.link(ctx, store, runID); err != nil {
		return domain.ManifestLoad{}, err
	}

	s.logger.Info("manifest loaded", "run", runID, "url", url,
		"artifacts", compiled.ArtifactCount, "patterns", len(compiled.Candidates))
	return s.snapshot(ctx, store, false, compiled.ArtifactCount)
}

// Relink clears every link and links again against the stored patterns.
func (s *ManifestService) Relink(ctx context.Context, runID string) (domain.LinkStats, error) {
	store, err := s.catalog.OpenManifest(ctx, runID)
	if err != nil {
		return domain.LinkStats{}, err
	}
	if _, ok, err := store.Manifest(ctx); err != nil {
		return domain.LinkStats{}, err
	} else if !ok {
		return domain.LinkStats{}, fmt.Errorf("%w: run %s has no manifest", domain.ErrNotFound, runID)
	}

	if err := store.SetManifestStatus(ctx, domain.ManifestProcessing); err != nil {
		return domain.LinkStats{}, err
	}
	if err := store.ClearLinks(ctx); err != nil {
		return domain.LinkStats{}, err
	}
	return s.link(ctx, store, runID)
}

// link runs one link pass and marks the manifest idle.
func (s *ManifestService) link(ctx context.Context, store ports.ManifestStore, runID string) (domain.LinkStats, error) {
	began := time.Now()
	stats, err := store.Link(ctx)
	if err != nil {
		return domain.LinkStats{}, err
	}
	if err := store.SetManifestStatus(ctx, domain.ManifestIdle); err != nil {
		return domain.LinkStats{}, err
	}

	s.metrics.ObserveDuration("link", time.Since(began))
	s.metrics.LinkedObjects(stats.LinkedObjects)
	s.logger.Info("objects linked", "run", runID,
		"total", stats.TotalObjects, "linked", stats.LinkedObjects, "duration", time.Since(began).Round(time.Millisecond))
	return stats, nil
}

// Clear removes the manifest, its entries and every link.
func (s *ManifestService) Clear(ctx context.Context, runID string) error {
	store, err := s.catalog.OpenManifest(ctx, runID)
	if err != nil {
		return err
	}
	return store.ClearManifest(ctx)
}

// Entries returns the stored manifest and its entries. The manifest is nil
// when none is loaded.
func (s *ManifestService) Entries(ctx context.Context, runID string) (*domain.Manifest, []domain.ManifestEntry, error) {
	store, err := s.catalog.OpenManifest(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	m, ok, err := store.Manifest(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, []domain.ManifestEntry{}, nil
	}
	entries, err := store.ManifestEntries(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &m, entries, nil
}

// Preview fetches and compiles a manifest without storing it.
func (s *ManifestService) Preview(ctx context.Context, url string) (domain.ManifestPreview, error) {
	if err := validate.ManifestURL(url); err != nil {
		return domain.ManifestPreview{}, err
	}
	raw, err := s.fetch(ctx, url)
	if err != nil {
		return domain.ManifestPreview{}, err
	}
	compiled, err := manifest.CompileBytes(raw)
	if err != nil {
		return domain.ManifestPreview{}, fmt.Errorf("%w: %v", domain.ErrManifestParse, err)
	}
	return domain.ManifestPreview{
		SourceURL:     url,
		ContentHash:   contentHash(raw),
		ArtifactCount: compiled.ArtifactCount,
		Entries:       toEntries(compiled),
	}, nil
}

func (s *ManifestService) fetch(ctx context.Context, url string) ([]byte, error) {
	if s.source == nil {
		return nil, errors.New("manifest source is not configured")
	}
	raw, err := s.source.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, domain.ErrManifestFetch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrManifestFetch, err)
	}
	return raw, nil
}

func (s *ManifestService) snapshot(ctx context.Context, store ports.ManifestStore, cached bool, artifacts int) (domain.ManifestLoad, error) {
	m, _, err := store.Manifest(ctx)
	if err != nil {
		return domain.ManifestLoad{}, err
	}
	entries, err := store.ManifestEntries(ctx)
	if err != nil {
		return domain.ManifestLoad{}, err
	}
	stats, err := store.LinkStats(ctx)
	if err != nil {
		return domain.ManifestLoad{}, err
	}
	return domain.ManifestLoad{
		Cached:        cached,
		Manifest:      m,
		Entries:       entries,
		ArtifactCount: artifacts,
		Link:          stats,
	}, nil
}

func toEntries(r manifest.Result) []domain.ManifestEntry {
	entries := make([]domain.ManifestEntry, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		entries = append(entries, domain.ManifestEntry{
			GroupKey:    c.GroupKey,
			PrettyName:  c.PrettyName,
			Destination: c.Destination,
			Pattern:     c.Pattern,
		})
	}
	return entries
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
