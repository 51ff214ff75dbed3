// Package httpapi maps the catalog's operations onto HTTP routes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"BucketCatalog/internal/domain"
)

// Fetches is the orchestrator surface used by the routes.
type Fetches interface {
	Start(ctx context.Context, bucket, prefix string) (domain.StartResult, error)
	Status() domain.FetchStatus
	Cancel() bool
	Delete(runID string) error
}

// Runs is the read surface of the run stores.
type Runs interface {
	ListRuns(ctx context.Context) ([]domain.Run, error)
	Exists(runID string) bool
	Page(ctx context.Context, runID string, filter domain.Filter, sort domain.SortOrder, page, size int) (domain.Page, error)
	Names(ctx context.Context, runID string, filter domain.Filter, sort domain.SortOrder) ([]string, error)
}

// Manifests is the manifest lifecycle surface.
type Manifests interface {
	Load(ctx context.Context, runID, url string) (domain.ManifestLoad, error)
	Relink(ctx context.Context, runID string) (domain.LinkStats, error)
	Clear(ctx context.Context, runID string) error
	Entries(ctx context.Context, runID string) (*domain.Manifest, []domain.ManifestEntry, error)
	Preview(ctx context.Context, url string) (domain.ManifestPreview, error)
}

// Deps wires the handler.
type Deps struct {
	Fetches   Fetches
	Runs      Runs
	Manifests Manifests
	Logger    *slog.Logger

	// Bucket and Prefix are used when a start request names none.
	Bucket string
	Prefix string
	// ManifestURL is used when a manifest request names none.
	ManifestURL string

	// Metrics, when set, is mounted at MetricsPath.
	Metrics     http.Handler
	MetricsPath string
}

type handler struct {
	fetches   Fetches
	runs      Runs
	manifests Manifests
	logger    *slog.Logger

	bucket      string
	prefix      string
	manifestURL string
}

// New builds the router.
func New(deps Deps) http.Handler {
	h := &handler{
		fetches:     deps.Fetches,
		runs:        deps.Runs,
		manifests:   deps.Manifests,
		logger:      deps.Logger,
		bucket:      deps.Bucket,
		prefix:      deps.Prefix,
		manifestURL: deps.ManifestURL,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))

	r.Get("/api/health", h.health)
	r.Get("/api/status", h.status)

	r.Route("/api/fetches", func(r chi.Router) {
		r.Post("/", h.startFetch)
		r.Get("/", h.listFetches)
		r.Post("/cancel", h.cancelFetch)

		r.Route("/{run}", func(r chi.Router) {
			r.Use(h.requireRun)
			r.Delete("/", h.deleteFetch)
			r.Get("/objects", h.listObjects)
			r.Get("/download", h.downloadNames)

			r.Post("/manifest", h.loadManifest)
			r.Delete("/manifest", h.clearManifest)
			r.Post("/manifest/relink", h.relinkManifest)
			r.Get("/manifest/entries", h.manifestEntries)
		})
	})
	r.Post("/api/manifest/parse", h.previewManifest)

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.Metrics)
	}
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			began := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(began).Round(time.Microsecond),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
