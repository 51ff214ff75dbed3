package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/validate"
)

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.fetches.Status())
}

func (h *handler) startFetch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket string  `json:"bucket_name"`
		Prefix *string `json:"prefix"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	bucket := req.Bucket
	if bucket == "" {
		bucket = h.bucket
	}
	if bucket == "" {
		writeError(w, http.StatusBadRequest, "bucket_name_required", "BUCKET_NAME not configured")
		return
	}
	prefix := h.prefix
	if req.Prefix != nil {
		prefix = *req.Prefix
	}

	res, err := h.fetches.Start(r.Context(), bucket, prefix)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) listFetches(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRuns(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handler) cancelFetch(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": h.fetches.Cancel()})
}

// requireRun validates the {run} parameter and checks the store exists.
func (h *handler) requireRun(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "run")
		if err := validate.RunID(runID); err != nil {
			h.fail(w, err)
			return
		}
		if !h.runs.Exists(runID) {
			writeError(w, http.StatusNotFound, "not_found", "Fetch not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) deleteFetch(w http.ResponseWriter, r *http.Request) {
	if err := h.fetches.Delete(chi.URLParam(r, "run")); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (h *handler) listObjects(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	q := r.URL.Query()
	page, size := domain.ClampPage(queryInt(q.Get("page"), 1), queryInt(q.Get("page_size"), domain.DefaultPageSize))

	res, err := h.runs.Page(r.Context(), chi.URLParam(r, "run"), filter, domain.ParseSort(q.Get("sort")), page, size)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) downloadNames(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	runID := chi.URLParam(r, "run")
	names, err := h.runs.Names(r.Context(), runID, filter, domain.ParseSort(r.URL.Query().Get("sort")))
	if err != nil {
		h.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", runID+"_files.txt"))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, strings.Join(names, "\n"))
}

func (h *handler) loadManifest(w http.ResponseWriter, r *http.Request) {
	url, err := h.manifestURLFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	res, err := h.manifests.Load(r.Context(), chi.URLParam(r, "run"), url)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) relinkManifest(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manifests.Relink(r.Context(), chi.URLParam(r, "run"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) clearManifest(w http.ResponseWriter, r *http.Request) {
	if err := h.manifests.Clear(r.Context(), chi.URLParam(r, "run")); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cleared"})
}

func (h *handler) manifestEntries(w http.ResponseWriter, r *http.Request) {
	m, entries, err := h.manifests.Entries(r.Context(), chi.URLParam(r, "run"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"manifest": m, "entries": entries})
}

func (h *handler) previewManifest(w http.ResponseWriter, r *http.Request) {
	url, err := h.manifestURLFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	res, err := h.manifests.Preview(r.Context(), url)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// manifestURLFrom reads the url from the JSON body, then the query string,
// then the configured default.
func (h *handler) manifestURLFrom(r *http.Request) (string, error) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeOptional(r, &req); err != nil {
		return "", err
	}
	if req.URL == "" {
		req.URL = r.URL.Query().Get("url")
	}
	if req.URL == "" {
		req.URL = h.manifestURL
	}
	return req.URL, nil
}

func parseFilter(r *http.Request) (domain.Filter, error) {
	q := r.URL.Query()
	return validate.FilterQuery(
		q.Get("regex"),
		listParam(q, "regex_filters"),
		listParam(q, "manifest_patterns"),
		q.Get("created_before"),
		q.Get("has_custom_time"),
		q.Get("manifest"),
	)
}

// listParam accepts both name[] and name for repeated parameters.
func listParam(q map[string][]string, name string) []string {
	return append(append([]string{}, q[name+"[]"]...), q[name]...)
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
