package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BucketCatalog/internal/catalog"
	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/usecase"
)

type listerStub struct{ count int }

func (l listerStub) Name() string { return "stub" }

func (l listerStub) List(ctx context.Context, _, _ string, yield func(domain.Object) error) error {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < l.count; i++ {
		created := base.Add(time.Duration(i) * time.Minute)
		name := fmt.Sprintf("releases/app-%04d.zip", i)
		if i%2 == 1 {
			name = fmt.Sprintf("nightly/app-%04d.tar.gz", i)
		}
		if err := yield(domain.Object{Name: name, Size: int64(i), Updated: created, TimeCreated: &created}); err != nil {
			return err
		}
	}
	return nil
}

type sourceStub map[string]string

func (s sourceStub) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := s[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s: status 404", domain.ErrManifestFetch, url)
	}
	return []byte(body), nil
}

const testManifest = `
mapping:
  app:
    expiry: "1y"
    destinations: ["releases"]
    pretty_name: "app-${build_number}.zip"
`

type fixture struct {
	server  *httptest.Server
	fetcher *usecase.Fetcher
}

func newFixture(t *testing.T, objects int) fixture {
	t.Helper()
	dir := t.TempDir()
	mgr, err := catalog.NewManager(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	fetcher, err := usecase.NewFetcher(usecase.FetcherDeps{
		Catalog: mgr,
		Lister:  listerStub{count: objects},
		LockDir: dir,
	})
	require.NoError(t, err)

	manifests := usecase.NewManifestService(usecase.ManifestDeps{
		Catalog: mgr,
		Source:  sourceStub{"https://example.test/manifest.yml": testManifest},
	})

	srv := httptest.NewServer(New(Deps{
		Fetches:     fetcher,
		Runs:        mgr,
		Manifests:   manifests,
		Bucket:      "builds",
		ManifestURL: "https://example.test/manifest.yml",
	}))
	t.Cleanup(srv.Close)
	return fixture{server: srv, fetcher: fetcher}
}

func (f fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

// startRun starts a fetch through the API and waits for it to finish.
func (f fixture) startRun(t *testing.T) string {
	t.Helper()
	resp, raw := f.do(t, http.MethodPost, "/api/fetches", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var res domain.StartResult
	require.NoError(t, json.Unmarshal(raw, &res))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.fetcher.Wait(ctx))
	return res.RunID
}

func decodeError(t *testing.T, raw []byte) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestHealthAndIdleStatus(t *testing.T) {
	f := newFixture(t, 0)

	resp, raw := f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))

	resp, raw = f.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var st domain.FetchStatus
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.False(t, st.Running)
}

func TestStartRequiresBucket(t *testing.T) {
	f := newFixture(t, 0)
	h := New(Deps{Fetches: f.fetcher})

	req := httptest.NewRequest(http.MethodPost, "/api/fetches", strings.NewReader(`{"prefix":"x/"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bucket_name_required", decodeError(t, rec.Body.Bytes()).Error)
}

func TestFetchListAndObjects(t *testing.T) {
	f := newFixture(t, 1500)
	runID := f.startRun(t)

	resp, raw := f.do(t, http.MethodGet, "/api/fetches", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []domain.Run
	require.NoError(t, json.Unmarshal(raw, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunSuccess, runs[0].Status)
	assert.EqualValues(t, 1500, runs[0].RecordCount)

	resp, raw = f.do(t, http.MethodGet, "/api/fetches/"+runID+"/objects?page=2&page_size=5000", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page domain.Page
	require.NoError(t, json.Unmarshal(raw, &page))
	assert.Equal(t, 1000, page.PageSize)
	assert.EqualValues(t, 1500, page.Total)
	assert.Len(t, page.Items, 500)

	resp, raw = f.do(t, http.MethodGet, "/api/fetches/"+runID+"/objects?page=4611686018427387904", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	require.NoError(t, json.Unmarshal(raw, &page))
	assert.Empty(t, page.Items)
	assert.EqualValues(t, 1500, page.Total)

	resp, raw = f.do(t, http.MethodGet, "/api/fetches/"+runID+"/objects?regex=%5Ereleases%2F&page_size=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &page))
	assert.EqualValues(t, 750, page.Total)
	assert.Equal(t, "releases/app-0000.zip", page.Items[0].Name)
}

func TestObjectsRejectsBadRegex(t *testing.T) {
	f := newFixture(t, 3)
	runID := f.startRun(t)

	resp, raw := f.do(t, http.MethodGet, "/api/fetches/"+runID+"/objects?regex_filters[]=a**b", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, raw)
	assert.Equal(t, "invalid_regex", body.Error)
	assert.Contains(t, body.Details, "Filter 1")
}

func TestUnknownRun(t *testing.T) {
	f := newFixture(t, 0)

	resp, raw := f.do(t, http.MethodGet, "/api/fetches/nope/objects", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, raw).Error)

	resp, raw = f.do(t, http.MethodDelete, "/api/fetches/a..b", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_db_name", decodeError(t, raw).Error)
}

func TestDownloadNames(t *testing.T) {
	f := newFixture(t, 4)
	runID := f.startRun(t)

	resp, raw := f.do(t, http.MethodGet, "/api/fetches/"+runID+"/download?regex=tar&sort=name_desc", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), runID+"_files.txt")
	assert.Equal(t, "nightly/app-0003.tar.gz\nnightly/app-0001.tar.gz", string(raw))
}

func TestManifestLifecycle(t *testing.T) {
	f := newFixture(t, 10)
	runID := f.startRun(t)
	base := "/api/fetches/" + runID

	resp, raw := f.do(t, http.MethodPost, base+"/manifest", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var load domain.ManifestLoad
	require.NoError(t, json.Unmarshal(raw, &load))
	assert.False(t, load.Cached)
	assert.EqualValues(t, 5, load.Link.LinkedObjects)

	resp, raw = f.do(t, http.MethodGet, base+"/objects?manifest=unlinked", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page domain.Page
	require.NoError(t, json.Unmarshal(raw, &page))
	assert.EqualValues(t, 5, page.Total)

	resp, _ = f.do(t, http.MethodPost, base+"/manifest/relink", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = f.do(t, http.MethodGet, base+"/manifest/entries", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries struct {
		Manifest *domain.Manifest       `json:"manifest"`
		Entries  []domain.ManifestEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries.Entries, 1)
	assert.EqualValues(t, 5, entries.Entries[0].LinkedObjects)

	resp, _ = f.do(t, http.MethodDelete, base+"/manifest", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = f.do(t, http.MethodPost, base+"/manifest/relink", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, raw).Error)
}

func TestManifestErrors(t *testing.T) {
	f := newFixture(t, 1)
	runID := f.startRun(t)

	resp, raw := f.do(t, http.MethodPost, "/api/fetches/"+runID+"/manifest", `{"url":"https://example.test/missing.yml"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "manifest_fetch_failed", decodeError(t, raw).Error)

	resp, raw = f.do(t, http.MethodPost, "/api/manifest/parse", `{"url":"ftp://example.test/m.yml"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_url", decodeError(t, raw).Error)
}

func TestManifestPreview(t *testing.T) {
	f := newFixture(t, 0)

	resp, raw := f.do(t, http.MethodPost, "/api/manifest/parse", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var preview domain.ManifestPreview
	require.NoError(t, json.Unmarshal(raw, &preview))
	assert.Equal(t, 1, preview.ArtifactCount)
	require.Len(t, preview.Entries, 1)
	assert.Equal(t, `^releases/[A-Za-z0-9_-]*/?app-\d+\.zip$`, preview.Entries[0].Pattern)
}

func TestDeleteFetch(t *testing.T) {
	f := newFixture(t, 2)
	runID := f.startRun(t)

	resp, _ := f.do(t, http.MethodDelete, "/api/fetches/"+runID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := f.do(t, http.MethodGet, "/api/fetches", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestCancelWhenIdle(t *testing.T) {
	f := newFixture(t, 0)

	resp, raw := f.do(t, http.MethodPost, "/api/fetches/cancel", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"canceled":false}`, string(raw))
}
