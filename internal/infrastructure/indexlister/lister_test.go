package indexlister

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BucketCatalog/internal/config"
	"BucketCatalog/internal/domain"
)

const rootPage = `<html><body><table>
<tr><th><a href="?C=N;O=D">Name</a></th><th>Last modified</th><th>Size</th></tr>
<tr><td><a href="/pub/">Parent Directory</a></td><td></td><td>-</td></tr>
<tr><td><a href="nightly/">nightly/</a></td><td>2025-01-01 10:00</td><td>-</td></tr>
<tr><td><a href="app-1.0.exe">app-1.0.exe</a></td><td>2025-01-02 11:30</td><td>1.5K</td></tr>
</table></body></html>`

const nightlyPage = `<html><body><pre><a href="../">../</a>
<a href="build%201.zip">build 1.zip</a>                     03-Feb-2025 08:15             2048
<a href="https://elsewhere.example/x">x</a>
</pre></body></html>`

func newIndexServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/pub/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pub/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(rootPage))
	})
	mux.HandleFunc("/pub/nightly/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(nightlyPage))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListCrawlsDepthFirst(t *testing.T) {
	t.Parallel()
	srv := newIndexServer(t)
	l := New(srv.Client(), config.IndexConfig{BaseURL: srv.URL + "/pub/"}, nil)

	var got []domain.Object
	err := l.List(context.Background(), "mirror", "", func(o domain.Object) error {
		got = append(got, o)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "nightly/build 1.zip", got[0].Name)
	assert.Equal(t, int64(2048), got[0].Size)
	assert.True(t, got[0].Updated.Equal(time.Date(2025, 2, 3, 8, 15, 0, 0, time.UTC)))

	assert.Equal(t, "app-1.0.exe", got[1].Name)
	assert.Equal(t, int64(1536), got[1].Size)
	require.NotNil(t, got[1].TimeCreated)
	assert.True(t, got[1].TimeCreated.Equal(time.Date(2025, 1, 2, 11, 30, 0, 0, time.UTC)))
}

func TestListWithPrefix(t *testing.T) {
	t.Parallel()
	srv := newIndexServer(t)
	l := New(srv.Client(), config.IndexConfig{BaseURL: srv.URL + "/pub"}, nil)

	var names []string
	err := l.List(context.Background(), "mirror", "nightly", func(o domain.Object) error {
		names = append(names, o.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"nightly/build 1.zip"}, names)
}

func TestListPropagatesYieldError(t *testing.T) {
	t.Parallel()
	srv := newIndexServer(t)
	l := New(srv.Client(), config.IndexConfig{BaseURL: srv.URL + "/pub"}, nil)

	stop := errors.New("stop")
	err := l.List(context.Background(), "mirror", "", func(domain.Object) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestListFailsOnMissingDirectory(t *testing.T) {
	t.Parallel()
	srv := newIndexServer(t)
	l := New(srv.Client(), config.IndexConfig{BaseURL: srv.URL + "/pub"}, nil)

	err := l.List(context.Background(), "mirror", "missing/", func(domain.Object) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestChildName(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		name string
		ok   bool
	}{
		"file.txt":          {"file.txt", true},
		"dir/":              {"dir/", true},
		"a%20b.txt":         {"a b.txt", true},
		"../":               {"", false},
		"/abs/":             {"", false},
		"?C=M;O=A":          {"", false},
		"http://x.test/a":   {"", false},
		"nested/deeper.txt": {"", false},
	}
	for href, want := range cases {
		name, ok := childName(href)
		assert.Equal(t, want.ok, ok, href)
		assert.Equal(t, want.name, name, href)
	}
}

func TestParseMeta(t *testing.T) {
	t.Parallel()

	size, updated := parseMeta("  03-Feb-2025 08:15   4M")
	assert.Equal(t, int64(4<<20), size)
	assert.Equal(t, 2025, updated.Year())

	size, updated = parseMeta("-")
	assert.Zero(t, size)
	assert.True(t, updated.IsZero())
}

func TestExtractEntriesSkipsDuplicates(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<a href="a.txt">a.txt</a> <a href="a.txt">again</a> <a href="b/">b/</a>`))
	require.NoError(t, err)

	entries := extractEntries(doc)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].name)
	assert.True(t, entries[1].dir)
	assert.Equal(t, "b/", entries[1].name)
}
