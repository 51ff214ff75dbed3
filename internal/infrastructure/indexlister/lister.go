// Package indexlister lists a bucket that is published as HTML directory
// indexes (Apache/nginx autoindex style mirrors).
package indexlister

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"BucketCatalog/internal/config"
	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/ports"
)

var (
	sizeExpr = regexp.MustCompile(`^(\d+(?:\.\d+)?)([KMGT]?)B?$`)
	dateExpr = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}(?::\d{2})?|\d{2}-[A-Za-z]{3}-\d{4} \d{2}:\d{2}`)
)

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02-Jan-2006 15:04",
}

// Lister crawls directory-index pages depth-first.
type Lister struct {
	client   *http.Client
	baseURL  string
	maxDepth int
	logger   *slog.Logger
}

var _ ports.ObjectLister = (*Lister)(nil)

// New wires an HTTP client; a nil client gets a 30s timeout.
func New(client *http.Client, cfg config.IndexConfig, logger *slog.Logger) *Lister {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	depth := cfg.MaxDepth
	if depth <= 0 {
		depth = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lister{
		client:   client,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		maxDepth: depth,
		logger:   logger,
	}
}

// Name identifies the lister inside the registry.
func (l *Lister) Name() string {
	return "index"
}

// List yields every file below {base}/{prefix}. Object names are paths
// relative to the base URL. The bucket only labels log lines.
func (l *Lister) List(ctx context.Context, bucket, prefix string, yield func(domain.Object) error) error {
	if l.baseURL == "" {
		return fmt.Errorf("index lister: base url is not configured")
	}

	dir := strings.TrimLeft(prefix, "/")
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	l.logger.Debug("crawl index", "bucket", bucket, "root", l.baseURL+"/"+dir)
	return l.walk(ctx, dir, 0, map[string]struct{}{}, yield)
}

type entry struct {
	name    string
	dir     bool
	size    int64
	updated time.Time
}

func (l *Lister) walk(ctx context.Context, dir string, depth int, seen map[string]struct{}, yield func(domain.Object) error) error {
	if depth > l.maxDepth {
		return fmt.Errorf("index %s: depth limit %d exceeded", dir, l.maxDepth)
	}
	if _, ok := seen[dir]; ok {
		return nil
	}
	seen[dir] = struct{}{}

	doc, err := l.fetchDocument(ctx, l.baseURL+"/"+dir)
	if err != nil {
		return fmt.Errorf("index %s: %w", dir, err)
	}

	for _, e := range extractEntries(doc) {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := dir + e.name
		if e.dir {
			if err := l.walk(ctx, name, depth+1, seen, yield); err != nil {
				return err
			}
			continue
		}
		updated := e.updated
		obj := domain.Object{Name: name, Size: e.size, Updated: updated}
		if !updated.IsZero() {
			obj.TimeCreated = &updated
		}
		if err := yield(obj); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lister) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "BucketCatalog/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return doc, nil
}

// extractEntries reads the child links of one index page in document order.
// Table layouts carry size and date in sibling cells; <pre> layouts carry
// them in the text that follows the anchor.
func extractEntries(doc *goquery.Document) []entry {
	var entries []entry
	seen := map[string]struct{}{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		name, ok := childName(href)
		if !ok {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}

		e := entry{name: strings.TrimSuffix(name, "/"), dir: strings.HasSuffix(name, "/")}
		if e.dir {
			e.name += "/"
		}

		meta := trailingText(a)
		if row := a.Closest("tr"); row.Length() > 0 {
			meta = cellText(row)
		}
		if !e.dir {
			e.size, e.updated = parseMeta(meta)
		}
		entries = append(entries, e)
	})
	return entries
}

// childName accepts only relative links to direct children.
func childName(href string) (string, bool) {
	if href == "" || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil || u.IsAbs() || u.Host != "" || strings.HasPrefix(u.Path, "/") {
		return "", false
	}
	name, err := url.PathUnescape(u.EscapedPath())
	if err != nil || name == "" || name == "./" || strings.HasPrefix(name, "..") {
		return "", false
	}
	trimmed := strings.TrimSuffix(name, "/")
	if strings.Contains(trimmed, "/") {
		return "", false
	}
	return name, true
}

func trailingText(a *goquery.Selection) string {
	if len(a.Nodes) == 0 {
		return ""
	}
	var b strings.Builder
	for n := a.Nodes[0].NextSibling; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.Data == "a" {
			break
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if strings.Contains(b.String(), "\n") {
			break
		}
	}
	line, _, _ := strings.Cut(b.String(), "\n")
	return line
}

func cellText(row *goquery.Selection) string {
	var cells []string
	row.Find("td").Each(func(_ int, td *goquery.Selection) {
		if td.Find("a").Length() > 0 {
			return
		}
		cells = append(cells, strings.TrimSpace(td.Text()))
	})
	return strings.Join(cells, " ")
}

func parseMeta(text string) (int64, time.Time) {
	var updated time.Time
	if m := dateExpr.FindString(text); m != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, m); err == nil {
				updated = t.UTC()
				break
			}
		}
		text = strings.Replace(text, m, " ", 1)
	}

	var size int64
	for _, field := range strings.Fields(text) {
		if n, ok := parseSize(field); ok {
			size = n
		}
	}
	return size, updated
}

func parseSize(field string) (int64, bool) {
	m := sizeExpr.FindStringSubmatch(strings.ToUpper(field))
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	mult := map[string]float64{"": 1, "K": 1 << 10, "M": 1 << 20, "G": 1 << 30, "T": 1 << 40}[m[2]]
	return int64(value * mult), true
}
