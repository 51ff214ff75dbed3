package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"BucketCatalog/internal/domain"
)

type manifestRow struct {
	SourceURL    string `db:"source_url"`
	ContentHash  string `db:"content_hash"`
	LoadedAt     string `db:"loaded_at"`
	PatternCount int    `db:"pattern_count"`
	Status       string `db:"status"`
}

// Manifest returns the stored manifest; ok is false when none is loaded.
func (s *Store) Manifest(ctx context.Context) (m domain.Manifest, ok bool, err error) {
	var row manifestRow
	err = s.db.GetContext(ctx, &row,
		`SELECT source_url, content_hash, loaded_at, pattern_count, status FROM manifest WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Manifest{}, false, nil
	}
	if err != nil {
		return domain.Manifest{}, false, fmt.Errorf("read manifest: %w", err)
	}
	return domain.Manifest{
		SourceURL:    row.SourceURL,
		ContentHash:  row.ContentHash,
		LoadedAt:     parseTime(row.LoadedAt),
		PatternCount: row.PatternCount,
		Status:       domain.ManifestStatus(row.Status),
	}, true, nil
}

// ManifestEntries lists entries in id order with their linked object counts.
func (s *Store) ManifestEntries(ctx context.Context) ([]domain.ManifestEntry, error) {
	entries := []domain.ManifestEntry{}
	err := s.db.SelectContext(ctx, &entries, `
SELECT me.id AS id,
       me.group_key AS group_key,
       me.pretty_name AS pretty_name,
       me.destination AS destination,
       me.pattern AS pattern,
       COUNT(o.name) AS linked_objects
FROM manifest_entries me
LEFT JOIN objects o ON o.manifest_entry_id = me.id
GROUP BY me.id
ORDER BY me.id`)
	if err != nil {
		return nil, fmt.Errorf("list manifest entries: %w", err)
	}
	return entries, nil
}

// ReplaceManifest swaps in a new manifest and its entries in one transaction.
// Existing links are cleared first since they point at the old entry set.
// Entry ids follow the order of entries. The manifest is left in processing
// status; callers link and then mark it idle.
func (s *Store) ReplaceManifest(ctx context.Context, m domain.Manifest, entries []domain.ManifestEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin manifest replace: %w", err)
	}
	defer tx.Rollback()

	steps := []string{
		`UPDATE objects SET manifest_entry_id = NULL WHERE manifest_entry_id IS NOT NULL`,
		`DELETE FROM manifest_entries`,
		`DELETE FROM sqlite_sequence WHERE name = 'manifest_entries'`,
	}
	for _, stmt := range steps {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset manifest: %w", err)
		}
	}

	insert, err := tx.PreparexContext(ctx,
		`INSERT INTO manifest_entries (group_key, pretty_name, destination, pattern) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer insert.Close()

	for _, e := range entries {
		if _, err := insert.ExecContext(ctx, e.GroupKey, e.PrettyName, e.Destination, e.Pattern); err != nil {
			return fmt.Errorf("insert entry %q: %w", e.Pattern, err)
		}
	}

	loadedAt := m.LoadedAt
	if loadedAt.IsZero() {
		loadedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO manifest (id, source_url, content_hash, loaded_at, pattern_count, status)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE
SET source_url = excluded.source_url,
    content_hash = excluded.content_hash,
    loaded_at = excluded.loaded_at,
    pattern_count = excluded.pattern_count,
    status = excluded.status`,
		m.SourceURL, m.ContentHash, formatTime(loadedAt), len(entries), string(domain.ManifestProcessing))
	if err != nil {
		return fmt.Errorf("store manifest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit manifest: %w", err)
	}
	return nil
}

// SetManifestStatus updates the processing status of the stored manifest.
func (s *Store) SetManifestStatus(ctx context.Context, status domain.ManifestStatus) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE manifest SET status = ? WHERE id = 1`, string(status)); err != nil {
		return fmt.Errorf("set manifest status: %w", err)
	}
	return nil
}

// ClearManifest removes the manifest, its entries, and every link.
func (s *Store) ClearManifest(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin manifest clear: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`UPDATE objects SET manifest_entry_id = NULL WHERE manifest_entry_id IS NOT NULL`,
		`DELETE FROM manifest_entries`,
		`DELETE FROM manifest`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear manifest: %w", err)
		}
	}
	return tx.Commit()
}

// ClearLinks unassigns every object.
func (s *Store) ClearLinks(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE objects SET manifest_entry_id = NULL WHERE manifest_entry_id IS NOT NULL`); err != nil {
		return fmt.Errorf("clear links: %w", err)
	}
	return nil
}

type entryPattern struct {
	ID      int64  `db:"id"`
	Pattern string `db:"pattern"`
}

// Link assigns unlinked objects to entries in ascending id order. An object
// already carrying an entry is never reassigned, so the lowest matching id
// wins and repeated passes change nothing.
func (s *Store) Link(ctx context.Context) (domain.LinkStats, error) {
	var patterns []entryPattern
	if err := s.db.SelectContext(ctx, &patterns,
		`SELECT id, pattern FROM manifest_entries ORDER BY id`); err != nil {
		return domain.LinkStats{}, fmt.Errorf("load patterns: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.LinkStats{}, fmt.Errorf("begin link: %w", err)
	}
	defer tx.Rollback()

	for _, p := range patterns {
		if _, err := tx.ExecContext(ctx,
			`UPDATE objects SET manifest_entry_id = ? WHERE manifest_entry_id IS NULL AND name REGEXP ?`,
			p.ID, p.Pattern); err != nil {
			return domain.LinkStats{}, fmt.Errorf("link entry %d: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.LinkStats{}, fmt.Errorf("commit link: %w", err)
	}

	return s.LinkStats(ctx)
}

// LinkStats counts total and linked objects.
func (s *Store) LinkStats(ctx context.Context) (domain.LinkStats, error) {
	var stats struct {
		Total  int64 `db:"total"`
		Linked int64 `db:"linked"`
	}
	if err := s.db.GetContext(ctx, &stats,
		`SELECT COUNT(*) AS total, COUNT(manifest_entry_id) AS linked FROM objects`); err != nil {
		return domain.LinkStats{}, fmt.Errorf("link stats: %w", err)
	}
	return domain.LinkStats{TotalObjects: stats.Total, LinkedObjects: stats.Linked}, nil
}
