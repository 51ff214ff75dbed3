package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"BucketCatalog/internal/domain"
)

var objectColumns = []string{
	"objects.name AS name",
	"objects.size AS size",
	"objects.updated AS updated",
	"objects.time_created AS time_created",
	"objects.custom_time AS custom_time",
	"objects.manifest_entry_id AS manifest_entry_id",
}

type objectRow struct {
	Name            string         `db:"name"`
	Size            int64          `db:"size"`
	Updated         string         `db:"updated"`
	TimeCreated     sql.NullString `db:"time_created"`
	CustomTime      sql.NullString `db:"custom_time"`
	ManifestEntryID sql.NullInt64  `db:"manifest_entry_id"`
}

func (r objectRow) toDomain() domain.Object {
	obj := domain.Object{
		Name:        r.Name,
		Size:        r.Size,
		Updated:     parseTime(r.Updated),
		TimeCreated: parseNullTime(r.TimeCreated),
		CustomTime:  parseNullTime(r.CustomTime),
	}
	if r.ManifestEntryID.Valid {
		id := r.ManifestEntryID.Int64
		obj.ManifestEntryID = &id
	}
	return obj
}

// Page returns one sorted page of objects matching filter, together with the
// total match count under the same predicates.
func (s *Store) Page(ctx context.Context, filter domain.Filter, sort domain.SortOrder, page, size int) (domain.Page, error) {
	page, size = domain.ClampPage(page, size)
	preds := Predicates(filter)

	countSQL, countArgs, err := applyAll(qb.Select("COUNT(*)").From("objects"), preds).ToSql()
	if err != nil {
		return domain.Page{}, fmt.Errorf("build count query: %w", err)
	}
	var total int64
	if err := s.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return domain.Page{}, fmt.Errorf("count objects: %w", err)
	}

	itemsSQL, itemsArgs, err := applyAll(qb.Select(objectColumns...).From("objects"), preds).
		OrderBy(orderBy(sort)...).
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return domain.Page{}, fmt.Errorf("build page query: %w", err)
	}

	var rows []objectRow
	if err := s.db.SelectContext(ctx, &rows, itemsSQL, itemsArgs...); err != nil {
		return domain.Page{}, fmt.Errorf("query page: %w", err)
	}

	items := make([]domain.Object, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toDomain())
	}
	return domain.Page{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Names returns every object name matching filter, unpaged.
func (s *Store) Names(ctx context.Context, filter domain.Filter, sort domain.SortOrder) ([]string, error) {
	stmt, args, err := applyAll(qb.Select("objects.name AS name").From("objects"), Predicates(filter)).
		OrderBy(orderBy(sort)...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build names query: %w", err)
	}

	names := []string{}
	if err := s.db.SelectContext(ctx, &names, stmt, args...); err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	return names, nil
}
