package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"BucketCatalog/internal/dbopen"
	"BucketCatalog/internal/domain"
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Store is the catalog of one run.
type Store struct {
	id      string
	path    string
	durable string
	db      *sqlx.DB
}

func openStore(ctx context.Context, id, path string, opts StoreOptions) (*Store, error) {
	db, err := dbopen.Open(path, opts.dbopen()...)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{id: id, path: path, durable: opts.Synchronous, db: sqlx.NewDb(db, "sqlite")}, nil
}

// ID returns the run identifier.
func (s *Store) ID() string {
	return s.id
}

// SizeMB reports the current on-disk size of the store.
func (s *Store) SizeMB() float64 {
	return fileSizeMB(s.path)
}

func (s *Store) close() error {
	return s.db.Close()
}

type runRow struct {
	BucketName  string          `db:"bucket_name"`
	Prefix      sql.NullString  `db:"prefix"`
	StartedAt   string          `db:"started_at"`
	EndedAt     sql.NullString  `db:"ended_at"`
	RecordCount sql.NullInt64   `db:"record_count"`
	SizeMB      sql.NullFloat64 `db:"db_size_mb"`
	Status      string          `db:"status"`
	Error       sql.NullString  `db:"error"`
}

// Run reads the singleton fetch row.
func (s *Store) Run(ctx context.Context) (domain.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row,
		`SELECT bucket_name, prefix, started_at, ended_at, record_count, db_size_mb, status, error
		 FROM fetch WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("%w: run %s has no fetch row", domain.ErrNotFound, s.id)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("read fetch row: %w", err)
	}

	return domain.Run{
		ID:          s.id,
		Bucket:      row.BucketName,
		Prefix:      row.Prefix.String,
		StartedAt:   parseTime(row.StartedAt),
		EndedAt:     parseNullTime(row.EndedAt),
		RecordCount: row.RecordCount.Int64,
		SizeMB:      row.SizeMB.Float64,
		Status:      domain.RunStatus(row.Status),
		Error:       row.Error.String,
	}, nil
}

// UpdateRun applies a partial update; only supplied fields are written.
func (s *Store) UpdateRun(ctx context.Context, u domain.RunUpdate) error {
	query := qb.Update("fetch").Set("status", string(u.Status))

	if u.EndedAt != nil {
		query = query.Set("ended_at", formatTime(*u.EndedAt))
	}
	if u.RecordCount != nil {
		query = query.Set("record_count", *u.RecordCount)
	}
	if u.Error != nil {
		query = query.Set("error", *u.Error)
	}
	if u.SizeMB != nil {
		query = query.Set("db_size_mb", *u.SizeMB)
	}

	stmt, args, err := query.Where(sq.Eq{"id": 1}).ToSql()
	if err != nil {
		return fmt.Errorf("build run update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

const upsertObject = `INSERT INTO objects (name, size, updated, time_created, custom_time)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE
SET size = excluded.size,
    updated = excluded.updated,
    time_created = excluded.time_created,
    custom_time = excluded.custom_time`

// UpsertObjects writes a batch keyed by name; the latest values for a name win.
// The batch runs on a pinned connection with synchronous=OFF for throughput.
func (s *Store) UpsertObjects(ctx context.Context, batch []domain.Object) (err error) {
	if len(batch) == 0 {
		return nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA synchronous = OFF"); err != nil {
		return fmt.Errorf("relax durability: %w", err)
	}
	defer func() {
		// The connection goes back to the pool; restore durable writes on it.
		if _, rerr := conn.ExecContext(context.Background(), "PRAGMA synchronous = "+s.durable); rerr != nil && err == nil {
			err = fmt.Errorf("restore durability: %w", rerr)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertObject)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, obj := range batch {
		if _, err := stmt.ExecContext(ctx,
			obj.Name,
			obj.Size,
			formatTime(obj.Updated),
			formatTimePtr(obj.TimeCreated),
			formatTimePtr(obj.CustomTime),
		); err != nil {
			return fmt.Errorf("upsert %s: %w", obj.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// CountObjects returns the number of catalogued objects.
func (s *Store) CountObjects(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM objects`); err != nil {
		return 0, fmt.Errorf("count objects: %w", err)
	}
	return n, nil
}

// Object reads one object by name.
func (s *Store) Object(ctx context.Context, name string) (domain.Object, error) {
	stmt, args, err := qb.Select(objectColumns...).From("objects").Where(sq.Eq{"objects.name": name}).ToSql()
	if err != nil {
		return domain.Object{}, fmt.Errorf("build object query: %w", err)
	}
	var row objectRow
	err = s.db.GetContext(ctx, &row, stmt, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Object{}, fmt.Errorf("%w: object %s", domain.ErrNotFound, name)
	}
	if err != nil {
		return domain.Object{}, fmt.Errorf("read object: %w", err)
	}
	return row.toDomain(), nil
}
