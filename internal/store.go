package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS pools (
  name TEXT PRIMARY KEY,
  dimension INTEGER NOT NULL,
  created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
  pool TEXT NOT NULL,
  name TEXT NOT NULL,
  position INTEGER NOT NULL,
  uncertainty REAL NOT NULL,
  embedding BLOB NOT NULL,
  PRIMARY KEY (pool, name)
);
CREATE INDEX IF NOT EXISTS idx_items_pool_position ON items(pool, position);
CREATE TABLE IF NOT EXISTS annotations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  pool TEXT NOT NULL,
  item TEXT NOT NULL,
  tag TEXT NOT NULL,
  round TEXT NOT NULL,
  uncertainty REAL NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_annotations_tag ON annotations(tag);
`

var _ PoolStore = (*SQLiteStore)(nil)

// SQLiteStore keeps pools, their items and annotation requests in one
// SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreatePool(ctx context.Context, pool Name, dimension int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.createPool(ctx, tx, pool, dimension)
	})
}

// CreatePoolWithItems creates a pool holding items. Nothing is left behind
// when any item is rejected.
func (s *SQLiteStore) CreatePoolWithItems(ctx context.Context, pool Name, dimension int, items []Item) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.createPool(ctx, tx, pool, dimension); err != nil {
			return err
		}
		return insertItems(ctx, tx, pool, items)
	})
}

func (s *SQLiteStore) createPool(ctx context.Context, tx *sql.Tx, pool Name, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: pool dimension must be positive, got %d", ErrInvalidArgument, dimension)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO pools (name, dimension, created_at) VALUES (?, ?, ?)`,
		pool.String(), dimension, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pool %q", ErrAlreadyExists, pool)
	}
	return nil
}

func (s *SQLiteStore) PoolInfo(ctx context.Context, pool Name) (*PoolInfo, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT p.name, p.dimension, p.created_at, COUNT(i.name)
FROM pools p LEFT JOIN items i ON i.pool = p.name
WHERE p.name = ?
GROUP BY p.name`, pool.String())

	info, err := scanPoolInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pool %q", ErrNotFound, pool)
	}
	if err != nil {
		return nil, fmt.Errorf("pool info: %w", err)
	}
	return info, nil
}

func (s *SQLiteStore) ListPools(ctx context.Context) ([]PoolInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT p.name, p.dimension, p.created_at, COUNT(i.name)
FROM pools p LEFT JOIN items i ON i.pool = p.name
GROUP BY p.name
ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var out []PoolInfo
	for rows.Next() {
		info, err := scanPoolInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("list pools: %w", err)
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPoolInfo(r rowScanner) (*PoolInfo, error) {
	var (
		name, created string
		info          PoolInfo
	)
	if err := r.Scan(&name, &info.Dimension, &created, &info.Size); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	info.Name = Name(name)
	info.CreatedAt = t
	return &info, nil
}

// AddItems appends items to a pool in order. Names already in the pool are
// rejected and nothing is written.
func (s *SQLiteStore) AddItems(ctx context.Context, pool Name, items []Item) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertItems(ctx, tx, pool, items)
	})
}

func insertItems(ctx context.Context, tx *sql.Tx, pool Name, items []Item) error {
	dim, err := poolDimension(ctx, tx, pool)
	if err != nil {
		return err
	}

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM items WHERE pool = ?`, pool.String()).Scan(&next); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO items (pool, name, position, uncertainty, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, it := range items {
		if len(it.Embedding) != dim {
			return fmt.Errorf("%w: item %q has %d dimensions, pool %q has %d", ErrDimensionMismatch, it.Name, len(it.Embedding), pool, dim)
		}
		res, err := stmt.ExecContext(ctx, pool.String(), it.Name.String(), next+int64(i), it.Uncertainty, EncodeEmbedding(it.Embedding))
		if err != nil {
			return fmt.Errorf("insert item %q: %w", it.Name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: item %q in pool %q", ErrAlreadyExists, it.Name, pool)
		}
	}
	return nil
}

// UpdateItems replaces the uncertainty and embedding of items already in
// the pool, keeping their positions.
func (s *SQLiteStore) UpdateItems(ctx context.Context, pool Name, items []Item) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		dim, err := poolDimension(ctx, tx, pool)
		if err != nil {
			return err
		}

		for _, it := range items {
			if len(it.Embedding) != dim {
				return fmt.Errorf("%w: item %q has %d dimensions, pool %q has %d", ErrDimensionMismatch, it.Name, len(it.Embedding), pool, dim)
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE items SET uncertainty = ?, embedding = ? WHERE pool = ? AND name = ?`,
				it.Uncertainty, EncodeEmbedding(it.Embedding), pool.String(), it.Name.String())
			if err != nil {
				return fmt.Errorf("update item %q: %w", it.Name, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: item %q in pool %q", ErrNotFound, it.Name, pool)
			}
		}
		return nil
	})
}

// LoadPool returns the pool's items in insertion order.
func (s *SQLiteStore) LoadPool(ctx context.Context, pool Name) (Pool, error) {
	if _, err := poolDimension(ctx, s.db, pool); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, uncertainty, embedding FROM items WHERE pool = ? ORDER BY position`, pool.String())
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	defer rows.Close()

	var out Pool
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("load pool %q: %w", pool, err)
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Item(ctx context.Context, pool Name, name Name) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, uncertainty, embedding FROM items WHERE pool = ? AND name = ?`, pool.String(), name.String())
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %q in pool %q", ErrNotFound, name, pool)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

func scanItem(r rowScanner) (*Item, error) {
	var (
		name string
		blob []byte
		it   Item
	)
	if err := r.Scan(&name, &it.Uncertainty, &blob); err != nil {
		return nil, err
	}
	vec, err := DecodeEmbedding(blob)
	if err != nil {
		return nil, err
	}
	it.Name = Name(name)
	it.Embedding = vec
	return &it, nil
}

// Remove deletes names from a pool. Either all names are removed or, if any
// is missing, none is.
func (s *SQLiteStore) Remove(ctx context.Context, pool Name, names []Name) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := poolDimension(ctx, tx, pool); err != nil {
			return err
		}
		return removeItems(ctx, tx, pool, names)
	})
}

// MarkForAnnotation records a blank annotation request per item.
func (s *SQLiteStore) MarkForAnnotation(ctx context.Context, pool Name, items []Item, tag Name, round string) error {
	now := formatTime(s.now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := poolDimension(ctx, tx, pool); err != nil {
			return err
		}
		return markItems(ctx, tx, pool, items, tag, round, now)
	})
}

// CommitSelection marks items for annotation and removes them from the pool
// in one transaction.
func (s *SQLiteStore) CommitSelection(ctx context.Context, pool Name, items []Item, tag Name, round string) error {
	now := formatTime(s.now())
	names := make([]Name, len(items))
	for i, it := range items {
		names[i] = it.Name
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := poolDimension(ctx, tx, pool); err != nil {
			return err
		}
		if err := markItems(ctx, tx, pool, items, tag, round, now); err != nil {
			return err
		}
		return removeItems(ctx, tx, pool, names)
	})
}

func removeItems(ctx context.Context, tx *sql.Tx, pool Name, names []Name) error {
	for _, n := range names {
		res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE pool = ? AND name = ?`, pool.String(), n.String())
		if err != nil {
			return fmt.Errorf("remove item %q: %w", n, err)
		}
		if c, _ := res.RowsAffected(); c == 0 {
			return fmt.Errorf("%w: item %q in pool %q", ErrNotFound, n, pool)
		}
	}
	return nil
}

func markItems(ctx context.Context, tx *sql.Tx, pool Name, items []Item, tag Name, round, now string) error {
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO annotations (pool, item, tag, round, uncertainty, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			pool.String(), it.Name.String(), tag.String(), round, it.Uncertainty, now); err != nil {
			return fmt.Errorf("mark %q: %w", it.Name, err)
		}
	}
	return nil
}

// Annotations lists annotation requests under tag, or all of them when tag
// is empty, oldest first.
func (s *SQLiteStore) Annotations(ctx context.Context, tag Name) ([]Annotation, error) {
	query := `SELECT id, pool, item, tag, round, uncertainty, created_at FROM annotations`
	var args []any
	if tag != "" {
		query += ` WHERE tag = ?`
		args = append(args, tag.String())
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	var out []Annotation
	for rows.Next() {
		var (
			a                       Annotation
			pool, item, tg, created string
		)
		if err := rows.Scan(&a.ID, &pool, &item, &tg, &a.Round, &a.Uncertainty, &created); err != nil {
			return nil, fmt.Errorf("list annotations: %w", err)
		}
		t, err := parseTime(created)
		if err != nil {
			return nil, fmt.Errorf("list annotations: %w", err)
		}
		a.Pool, a.Item, a.Tag, a.CreatedAt = Name(pool), Name(item), Name(tg), t
		out = append(out, a)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func poolDimension(ctx context.Context, q querier, pool Name) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, `SELECT dimension FROM pools WHERE name = ?`, pool.String()).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: pool %q", ErrNotFound, pool)
	}
	if err != nil {
		return 0, fmt.Errorf("pool dimension: %w", err)
	}
	return dim, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
