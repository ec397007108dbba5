// Package sqlite implements the target store on SQLite through the pure-Go
// modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"estatehub/internal/infra/persistence/sqlutil"
	"estatehub/internal/schema/sqlbundle"
	"estatehub/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.Store      = (*Store)(nil)
	_ domain.TierLookup = (*Store)(nil)
)

// Store is a SQLite-backed domain.Store. The pool is pinned to a single
// connection so PRAGMA foreign_keys applies to every statement.
type Store struct {
	db     *sql.DB
	path   string
	tables []domain.TableSpec
}

// NewStore opens (creating if needed) the database at path and applies the
// marketplace DDL.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "estatehub.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, path: path, tables: domain.Schema()}
	if err := sqlutil.ApplyDDL(ctx, db, sqlbundle.SQLite()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) spec(table string) (domain.TableSpec, error) {
	spec, ok := domain.LookupTable(s.tables, table)
	if !ok {
		return domain.TableSpec{}, fmt.Errorf("unknown table %s", table)
	}
	return spec, nil
}

// Ping implements domain.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DeleteAll implements domain.Store. The table's AUTOINCREMENT counter is
// reset as well.
func (s *Store) DeleteAll(ctx context.Context, table string) error {
	if _, err := s.spec(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", table); err != nil {
		return fmt.Errorf("reset sequence %s: %w", table, err)
	}
	return nil
}

// Insert implements domain.Store.
func (s *Store) Insert(ctx context.Context, rec domain.Record) (domain.Key, error) {
	spec, err := s.spec(rec.Table)
	if err != nil {
		return domain.Key{}, err
	}
	cols := rec.Columns
	var key domain.Key
	if spec.Keys == domain.KeyOpaque {
		key = domain.OpaqueKey(uuid.NewString())
		cols = append([]domain.Column{{Name: "id", Value: key}}, cols...)
	}
	q, args, err := sqlutil.Insert(rec.Table, cols, sqlutil.Question, "")
	if err != nil {
		return domain.Key{}, err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return domain.Key{}, fmt.Errorf("insert %s: %w", rec.Table, err)
	}
	if spec.Keys == domain.KeyOpaque {
		return key, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Key{}, fmt.Errorf("insert %s: last insert id: %w", rec.Table, err)
	}
	return domain.SeqKey(id), nil
}

// Update implements domain.Store.
func (s *Store) Update(ctx context.Context, table string, key domain.Key, cols []domain.Column) error {
	q, args, err := sqlutil.Update(table, key, cols, sqlutil.Question)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s: no row %s", table, key)
	}
	return nil
}

// SuspendConstraints implements domain.Store by toggling PRAGMA foreign_keys
// on the single pooled connection.
func (s *Store) SuspendConstraints(ctx context.Context) (func(context.Context) error, error) {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}
	return func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("enable foreign keys: %w", err)
		}
		return nil
	}, nil
}

// sequential probes whether table's primary key is an INTEGER rowid alias.
func (s *Store) sequential(ctx context.Context, table string) error {
	if err := sqlutil.CheckIdent(table); err != nil {
		return err
	}
	var typ string
	err := s.db.QueryRowContext(ctx, "SELECT type FROM pragma_table_info(?) WHERE pk = 1", table).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("table %s has no primary key", table)
	}
	if err != nil {
		return fmt.Errorf("probe %s primary key: %w", table, err)
	}
	if !strings.EqualFold(typ, "INTEGER") {
		return domain.ErrNoSequence
	}
	return nil
}

// MaxKey implements domain.Store.
func (s *Store) MaxKey(ctx context.Context, table string) (int64, error) {
	if err := s.sequential(ctx, table); err != nil {
		return 0, err
	}
	var maxKey int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM "+table).Scan(&maxKey); err != nil {
		return 0, fmt.Errorf("max key %s: %w", table, err)
	}
	return maxKey, nil
}

// SetSequence implements domain.Store through sqlite_sequence, which holds
// the last value handed out.
func (s *Store) SetSequence(ctx context.Context, table string, next int64) error {
	if err := s.sequential(ctx, table); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE sqlite_sequence SET seq = ? WHERE name = ?", next-1, table)
	if err != nil {
		return fmt.Errorf("set sequence %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "INSERT INTO sqlite_sequence(name, seq) VALUES (?, ?)", table, next-1); err != nil {
		return fmt.Errorf("set sequence %s: %w", table, err)
	}
	return nil
}

// LookupTier implements domain.TierLookup.
func (s *Store) LookupTier(ctx context.Context, email string) (string, bool, error) {
	return sqlutil.LookupTier(ctx, s.db, sqlutil.Question, email)
}

// Close implements domain.Store.
func (s *Store) Close() error { return s.db.Close() }
