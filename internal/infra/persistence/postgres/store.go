// Package postgres implements the target store on Postgres through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"estatehub/internal/infra/persistence/sqlutil"
	"estatehub/internal/schema/sqlbundle"
	"estatehub/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.Store      = (*Store)(nil)
	_ domain.TierLookup = (*Store)(nil)
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/estatehub?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a Postgres-backed domain.Store.
type Store struct {
	db     *sql.DB
	tables []domain.TableSpec

	// pinned is the session holding session_replication_role = replica
	// while constraints are suspended. Statements run on it meanwhile.
	mu     sync.Mutex
	pinned *sql.Conn
}

// NewStore opens dsn (falling back to a local default), bounds the pool to
// maxConns when positive and applies the marketplace DDL.
func NewStore(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqlutil.ApplyDDL(ctx, db, sqlbundle.Postgres()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an existing database handle without applying DDL.
func New(db *sql.DB) *Store {
	return &Store{db: db, tables: domain.Schema()}
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) conn() sqlutil.Execer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinned != nil {
		return s.pinned
	}
	return s.db
}

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

// DeleteAll implements domain.Store.
func (s *Store) DeleteAll(ctx context.Context, table string) error {
	if _, err := s.spec(table); err != nil {
		return err
	}
	if _, err := s.conn().ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// Insert implements domain.Store. Sequence keys come back through RETURNING;
// opaque keys are generated here.
func (s *Store) Insert(ctx context.Context, rec domain.Record) (domain.Key, error) {
	spec, err := s.spec(rec.Table)
	if err != nil {
		return domain.Key{}, err
	}
	if spec.Keys == domain.KeyOpaque {
		key := domain.OpaqueKey(uuid.NewString())
		cols := append([]domain.Column{{Name: "id", Value: key}}, rec.Columns...)
		q, args, err := sqlutil.Insert(rec.Table, cols, sqlutil.Dollar, "")
		if err != nil {
			return domain.Key{}, err
		}
		if _, err := s.conn().ExecContext(ctx, q, args...); err != nil {
			return domain.Key{}, fmt.Errorf("insert %s: %w", rec.Table, err)
		}
		return key, nil
	}
	q, args, err := sqlutil.Insert(rec.Table, rec.Columns, sqlutil.Dollar, " RETURNING id")
	if err != nil {
		return domain.Key{}, err
	}
	var id int64
	if err := s.conn().QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		return domain.Key{}, fmt.Errorf("insert %s: %w", rec.Table, err)
	}
	return domain.SeqKey(id), nil
}

// Update implements domain.Store.
func (s *Store) Update(ctx context.Context, table string, key domain.Key, cols []domain.Column) error {
	q, args, err := sqlutil.Update(table, key, cols, sqlutil.Dollar)
	if err != nil {
		return err
	}
	res, err := s.conn().ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s: no row %s", table, key)
	}
	return nil
}

// SuspendConstraints implements domain.Store. It pins one pooled session and
// sets session_replication_role = replica on it, which skips foreign-key
// triggers; statements issued until restore run on that session.
func (s *Store) SuspendConstraints(ctx context.Context) (func(context.Context) error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinned != nil {
		return nil, fmt.Errorf("constraints already suspended")
	}
	c, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pin connection: %w", err)
	}
	if _, err := c.ExecContext(ctx, "SET session_replication_role = replica"); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("suspend constraints: %w", err)
	}
	s.pinned = c
	var once sync.Once
	return func(ctx context.Context) error {
		var rerr error
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, err := c.ExecContext(ctx, "SET session_replication_role = origin"); err != nil {
				rerr = fmt.Errorf("restore constraints: %w", err)
			}
			if err := c.Close(); err != nil && rerr == nil {
				rerr = fmt.Errorf("release connection: %w", err)
			}
			s.pinned = nil
		})
		return rerr
	}, nil
}

// sequenceName returns the serial sequence behind table.id, or
// domain.ErrNoSequence when the key is not serial.
func (s *Store) sequenceName(ctx context.Context, table string) (string, error) {
	if err := sqlutil.CheckIdent(table); err != nil {
		return "", err
	}
	var seq sql.NullString
	if err := s.conn().QueryRowContext(ctx, "SELECT pg_get_serial_sequence($1, 'id')", table).Scan(&seq); err != nil {
		return "", fmt.Errorf("probe sequence of %s: %w", table, err)
	}
	if !seq.Valid || seq.String == "" {
		return "", domain.ErrNoSequence
	}
	return seq.String, nil
}

// MaxKey implements domain.Store.
func (s *Store) MaxKey(ctx context.Context, table string) (int64, error) {
	if _, err := s.sequenceName(ctx, table); err != nil {
		return 0, err
	}
	var maxKey int64
	if err := s.conn().QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM "+table).Scan(&maxKey); err != nil {
		return 0, fmt.Errorf("max key %s: %w", table, err)
	}
	return maxKey, nil
}

// SetSequence implements domain.Store with setval(..., false) so next is the
// value handed out by the following nextval.
func (s *Store) SetSequence(ctx context.Context, table string, next int64) error {
	seq, err := s.sequenceName(ctx, table)
	if err != nil {
		return err
	}
	var applied int64
	if err := s.conn().QueryRowContext(ctx, "SELECT setval($1, $2, false)", seq, next).Scan(&applied); err != nil {
		return fmt.Errorf("set sequence %s: %w", seq, err)
	}
	return nil
}

// LookupTier implements domain.TierLookup.
func (s *Store) LookupTier(ctx context.Context, email string) (string, bool, error) {
	return sqlutil.LookupTier(ctx, s.conn(), sqlutil.Dollar, email)
}

// Close implements domain.Store.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
