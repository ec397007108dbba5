// Package sqlutil builds the statements shared by the database/sql store
// adapters.
package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"estatehub/internal/schema/sqlbundle"
	"estatehub/pkg/domain"
)

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Dollar renders Postgres style parameters ($1, $2, ...).
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Question renders SQLite style parameters.
func Question(int) string { return "?" }

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CheckIdent rejects identifiers that are not plain [A-Za-z_][A-Za-z0-9_]*.
// Table and column names are interpolated, never bound.
func CheckIdent(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	return nil
}

// Insert builds an INSERT for cols. suffix is appended verbatim (for example
// " RETURNING id").
func Insert(table string, cols []domain.Column, ph Placeholder, suffix string) (string, []any, error) {
	if err := CheckIdent(table); err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "INSERT INTO " + table + " DEFAULT VALUES" + suffix, nil, nil
	}
	names := make([]string, len(cols))
	params := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		if err := CheckIdent(c.Name); err != nil {
			return "", nil, err
		}
		v, err := domain.SQLValue(c.Value)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		names[i] = c.Name
		params[i] = ph(i + 1)
		args[i] = v
	}
	q := "INSERT INTO " + table + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(params, ", ") + ")" + suffix
	return q, args, nil
}

// Update builds an UPDATE of cols on the row whose id is key.
func Update(table string, key domain.Key, cols []domain.Column, ph Placeholder) (string, []any, error) {
	if err := CheckIdent(table); err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("update %s: no columns", table)
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		if err := CheckIdent(c.Name); err != nil {
			return "", nil, err
		}
		v, err := domain.SQLValue(c.Value)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		sets[i] = c.Name + " = " + ph(i+1)
		args = append(args, v)
	}
	args = append(args, key.Value())
	q := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE id = " + ph(len(cols)+1)
	return q, args, nil
}

// ApplyDDL executes each statement of ddl in order.
func ApplyDDL(ctx context.Context, db Execer, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// TierQuery returns the account tier lookup for the placeholder style.
func TierQuery(ph Placeholder) string {
	return "SELECT t.name FROM " + domain.TableAccounts + " a LEFT JOIN " + domain.TableTiers +
		" t ON t.id = a.tierId WHERE a.email = " + ph(1)
}

// LookupTier runs the tier query. found is false when no account has email.
func LookupTier(ctx context.Context, db Execer, ph Placeholder, email string) (string, bool, error) {
	var name sql.NullString
	err := db.QueryRowContext(ctx, TierQuery(ph), email).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup tier: %w", err)
	}
	return name.String, true, nil
}
