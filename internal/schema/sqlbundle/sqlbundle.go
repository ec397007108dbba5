// Package sqlbundle exposes the marketplace DDL bundles for store adapters.
package sqlbundle

import (
	"bufio"
	"strings"

	sqldocs "estatehub/docs/schema/sql"
)

// SQLite returns the marketplace SQLite DDL.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the marketplace Postgres DDL.
func Postgres() string {
	return sqldocs.Postgres
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// Blank lines and whole-line "--" comments are dropped.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				stmts = append(stmts, stmt)
			}
			current.Reset()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}

// Tables returns the table names created by ddl, in declaration order.
func Tables(ddl string) []string {
	var out []string
	for _, stmt := range SplitStatements(ddl) {
		fields := strings.Fields(stmt)
		if len(fields) < 3 || !strings.EqualFold(fields[0], "CREATE") || !strings.EqualFold(fields[1], "TABLE") {
			continue
		}
		name := fields[2]
		if strings.EqualFold(name, "IF") && len(fields) >= 6 {
			name = fields[5]
		}
		out = append(out, strings.TrimSuffix(name, "("))
	}
	return out
}
