// Package sqldocs exposes the marketplace SQL bundles directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the marketplace SQLite DDL bundle.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the marketplace Postgres DDL bundle.
//
//go:embed postgres.sql
var Postgres string
