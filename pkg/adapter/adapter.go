// Package adapter defines how table-backed sources talk to a database.
//
// This package contains the contract every database adapter implements.
// Concrete adapters live in pkg/adapters/ subdirectories and register
// themselves by name from their init functions.
package adapter

import (
	"context"
	"database/sql"
)

// Config holds connection settings for an adapter.
type Config struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any
}

// Column describes one column of a table as reported by the database.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// Metadata describes a table.
type Metadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// Adapter is a read-only connection to a database that can describe and
// page through tables.
type Adapter interface {
	// Connect establishes a connection using cfg.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Query executes a statement that returns rows. Args are bound to
	// placeholders produced by Placeholder.
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)

	// QueryRow executes a statement expected to return at most one row.
	QueryRow(ctx context.Context, query string, args ...any) (*sql.Row, error)

	// GetTableMetadata returns the columns and row count of table.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// ListTables returns the user tables visible to the connection.
	ListTables(ctx context.Context) ([]string, error)

	// QuoteIdent quotes a possibly schema-qualified identifier.
	QuoteIdent(name string) string

	// Placeholder returns the bind placeholder for the n-th argument (1-based).
	Placeholder(n int) string
}
