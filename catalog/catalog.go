// Package catalog is the persistent price catalog: stores, products, prices,
// and the ingestion log, keyed by (date, chain).
//
// The catalog is a durable cache of the upstream archives, not a system of
// record. ReplaceDate is the only write path; everything else reads.
package catalog

import (
	"database/sql"
	"log/slog"
)

// Catalog wraps the catalog database.
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Catalog from an already-opened database connection.
func New(db *sql.DB, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{db: db, logger: logger}
}

// DB exposes the underlying handle (tests and the status endpoint).
func (c *Catalog) DB() *sql.DB { return c.db }
