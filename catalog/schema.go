package catalog

import "database/sql"

// Schema is the complete catalog schema. All rows for a date are immutable
// once written; a re-ingest replaces the whole date atomically. Price rows
// reference stores and products by convention, not by foreign key — the
// query layer skips orphans.
const Schema = `
-- Physical outlets, one row per (chain, store, date)
CREATE TABLE IF NOT EXISTS stores (
    chain     TEXT NOT NULL,
    store_id  TEXT NOT NULL,
    date      TEXT NOT NULL,
    type      TEXT NOT NULL DEFAULT '',
    address   TEXT NOT NULL DEFAULT '',
    city      TEXT NOT NULL DEFAULT '',
    zipcode   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_stores_chain_date ON stores(chain, date);
CREATE INDEX IF NOT EXISTS idx_stores_city ON stores(city);
CREATE UNIQUE INDEX IF NOT EXISTS idx_stores_key ON stores(store_id, chain, date);

-- Catalog items, one row per (chain, product, date)
CREATE TABLE IF NOT EXISTS products (
    chain      TEXT NOT NULL,
    product_id TEXT NOT NULL,
    date       TEXT NOT NULL,
    barcode    TEXT NOT NULL DEFAULT '',
    name       TEXT NOT NULL DEFAULT '',
    brand      TEXT NOT NULL DEFAULT '',
    category   TEXT NOT NULL DEFAULT '',
    unit       TEXT NOT NULL DEFAULT '',
    quantity   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_products_chain_date ON products(chain, date);
CREATE INDEX IF NOT EXISTS idx_products_barcode_date ON products(barcode, date);
CREATE INDEX IF NOT EXISTS idx_products_name_date ON products(name, date);
CREATE UNIQUE INDEX IF NOT EXISTS idx_products_key ON products(product_id, chain, date);

-- Price observations, one row per (chain, store, product, date)
CREATE TABLE IF NOT EXISTS prices (
    chain         TEXT NOT NULL,
    store_id      TEXT NOT NULL,
    product_id    TEXT NOT NULL,
    date          TEXT NOT NULL,
    price         REAL NOT NULL DEFAULT 0,
    unit_price    REAL,
    best_price_30 REAL,
    anchor_price  REAL,
    special_price REAL
);
CREATE INDEX IF NOT EXISTS idx_prices_chain_date ON prices(chain, date);
CREATE INDEX IF NOT EXISTS idx_prices_product ON prices(product_id, chain, date);
CREATE INDEX IF NOT EXISTS idx_prices_store ON prices(store_id, chain, date);

-- One row per attempted date; surfaces which dates are queryable
CREATE TABLE IF NOT EXISTS ingestion_log (
    date          TEXT NOT NULL UNIQUE,
    ingested_at   INTEGER NOT NULL,
    store_count   INTEGER NOT NULL DEFAULT 0,
    product_count INTEGER NOT NULL DEFAULT 0,
    price_count   INTEGER NOT NULL DEFAULT 0,
    status        TEXT NOT NULL,
    error_message TEXT NOT NULL DEFAULT ''
);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
