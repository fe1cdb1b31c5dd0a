package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/cjenik/dbopen"
)

// insertBatchRows caps rows per INSERT statement to stay well inside the
// SQLite bound-parameter limit.
const insertBatchRows = 500

// ReplaceDate atomically swaps the catalog contents for one date: all
// existing rows for the date are deleted, the new rows inserted, and a
// success row written to ingestion_log — in one transaction. Readers see
// either the old or the new date, never a mixture.
//
// On failure the transaction rolls back and an error row is recorded
// instead, so the date reads as not ingested.
func (c *Catalog) ReplaceDate(ctx context.Context, date string, recs DateRecords) error {
	now := time.Now().Unix()

	err := dbopen.RunTx(ctx, c.db, func(tx *sql.Tx) error {
		for _, table := range []string{"prices", "products", "stores"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE date = ?", date); err != nil {
				return fmt.Errorf("delete %s for %s: %w", table, date, err)
			}
		}
		if err := insertStores(ctx, tx, recs.Stores); err != nil {
			return err
		}
		if err := insertProducts(ctx, tx, recs.Products); err != nil {
			return err
		}
		if err := insertPrices(ctx, tx, recs.Prices); err != nil {
			return err
		}
		return upsertLog(ctx, tx, Ingestion{
			Date:         date,
			IngestedAt:   now,
			StoreCount:   len(recs.Stores),
			ProductCount: len(recs.Products),
			PriceCount:   len(recs.Prices),
			Status:       StatusSuccess,
		})
	})
	if err != nil {
		c.logger.Error("replace date failed", "date", date, "error", err)
		if logErr := c.RecordError(ctx, date, err.Error()); logErr != nil {
			c.logger.Error("record ingest error failed", "date", date, "error", logErr)
		}
		return err
	}

	c.logger.Info("date replaced",
		"date", date,
		"stores", len(recs.Stores),
		"products", len(recs.Products),
		"prices", len(recs.Prices))
	return nil
}

// RecordError writes (or overwrites) an error row for the date.
func (c *Catalog) RecordError(ctx context.Context, date, message string) error {
	return dbopen.RunTx(ctx, c.db, func(tx *sql.Tx) error {
		return upsertLog(ctx, tx, Ingestion{
			Date:         date,
			IngestedAt:   time.Now().Unix(),
			Status:       StatusError,
			ErrorMessage: message,
		})
	})
}

func upsertLog(ctx context.Context, tx *sql.Tx, ing Ingestion) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ingestion_log (date, ingested_at, store_count, product_count, price_count, status, error_message)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(date) DO UPDATE SET
			ingested_at   = excluded.ingested_at,
			store_count   = excluded.store_count,
			product_count = excluded.product_count,
			price_count   = excluded.price_count,
			status        = excluded.status,
			error_message = excluded.error_message`,
		ing.Date, ing.IngestedAt, ing.StoreCount, ing.ProductCount, ing.PriceCount,
		ing.Status, ing.ErrorMessage)
	if err != nil {
		return fmt.Errorf("upsert ingestion_log for %s: %w", ing.Date, err)
	}
	return nil
}

func insertStores(ctx context.Context, tx *sql.Tx, stores []Store) error {
	const cols = 7
	for start := 0; start < len(stores); start += insertBatchRows {
		batch := stores[start:min(start+insertBatchRows, len(stores))]
		args := make([]any, 0, len(batch)*cols)
		for _, s := range batch {
			args = append(args, s.Chain, s.StoreID, s.Date, s.Type, s.Address, s.City, s.Zipcode)
		}
		q := "INSERT INTO stores (chain, store_id, date, type, address, city, zipcode) VALUES " +
			placeholders(len(batch), cols)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert stores: %w", err)
		}
	}
	return nil
}

func insertProducts(ctx context.Context, tx *sql.Tx, products []Product) error {
	const cols = 9
	for start := 0; start < len(products); start += insertBatchRows {
		batch := products[start:min(start+insertBatchRows, len(products))]
		args := make([]any, 0, len(batch)*cols)
		for _, p := range batch {
			args = append(args, p.Chain, p.ProductID, p.Date, p.Barcode, p.Name, p.Brand, p.Category, p.Unit, p.Quantity)
		}
		q := "INSERT INTO products (chain, product_id, date, barcode, name, brand, category, unit, quantity) VALUES " +
			placeholders(len(batch), cols)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert products: %w", err)
		}
	}
	return nil
}

func insertPrices(ctx context.Context, tx *sql.Tx, prices []Price) error {
	const cols = 9
	for start := 0; start < len(prices); start += insertBatchRows {
		batch := prices[start:min(start+insertBatchRows, len(prices))]
		args := make([]any, 0, len(batch)*cols)
		for _, p := range batch {
			args = append(args, p.Chain, p.StoreID, p.ProductID, p.Date, p.Price,
				nullable(p.UnitPrice), nullable(p.BestPrice30), nullable(p.AnchorPrice), nullable(p.SpecialPrice))
		}
		q := "INSERT INTO prices (chain, store_id, product_id, date, price, unit_price, best_price_30, anchor_price, special_price) VALUES " +
			placeholders(len(batch), cols)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert prices: %w", err)
		}
	}
	return nil
}

func nullable(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// placeholders builds "(?,?,..),(?,?,..),.." for rows×cols bind parameters.
func placeholders(rows, cols int) string {
	one := "(" + strings.TrimSuffix(strings.Repeat("?,", cols), ",") + ")"
	var b strings.Builder
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(one)
	}
	return b.String()
}
