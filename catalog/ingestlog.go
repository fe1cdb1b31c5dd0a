package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// IsDateIngested reports whether the date has a success row.
func (c *Catalog) IsDateIngested(ctx context.Context, date string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ingestion_log WHERE date = ? AND status = ?`,
		date, StatusSuccess).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is date ingested: %w", err)
	}
	return n > 0, nil
}

// LatestIngestedDate returns the maximum date with a success row, or ""
// when nothing has been ingested yet.
func (c *Catalog) LatestIngestedDate(ctx context.Context) (string, error) {
	var date sql.NullString
	err := c.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM ingestion_log WHERE status = ?`, StatusSuccess).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("latest ingested date: %w", err)
	}
	return date.String, nil
}

// SuccessDates returns up to limit ingested dates, newest first.
func (c *Catalog) SuccessDates(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT date FROM ingestion_log WHERE status = ? ORDER BY date DESC LIMIT ?`,
		StatusSuccess, limit)
	if err != nil {
		return nil, fmt.Errorf("success dates: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetIngestion returns the log row for a date, or nil when absent.
func (c *Catalog) GetIngestion(ctx context.Context, date string) (*Ingestion, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT date, ingested_at, store_count, product_count, price_count, status, error_message
		FROM ingestion_log WHERE date = ?`, date)
	var ing Ingestion
	err := row.Scan(&ing.Date, &ing.IngestedAt, &ing.StoreCount, &ing.ProductCount,
		&ing.PriceCount, &ing.Status, &ing.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ingestion: %w", err)
	}
	return &ing, nil
}

// ListIngestions returns all log rows, newest first.
func (c *Catalog) ListIngestions(ctx context.Context) ([]Ingestion, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT date, ingested_at, store_count, product_count, price_count, status, error_message
		FROM ingestion_log ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list ingestions: %w", err)
	}
	defer rows.Close()

	var out []Ingestion
	for rows.Next() {
		var ing Ingestion
		if err := rows.Scan(&ing.Date, &ing.IngestedAt, &ing.StoreCount, &ing.ProductCount,
			&ing.PriceCount, &ing.Status, &ing.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan ingestion: %w", err)
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}
