package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// searchLimit caps raw product matches per query.
const searchLimit = 500

// SearchProducts returns products for the date whose name or brand contain q
// (case-insensitive substring) or whose barcode equals q exactly. At most
// searchLimit rows. q is expected pre-normalised (lowercased, trimmed).
func (c *Catalog) SearchProducts(ctx context.Context, date, q string) ([]Product, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT chain, product_id, date, barcode, name, brand, category, unit, quantity
		FROM products
		WHERE date = ? AND (instr(lower(name), ?) > 0 OR instr(lower(brand), ?) > 0 OR barcode = ?)
		LIMIT ?`,
		date, q, q, q, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// MatchProducts returns products for the date matching a barcode exactly or
// a name substring, optionally restricted to one chain. Used by the history
// aggregation; barcode wins when both are given.
func (c *Catalog) MatchProducts(ctx context.Context, date, barcode, name, chain string) ([]Product, error) {
	var (
		where []string
		args  []any
	)
	where = append(where, "date = ?")
	args = append(args, date)

	if barcode != "" {
		where = append(where, "barcode = ?")
		args = append(args, barcode)
	} else {
		where = append(where, "instr(lower(name), ?) > 0")
		args = append(args, strings.ToLower(name))
	}
	if chain != "" {
		where = append(where, "chain = ?")
		args = append(args, chain)
	}
	args = append(args, searchLimit)

	rows, err := c.db.QueryContext(ctx, `
		SELECT chain, product_id, date, barcode, name, brand, category, unit, quantity
		FROM products WHERE `+strings.Join(where, " AND ")+` LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("match products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// StoresFor loads all stores for the date in the given chains. A non-empty
// city restricts to stores whose city contains it, case-insensitively.
func (c *Catalog) StoresFor(ctx context.Context, date string, chains []string, city string) ([]Store, error) {
	if len(chains) == 0 {
		return nil, nil
	}
	q := `SELECT chain, store_id, date, type, address, city, zipcode
		FROM stores WHERE date = ? AND chain IN (` + marks(len(chains)) + `)`
	args := []any{date}
	for _, ch := range chains {
		args = append(args, ch)
	}
	if city != "" {
		q += ` AND instr(lower(city), ?) > 0`
		args = append(args, strings.ToLower(city))
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("stores for: %w", err)
	}
	defer rows.Close()

	var out []Store
	for rows.Next() {
		var s Store
		if err := rows.Scan(&s.Chain, &s.StoreID, &s.Date, &s.Type, &s.Address, &s.City, &s.Zipcode); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PricesFor loads all prices for the date restricted to the given chains and
// product IDs.
func (c *Catalog) PricesFor(ctx context.Context, date string, chains, productIDs []string) ([]Price, error) {
	if len(chains) == 0 || len(productIDs) == 0 {
		return nil, nil
	}
	q := `SELECT chain, store_id, product_id, date, price, unit_price, best_price_30, anchor_price, special_price
		FROM prices WHERE date = ? AND chain IN (` + marks(len(chains)) + `)
		AND product_id IN (` + marks(len(productIDs)) + `)`
	args := make([]any, 0, 1+len(chains)+len(productIDs))
	args = append(args, date)
	for _, ch := range chains {
		args = append(args, ch)
	}
	for _, id := range productIDs {
		args = append(args, id)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("prices for: %w", err)
	}
	defer rows.Close()

	var out []Price
	for rows.Next() {
		var p Price
		var unit, best, anchor, special sql.NullFloat64
		if err := rows.Scan(&p.Chain, &p.StoreID, &p.ProductID, &p.Date, &p.Price,
			&unit, &best, &anchor, &special); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.UnitPrice = floatPtr(unit)
		p.BestPrice30 = floatPtr(best)
		p.AnchorPrice = floatPtr(anchor)
		p.SpecialPrice = floatPtr(special)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Cities returns the distinct non-empty store cities across all ingested
// dates, unsorted — collation is the query layer's concern.
func (c *Catalog) Cities(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT DISTINCT city FROM stores WHERE city <> ''`)
	if err != nil {
		return nil, fmt.Errorf("cities: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		out = append(out, city)
	}
	return out, rows.Err()
}

func scanProducts(rows *sql.Rows) ([]Product, error) {
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.Chain, &p.ProductID, &p.Date, &p.Barcode, &p.Name,
			&p.Brand, &p.Category, &p.Unit, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// marks builds "?,?,?" for n bind parameters.
func marks(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
