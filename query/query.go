// Package query answers the two end-user questions: which products match
// this text in this city today, and how has this product's price moved.
//
// Resolution order is deterministic: the catalog answers when the date (or
// any date) is ingested; otherwise members are range-fetched straight from
// the remote archive. The response carries the source ("db" or "zip") and
// the date actually answered for, so degraded answers stay observable.
package query

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/hazyhaar/cjenik/catalog"
	"github.com/hazyhaar/cjenik/upstream"
)

// Sources reported in results.
const (
	SourceDB  = "db"
	SourceZip = "zip"
)

// mergeLimit caps merged product groups per search.
const mergeLimit = 50

// ErrBadRequest marks a query refused at the boundary (history without a
// barcode or a name).
var ErrBadRequest = errors.New("query: bad request")

// Service routes queries between the catalog and the remote archives.
type Service struct {
	catalog *catalog.Catalog
	client  *upstream.Client
	logger  *slog.Logger
}

// New creates a Service.
func New(cat *catalog.Catalog, client *upstream.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalog: cat, client: client, logger: logger}
}

// PriceObservation is one store's price attached to a merged product.
type PriceObservation struct {
	Chain        string   `json:"chain"`
	StoreID      string   `json:"store_id"`
	City         string   `json:"city"`
	Address      string   `json:"address"`
	Price        float64  `json:"price"`
	UnitPrice    *float64 `json:"unit_price,omitempty"`
	BestPrice30  *float64 `json:"best_price_30,omitempty"`
	AnchorPrice  *float64 `json:"anchor_price,omitempty"`
	SpecialPrice *float64 `json:"special_price,omitempty"`
}

// ProductGroup is a merged product: all chain offerings sharing a barcode,
// or a single (chain, product) when the barcode is empty.
type ProductGroup struct {
	Barcode  string             `json:"barcode"`
	Name     string             `json:"name"`
	Brand    string             `json:"brand"`
	Category string             `json:"category"`
	Unit     string             `json:"unit"`
	Quantity string             `json:"quantity"`
	Chains   []string           `json:"chains"`
	Prices   []PriceObservation `json:"prices"`
}

// SearchResult is the product-search response shape.
type SearchResult struct {
	Products   []ProductGroup `json:"products"`
	ActualDate string         `json:"actual_date"`
	Source     string         `json:"source"`
}

// mergeGroups builds the final search shape from raw row sets. The store
// index enforces the city filter: a price whose store is not in it (wrong
// city, or an orphan row) is dropped. Groups without prices are discarded;
// the rest sort by observation count, capped at mergeLimit.
func mergeGroups(products []catalog.Product, stores []catalog.Store, prices []catalog.Price) []ProductGroup {
	type storeKey struct{ chain, id string }
	storeIdx := make(map[storeKey]catalog.Store, len(stores))
	for _, s := range stores {
		storeIdx[storeKey{s.Chain, s.StoreID}] = s
	}

	type prodKey struct{ chain, id string }
	groupOf := make(map[prodKey]string, len(products))
	groups := make(map[string]*ProductGroup)
	var order []string

	for _, p := range products {
		key := p.Barcode
		if key == "" {
			key = p.Chain + "\x00" + p.ProductID
		}
		groupOf[prodKey{p.Chain, p.ProductID}] = key

		g, ok := groups[key]
		if !ok {
			g = &ProductGroup{
				Barcode:  p.Barcode,
				Name:     p.Name,
				Brand:    p.Brand,
				Category: p.Category,
				Unit:     p.Unit,
				Quantity: p.Quantity,
			}
			groups[key] = g
			order = append(order, key)
		}
		if !contains(g.Chains, p.Chain) {
			g.Chains = append(g.Chains, p.Chain)
		}
	}

	for _, pr := range prices {
		key, ok := groupOf[prodKey{pr.Chain, pr.ProductID}]
		if !ok {
			continue
		}
		st, ok := storeIdx[storeKey{pr.Chain, pr.StoreID}]
		if !ok {
			continue
		}
		g := groups[key]
		g.Prices = append(g.Prices, PriceObservation{
			Chain:        pr.Chain,
			StoreID:      pr.StoreID,
			City:         st.City,
			Address:      st.Address,
			Price:        pr.Price,
			UnitPrice:    pr.UnitPrice,
			BestPrice30:  pr.BestPrice30,
			AnchorPrice:  pr.AnchorPrice,
			SpecialPrice: pr.SpecialPrice,
		})
	}

	merged := make([]ProductGroup, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if len(g.Prices) == 0 {
			continue
		}
		sort.Strings(g.Chains)
		merged = append(merged, *g)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return len(merged[i].Prices) > len(merged[j].Prices)
	})
	if len(merged) > mergeLimit {
		merged = merged[:mergeLimit]
	}
	return merged
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func distinctChains(products []catalog.Product) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range products {
		if !seen[p.Chain] {
			seen[p.Chain] = true
			out = append(out, p.Chain)
		}
	}
	sort.Strings(out)
	return out
}

func productIDs(products []catalog.Product) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range products {
		if !seen[p.ProductID] {
			seen[p.ProductID] = true
			out = append(out, p.ProductID)
		}
	}
	return out
}
