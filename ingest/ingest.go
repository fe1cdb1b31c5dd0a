// Package ingest loads one archive day into the catalog.
//
// One invocation fetches the three CSVs of every chain in the archive with
// bounded concurrency, maps rows to catalog entities, and hands the whole
// day to catalog.ReplaceDate. A chain that fails to fetch or decode is
// logged and skipped — partial ingest beats none — while archive-level
// failures (size probe, directory fetch) abort the day with an error row.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/hazyhaar/cjenik/catalog"
	"github.com/hazyhaar/cjenik/csvdec"
	"github.com/hazyhaar/cjenik/upstream"
)

// maxChainWorkers bounds concurrent chain fetches per ingest. The bound is
// part of the upstream contract, not a tuning knob.
const maxChainWorkers = 5

// Driver runs ingests. Safe for concurrent use; ingests of the same date
// serialise on a per-date lock.
type Driver struct {
	catalog *catalog.Catalog
	client  *upstream.Client
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Driver.
func New(cat *catalog.Catalog, client *upstream.Client, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		catalog: cat,
		client:  client,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Result summarises one ingest invocation.
type Result struct {
	Date        string
	Skipped     bool
	Chains      int
	ChainErrors int
	Stores      int
	Products    int
	Prices      int
}

// Ingest loads the archive for date into the catalog. Without force, an
// existing success row short-circuits with a no-op. Concurrent calls for
// the same date serialise; the loser observes the winner's success row and
// no-ops.
func (d *Driver) Ingest(ctx context.Context, date string, force bool) (*Result, error) {
	lock := d.dateLock(date)
	lock.Lock()
	defer lock.Unlock()

	log := d.logger.With("date", date)

	if !force {
		done, err := d.catalog.IsDateIngested(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("ingest %s: %w", date, err)
		}
		if done {
			log.Info("date already ingested, skipping")
			return &Result{Date: date, Skipped: true}, nil
		}
	}

	chains, err := d.client.Chains(ctx, date)
	if err != nil {
		// Archive-level failure: no directory means no ingest at all.
		if recErr := d.catalog.RecordError(ctx, date, err.Error()); recErr != nil {
			log.Error("record error row failed", "error", recErr)
		}
		return nil, fmt.Errorf("ingest %s: %w", date, err)
	}
	log.Info("ingest starting", "chains", len(chains), "force", force)

	var (
		recs   catalog.DateRecords
		failed int
		mu     sync.Mutex
		wg     sync.WaitGroup
		sem    = make(chan struct{}, maxChainWorkers)
	)

	for _, chain := range chains {
		wg.Add(1)
		go func(chain string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cr, err := d.loadChain(ctx, date, chain)
			if err != nil {
				log.Warn("chain skipped", "chain", chain, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			recs.Stores = append(recs.Stores, cr.Stores...)
			recs.Products = append(recs.Products, cr.Products...)
			recs.Prices = append(recs.Prices, cr.Prices...)
			mu.Unlock()
			log.Debug("chain loaded", "chain", chain,
				"stores", len(cr.Stores), "products", len(cr.Products), "prices", len(cr.Prices))
		}(chain)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", date, err)
	}

	if err := d.catalog.ReplaceDate(ctx, date, recs); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", date, err)
	}

	res := &Result{
		Date:        date,
		Chains:      len(chains),
		ChainErrors: failed,
		Stores:      len(recs.Stores),
		Products:    len(recs.Products),
		Prices:      len(recs.Prices),
	}
	log.Info("ingest complete",
		"chains", res.Chains, "chain_errors", res.ChainErrors,
		"stores", res.Stores, "products", res.Products, "prices", res.Prices)
	return res, nil
}

// loadChain fetches and decodes the three CSVs of one chain. The chain and
// date fields are stamped from context, never read from the CSV.
func (d *Driver) loadChain(ctx context.Context, date, chain string) (*catalog.DateRecords, error) {
	storesText, err := d.client.ReadCSV(ctx, date, chain, upstream.StoresCSV)
	if err != nil {
		return nil, fmt.Errorf("stores.csv: %w", err)
	}
	productsText, err := d.client.ReadCSV(ctx, date, chain, upstream.ProductsCSV)
	if err != nil {
		return nil, fmt.Errorf("products.csv: %w", err)
	}
	pricesText, err := d.client.ReadCSV(ctx, date, chain, upstream.PricesCSV)
	if err != nil {
		return nil, fmt.Errorf("prices.csv: %w", err)
	}

	recs := &catalog.DateRecords{
		Stores:   MapStores(storesText, chain, date),
		Products: MapProducts(productsText, chain, date),
		Prices:   MapPrices(pricesText, chain, date),
	}
	return recs, nil
}

// dateLock returns the serialisation lock for a date. Locks are never
// removed; the set of dates a process touches is small.
func (d *Driver) dateLock(date string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[date]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[date] = lock
	}
	return lock
}

// MapStores decodes stores.csv text into catalog rows.
func MapStores(text, chain, date string) []catalog.Store {
	var out []catalog.Store
	csvdec.ForEach(text, func(r csvdec.Record) bool {
		if r["store_id"] == "" {
			return true
		}
		out = append(out, catalog.Store{
			Chain:   chain,
			StoreID: r["store_id"],
			Date:    date,
			Type:    r["type"],
			Address: r["address"],
			City:    r["city"],
			Zipcode: r["zipcode"],
		})
		return true
	})
	return out
}

// MapProducts decodes products.csv text into catalog rows.
func MapProducts(text, chain, date string) []catalog.Product {
	var out []catalog.Product
	csvdec.ForEach(text, func(r csvdec.Record) bool {
		if r["product_id"] == "" {
			return true
		}
		out = append(out, catalog.Product{
			Chain:     chain,
			ProductID: r["product_id"],
			Date:      date,
			Barcode:   r["barcode"],
			Name:      r["name"],
			Brand:     r["brand"],
			Category:  r["category"],
			Unit:      r["unit"],
			Quantity:  r["quantity"],
		})
		return true
	})
	return out
}

// MapPrices decodes prices.csv text into catalog rows. The mandatory price
// coerces to 0.0 when unparseable; the optional components coerce to absent.
func MapPrices(text, chain, date string) []catalog.Price {
	var out []catalog.Price
	csvdec.ForEach(text, func(r csvdec.Record) bool {
		if r["store_id"] == "" || r["product_id"] == "" {
			return true
		}
		out = append(out, catalog.Price{
			Chain:        chain,
			StoreID:      r["store_id"],
			ProductID:    r["product_id"],
			Date:         date,
			Price:        mustFloat(r["price"]),
			UnitPrice:    optFloat(r["unit_price"]),
			BestPrice30:  optFloat(r["best_price_30"]),
			AnchorPrice:  optFloat(r["anchor_price"]),
			SpecialPrice: optFloat(r["special_price"]),
		})
		return true
	})
	return out
}

func mustFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func optFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
