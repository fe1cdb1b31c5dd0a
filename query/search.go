package query

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/cjenik/catalog"
	"github.com/hazyhaar/cjenik/ingest"
	"github.com/hazyhaar/cjenik/upstream"
)

// remoteWorkers bounds concurrent member fetches in the remote search path.
const remoteWorkers = 8

// Search finds products matching q for the date, with prices restricted to
// stores in the given city (substring, case-insensitive; empty city means
// everywhere). A blank q returns an empty result without touching the
// catalog or the upstream.
func (s *Service) Search(ctx context.Context, date, q, city string) (*SearchResult, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return &SearchResult{Products: []ProductGroup{}, ActualDate: date}, nil
	}

	ingested, err := s.catalog.IsDateIngested(ctx, date)
	if err != nil {
		return nil, err
	}
	if ingested {
		return s.searchCatalog(ctx, date, q, city)
	}

	latest, err := s.catalog.LatestIngestedDate(ctx)
	if err != nil {
		return nil, err
	}
	if latest != "" {
		s.logger.Debug("search falling back to latest ingested date",
			"requested", date, "actual", latest)
		return s.searchCatalog(ctx, latest, q, city)
	}

	return s.searchRemote(ctx, date, q, city)
}

// searchCatalog answers from the catalog alone. No HTTP leaves this path.
func (s *Service) searchCatalog(ctx context.Context, date, q, city string) (*SearchResult, error) {
	products, err := s.catalog.SearchProducts(ctx, date, q)
	if err != nil {
		return nil, err
	}
	res := &SearchResult{Products: []ProductGroup{}, ActualDate: date, Source: SourceDB}
	if len(products) == 0 {
		return res, nil
	}

	chains := distinctChains(products)
	stores, err := s.catalog.StoresFor(ctx, date, chains, city)
	if err != nil {
		return nil, err
	}
	prices, err := s.catalog.PricesFor(ctx, date, chains, productIDs(products))
	if err != nil {
		return nil, err
	}

	res.Products = mergeGroups(products, stores, prices)
	return res, nil
}

// searchRemote range-fetches straight from the archive in two phases:
// products.csv from every chain first, then stores and prices only for the
// chains that matched. A miss costs O(chains) small requests instead of the
// whole ~80 MB archive.
func (s *Service) searchRemote(ctx context.Context, date, q, city string) (*SearchResult, error) {
	actual, err := s.client.ResolveDate(ctx, date)
	if err != nil {
		if errors.Is(err, upstream.ErrNoArchives) {
			// Nothing published at all: empty result, best-effort date.
			return &SearchResult{Products: []ProductGroup{}, ActualDate: date, Source: SourceZip}, nil
		}
		return nil, err
	}

	chains, err := s.client.Chains(ctx, actual)
	if err != nil {
		return nil, err
	}

	match := func(p catalog.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Brand), q) ||
			p.Barcode == q
	}

	products, matchedChains, err := s.remoteMatchProducts(ctx, actual, chains, match)
	if err != nil {
		return nil, err
	}

	res := &SearchResult{Products: []ProductGroup{}, ActualDate: actual, Source: SourceZip}
	if len(products) == 0 {
		return res, nil
	}

	stores, prices, err := s.remoteStoresAndPrices(ctx, actual, matchedChains, city)
	if err != nil {
		return nil, err
	}

	res.Products = mergeGroups(products, stores, prices)
	return res, nil
}

// remoteMatchProducts is phase A: fetch products.csv from every chain with
// bounded concurrency and keep the rows match accepts. Per-chain failures
// are logged and swallowed — a partial answer beats none, and the source
// field already marks the response as remote.
func (s *Service) remoteMatchProducts(ctx context.Context, date string, chains []string, match func(catalog.Product) bool) ([]catalog.Product, []string, error) {
	var (
		mu       sync.Mutex
		products []catalog.Product
		matched  []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(remoteWorkers)
	for _, chain := range chains {
		g.Go(func() error {
			text, err := s.client.ReadCSV(gctx, date, chain, upstream.ProductsCSV)
			if err != nil {
				s.logger.Warn("remote products fetch failed", "date", date, "chain", chain, "error", err)
				return nil
			}
			rows := ingest.MapProducts(text, chain, date)
			var hits []catalog.Product
			for _, p := range rows {
				if match(p) {
					hits = append(hits, p)
				}
			}
			if len(hits) == 0 {
				return nil
			}
			mu.Lock()
			products = append(products, hits...)
			matched = append(matched, chain)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return products, matched, nil
}

// remoteStoresAndPrices is phase B: stores.csv and prices.csv for the
// matching chains only.
func (s *Service) remoteStoresAndPrices(ctx context.Context, date string, chains []string, city string) ([]catalog.Store, []catalog.Price, error) {
	cityq := strings.ToLower(strings.TrimSpace(city))

	var (
		mu     sync.Mutex
		stores []catalog.Store
		prices []catalog.Price
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(remoteWorkers)
	for _, chain := range chains {
		g.Go(func() error {
			text, err := s.client.ReadCSV(gctx, date, chain, upstream.StoresCSV)
			if err != nil {
				s.logger.Warn("remote stores fetch failed", "date", date, "chain", chain, "error", err)
				return nil
			}
			rows := ingest.MapStores(text, chain, date)
			if cityq != "" {
				kept := rows[:0]
				for _, st := range rows {
					if strings.Contains(strings.ToLower(st.City), cityq) {
						kept = append(kept, st)
					}
				}
				rows = kept
			}
			mu.Lock()
			stores = append(stores, rows...)
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			text, err := s.client.ReadCSV(gctx, date, chain, upstream.PricesCSV)
			if err != nil {
				s.logger.Warn("remote prices fetch failed", "date", date, "chain", chain, "error", err)
				return nil
			}
			rows := ingest.MapPrices(text, chain, date)
			mu.Lock()
			prices = append(prices, rows...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return stores, prices, nil
}
