package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/cjenik/catalog"
	"github.com/hazyhaar/cjenik/dates"
)

// historyDateWorkers bounds concurrent per-date archive reads in the remote
// history path.
const historyDateWorkers = 5

// HistoryRequest selects the product and scope of a price history.
// Barcode wins when both barcode and name are given.
type HistoryRequest struct {
	Barcode string
	Name    string
	City    string
	Chain   string
	Days    int
}

// ChainStat is the per-chain aggregate for one date.
type ChainStat struct {
	Chain    string  `json:"chain"`
	MinPrice float64 `json:"min_price"`
	AvgPrice float64 `json:"avg_price"`
}

// HistoryEntry is one date's aggregates.
type HistoryEntry struct {
	Date   string      `json:"date"`
	Prices []ChainStat `json:"prices"`
}

// History aggregates min and mean prices per (date, chain) over the most
// recent req.Days days. Dates with no matches are omitted; output is sorted
// ascending by date. Days <= 0 yields an empty list.
func (s *Service) History(ctx context.Context, req HistoryRequest) ([]HistoryEntry, error) {
	if strings.TrimSpace(req.Barcode) == "" && strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: history requires a barcode or a name", ErrBadRequest)
	}
	if req.Days <= 0 {
		return []HistoryEntry{}, nil
	}
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Name = strings.TrimSpace(req.Name)

	catalogDates, err := s.catalog.SuccessDates(ctx, req.Days)
	if err != nil {
		return nil, err
	}
	if len(catalogDates) > 0 {
		return s.historyCatalog(ctx, catalogDates, req)
	}
	return s.historyRemote(ctx, req)
}

func (s *Service) historyCatalog(ctx context.Context, days []string, req HistoryRequest) ([]HistoryEntry, error) {
	entries := make([]HistoryEntry, 0, len(days))
	for _, date := range days {
		products, err := s.catalog.MatchProducts(ctx, date, req.Barcode, req.Name, req.Chain)
		if err != nil {
			return nil, err
		}
		if len(products) == 0 {
			continue
		}
		chains := distinctChains(products)
		stores, err := s.catalog.StoresFor(ctx, date, chains, req.City)
		if err != nil {
			return nil, err
		}
		prices, err := s.catalog.PricesFor(ctx, date, chains, productIDs(products))
		if err != nil {
			return nil, err
		}
		stats := aggregate(products, stores, prices)
		if len(stats) == 0 {
			continue
		}
		entries = append(entries, HistoryEntry{Date: date, Prices: stats})
	}
	sortEntries(entries)
	return entries, nil
}

// historyRemote reads each day straight from its archive, batched five
// dates at a time. A date whose archive fails is dropped from the answer —
// observable through the shorter range, never silently zero-filled.
func (s *Service) historyRemote(ctx context.Context, req HistoryRequest) ([]HistoryEntry, error) {
	archives, err := s.client.List(ctx)
	if err != nil {
		return nil, err
	}
	var days []string
	for _, a := range archives {
		days = append(days, a.Date)
	}
	days = dates.Recent(days, req.Days)

	match := func(p catalog.Product) bool {
		if req.Chain != "" && p.Chain != req.Chain {
			return false
		}
		if req.Barcode != "" {
			return p.Barcode == req.Barcode
		}
		return strings.Contains(strings.ToLower(p.Name), strings.ToLower(req.Name))
	}

	var (
		mu      sync.Mutex
		entries []HistoryEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyDateWorkers)
	for _, date := range days {
		g.Go(func() error {
			entry, err := s.remoteDay(gctx, date, req, match)
			if err != nil {
				s.logger.Warn("history date skipped", "date", date, "error", err)
				return nil
			}
			if entry == nil {
				return nil
			}
			mu.Lock()
			entries = append(entries, *entry)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// remoteDay runs the two-phase member read for one date and aggregates it.
func (s *Service) remoteDay(ctx context.Context, date string, req HistoryRequest, match func(catalog.Product) bool) (*HistoryEntry, error) {
	chains, err := s.client.Chains(ctx, date)
	if err != nil {
		return nil, err
	}
	if req.Chain != "" {
		if !contains(chains, req.Chain) {
			return nil, nil
		}
		chains = []string{req.Chain}
	}

	products, matchedChains, err := s.remoteMatchProducts(ctx, date, chains, match)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}

	stores, prices, err := s.remoteStoresAndPrices(ctx, date, matchedChains, req.City)
	if err != nil {
		return nil, err
	}

	stats := aggregate(products, stores, prices)
	if len(stats) == 0 {
		return nil, nil
	}
	return &HistoryEntry{Date: date, Prices: stats}, nil
}

// aggregate folds the raw row sets into per-chain min/mean. The store index
// applies the city filter the same way search does; prices whose product or
// store is not in the matched sets are orphans and skipped.
func aggregate(products []catalog.Product, stores []catalog.Store, prices []catalog.Price) []ChainStat {
	type key struct{ chain, id string }
	storeIdx := make(map[key]bool, len(stores))
	for _, s := range stores {
		storeIdx[key{s.Chain, s.StoreID}] = true
	}
	prodIdx := make(map[key]bool, len(products))
	for _, p := range products {
		prodIdx[key{p.Chain, p.ProductID}] = true
	}

	type acc struct {
		min   float64
		sum   float64
		count int
	}
	byChain := make(map[string]*acc)
	for _, pr := range prices {
		if !prodIdx[key{pr.Chain, pr.ProductID}] || !storeIdx[key{pr.Chain, pr.StoreID}] {
			continue
		}
		a, ok := byChain[pr.Chain]
		if !ok {
			a = &acc{min: pr.Price}
			byChain[pr.Chain] = a
		}
		if pr.Price < a.min {
			a.min = pr.Price
		}
		a.sum += pr.Price
		a.count++
	}

	stats := make([]ChainStat, 0, len(byChain))
	for chain, a := range byChain {
		stats = append(stats, ChainStat{
			Chain:    chain,
			MinPrice: a.min,
			AvgPrice: a.sum / float64(a.count),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Chain < stats[j].Chain })
	return stats
}

func sortEntries(entries []HistoryEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date < entries[j].Date })
}
