package query

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/hazyhaar/cjenik/ingest"
	"github.com/hazyhaar/cjenik/upstream"
)

// majorCities is the floor list served when the catalog holds nothing yet.
var majorCities = []string{
	"Zagreb", "Split", "Rijeka", "Osijek", "Zadar",
	"Velika Gorica", "Slavonski Brod", "Pula", "Karlovac", "Varaždin",
	"Šibenik", "Sisak", "Dubrovnik", "Bjelovar", "Vinkovci",
}

var cityCollator = collate.New(language.Croatian, collate.IgnoreCase)

// Cities returns the known store cities, locale-sorted. Ingested catalog
// data wins; with an empty catalog the latest archive's stores are read
// remotely, unioned with the fixed floor of major cities.
func (s *Service) Cities(ctx context.Context) ([]string, error) {
	cities, err := s.catalog.Cities(ctx)
	if err != nil {
		return nil, err
	}
	if len(cities) > 0 {
		cityCollator.SortStrings(cities)
		return cities, nil
	}

	set := make(map[string]bool, len(majorCities))
	for _, c := range majorCities {
		set[c] = true
	}
	for _, c := range s.remoteCities(ctx) {
		set[c] = true
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	cityCollator.SortStrings(out)
	return out, nil
}

// remoteCities reads stores.csv from every chain of the newest archive.
// Best-effort: any failure just shrinks the union.
func (s *Service) remoteCities(ctx context.Context) []string {
	archives, err := s.client.List(ctx)
	if err != nil || len(archives) == 0 {
		return nil
	}
	date := archives[0].Date

	chains, err := s.client.Chains(ctx, date)
	if err != nil {
		s.logger.Debug("remote cities unavailable", "date", date, "error", err)
		return nil
	}

	var (
		mu  sync.Mutex
		set = make(map[string]bool)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(remoteWorkers)
	for _, chain := range chains {
		g.Go(func() error {
			text, err := s.client.ReadCSV(gctx, date, chain, upstream.StoresCSV)
			if err != nil {
				return nil
			}
			for _, st := range ingest.MapStores(text, chain, date) {
				if st.City == "" {
					continue
				}
				mu.Lock()
				set[st.City] = true
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
