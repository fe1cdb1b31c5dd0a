package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/cjenik/catalog"
	"github.com/hazyhaar/cjenik/dbopen"
	"github.com/hazyhaar/cjenik/query"
	"github.com/hazyhaar/cjenik/upstream"
)

func newTestServer(t *testing.T) (*Server, *catalog.Catalog) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(catalog.Schema))
	cat := catalog.New(db, nil)

	// A remote that always fails keeps the tests catalog-only.
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(remote.Close)
	client := upstream.New(upstream.Config{BaseURL: remote.URL, Timeout: 2 * time.Second})

	queries := query.New(cat, client, nil)
	return New(queries, cat, nil), cat
}

func seedMilk(t *testing.T, cat *catalog.Catalog, date string) {
	t.Helper()
	err := cat.ReplaceDate(context.Background(), date, catalog.DateRecords{
		Stores: []catalog.Store{
			{Chain: "lidl", StoreID: "s1", Date: date, City: "Zagreb"},
		},
		Products: []catalog.Product{
			{Chain: "lidl", ProductID: "A1", Date: date, Barcode: "5901234123457", Name: "Mlijeko 1L"},
		},
		Prices: []catalog.Price{
			{Chain: "lidl", StoreID: "s1", ProductID: "A1", Date: date, Price: 1.29},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSearchEndpoint(t *testing.T) {
	// WHAT: /v1/search returns the query layer's shape as JSON.
	// WHY: The envelope must not reshape or lose fields.
	srv, cat := newTestServer(t)
	seedMilk(t, cat, "2025-06-01")

	req := httptest.NewRequest("GET", "/v1/search?date=2025-06-01&q=mlij&city=Zagreb", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	var res query.SearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Source != "db" || res.ActualDate != "2025-06-01" {
		t.Errorf("meta: %+v", res)
	}
	if len(res.Products) != 1 || res.Products[0].Name != "Mlijeko 1L" {
		t.Errorf("products: %+v", res.Products)
	}
}

func TestSearchEndpoint_BadDate(t *testing.T) {
	// WHAT: Malformed dates get a 400 before the query layer runs.
	// WHY: Input validation lives at the boundary.
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/v1/search?date=junk&q=mlijeko", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestHistoryEndpoint_BadRequest(t *testing.T) {
	// WHAT: History without barcode or name maps ErrBadRequest to 400.
	// WHY: The typed error must reach the HTTP status.
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/v1/history?days=7", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	// WHAT: /v1/history aggregates the ingested days.
	// WHY: End-to-end through the envelope.
	srv, cat := newTestServer(t)
	seedMilk(t, cat, "2025-06-01")
	seedMilk(t, cat, "2025-06-02")

	req := httptest.NewRequest("GET", "/v1/history?barcode=5901234123457&days=7", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		History []query.HistoryEntry `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.History) != 2 {
		t.Errorf("history: %+v", res.History)
	}
}

func TestStatusAndHealth(t *testing.T) {
	// WHAT: Status lists ingestions; health names the latest date.
	// WHY: Operators watch these two.
	srv, cat := newTestServer(t)
	seedMilk(t, cat, "2025-06-01")

	req := httptest.NewRequest("GET", "/v1/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint: %d", rec.Code)
	}
	var status struct {
		Ingestions []catalog.Ingestion `json:"ingestions"`
	}
	json.Unmarshal(rec.Body.Bytes(), &status)
	if len(status.Ingestions) != 1 || status.Ingestions[0].Status != "success" {
		t.Errorf("ingestions: %+v", status.Ingestions)
	}

	req = httptest.NewRequest("GET", "/v1/health", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health endpoint: %d", rec.Code)
	}
	var health struct {
		Status     string `json:"status"`
		LatestDate string `json:"latest_date"`
	}
	json.Unmarshal(rec.Body.Bytes(), &health)
	if health.Status != "ok" || health.LatestDate != "2025-06-01" {
		t.Errorf("health: %+v", health)
	}
}
