package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"marketplace-pricing/db/formstate"
	"marketplace-pricing/decision/catalog"
	"marketplace-pricing/decision/marketplace"
)

type stubCatalog struct {
	results  map[string][]catalog.Product
	products map[string]*catalog.Product
	err      error
}

func (c *stubCatalog) SearchProducts(_ context.Context, term string) ([]catalog.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.results[term], nil
}

func (c *stubCatalog) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return nil, errors.New("no such product")
	}
	return p, nil
}

func newTestCatalog() *stubCatalog {
	return &stubCatalog{
		results: map[string][]catalog.Product{
			"125": {
				{ID: "1", SKU: "12570", Name: "Caneca branca"},
			},
			"125-": {
				{ID: "2", SKU: "12570-KIT2", Name: "Kit 2 canecas"},
			},
			"12570": {
				{ID: "2", SKU: "12570-KIT2", Name: "Kit 2 canecas"},
				{ID: "1", SKU: "12570", Name: "Caneca branca"},
			},
		},
		products: map[string]*catalog.Product{
			"1": {ID: "1", SKU: "12570", Name: "Caneca branca", CostPrice: decimal.RequireFromString("12.5")},
		},
	}
}

func newTestServer(t *testing.T, c catalog.Catalog, cfg *Config) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(
		marketplace.NewCalculator(nil),
		catalog.NewResolver(c, zerolog.Nop()),
		formstate.NewMemory(),
		cfg,
		zerolog.Nop(),
	)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, newTestCatalog(), nil)

	resp := do(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}

	resp = do(t, http.MethodGet, ts.URL+"/ready", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", resp.StatusCode)
	}
}

func TestReadyReportsFailingCheck(t *testing.T) {
	s, ts := newTestServer(t, newTestCatalog(), nil)
	s.WithReadinessCheck("clickhouse", func(context.Context) error { return errors.New("down") })

	resp := do(t, http.MethodGet, ts.URL+"/ready", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	_, ts := newTestServer(t, newTestCatalog(), nil)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected echoed id, got %q", got)
	}
}

func TestCostLookup(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		_, ts := newTestServer(t, newTestCatalog(), nil)

		resp := do(t, http.MethodGet, ts.URL+"/preco-custo/12570", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var body map[string]any
		decode(t, resp, &body)
		if body["sku"] != "12570" || body["nome"] != "Caneca branca" || body["preco_custo"] != 12.5 {
			t.Fatalf("unexpected body %v", body)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, ts := newTestServer(t, newTestCatalog(), nil)

		resp := do(t, http.MethodGet, ts.URL+"/preco-custo/999", "")
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.StatusCode)
		}
		var body map[string]string
		decode(t, resp, &body)
		if body["erro"] != "Produto não encontrado" {
			t.Fatalf("unexpected body %v", body)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		_, ts := newTestServer(t, &stubCatalog{err: errors.New("timeout")}, nil)

		resp := do(t, http.MethodGet, ts.URL+"/preco-custo/12570", "")
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", resp.StatusCode)
		}
		var body map[string]string
		decode(t, resp, &body)
		if body["erro"] != "Erro ao consultar Tiny" {
			t.Fatalf("unexpected body %v", body)
		}
	})
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name       string
		catalog    *stubCatalog
		query      string
		wantStatus int
		wantSKUs   []string
	}{
		{"composite suffix", newTestCatalog(), "?q=125&field=sku", http.StatusOK, []string{"12570", "12570-KIT2"}},
		{"empty query", newTestCatalog(), "?q=", http.StatusOK, []string{}},
		{"no match", newTestCatalog(), "?q=xyz", http.StatusOK, []string{}},
		{"upstream failure", &stubCatalog{err: errors.New("boom")}, "?q=125", http.StatusInternalServerError, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, tt.catalog, nil)

			resp := do(t, http.MethodGet, ts.URL+"/search"+tt.query, "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}

			var items []SearchItem
			decode(t, resp, &items)
			if items == nil {
				t.Fatal("expected a JSON array, got null")
			}
			if len(items) != len(tt.wantSKUs) {
				t.Fatalf("expected %v, got %+v", tt.wantSKUs, items)
			}
			for i, sku := range tt.wantSKUs {
				if items[i].SKU != sku {
					t.Errorf("position %d: expected %s, got %s", i, sku, items[i].SKU)
				}
			}
		})
	}
}

func TestQuote(t *testing.T) {
	_, ts := newTestServer(t, newTestCatalog(), nil)

	tests := []struct {
		name       string
		body       string
		wantPrices []string
		wantValid  bool
	}{
		{"shopee", `{"marketplace":"shopee","fields":{"custo":"30","margem_lucro":"15"}}`, []string{"52.31"}, true},
		{"mercado livre tiers", `{"marketplace":"ml","fields":{"custo":"100","margem_lucro":"30"}}`, []string{"146.07", "154.76"}, true},
		{"magalu", `{"marketplace":"magalu","fields":{"custo":"50","margem_lucro":"10","comissao":"10"}}`, []string{"61.11"}, true},
		{"overflow", `{"marketplace":"magalu","fields":{"custo":"50","comissao":"100"}}`, []string{"0.00"}, false},
		{"exponent cost reads as zero", `{"marketplace":"magalu","fields":{"custo":"1e200000","margem_lucro":"10","comissao":"10"}}`, []string{"0.00"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.URL+"/api/v1/quote", tt.body)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}

			var body QuoteResponse
			decode(t, resp, &body)
			if len(body.Quotes) != len(tt.wantPrices) {
				t.Fatalf("expected %d quotes, got %d", len(tt.wantPrices), len(body.Quotes))
			}
			for i, want := range tt.wantPrices {
				q := body.Quotes[i]
				if q.SalePrice != want || q.Valid != tt.wantValid {
					t.Errorf("quote %d: expected %s valid=%v, got %s valid=%v", i, want, tt.wantValid, q.SalePrice, q.Valid)
				}
				if !tt.wantValid && (q.Notice == nil || q.Notice.Code != "DEDUCTION_OVERFLOW") {
					t.Errorf("expected an overflow notice, got %+v", q.Notice)
				}
			}
		})
	}
}

func TestQuoteWithSimulation(t *testing.T) {
	_, ts := newTestServer(t, newTestCatalog(), nil)

	resp := do(t, http.MethodPost, ts.URL+"/api/v1/quote",
		`{"marketplace":"shopee","fields":{"custo":"30","margem_lucro":"15"},"simulate":true}`)
	var body QuoteResponse
	decode(t, resp, &body)

	q := body.Quotes[0]
	if q.Solution == nil || q.Solution.Bracket != 0 || !q.Solution.Converged {
		t.Fatalf("unexpected solution %+v", q.Solution)
	}
	if len(q.Simulation) != 2 {
		t.Fatalf("expected 2 simulation rows, got %d", len(q.Simulation))
	}
	if higher := q.Simulation[1]; higher.Label != marketplace.SimHigher || higher.TestPrice != "80.00" || higher.Profit != "22.80" {
		t.Fatalf("unexpected higher row %+v", higher)
	}
	if q.SalePriceDisplay != "R$ 52,31" {
		t.Fatalf("unexpected display %q", q.SalePriceDisplay)
	}
}

func TestQuoteUsesStoredForm(t *testing.T) {
	_, ts := newTestServer(t, newTestCatalog(), nil)

	resp := do(t, http.MethodPut, ts.URL+"/api/v1/state/shopee", `{"custo":"30","margem_lucro":"15"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodPost, ts.URL+"/api/v1/quote", `{"marketplace":"shopee"}`)
	var body QuoteResponse
	decode(t, resp, &body)
	if body.Quotes[0].SalePrice != "52.31" {
		t.Fatalf("expected 52.31, got %s", body.Quotes[0].SalePrice)
	}
}

func TestQuoteRejectsBadRequests(t *testing.T) {
	_, ts := newTestServer(t, newTestCatalog(), nil)

	for _, body := range []string{`{"marketplace":"amazon"}`, `not json`} {
		resp := do(t, http.MethodPost, ts.URL+"/api/v1/quote", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestBrackets(t *testing.T) {
	_, ts := newTestServer(t, newTestCatalog(), nil)

	resp := do(t, http.MethodGet, ts.URL+"/api/v1/brackets", "")
	var body BracketsResponse
	decode(t, resp, &body)

	if body.Source != SourceBuiltin || len(body.Brackets) != 4 {
		t.Fatalf("unexpected response %+v", body)
	}
	first, last := body.Brackets[0], body.Brackets[3]
	if first.MaxPrice != "80.00" || first.CommissionRate != "0.2000" || first.FixedFee != "4.00" {
		t.Errorf("unexpected first bracket %+v", first)
	}
	if last.MaxPrice != "" || last.FixedFee != "26.00" {
		t.Errorf("unexpected last bracket %+v", last)
	}
}

func TestState(t *testing.T) {
	_, ts := newTestServer(t, newTestCatalog(), nil)

	resp := do(t, http.MethodPut, ts.URL+"/api/v1/state/ml", `{"custo":"10","categoria":"isenta","bogus":"1"}`)
	var saved StateResponse
	decode(t, resp, &saved)
	if _, ok := saved.Fields["bogus"]; ok {
		t.Fatal("unknown fields must be dropped")
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/state/ml", "")
	var got StateResponse
	decode(t, resp, &got)
	if got.Marketplace != marketplace.MercadoLivre || got.Fields["categoria"] != "isenta" || got.Fields["custo"] != "10" {
		t.Fatalf("unexpected state %+v", got)
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/state/amazon", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown marketplace, got %d", resp.StatusCode)
	}
}

func TestSharedState(t *testing.T) {
	_, ts := newTestServer(t, newTestCatalog(), nil)

	resp := do(t, http.MethodPut, ts.URL+"/api/v1/state/shared", `{"field":"custo","value":"R$ 12.5"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var forms []StateResponse
	decode(t, resp, &forms)
	if len(forms) != 3 {
		t.Fatalf("expected 3 forms, got %d", len(forms))
	}
	for _, f := range forms {
		if f.Fields["custo"] != "12,5" {
			t.Errorf("%s: expected 12,5, got %q", f.Marketplace, f.Fields["custo"])
		}
	}

	resp = do(t, http.MethodPut, ts.URL+"/api/v1/state/shared", `{"field":"comissao","value":"10"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CORSOrigins = []string{"http://allowed.test"}
	_, ts := newTestServer(t, newTestCatalog(), cfg)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/quote", nil)
	req.Header.Set("Origin", "http://allowed.test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://allowed.test" {
		t.Fatalf("expected allowed origin, got %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}

	req.Header.Set("Origin", "http://other.test")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected CORS header for a foreign origin")
	}
}

func TestStaticDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>calc</h1>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := DefaultConfig()
	cfg.StaticDir = dir
	_, ts := newTestServer(t, newTestCatalog(), cfg)

	resp := do(t, http.MethodGet, ts.URL+"/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGracefulShutdownWithCancelledContext(t *testing.T) {
	for i := 0; i < 20; i++ {
		cfg := DefaultConfig()
		cfg.Port = 0
		s, _ := newTestServer(t, newTestCatalog(), cfg)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := s.StartWithGracefulShutdown(ctx); err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
	}
}
