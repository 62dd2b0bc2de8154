package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/analytics"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/chstore"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// fakeStore serves canned rows keyed by query name and counts calls.
type fakeStore struct {
	results map[string][]chstore.Row
	queries int
	inserts int
}

func (f *fakeStore) Query(ctx context.Context, def chstore.QueryDef, args map[string]any) ([]chstore.Row, error) {
	f.queries++
	return f.results[def.Name], nil
}

func (f *fakeStore) Insert(ctx context.Context, table string, shape chstore.RowShape, rows []chstore.Row) error {
	f.inserts++
	return nil
}

func (f *fakeStore) Exec(ctx context.Context, stmt string) error { return nil }
func (f *fakeStore) Ping(ctx context.Context) error              { return nil }
func (f *fakeStore) Close() error                                { return nil }

func newTestServer(t *testing.T, store *fakeStore) *Server {
	t.Helper()

	svc := analytics.New(store)
	c := cache.NewLRUCache(100)

	alertStore, err := alerts.Open(domain.AlertsConfig{
		SQLitePath: filepath.Join(t.TempDir(), "alerts.db"),
	})
	if err != nil {
		t.Fatalf("open alert store: %v", err)
	}
	t.Cleanup(func() { alertStore.Close() })

	engine, err := alerts.NewEngine()
	if err != nil {
		t.Fatalf("new alert engine: %v", err)
	}

	h := NewHandler(svc, c, alertStore, engine, time.Minute, "test")
	return NewServer("127.0.0.1:0", h)
}

func doRequest(t *testing.T, srv *Server, method, path, tenant string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if tenant != "" {
		req.Header.Set(TenantIDHeader, tenant)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := doRequest(t, srv, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"version":"test"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestTenantHeaderRequired(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/transactions", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing tenant header: status = %d", rec.Code)
	}

	// Health stays open without a tenant.
	if rec := doRequest(t, srv, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("health demanded a tenant: %d", rec.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	// Preflight short-circuits before tenant enforcement.
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transactions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), TenantIDHeader) {
		t.Errorf("allow-headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}

	// Normal responses carry the CORS headers too.
	rec = doRequest(t, srv, http.MethodGet, "/health", "", "")
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("CORS headers missing on normal response")
	}
}

func TestCreateTransaction(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, store)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/transactions", "t1",
		`{"name":"Stripe payout","amount":1200.5,"currency":"USD","category":"revenue"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if store.inserts != 1 {
		t.Errorf("inserts = %d", store.inserts)
	}
}

func TestCreateTransactionBadBody(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/transactions", "t1", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCreateTransactionBatch(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, store)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/transactions/batch", "t1",
		`[{"name":"a","amount":1},{"name":"b","amount":2}]`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp["count"] != 2.0 {
		t.Errorf("count = %v", resp["count"])
	}
}

func TestListTransactionsEmpty(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/transactions", "t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list should encode as [], got %s", rec.Body.String())
	}
}

func TestCashRunwayEndpoint(t *testing.T) {
	store := &fakeStore{results: map[string][]chstore.Row{
		"metrics_monthly_summary": {
			{"month": int64(202506), "revenue": 5000.0, "expenses": 20000.0},
		},
	}}
	srv := newTestServer(t, store)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/metrics/cash-runway?current_cash=100000", "t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var out domain.CashRunway
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if out.BurnRate != 15000 {
		t.Errorf("burn = %v", out.BurnRate)
	}
}

func TestCashRunwayRequiresCurrentCash(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/metrics/cash-runway", "t1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestDerivedMetricCached(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, store)

	const path = "/api/v1/metrics/clv?limit=6"
	if rec := doRequest(t, srv, http.MethodGet, path, "t1", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	after := store.queries

	if rec := doRequest(t, srv, http.MethodGet, path, "t1", ""); rec.Code != http.StatusOK {
		t.Fatalf("second request: %d", rec.Code)
	}
	if store.queries != after {
		t.Errorf("second request bypassed the cache: %d -> %d", after, store.queries)
	}

	// A different tenant must not see the cached entry.
	doRequest(t, srv, http.MethodGet, path, "t2", "")
	if store.queries == after {
		t.Error("cache leaked across tenants")
	}
}

func TestAlertRuleLifecycle(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/alerts", "t1",
		`{"id":"low-runway","name":"Low runway","expression":"runway_defined && runway_months < 6.0","enabled":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/alerts", "t1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "low-runway") {
		t.Fatalf("list: %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/alerts/low-runway", "t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/alerts", "t1", "")
	if strings.Contains(rec.Body.String(), "low-runway") {
		t.Errorf("deleted rule still listed: %s", rec.Body.String())
	}
}

func TestCreateAlertGeneratesID(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/alerts", "t1",
		`{"name":"Low runway","expression":"runway_months < 6.0","enabled":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatal("no id generated for new rule")
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/alerts", "t1", "")
	if !strings.Contains(rec.Body.String(), id) {
		t.Errorf("generated rule not listed: %s", rec.Body.String())
	}
}

func TestCreateAlertRejectsBadExpression(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/alerts", "t1",
		`{"id":"bad","expression":"runway_months +","enabled":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestEvaluateAlerts(t *testing.T) {
	store := &fakeStore{results: map[string][]chstore.Row{
		"metrics_monthly_summary": {
			{"month": int64(202506), "revenue": 5000.0, "expenses": 20000.0},
		},
		"recurring_cash_flow": {{"income": 1000.0, "expenses": 4000.0}},
	}}
	srv := newTestServer(t, store)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/alerts", "t1",
		`{"id":"low-runway","name":"Low runway","expression":"runway_defined && runway_months < 12.0","enabled":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule: %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/alerts/evaluate", "t1",
		`{"currentCash":100000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate: %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Results []domain.AlertResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	// 100000 cash / 15000 burn is under 12 months of runway.
	if !resp.Results[0].Triggered {
		t.Errorf("expected rule to trigger: %+v", resp.Results[0])
	}
}
