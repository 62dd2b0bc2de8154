package chstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var clientTestShape = RowShape{
	{Name: "id", Type: TypeString},
	{Name: "amount", Type: TypeFloat64},
	{Name: "active", Type: TypeBool},
}

var qClientTest = MustDef(QueryDef{
	Name: "client_test",
	Stmt: `SELECT id, amount, active FROM things WHERE tenant_id = {tenant_id:String}`,
	Params: []ParamSpec{
		{Name: "tenant_id", Type: "String", Required: true},
	},
	Shape: clientTestShape,
})

type recordedRequest struct {
	query   map[string]string
	body    string
	headers http.Header
}

// fakeStore stands in for the ClickHouse HTTP interface.
func fakeStore(t *testing.T, status int, response string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.query = map[string]string{}
		for k, v := range r.URL.Query() {
			rec.query[k] = v[0]
		}
		body, _ := io.ReadAll(r.Body)
		rec.body = string(body)
		rec.headers = r.Header.Clone()

		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTestClient(t *testing.T, baseURL string) Store {
	t.Helper()
	store, err := New(domain.StoreConfig{URL: baseURL},
		WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return store
}

func TestClientQuery(t *testing.T) {
	srv, rec := fakeStore(t, http.StatusOK, `{"id":"a","amount":10.5,"active":1}
{"id":"b","amount":-3,"active":0}
`)
	store := newTestClient(t, srv.URL)

	rows, err := store.Query(context.Background(), qClientTest, map[string]any{"tenant_id": "t1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["id"] != "a" || rows[0]["active"] != true {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	if rows[1]["amount"] != -3.0 {
		t.Errorf("unexpected second row: %v", rows[1])
	}

	// Values ride as param_* fields; the statement carries placeholders.
	if rec.query["param_tenant_id"] != "t1" {
		t.Errorf("param_tenant_id = %q", rec.query["param_tenant_id"])
	}
	if !strings.Contains(rec.body, "{tenant_id:String}") {
		t.Errorf("statement lost its placeholder: %s", rec.body)
	}
	if !strings.HasSuffix(strings.TrimSpace(rec.body), "FORMAT JSONEachRow") {
		t.Errorf("statement missing output format: %s", rec.body)
	}
}

func TestClientQueryServerError(t *testing.T) {
	srv, _ := fakeStore(t, http.StatusInternalServerError, "Code: 62. DB::Exception: Syntax error")
	store := newTestClient(t, srv.URL)

	_, err := store.Query(context.Background(), qClientTest, map[string]any{"tenant_id": "t1"})

	var queryErr *domain.QueryError
	if !errors.As(err, &queryErr) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if queryErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", queryErr.Status)
	}
	if !strings.Contains(queryErr.Message, "Syntax error") {
		t.Errorf("message lost server text: %q", queryErr.Message)
	}
}

func TestClientQueryBadRowFailsAll(t *testing.T) {
	// One undecodable row anywhere fails the whole result.
	srv, _ := fakeStore(t, http.StatusOK, `{"id":"a","amount":1,"active":0}
{"id":"b","amount":"not a number","active":0}
`)
	store := newTestClient(t, srv.URL)

	rows, err := store.Query(context.Background(), qClientTest, map[string]any{"tenant_id": "t1"})

	var decodeErr *domain.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if rows != nil {
		t.Errorf("partial rows returned alongside error: %v", rows)
	}
}

func TestClientInsert(t *testing.T) {
	srv, rec := fakeStore(t, http.StatusOK, "")
	store := newTestClient(t, srv.URL)

	rows := []Row{
		{"id": "a", "amount": 1.5, "active": true},
		{"id": "b", "amount": 2.5, "active": false},
	}
	if err := store.Insert(context.Background(), "things", clientTestShape, rows); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if rec.query["query"] != "INSERT INTO things FORMAT JSONEachRow" {
		t.Errorf("insert statement = %q", rec.query["query"])
	}
	lines := strings.Split(strings.TrimSpace(rec.body), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 body lines, got %d: %s", len(lines), rec.body)
	}
	if !strings.Contains(lines[0], `"active":1`) {
		t.Errorf("bool not wired as flag: %s", lines[0])
	}
}

func TestClientInsertEmptyBatch(t *testing.T) {
	srv, rec := fakeStore(t, http.StatusOK, "")
	store := newTestClient(t, srv.URL)

	if err := store.Insert(context.Background(), "things", clientTestShape, nil); err != nil {
		t.Fatalf("empty batch should succeed: %v", err)
	}
	if rec.body != "" || rec.query != nil {
		t.Error("empty batch reached the network")
	}
}

func TestClientInsertBadRecordWritesNothing(t *testing.T) {
	srv, rec := fakeStore(t, http.StatusOK, "")
	store := newTestClient(t, srv.URL)

	rows := []Row{
		{"id": "a", "amount": 1.5, "active": true},
		{"id": "b", "amount": "bad", "active": false},
	}
	err := store.Insert(context.Background(), "things", clientTestShape, rows)

	var insertErr *domain.InsertError
	if !errors.As(err, &insertErr) {
		t.Fatalf("expected InsertError, got %v", err)
	}
	if insertErr.Err == nil {
		t.Error("validation failure should carry the cause")
	}
	if rec.query != nil {
		t.Error("invalid batch reached the network")
	}
}

func TestClientBasicAuth(t *testing.T) {
	srv, rec := fakeStore(t, http.StatusOK, "")
	store, err := New(domain.StoreConfig{
		URL: strings.Replace(srv.URL, "http://", "http://reader:secret@", 1),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	auth := rec.headers.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		t.Errorf("credentials not sent over basic auth: %q", auth)
	}
}

func TestNewStoreConfig(t *testing.T) {
	// No endpoint at all: analytics degrade to a no-op store.
	store, err := New(domain.StoreConfig{})
	if err != nil {
		t.Fatalf("empty config should degrade, got %v", err)
	}
	if _, ok := store.(Noop); !ok {
		t.Fatalf("expected Noop store, got %T", store)
	}

	rows, err := store.Query(context.Background(), qClientTest, nil)
	if err != nil || len(rows) != 0 {
		t.Errorf("noop query: rows=%v err=%v", rows, err)
	}
	if err := store.Insert(context.Background(), "things", clientTestShape, []Row{{"id": "a"}}); err != nil {
		t.Errorf("noop insert: %v", err)
	}

	// Half a split topology is a configuration error.
	if _, err := New(domain.StoreConfig{ReadURL: "http://localhost:8123"}); err == nil {
		t.Error("expected error for read URL without write URL")
	}

	if _, err := New(domain.StoreConfig{URL: "ftp://localhost"}); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
