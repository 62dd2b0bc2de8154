package chstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var tracer = otel.Tracer("kestrel-chstore")

// Store is the read/write contract against the analytical store.
// Implementations must be safe for concurrent use; every call is a
// single round trip with no internal retry.
type Store interface {
	// Query binds args against the definition, executes it, and decodes
	// every returned row against the declared shape. One undecodable
	// row fails the whole call; partial financial data is never
	// returned.
	Query(ctx context.Context, def QueryDef, args map[string]any) ([]Row, error)

	// Insert validates the full batch against the shape and writes it.
	// One invalid record fails the batch with nothing written. An empty
	// batch is a no-op success.
	Insert(ctx context.Context, table string, shape RowShape, rows []Row) error

	// Exec runs a raw statement (schema DDL). Not for data paths.
	Exec(ctx context.Context, stmt string) error

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases idle connections.
	Close() error
}

// Client talks to ClickHouse over its HTTP interface. Statements carry
// {name:Type} placeholders; values travel as param_* fields so the
// server does the binding, so caller data never lands in statement text.
// Results come back as JSONEachRow, one self-describing object per row.
type Client struct {
	readURL  *url.URL
	writeURL *url.URL
	user     string
	password string
	httpc    *http.Client
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithClock injects the clock used to evaluate dynamic parameter
// defaults. Tests pin it for deterministic bind output.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New builds a Store from configuration. A fully absent configuration
// degrades to a no-op store (analytics are optional in some
// deployments); only a malformed URL is an error.
func New(cfg domain.StoreConfig, opts ...Option) (Store, error) {
	readRaw := cfg.ReadURL
	if readRaw == "" {
		readRaw = cfg.URL
	}
	writeRaw := cfg.WriteURL
	if writeRaw == "" {
		writeRaw = cfg.URL
	}
	if readRaw == "" && writeRaw == "" {
		slog.Info("no clickhouse endpoint configured, store disabled")
		return Noop{}, nil
	}
	if readRaw == "" || writeRaw == "" {
		return nil, fmt.Errorf("split store config needs both read and write URLs")
	}

	readURL, user, pass, err := parseEndpoint(readRaw)
	if err != nil {
		return nil, fmt.Errorf("read endpoint: %w", err)
	}
	writeURL, wuser, wpass, err := parseEndpoint(writeRaw)
	if err != nil {
		return nil, fmt.Errorf("write endpoint: %w", err)
	}
	if user == "" {
		user, pass = wuser, wpass
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		readURL:  readURL,
		writeURL: writeURL,
		user:     user,
		password: pass,
		httpc:    &http.Client{Timeout: timeout},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// parseEndpoint splits credentials out of the URL so they go over
// basic auth instead of riding in every request line.
func parseEndpoint(raw string) (*url.URL, string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
		u.User = nil
	}
	return u, user, pass, nil
}

// Query implements Store.
func (c *Client) Query(ctx context.Context, def QueryDef, args map[string]any) ([]Row, error) {
	stmt, params, err := bindQuery(def, args, c.now())
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "chstore.query")
	span.SetAttributes(attribute.String("query.name", def.Name))
	defer span.End()

	start := time.Now()
	body, status, err := c.roundTrip(ctx, c.readURL, params, stmt+" FORMAT JSONEachRow")
	if err != nil {
		return nil, &domain.QueryError{Query: def.Name, Message: err.Error()}
	}
	defer body.Close()

	if status != http.StatusOK {
		return nil, &domain.QueryError{Query: def.Name, Status: status, Message: readErrorBody(body)}
	}

	rows, err := decodeRows(def.Shape, body)
	if err != nil {
		return nil, err
	}

	slog.Debug("store query",
		"query", def.Name,
		"rows", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rows, nil
}

func decodeRows(shape RowShape, body io.Reader) ([]Row, error) {
	var rows []Row
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, &domain.DecodeError{Column: "", Reason: fmt.Sprintf("malformed result row: %v", err)}
		}
		row, err := decodeRow(shape, raw)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, &domain.DecodeError{Column: "", Reason: fmt.Sprintf("reading result: %v", err)}
	}
	return rows, nil
}

// Insert implements Store.
func (c *Client) Insert(ctx context.Context, table string, shape RowShape, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	// Validate and encode the whole batch before touching the network.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, row := range rows {
		wire, err := encodeRow(shape, row)
		if err != nil {
			return &domain.InsertError{
				Table:   table,
				Message: fmt.Sprintf("record %d failed validation", i),
				Err:     err,
			}
		}
		if err := enc.Encode(wire); err != nil {
			return &domain.InsertError{Table: table, Message: "encoding batch", Err: err}
		}
	}

	ctx, span := tracer.Start(ctx, "chstore.insert")
	span.SetAttributes(
		attribute.String("table", table),
		attribute.Int("rows", len(rows)),
	)
	defer span.End()

	start := time.Now()
	params := map[string]string{
		"query": fmt.Sprintf("INSERT INTO %s FORMAT JSONEachRow", table),
	}
	body, status, err := c.roundTrip(ctx, c.writeURL, params, buf.String())
	if err != nil {
		return &domain.InsertError{Table: table, Message: err.Error()}
	}
	defer body.Close()

	if status != http.StatusOK {
		return &domain.InsertError{Table: table, Status: status, Message: readErrorBody(body)}
	}

	slog.Debug("store insert",
		"table", table,
		"rows", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Exec implements Store.
func (c *Client) Exec(ctx context.Context, stmt string) error {
	body, status, err := c.roundTrip(ctx, c.writeURL, nil, stmt)
	if err != nil {
		return &domain.QueryError{Query: "exec", Message: err.Error()}
	}
	defer body.Close()
	if status != http.StatusOK {
		return &domain.QueryError{Query: "exec", Status: status, Message: readErrorBody(body)}
	}
	return nil
}

// Ping implements Store.
func (c *Client) Ping(ctx context.Context) error {
	body, status, err := c.roundTrip(ctx, c.readURL, nil, "SELECT 1")
	if err != nil {
		return err
	}
	defer body.Close()
	if status != http.StatusOK {
		return fmt.Errorf("store ping failed (status %d): %s", status, readErrorBody(body))
	}
	return nil
}

// Close implements Store.
func (c *Client) Close() error {
	c.httpc.CloseIdleConnections()
	return nil
}

// roundTrip posts the statement body with params on the query string.
func (c *Client) roundTrip(ctx context.Context, endpoint *url.URL, params map[string]string, payload string) (io.ReadCloser, int, error) {
	u := *endpoint
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.StatusCode, nil
}

func readErrorBody(body io.Reader) string {
	msg, _ := io.ReadAll(io.LimitReader(body, 4096))
	return strings.TrimSpace(string(msg))
}
