// Package analytics groups the typed store operations by business area
// (transactions, recurring transactions, business metrics) and layers
// the derived-metric composition on top.
package analytics

import (
	"context"
	"time"

	"github.com/opensource-finance/kestrel/internal/chstore"
)

// Service is the domain facade. It holds no mutable state between
// calls; every operation is a fresh bind/execute/decode round trip
// against the shared store, so one Service is safe for any number of
// concurrent callers.
type Service struct {
	store chstore.Store
	now   func() time.Time

	Transactions *TransactionOps
	Recurring    *RecurringOps
	Metrics      *MetricOps
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects the clock used for enrichment timestamps and
// dynamic query defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the facade over a store.
func New(store chstore.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Transactions = &TransactionOps{svc: s}
	s.Recurring = &RecurringOps{svc: s}
	s.Metrics = &MetricOps{svc: s}
	return s
}

// Ping checks the underlying store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Dynamic parameter defaults. Evaluated at bind time against the
// client's clock so queries stay deterministic under a pinned clock.

func nowMillis(now time.Time) any {
	return now.UnixMilli()
}

func monthsAgoMillis(n int) func(time.Time) any {
	return func(now time.Time) any {
		return now.AddDate(0, -n, 0).UnixMilli()
	}
}

func constInt(n int64) func(time.Time) any {
	return func(time.Time) any { return n }
}

// Row accessors. The decoder already enforced the declared types, so
// a failed assertion here just yields the zero value.

func rowString(r chstore.Row, key string) string {
	s, _ := r[key].(string)
	return s
}

func rowInt(r chstore.Row, key string) int64 {
	n, _ := r[key].(int64)
	return n
}

func rowFloat(r chstore.Row, key string) float64 {
	f, _ := r[key].(float64)
	return f
}

func rowTime(r chstore.Row, key string) time.Time {
	t, _ := r[key].(time.Time)
	return t
}

func rowStrings(r chstore.Row, key string) []string {
	arr, _ := r[key].([]string)
	if arr == nil {
		arr = []string{}
	}
	return arr
}

func rowStringPtr(r chstore.Row, key string) *string {
	if s, ok := r[key].(string); ok {
		return &s
	}
	return nil
}
