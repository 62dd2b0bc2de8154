package chstore

import (
	"context"
)

// Noop is the store used when no ClickHouse endpoint is configured.
// Queries return empty success and writes succeed without writing, so
// deployments without analytics keep working instead of failing at
// construction time.
type Noop struct{}

// Query implements Store.
func (Noop) Query(ctx context.Context, def QueryDef, args map[string]any) ([]Row, error) {
	return nil, nil
}

// Insert implements Store.
func (Noop) Insert(ctx context.Context, table string, shape RowShape, rows []Row) error {
	return nil
}

// Exec implements Store.
func (Noop) Exec(ctx context.Context, stmt string) error { return nil }

// Ping implements Store.
func (Noop) Ping(ctx context.Context) error { return nil }

// Close implements Store.
func (Noop) Close() error { return nil }
