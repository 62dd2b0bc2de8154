package chstore

import (
	"context"
)

// Table names. Fixed constants; table names never come from callers.
const (
	TableTransactions          = "transactions"
	TableRecurringTransactions = "recurring_transactions"
	TableBusinessMetrics       = "business_metrics"
)

// Schema DDL for the analytical tables.
//
// All tables use ReplacingMergeTree(updated_at) keyed on (tenant_id, id):
// an "update" is a re-insert with a refreshed updated_at and the merge
// engine keeps the latest version. Timestamps are epoch-millisecond
// Int64 columns. Reads use FINAL to collapse unmerged duplicates; a
// write is still not guaranteed visible to an immediately following
// query (background flush latency) and this layer deliberately does
// not poll to hide that.
const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id String,
    tenant_id String,
    name String,
    amount Float64,
    currency String,
    category String,
    status String,
    account_id String,
    date Int64,
    tags Array(String),
    note Nullable(String),
    created_at Int64,
    updated_at Int64
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (tenant_id, id)
`

const schemaRecurringTransactions = `
CREATE TABLE IF NOT EXISTS recurring_transactions (
    id String,
    tenant_id String,
    name String,
    amount Float64,
    currency String,
    frequency String,
    status String,
    account_id String,
    next_due Int64,
    tags Array(String),
    created_at Int64,
    updated_at Int64
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (tenant_id, id)
`

const schemaBusinessMetrics = `
CREATE TABLE IF NOT EXISTS business_metrics (
    id String,
    tenant_id String,
    date Int64,
    mrr Float64,
    arr Float64,
    new_customers Int64,
    churned_customers Int64,
    total_customers Int64,
    revenue Float64,
    expenses Float64,
    fixed_costs Float64,
    variable_costs Float64,
    created_at Int64,
    updated_at Int64
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (tenant_id, id)
`

// AllSchemas returns the DDL statements in creation order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRecurringTransactions,
		schemaBusinessMetrics,
	}
}

// Migrate applies the schema DDL. Used by operators and the
// integration test harness; a no-op against a disabled store.
func Migrate(ctx context.Context, s Store) error {
	for _, schema := range AllSchemas() {
		if err := s.Exec(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}
