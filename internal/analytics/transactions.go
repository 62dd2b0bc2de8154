package analytics

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/chstore"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var transactionShape = chstore.RowShape{
	{Name: "id", Type: chstore.TypeString},
	{Name: "tenant_id", Type: chstore.TypeString},
	{Name: "name", Type: chstore.TypeString},
	{Name: "amount", Type: chstore.TypeFloat64},
	{Name: "currency", Type: chstore.TypeString},
	{Name: "category", Type: chstore.TypeString},
	{Name: "status", Type: chstore.TypeString},
	{Name: "account_id", Type: chstore.TypeString},
	{Name: "date", Type: chstore.TypeDateTime},
	{Name: "tags", Type: chstore.TypeStringArray},
	{Name: "note", Type: chstore.TypeString, Nullable: true},
	{Name: "created_at", Type: chstore.TypeDateTime},
	{Name: "updated_at", Type: chstore.TypeDateTime},
}

var qListTransactions = chstore.MustDef(chstore.QueryDef{
	Name: "transactions_list",
	Stmt: `
SELECT id, tenant_id, name, amount, currency, category, status, account_id,
       date, tags, note, created_at, updated_at
FROM transactions FINAL
WHERE tenant_id = {tenant_id:String}
  AND date >= {start:Int64}
  AND date <= {end:Int64}
  /*when:account_ids*/
  /*when:statuses*/
  /*when:categories*/
ORDER BY date DESC
LIMIT {limit:Int64}`,
	Params: []chstore.ParamSpec{
		{Name: "tenant_id", Type: "String", Required: true},
		{Name: "start", Type: "Int64", Default: monthsAgoMillis(12)},
		{Name: "end", Type: "Int64", Default: nowMillis},
		{Name: "account_ids", Type: "Array(String)", Fragment: "AND account_id IN ({account_ids:Array(String)})"},
		{Name: "statuses", Type: "Array(String)", Fragment: "AND status IN ({statuses:Array(String)})"},
		{Name: "categories", Type: "Array(String)", Fragment: "AND category IN ({categories:Array(String)})"},
		{Name: "limit", Type: "Int64", Default: constInt(500)},
	},
	Shape: transactionShape,
})

// TransactionOps is the transaction area of the facade.
type TransactionOps struct {
	svc *Service
}

// Insert writes a single transaction. Errors from the batch path pass
// through unchanged.
func (o *TransactionOps) Insert(ctx context.Context, tenantID string, tx domain.Transaction) error {
	return o.InsertMany(ctx, tenantID, []domain.Transaction{tx})
}

// InsertMany enriches, validates and writes a batch. An empty batch is
// a no-op success. One invalid record fails the whole batch with
// nothing written.
func (o *TransactionOps) InsertMany(ctx context.Context, tenantID string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	enriched := enrichTransactions(txs, o.svc.now())
	rows := make([]chstore.Row, len(enriched))
	for i, tx := range enriched {
		rows[i] = transactionRow(tenantID, tx)
	}
	return o.svc.store.Insert(ctx, chstore.TableTransactions, transactionShape, rows)
}

// Update re-inserts the record with a refreshed updated_at. The store's
// merge engine resolves the duplicate id by latest updated_at; there is
// no read-modify-write and the previous row may still be visible to
// queries for a short while.
func (o *TransactionOps) Update(ctx context.Context, tenantID string, tx domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: id is required for update", domain.ErrInvalidInput)
	}
	tx.UpdatedAt = o.svc.now()
	return o.InsertMany(ctx, tenantID, []domain.Transaction{tx})
}

// Get lists transactions matching the filter, newest first. Absent
// list filters match everything.
func (o *TransactionOps) Get(ctx context.Context, tenantID string, f domain.TransactionFilter) ([]domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	args := map[string]any{"tenant_id": tenantID}
	if f.Start != nil {
		args["start"] = *f.Start
	}
	if f.End != nil {
		args["end"] = *f.End
	}
	if len(f.AccountIDs) > 0 {
		args["account_ids"] = f.AccountIDs
	}
	if len(f.Statuses) > 0 {
		args["statuses"] = f.Statuses
	}
	if len(f.Categories) > 0 {
		args["categories"] = f.Categories
	}
	if f.Limit > 0 {
		args["limit"] = int64(f.Limit)
	}

	rows, err := o.svc.store.Query(ctx, qListTransactions, args)
	if err != nil {
		return nil, err
	}

	txs := make([]domain.Transaction, len(rows))
	for i, row := range rows {
		txs[i] = rowToTransaction(row)
	}
	return txs, nil
}

func transactionRow(tenantID string, tx domain.Transaction) chstore.Row {
	row := chstore.Row{
		"id":         tx.ID,
		"tenant_id":  tenantID,
		"name":       tx.Name,
		"amount":     tx.Amount,
		"currency":   tx.Currency,
		"category":   tx.Category,
		"status":     tx.Status,
		"account_id": tx.AccountID,
		"date":       tx.Date,
		"tags":       tx.Tags,
		"created_at": tx.CreatedAt,
		"updated_at": tx.UpdatedAt,
	}
	if tx.Note != nil {
		row["note"] = *tx.Note
	}
	return row
}

func rowToTransaction(row chstore.Row) domain.Transaction {
	return domain.Transaction{
		ID:        rowString(row, "id"),
		TenantID:  rowString(row, "tenant_id"),
		Name:      rowString(row, "name"),
		Amount:    rowFloat(row, "amount"),
		Currency:  rowString(row, "currency"),
		Category:  rowString(row, "category"),
		Status:    rowString(row, "status"),
		AccountID: rowString(row, "account_id"),
		Date:      rowTime(row, "date"),
		Tags:      rowStrings(row, "tags"),
		Note:      rowStringPtr(row, "note"),
		CreatedAt: rowTime(row, "created_at"),
		UpdatedAt: rowTime(row, "updated_at"),
	}
}
