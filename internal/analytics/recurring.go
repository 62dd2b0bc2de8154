package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/chstore"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var recurringShape = chstore.RowShape{
	{Name: "id", Type: chstore.TypeString},
	{Name: "tenant_id", Type: chstore.TypeString},
	{Name: "name", Type: chstore.TypeString},
	{Name: "amount", Type: chstore.TypeFloat64},
	{Name: "currency", Type: chstore.TypeString},
	{Name: "frequency", Type: chstore.TypeString},
	{Name: "status", Type: chstore.TypeString},
	{Name: "account_id", Type: chstore.TypeString},
	{Name: "next_due", Type: chstore.TypeDateTime},
	{Name: "tags", Type: chstore.TypeStringArray},
	{Name: "created_at", Type: chstore.TypeDateTime},
	{Name: "updated_at", Type: chstore.TypeDateTime},
}

var qListRecurring = chstore.MustDef(chstore.QueryDef{
	Name: "recurring_list",
	Stmt: `
SELECT id, tenant_id, name, amount, currency, frequency, status, account_id,
       next_due, tags, created_at, updated_at
FROM recurring_transactions FINAL
WHERE tenant_id = {tenant_id:String}
  /*when:statuses*/
  /*when:account_ids*/
ORDER BY next_due ASC
LIMIT {limit:Int64}`,
	Params: []chstore.ParamSpec{
		{Name: "tenant_id", Type: "String", Required: true},
		{Name: "statuses", Type: "Array(String)", Fragment: "AND status IN ({statuses:Array(String)})"},
		{Name: "account_ids", Type: "Array(String)", Fragment: "AND account_id IN ({account_ids:Array(String)})"},
		{Name: "limit", Type: "Int64", Default: constInt(500)},
	},
	Shape: recurringShape,
})

var cashFlowShape = chstore.RowShape{
	{Name: "income", Type: chstore.TypeFloat64},
	{Name: "expenses", Type: chstore.TypeFloat64},
}

var qCashFlow = chstore.MustDef(chstore.QueryDef{
	Name: "recurring_cash_flow",
	Stmt: `
SELECT sumIf(amount, amount > 0) AS income,
       sumIf(-amount, amount < 0) AS expenses
FROM recurring_transactions FINAL
WHERE tenant_id = {tenant_id:String}
  AND status = 'active'
  AND next_due >= {from:Int64}
  AND next_due <= {until:Int64}`,
	Params: []chstore.ParamSpec{
		{Name: "tenant_id", Type: "String", Required: true},
		{Name: "from", Type: "Int64", Required: true},
		{Name: "until", Type: "Int64", Required: true},
	},
	Shape: cashFlowShape,
})

// DefaultForecastDays is the cash-flow horizon when the caller gives none.
const DefaultForecastDays = 30

// RecurringOps is the recurring-transaction area of the facade.
type RecurringOps struct {
	svc *Service
}

// Insert writes a single recurring transaction.
func (o *RecurringOps) Insert(ctx context.Context, tenantID string, rt domain.RecurringTransaction) error {
	return o.InsertMany(ctx, tenantID, []domain.RecurringTransaction{rt})
}

// InsertMany enriches, validates and writes a batch; empty batch is a
// no-op success.
func (o *RecurringOps) InsertMany(ctx context.Context, tenantID string, rts []domain.RecurringTransaction) error {
	if len(rts) == 0 {
		return nil
	}
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	enriched := enrichRecurring(rts, o.svc.now())
	rows := make([]chstore.Row, len(enriched))
	for i, rt := range enriched {
		rows[i] = recurringRow(tenantID, rt)
	}
	return o.svc.store.Insert(ctx, chstore.TableRecurringTransactions, recurringShape, rows)
}

// Update re-inserts with a refreshed updated_at (last-write-wins merge).
func (o *RecurringOps) Update(ctx context.Context, tenantID string, rt domain.RecurringTransaction) error {
	if rt.ID == "" {
		return fmt.Errorf("%w: id is required for update", domain.ErrInvalidInput)
	}
	rt.UpdatedAt = o.svc.now()
	return o.InsertMany(ctx, tenantID, []domain.RecurringTransaction{rt})
}

// Get lists recurring transactions matching the filter, soonest due
// first.
func (o *RecurringOps) Get(ctx context.Context, tenantID string, f domain.RecurringFilter) ([]domain.RecurringTransaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	args := map[string]any{"tenant_id": tenantID}
	if len(f.Statuses) > 0 {
		args["statuses"] = f.Statuses
	}
	if len(f.AccountIDs) > 0 {
		args["account_ids"] = f.AccountIDs
	}
	if f.Limit > 0 {
		args["limit"] = int64(f.Limit)
	}

	rows, err := o.svc.store.Query(ctx, qListRecurring, args)
	if err != nil {
		return nil, err
	}

	rts := make([]domain.RecurringTransaction, len(rows))
	for i, row := range rows {
		rts[i] = rowToRecurring(row)
	}
	return rts, nil
}

// CashFlowForecast sums active recurring transactions due within the
// horizon: positive amounts as projected income, absolute negative
// amounts as projected expenses. horizonDays <= 0 means the default
// 30-day window.
func (o *RecurringOps) CashFlowForecast(ctx context.Context, tenantID string, horizonDays int) (domain.CashFlowForecast, error) {
	if tenantID == "" {
		return domain.CashFlowForecast{}, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if horizonDays <= 0 {
		horizonDays = DefaultForecastDays
	}

	now := o.svc.now()
	args := map[string]any{
		"tenant_id": tenantID,
		"from":      now,
		"until":     now.Add(time.Duration(horizonDays) * 24 * time.Hour),
	}

	rows, err := o.svc.store.Query(ctx, qCashFlow, args)
	if err != nil {
		return domain.CashFlowForecast{}, err
	}

	forecast := domain.CashFlowForecast{HorizonDays: horizonDays}
	if len(rows) > 0 {
		forecast.ProjectedIncome = rowFloat(rows[0], "income")
		forecast.ProjectedExpenses = rowFloat(rows[0], "expenses")
	}
	forecast.NetCashFlow = forecast.ProjectedIncome - forecast.ProjectedExpenses
	return forecast, nil
}

func recurringRow(tenantID string, rt domain.RecurringTransaction) chstore.Row {
	return chstore.Row{
		"id":         rt.ID,
		"tenant_id":  tenantID,
		"name":       rt.Name,
		"amount":     rt.Amount,
		"currency":   rt.Currency,
		"frequency":  rt.Frequency,
		"status":     rt.Status,
		"account_id": rt.AccountID,
		"next_due":   rt.NextDue,
		"tags":       rt.Tags,
		"created_at": rt.CreatedAt,
		"updated_at": rt.UpdatedAt,
	}
}

func rowToRecurring(row chstore.Row) domain.RecurringTransaction {
	return domain.RecurringTransaction{
		ID:        rowString(row, "id"),
		TenantID:  rowString(row, "tenant_id"),
		Name:      rowString(row, "name"),
		Amount:    rowFloat(row, "amount"),
		Currency:  rowString(row, "currency"),
		Frequency: rowString(row, "frequency"),
		Status:    rowString(row, "status"),
		AccountID: rowString(row, "account_id"),
		NextDue:   rowTime(row, "next_due"),
		Tags:      rowStrings(row, "tags"),
		CreatedAt: rowTime(row, "created_at"),
		UpdatedAt: rowTime(row, "updated_at"),
	}
}
