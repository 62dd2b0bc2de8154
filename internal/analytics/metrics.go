package analytics

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/chstore"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var metricShape = chstore.RowShape{
	{Name: "id", Type: chstore.TypeString},
	{Name: "tenant_id", Type: chstore.TypeString},
	{Name: "date", Type: chstore.TypeDateTime},
	{Name: "mrr", Type: chstore.TypeFloat64},
	{Name: "arr", Type: chstore.TypeFloat64},
	{Name: "new_customers", Type: chstore.TypeInt64},
	{Name: "churned_customers", Type: chstore.TypeInt64},
	{Name: "total_customers", Type: chstore.TypeInt64},
	{Name: "revenue", Type: chstore.TypeFloat64},
	{Name: "expenses", Type: chstore.TypeFloat64},
	{Name: "fixed_costs", Type: chstore.TypeFloat64},
	{Name: "variable_costs", Type: chstore.TypeFloat64},
	{Name: "created_at", Type: chstore.TypeDateTime},
	{Name: "updated_at", Type: chstore.TypeDateTime},
}

var qListMetrics = chstore.MustDef(chstore.QueryDef{
	Name: "metrics_list",
	Stmt: `
SELECT id, tenant_id, date, mrr, arr, new_customers, churned_customers,
       total_customers, revenue, expenses, fixed_costs, variable_costs,
       created_at, updated_at
FROM business_metrics FINAL
WHERE tenant_id = {tenant_id:String}
  AND date >= {start:Int64}
  AND date <= {end:Int64}
ORDER BY date DESC
LIMIT {limit:Int64}`,
	Params: []chstore.ParamSpec{
		{Name: "tenant_id", Type: "String", Required: true},
		{Name: "start", Type: "Int64", Default: monthsAgoMillis(12)},
		{Name: "end", Type: "Int64", Default: nowMillis},
		{Name: "limit", Type: "Int64", Default: constInt(100)},
	},
	Shape: metricShape,
})

var monthlySummaryShape = chstore.RowShape{
	{Name: "month", Type: chstore.TypeInt64},
	{Name: "revenue", Type: chstore.TypeFloat64},
	{Name: "expenses", Type: chstore.TypeFloat64},
}

// Trailing monthly revenue/expense summary, most recent month first.
// Feeds the cash-runway composition.
var qMonthlySummary = chstore.MustDef(chstore.QueryDef{
	Name: "metrics_monthly_summary",
	Stmt: `
SELECT toInt64(toYYYYMM(fromUnixTimestamp64Milli(date))) AS month,
       sum(revenue) AS revenue,
       sum(expenses) AS expenses
FROM business_metrics FINAL
WHERE tenant_id = {tenant_id:String}
  AND date >= {start:Int64}
GROUP BY month
ORDER BY month DESC
LIMIT {months:Int64}`,
	Params: []chstore.ParamSpec{
		{Name: "tenant_id", Type: "String", Required: true},
		{Name: "start", Type: "Int64", Default: monthsAgoMillis(12)},
		{Name: "months", Type: "Int64", Default: constInt(12)},
	},
	Shape: monthlySummaryShape,
})

var customerTotalsShape = chstore.RowShape{
	{Name: "new_customers", Type: chstore.TypeInt64},
	{Name: "churned_customers", Type: chstore.TypeInt64},
}

var qCustomerTotals = chstore.MustDef(chstore.QueryDef{
	Name: "metrics_customer_totals",
	Stmt: `
SELECT sum(new_customers) AS new_customers,
       sum(churned_customers) AS churned_customers
FROM business_metrics FINAL
WHERE tenant_id = {tenant_id:String}
  AND date >= {start:Int64}
  AND date <= {end:Int64}`,
	Params: []chstore.ParamSpec{
		{Name: "tenant_id", Type: "String", Required: true},
		{Name: "start", Type: "Int64", Default: monthsAgoMillis(12)},
		{Name: "end", Type: "Int64", Default: nowMillis},
	},
	Shape: customerTotalsShape,
})

var monthlyARPUShape = chstore.RowShape{
	{Name: "month", Type: chstore.TypeInt64},
	{Name: "mrr", Type: chstore.TypeFloat64},
	{Name: "customers", Type: chstore.TypeInt64},
}

var qMonthlyARPU = chstore.MustDef(chstore.QueryDef{
	Name: "metrics_monthly_arpu",
	Stmt: `
SELECT toInt64(toYYYYMM(fromUnixTimestamp64Milli(date))) AS month,
       sum(mrr) AS mrr,
       max(total_customers) AS customers
FROM business_metrics FINAL
WHERE tenant_id = {tenant_id:String}
  AND date >= {start:Int64}
  AND date <= {end:Int64}
GROUP BY month
ORDER BY month DESC`,
	Params: []chstore.ParamSpec{
		{Name: "tenant_id", Type: "String", Required: true},
		{Name: "start", Type: "Int64", Default: monthsAgoMillis(12)},
		{Name: "end", Type: "Int64", Default: nowMillis},
	},
	Shape: monthlyARPUShape,
})

var revenueTotalShape = chstore.RowShape{
	{Name: "total", Type: chstore.TypeFloat64},
}

// Total revenue is fetched separately from the grouped query: once
// grouping and filters apply, a windowed percentage-of-total can no
// longer be computed correctly inside a single statement.
var qRevenueTotal = chstore.MustDef(chstore.QueryDef{
	Name: "revenue_total",
	Stmt: `
SELECT sum(amount) AS total
FROM transactions FINAL
WHERE tenant_id = {tenant_id:String}
  AND status = 'posted'
  AND amount > 0
  AND date >= {start:Int64}
  AND date <= {end:Int64}`,
	Params: []chstore.ParamSpec{
		{Name: "tenant_id", Type: "String", Required: true},
		{Name: "start", Type: "Int64", Default: monthsAgoMillis(12)},
		{Name: "end", Type: "Int64", Default: nowMillis},
	},
	Shape: revenueTotalShape,
})

var revenueByCategoryShape = chstore.RowShape{
	{Name: "category", Type: chstore.TypeString},
	{Name: "revenue", Type: chstore.TypeFloat64},
}

var qRevenueByCategory = chstore.MustDef(chstore.QueryDef{
	Name: "revenue_by_category",
	Stmt: `
SELECT category,
       sum(amount) AS revenue
FROM transactions FINAL
WHERE tenant_id = {tenant_id:String}
  AND status = 'posted'
  AND amount > 0
  AND date >= {start:Int64}
  AND date <= {end:Int64}
GROUP BY category
ORDER BY revenue DESC`,
	Params: []chstore.ParamSpec{
		{Name: "tenant_id", Type: "String", Required: true},
		{Name: "start", Type: "Int64", Default: monthsAgoMillis(12)},
		{Name: "end", Type: "Int64", Default: nowMillis},
	},
	Shape: revenueByCategoryShape,
})

var costTypeShape = chstore.RowShape{
	{Name: "month", Type: chstore.TypeInt64},
	{Name: "fixed_costs", Type: chstore.TypeFloat64},
	{Name: "variable_costs", Type: chstore.TypeFloat64},
}

var qExpensesByCostType = chstore.MustDef(chstore.QueryDef{
	Name: "expenses_by_cost_type",
	Stmt: `
SELECT toInt64(toYYYYMM(fromUnixTimestamp64Milli(date))) AS month,
       sum(fixed_costs) AS fixed_costs,
       sum(variable_costs) AS variable_costs
FROM business_metrics FINAL
WHERE tenant_id = {tenant_id:String}
  AND date >= {start:Int64}
  AND date <= {end:Int64}
GROUP BY month
ORDER BY month DESC
LIMIT {months:Int64}`,
	Params: []chstore.ParamSpec{
		{Name: "tenant_id", Type: "String", Required: true},
		{Name: "start", Type: "Int64", Default: monthsAgoMillis(12)},
		{Name: "end", Type: "Int64", Default: nowMillis},
		{Name: "months", Type: "Int64", Default: constInt(12)},
	},
	Shape: costTypeShape,
})

// MetricOps is the business-metric area of the facade: raw snapshot
// reads/writes plus the composed metrics that need in-process
// arithmetic across query results.
type MetricOps struct {
	svc *Service
}

// Insert writes a single metric snapshot.
func (o *MetricOps) Insert(ctx context.Context, tenantID string, m domain.BusinessMetric) error {
	return o.InsertMany(ctx, tenantID, []domain.BusinessMetric{m})
}

// InsertMany enriches, validates and writes a batch; empty batch is a
// no-op success.
func (o *MetricOps) InsertMany(ctx context.Context, tenantID string, ms []domain.BusinessMetric) error {
	if len(ms) == 0 {
		return nil
	}
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	enriched := enrichMetrics(ms, o.svc.now())
	rows := make([]chstore.Row, len(enriched))
	for i, m := range enriched {
		rows[i] = metricRow(tenantID, m)
	}
	return o.svc.store.Insert(ctx, chstore.TableBusinessMetrics, metricShape, rows)
}

// RecordMonthly is the monthly-snapshot convenience path: when the
// caller supplies an MRR but no ARR, the ARR is derived as MRR x 12
// before the write.
func (o *MetricOps) RecordMonthly(ctx context.Context, tenantID string, m domain.BusinessMetric) error {
	if m.ARR == 0 && m.MRR != 0 {
		m.ARR = m.MRR * 12
	}
	return o.InsertMany(ctx, tenantID, []domain.BusinessMetric{m})
}

// Get lists metric snapshots matching the filter, newest first.
func (o *MetricOps) Get(ctx context.Context, tenantID string, f domain.MetricFilter) ([]domain.BusinessMetric, error) {
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
	if f.Limit > 0 {
		args["limit"] = int64(f.Limit)
	}

	rows, err := o.svc.store.Query(ctx, qListMetrics, args)
	if err != nil {
		return nil, err
	}

	ms := make([]domain.BusinessMetric, len(rows))
	for i, row := range rows {
		ms[i] = rowToMetric(row)
	}
	return ms, nil
}

// CashRunwayInput carries the caller-supplied pieces of the runway
// composition. BurnRate, when set, overrides the computed burn rate;
// the underlying query still runs because the growth fields need it.
type CashRunwayInput struct {
	CurrentCash float64
	BurnRate    *float64
}

// CashRunway composes the runway metric from up to 12 trailing months
// of revenue/expense history.
//
// Burn rate is the average of (expenses - revenue) over the most
// recent 3 available months (fewer if fewer exist, 0 if none). Runway
// is current cash over burn, clamped to 0 when burn <= 0: a negative
// burn means the business is growing cash and "infinite runway" is
// deliberately reported as 0, not infinity. Month-over-month growth is
// nil unless two months exist and the prior value is non-zero.
func (o *MetricOps) CashRunway(ctx context.Context, tenantID string, in CashRunwayInput) (domain.CashRunway, error) {
	if tenantID == "" {
		return domain.CashRunway{}, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	rows, err := o.svc.store.Query(ctx, qMonthlySummary, map[string]any{"tenant_id": tenantID})
	if err != nil {
		return domain.CashRunway{}, err
	}

	burn := 0.0
	if n := min(3, len(rows)); n > 0 {
		var sum float64
		for _, row := range rows[:n] {
			sum += rowFloat(row, "expenses") - rowFloat(row, "revenue")
		}
		burn = sum / float64(n)
	}
	if in.BurnRate != nil {
		burn = *in.BurnRate
	}

	runway := 0.0
	if burn > 0 {
		runway = in.CurrentCash / burn
	}

	out := domain.CashRunway{
		CurrentCash:  in.CurrentCash,
		BurnRate:     burn,
		RunwayMonths: runway,
	}
	if len(rows) >= 2 {
		out.RevenueGrowth = growthPct(rowFloat(rows[0], "revenue"), rowFloat(rows[1], "revenue"))
		out.ExpenseGrowth = growthPct(rowFloat(rows[0], "expenses"), rowFloat(rows[1], "expenses"))
	}
	return out, nil
}

// CustomerLifetimeValue composes CLV from customer totals and monthly
// ARPU. The churn rate is the cohort-proxy approximation (total
// churned over total new) kept deliberately as-is; downstream
// consumers depend on its exact numeric behavior. Every zero
// denominator propagates nil through the rest of the chain.
func (o *MetricOps) CustomerLifetimeValue(ctx context.Context, tenantID string, f domain.MetricFilter) (domain.CustomerLifetimeValue, error) {
	if tenantID == "" {
		return domain.CustomerLifetimeValue{}, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	args := map[string]any{"tenant_id": tenantID}
	if f.Start != nil {
		args["start"] = *f.Start
	}
	if f.End != nil {
		args["end"] = *f.End
	}

	totals, err := o.svc.store.Query(ctx, qCustomerTotals, args)
	if err != nil {
		return domain.CustomerLifetimeValue{}, err
	}

	monthly, err := o.svc.store.Query(ctx, qMonthlyARPU, args)
	if err != nil {
		return domain.CustomerLifetimeValue{}, err
	}

	var out domain.CustomerLifetimeValue

	var newCustomers, churned int64
	if len(totals) > 0 {
		newCustomers = rowInt(totals[0], "new_customers")
		churned = rowInt(totals[0], "churned_customers")
	}
	if newCustomers > 0 {
		churn := float64(churned) / float64(newCustomers)
		out.ChurnRate = &churn
	}

	var arpuSum float64
	var arpuMonths int
	for _, row := range monthly {
		customers := rowInt(row, "customers")
		if customers <= 0 {
			continue
		}
		arpuSum += rowFloat(row, "mrr") / float64(customers)
		arpuMonths++
	}
	if arpuMonths > 0 {
		arpu := arpuSum / float64(arpuMonths)
		out.ARPU = &arpu
	}

	if out.ChurnRate != nil && *out.ChurnRate > 0 {
		lifetime := 1 / *out.ChurnRate
		out.AvgLifetimeMonths = &lifetime
	}
	if out.ARPU != nil && out.AvgLifetimeMonths != nil {
		clv := *out.ARPU * *out.AvgLifetimeMonths
		out.CLV = &clv
	}
	return out, nil
}

// RevenueByCategory composes the category breakdown: total first, then
// the grouped query, then percentages in-process. A zero total yields
// 0 percentages; "no revenue" is a meaningful zero, not missing data.
func (o *MetricOps) RevenueByCategory(ctx context.Context, tenantID string, f domain.MetricFilter) ([]domain.CategoryRevenue, error) {
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

	totalRows, err := o.svc.store.Query(ctx, qRevenueTotal, args)
	if err != nil {
		return nil, err
	}
	var total float64
	if len(totalRows) > 0 {
		total = rowFloat(totalRows[0], "total")
	}

	catRows, err := o.svc.store.Query(ctx, qRevenueByCategory, args)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CategoryRevenue, len(catRows))
	for i, row := range catRows {
		revenue := rowFloat(row, "revenue")
		pct := 0.0
		if total > 0 {
			pct = revenue / total * 100
		}
		out[i] = domain.CategoryRevenue{
			Category:   rowString(row, "category"),
			Revenue:    revenue,
			Percentage: pct,
		}
	}
	return out, nil
}

// ExpensesByCostType composes the monthly fixed/variable breakdown.
// Percentages are 0 when a month's total is 0.
func (o *MetricOps) ExpensesByCostType(ctx context.Context, tenantID string, f domain.MetricFilter) ([]domain.CostTypeMonth, error) {
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
	if f.Limit > 0 {
		args["months"] = int64(f.Limit)
	}

	rows, err := o.svc.store.Query(ctx, qExpensesByCostType, args)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CostTypeMonth, len(rows))
	for i, row := range rows {
		fixed := rowFloat(row, "fixed_costs")
		variable := rowFloat(row, "variable_costs")
		total := fixed + variable
		month := domain.CostTypeMonth{
			Month:         formatMonth(rowInt(row, "month")),
			FixedCosts:    fixed,
			VariableCosts: variable,
			Total:         total,
		}
		if total > 0 {
			month.FixedPct = fixed / total * 100
			month.VariablePct = variable / total * 100
		}
		out[i] = month
	}
	return out, nil
}

// growthPct returns the month-over-month growth percentage, or nil
// when the prior value is 0 (undefined, never infinity).
func growthPct(current, prior float64) *float64 {
	if prior == 0 {
		return nil
	}
	pct := (current - prior) / prior * 100
	return &pct
}

// formatMonth renders a YYYYMM key as "YYYY-MM".
func formatMonth(ym int64) string {
	return fmt.Sprintf("%04d-%02d", ym/100, ym%100)
}

func metricRow(tenantID string, m domain.BusinessMetric) chstore.Row {
	return chstore.Row{
		"id":                m.ID,
		"tenant_id":         tenantID,
		"date":              m.Date,
		"mrr":               m.MRR,
		"arr":               m.ARR,
		"new_customers":     m.NewCustomers,
		"churned_customers": m.ChurnedCustomers,
		"total_customers":   m.TotalCustomers,
		"revenue":           m.Revenue,
		"expenses":          m.Expenses,
		"fixed_costs":       m.FixedCosts,
		"variable_costs":    m.VariableCosts,
		"created_at":        m.CreatedAt,
		"updated_at":        m.UpdatedAt,
	}
}

func rowToMetric(row chstore.Row) domain.BusinessMetric {
	return domain.BusinessMetric{
		ID:               rowString(row, "id"),
		TenantID:         rowString(row, "tenant_id"),
		Date:             rowTime(row, "date"),
		MRR:              rowFloat(row, "mrr"),
		ARR:              rowFloat(row, "arr"),
		NewCustomers:     rowInt(row, "new_customers"),
		ChurnedCustomers: rowInt(row, "churned_customers"),
		TotalCustomers:   rowInt(row, "total_customers"),
		Revenue:          rowFloat(row, "revenue"),
		Expenses:         rowFloat(row, "expenses"),
		FixedCosts:       rowFloat(row, "fixed_costs"),
		VariableCosts:    rowFloat(row, "variable_costs"),
		CreatedAt:        rowTime(row, "created_at"),
		UpdatedAt:        rowTime(row, "updated_at"),
	}
}
