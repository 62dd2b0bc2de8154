package domain

import (
	"time"
)

// BusinessMetric is a point-in-time snapshot of the key numbers for a
// tenant, typically recorded once per month. Amounts of exactly 0 are
// meaningful values, not missing data.
type BusinessMetric struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Date anchors the snapshot (usually the first of the month).
	Date time.Time `json:"date"`

	MRR float64 `json:"mrr"`
	ARR float64 `json:"arr"`

	NewCustomers     int64 `json:"newCustomers"`
	ChurnedCustomers int64 `json:"churnedCustomers"`
	TotalCustomers   int64 `json:"totalCustomers"`

	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`

	FixedCosts    float64 `json:"fixedCosts"`
	VariableCosts float64 `json:"variableCosts"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MetricFilter narrows a business-metric listing.
type MetricFilter struct {
	Start *time.Time
	End   *time.Time
	Limit int
}

// CashRunway is the derived runway metric. Growth fields are nil when
// undefined (fewer than two months of history, or a zero prior month).
type CashRunway struct {
	CurrentCash   float64  `json:"currentCash"`
	BurnRate      float64  `json:"burnRate"`
	RunwayMonths  float64  `json:"runwayMonths"`
	RevenueGrowth *float64 `json:"revenueGrowth"`
	ExpenseGrowth *float64 `json:"expenseGrowth"`
}

// CustomerLifetimeValue is the derived CLV metric. Every field is nil
// when its denominator chain hit a zero, never NaN or infinity.
type CustomerLifetimeValue struct {
	ChurnRate         *float64 `json:"churnRate"`
	ARPU              *float64 `json:"arpu"`
	AvgLifetimeMonths *float64 `json:"avgLifetimeMonths"`
	CLV               *float64 `json:"clv"`
}

// CategoryRevenue is one row of the revenue-by-category breakdown.
// Percentage is 0 (not nil) when total revenue is 0: "no revenue" is a
// meaningful zero.
type CategoryRevenue struct {
	Category   string  `json:"category"`
	Revenue    float64 `json:"revenue"`
	Percentage float64 `json:"percentage"`
}

// CostTypeMonth is one month of the fixed/variable expense breakdown.
type CostTypeMonth struct {
	Month         string  `json:"month"` // YYYY-MM
	FixedCosts    float64 `json:"fixedCosts"`
	VariableCosts float64 `json:"variableCosts"`
	Total         float64 `json:"total"`
	FixedPct      float64 `json:"fixedPct"`
	VariablePct   float64 `json:"variablePct"`
}

// CashFlowForecast projects recurring transactions due within a horizon.
type CashFlowForecast struct {
	HorizonDays       int     `json:"horizonDays"`
	ProjectedIncome   float64 `json:"projectedIncome"`
	ProjectedExpenses float64 `json:"projectedExpenses"`
	NetCashFlow       float64 `json:"netCashFlow"`
}
