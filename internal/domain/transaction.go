package domain

import (
	"time"
)

// Transaction statuses.
const (
	TransactionPosted  = "posted"
	TransactionPending = "pending"
)

// Recurring transaction statuses.
const (
	RecurringActive = "active"
	RecurringPaused = "paused"
)

// Transaction is a single financial event recorded in the store.
//
// ID, CreatedAt and UpdatedAt may be left zero by callers; enrichment
// fills them before the write. Records are never mutated in place: an
// update is a fresh write with a refreshed UpdatedAt, resolved by the
// store's last-write-wins merge on id.
type Transaction struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Category  string  `json:"category"`
	Status    string  `json:"status"`
	AccountID string  `json:"accountId"`

	// Date is when the transaction occurred (distinct from CreatedAt).
	Date time.Time `json:"date"`

	Tags []string `json:"tags"`
	Note *string  `json:"note,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecurringTransaction is a scheduled transaction template used for
// cash-flow forecasting. Negative amounts are outflows.
type RecurringTransaction struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Frequency string  `json:"frequency"` // monthly, weekly, yearly
	Status    string  `json:"status"`
	AccountID string  `json:"accountId"`

	NextDue time.Time `json:"nextDue"`

	Tags []string `json:"tags"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TransactionFilter narrows a transaction listing. Nil/empty fields are
// absent: an absent list filter matches everything rather than nothing.
type TransactionFilter struct {
	Start      *time.Time
	End        *time.Time
	AccountIDs []string
	Statuses   []string
	Categories []string
	Limit      int
}

// RecurringFilter narrows a recurring-transaction listing.
type RecurringFilter struct {
	Statuses   []string
	AccountIDs []string
	Limit      int
}
