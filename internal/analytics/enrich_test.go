package analytics

import (
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var enrichNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestEnrichTransactionsDefaults(t *testing.T) {
	out := enrichTransactions([]domain.Transaction{
		{Name: "Stripe payout", Amount: 1200},
		{Name: "AWS", Amount: -300},
	}, enrichNow)

	if out[0].ID == "" || out[1].ID == "" {
		t.Fatal("ids not generated")
	}
	if out[0].ID == out[1].ID {
		t.Error("generated ids collide")
	}
	for i, tx := range out {
		if tx.Status != domain.TransactionPosted {
			t.Errorf("record %d: status = %q", i, tx.Status)
		}
		if tx.Tags == nil {
			t.Errorf("record %d: tags not defaulted to empty list", i)
		}
		if !tx.Date.Equal(enrichNow) || !tx.CreatedAt.Equal(enrichNow) || !tx.UpdatedAt.Equal(enrichNow) {
			t.Errorf("record %d: timestamps not shared with the batch clock", i)
		}
	}
}

func TestEnrichTransactionsIdempotent(t *testing.T) {
	earlier := enrichNow.AddDate(0, -2, 0)
	full := domain.Transaction{
		ID:        "tx-1",
		Name:      "Rent",
		Amount:    -2000,
		Status:    domain.TransactionPending,
		Tags:      []string{"office"},
		Date:      earlier,
		CreatedAt: earlier,
		UpdatedAt: earlier,
	}

	out := enrichTransactions([]domain.Transaction{full}, enrichNow)

	if out[0].ID != "tx-1" || out[0].Status != domain.TransactionPending {
		t.Errorf("set fields were touched: %+v", out[0])
	}
	if !out[0].Date.Equal(earlier) || !out[0].CreatedAt.Equal(earlier) || !out[0].UpdatedAt.Equal(earlier) {
		t.Errorf("set timestamps were touched: %+v", out[0])
	}
}

func TestEnrichRecurringDefaults(t *testing.T) {
	out := enrichRecurring([]domain.RecurringTransaction{
		{Name: "Figma", Amount: -45},
	}, enrichNow)

	rt := out[0]
	if rt.ID == "" {
		t.Error("id not generated")
	}
	if rt.Status != domain.RecurringActive {
		t.Errorf("status = %q", rt.Status)
	}
	if rt.Frequency != "monthly" {
		t.Errorf("frequency = %q", rt.Frequency)
	}
	if !rt.NextDue.Equal(enrichNow) {
		t.Errorf("next due = %v", rt.NextDue)
	}
}

func TestEnrichMetricsDateSnapsToMonth(t *testing.T) {
	out := enrichMetrics([]domain.BusinessMetric{{MRR: 100}}, enrichNow)

	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !out[0].Date.Equal(want) {
		t.Errorf("date = %v, want start of month %v", out[0].Date, want)
	}
	if !out[0].CreatedAt.Equal(enrichNow) {
		t.Errorf("created_at = %v", out[0].CreatedAt)
	}
}
