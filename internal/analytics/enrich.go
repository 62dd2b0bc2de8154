package analytics

import (
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Mutation enrichment: fill identifiers, timestamps and per-entity
// defaults on partially-specified records before write-side validation.
// Fields the caller already set are never touched, so enriching an
// already-complete record is a no-op. The caller passes one "now" per
// batch; every defaulted record in the batch shares it.

func enrichTransactions(txs []domain.Transaction, now time.Time) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		if tx.Status == "" {
			tx.Status = domain.TransactionPosted
		}
		if tx.Tags == nil {
			tx.Tags = []string{}
		}
		if tx.Date.IsZero() {
			tx.Date = now
		}
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = now
		}
		if tx.UpdatedAt.IsZero() {
			tx.UpdatedAt = now
		}
		out[i] = tx
	}
	return out
}

func enrichRecurring(rts []domain.RecurringTransaction, now time.Time) []domain.RecurringTransaction {
	out := make([]domain.RecurringTransaction, len(rts))
	for i, rt := range rts {
		if rt.ID == "" {
			rt.ID = uuid.NewString()
		}
		if rt.Status == "" {
			rt.Status = domain.RecurringActive
		}
		if rt.Frequency == "" {
			rt.Frequency = "monthly"
		}
		if rt.Tags == nil {
			rt.Tags = []string{}
		}
		if rt.NextDue.IsZero() {
			rt.NextDue = now
		}
		if rt.CreatedAt.IsZero() {
			rt.CreatedAt = now
		}
		if rt.UpdatedAt.IsZero() {
			rt.UpdatedAt = now
		}
		out[i] = rt
	}
	return out
}

func enrichMetrics(ms []domain.BusinessMetric, now time.Time) []domain.BusinessMetric {
	out := make([]domain.BusinessMetric, len(ms))
	for i, m := range ms {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Date.IsZero() {
			m.Date = startOfMonth(now)
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if m.UpdatedAt.IsZero() {
			m.UpdatedAt = now
		}
		out[i] = m
	}
	return out
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
