package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/chstore"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestTransactionGetBuildsFilterArgs(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)

	start := enrichNow.AddDate(0, -1, 0)
	_, err := svc.Transactions.Get(context.Background(), "t1", domain.TransactionFilter{
		Start:      &start,
		Categories: []string{"software", "office"},
		Limit:      25,
	})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	args := store.args["transactions_list"]
	if args["tenant_id"] != "t1" {
		t.Errorf("tenant_id = %v", args["tenant_id"])
	}
	if got, _ := args["start"].(time.Time); !got.Equal(start) {
		t.Errorf("start = %v", args["start"])
	}
	if _, ok := args["end"]; ok {
		t.Error("absent end bound an argument; the definition's default covers it")
	}
	if _, ok := args["account_ids"]; ok {
		t.Error("absent account filter bound an argument")
	}
	if args["limit"] != int64(25) {
		t.Errorf("limit = %v", args["limit"])
	}
}

func TestTransactionRowNoteHandling(t *testing.T) {
	note := "invoice #42"
	withNote := transactionRow("t1", domain.Transaction{ID: "a", Note: &note})
	if withNote["note"] != note {
		t.Errorf("note = %v", withNote["note"])
	}

	// Absent note stays absent so the nullable column gets null, not "".
	without := transactionRow("t1", domain.Transaction{ID: "b"})
	if _, ok := without["note"]; ok {
		t.Error("nil note produced a value")
	}
}

func TestTransactionRoundTripThroughRow(t *testing.T) {
	note := "hello"
	tx := domain.Transaction{
		ID:        "tx-1",
		Name:      "Stripe payout",
		Amount:    1200.5,
		Currency:  "USD",
		Category:  "revenue",
		Status:    domain.TransactionPosted,
		AccountID: "acc-1",
		Date:      enrichNow,
		Tags:      []string{"saas"},
		Note:      &note,
		CreatedAt: enrichNow,
		UpdatedAt: enrichNow,
	}

	got := rowToTransaction(transactionRow("t1", tx))
	got.TenantID = ""
	tx.TenantID = ""

	if got.ID != tx.ID || got.Amount != tx.Amount || got.Status != tx.Status {
		t.Errorf("round trip changed fields: %+v", got)
	}
	if got.Note == nil || *got.Note != note {
		t.Errorf("note lost in round trip: %v", got.Note)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "saas" {
		t.Errorf("tags lost in round trip: %v", got.Tags)
	}
}

func TestTransactionUpdateSetsUpdatedAt(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)

	earlier := enrichNow.AddDate(0, -1, 0)
	err := svc.Transactions.Update(context.Background(), "t1", domain.Transaction{
		ID: "tx-1", Name: "Rent", UpdatedAt: earlier, CreatedAt: earlier, Date: earlier,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	row := store.inserts[0].rows[0]
	updated, _ := row["updated_at"].(time.Time)
	if !updated.Equal(enrichNow) {
		t.Errorf("updated_at = %v, want %v", updated, enrichNow)
	}
}

func TestTransactionInsertTable(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)

	if err := svc.Transactions.Insert(context.Background(), "t1", domain.Transaction{Name: "x"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if store.inserts[0].table != chstore.TableTransactions {
		t.Errorf("table = %q", store.inserts[0].table)
	}
}
