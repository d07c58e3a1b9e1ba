package core

import (
	"testing"
	"time"
)

func TestSnapshotSetRejectsWrongShape(t *testing.T) {
	var s Snapshot
	if err := s.Set(KindGoals, []Transaction{}); err == nil {
		t.Fatalf("expected error for transactions saved as goals")
	}
	if err := s.Set("accounts", nil); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if err := s.Set(KindUser, User{UID: "u1"}); err != nil || s.User.UID != "u1" {
		t.Fatalf("expected user to be set, err=%v", err)
	}
	if err := s.Set(KindUser, (*User)(nil)); err != nil || s.User != nil {
		t.Fatalf("expected user to be cleared, err=%v", err)
	}
}

func TestEncodeDecodeRecords(t *testing.T) {
	when := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	txs := []Transaction{{
		ID: "t1", Amount: MustParseMoney("39.90"), Description: "Netflix",
		Category: "Lazer", Type: Expense, Date: when, IsSubscription: true,
		SubscriptionID: "t1", UserID: "u1",
	}}
	payload, err := EncodeRecords(KindTransactions, txs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var s Snapshot
	if err := s.DecodeRecords(KindTransactions, payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := s.Transactions[0]
	if got.ID != "t1" || !got.Amount.Equal(txs[0].Amount) || !got.Date.Equal(when) || got.SubscriptionID != "t1" {
		t.Fatalf("unexpected decode %+v", got)
	}
}

func TestDecodeRecordsIgnoresUnknownFields(t *testing.T) {
	var s Snapshot
	blob := []byte(`[{"category":"Lazer","limit":300,"userId":"u1","alertAt":0.8}]`)
	if err := s.DecodeRecords(KindBudgets, blob); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(s.Budgets) != 1 || s.Budgets[0].Limit.Cents() != 30000 {
		t.Fatalf("unexpected budgets %+v", s.Budgets)
	}
}
