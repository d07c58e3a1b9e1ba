package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTransactionDraftValidate(t *testing.T) {
	good := TransactionDraft{
		Amount:      MustParseMoney("50"),
		Description: "Almoço",
		Category:    "Alimentação",
		Type:        Expense,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		mut  func(*TransactionDraft)
		want error
	}{
		{"zero amount", func(d *TransactionDraft) { d.Amount = Money{} }, ErrInvalidAmount},
		{"negative amount", func(d *TransactionDraft) { d.Amount = MustParseMoney("-1") }, ErrInvalidAmount},
		{"bad type", func(d *TransactionDraft) { d.Type = "transfer" }, ErrInvalidType},
		{"blank description", func(d *TransactionDraft) { d.Description = "  " }, ErrEmptyDescription},
		{"long description", func(d *TransactionDraft) { d.Description = strings.Repeat("x", 201) }, ErrDescriptionLong},
		{"long accented description", func(d *TransactionDraft) { d.Description = strings.Repeat("ç", 201) }, ErrDescriptionLong},
		{"blank category", func(d *TransactionDraft) { d.Category = "" }, ErrEmptyCategory},
	}
	for _, tc := range cases {
		d := good
		tc.mut(&d)
		if err := d.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if !IsValidation(d.Validate()) {
			t.Fatalf("%s: expected a validation error", tc.name)
		}
	}
}

func TestDescriptionLimitCountsCharacters(t *testing.T) {
	d := TransactionDraft{
		Amount:      MustParseMoney("10"),
		Type:        Expense,
		Description: strings.Repeat("ã", 200),
		Category:    "Lazer",
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("200 accented characters rejected: %v", err)
	}
}

func TestGoalDraftValidate(t *testing.T) {
	if err := (GoalDraft{Title: "Viagem", TargetAmount: MustParseMoney("1000")}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (GoalDraft{TargetAmount: MustParseMoney("1000")}).Validate(); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
	if err := (GoalDraft{Title: "x"}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	// current above target is a soft invariant
	over := GoalDraft{Title: "x", TargetAmount: MustParseMoney("10"), CurrentAmount: MustParseMoney("20")}
	if err := over.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestValidateBudget(t *testing.T) {
	if err := ValidateBudget("Lazer", Money{}); err != nil {
		t.Fatalf("zero limit should be allowed: %v", err)
	}
	if err := ValidateBudget("", MustParseMoney("1")); !errors.Is(err, ErrEmptyCategory) {
		t.Fatalf("expected ErrEmptyCategory, got %v", err)
	}
	if err := ValidateBudget("Lazer", MustParseMoney("-1")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSameCycle(t *testing.T) {
	loc := time.UTC
	mar := time.Date(2025, 3, 15, 10, 0, 0, 0, loc)
	cases := []struct {
		other time.Time
		want  bool
	}{
		{time.Date(2025, 3, 1, 0, 0, 0, 0, loc), true},
		{time.Date(2025, 3, 31, 23, 59, 0, 0, loc), true},
		{time.Date(2025, 2, 28, 0, 0, 0, 0, loc), false},
		{time.Date(2024, 3, 15, 0, 0, 0, 0, loc), false},
	}
	for i, tc := range cases {
		if got := SameCycle(mar, tc.other, loc); got != tc.want {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, got)
		}
	}
}

func TestSortNewestFirst(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC) }
	txs := []Transaction{
		{ID: "a", Date: d(1)},
		{ID: "c", Date: d(3)},
		{ID: "b2", Date: d(2)},
		{ID: "b1", Date: d(2)},
	}
	SortNewestFirst(txs)
	var ids []string
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	if got := strings.Join(ids, ","); got != "c,b1,b2,a" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestComputeTotals(t *testing.T) {
	txs := []Transaction{
		{Type: Expense, Amount: MustParseMoney("50")},
	}
	tot := ComputeTotals(txs)
	if !tot.Income.IsZero() || tot.Expenses.Cents() != 5000 || tot.Balance.Cents() != -5000 {
		t.Fatalf("unexpected totals %+v", tot)
	}
	txs = append(txs, Transaction{Type: Income, Amount: MustParseMoney("200")})
	tot = ComputeTotals(txs)
	if tot.Balance.Cents() != 15000 {
		t.Fatalf("expected balance 150, got %s", tot.Balance)
	}
	if !tot.Balance.Equal(tot.Income.Sub(tot.Expenses)) {
		t.Fatalf("balance must equal income - expenses")
	}
}

func TestExpensesByCategory(t *testing.T) {
	txs := []Transaction{
		{Type: Expense, Category: "Lazer", Amount: MustParseMoney("10")},
		{Type: Expense, Category: "Moradia", Amount: MustParseMoney("800")},
		{Type: Income, Category: "Salário", Amount: MustParseMoney("3000")},
		{Type: Expense, Category: "Lazer", Amount: MustParseMoney("15")},
	}
	got := ExpensesByCategory(txs)
	if len(got) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(got))
	}
	if got[0].Name != "Moradia" || got[1].Name != "Lazer" || got[1].Amount.Cents() != 2500 {
		t.Fatalf("unexpected breakdown %+v", got)
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	s := Snapshot{
		User:         &User{UID: "u1"},
		Transactions: []Transaction{{ID: "t1"}},
	}
	c := s.Clone()
	c.User.Name = "changed"
	c.Transactions[0].ID = "changed"
	if s.User.Name != "" || s.Transactions[0].ID != "t1" {
		t.Fatalf("clone shares memory with original")
	}
}

func TestUserMessage(t *testing.T) {
	if UserMessage(nil) != "" {
		t.Fatalf("nil error should have no message")
	}
	wrapped := errors.Join(errors.New("driver"), ErrWeakPassword)
	if got := UserMessage(wrapped); !strings.Contains(got, "6 caracteres") {
		t.Fatalf("unexpected message %q", got)
	}
	if UserMessage(errors.New("boom")) == "" {
		t.Fatalf("unknown errors need a generic message")
	}
}
