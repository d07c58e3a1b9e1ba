package report

import (
	"math"
	"strings"
	"testing"
	"time"

	"carteira/internal/core"
)

func tx(amount string, typ core.TransactionType, category string, day int, month time.Month) core.Transaction {
	return core.Transaction{
		ID: category + amount, Amount: core.MustParseMoney(amount), Description: category,
		Category: category, Type: typ, Date: time.Date(2025, month, day, 12, 0, 0, 0, time.UTC),
	}
}

func sampleSnapshot() core.Snapshot {
	return core.Snapshot{
		Transactions: []core.Transaction{
			tx("3000", core.Income, "Salário", 5, time.March),
			tx("450", core.Expense, "Alimentação", 4, time.March),
			tx("300", core.Expense, "Transporte", 3, time.March),
			tx("250", core.Expense, "Lazer", 2, time.March),
			tx("999", core.Expense, "Lazer", 20, time.February),
		},
		Budgets: []core.Budget{
			{Category: "Lazer", Limit: core.MustParseMoney("200")},
			{Category: "Alimentação", Limit: core.MustParseMoney("900")},
		},
		Goals: []core.Goal{
			{Title: "Viagem", TargetAmount: core.MustParseMoney("1000"), CurrentAmount: core.MustParseMoney("1500")},
		},
	}
}

func TestBuild_Month(t *testing.T) {
	r := Build(sampleSnapshot(), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))

	if r.Period != "Março 2025" {
		t.Errorf("Period = %q", r.Period)
	}
	if !r.Totals.Expenses.Equal(core.MustParseMoney("1000")) {
		t.Errorf("Expenses = %s, want 1000.00", r.Totals.Expenses)
	}
	if len(r.Categories) != 3 || r.Categories[0].Name != "Alimentação" || r.Categories[0].Percent != 45 {
		t.Fatalf("unexpected categories %+v", r.Categories)
	}

	sum := 0.0
	for _, c := range r.Categories {
		sum += c.Percent
	}
	if math.Abs(sum-100) > 0.05 {
		t.Errorf("category percentages sum to %v", sum)
	}
	if math.Abs(r.IncomeShare+r.ExpenseShare-100) > 0.05 {
		t.Errorf("income/expense split = %v + %v", r.IncomeShare, r.ExpenseShare)
	}

	if len(r.Budgets) != 2 || r.Budgets[0].Category != "Lazer" || !r.Budgets[0].Over || r.Budgets[0].Percent != 125 {
		t.Errorf("unexpected budgets %+v", r.Budgets)
	}
	if r.Budgets[1].Over {
		t.Errorf("Alimentação is within its limit")
	}
	if r.Goals[0].Percent != 100 {
		t.Errorf("goal progress must be capped, got %v", r.Goals[0].Percent)
	}
}

func TestBuild_AllTime(t *testing.T) {
	r := Build(sampleSnapshot(), time.Time{})
	if !r.Totals.Expenses.Equal(core.MustParseMoney("1999")) {
		t.Errorf("Expenses = %s", r.Totals.Expenses)
	}
	if r.Categories[0].Name != "Lazer" {
		t.Errorf("expected Lazer first, got %+v", r.Categories)
	}
}

func TestBuild_Empty(t *testing.T) {
	r := Build(core.Snapshot{}, time.Time{})
	if len(r.Categories) != 0 || r.IncomeShare != 0 || r.ExpenseShare != 0 {
		t.Errorf("unexpected report %+v", r)
	}
	if md := Markdown(r, "BRL"); !strings.Contains(md, "Sem dados suficientes.") {
		t.Errorf("missing empty-state text:\n%s", md)
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(Build(sampleSnapshot(), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)), "BRL")
	for _, want := range []string{"# Análise", "| Alimentação | R$450,00 | 45.0% |", "Orçamentos", "⚠️", "**Viagem**"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}
