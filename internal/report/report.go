// Package report derives the analysis screen: where the money went, how
// budgets are holding up and how far each goal is.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/core"
)

type CategoryShare struct {
	Name    string     `json:"name"`
	Amount  core.Money `json:"amount"`
	Percent float64    `json:"percent"`
}

type BudgetUsage struct {
	Category string     `json:"category"`
	Limit    core.Money `json:"limit"`
	Spent    core.Money `json:"spent"`
	Percent  float64    `json:"percent"`
	Over     bool       `json:"overLimit"`
}

type GoalProgress struct {
	Title   string     `json:"title"`
	Icon    string     `json:"icon"`
	Current core.Money `json:"current"`
	Target  core.Money `json:"target"`
	// Percent is capped at 100 for display.
	Percent float64 `json:"percent"`
}

type Report struct {
	Period       string          `json:"period"`
	Totals       core.Totals     `json:"totals"`
	IncomeShare  float64         `json:"incomeShare"`
	ExpenseShare float64         `json:"expenseShare"`
	Categories   []CategoryShare `json:"categories"`
	Budgets      []BudgetUsage   `json:"budgets"`
	Goals        []GoalProgress  `json:"goals"`
}

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// MonthName returns the pt-BR name of m.
func MonthName(m time.Month) string { return monthNames[m-1] }

// Build computes the report. A zero month covers the whole history;
// otherwise only transactions in month's calendar month count.
func Build(snap core.Snapshot, month time.Time) Report {
	txs := snap.Transactions
	period := "Todo o período"
	if !month.IsZero() {
		txs = inMonth(txs, month)
		period = MonthName(month.Month()) + " " + month.Format("2006")
	}

	totals := core.ComputeTotals(txs)
	r := Report{Period: period, Totals: totals}

	flow := totals.Income.Add(totals.Expenses)
	r.IncomeShare = percent(totals.Income, flow)
	r.ExpenseShare = percent(totals.Expenses, flow)

	spent := map[string]core.Money{}
	for _, c := range core.ExpensesByCategory(txs) {
		spent[c.Name] = c.Amount
		r.Categories = append(r.Categories, CategoryShare{
			Name:    c.Name,
			Amount:  c.Amount,
			Percent: percent(c.Amount, totals.Expenses),
		})
	}

	for _, b := range snap.Budgets {
		s := spent[b.Category]
		r.Budgets = append(r.Budgets, BudgetUsage{
			Category: b.Category,
			Limit:    b.Limit,
			Spent:    s,
			Percent:  percent(s, b.Limit),
			Over:     s.Cmp(b.Limit) > 0,
		})
	}
	sort.SliceStable(r.Budgets, func(i, j int) bool { return r.Budgets[i].Percent > r.Budgets[j].Percent })

	for _, g := range snap.Goals {
		p := g.Progress()
		if p > 100 {
			p = 100
		}
		r.Goals = append(r.Goals, GoalProgress{
			Title: g.Title, Icon: g.Icon,
			Current: g.CurrentAmount, Target: g.TargetAmount,
			Percent: p,
		})
	}
	return r
}

func inMonth(txs []core.Transaction, month time.Time) []core.Transaction {
	var out []core.Transaction
	for _, t := range txs {
		if core.SameCycle(t.Date, month, month.Location()) {
			out = append(out, t)
		}
	}
	return out
}

var hundred = decimal.NewFromInt(100)

// percent is rounded to two decimals.
func percent(part, whole core.Money) float64 {
	if whole.IsZero() {
		return 0
	}
	f, _ := part.Decimal().Mul(hundred).DivRound(whole.Decimal(), 2).Float64()
	return f
}
