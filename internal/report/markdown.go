package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Markdown renders r as a markdown document with amounts in currency.
func Markdown(r Report, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Análise\n\n_%s_\n\n", r.Period)

	b.WriteString("## Resumo\n\n| | Valor | % |\n|---|---:|---:|\n")
	fmt.Fprintf(&b, "| Receitas | %s | %.1f%% |\n", r.Totals.Income.Format(currency), r.IncomeShare)
	fmt.Fprintf(&b, "| Despesas | %s | %.1f%% |\n", r.Totals.Expenses.Format(currency), r.ExpenseShare)
	fmt.Fprintf(&b, "| **Saldo** | **%s** | |\n\n", r.Totals.Balance.Format(currency))

	b.WriteString("## Maiores categorias\n\n")
	if len(r.Categories) == 0 {
		b.WriteString("Sem dados suficientes.\n\n")
	} else {
		b.WriteString("| Categoria | Gasto | % |\n|---|---:|---:|\n")
		for _, c := range r.Categories {
			fmt.Fprintf(&b, "| %s | %s | %.1f%% |\n", c.Name, c.Amount.Format(currency), c.Percent)
		}
		b.WriteString("\n")
	}

	if len(r.Budgets) > 0 {
		b.WriteString("## Orçamentos\n\n| Categoria | Gasto | Limite | Uso |\n|---|---:|---:|---:|\n")
		for _, u := range r.Budgets {
			flag := ""
			if u.Over {
				flag = " ⚠️"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %.0f%%%s |\n",
				u.Category, u.Spent.Format(currency), u.Limit.Format(currency), u.Percent, flag)
		}
		b.WriteString("\n")
	}

	if len(r.Goals) > 0 {
		b.WriteString("## Metas\n\n")
		for _, g := range r.Goals {
			fmt.Fprintf(&b, "- %s **%s**: %s de %s (%.0f%%)\n",
				g.Icon, g.Title, g.Current.Format(currency), g.Target.Format(currency), g.Percent)
		}
	}
	return b.String()
}

// Render formats markdown for a terminal of the given width.
func Render(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	return r.Render(markdown)
}
