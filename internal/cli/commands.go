package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"carteira/internal/advice"
	"carteira/internal/core"
	"carteira/internal/export"
	"carteira/internal/report"
	"carteira/internal/store"
)

// Register adds every carteira-cli subcommand to c.
func Register(c *subcommands.Commander, app *App) {
	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")

	c.Register(&signupCmd{app: app}, "account")

	c.Register(&addCmd{app: app}, "transactions")
	c.Register(&deleteCmd{app: app}, "transactions")
	c.Register(&listCmd{app: app}, "transactions")
	c.Register(&exportCmd{app: app}, "transactions")

	c.Register(&goalCmd{app: app}, "planning")
	c.Register(&budgetCmd{app: app}, "planning")

	c.Register(&summaryCmd{app: app}, "insights")
	c.Register(&reportCmd{app: app}, "insights")
	c.Register(&adviceCmd{app: app}, "insights")
}

// run signs in and executes fn against the user's store.
func (a *App) run(ctx context.Context, fn func(ctx context.Context, st *store.Store) error) subcommands.ExitStatus {
	c, err := a.credentials(false, "")
	if err != nil {
		return a.fail(err)
	}
	if err := a.withStore(ctx, c, fn); err != nil {
		return a.fail(err)
	}
	return subcommands.ExitSuccess
}

// parseDay reads YYYY-MM-DD as noon local time, keeping the calendar day
// stable across time zones.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	return t.Add(12 * time.Hour), nil
}

type signupCmd struct {
	app  *App
	name string
}

func (*signupCmd) Name() string     { return "signup" }
func (*signupCmd) Synopsis() string { return "create an account" }
func (*signupCmd) Usage() string {
	return `carteira-cli [-email <email> -password <password>] signup [-name <name>]

  Creates the account and its empty profile.
`
}

func (c *signupCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Display name. Defaults to the local part of the email.")
}

func (c *signupCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	creds, err := c.app.credentials(true, c.name)
	if err != nil {
		return c.app.fail(err)
	}
	err = c.app.withStore(ctx, creds, func(_ context.Context, st *store.Store) error {
		u := st.User()
		fmt.Fprintf(c.app.Out, "Conta criada para %s (%s)\n", u.Name, u.Email)
		return nil
	})
	if err != nil {
		return c.app.fail(err)
	}
	return subcommands.ExitSuccess
}

type addCmd struct {
	app      *App
	typ      string
	category string
	date     string
	sub      bool
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "record an expense or an income" }
func (*addCmd) Usage() string {
	return `carteira-cli add [-type income] [-c <category>] [-d <YYYY-MM-DD>] [-sub] <amount> <description...>

  Records a transaction. Amounts accept both 1234.56 and 1.234,56.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.typ, "type", string(core.Expense), "Transaction type: expense or income.")
	f.StringVar(&c.category, "c", "Outros", "Category.")
	f.StringVar(&c.date, "d", "", "Date (YYYY-MM-DD). Defaults to now.")
	f.BoolVar(&c.sub, "sub", false, "Mark as a monthly subscription.")
}

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	amount, err := core.ParseAmount(f.Arg(0))
	if err != nil {
		return c.app.fail(err)
	}
	date, err := parseDay(c.date)
	if err != nil {
		return c.app.fail(err)
	}
	draft := core.TransactionDraft{
		Amount:         amount,
		Description:    strings.Join(f.Args()[1:], " "),
		Category:       c.category,
		Type:           core.TransactionType(c.typ),
		Date:           date,
		IsSubscription: c.sub,
	}
	return c.app.run(ctx, func(ctx context.Context, st *store.Store) error {
		tx, err := st.AddTransaction(ctx, draft)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.Out, "%s %s %s (%s)\n", tx.ID, tx.Type, tx.Amount.Format(c.app.currency()), tx.Category)
		return nil
	})
}

type deleteCmd struct{ app *App }

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete a transaction by id" }
func (*deleteCmd) Usage() string {
	return `carteira-cli delete <id>...
`
}
func (*deleteCmd) SetFlags(*flag.FlagSet) {}

func (c *deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return c.app.run(ctx, func(ctx context.Context, st *store.Store) error {
		for _, id := range f.Args() {
			if err := st.DeleteTransaction(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

type listCmd struct {
	app   *App
	limit int
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list the newest transactions" }
func (*listCmd) Usage() string {
	return `carteira-cli list [-n <count>]
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 20, "Number of transactions to show. 0 shows all.")
}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(_ context.Context, st *store.Store) error {
		txs := st.Snapshot().Transactions
		if c.limit > 0 {
			txs = st.RecentTransactions(c.limit)
		}
		if len(txs) == 0 {
			fmt.Fprintln(c.app.Out, "Nenhuma transação.")
			return nil
		}
		w := tabwriter.NewWriter(c.app.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATA\tTIPO\tVALOR\tCATEGORIA\tDESCRIÇÃO\tID")
		for _, t := range txs {
			typ := "Despesa"
			if t.Type == core.Income {
				typ = "Receita"
			}
			if t.IsSubscription {
				typ += " ↻"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.Date.In(time.Local).Format(export.DateLayout), typ,
				t.Amount.Format(c.app.currency()), t.Category, t.Description, t.ID)
		}
		return w.Flush()
	})
}

type summaryCmd struct{ app *App }

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "show income, expenses and balance" }
func (*summaryCmd) Usage() string {
	return `carteira-cli summary
`
}
func (*summaryCmd) SetFlags(*flag.FlagSet) {}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(_ context.Context, st *store.Store) error {
		t := st.Totals()
		cur := c.app.currency()
		fmt.Fprintf(c.app.Out, "Receitas: %s\nDespesas: %s\nSaldo:    %s\n",
			t.Income.Format(cur), t.Expenses.Format(cur), t.Balance.Format(cur))
		return nil
	})
}

type goalCmd struct {
	app  *App
	icon string
}

func (*goalCmd) Name() string     { return "goal" }
func (*goalCmd) Synopsis() string { return "create, fund or list savings goals" }
func (*goalCmd) Usage() string {
	return `carteira-cli goal [-icon <icon>] add <target> <title...>
carteira-cli goal contribute <id> <amount>
carteira-cli goal list
`
}

func (c *goalCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.icon, "icon", "🎯", "Icon shown next to the goal.")
}

func (c *goalCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) == 0 {
		args = []string{"list"}
	}
	cur := c.app.currency()

	var fn func(ctx context.Context, st *store.Store) error
	switch {
	case args[0] == "add" && len(args) >= 3:
		target, err := core.ParseAmount(args[1])
		if err != nil {
			return c.app.fail(err)
		}
		draft := core.GoalDraft{Title: strings.Join(args[2:], " "), TargetAmount: target, Icon: c.icon}
		fn = func(ctx context.Context, st *store.Store) error {
			g, err := st.AddGoal(ctx, draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.app.Out, "%s %s %s\n", g.ID, g.Title, g.TargetAmount.Format(cur))
			return nil
		}
	case args[0] == "contribute" && len(args) == 3:
		amount, err := core.ParseAmount(args[2])
		if err != nil {
			return c.app.fail(err)
		}
		fn = func(ctx context.Context, st *store.Store) error {
			g, err := st.ContributeToGoal(ctx, args[1], amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.app.Out, "%s: %s de %s (%.0f%%)\n", g.Title,
				g.CurrentAmount.Format(cur), g.TargetAmount.Format(cur), g.Progress())
			return nil
		}
	case args[0] == "list":
		fn = func(_ context.Context, st *store.Store) error {
			goals := st.Snapshot().Goals
			if len(goals) == 0 {
				fmt.Fprintln(c.app.Out, "Nenhuma meta.")
			}
			for _, g := range goals {
				fmt.Fprintf(c.app.Out, "%s %s %s: %s de %s\n", g.ID, g.Icon, g.Title,
					g.CurrentAmount.Format(cur), g.TargetAmount.Format(cur))
			}
			return nil
		}
	default:
		f.Usage()
		return subcommands.ExitUsageError
	}
	return c.app.run(ctx, fn)
}

type budgetCmd struct{ app *App }

func (*budgetCmd) Name() string     { return "budget" }
func (*budgetCmd) Synopsis() string { return "set or list category spending limits" }
func (*budgetCmd) Usage() string {
	return `carteira-cli budget [<category> <limit>]

  Without arguments lists the budgets.
`
}
func (*budgetCmd) SetFlags(*flag.FlagSet) {}

func (c *budgetCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cur := c.app.currency()
	switch f.NArg() {
	case 0:
		return c.app.run(ctx, func(_ context.Context, st *store.Store) error {
			for _, b := range st.Snapshot().Budgets {
				fmt.Fprintf(c.app.Out, "%s: %s\n", b.Category, b.Limit.Format(cur))
			}
			return nil
		})
	case 2:
		var limit core.Money
		if strings.Trim(f.Arg(1), "0.,") != "" {
			l, err := core.ParseAmount(f.Arg(1))
			if err != nil {
				return c.app.fail(err)
			}
			limit = l
		}
		return c.app.run(ctx, func(ctx context.Context, st *store.Store) error {
			b, err := st.UpdateBudget(ctx, f.Arg(0), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.app.Out, "%s: %s\n", b.Category, b.Limit.Format(cur))
			return nil
		})
	default:
		f.Usage()
		return subcommands.ExitUsageError
	}
}

type exportCmd struct {
	app    *App
	out    string
	remote bool
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export transactions as CSV" }
func (*exportCmd) Usage() string {
	return `carteira-cli export [-o <file>|-o -] [-gcs]

  Writes Relatorio_<month>.csv, or uploads it to EXPORT_GCS_BUCKET with -gcs.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "o", "", "Output file, '-' for stdout. Defaults to Relatorio_<month>.csv.")
	f.BoolVar(&c.remote, "gcs", false, "Upload to the configured Cloud Storage bucket.")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(ctx context.Context, st *store.Store) error {
		txs := st.Snapshot().Transactions
		if len(txs) == 0 {
			fmt.Fprintln(c.app.Out, "Não há transações para exportar.")
			return nil
		}
		now := c.app.Now()

		if c.remote {
			if c.app.Config == nil || c.app.Config.ExportGCSBucket == "" {
				return errors.New("EXPORT_GCS_BUCKET is not set")
			}
			up, err := export.NewGCSUploader(ctx, c.app.Config.ExportGCSBucket, c.app.Logger)
			if err != nil {
				return err
			}
			defer up.Close()
			uri, err := up.Upload(ctx, st.User().UID, txs, now)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.app.Out, uri)
			return nil
		}

		if c.out == "-" {
			return export.WriteCSV(c.app.Out, txs, time.Local)
		}
		name := c.out
		if name == "" {
			name = export.FileName(now)
		}
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		if err := export.WriteCSV(f, txs, time.Local); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(c.app.Out, "%d transações exportadas para %s\n", len(txs), name)
		return nil
	})
}

type reportCmd struct {
	app   *App
	month string
	raw   bool
	width int
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "display the spending analysis" }
func (*reportCmd) Usage() string {
	return `carteira-cli report [-m <YYYY-MM>] [-raw]

  Shows where the money went, budget usage and goal progress.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.month, "m", "", "Month to analyse (YYYY-MM). Defaults to the whole history.")
	f.BoolVar(&c.raw, "raw", false, "Print markdown without terminal styling.")
	f.IntVar(&c.width, "w", 80, "Word wrap width.")
}

func (c *reportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var month time.Time
	if c.month != "" {
		m, err := time.ParseInLocation("2006-01", c.month, time.Local)
		if err != nil {
			fmt.Fprintf(c.app.Err, "invalid month %q: use YYYY-MM\n", c.month)
			return subcommands.ExitUsageError
		}
		month = m
	}
	return c.app.run(ctx, func(_ context.Context, st *store.Store) error {
		md := report.Markdown(report.Build(st.Snapshot(), month), c.app.currency())
		if c.raw {
			fmt.Fprint(c.app.Out, md)
			return nil
		}
		out, err := report.Render(md, c.width)
		if err != nil {
			return err
		}
		fmt.Fprint(c.app.Out, out)
		return nil
	})
}

type adviceCmd struct{ app *App }

func (*adviceCmd) Name() string     { return "advice" }
func (*adviceCmd) Synopsis() string { return "ask for a personalised savings tip" }
func (*adviceCmd) Usage() string {
	return `carteira-cli advice
`
}
func (*adviceCmd) SetFlags(*flag.FlagSet) {}

func (c *adviceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc := c.app.Advice
	if svc == nil {
		svc = advice.NewService(advice.NewCannedAdvisor(uint64(time.Now().UnixNano())))
	}
	return c.app.run(ctx, func(ctx context.Context, st *store.Store) error {
		tip := svc.Advise(ctx, st.User().UID, st.RecentTransactions(advice.RecentLimit), st.Snapshot().Goals)
		fmt.Fprintln(c.app.Out, tip)
		return nil
	})
}
