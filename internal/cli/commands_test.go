package cli

import (
	"bytes"
	"context"
	"flag"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/crypto/bcrypt"

	"carteira/internal/adapters"
	"carteira/internal/advice"
	"carteira/internal/auth"
	"carteira/internal/backend"
	"carteira/internal/log"
	"carteira/internal/memory"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	b := adapters.NewSelfNotifying(memory.New(auth.WithHashCost(bcrypt.MinCost)), nil)
	var out, errOut bytes.Buffer
	app := &App{
		Logger: log.Discard(),
		Open: func(context.Context) (backend.Backend, backend.CleanupFunc, error) {
			return b, func() error { return nil }, nil
		},
		Advice:   advice.NewService(advice.NewCannedAdvisor(3)),
		Now:      func() time.Time { return time.Date(2025, 5, 20, 9, 0, 0, 0, time.Local) },
		Email:    "ana@example.com",
		Password: "secret1",
		Out:      &out,
		Err:      &errOut,
	}
	return app, &out, &errOut
}

func execute(t *testing.T, cmd subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return cmd.Execute(context.Background(), fs)
}

func TestCommandsRoundTrip(t *testing.T) {
	app, out, errOut := newTestApp(t)

	if st := execute(t, &signupCmd{app: app}, "-name", "Ana"); st != subcommands.ExitSuccess {
		t.Fatalf("signup: %v %s", st, errOut)
	}
	if !strings.Contains(out.String(), "Conta criada para Ana") {
		t.Errorf("signup output = %q", out)
	}

	out.Reset()
	if st := execute(t, &addCmd{app: app}, "-type", "income", "-c", "Salário", "-d", "2025-05-05", "5000", "Salário", "maio"); st != subcommands.ExitSuccess {
		t.Fatalf("add income: %v %s", st, errOut)
	}
	if st := execute(t, &addCmd{app: app}, "-c", "Lazer", "-d", "2025-05-10", "120,50", "Cinema"); st != subcommands.ExitSuccess {
		t.Fatalf("add expense: %v %s", st, errOut)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("add output = %q", out)
	}
	cinemaID := strings.Fields(lines[1])[0]

	out.Reset()
	execute(t, &summaryCmd{app: app})
	if got := out.String(); !strings.Contains(got, "Receitas:") || !strings.Contains(got, "4.879,50") {
		t.Errorf("summary = %q", got)
	}

	out.Reset()
	execute(t, &listCmd{app: app})
	if got := out.String(); !strings.Contains(got, "Cinema") || !strings.Contains(got, "10/05/2025") {
		t.Errorf("list = %q", got)
	}

	out.Reset()
	execute(t, &exportCmd{app: app}, "-o", "-")
	csvLines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(csvLines) != 3 || csvLines[0] != "Date,Description,Category,Amount,Type" {
		t.Errorf("export = %q", csvLines)
	}

	out.Reset()
	execute(t, &reportCmd{app: app}, "-m", "2025-05", "-raw")
	if got := out.String(); !strings.HasPrefix(got, "# Análise") || !strings.Contains(got, "Maio 2025") {
		t.Errorf("report = %q", got)
	}

	if st := execute(t, &deleteCmd{app: app}, cinemaID); st != subcommands.ExitSuccess {
		t.Fatalf("delete: %v", st)
	}
	out.Reset()
	execute(t, &listCmd{app: app})
	if strings.Contains(out.String(), "Cinema") {
		t.Errorf("deleted transaction still listed: %q", out)
	}
}

func TestGoalAndBudgetCommands(t *testing.T) {
	app, out, errOut := newTestApp(t)
	execute(t, &signupCmd{app: app})

	out.Reset()
	if st := execute(t, &goalCmd{app: app}, "-icon", "✈️", "add", "3000", "Viagem", "Lisboa"); st != subcommands.ExitSuccess {
		t.Fatalf("goal add: %v %s", st, errOut)
	}
	id := strings.Fields(out.String())[0]

	out.Reset()
	if st := execute(t, &goalCmd{app: app}, "contribute", id, "750"); st != subcommands.ExitSuccess {
		t.Fatalf("contribute: %v %s", st, errOut)
	}
	if !strings.Contains(out.String(), "Viagem Lisboa") || !strings.Contains(out.String(), "(25%)") {
		t.Errorf("contribute output = %q", out)
	}

	errOut.Reset()
	if st := execute(t, &goalCmd{app: app}, "contribute", "missing", "1"); st != subcommands.ExitFailure {
		t.Errorf("unknown goal status = %v", st)
	}

	if st := execute(t, &goalCmd{app: app}, "remove"); st != subcommands.ExitUsageError {
		t.Errorf("bad goal action status = %v", st)
	}

	out.Reset()
	execute(t, &budgetCmd{app: app}, "Alimentação", "800")
	execute(t, &budgetCmd{app: app}, "Alimentação", "0")
	out.Reset()
	execute(t, &budgetCmd{app: app})
	if got := strings.TrimSpace(out.String()); strings.Count(got, "\n") != 0 || !strings.HasPrefix(got, "Alimentação:") {
		t.Errorf("budgets = %q", got)
	}
}

func TestCommandErrors(t *testing.T) {
	app, _, errOut := newTestApp(t)
	execute(t, &signupCmd{app: app})

	tests := []struct {
		name string
		cmd  subcommands.Command
		args []string
		want subcommands.ExitStatus
		msg  string
	}{
		{"bad amount", &addCmd{app: app}, []string{"abc", "x"}, subcommands.ExitFailure, "Informe um valor válido maior que zero."},
		{"bad type", &addCmd{app: app}, []string{"-type", "gift", "10", "x"}, subcommands.ExitFailure, "Tipo de transação inválido."},
		{"missing description", &addCmd{app: app}, []string{"10"}, subcommands.ExitUsageError, ""},
		{"bad month", &reportCmd{app: app}, []string{"-m", "maio"}, subcommands.ExitUsageError, "invalid month"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errOut.Reset()
			if got := execute(t, tt.cmd, tt.args...); got != tt.want {
				t.Fatalf("status = %v, want %v", got, tt.want)
			}
			if tt.msg != "" && !strings.Contains(errOut.String(), tt.msg) {
				t.Errorf("stderr = %q, want %q", errOut, tt.msg)
			}
		})
	}
}

func TestCredentials(t *testing.T) {
	app, _, errOut := newTestApp(t)
	execute(t, &signupCmd{app: app})

	app.Password = "wrong12"
	if st := execute(t, &summaryCmd{app: app}); st != subcommands.ExitFailure {
		t.Fatalf("wrong password status = %v", st)
	}
	if !strings.Contains(errOut.String(), "E-mail ou senha incorretos.") {
		t.Errorf("stderr = %q", errOut)
	}

	t.Setenv(EnvEmail, "")
	t.Setenv(EnvPassword, "")
	app.Email, app.Password = "", ""
	if st := execute(t, &summaryCmd{app: app}); st != subcommands.ExitFailure {
		t.Errorf("missing credentials status = %v", st)
	}

	t.Setenv(EnvEmail, "ana@example.com")
	t.Setenv(EnvPassword, "secret1")
	if st := execute(t, &summaryCmd{app: app}); st != subcommands.ExitSuccess {
		t.Errorf("env credentials status = %v: %s", st, errOut)
	}
}

func TestAdviceCommand(t *testing.T) {
	app, out, _ := newTestApp(t)
	execute(t, &signupCmd{app: app})
	out.Reset()
	if st := execute(t, &adviceCmd{app: app}); st != subcommands.ExitSuccess {
		t.Fatalf("advice status = %v", st)
	}
	if tip := strings.TrimSpace(out.String()); !slices.Contains(advice.CannedTips(), tip) {
		t.Errorf("advice = %q", tip)
	}
}
