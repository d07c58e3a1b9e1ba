package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"carteira/internal/advice"
	"carteira/internal/auth"
	"carteira/internal/backend"
	"carteira/internal/config"
	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/store"
)

// Environment variables consulted when -email / -password are not given.
const (
	EnvEmail    = "CARTEIRA_EMAIL"
	EnvPassword = "CARTEIRA_PASSWORD"
)

// OpenFunc opens the backend a command works against.
type OpenFunc func(ctx context.Context) (backend.Backend, backend.CleanupFunc, error)

// App is the state shared by the carteira-cli subcommands. Every command
// signs in, runs against a hydrated store and closes it so queued writes
// reach the backend before the process exits.
type App struct {
	Config *config.Config
	Logger *log.Logger
	Open   OpenFunc
	Advice *advice.Service
	Now    func() time.Time

	Email    string
	Password string

	Out io.Writer
	Err io.Writer
}

// NewApp wires an App to the configured backend.
func NewApp(cfg *config.Config, logger *log.Logger, adv *advice.Service) *App {
	a := &App{
		Config: cfg,
		Logger: logger,
		Advice: adv,
		Now:    time.Now,
		Out:    os.Stdout,
		Err:    os.Stderr,
	}
	a.Open = func(ctx context.Context) (backend.Backend, backend.CleanupFunc, error) {
		return OpenBackend(ctx, cfg, logger)
	}
	return a
}

func (a *App) credentials(signUp bool, name string) (auth.Credentials, error) {
	email := a.Email
	if email == "" {
		email = os.Getenv(EnvEmail)
	}
	password := a.Password
	if password == "" {
		password = os.Getenv(EnvPassword)
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return auth.Credentials{}, fmt.Errorf("credentials required: use -email/-password or %s/%s", EnvEmail, EnvPassword)
	}
	return auth.Credentials{Email: email, Password: password, Name: name, SignUp: signUp}, nil
}

// withStore authenticates, hydrates a store for the user and runs fn on it.
// Write failures surfaced by the store are printed after fn returns.
func (a *App) withStore(ctx context.Context, c auth.Credentials, fn func(ctx context.Context, st *store.Store) error) error {
	b, cleanup, err := a.Open(ctx)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer func() {
		if err := cleanup(); err != nil {
			a.Logger.Warn("Backend close failed", "error", err)
		}
	}()

	user, err := b.Authenticate(ctx, c)
	if err != nil {
		return err
	}

	st := store.New(b, store.WithLogger(a.Logger), store.WithClock(a.Now))
	st.SetUser(ctx, &user)
	if err := st.Hydrate(ctx); err != nil {
		_ = st.Close(ctx)
		return fmt.Errorf("hydrate: %w", err)
	}

	runErr := fn(ctx, st)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	closeErr := st.Close(closeCtx)
	for _, n := range st.DrainNotices() {
		fmt.Fprintf(a.Err, "aviso: %s\n", n.Message())
	}
	return errors.Join(runErr, closeErr)
}

// fail prints err for the user. Errors without a friendly message are
// printed as is.
func (a *App) fail(err error) subcommands.ExitStatus {
	msg := core.UserMessage(err)
	if msg == core.UserMessage(core.ErrUnknown) {
		msg = err.Error()
	}
	fmt.Fprintf(a.Err, "erro: %s\n", msg)
	return subcommands.ExitFailure
}

func (a *App) currency() string {
	if a.Config == nil {
		return core.DefaultCurrency
	}
	return a.Config.Currency
}
