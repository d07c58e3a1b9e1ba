// Package cloud is the Postgres backend. Every user's records live in shared
// tables filtered by user_id, and every write publishes a NOTIFY so that
// sessions on other processes can refresh.
package cloud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"carteira/internal/auth"
	"carteira/internal/core"
	"carteira/internal/log"
)

// Backend implements the persistence capability set on Postgres.
type Backend struct {
	db     *sql.DB
	auth   *auth.Service
	logger *log.Logger

	newNotifier  func() (Notifier, error)
	reloadWithin time.Duration

	mu        sync.Mutex
	notifier  Notifier
	listeners map[string]map[int]func(core.Snapshot)
	nextID    int
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(*Backend)

func WithLogger(l *log.Logger) Option {
	return func(b *Backend) { b.logger = l.WithComponent(log.ComponentCloud) }
}

func WithAuthOptions(opts ...auth.Option) Option {
	return func(b *Backend) { b.auth = auth.NewService(b, opts...) }
}

// WithNotifier replaces the pq.Listener used by Subscribe.
func WithNotifier(fn func() (Notifier, error)) Option {
	return func(b *Backend) { b.newNotifier = fn }
}

// Open connects to dsn, creates the schema and returns a ready backend.
func Open(ctx context.Context, dsn string, opts ...Option) (*Backend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", core.ErrStorageUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	b := New(db, opts...)
	if b.newNotifier == nil {
		b.newNotifier = pqNotifier(dsn, b.logger)
	}
	return b, nil
}

// New wraps an existing connection pool. The schema must already exist.
func New(db *sql.DB, opts ...Option) *Backend {
	b := &Backend{
		db:           db,
		logger:       log.Discard().WithComponent(log.ComponentCloud),
		reloadWithin: 10 * time.Second,
		listeners:    make(map[string]map[int]func(core.Snapshot)),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	if b.auth == nil {
		b.auth = auth.NewService(b, auth.WithLogger(b.logger))
	}
	return b
}

// Load reads the four collections of userID concurrently.
func (b *Backend) Load(ctx context.Context, userID string) (core.Snapshot, error) {
	var snap core.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.User, err = b.loadProfile(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Transactions, err = b.loadTransactions(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Goals, err = b.loadGoals(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Budgets, err = b.loadBudgets(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Snapshot{}, unavailable("load", err)
	}
	if snap.IsEmpty() {
		return core.Snapshot{}, core.ErrNotFound
	}
	return snap, nil
}

func (b *Backend) loadProfile(ctx context.Context, userID string) (*core.User, error) {
	u := core.User{UID: userID}
	err := b.db.QueryRowContext(ctx,
		`SELECT email, name, biometrics_enabled FROM profiles WHERE user_id = $1`, userID,
	).Scan(&u.Email, &u.Name, &u.BiometricsEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &u, nil
}

func (b *Backend) loadTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, amount, description, category, type, date, is_subscription, subscription_id
		FROM transactions WHERE user_id = $1 ORDER BY date DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t := core.Transaction{UserID: userID}
		var typ string
		if err := rows.Scan(&t.ID, &t.Amount, &t.Description, &t.Category, &typ, &t.Date, &t.IsSubscription, &t.SubscriptionID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = core.TransactionType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (b *Backend) loadGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, title, target_amount, current_amount, icon
		FROM goals WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("select goals: %w", err)
	}
	defer rows.Close()

	var out []core.Goal
	for rows.Next() {
		g := core.Goal{UserID: userID}
		if err := rows.Scan(&g.ID, &g.Title, &g.TargetAmount, &g.CurrentAmount, &g.Icon); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (b *Backend) loadBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT category, limit_amount FROM budgets WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("select budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		bg := core.Budget{UserID: userID}
		if err := rows.Scan(&bg.Category, &bg.Limit); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, bg)
	}
	return out, rows.Err()
}

// Save overwrites one collection of userID inside a transaction and
// publishes a change notification on commit. Concurrent writers of the same
// collection are last-write-wins.
func (b *Backend) Save(ctx context.Context, userID string, kind core.EntityKind, records any) error {
	var snap core.Snapshot
	if err := snap.Set(kind, records); err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	switch kind {
	case core.KindUser:
		err = saveProfile(ctx, tx, userID, snap.User)
	case core.KindTransactions:
		err = saveTransactions(ctx, tx, userID, snap.Transactions)
	case core.KindGoals:
		err = saveGoals(ctx, tx, userID, snap.Goals)
	case core.KindBudgets:
		err = saveBudgets(ctx, tx, userID, snap.Budgets)
	}
	if err != nil {
		return unavailable("save "+string(kind), err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, ChangesChannel, userID); err != nil {
		return unavailable("notify", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	b.logger.DebugContext(ctx, "Collection saved", log.FieldUserID, userID, log.FieldKind, string(kind))
	return nil
}

func saveProfile(ctx context.Context, tx *sql.Tx, userID string, u *core.User) error {
	if u == nil {
		_, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID)
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, email, name, biometrics_enabled) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email, name = EXCLUDED.name, biometrics_enabled = EXCLUDED.biometrics_enabled`,
		userID, u.Email, u.Name, u.BiometricsEnabled)
	return err
}

func saveTransactions(ctx context.Context, tx *sql.Tx, userID string, txs []core.Transaction) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, t := range txs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, user_id, amount, description, category, type, date, is_subscription, subscription_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			t.ID, userID, t.Amount, t.Description, t.Category, string(t.Type), t.Date, t.IsSubscription, t.SubscriptionID); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	return nil
}

func saveGoals(ctx context.Context, tx *sql.Tx, userID string, goals []core.Goal) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for i, g := range goals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO goals (id, user_id, position, title, target_amount, current_amount, icon)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			g.ID, userID, i, g.Title, g.TargetAmount, g.CurrentAmount, g.Icon); err != nil {
			return fmt.Errorf("insert goal %s: %w", g.ID, err)
		}
	}
	return nil
}

func saveBudgets(ctx context.Context, tx *sql.Tx, userID string, budgets []core.Budget) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM budgets WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for i, bg := range budgets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO budgets (user_id, category, position, limit_amount) VALUES ($1, $2, $3, $4)`,
			userID, bg.Category, i, bg.Limit); err != nil {
			return fmt.Errorf("insert budget %s: %w", bg.Category, err)
		}
	}
	return nil
}

func (b *Backend) Authenticate(ctx context.Context, c auth.Credentials) (core.User, error) {
	return b.auth.Authenticate(ctx, c)
}

// FindByEmail implements auth.CredentialRepository.
func (b *Backend) FindByEmail(ctx context.Context, email string) (auth.Account, error) {
	var acc auth.Account
	err := b.db.QueryRowContext(ctx,
		`SELECT uid, email, name, password_hash, created_at FROM accounts WHERE email = $1`, email,
	).Scan(&acc.UID, &acc.Email, &acc.Name, &acc.PasswordHash, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, core.ErrNotFound
	}
	if err != nil {
		return auth.Account{}, unavailable("find account", err)
	}
	return acc, nil
}

// Create implements auth.CredentialRepository.
func (b *Backend) Create(ctx context.Context, acc auth.Account) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO accounts (uid, email, name, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		acc.UID, acc.Email, acc.Name, acc.PasswordHash, acc.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return core.ErrEmailAlreadyInUse
	}
	if err != nil {
		return unavailable("create account", err)
	}
	return nil
}

// Close stops the listener and closes the pool.
func (b *Backend) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		close(b.done)
		b.mu.Lock()
		n := b.notifier
		b.listeners = make(map[string]map[int]func(core.Snapshot))
		b.mu.Unlock()
		if n != nil {
			if err := n.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close listener: %w", err))
			}
		}
		b.wg.Wait()
		if err := b.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	})
	return errors.Join(errs...)
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", core.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", core.ErrStorageUnavailable, op, err)
}
