// Package storage is the local SQLite backend. Each user's data is kept as
// four JSON blobs (user, transactions, goals, budgets), every one tagged with
// the schema version it was written with.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"carteira/internal/auth"
	"carteira/internal/core"
	"carteira/internal/log"

	_ "modernc.org/sqlite"
)

// SchemaVersion tags every blob written by this build. Blobs written by a
// newer build still load; unknown fields are ignored.
const SchemaVersion = 1

type SQLiteRepository struct {
	db     *sql.DB
	auth   *auth.Service
	logger *log.Logger
}

type Option func(*SQLiteRepository)

func WithLogger(l *log.Logger) Option {
	return func(r *SQLiteRepository) { r.logger = l.WithComponent(log.ComponentStorage) }
}

// WithAuthOptions forwards options to the embedded auth service.
func WithAuthOptions(opts ...auth.Option) Option {
	return func(r *SQLiteRepository) { r.auth = auth.NewService(r, opts...) }
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has a single writer; queue in the pool instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{db: db, logger: log.Discard().WithComponent(log.ComponentStorage)}
	for _, o := range opts {
		o(repo)
	}
	if repo.auth == nil {
		repo.auth = auth.NewService(repo, auth.WithLogger(repo.logger))
	}
	repo.logger.Info("SQLite database ready", "db_path", dbPath, "migration_version", version)
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load reads every blob stored for userID.
func (r *SQLiteRepository) Load(ctx context.Context, userID string) (core.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, schema_version, payload FROM collections WHERE user_id = ?`, userID)
	if err != nil {
		return core.Snapshot{}, unavailable("query collections", err)
	}
	defer rows.Close()

	var (
		snap  core.Snapshot
		found int
	)
	for rows.Next() {
		var (
			kind    string
			version int
			payload string
		)
		if err := rows.Scan(&kind, &version, &payload); err != nil {
			return core.Snapshot{}, unavailable("scan collection", err)
		}
		if version > SchemaVersion {
			r.logger.WarnContext(ctx, "Collection written by a newer schema, decoding known fields",
				log.FieldUserID, userID, log.FieldKind, kind, "schema_version", version)
		}
		if err := snap.DecodeRecords(core.EntityKind(kind), []byte(payload)); err != nil {
			// One corrupt blob must not hide the others.
			r.logger.ErrorContext(ctx, "Skipping undecodable collection",
				log.NewFields().WithUser(userID).WithKind(kind).WithError(err).ToSlice()...)
			continue
		}
		found++
	}
	if err := rows.Err(); err != nil {
		return core.Snapshot{}, unavailable("iterate collections", err)
	}
	if found == 0 {
		return core.Snapshot{}, core.ErrNotFound
	}
	core.SortNewestFirst(snap.Transactions)
	return snap, nil
}

// Save overwrites the blob of one kind.
func (r *SQLiteRepository) Save(ctx context.Context, userID string, kind core.EntityKind, records any) error {
	payload, err := core.EncodeRecords(kind, records)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO collections (user_id, kind, schema_version, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, kind) DO UPDATE SET
			schema_version = excluded.schema_version,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		userID, string(kind), SchemaVersion, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return unavailable("save "+string(kind), err)
	}
	r.logger.DebugContext(ctx, "Collection saved", log.FieldUserID, userID, log.FieldKind, string(kind), "bytes", len(payload))
	return nil
}

func (r *SQLiteRepository) Authenticate(ctx context.Context, c auth.Credentials) (core.User, error) {
	return r.auth.Authenticate(ctx, c)
}

// FindByEmail implements auth.CredentialRepository.
func (r *SQLiteRepository) FindByEmail(ctx context.Context, email string) (auth.Account, error) {
	var (
		acc     auth.Account
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT uid, email, name, password_hash, created_at FROM users WHERE email = ?`, email,
	).Scan(&acc.UID, &acc.Email, &acc.Name, &acc.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, core.ErrNotFound
	}
	if err != nil {
		return auth.Account{}, unavailable("find user", err)
	}
	acc.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return acc, nil
}

// Create implements auth.CredentialRepository.
func (r *SQLiteRepository) Create(ctx context.Context, acc auth.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (uid, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		acc.UID, acc.Email, acc.Name, acc.PasswordHash, acc.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.ErrEmailAlreadyInUse
		}
		return unavailable("create user", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", core.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", core.ErrStorageUnavailable, op, err)
}
