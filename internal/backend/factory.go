package backend

import (
	"context"
	"fmt"

	"carteira/internal/adapters"
	"carteira/internal/auth"
	"carteira/internal/cloud"
	"carteira/internal/log"
	"carteira/internal/memory"
	"carteira/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger   *log.Logger
	authOpts []auth.Option
}

// NewFactory creates a new backend factory. authOpts are forwarded to the
// credential service of every backend it builds.
func NewFactory(logger *log.Logger, authOpts ...auth.Option) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentBackend)
	return &DefaultFactory{
		logger:   logger,
		authOpts: append([]auth.Option{auth.WithLogger(logger)}, authOpts...),
	}
}

// CreateBackend implements Factory.CreateBackend. The returned backend
// enforces config.Timeout on every blocking call.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		b   Backend
		err error
	)
	switch config.Type {
	case MemoryBackend:
		b = f.createMemoryBackend()
	case SQLiteBackend:
		b, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		b, err = f.createPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &BackendResult{
		Backend: WithTimeout(b, timeout),
		Cleanup: b.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() Backend {
	f.logger.Info("Initialized memory backend")
	return adapters.NewSelfNotifying(memory.New(f.authOpts...), f.logger)
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (Backend, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath,
		storage.WithLogger(f.logger),
		storage.WithAuthOptions(f.authOpts...))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return adapters.NewSelfNotifying(repo, f.logger), nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (Backend, error) {
	b, err := cloud.Open(ctx, config.DatabaseDSN,
		cloud.WithLogger(f.logger),
		cloud.WithAuthOptions(f.authOpts...))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres backend: %w", err)
	}
	f.logger.Info("Initialized Postgres backend", "channel", cloud.ChangesChannel)
	return b, nil
}
