package backend

import (
	"context"

	"carteira/internal/auth"
	"carteira/internal/core"
)

// Backend is the persistence capability set every storage variant provides.
//
// Load fails with core.ErrNotFound when nothing is stored for the user and
// with core.ErrStorageUnavailable when the medium cannot be reached. Save
// replaces the whole collection of the given kind. Subscribe registers a
// change listener; the returned unsubscribe func is idempotent.
type Backend interface {
	Load(ctx context.Context, userID string) (core.Snapshot, error)
	Save(ctx context.Context, userID string, kind core.EntityKind, records any) error
	Subscribe(ctx context.Context, userID string, onChange func(core.Snapshot)) (unsubscribe func(), err error)
	Authenticate(ctx context.Context, c auth.Credentials) (core.User, error)
	Close() error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
