package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carteira/internal/auth"
	"carteira/internal/core"
)

var taxonomy = []error{
	core.ErrNotFound,
	core.ErrStorageUnavailable,
	core.ErrInvalidCredentials,
	core.ErrEmailAlreadyInUse,
	core.ErrWeakPassword,
	core.ErrUnknown,
	core.ErrTimeout,
}

// Classify maps err into the persistence error taxonomy. Errors already in
// the taxonomy pass through, deadline expiry becomes core.ErrTimeout and
// anything else is wrapped with fallback.
func Classify(err, fallback error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrTimeout, err)
	}
	for _, target := range taxonomy {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", fallback, err)
}

type timeoutBackend struct {
	next    Backend
	timeout time.Duration
}

// WithTimeout bounds every blocking call of b. A call that outlives the
// deadline returns core.ErrTimeout even when b ignores its context; the
// abandoned call finishes in the background.
func WithTimeout(b Backend, d time.Duration) Backend {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutBackend{next: b, timeout: d}
}

func (t *timeoutBackend) Load(ctx context.Context, userID string) (core.Snapshot, error) {
	var snap core.Snapshot
	err := t.call(ctx, func(ctx context.Context) error {
		var err error
		snap, err = t.next.Load(ctx, userID)
		return err
	})
	if err != nil {
		return core.Snapshot{}, Classify(err, core.ErrStorageUnavailable)
	}
	return snap, nil
}

func (t *timeoutBackend) Save(ctx context.Context, userID string, kind core.EntityKind, records any) error {
	err := t.call(ctx, func(ctx context.Context) error {
		return t.next.Save(ctx, userID, kind, records)
	})
	return Classify(err, core.ErrStorageUnavailable)
}

func (t *timeoutBackend) Subscribe(ctx context.Context, userID string, onChange func(core.Snapshot)) (func(), error) {
	var unsub func()
	err := t.call(ctx, func(ctx context.Context) error {
		var err error
		unsub, err = t.next.Subscribe(ctx, userID, onChange)
		return err
	})
	if err != nil {
		return nil, Classify(err, core.ErrStorageUnavailable)
	}
	return unsub, nil
}

func (t *timeoutBackend) Authenticate(ctx context.Context, c auth.Credentials) (core.User, error) {
	var u core.User
	err := t.call(ctx, func(ctx context.Context) error {
		var err error
		u, err = t.next.Authenticate(ctx, c)
		return err
	})
	if err != nil {
		return core.User{}, Classify(err, core.ErrUnknown)
	}
	return u, nil
}

func (t *timeoutBackend) Close() error {
	return t.next.Close()
}

// call runs fn under a deadline. Results written by fn are only read after
// it has returned, so abandoning it on timeout is race free.
func (t *timeoutBackend) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return core.ErrTimeout
		}
		return ctx.Err()
	}
}
