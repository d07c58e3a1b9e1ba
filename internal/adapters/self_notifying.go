// Package adapters turns request/response stores into full backends.
package adapters

import (
	"context"
	"sync"

	"carteira/internal/auth"
	"carteira/internal/core"
	"carteira/internal/log"
)

// LocalStore is a backend without a push channel.
type LocalStore interface {
	Load(ctx context.Context, userID string) (core.Snapshot, error)
	Save(ctx context.Context, userID string, kind core.EntityKind, records any) error
	Authenticate(ctx context.Context, c auth.Credentials) (core.User, error)
	Close() error
}

// SelfNotifying adapts a LocalStore so that Subscribe works: after every
// successful Save the user's snapshot is re-read and handed synchronously to
// that user's listeners. Failed saves notify nobody.
type SelfNotifying struct {
	LocalStore

	mu        sync.Mutex
	nextID    int
	listeners map[string]map[int]func(core.Snapshot)
	logger    *log.Logger
}

func NewSelfNotifying(store LocalStore, logger *log.Logger) *SelfNotifying {
	if logger == nil {
		logger = log.Discard()
	}
	return &SelfNotifying{
		LocalStore: store,
		listeners:  make(map[string]map[int]func(core.Snapshot)),
		logger:     logger.WithComponent(log.ComponentBackend),
	}
}

// Save persists through the wrapped store and then notifies listeners.
func (s *SelfNotifying) Save(ctx context.Context, userID string, kind core.EntityKind, records any) error {
	if err := s.LocalStore.Save(ctx, userID, kind, records); err != nil {
		return err
	}

	fns := s.snapshotListeners(userID)
	if len(fns) == 0 {
		return nil
	}
	snap, err := s.LocalStore.Load(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "Reload after save failed, listeners not notified",
			log.NewFields().WithUser(userID).WithKind(string(kind)).WithError(err).ToSlice()...)
		return nil
	}
	for _, fn := range fns {
		fn(snap.Clone())
	}
	return nil
}

// Subscribe registers onChange for userID. It never blocks.
func (s *SelfNotifying) Subscribe(_ context.Context, userID string, onChange func(core.Snapshot)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.listeners[userID] == nil {
		s.listeners[userID] = make(map[int]func(core.Snapshot))
	}
	s.listeners[userID][id] = onChange

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners[userID], id)
			if len(s.listeners[userID]) == 0 {
				delete(s.listeners, userID)
			}
		})
	}, nil
}

// Close drops every listener and closes the wrapped store.
func (s *SelfNotifying) Close() error {
	s.mu.Lock()
	s.listeners = make(map[string]map[int]func(core.Snapshot))
	s.mu.Unlock()
	return s.LocalStore.Close()
}

func (s *SelfNotifying) snapshotListeners(userID string) []func(core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fns := make([]func(core.Snapshot), 0, len(s.listeners[userID]))
	for _, fn := range s.listeners[userID] {
		fns = append(fns, fn)
	}
	return fns
}
