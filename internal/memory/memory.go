// Package memory is an ephemeral backend for tests and throwaway sessions.
package memory

import (
	"context"
	"sync"

	"carteira/internal/auth"
	"carteira/internal/core"
)

type Store struct {
	mu       sync.Mutex
	data     map[string]*core.Snapshot
	accounts map[string]auth.Account
	auth     *auth.Service
}

func New(opts ...auth.Option) *Store {
	s := &Store{
		data:     make(map[string]*core.Snapshot),
		accounts: make(map[string]auth.Account),
	}
	s.auth = auth.NewService(s, opts...)
	return s
}

// Load returns a copy of everything stored for userID.
func (s *Store) Load(_ context.Context, userID string) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.data[userID]
	if !ok {
		return core.Snapshot{}, core.ErrNotFound
	}
	return snap.Clone(), nil
}

// Save replaces one collection for userID.
func (s *Store) Save(_ context.Context, userID string, kind core.EntityKind, records any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.data[userID]
	if !ok {
		snap = &core.Snapshot{}
	}
	if err := snap.Set(kind, records); err != nil {
		return err
	}
	s.data[userID] = snap
	return nil
}

func (s *Store) Authenticate(ctx context.Context, c auth.Credentials) (core.User, error) {
	return s.auth.Authenticate(ctx, c)
}

// FindByEmail implements auth.CredentialRepository.
func (s *Store) FindByEmail(_ context.Context, email string) (auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[email]
	if !ok {
		return auth.Account{}, core.ErrNotFound
	}
	return acc, nil
}

// Create implements auth.CredentialRepository.
func (s *Store) Create(_ context.Context, acc auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acc.Email]; ok {
		return core.ErrEmailAlreadyInUse
	}
	s.accounts[acc.Email] = acc
	return nil
}

func (s *Store) Close() error { return nil }
