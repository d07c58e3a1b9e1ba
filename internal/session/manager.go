// Package session maps bearer tokens to per-session stores and expires idle
// sessions in the background.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"carteira/internal/auth"
	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/store"
)

// Backend is what a session needs: the store's persistence plus sign-in.
type Backend interface {
	store.Backend
	Authenticate(ctx context.Context, c auth.Credentials) (core.User, error)
}

// Config holds configuration for the session manager
type Config struct {
	// TTL is how long a session may stay idle (default: 12h)
	TTL time.Duration

	// SweepInterval is how often idle sessions are collected (default: 1m)
	SweepInterval time.Duration

	// CloseTimeout bounds flushing a session's writes on expiry (default: 10s)
	CloseTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:           12 * time.Hour,
		SweepInterval: time.Minute,
		CloseTimeout:  10 * time.Second,
	}
}

// Session is one signed-in client.
type Session struct {
	Token  string
	UserID string
	Store  *store.Store

	lastSeen time.Time
}

type Manager struct {
	backend   Backend
	storeOpts []store.Option
	config    Config
	logger    *log.Logger
	clock     func() time.Time
	newToken  func() string

	mu       sync.Mutex
	sessions map[string]*Session

	// Lifecycle management
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type Option func(*Manager)

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l.WithComponent(log.ComponentSession)
		}
	}
}

// WithStoreOptions are applied to every store the manager creates.
func WithStoreOptions(opts ...store.Option) Option {
	return func(m *Manager) { m.storeOpts = append(m.storeOpts, opts...) }
}

func WithClock(fn func() time.Time) Option { return func(m *Manager) { m.clock = fn } }

func WithTokenGenerator(fn func() string) Option { return func(m *Manager) { m.newToken = fn } }

func NewManager(backend Backend, config Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = def.SweepInterval
	}
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = def.CloseTimeout
	}
	m := &Manager{
		backend:  backend,
		config:   config,
		logger:   log.Discard(),
		clock:    time.Now,
		newToken: uuid.NewString,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SignIn authenticates c, hydrates a fresh store for the user and returns
// the new session.
func (m *Manager) SignIn(ctx context.Context, c auth.Credentials) (*Session, error) {
	user, err := m.backend.Authenticate(ctx, c)
	if err != nil {
		return nil, err
	}

	st := store.New(m.backend, m.storeOpts...)
	st.SetUser(ctx, &user)
	if err := st.Hydrate(ctx); err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("hydrate: %w", err)
	}

	s := &Session{Token: m.newToken(), UserID: user.UID, Store: st, lastSeen: m.clock()}
	m.mu.Lock()
	m.sessions[s.Token] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Session opened", log.NewFields().WithUser(user.UID).WithOperation(log.OpAuth).ToSlice()...)
	m.logger.DebugContext(ctx, "Active sessions", "count", count)
	return s, nil
}

// Get returns the live session for token and marks it as used. Unknown or
// expired tokens yield core.ErrNoActiveUser.
func (m *Manager) Get(ctx context.Context, token string) (*Session, error) {
	now := m.clock()
	m.mu.Lock()
	s, ok := m.sessions[token]
	if ok && now.Sub(s.lastSeen) > m.config.TTL {
		delete(m.sessions, token)
		m.mu.Unlock()
		m.closeSession(ctx, s, "expired")
		return nil, core.ErrNoActiveUser
	}
	if !ok {
		m.mu.Unlock()
		return nil, core.ErrNoActiveUser
	}
	s.lastSeen = now
	m.mu.Unlock()
	return s, nil
}

// SignOut clears the session's data and closes its store. Unknown tokens
// are ignored.
func (m *Manager) SignOut(ctx context.Context, token string) {
	m.mu.Lock()
	s, ok := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()
	if ok {
		m.closeSession(ctx, s, "signed out")
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes every session idle for longer than the TTL and returns how
// many were closed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.clock()
	var expired []*Session
	m.mu.Lock()
	for token, s := range m.sessions {
		if now.Sub(s.lastSeen) > m.config.TTL {
			expired = append(expired, s)
			delete(m.sessions, token)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.closeSession(ctx, s, "expired")
	}
	if len(expired) > 0 {
		m.logger.InfoContext(ctx, "Expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// CloseAll closes every session, flushing pending writes.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		m.closeSession(ctx, s, "shutdown")
	}
}

func (m *Manager) closeSession(ctx context.Context, s *Session, reason string) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.CloseTimeout)
	defer cancel()

	s.Store.SetUser(closeCtx, nil)
	if err := s.Store.Close(closeCtx); err != nil {
		m.logger.WarnContext(ctx, "Session store did not close cleanly",
			append(log.NewFields().WithUser(s.UserID).WithError(err).ToSlice(), "reason", reason)...)
		return
	}
	m.logger.InfoContext(ctx, "Session closed", "user_id", s.UserID, "reason", reason)
}

// Start begins the sweep loop. Returns an error if already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("session manager is already running")
	}
	m.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	m.stopCh, m.doneCh = stopCh, doneCh
	m.mu.Unlock()

	go m.runLoop(ctx, stopCh, doneCh)

	m.logger.InfoContext(ctx, "Session sweeper started",
		"ttl", m.config.TTL,
		"sweep_interval", m.config.SweepInterval)
	return nil
}

// Stop halts the sweep loop and waits for it to exit. The manager counts as
// stopped even when ctx expires first.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.running = false
	m.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		m.logger.InfoContext(ctx, "Session sweeper stopped")
		return nil
	case <-ctx.Done():
		m.logger.WarnContext(ctx, "Session sweeper stop timed out")
		return ctx.Err()
	}
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}
