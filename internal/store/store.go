// Package store holds the authoritative in-memory finance snapshot of one
// session and writes every change through to the configured backend.
package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/services"
)

// Backend is the part of the persistence adapter the store relies on.
type Backend interface {
	Load(ctx context.Context, userID string) (core.Snapshot, error)
	Save(ctx context.Context, userID string, kind core.EntityKind, records any) error
	Subscribe(ctx context.Context, userID string, onChange func(core.Snapshot)) (unsubscribe func(), err error)
}

// EventPublisher receives committed transaction mutations. amqp.Client
// satisfies it.
type EventPublisher interface {
	PublishTransactionCreated(ctx context.Context, tx core.Transaction) error
	PublishTransactionDeleted(ctx context.Context, tx core.Transaction) error
}

// ProfileUpdate carries the profile fields to change; nil fields are kept.
type ProfileUpdate struct {
	Name              *string
	BiometricsEnabled *bool
}

// Store is safe for concurrent use. Mutations are applied in the order they
// acquire the store lock; persistence happens on a single background writer
// in the same order.
type Store struct {
	backend   Backend
	publisher EventPublisher
	replayer  *services.Replayer
	logger    *log.Logger
	clock     func() time.Time
	newID     func() string

	mu          sync.Mutex
	snap        core.Snapshot
	unsubscribe func()
	listeners   map[int]func(core.Snapshot)
	nextID      int

	// writer state, guarded by mu
	queue   []writeRequest
	pending int
	closed  bool

	wake      chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	notices   chan Notice
	closeOnce sync.Once

	// nil without a publisher
	events     chan event
	eventsDone chan struct{}
}

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentStore)
		}
	}
}

// WithPublisher fans committed transaction mutations out to p.
func WithPublisher(p EventPublisher) Option { return func(s *Store) { s.publisher = p } }

// WithClock overrides the time source used for default dates and replay.
func WithClock(fn func() time.Time) Option { return func(s *Store) { s.clock = fn } }

func WithIDGenerator(fn func() string) Option { return func(s *Store) { s.newID = fn } }

// WithReplayer replaces the default monthly replayer.
func WithReplayer(r *services.Replayer) Option { return func(s *Store) { s.replayer = r } }

// WithNoticeBuffer sets how many undelivered notices are kept.
func WithNoticeBuffer(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.notices = make(chan Notice, n)
		}
	}
}

// New creates a store bound to backend and starts its writer.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		logger:    log.Discard(),
		clock:     time.Now,
		newID:     uuid.NewString,
		listeners: make(map[int]func(core.Snapshot)),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		notices:   make(chan Notice, 32),
	}
	for _, o := range opts {
		o(s)
	}
	if s.replayer == nil {
		s.replayer = services.NewReplayer(
			services.WithIDGenerator(s.newID),
			services.WithReplayLogger(s.logger))
	}
	go s.runWriter()
	if s.publisher != nil {
		s.events = make(chan event, eventBuffer)
		s.eventsDone = make(chan struct{})
		go s.runPublisher()
	}
	return s
}

// Hydrate loads the active user's data, replays stale subscriptions and
// subscribes to remote changes. Read failures degrade to an empty snapshot
// and are reported as a notice, never as an error.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	if s.snap.User == nil {
		s.mu.Unlock()
		return core.ErrNoActiveUser
	}
	userID := s.snap.User.UID
	s.mu.Unlock()

	loaded, err := s.backend.Load(ctx, userID)
	firstSession := err == nil && loaded.User == nil
	switch {
	case errors.Is(err, core.ErrNotFound):
		firstSession = true
		s.logger.InfoContext(ctx, "No stored data, starting empty", log.NewFields().WithUser(userID).ToSlice()...)
		loaded = core.Snapshot{}
	case err != nil:
		s.logger.ErrorContext(ctx, "Failed to load snapshot, starting empty",
			log.NewFields().WithUser(userID).WithOperation(log.OpLoad).WithError(err).ToSlice()...)
		s.notify(Notice{Op: log.OpLoad, UserID: userID, Err: err, At: s.clock()})
		loaded = core.Snapshot{}
	}

	s.mu.Lock()
	if s.snap.User == nil || s.snap.User.UID != userID {
		// session changed while loading
		s.mu.Unlock()
		return nil
	}
	s.applyLocked(loaded)
	if firstSession {
		// nothing stored for this user yet; an unreadable backend does not count
		s.enqueueLocked(userID, core.KindUser, *s.snap.User)
	}
	s.mu.Unlock()

	if _, err := s.ReplaySubscriptions(ctx); err != nil {
		return err
	}

	unsub, err := s.backend.Subscribe(ctx, userID, func(snap core.Snapshot) { s.onRemote(userID, snap) })
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to subscribe to remote changes",
			log.NewFields().WithUser(userID).WithOperation(log.OpSubscribe).WithError(err).ToSlice()...)
		s.notify(Notice{Op: log.OpSubscribe, UserID: userID, Err: err, At: s.clock()})
	} else {
		s.mu.Lock()
		stale := unsub
		if !s.closed && s.snap.User != nil && s.snap.User.UID == userID {
			stale = s.unsubscribe
			s.unsubscribe = unsub
		}
		s.mu.Unlock()
		if stale != nil {
			stale()
		}
	}

	s.logger.InfoContext(ctx, "Store hydrated",
		"user_id", userID,
		"transactions", len(loaded.Transactions),
		"goals", len(loaded.Goals),
		"budgets", len(loaded.Budgets))
	s.emit()
	return nil
}

// applyLocked replaces the collections with loaded and merges the stored
// profile into the active user. The caller holds mu.
func (s *Store) applyLocked(loaded core.Snapshot) {
	loaded = loaded.Clone()
	core.SortNewestFirst(loaded.Transactions)
	s.snap.Transactions = loaded.Transactions
	s.snap.Goals = loaded.Goals
	s.snap.Budgets = loaded.Budgets
	if loaded.User != nil && s.snap.User != nil {
		if loaded.User.Name != "" {
			s.snap.User.Name = loaded.User.Name
		}
		s.snap.User.BiometricsEnabled = loaded.User.BiometricsEnabled
	}
}

// onRemote handles a backend push. Pushes are ignored while local writes are
// outstanding since memory is newer than anything the backend can report.
func (s *Store) onRemote(userID string, snap core.Snapshot) {
	s.mu.Lock()
	if s.closed || s.snap.User == nil || s.snap.User.UID != userID {
		s.mu.Unlock()
		return
	}
	if s.pending > 0 {
		s.mu.Unlock()
		s.logger.Debug("Ignoring remote change while writes are pending", "user_id", userID)
		return
	}
	s.applyLocked(snap)
	s.mu.Unlock()

	s.logger.Debug("Applied remote change", "user_id", userID, "transactions", len(snap.Transactions))
	s.emit()
}

// SetUser replaces the active session. nil signs out: every collection is
// cleared and the remote subscription is released. Switching to another
// user does the same; call Hydrate afterwards to load the new user's data.
func (s *Store) SetUser(ctx context.Context, u *core.User) {
	s.mu.Lock()
	var teardown func()
	if u == nil || (s.snap.User != nil && s.snap.User.UID != u.UID) {
		teardown = s.unsubscribe
		s.unsubscribe = nil
		s.snap = core.Snapshot{}
	}
	if u != nil {
		cp := *u
		s.snap.User = &cp
	}
	s.mu.Unlock()

	if teardown != nil {
		teardown()
	}
	if u == nil {
		s.logger.InfoContext(ctx, "Session cleared")
	} else {
		s.logger.InfoContext(ctx, "Active user set", log.NewFields().WithUser(u.UID).ToSlice()...)
	}
	s.emit()
}

// UpdateProfile renames the user or toggles biometrics.
func (s *Store) UpdateProfile(ctx context.Context, p ProfileUpdate) (core.User, error) {
	var name string
	if p.Name != nil {
		name = strings.TrimSpace(*p.Name)
		if name == "" {
			return core.User{}, core.ErrEmptyName
		}
	}

	s.mu.Lock()
	if s.snap.User == nil {
		s.mu.Unlock()
		return core.User{}, core.ErrNoActiveUser
	}
	if p.Name != nil {
		s.snap.User.Name = name
	}
	if p.BiometricsEnabled != nil {
		s.snap.User.BiometricsEnabled = *p.BiometricsEnabled
	}
	u := *s.snap.User
	s.enqueueLocked(u.UID, core.KindUser, u)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Profile updated", log.NewFields().WithUser(u.UID).WithOperation(log.OpUpdate).ToSlice()...)
	s.emit()
	return u, nil
}

// OnChange registers fn to receive a copy of the snapshot after every local
// mutation or applied remote change. The returned func removes it.
func (s *Store) OnChange(fn func(core.Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) emit() {
	s.mu.Lock()
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	snap := s.snap.Clone()
	fns := make([]func(core.Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap.Clone())
	}
}

// Close flushes queued writes, releases the remote subscription and stops
// the writer. Mutations after Close stay in memory only.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if ferr := s.Flush(ctx); ferr != nil {
			err = ferr
		}

		s.mu.Lock()
		s.closed = true
		unsub := s.unsubscribe
		s.unsubscribe = nil
		s.mu.Unlock()
		if unsub != nil {
			unsub()
		}

		close(s.stopCh)
		eventsDone := make(chan struct{})
		if s.events != nil {
			// no sends after closed is set; they happen under mu
			close(s.events)
			eventsDone = s.eventsDone
		} else {
			close(eventsDone)
		}
		select {
		case <-s.doneCh:
		case <-ctx.Done():
		}
		select {
		case <-eventsDone:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			s.logger.WarnContext(ctx, "Store close timed out")
			if err == nil {
				err = ctx.Err()
			}
			return
		}
		s.logger.InfoContext(ctx, "Store closed")
	})
	return err
}
