package cloud

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"carteira/internal/core"
	"carteira/internal/log"
)

// Notifier is the part of *pq.Listener that Subscribe relies on.
type Notifier interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

func pqNotifier(dsn string, logger *log.Logger) func() (Notifier, error) {
	return func() (Notifier, error) {
		report := func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Warn("Postgres listener event", "event", ev, log.FieldError, err)
			}
		}
		return pq.NewListener(dsn, 10*time.Second, time.Minute, report), nil
	}
}

// Subscribe calls onChange with a freshly loaded snapshot whenever any writer
// commits a change to userID's data. The listener connection is opened on
// first use and shared by all subscriptions.
func (b *Backend) Subscribe(ctx context.Context, userID string, onChange func(core.Snapshot)) (func(), error) {
	if err := b.ensureListening(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.listeners[userID] == nil {
		b.listeners[userID] = make(map[int]func(core.Snapshot))
	}
	b.listeners[userID][id] = onChange
	b.mu.Unlock()

	b.logger.DebugContext(ctx, "Subscribed to changes", log.FieldUserID, userID)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners[userID], id)
			if len(b.listeners[userID]) == 0 {
				delete(b.listeners, userID)
			}
		})
	}, nil
}

func (b *Backend) ensureListening() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.done:
		return fmt.Errorf("%w: backend closed", core.ErrStorageUnavailable)
	default:
	}
	if b.notifier != nil {
		return nil
	}
	if b.newNotifier == nil {
		return fmt.Errorf("%w: no change listener configured", core.ErrStorageUnavailable)
	}
	n, err := b.newNotifier()
	if err != nil {
		return unavailable("create listener", err)
	}
	if err := n.Listen(ChangesChannel); err != nil {
		n.Close()
		return unavailable("listen", err)
	}
	b.notifier = n
	b.wg.Add(1)
	go b.listenLoop(n)
	return nil
}

func (b *Backend) listenLoop(n Notifier) {
	defer b.wg.Done()
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-b.done:
			return
		case note, ok := <-n.NotificationChannel():
			if !ok {
				return
			}
			if note == nil {
				// Reconnected: anything could have been missed.
				for _, userID := range b.subscribedUsers() {
					b.dispatch(userID)
				}
				continue
			}
			b.dispatch(note.Extra)
		case <-ping.C:
			go func() {
				if err := n.Ping(); err != nil {
					b.logger.Warn("Postgres listener ping failed", log.FieldError, err)
				}
			}()
		}
	}
}

func (b *Backend) subscribedUsers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	users := make([]string, 0, len(b.listeners))
	for id := range b.listeners {
		users = append(users, id)
	}
	return users
}

func (b *Backend) dispatch(userID string) {
	b.mu.Lock()
	fns := make([]func(core.Snapshot), 0, len(b.listeners[userID]))
	for _, fn := range b.listeners[userID] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	if len(fns) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.reloadWithin)
	defer cancel()
	snap, err := b.Load(ctx, userID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		b.logger.Error("Reload after change notification failed",
			log.NewFields().WithUser(userID).WithOperation(log.OpSubscribe).WithError(err).ToSlice()...)
		return
	}
	for _, fn := range fns {
		fn(snap.Clone())
	}
}
