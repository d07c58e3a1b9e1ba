package store

import (
	"context"
	"fmt"
	"time"

	"carteira/internal/core"
	"carteira/internal/log"
)

// Notice reports a failure the user should see without blocking the
// operation that caused it.
type Notice struct {
	Op     string
	UserID string
	Kind   core.EntityKind
	Err    error
	At     time.Time
}

func (n Notice) Error() string {
	if n.Kind != "" {
		return fmt.Sprintf("%s %s: %v", n.Op, n.Kind, n.Err)
	}
	return fmt.Sprintf("%s: %v", n.Op, n.Err)
}

// Message is the user-facing text of the notice.
func (n Notice) Message() string {
	switch n.Op {
	case log.OpSave:
		return "Não foi possível salvar suas alterações. " + core.UserMessage(n.Err)
	case log.OpLoad:
		return "Não foi possível carregar seus dados. " + core.UserMessage(n.Err)
	default:
		return core.UserMessage(n.Err)
	}
}

// Notices delivers write-through and hydration failures. Undelivered notices
// beyond the buffer are dropped.
func (s *Store) Notices() <-chan Notice { return s.notices }

// DrainNotices returns every notice currently buffered without waiting.
func (s *Store) DrainNotices() []Notice {
	var out []Notice
	for {
		select {
		case n := <-s.notices:
			out = append(out, n)
		default:
			return out
		}
	}
}

func (s *Store) notify(n Notice) {
	select {
	case s.notices <- n:
	default:
		s.logger.Warn("Notice buffer full, dropping notice", "op", n.Op, "error", n.Err)
	}
}

type writeRequest struct {
	userID  string
	kind    core.EntityKind
	records any

	// barrier is closed once every earlier request has been attempted.
	barrier chan struct{}
}

// enqueueLocked schedules a whole-collection write. The caller holds mu and
// passes records it no longer mutates.
func (s *Store) enqueueLocked(userID string, kind core.EntityKind, records any) {
	if s.closed {
		s.logger.Warn("Store closed, write dropped", "user_id", userID, "kind", string(kind))
		return
	}
	s.queue = append(s.queue, writeRequest{userID: userID, kind: kind, records: records})
	s.pending++
	s.signal()
}

func (s *Store) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every write queued before the call has been attempted
// or ctx is done.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.queue = append(s.queue, writeRequest{barrier: done})
	s.mu.Unlock()
	s.signal()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of writes queued or in flight.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Store) runWriter() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			s.drain()
			return
		case <-s.wake:
			s.drain()
		}
	}
}

func (s *Store) drain() {
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		if len(batch) == 0 {
			return
		}

		for i, req := range batch {
			if req.barrier != nil {
				close(req.barrier)
				continue
			}
			if superseded(batch[i+1:], req) {
				s.finish(req, nil)
				continue
			}
			s.finish(req, s.write(req))
		}
	}
}

// superseded reports whether a later request before the next barrier
// overwrites the same collection.
func superseded(rest []writeRequest, req writeRequest) bool {
	for _, r := range rest {
		if r.barrier != nil {
			return false
		}
		if r.userID == req.userID && r.kind == req.kind {
			return true
		}
	}
	return false
}

func (s *Store) write(req writeRequest) error {
	start := time.Now()
	err := s.backend.Save(context.Background(), req.userID, req.kind, req.records)
	fields := log.NewFields().
		WithUser(req.userID).
		WithKind(string(req.kind)).
		WithOperation(log.OpSave)
	if err != nil {
		s.logger.Error("Write-through failed", fields.WithError(err).ToSlice()...)
		return err
	}
	s.logger.Debug("Write-through complete", append(fields.ToSlice(), "duration", time.Since(start))...)
	return nil
}

func (s *Store) finish(req writeRequest, err error) {
	s.mu.Lock()
	s.pending--
	s.mu.Unlock()
	if err != nil {
		s.notify(Notice{Op: log.OpSave, UserID: req.userID, Kind: req.kind, Err: err, At: s.clock()})
	}
}
