package store

import (
	"context"

	"carteira/internal/core"
)

const eventBuffer = 256

type eventKind int

const (
	eventCreated eventKind = iota
	eventDeleted
)

type event struct {
	kind eventKind
	tx   core.Transaction
}

// publishLocked queues an event for the publisher goroutine. The caller holds
// mu, so events leave in mutation order. A full buffer drops the event.
func (s *Store) publishLocked(kind eventKind, tx core.Transaction) {
	if s.events == nil || s.closed {
		return
	}
	select {
	case s.events <- event{kind: kind, tx: tx}:
	default:
		s.logger.Warn("Event buffer full, dropping event", "transaction_id", tx.ID)
	}
}

func (s *Store) runPublisher() {
	defer close(s.eventsDone)
	for ev := range s.events {
		var err error
		switch ev.kind {
		case eventCreated:
			err = s.publisher.PublishTransactionCreated(context.Background(), ev.tx)
		case eventDeleted:
			err = s.publisher.PublishTransactionDeleted(context.Background(), ev.tx)
		}
		if err != nil {
			s.logger.Error("Failed to publish transaction event", "transaction_id", ev.tx.ID, "error", err)
		}
	}
}
