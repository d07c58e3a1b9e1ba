package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"carteira/internal/amqp"
	"carteira/internal/log"
	"carteira/internal/sheets"
)

// SyncWorker mirrors transaction events into a spreadsheet.
type SyncWorker struct {
	mirror sheets.TransactionMirror
	logger *log.Logger

	synced  atomic.Int64
	removed atomic.Int64
	dropped atomic.Int64
}

// Stats counts handled events since the worker started.
type Stats struct {
	Synced  int64
	Removed int64
	Dropped int64
}

func NewSyncWorker(mirror sheets.TransactionMirror, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{mirror: mirror, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleEvent is an amqp.Handler. Returning an error requeues the event;
// permanent mirror failures are logged and dropped instead.
func (w *SyncWorker) HandleEvent(ctx context.Context, e *amqp.TransactionEvent) error {
	fields := log.NewFields().WithUser(e.UserID).WithOperation(log.OpSync)
	w.logger.InfoContext(ctx, "Processing transaction event",
		append(fields.ToSlice(), "type", string(e.Type), "transaction_id", e.Transaction.ID)...)

	var err error
	switch e.Type {
	case amqp.EventCreated:
		err = w.syncCreated(ctx, e)
	case amqp.EventDeleted:
		err = w.syncDeleted(ctx, e)
	default:
		err = fmt.Errorf("%w: unknown event type %q", sheets.ErrPermanent, e.Type)
	}

	if errors.Is(err, sheets.ErrPermanent) {
		w.dropped.Add(1)
		w.logger.ErrorContext(ctx, "Dropping event that cannot be mirrored",
			append(fields.WithError(err).ToSlice(), "transaction_id", e.Transaction.ID)...)
		return nil
	}
	return err
}

func (w *SyncWorker) syncCreated(ctx context.Context, e *amqp.TransactionEvent) error {
	tx := e.Transaction
	if tx.UserID == "" {
		tx.UserID = e.UserID
	}
	ref, err := w.mirror.AppendTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}
	w.synced.Add(1)
	w.logger.InfoContext(ctx, "Successfully synced transaction",
		"transaction_id", tx.ID,
		"sheets_ref", ref,
		"description", tx.Description,
		"amount", tx.Amount.String())
	return nil
}

func (w *SyncWorker) syncDeleted(ctx context.Context, e *amqp.TransactionEvent) error {
	if err := w.mirror.RemoveTransaction(ctx, e.Transaction); err != nil {
		return fmt.Errorf("remove from sheets: %w", err)
	}
	w.removed.Add(1)
	w.logger.InfoContext(ctx, "Successfully removed transaction", "transaction_id", e.Transaction.ID)
	return nil
}

func (w *SyncWorker) Stats() Stats {
	return Stats{Synced: w.synced.Load(), Removed: w.removed.Load(), Dropped: w.dropped.Load()}
}
