package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"carteira/internal/amqp"
	"carteira/internal/core"
	"carteira/internal/sheets"
	"carteira/internal/sheets/memory"
)

func sampleTx(id string) core.Transaction {
	return core.Transaction{
		ID:          id,
		Amount:      core.MustParseMoney("99.90"),
		Description: "Academia",
		Category:    "Saúde",
		Type:        core.Expense,
		Date:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		UserID:      "u1",
	}
}

type failingMirror struct{ err error }

func (f failingMirror) AppendTransaction(context.Context, core.Transaction) (string, error) {
	return "", f.err
}

func (f failingMirror) RemoveTransaction(context.Context, core.Transaction) error { return f.err }

func TestHandleEventMirrorsCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	mirror := memory.New()
	w := NewSyncWorker(mirror, nil)

	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventCreated, sampleTx("t1"))); err != nil {
		t.Fatalf("created: %v", err)
	}
	if !mirror.Has("t1") {
		t.Fatal("t1 not mirrored")
	}
	// redelivery
	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventCreated, sampleTx("t1"))); err != nil {
		t.Fatalf("redelivered: %v", err)
	}
	if got := len(mirror.Rows()); got != 1 {
		t.Errorf("rows = %d, want 1", got)
	}

	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventDeleted, sampleTx("t1"))); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if mirror.Has("t1") {
		t.Error("t1 still mirrored")
	}

	st := w.Stats()
	if st.Synced != 2 || st.Removed != 1 || st.Dropped != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestHandleEventFillsUserFromEvent(t *testing.T) {
	mirror := memory.New()
	w := NewSyncWorker(mirror, nil)
	tx := sampleTx("t1")
	tx.UserID = ""
	e := &amqp.TransactionEvent{Type: amqp.EventCreated, UserID: "u9", Transaction: tx}
	if err := w.HandleEvent(context.Background(), e); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if row := mirror.Rows()[0]; row[7] != "u9" {
		t.Errorf("user column = %v", row[7])
	}
}

func TestHandleEventErrors(t *testing.T) {
	transient := errors.New("connection reset")
	tests := []struct {
		name        string
		err         error
		typ         amqp.EventType
		wantErr     bool
		wantDropped int64
	}{
		{"transient create requeues", transient, amqp.EventCreated, true, 0},
		{"transient delete requeues", transient, amqp.EventDeleted, true, 0},
		{"permanent is dropped", fmt.Errorf("%w: bad range", sheets.ErrPermanent), amqp.EventCreated, false, 1},
		{"unknown type is dropped", nil, amqp.EventType("renamed"), false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewSyncWorker(failingMirror{err: tt.err}, nil)
			e := &amqp.TransactionEvent{Type: tt.typ, UserID: "u1", Transaction: sampleTx("t1")}
			err := w.HandleEvent(context.Background(), e)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, transient) {
				t.Errorf("err = %v, want wrapped transient", err)
			}
			if got := w.Stats().Dropped; got != tt.wantDropped {
				t.Errorf("dropped = %d, want %d", got, tt.wantDropped)
			}
		})
	}
}
