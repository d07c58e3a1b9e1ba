package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carteira/internal/core"
)

// EventType names what happened to a transaction.
type EventType string

const (
	EventCreated EventType = "created"
	EventDeleted EventType = "deleted"
)

// TransactionEvent is published after a committed transaction mutation.
// It carries the whole record so consumers never read the user's store.
type TransactionEvent struct {
	Type        EventType        `json:"type"`
	UserID      string           `json:"userId"`
	Transaction core.Transaction `json:"transaction"`
	Timestamp   time.Time        `json:"timestamp"`
}

func NewTransactionEvent(typ EventType, tx core.Transaction) *TransactionEvent {
	return &TransactionEvent{
		Type:        typ,
		UserID:      tx.UserID,
		Transaction: tx,
		Timestamp:   time.Now(),
	}
}

func (e *TransactionEvent) Validate() error {
	if e.Type != EventCreated && e.Type != EventDeleted {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.UserID == "" {
		return errors.New("event without user")
	}
	if e.Transaction.ID == "" {
		return errors.New("event without transaction id")
	}
	return nil
}

func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates an event.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
