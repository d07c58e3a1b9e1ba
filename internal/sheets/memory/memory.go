// Package memory is an in-process TransactionMirror. The worker falls back to
// it when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"carteira/internal/core"
	"carteira/internal/sheets"
)

var _ sheets.TransactionMirror = (*Mirror)(nil)

type Mirror struct {
	mu   sync.Mutex
	rows [][]any
	byID map[string]int
}

func New() *Mirror {
	return &Mirror{byID: make(map[string]int)}
}

// AppendTransaction stores the row and returns a synthetic row reference.
func (m *Mirror) AppendTransaction(_ context.Context, tx core.Transaction) (string, error) {
	if tx.ID == "" {
		return "", fmt.Errorf("transaction without id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byID[tx.ID]; ok {
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	m.rows = append(m.rows, sheets.Row(tx))
	m.byID[tx.ID] = len(m.rows) - 1
	return fmt.Sprintf("mem:%d", len(m.rows)), nil
}

// RemoveTransaction blanks the row like a sheet clear does, keeping the
// positions of the rows below it.
func (m *Mirror) RemoveTransaction(_ context.Context, tx core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byID[tx.ID]
	if !ok {
		return nil
	}
	m.rows[i] = nil
	delete(m.byID, tx.ID)
	return nil
}

// Rows returns the non-cleared rows in insertion order.
func (m *Mirror) Rows() [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]any, 0, len(m.byID))
	for _, r := range m.rows {
		if r != nil {
			out = append(out, append([]any(nil), r...))
		}
	}
	return out
}

// Has reports whether the transaction is currently mirrored.
func (m *Mirror) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}
