package store

import "carteira/internal/core"

// Aggregates are recomputed from the transaction list on every call.

func (s *Store) Totals() core.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.ComputeTotals(s.snap.Transactions)
}

func (s *Store) Income() core.Money   { return s.Totals().Income }
func (s *Store) Expenses() core.Money { return s.Totals().Expenses }
func (s *Store) Balance() core.Money  { return s.Totals().Balance }

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// User returns a copy of the active user, or nil when signed out.
func (s *Store) User() *core.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.User == nil {
		return nil
	}
	u := *s.snap.User
	return &u
}

// RecentTransactions returns up to n of the newest transactions.
func (s *Store) RecentTransactions(n int) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return nil
	}
	if n > len(s.snap.Transactions) {
		n = len(s.snap.Transactions)
	}
	return append([]core.Transaction(nil), s.snap.Transactions[:n]...)
}
