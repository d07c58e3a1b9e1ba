package store

import (
	"context"

	"carteira/internal/core"
	"carteira/internal/log"
)

// AddTransaction validates d, stamps id, owner and date and prepends the
// result to the transaction list.
func (s *Store) AddTransaction(ctx context.Context, d core.TransactionDraft) (core.Transaction, error) {
	if err := d.Validate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	if s.snap.User == nil {
		s.mu.Unlock()
		return core.Transaction{}, core.ErrNoActiveUser
	}
	tx := core.Transaction{
		ID:             s.newID(),
		Amount:         d.Amount,
		Description:    d.Description,
		Category:       d.Category,
		Type:           d.Type,
		Date:           d.Date,
		IsSubscription: d.IsSubscription,
		UserID:         s.snap.User.UID,
	}
	if tx.Date.IsZero() {
		tx.Date = s.clock()
	}
	if tx.IsSubscription {
		tx.SubscriptionID = tx.ID
	}
	txs := append([]core.Transaction{tx}, s.snap.Transactions...)
	core.SortNewestFirst(txs)
	s.snap.Transactions = txs
	s.enqueueLocked(tx.UserID, core.KindTransactions, txs)
	s.publishLocked(eventCreated, tx)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction added",
		log.NewFields().
			WithUser(tx.UserID).
			WithTransaction(tx.ID, tx.Description, tx.Category, string(tx.Type), tx.Amount.String()).
			ToSlice()...)
	s.emit()
	return tx, nil
}

// DeleteTransaction removes the transaction with id. Unknown ids are ignored.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.snap.User == nil {
		s.mu.Unlock()
		return core.ErrNoActiveUser
	}
	idx := -1
	for i, t := range s.snap.Transactions {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	removed := s.snap.Transactions[idx]
	txs := make([]core.Transaction, 0, len(s.snap.Transactions)-1)
	txs = append(txs, s.snap.Transactions[:idx]...)
	txs = append(txs, s.snap.Transactions[idx+1:]...)
	s.snap.Transactions = txs
	s.enqueueLocked(s.snap.User.UID, core.KindTransactions, txs)
	s.publishLocked(eventDeleted, removed)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction deleted",
		log.NewFields().WithUser(removed.UserID).WithOperation(log.OpDelete).ToSlice()...)
	s.emit()
	return nil
}

func (s *Store) AddGoal(ctx context.Context, d core.GoalDraft) (core.Goal, error) {
	if err := d.Validate(); err != nil {
		return core.Goal{}, err
	}

	s.mu.Lock()
	if s.snap.User == nil {
		s.mu.Unlock()
		return core.Goal{}, core.ErrNoActiveUser
	}
	g := core.Goal{
		ID:            s.newID(),
		Title:         d.Title,
		TargetAmount:  d.TargetAmount,
		CurrentAmount: d.CurrentAmount,
		Icon:          d.Icon,
		UserID:        s.snap.User.UID,
	}
	goals := append(append([]core.Goal(nil), s.snap.Goals...), g)
	s.snap.Goals = goals
	s.enqueueLocked(g.UserID, core.KindGoals, goals)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Goal added", "user_id", g.UserID, "goal_id", g.ID, "target", g.TargetAmount.String())
	s.emit()
	return g, nil
}

// ContributeToGoal adds amount to the goal's current amount. Overshooting
// the target is allowed.
func (s *Store) ContributeToGoal(ctx context.Context, id string, amount core.Money) (core.Goal, error) {
	if err := amount.Validate(); err != nil {
		return core.Goal{}, err
	}

	s.mu.Lock()
	if s.snap.User == nil {
		s.mu.Unlock()
		return core.Goal{}, core.ErrNoActiveUser
	}
	goals := append([]core.Goal(nil), s.snap.Goals...)
	idx := -1
	for i := range goals {
		if goals[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return core.Goal{}, core.ErrNotFound
	}
	goals[idx].CurrentAmount = goals[idx].CurrentAmount.Add(amount)
	g := goals[idx]
	s.snap.Goals = goals
	s.enqueueLocked(s.snap.User.UID, core.KindGoals, goals)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Goal contribution", "user_id", g.UserID, "goal_id", g.ID, "amount", amount.String())
	s.emit()
	return g, nil
}

// UpdateBudget sets the limit for category, creating the budget if needed.
func (s *Store) UpdateBudget(ctx context.Context, category string, limit core.Money) (core.Budget, error) {
	if err := core.ValidateBudget(category, limit); err != nil {
		return core.Budget{}, err
	}

	s.mu.Lock()
	if s.snap.User == nil {
		s.mu.Unlock()
		return core.Budget{}, core.ErrNoActiveUser
	}
	budgets := append([]core.Budget(nil), s.snap.Budgets...)
	b := core.Budget{Category: category, Limit: limit, UserID: s.snap.User.UID}
	found := false
	for i := range budgets {
		if budgets[i].Category == category {
			budgets[i].Limit = limit
			b = budgets[i]
			found = true
			break
		}
	}
	if !found {
		budgets = append(budgets, b)
	}
	s.snap.Budgets = budgets
	s.enqueueLocked(b.UserID, core.KindBudgets, budgets)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Budget updated", "user_id", b.UserID, "category", category, "limit", limit.String())
	s.emit()
	return b, nil
}

// ReplaySubscriptions synthesizes the current cycle's payment for every
// stale subscription and persists them in one batch.
func (s *Store) ReplaySubscriptions(ctx context.Context) ([]core.Transaction, error) {
	now := s.clock()

	s.mu.Lock()
	if s.snap.User == nil {
		s.mu.Unlock()
		return nil, core.ErrNoActiveUser
	}
	clones := s.replayer.Replay(ctx, now, s.snap.Transactions)
	if len(clones) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	userID := s.snap.User.UID
	for i := range clones {
		clones[i].UserID = userID
	}
	txs := make([]core.Transaction, 0, len(clones)+len(s.snap.Transactions))
	txs = append(txs, clones...)
	txs = append(txs, s.snap.Transactions...)
	core.SortNewestFirst(txs)
	s.snap.Transactions = txs
	s.enqueueLocked(userID, core.KindTransactions, txs)
	for _, c := range clones {
		s.publishLocked(eventCreated, c)
	}
	s.mu.Unlock()

	s.emit()
	return clones, nil
}
