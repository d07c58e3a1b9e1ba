package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"carteira/internal/adapters"
	"carteira/internal/auth"
	"carteira/internal/core"
	"carteira/internal/memory"
)

var march = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return march }

func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// fakeBackend records saves and fails on demand.
type fakeBackend struct {
	mu      sync.Mutex
	saves   []core.EntityKind
	data    map[core.EntityKind]any
	saveErr error
	loadErr error
	load    core.Snapshot
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: map[core.EntityKind]any{}}
}

func (f *fakeBackend) Load(ctx context.Context, userID string) (core.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return core.Snapshot{}, f.loadErr
	}
	if f.load.IsEmpty() {
		return core.Snapshot{}, core.ErrNotFound
	}
	return f.load.Clone(), nil
}

func (f *fakeBackend) Save(ctx context.Context, userID string, kind core.EntityKind, records any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, kind)
	if f.saveErr != nil {
		return f.saveErr
	}
	f.data[kind] = records
	return nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, userID string, onChange func(core.Snapshot)) (func(), error) {
	return func() {}, nil
}

func (f *fakeBackend) saved(kind core.EntityKind) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[kind]
}

type recordingPublisher struct {
	mu      sync.Mutex
	created []string
	deleted []string
}

func (p *recordingPublisher) PublishTransactionCreated(ctx context.Context, tx core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, tx.ID)
	return nil
}

func (p *recordingPublisher) PublishTransactionDeleted(ctx context.Context, tx core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, tx.ID)
	return nil
}

func newTestStore(t *testing.T, b Backend, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock), WithIDGenerator(seqIDs())}, opts...)
	s := New(b, opts...)
	t.Cleanup(func() { s.Close(context.Background()) })
	s.SetUser(context.Background(), &core.User{UID: "u1", Email: "ana@example.com", Name: "ana"})
	return s
}

func expense(amount, desc, category string) core.TransactionDraft {
	return core.TransactionDraft{Amount: core.MustParseMoney(amount), Description: desc, Category: category, Type: core.Expense}
}

func income(amount, desc string) core.TransactionDraft {
	return core.TransactionDraft{Amount: core.MustParseMoney(amount), Description: desc, Category: "Salário", Type: core.Income}
}

func TestStore_AggregatesScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeBackend())

	if _, err := s.AddTransaction(ctx, expense("50", "Almoço", "Alimentação")); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if !s.Income().IsZero() || !s.Expenses().Equal(core.MustParseMoney("50")) || !s.Balance().Equal(core.MustParseMoney("-50")) {
		t.Fatalf("unexpected totals %+v", s.Totals())
	}

	if _, err := s.AddTransaction(ctx, income("200", "Freela")); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if got := s.Balance(); !got.Equal(core.MustParseMoney("150")) {
		t.Fatalf("Balance() = %s, want 150.00", got)
	}
	tot := s.Totals()
	if !tot.Balance.Equal(tot.Income.Sub(tot.Expenses)) {
		t.Fatalf("balance != income - expenses: %+v", tot)
	}
}

func TestStore_AddThenDeleteRestoresAggregates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeBackend())
	s.AddTransaction(ctx, income("1000", "Salário"))
	s.AddTransaction(ctx, expense("12.34", "Café", "Alimentação"))
	before := s.Totals()

	tx, err := s.AddTransaction(ctx, expense("99.99", "Cinema", "Lazer"))
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if err := s.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	after := s.Totals()
	if !after.Income.Equal(before.Income) || !after.Expenses.Equal(before.Expenses) || !after.Balance.Equal(before.Balance) {
		t.Fatalf("totals not restored: before %+v after %+v", before, after)
	}
}

func TestStore_AddTransactionStampsFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeBackend())

	tx, err := s.AddTransaction(ctx, core.TransactionDraft{
		Amount: core.MustParseMoney("39.90"), Description: "Netflix", Category: "Lazer",
		Type: core.Expense, IsSubscription: true,
	})
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if tx.ID == "" || tx.UserID != "u1" || !tx.Date.Equal(march) {
		t.Errorf("unexpected stamping %+v", tx)
	}
	if tx.SubscriptionID != tx.ID {
		t.Errorf("SubscriptionID = %q, want %q", tx.SubscriptionID, tx.ID)
	}

	older := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	old, _ := s.AddTransaction(ctx, core.TransactionDraft{
		Amount: core.MustParseMoney("5"), Description: "Pão", Category: "Alimentação", Type: core.Expense, Date: older,
	})
	recent := s.RecentTransactions(6)
	if len(recent) != 2 || recent[0].ID != tx.ID || recent[1].ID != old.ID {
		t.Errorf("list not newest first: %+v", recent)
	}
}

func TestStore_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeBackend())

	tests := []struct {
		name  string
		draft core.TransactionDraft
		want  error
	}{
		{"zero amount", expense("0", "x", "Lazer"), core.ErrInvalidAmount},
		{"negative amount", expense("-5", "x", "Lazer"), core.ErrInvalidAmount},
		{"empty description", expense("5", " ", "Lazer"), core.ErrEmptyDescription},
		{"empty category", expense("5", "x", ""), core.ErrEmptyCategory},
		{"bad type", core.TransactionDraft{Amount: core.MustParseMoney("5"), Description: "x", Category: "Lazer", Type: "transfer"}, core.ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.AddTransaction(ctx, tt.draft); !errors.Is(err, tt.want) {
				t.Errorf("AddTransaction() error = %v, want %v", err, tt.want)
			}
		})
	}
	if n := len(s.Snapshot().Transactions); n != 0 {
		t.Errorf("invalid drafts were stored: %d", n)
	}
}

func TestStore_RequiresActiveUser(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeBackend())
	defer s.Close(ctx)

	if _, err := s.AddTransaction(ctx, expense("5", "x", "Lazer")); !errors.Is(err, core.ErrNoActiveUser) {
		t.Errorf("AddTransaction() error = %v, want ErrNoActiveUser", err)
	}
	if err := s.Hydrate(ctx); !errors.Is(err, core.ErrNoActiveUser) {
		t.Errorf("Hydrate() error = %v, want ErrNoActiveUser", err)
	}
	if _, err := s.UpdateBudget(ctx, "Lazer", core.MustParseMoney("10")); !errors.Is(err, core.ErrNoActiveUser) {
		t.Errorf("UpdateBudget() error = %v, want ErrNoActiveUser", err)
	}
}

func TestStore_DeleteUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newTestStore(t, b)
	s.AddTransaction(ctx, expense("5", "x", "Lazer"))
	s.Flush(ctx)
	saves := len(b.saves)

	if err := s.DeleteTransaction(ctx, "missing"); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	s.Flush(ctx)
	if len(s.Snapshot().Transactions) != 1 || len(b.saves) != saves {
		t.Errorf("delete of unknown id changed state")
	}
}

func TestStore_UpdateBudgetUpserts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeBackend())

	s.UpdateBudget(ctx, "Lazer", core.MustParseMoney("100"))
	s.UpdateBudget(ctx, "Moradia", core.MustParseMoney("1500"))
	if _, err := s.UpdateBudget(ctx, "Lazer", core.MustParseMoney("250")); err != nil {
		t.Fatalf("UpdateBudget: %v", err)
	}

	var lazer []core.Budget
	for _, b := range s.Snapshot().Budgets {
		if b.Category == "Lazer" {
			lazer = append(lazer, b)
		}
	}
	if len(lazer) != 1 || !lazer[0].Limit.Equal(core.MustParseMoney("250")) || lazer[0].UserID != "u1" {
		t.Fatalf("expected one Lazer budget of 250, got %+v", lazer)
	}
	if _, err := s.UpdateBudget(ctx, "Lazer", core.MustParseMoney("-1")); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative limit error = %v", err)
	}
}

func TestStore_Goals(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeBackend())

	g, err := s.AddGoal(ctx, core.GoalDraft{Title: "Viagem", TargetAmount: core.MustParseMoney("1000"), Icon: "✈️"})
	if err != nil {
		t.Fatalf("AddGoal: %v", err)
	}
	g, err = s.ContributeToGoal(ctx, g.ID, core.MustParseMoney("250"))
	if err != nil {
		t.Fatalf("ContributeToGoal: %v", err)
	}
	if !g.CurrentAmount.Equal(core.MustParseMoney("250")) || g.Progress() != 25 {
		t.Errorf("unexpected goal %+v progress %v", g, g.Progress())
	}
	if _, err := s.ContributeToGoal(ctx, "nope", core.MustParseMoney("1")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown goal error = %v", err)
	}
	if _, err := s.AddGoal(ctx, core.GoalDraft{TargetAmount: core.MustParseMoney("1")}); !errors.Is(err, core.ErrEmptyTitle) {
		t.Errorf("empty title error = %v", err)
	}
}

func TestStore_SignOutClearsEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeBackend())
	s.AddTransaction(ctx, expense("5", "x", "Lazer"))
	s.AddGoal(ctx, core.GoalDraft{Title: "Casa", TargetAmount: core.MustParseMoney("10")})
	s.UpdateBudget(ctx, "Lazer", core.MustParseMoney("10"))

	s.SetUser(ctx, nil)
	snap := s.Snapshot()
	if !snap.IsEmpty() {
		t.Fatalf("expected empty snapshot after sign-out, got %+v", snap)
	}
	if !s.Balance().IsZero() {
		t.Errorf("balance leaked across sessions")
	}
}

func TestStore_WriteFailureKeepsMemoryAndNotifies(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.saveErr = core.ErrStorageUnavailable
	s := newTestStore(t, b)

	if _, err := s.AddTransaction(ctx, expense("5", "x", "Lazer")); err != nil {
		t.Fatalf("AddTransaction must not fail on write errors: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(s.Snapshot().Transactions) != 1 {
		t.Fatalf("memory was rolled back")
	}

	select {
	case n := <-s.Notices():
		if !errors.Is(n.Err, core.ErrStorageUnavailable) || n.Kind != core.KindTransactions {
			t.Errorf("unexpected notice %+v", n)
		}
		if n.Message() == "" {
			t.Errorf("notice without message")
		}
	default:
		t.Fatalf("expected a notice")
	}
}

func TestStore_FlushPersistsWholeCollection(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newTestStore(t, b)
	s.AddTransaction(ctx, expense("1", "a", "Lazer"))
	s.AddTransaction(ctx, expense("2", "b", "Lazer"))
	s.AddTransaction(ctx, expense("3", "c", "Lazer"))
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	txs, ok := b.saved(core.KindTransactions).([]core.Transaction)
	if !ok || len(txs) != 3 {
		t.Fatalf("expected the full collection to be saved, got %#v", b.saved(core.KindTransactions))
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after flush", s.Pending())
	}
}

func TestStore_HydrateDegradesOnReadError(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.loadErr = core.ErrStorageUnavailable
	s := newTestStore(t, b)

	if err := s.Hydrate(ctx); err != nil {
		t.Fatalf("Hydrate must not fail on read errors: %v", err)
	}
	if len(s.Snapshot().Transactions) != 0 {
		t.Errorf("expected empty collections")
	}
	notices := s.DrainNotices()
	if len(notices) != 1 || !errors.Is(notices[0].Err, core.ErrStorageUnavailable) {
		t.Errorf("expected one load notice, got %+v", notices)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := b.saved(core.KindUser); got != nil {
		t.Errorf("stored profile overwritten after failed load: %+v", got)
	}
}

func TestStore_HydrateWritesProfileOnFirstSession(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newTestStore(t, b)

	if err := s.Hydrate(ctx); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	u, ok := b.saved(core.KindUser).(core.User)
	if !ok || u.UID != "u1" || u.Name != "ana" {
		t.Errorf("profile not written for first session: %+v", b.saved(core.KindUser))
	}
}

func TestStore_HydrateMergesStoredProfile(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.load = core.Snapshot{User: &core.User{UID: "u1", Name: "Ana Paula", BiometricsEnabled: true}}
	s := newTestStore(t, b)

	if err := s.Hydrate(ctx); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	u := s.User()
	if u.Name != "Ana Paula" || !u.BiometricsEnabled || u.Email != "ana@example.com" {
		t.Errorf("profile not merged: %+v", u)
	}
}

func TestStore_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newTestStore(t, b)

	on := true
	name := "  Ana  "
	u, err := s.UpdateProfile(ctx, ProfileUpdate{Name: &name, BiometricsEnabled: &on})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.Name != "Ana" || !u.BiometricsEnabled {
		t.Errorf("unexpected user %+v", u)
	}
	s.Flush(ctx)
	if saved, ok := b.saved(core.KindUser).(core.User); !ok || saved.Name != "Ana" {
		t.Errorf("profile not written through: %#v", b.saved(core.KindUser))
	}

	blank := ""
	if _, err := s.UpdateProfile(ctx, ProfileUpdate{Name: &blank}); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("blank name error = %v", err)
	}
}

func TestStore_PublishesTransactionEvents(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s := newTestStore(t, newFakeBackend(), WithPublisher(pub))

	tx, _ := s.AddTransaction(ctx, expense("5", "x", "Lazer"))
	s.DeleteTransaction(ctx, tx.ID)
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.created) != 1 || len(pub.deleted) != 1 || pub.created[0] != tx.ID {
		t.Errorf("unexpected events created=%v deleted=%v", pub.created, pub.deleted)
	}
}

// blockingPublisher holds every publish until release is closed.
type blockingPublisher struct {
	release chan struct{}
	recordingPublisher
}

func (p *blockingPublisher) PublishTransactionCreated(ctx context.Context, tx core.Transaction) error {
	<-p.release
	return p.recordingPublisher.PublishTransactionCreated(ctx, tx)
}

func (p *blockingPublisher) PublishTransactionDeleted(ctx context.Context, tx core.Transaction) error {
	<-p.release
	return p.recordingPublisher.PublishTransactionDeleted(ctx, tx)
}

func TestStore_SlowPublisherDoesNotBlockMutations(t *testing.T) {
	ctx := context.Background()
	pub := &blockingPublisher{release: make(chan struct{})}
	s := newTestStore(t, newFakeBackend(), WithPublisher(pub))

	done := make(chan []string)
	go func() {
		var ids []string
		for _, desc := range []string{"a", "b", "c"} {
			tx, err := s.AddTransaction(ctx, expense("5", desc, "Lazer"))
			if err != nil {
				t.Errorf("AddTransaction: %v", err)
			}
			ids = append(ids, tx.ID)
		}
		s.DeleteTransaction(ctx, ids[0])
		done <- ids
	}()

	var ids []string
	select {
	case ids = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutations blocked on the event publisher")
	}

	close(pub.release)
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if fmt.Sprint(pub.created) != fmt.Sprint(ids) {
		t.Errorf("created events = %v, want %v", pub.created, ids)
	}
	if len(pub.deleted) != 1 || pub.deleted[0] != ids[0] {
		t.Errorf("deleted events = %v", pub.deleted)
	}
}

func TestStore_OnChange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeBackend())

	var got []int
	cancel := s.OnChange(func(snap core.Snapshot) { got = append(got, len(snap.Transactions)) })
	s.AddTransaction(ctx, expense("5", "x", "Lazer"))
	cancel()
	cancel()
	s.AddTransaction(ctx, expense("6", "y", "Lazer"))

	if len(got) != 1 || got[0] != 1 {
		t.Errorf("listener calls = %v, want [1]", got)
	}
}

func newLocalBackend(t *testing.T) *adapters.SelfNotifying {
	t.Helper()
	return adapters.NewSelfNotifying(memory.New(auth.WithHashCost(bcrypt.MinCost)), nil)
}

func TestStore_HydrateReplaysSubscriptionsOnce(t *testing.T) {
	ctx := context.Background()
	b := newLocalBackend(t)
	jan := core.Transaction{
		ID: "jan", Amount: core.MustParseMoney("39.90"), Description: "Netflix", Category: "Lazer",
		Type: core.Expense, Date: time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC), IsSubscription: true, UserID: "u1",
	}
	if err := b.Save(ctx, "u1", core.KindTransactions, []core.Transaction{jan}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := newTestStore(t, b)
	if err := s.Hydrate(ctx); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	txs := s.Snapshot().Transactions
	if len(txs) != 2 {
		t.Fatalf("expected jan + march clone, got %+v", txs)
	}
	clone := txs[0]
	if !clone.Date.Equal(march) || clone.Description != "Netflix" || !clone.Amount.Equal(jan.Amount) || clone.Category != "Lazer" {
		t.Errorf("unexpected clone %+v", clone)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// a second session in the same month sees the persisted clone
	again := newTestStore(t, b)
	if err := again.Hydrate(ctx); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if n := len(again.Snapshot().Transactions); n != 2 {
		t.Fatalf("replay duplicated the subscription: %d transactions", n)
	}
	if clones, _ := again.ReplaySubscriptions(ctx); len(clones) != 0 {
		t.Errorf("explicit replay created %d clones", len(clones))
	}
}

func TestStore_RemoteChangesReachOtherSessions(t *testing.T) {
	ctx := context.Background()
	b := newLocalBackend(t)

	a := newTestStore(t, b)
	other := newTestStore(t, b)
	if err := a.Hydrate(ctx); err != nil {
		t.Fatalf("Hydrate a: %v", err)
	}
	if err := other.Hydrate(ctx); err != nil {
		t.Fatalf("Hydrate other: %v", err)
	}
	a.Flush(ctx)
	other.Flush(ctx)

	tx, _ := a.AddTransaction(ctx, expense("5", "Pão", "Alimentação"))
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	txs := other.Snapshot().Transactions
	if len(txs) != 1 || txs[0].ID != tx.ID {
		t.Fatalf("other session did not receive the change: %+v", txs)
	}
	if len(a.Snapshot().Transactions) != 1 {
		t.Fatalf("own echo changed local state")
	}
}

func TestStore_SignOutStopsRemoteUpdates(t *testing.T) {
	ctx := context.Background()
	b := newLocalBackend(t)

	a := newTestStore(t, b)
	other := newTestStore(t, b)
	a.Hydrate(ctx)
	other.Hydrate(ctx)
	a.Flush(ctx)
	other.Flush(ctx)
	other.SetUser(ctx, nil)

	a.AddTransaction(ctx, expense("5", "Pão", "Alimentação"))
	a.Flush(ctx)
	if !other.Snapshot().IsEmpty() {
		t.Fatalf("signed-out session received data")
	}
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeBackend())
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush after Close: %v", err)
	}
}
