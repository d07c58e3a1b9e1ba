package core

import (
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	KindUser         EntityKind = "user"
	KindTransactions EntityKind = "transactions"
	KindGoals        EntityKind = "goals"
	KindBudgets      EntityKind = "budgets"
)

const maxDescriptionLen = 200

type (
	TransactionType string

	// EntityKind names one of the four persisted collections.
	EntityKind string

	User struct {
		UID               string `json:"uid"`
		Email             string `json:"email"`
		Name              string `json:"name"`
		BiometricsEnabled bool   `json:"isBiometricsEnabled"`
	}

	Transaction struct {
		ID             string          `json:"id"`
		Amount         Money           `json:"amount"`
		Description    string          `json:"description"`
		Category       string          `json:"category"`
		Type           TransactionType `json:"type"`
		Date           time.Time       `json:"date"`
		IsSubscription bool            `json:"isSubscription"`
		SubscriptionID string          `json:"subscriptionId,omitempty"`
		UserID         string          `json:"userId"`
	}

	// TransactionDraft is the caller-supplied part of a Transaction.
	// A zero Date means "now".
	TransactionDraft struct {
		Amount         Money
		Description    string
		Category       string
		Type           TransactionType
		Date           time.Time
		IsSubscription bool
	}

	Goal struct {
		ID            string `json:"id"`
		Title         string `json:"title"`
		TargetAmount  Money  `json:"targetAmount"`
		CurrentAmount Money  `json:"currentAmount"`
		Icon          string `json:"icon"`
		UserID        string `json:"userId"`
	}

	GoalDraft struct {
		Title         string
		TargetAmount  Money
		CurrentAmount Money
		Icon          string
	}

	Budget struct {
		Category string `json:"category"`
		Limit    Money  `json:"limit"`
		UserID   string `json:"userId"`
	}

	// Snapshot is the full per-user state held by the store.
	Snapshot struct {
		User         *User         `json:"user,omitempty"`
		Transactions []Transaction `json:"transactions"`
		Goals        []Goal        `json:"goals"`
		Budgets      []Budget      `json:"budgets"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyTitle       = errors.New("empty goal title")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
	ErrEmptyName        = errors.New("empty name")
)

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

func (k EntityKind) IsValid() bool {
	switch k {
	case KindUser, KindTransactions, KindGoals, KindBudgets:
		return true
	default:
		return false
	}
}

// Kinds lists the persisted collections in load order.
func Kinds() []EntityKind {
	return []EntityKind{KindUser, KindTransactions, KindGoals, KindBudgets}
}

func (d TransactionDraft) Validate() error {
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if !d.Type.IsValid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(d.Description) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(d.Description) > maxDescriptionLen {
		return ErrDescriptionLong
	}
	if strings.TrimSpace(d.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (d GoalDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return ErrEmptyTitle
	}
	if err := d.TargetAmount.Validate(); err != nil {
		return err
	}
	if d.CurrentAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateBudget checks an upsert request. Zero limits are allowed and
// mean "no spending planned" for the category.
func ValidateBudget(category string, limit Money) error {
	if strings.TrimSpace(category) == "" {
		return ErrEmptyCategory
	}
	if limit.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Progress returns the completion ratio of the goal in percent.
func (g Goal) Progress() float64 {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	return g.CurrentAmount.Ratio(g.TargetAmount) * 100
}

// SameCycle reports whether a and b fall in the same calendar month of loc.
func SameCycle(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	a, b = a.In(loc), b.In(loc)
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// SortNewestFirst orders transactions by date descending. Ties keep a
// stable order by ID so that listings are deterministic.
func SortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Transactions: append([]Transaction(nil), s.Transactions...),
		Goals:        append([]Goal(nil), s.Goals...),
		Budgets:      append([]Budget(nil), s.Budgets...),
	}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	return out
}

// IsEmpty reports whether the snapshot holds no records at all.
func (s Snapshot) IsEmpty() bool {
	return s.User == nil && len(s.Transactions) == 0 && len(s.Goals) == 0 && len(s.Budgets) == 0
}
