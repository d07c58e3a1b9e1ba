package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"carteira/internal/core"
	"carteira/internal/log"
)

// ReplaySubscriptions returns the transactions that must be synthesized so
// that every subscription has a payment in the cycle of now. It does not
// modify txs.
//
// A subscription needs a new payment when its own date is in an earlier
// cycle and no other transaction in the current cycle matches it. Two
// transactions match when their descriptions are equal (case-sensitive) or
// when both carry the same SubscriptionID. Clones produced earlier in the
// same scan count as payments, so several stale generations of a
// subscription yield one clone.
func ReplaySubscriptions(now time.Time, txs []core.Transaction, newID func() string) []core.Transaction {
	return replay(MonthlyChecker{Location: now.Location()}, now, txs, newID)
}

func replay(checker CycleChecker, now time.Time, txs []core.Transaction, newID func() string) []core.Transaction {
	var clones []core.Transaction

	paid := func(sub core.Transaction) bool {
		for _, list := range [][]core.Transaction{txs, clones} {
			for _, t := range list {
				if t.ID != sub.ID && matches(t, sub) && checker.SameCycle(t.Date, now) {
					return true
				}
			}
		}
		return false
	}

	for _, sub := range txs {
		if !sub.IsSubscription || checker.SameCycle(sub.Date, now) {
			continue
		}
		if paid(sub) {
			continue
		}
		clone := sub
		clone.ID = newID()
		clone.Date = now
		clones = append(clones, clone)
	}
	return clones
}

func matches(t, sub core.Transaction) bool {
	if t.Description == sub.Description {
		return true
	}
	return sub.SubscriptionID != "" && t.SubscriptionID == sub.SubscriptionID
}

// Replayer runs the replay with logging and an injectable clock.
type Replayer struct {
	checker CycleChecker
	newID   func() string
	logger  *log.Logger
}

type ReplayerOption func(*Replayer)

func WithCycleChecker(c CycleChecker) ReplayerOption { return func(r *Replayer) { r.checker = c } }
func WithIDGenerator(fn func() string) ReplayerOption {
	return func(r *Replayer) { r.newID = fn }
}
func WithReplayLogger(l *log.Logger) ReplayerOption {
	return func(r *Replayer) { r.logger = l.WithComponent(log.ComponentReplay) }
}

func NewReplayer(opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		checker: MonthlyChecker{},
		newID:   uuid.NewString,
		logger:  log.Discard(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Replay returns the clones to prepend for the cycle of now.
func (r *Replayer) Replay(ctx context.Context, now time.Time, txs []core.Transaction) []core.Transaction {
	subs := 0
	for _, t := range txs {
		if t.IsSubscription {
			subs++
		}
	}
	clones := replay(r.checker, now, txs, r.newID)
	for _, c := range clones {
		r.logger.InfoContext(ctx, "Replayed subscription",
			log.NewFields().
				WithUser(c.UserID).
				WithTransaction(c.ID, c.Description, c.Category, string(c.Type), c.Amount.String()).
				ToSlice()...)
	}
	r.logger.InfoContext(ctx, "Subscription replay complete",
		"created", len(clones),
		"subscriptions_checked", subs,
		"cycle", now.Format("2006-01"))
	return clones
}
