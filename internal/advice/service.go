package advice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"carteira/internal/cache"
	"carteira/internal/core"
	"carteira/internal/log"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultCacheTTL = 30 * time.Minute
	RecentLimit     = 5
)

// Service wraps an Advisor so that callers always get a string back.
type Service struct {
	advisor Advisor
	timeout time.Duration
	cache   *cache.LRUCache[string]
	logger  *log.Logger
}

type Option func(*Service)

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCache replaces the default answer cache. nil disables caching.
func WithCache(c *cache.LRUCache[string]) Option { return func(s *Service) { s.cache = c } }

func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentAdvice)
		}
	}
}

func NewService(advisor Advisor, opts ...Option) *Service {
	s := &Service{
		advisor: advisor,
		timeout: DefaultTimeout,
		cache:   cache.NewLRUCache[string](256, DefaultCacheTTL),
		logger:  log.Discard(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Cache exposes the answer cache so it can be registered for cleanup.
func (s *Service) Cache() *cache.LRUCache[string] { return s.cache }

// Advise never fails. Errors, timeouts and empty answers are replaced by a
// static fallback; only real answers are cached.
func (s *Service) Advise(ctx context.Context, userID string, recent []core.Transaction, goals []core.Goal) string {
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	key := userID + ":" + Fingerprint(recent, goals)
	if s.cache != nil {
		if tip, ok := s.cache.Get(key); ok {
			return tip
		}
	}

	tip, err := s.ask(ctx, recent, goals)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "Advisor failed, using fallback",
			log.NewFields().WithUser(userID).WithError(err).ToSlice()...)
		return FallbackError
	case tip == "":
		return FallbackEmpty
	}
	if s.cache != nil {
		s.cache.Set(key, tip)
	}
	return tip
}

func (s *Service) ask(ctx context.Context, recent []core.Transaction, goals []core.Goal) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		tip string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		tip, err := s.advisor.Advise(ctx, recent, goals)
		ch <- result{tip, err}
	}()

	select {
	case r := <-ch:
		return r.tip, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", core.ErrTimeout
		}
		return "", ctx.Err()
	}
}

// Fingerprint identifies the advisor input so unchanged data reuses the
// cached answer.
func Fingerprint(recent []core.Transaction, goals []core.Goal) string {
	h := sha256.New()
	for _, t := range recent {
		fmt.Fprintf(h, "t|%s|%s|%s|%s\n", t.ID, t.Amount, t.Description, t.Type)
	}
	for _, g := range goals {
		fmt.Fprintf(h, "g|%s|%s|%s\n", g.ID, g.CurrentAmount, g.TargetAmount)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
