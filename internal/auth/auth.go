// Package auth implements e-mail/password authentication on top of a
// CredentialRepository provided by each persistence backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"carteira/internal/core"
	"carteira/internal/log"
)

// MinPasswordLength is the password policy enforced on sign-up.
const MinPasswordLength = 6

// Credentials is what a client submits to sign in or sign up.
type Credentials struct {
	Email    string
	Password string
	Name     string
	SignUp   bool
}

// Account is a stored login.
type Account struct {
	UID          string
	Email        string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
}

// CredentialRepository defines the persistence operations
// required by the authentication service.
type CredentialRepository interface {
	// FindByEmail returns core.ErrNotFound when no account exists.
	FindByEmail(ctx context.Context, email string) (Account, error)
	// Create returns core.ErrEmailAlreadyInUse on a duplicate e-mail.
	Create(ctx context.Context, acc Account) error
}

// Service implements authentication operations by delegating
// to a CredentialRepository.
type Service struct {
	repo   CredentialRepository
	cost   int
	logger *log.Logger
}

type Option func(*Service)

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option { return func(s *Service) { s.cost = cost } }

func WithLogger(l *log.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService constructs a new Service using the provided repository.
func NewService(repo CredentialRepository, opts ...Option) *Service {
	s := &Service{repo: repo, cost: bcrypt.DefaultCost, logger: log.Discard()}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentAuth)
	return s
}

// Authenticate signs the user in, or up when c.SignUp is set. Errors are
// always one of core.ErrInvalidCredentials, core.ErrEmailAlreadyInUse,
// core.ErrWeakPassword, core.ErrStorageUnavailable, core.ErrTimeout or
// core.ErrUnknown.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (core.User, error) {
	email := NormalizeEmail(c.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return core.User{}, core.ErrInvalidCredentials
	}
	if c.SignUp {
		return s.signUp(ctx, email, c)
	}
	return s.signIn(ctx, email, c.Password)
}

func (s *Service) signIn(ctx context.Context, email, password string) (core.User, error) {
	acc, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, s.repoError(ctx, "find account", err)
	}
	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		s.logger.InfoContext(ctx, "Sign-in rejected", log.FieldUserID, acc.UID)
		return core.User{}, core.ErrInvalidCredentials
	}
	return core.User{UID: acc.UID, Email: acc.Email, Name: acc.Name}, nil
}

func (s *Service) signUp(ctx context.Context, email string, c Credentials) (core.User, error) {
	if len(c.Password) < MinPasswordLength {
		return core.User{}, core.ErrWeakPassword
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return core.User{}, core.ErrEmailAlreadyInUse
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.User{}, s.repoError(ctx, "find account", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), s.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("%w: hash password: %v", core.ErrUnknown, err)
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = DefaultName(email)
	}
	acc := Account{
		UID:          uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, acc); err != nil {
		if errors.Is(err, core.ErrEmailAlreadyInUse) {
			return core.User{}, core.ErrEmailAlreadyInUse
		}
		return core.User{}, s.repoError(ctx, "create account", err)
	}
	s.logger.InfoContext(ctx, "Account created", log.FieldUserID, acc.UID)
	return core.User{UID: acc.UID, Email: acc.Email, Name: acc.Name}, nil
}

func (s *Service) repoError(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "Credential repository failed", log.FieldOperation, op, log.FieldError, err)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, core.ErrTimeout):
		return core.ErrTimeout
	case errors.Is(err, core.ErrStorageUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", core.ErrStorageUnavailable, op, err)
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DefaultName derives a display name from the local part of an address.
func DefaultName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
