package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/salesdesk/salesdesk/internal/shared"
)

// CredentialStore looks up login credentials by email.
type CredentialStore interface {
	FindCredentials(ctx context.Context, email string) (Credentials, error)
}

// CredentialStoreFunc adapts a function to CredentialStore.
type CredentialStoreFunc func(ctx context.Context, email string) (Credentials, error)

// FindCredentials calls f.
func (f CredentialStoreFunc) FindCredentials(ctx context.Context, email string) (Credentials, error) {
	return f(ctx, email)
}

// Service wraps authentication business rules.
type Service struct {
	store    CredentialStore
	tokens   *TokenIssuer
	guard    *LoginGuard
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService constructs a new Service.
func NewService(store CredentialStore, tokens *TokenIssuer, guard *LoginGuard, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, tokens: tokens, guard: guard, logger: logger, validate: shared.NewValidator()}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	creds, err := s.store.FindCredentials(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return User{}, shared.ErrInvalidCredentials
		}
		return User{}, err
	}
	if !creds.IsActive {
		return User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	return User{ID: creds.ID, Email: creds.Email, RoleID: creds.RoleID, CompanyID: creds.CompanyID}, nil
}

// Login authenticates the caller at addr and issues a token. Repeated
// failures from one address lock it out for the guard window.
func (s *Service) Login(ctx context.Context, addr string, in LoginInput) (LoginResult, error) {
	if err := s.guard.Check(ctx, addr); err != nil {
		return LoginResult{}, err
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return LoginResult{}, err
	}
	user, err := s.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			if ferr := s.guard.Fail(ctx, addr); ferr != nil {
				s.logger.Warn("login guard", slog.Any("error", ferr))
			}
		}
		return LoginResult{}, err
	}
	if err := s.guard.Reset(ctx, addr); err != nil {
		s.logger.Warn("login guard reset", slog.Any("error", err))
	}
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
