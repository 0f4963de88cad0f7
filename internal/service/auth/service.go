package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anonify/anonify/internal/domain"
	"github.com/anonify/anonify/internal/mail"
	"github.com/anonify/anonify/internal/repository"
	"github.com/anonify/anonify/pkg/config"
	"github.com/anonify/anonify/pkg/crypto"
	jwtpkg "github.com/anonify/anonify/pkg/jwt"
)

// Service handles registration, verification and session workflows.
type Service struct {
	accounts  repository.AccountRepository
	mailer    mail.Dispatcher
	revoked   Revocations
	logger    *slog.Logger
	cfg       config.APIConfig
	now       func() time.Time
	newCode   func() (string, error)
	providers map[string]*oauthProvider
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeGenerator overrides verification code generation.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newCode = gen }
}

// New constructs a Service.
func New(accounts repository.AccountRepository, mailer mail.Dispatcher, revoked Revocations, logger *slog.Logger, cfg config.APIConfig, opts ...Option) Service {
	s := Service{
		accounts:  accounts,
		mailer:    mailer,
		revoked:   revoked,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		newCode:   crypto.NumericCode,
		providers: configuredProviders(cfg),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Session is the result of a successful sign-in.
type Session struct {
	Claims domain.ClaimSet
	Token  string
}

// Authenticate checks identifier (username or email) and password. The
// verified check runs before the password check.
func (s Service) Authenticate(ctx context.Context, identifier, password string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrMissingCredential
	}
	if strings.Contains(identifier, "@") {
		identifier = strings.ToLower(identifier)
	}
	account, err := s.accounts.FindByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoUser
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	if !account.Verified {
		return nil, ErrNotVerified
	}
	if err := crypto.ComparePassword(account.PasswordHash, password); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			return nil, ErrIncorrectPassword
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	session, err := s.issueSession(account)
	if err != nil {
		return nil, err
	}
	s.logger.Info("account signed in", "account_id", account.ID)
	return session, nil
}

// Authorize validates a bearer token and returns its claim set. The claims are
// the snapshot taken at sign-in; the store is not consulted.
func (s Service) Authorize(ctx context.Context, token string) (domain.ClaimSet, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return domain.ClaimSet{}, ErrUnauthenticated
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return domain.ClaimSet{}, ErrUnauthenticated
	}
	if s.revoked != nil {
		revoked, err := s.revoked.Revoked(ctx, claims.ID)
		if err != nil {
			return domain.ClaimSet{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return domain.ClaimSet{}, ErrUnauthenticated
		}
	}
	return claimSet(claims), nil
}

// SignOut revokes the session token until it would have expired anyway.
func (s Service) SignOut(ctx context.Context, claims domain.ClaimSet) error {
	if s.revoked == nil || claims.TokenID == "" {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.logger.Info("account signed out", "account_id", claims.AccountID)
	return nil
}

// DeleteAccount removes the account and its inbox.
func (s Service) DeleteAccount(ctx context.Context, accountID string) error {
	if err := s.accounts.Delete(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("delete account: %w", err)
	}
	s.logger.Info("account deleted", "account_id", accountID)
	return nil
}

func (s Service) issueSession(account *domain.Account) (*Session, error) {
	token, claims, err := jwtpkg.GenerateToken(jwtpkg.Subject{
		AccountID:         account.ID,
		Username:          account.Username,
		Verified:          account.Verified,
		AcceptingMessages: account.AcceptingMessages,
	}, uuid.NewString(), s.cfg.JWTSecret, s.now().UTC(), s.cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &Session{Claims: claimSet(claims), Token: token}, nil
}

func claimSet(claims *jwtpkg.Claims) domain.ClaimSet {
	set := domain.ClaimSet{
		AccountID:         claims.AccountID,
		Username:          claims.Username,
		Verified:          claims.Verified,
		AcceptingMessages: claims.AcceptingMessages,
		TokenID:           claims.ID,
	}
	if claims.IssuedAt != nil {
		set.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		set.ExpiresAt = claims.ExpiresAt.Time
	}
	return set
}
