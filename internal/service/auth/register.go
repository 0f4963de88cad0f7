package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"

	"github.com/anonify/anonify/internal/domain"
	"github.com/anonify/anonify/internal/mail"
	"github.com/anonify/anonify/internal/repository"
	"github.com/anonify/anonify/pkg/crypto"
)

const (
	minPasswordLength = 6
	maxPasswordBytes  = 72
	defaultCodeTTL    = time.Hour
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,20}$`)

// RegisterInput carries sign-up fields.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Pending describes an account awaiting verification.
type Pending struct {
	AccountID string
	Username  string
	Email     string
	ExpiresAt time.Time
}

// Register creates an unverified account, or refreshes the credentials of an
// unverified account already holding the email, and mails a fresh code. A
// mail failure is reported after the account has been written.
func (s Service) Register(ctx context.Context, in RegisterInput) (*Pending, error) {
	username := strings.TrimSpace(in.Username)
	email := NormalizeEmail(in.Email)
	if err := validateRegistration(username, email, in.Password); err != nil {
		return nil, err
	}

	if _, err := s.accounts.FindVerifiedByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	existing, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.Verified:
		return nil, ErrEmailTaken
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	expiry := now.Add(s.codeTTL())

	var account *domain.Account
	if existing != nil {
		if err := s.accounts.UpdateRegistration(ctx, existing.ID, hash, code, expiry); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// verified between the lookup and the write
				return nil, ErrEmailTaken
			}
			return nil, fmt.Errorf("update registration: %w", err)
		}
		account = existing
		s.logger.Info("registration refreshed", "account_id", account.ID)
	} else {
		account = &domain.Account{
			ID:                 uuid.NewString(),
			Username:           username,
			Email:              email,
			PasswordHash:       hash,
			AcceptingMessages:  true,
			VerificationCode:   code,
			VerificationExpiry: expiry,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.accounts.Insert(ctx, account); err != nil {
			switch {
			case errors.Is(err, repository.ErrDuplicateUsername):
				return nil, ErrUsernameTaken
			case errors.Is(err, repository.ErrDuplicateEmail):
				return nil, ErrEmailTaken
			}
			return nil, fmt.Errorf("insert account: %w", err)
		}
		s.logger.Info("account registered", "account_id", account.ID)
	}

	if err := s.sendCode(ctx, account.Email, account.Username, code, expiry); err != nil {
		return nil, err
	}
	return &Pending{AccountID: account.ID, Username: account.Username, Email: account.Email, ExpiresAt: expiry}, nil
}

// Verify marks the account verified when code matches and has not expired.
// Expiry is checked before the code itself.
func (s Service) Verify(ctx context.Context, username, code string) error {
	username = strings.TrimSpace(username)
	code = strings.TrimSpace(code)
	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("find account: %w", err)
	}
	if account.Verified {
		return ErrAlreadyVerified
	}
	if account.CodeExpired(s.now().UTC()) {
		return ErrCodeExpired
	}
	if account.VerificationCode == "" || subtle.ConstantTimeCompare([]byte(account.VerificationCode), []byte(code)) != 1 {
		return ErrIncorrectCode
	}
	if err := s.accounts.MarkVerified(ctx, account.ID, account.VerificationCode); err != nil {
		switch {
		case errors.Is(err, repository.ErrCodeMismatch):
			// a re-registration replaced the code after we read it
			return ErrIncorrectCode
		case errors.Is(err, repository.ErrNotFound):
			return ErrAccountNotFound
		}
		return fmt.Errorf("mark verified: %w", err)
	}
	s.logger.Info("account verified", "account_id", account.ID)
	return nil
}

// ResendCode issues a fresh code for the unverified account holding email.
func (s Service) ResendCode(ctx context.Context, email string) (*Pending, error) {
	email = NormalizeEmail(email)
	if err := checkmail.ValidateFormat(email); err != nil {
		return nil, ErrInvalidEmail
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account.Verified {
		return nil, ErrAlreadyVerified
	}
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	expiry := s.now().UTC().Add(s.codeTTL())
	if err := s.accounts.UpdateRegistration(ctx, account.ID, account.PasswordHash, code, expiry); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAlreadyVerified
		}
		return nil, fmt.Errorf("refresh code: %w", err)
	}
	if err := s.sendCode(ctx, account.Email, account.Username, code, expiry); err != nil {
		return nil, err
	}
	s.logger.Info("verification code reissued", "account_id", account.ID)
	return &Pending{AccountID: account.ID, Username: account.Username, Email: account.Email, ExpiresAt: expiry}, nil
}

// UsernameAvailable reports whether no verified account holds username.
func (s Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return false, ErrInvalidUsername
	}
	_, err := s.accounts.FindVerifiedByUsername(ctx, username)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, repository.ErrNotFound):
		return true, nil
	default:
		return false, fmt.Errorf("check username: %w", err)
	}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(username, email, password string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	if err := checkmail.ValidateFormat(email); err != nil {
		return ErrInvalidEmail
	}
	if utf8.RuneCountInString(password) < minPasswordLength || len(password) > maxPasswordBytes {
		return ErrInvalidPassword
	}
	return nil
}

func (s Service) codeTTL() time.Duration {
	if s.cfg.VerificationTTL <= 0 {
		return defaultCodeTTL
	}
	return s.cfg.VerificationTTL
}

func (s Service) sendCode(ctx context.Context, to, username, code string, expiry time.Time) error {
	subject, body, err := mail.VerificationEmail(mail.VerificationData{
		Username:  username,
		Code:      code,
		ExpiresAt: expiry,
		VerifyURL: s.verifyURL(username),
	})
	if err != nil {
		return fmt.Errorf("render verification email: %w", err)
	}
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		s.logger.Error("verification email failed", "error", err)
		return ErrMailDelivery
	}
	return nil
}

func (s Service) verifyURL(username string) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	if base == "" {
		return ""
	}
	return base + "/verify/" + url.PathEscape(username)
}
