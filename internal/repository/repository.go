package repository

import (
	"context"
	"time"

	"github.com/anonify/anonify/internal/domain"
)

// AccountRepository persists accounts and their embedded inboxes.
//
// Lookups return ErrNotFound when nothing matches. Every mutation is scoped to
// a single account id.
type AccountRepository interface {
	// FindByUsernameOrEmail matches the identifier against username or email.
	FindByUsernameOrEmail(ctx context.Context, identifier string) (*domain.Account, error)
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindVerifiedByUsername(ctx context.Context, username string) (*domain.Account, error)
	FindVerifiedByEmail(ctx context.Context, email string) (*domain.Account, error)

	// Insert stores a new account. Index collisions yield ErrDuplicateUsername
	// or ErrDuplicateEmail.
	Insert(ctx context.Context, account *domain.Account) error
	// UpdateRegistration overwrites the password hash, code and expiry of an
	// unverified account. Username and email are untouched.
	UpdateRegistration(ctx context.Context, id string, passwordHash []byte, code string, expiry time.Time) error
	// MarkVerified flips the account to verified and clears its code, only
	// when the stored code still equals code. Otherwise ErrCodeMismatch.
	MarkVerified(ctx context.Context, id, code string) error
	SetAccepting(ctx context.Context, id string, accepting bool) error

	// AppendMessage appends to the inbox in one conditional write that only
	// matches while the account accepts messages. A paused account yields
	// ErrNotAccepting and nothing is written.
	AppendMessage(ctx context.Context, id string, message domain.Message) error
	// RemoveMessage reports whether a message was removed from the account's inbox.
	RemoveMessage(ctx context.Context, id, messageID string) (bool, error)
	// ListMessages returns the inbox in arrival order.
	ListMessages(ctx context.Context, id string) ([]domain.Message, error)
	Delete(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
