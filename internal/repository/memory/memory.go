// Package memory keeps accounts in process memory. It backs tests and the
// STORE_DRIVER=memory development mode.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/anonify/anonify/internal/domain"
	"github.com/anonify/anonify/internal/repository"
)

// Repository is a mutex-guarded account map.
type Repository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	now      func() time.Time
}

var _ repository.AccountRepository = (*Repository)(nil)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{accounts: make(map[string]*domain.Account), now: time.Now}
}

func (r *Repository) find(match func(*domain.Account) bool) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, acc := range r.accounts {
		if match(acc) {
			return clone(acc), nil
		}
	}
	return nil, repository.ErrNotFound
}

// FindByUsernameOrEmail matches identifier against username or email.
func (r *Repository) FindByUsernameOrEmail(_ context.Context, identifier string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool {
		return a.Username == identifier || a.Email == identifier
	})
}

// FindByUsername returns the account holding username.
func (r *Repository) FindByUsername(_ context.Context, username string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Username == username })
}

// FindByEmail returns the account holding email.
func (r *Repository) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Email == email })
}

// FindByID returns the account with id.
func (r *Repository) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(acc), nil
}

// FindVerifiedByUsername returns the verified account holding username.
func (r *Repository) FindVerifiedByUsername(_ context.Context, username string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Verified && a.Username == username })
}

// FindVerifiedByEmail returns the verified account holding email.
func (r *Repository) FindVerifiedByEmail(_ context.Context, email string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Verified && a.Email == email })
}

// Insert stores a copy of account.
func (r *Repository) Insert(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Username == account.Username {
			return repository.ErrDuplicateUsername
		}
		if existing.Email == account.Email {
			return repository.ErrDuplicateEmail
		}
	}
	stored := clone(account)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	r.accounts[account.ID] = stored
	return nil
}

func (r *Repository) update(id string, fn func(*domain.Account) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if err := fn(acc); err != nil {
		return err
	}
	acc.UpdatedAt = r.now().UTC()
	return nil
}

// UpdateRegistration overwrites the credentials of an unverified account.
func (r *Repository) UpdateRegistration(_ context.Context, id string, passwordHash []byte, code string, expiry time.Time) error {
	return r.update(id, func(a *domain.Account) error {
		if a.Verified {
			return repository.ErrNotFound
		}
		a.PasswordHash = slices.Clone(passwordHash)
		a.VerificationCode = code
		a.VerificationExpiry = expiry
		return nil
	})
}

// MarkVerified verifies the account when code still matches.
func (r *Repository) MarkVerified(_ context.Context, id, code string) error {
	return r.update(id, func(a *domain.Account) error {
		if a.VerificationCode != code {
			return repository.ErrCodeMismatch
		}
		a.Verified = true
		a.VerificationCode = ""
		return nil
	})
}

// SetAccepting stores the accepting flag.
func (r *Repository) SetAccepting(_ context.Context, id string, accepting bool) error {
	return r.update(id, func(a *domain.Account) error {
		a.AcceptingMessages = accepting
		return nil
	})
}

// AppendMessage appends under the write lock, so the flag read and the append
// cannot interleave with SetAccepting.
func (r *Repository) AppendMessage(_ context.Context, id string, message domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !acc.AcceptingMessages {
		return repository.ErrNotAccepting
	}
	acc.Messages = append(acc.Messages, message)
	return nil
}

// RemoveMessage drops messageID from the account's inbox.
func (r *Repository) RemoveMessage(_ context.Context, id, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	idx := slices.IndexFunc(acc.Messages, func(m domain.Message) bool { return m.ID == messageID })
	if idx < 0 {
		return false, nil
	}
	acc.Messages = slices.Delete(acc.Messages, idx, idx+1)
	return true, nil
}

// ListMessages returns a copy of the inbox in arrival order.
func (r *Repository) ListMessages(_ context.Context, id string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return slices.Clone(acc.Messages), nil
}

// Delete removes the account and its inbox.
func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

// Close is a no-op.
func (r *Repository) Close(context.Context) error { return nil }

func clone(a *domain.Account) *domain.Account {
	c := *a
	c.PasswordHash = slices.Clone(a.PasswordHash)
	c.Messages = slices.Clone(a.Messages)
	return &c
}
