// Package repotest holds behaviour checks shared by every AccountRepository
// backend.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonify/anonify/internal/domain"
	"github.com/anonify/anonify/internal/repository"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) repository.AccountRepository

// Run exercises repo against the AccountRepository contract.
func Run(t *testing.T, factory Factory) {
	t.Run("lookups", func(t *testing.T) { testLookups(t, factory(t)) })
	t.Run("duplicates", func(t *testing.T) { testDuplicates(t, factory(t)) })
	t.Run("registration overwrite", func(t *testing.T) { testUpdateRegistration(t, factory(t)) })
	t.Run("mark verified", func(t *testing.T) { testMarkVerified(t, factory(t)) })
	t.Run("inbox", func(t *testing.T) { testInbox(t, factory(t)) })
	t.Run("concurrent pause", func(t *testing.T) { testConcurrentPause(t, factory(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, factory(t)) })
}

// NewAccount builds an unverified, accepting account.
func NewAccount(username, email string) *domain.Account {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Account{
		ID:                 uuid.NewString(),
		Username:           username,
		Email:              email,
		PasswordHash:       []byte("$2a$10$hash"),
		AcceptingMessages:  true,
		VerificationCode:   "123456",
		VerificationExpiry: now.Add(time.Hour),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func testLookups(t *testing.T, repo repository.AccountRepository) {
	ctx := context.Background()
	acc := NewAccount("alice", "alice@example.com")
	require.NoError(t, repo.Insert(ctx, acc))

	for _, identifier := range []string{"alice", "alice@example.com"} {
		got, err := repo.FindByUsernameOrEmail(ctx, identifier)
		require.NoError(t, err)
		assert.Equal(t, acc.ID, got.ID)
	}

	got, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, acc.Email, got.Email)
	assert.Equal(t, acc.VerificationCode, got.VerificationCode)
	assert.True(t, got.VerificationExpiry.Equal(acc.VerificationExpiry))

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.FindVerifiedByUsername(ctx, "alice")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.FindVerifiedByEmail(ctx, "alice@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testDuplicates(t *testing.T, repo repository.AccountRepository) {
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, NewAccount("alice", "alice@example.com")))

	err := repo.Insert(ctx, NewAccount("alice", "other@example.com"))
	assert.ErrorIs(t, err, repository.ErrDuplicateUsername)

	err = repo.Insert(ctx, NewAccount("bob", "alice@example.com"))
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)

	require.NoError(t, repo.Insert(ctx, NewAccount("myemail", "me@example.com")))
	err = repo.Insert(ctx, NewAccount("myemail", "me2@example.com"))
	assert.ErrorIs(t, err, repository.ErrDuplicateUsername)
}

func testUpdateRegistration(t *testing.T, repo repository.AccountRepository) {
	ctx := context.Background()
	acc := NewAccount("alice", "alice@example.com")
	require.NoError(t, repo.Insert(ctx, acc))

	expiry := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Millisecond)
	require.NoError(t, repo.UpdateRegistration(ctx, acc.ID, []byte("new-hash"), "654321", expiry))

	got, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, []byte("new-hash"), got.PasswordHash)
	assert.Equal(t, "654321", got.VerificationCode)
	assert.True(t, got.VerificationExpiry.Equal(expiry))

	require.NoError(t, repo.MarkVerified(ctx, acc.ID, "654321"))
	err = repo.UpdateRegistration(ctx, acc.ID, []byte("again"), "111111", expiry)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testMarkVerified(t *testing.T, repo repository.AccountRepository) {
	ctx := context.Background()
	acc := NewAccount("alice", "alice@example.com")
	require.NoError(t, repo.Insert(ctx, acc))

	assert.ErrorIs(t, repo.MarkVerified(ctx, acc.ID, "000000"), repository.ErrCodeMismatch)
	assert.ErrorIs(t, repo.MarkVerified(ctx, uuid.NewString(), "123456"), repository.ErrNotFound)
	require.NoError(t, repo.MarkVerified(ctx, acc.ID, "123456"))

	got, err := repo.FindVerifiedByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Empty(t, got.VerificationCode)
}

func testInbox(t *testing.T, repo repository.AccountRepository) {
	ctx := context.Background()
	acc := NewAccount("alice", "alice@example.com")
	require.NoError(t, repo.Insert(ctx, acc))

	base := time.Now().UTC().Truncate(time.Millisecond)
	first := domain.Message{ID: uuid.NewString(), Content: "first", CreatedAt: base}
	second := domain.Message{ID: uuid.NewString(), Content: "second", CreatedAt: base.Add(time.Second)}
	require.NoError(t, repo.AppendMessage(ctx, acc.ID, first))
	require.NoError(t, repo.AppendMessage(ctx, acc.ID, second))

	msgs, err := repo.ListMessages(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)

	require.NoError(t, repo.SetAccepting(ctx, acc.ID, false))
	err = repo.AppendMessage(ctx, acc.ID, domain.Message{ID: uuid.NewString(), Content: "late", CreatedAt: base})
	assert.ErrorIs(t, err, repository.ErrNotAccepting)
	err = repo.AppendMessage(ctx, uuid.NewString(), domain.Message{ID: uuid.NewString(), Content: "lost", CreatedAt: base})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	removed, err := repo.RemoveMessage(ctx, acc.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveMessage(ctx, acc.ID, first.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	other := NewAccount("bob", "bob@example.com")
	require.NoError(t, repo.Insert(ctx, other))
	removed, err = repo.RemoveMessage(ctx, other.ID, second.ID)
	require.NoError(t, err)
	assert.False(t, removed, "messages are scoped to their owner")

	msgs, err = repo.ListMessages(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, second.ID, msgs[0].ID)
}

func testConcurrentPause(t *testing.T, repo repository.AccountRepository) {
	ctx := context.Background()
	acc := NewAccount("alice", "alice@example.com")
	require.NoError(t, repo.Insert(ctx, acc))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.AppendMessage(ctx, acc.ID, domain.Message{ID: uuid.NewString(), Content: "race", CreatedAt: time.Now().UTC()})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrNotAccepting)
		}()
	}
	require.NoError(t, repo.SetAccepting(ctx, acc.ID, false))
	wg.Wait()

	msgs, err := repo.ListMessages(ctx, acc.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, accepted)

	err = repo.AppendMessage(ctx, acc.ID, domain.Message{ID: uuid.NewString(), Content: "after", CreatedAt: time.Now().UTC()})
	assert.ErrorIs(t, err, repository.ErrNotAccepting)
}

func testDelete(t *testing.T, repo repository.AccountRepository) {
	ctx := context.Background()
	acc := NewAccount("alice", "alice@example.com")
	require.NoError(t, repo.Insert(ctx, acc))
	require.NoError(t, repo.AppendMessage(ctx, acc.ID, domain.Message{ID: uuid.NewString(), Content: "hi", CreatedAt: time.Now().UTC()}))

	require.NoError(t, repo.Delete(ctx, acc.ID))
	_, err := repo.FindByID(ctx, acc.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, acc.ID), repository.ErrNotFound)

	// the email is free again once the account is gone
	require.NoError(t, repo.Insert(ctx, NewAccount("alice2", "alice@example.com")))
}
