package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonify/anonify/internal/domain"
	"github.com/anonify/anonify/internal/repository"
	"github.com/anonify/anonify/internal/repository/repotest"
)

func seed(t *testing.T, repo *Repository, id, username, email string) *domain.Account {
	t.Helper()
	acc := &domain.Account{
		ID:                id,
		Username:          username,
		Email:             email,
		PasswordHash:      []byte("hash"),
		AcceptingMessages: true,
		VerificationCode:  "123456",
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, repo.Insert(context.Background(), acc))
	return acc
}

func TestInsertRejectsDuplicates(t *testing.T) {
	repo := New()
	seed(t, repo, "1", "alice", "alice@example.com")

	err := repo.Insert(context.Background(), &domain.Account{ID: "2", Username: "alice", Email: "other@example.com"})
	assert.ErrorIs(t, err, repository.ErrDuplicateUsername)

	err = repo.Insert(context.Background(), &domain.Account{ID: "3", Username: "bob", Email: "alice@example.com"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
}

func TestFindReturnsCopies(t *testing.T) {
	repo := New()
	seed(t, repo, "1", "alice", "alice@example.com")

	acc, err := repo.FindByUsernameOrEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	acc.Username = "mallory"

	again, err := repo.FindByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Username)

	_, err = repo.FindVerifiedByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMarkVerifiedIsConditional(t *testing.T) {
	repo := New()
	seed(t, repo, "1", "alice", "alice@example.com")
	ctx := context.Background()

	assert.ErrorIs(t, repo.MarkVerified(ctx, "1", "000000"), repository.ErrCodeMismatch)
	require.NoError(t, repo.MarkVerified(ctx, "1", "123456"))

	acc, err := repo.FindVerifiedByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, acc.Verified)
	assert.Empty(t, acc.VerificationCode)
}

func TestAppendMessageRespectsAccepting(t *testing.T) {
	repo := New()
	seed(t, repo, "1", "alice", "alice@example.com")
	ctx := context.Background()

	require.NoError(t, repo.AppendMessage(ctx, "1", domain.Message{ID: "m1", Content: "hi"}))
	require.NoError(t, repo.SetAccepting(ctx, "1", false))
	assert.ErrorIs(t, repo.AppendMessage(ctx, "1", domain.Message{ID: "m2", Content: "hey"}), repository.ErrNotAccepting)
	assert.ErrorIs(t, repo.AppendMessage(ctx, "missing", domain.Message{ID: "m3"}), repository.ErrNotFound)

	msgs, err := repo.ListMessages(ctx, "1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestConcurrentAppendAndPause(t *testing.T) {
	repo := New()
	seed(t, repo, "1", "alice", "alice@example.com")
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 25 {
				_ = repo.SetAccepting(ctx, "1", false)
				return
			}
			if err := repo.AppendMessage(ctx, "1", domain.Message{ID: time.Now().String()}); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	msgs, err := repo.ListMessages(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, msgs, accepted)
}

func TestRemoveMessage(t *testing.T) {
	repo := New()
	seed(t, repo, "1", "alice", "alice@example.com")
	ctx := context.Background()
	require.NoError(t, repo.AppendMessage(ctx, "1", domain.Message{ID: "m1"}))

	removed, err := repo.RemoveMessage(ctx, "1", "m1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.RemoveMessage(ctx, "1", "m1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestContract(t *testing.T) {
	repotest.Run(t, func(*testing.T) repository.AccountRepository { return New() })
}
