package inbox

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonify/anonify/internal/apperr"
	"github.com/anonify/anonify/internal/domain"
	"github.com/anonify/anonify/internal/repository"
	"github.com/anonify/anonify/internal/repository/memory"
	"github.com/anonify/anonify/internal/ws"
	"github.com/anonify/anonify/pkg/logger"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[Outcome]int
}

func (r *countingRecorder) RecordIntake(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[Outcome]int)
	}
	r.counts[o]++
}

func seedAccount(t *testing.T, repo repository.AccountRepository, id, username string) {
	t.Helper()
	require.NoError(t, repo.Insert(context.Background(), &domain.Account{
		ID:                id,
		Username:          username,
		Email:             username + "@x.com",
		PasswordHash:      []byte("hash"),
		Verified:          true,
		AcceptingMessages: true,
		CreatedAt:         time.Now().UTC(),
	}))
}

func newService(t *testing.T) (Service, *memory.Repository, *countingRecorder) {
	t.Helper()
	repo := memory.New()
	rec := &countingRecorder{}
	return New(repo, nil, rec, logger.Discard()), repo, rec
}

func TestSubmitPauseScenario(t *testing.T) {
	svc, repo, rec := newService(t)
	seedAccount(t, repo, "aliceId", "alice")
	ctx := context.Background()

	_, err := svc.Submit(ctx, "alice", "hello")
	require.NoError(t, err)

	accepting, err := svc.SetAccepting(ctx, "aliceId", false)
	require.NoError(t, err)
	assert.False(t, accepting)

	_, err = svc.Submit(ctx, "alice", "hello2")
	assert.ErrorIs(t, err, ErrNotAccepting)
	assert.ErrorIs(t, err, apperr.Forbidden)

	msgs, err := svc.List(ctx, "aliceId")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)

	assert.Equal(t, 1, rec.counts[OutcomeDelivered])
	assert.Equal(t, 1, rec.counts[OutcomePaused])
}

func TestSubmitValidation(t *testing.T) {
	svc, repo, _ := newService(t)
	seedAccount(t, repo, "aliceId", "alice")
	ctx := context.Background()

	_, err := svc.Submit(ctx, "alice", "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = svc.Submit(ctx, "alice", strings.Repeat("é", MaxContentLength+1))
	assert.ErrorIs(t, err, ErrContentTooLong)

	msg, err := svc.Submit(ctx, "alice", "  "+strings.Repeat("é", MaxContentLength)+"  ")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", MaxContentLength), msg.Content)
	assert.False(t, msg.IsRead)

	_, err = svc.Submit(ctx, "ghost", "hi")
	assert.ErrorIs(t, err, ErrRecipientNotFound)
}

type racingRepo struct {
	*memory.Repository
	appendMessage func(ctx context.Context, id string, msg domain.Message) error
}

func (r racingRepo) AppendMessage(ctx context.Context, id string, msg domain.Message) error {
	return r.appendMessage(ctx, id, msg)
}

func TestSubmitLosesRaceToPause(t *testing.T) {
	mem := memory.New()
	seedAccount(t, mem, "aliceId", "alice")
	repo := racingRepo{Repository: mem, appendMessage: func(ctx context.Context, id string, msg domain.Message) error {
		// the owner pauses between the lookup and the conditional write
		require.NoError(t, mem.SetAccepting(ctx, id, false))
		return mem.AppendMessage(ctx, id, msg)
	}}
	svc := New(repo, nil, nil, logger.Discard())

	_, err := svc.Submit(context.Background(), "alice", "hello")
	assert.ErrorIs(t, err, ErrNotAccepting)

	msgs, err := svc.List(context.Background(), "aliceId")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPausedInboxLengthUnchanged(t *testing.T) {
	svc, repo, _ := newService(t)
	seedAccount(t, repo, "aliceId", "alice")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.Submit(ctx, "alice", "msg")
		require.NoError(t, err)
	}
	_, err := svc.SetAccepting(ctx, "aliceId", false)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := svc.Submit(ctx, "alice", "blocked")
		require.ErrorIs(t, err, ErrNotAccepting)
	}
	msgs, err := svc.List(ctx, "aliceId")
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestListSortedNewestFirst(t *testing.T) {
	svc, repo, _ := newService(t)
	seedAccount(t, repo, "aliceId", "alice")
	ctx := context.Background()

	base := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	offsets := rand.New(rand.NewSource(7)).Perm(20)
	for _, off := range offsets {
		at := base.Add(time.Duration(off) * time.Second)
		svc.now = func() time.Time { return at }
		_, err := svc.Submit(ctx, "alice", "m")
		require.NoError(t, err)
	}

	msgs, err := svc.List(ctx, "aliceId")
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.After(msgs[i-1].CreatedAt), "index %d out of order", i)
	}
}

func TestDeleteIsIdempotentInEffect(t *testing.T) {
	svc, repo, _ := newService(t)
	seedAccount(t, repo, "aliceId", "alice")
	seedAccount(t, repo, "bobId", "bob")
	ctx := context.Background()

	msg, err := svc.Submit(ctx, "alice", "hello")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "alice", "again")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, "bobId", msg.ID), ErrMessageNotFound)

	require.NoError(t, svc.Delete(ctx, "aliceId", msg.ID))
	msgs, err := svc.List(ctx, "aliceId")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	assert.ErrorIs(t, svc.Delete(ctx, "aliceId", msg.ID), ErrMessageNotFound)
	msgs, err = svc.List(ctx, "aliceId")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestAcceptingToggleIsIdempotent(t *testing.T) {
	svc, repo, _ := newService(t)
	seedAccount(t, repo, "aliceId", "alice")
	ctx := context.Background()

	accepting, err := svc.Accepting(ctx, "aliceId")
	require.NoError(t, err)
	assert.True(t, accepting)

	for i := 0; i < 2; i++ {
		got, err := svc.SetAccepting(ctx, "aliceId", false)
		require.NoError(t, err)
		assert.False(t, got)
	}
	accepting, err = svc.Accepting(ctx, "aliceId")
	require.NoError(t, err)
	assert.False(t, accepting)

	_, err = svc.SetAccepting(ctx, "ghost", true)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	profile, err := svc.PublicProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Profile{Username: "alice", AcceptingMessages: false}, profile)
}

type chanSubscriber struct{ ch chan []byte }

func (c chanSubscriber) Send(p []byte) error { c.ch <- p; return nil }
func (c chanSubscriber) Close()              {}

func TestSubmitBroadcastsToOwner(t *testing.T) {
	repo := memory.New()
	seedAccount(t, repo, "aliceId", "alice")
	hub := ws.NewHub()
	defer hub.Close()
	svc := New(repo, hub, nil, logger.Discard())

	sub := chanSubscriber{ch: make(chan []byte, 1)}
	hub.Register("aliceId", sub)

	msg, err := svc.Submit(context.Background(), "alice", "live")
	require.NoError(t, err)

	select {
	case payload := <-sub.ch:
		assert.Contains(t, string(payload), msg.ID)
		assert.Contains(t, string(payload), `"content":"live"`)
	case <-time.After(time.Second):
		t.Fatal("no live event")
	}
}

type stalledSubscriber struct{ release chan struct{} }

func (s stalledSubscriber) Send([]byte) error { <-s.release; return nil }
func (s stalledSubscriber) Close()            {}

func TestSubmitNotBlockedByStalledSubscriber(t *testing.T) {
	repo := memory.New()
	seedAccount(t, repo, "aliceId", "alice")
	seedAccount(t, repo, "bobId", "bob")
	hub := ws.NewHub()
	defer hub.Close()
	svc := New(repo, hub, nil, logger.Discard())

	stalled := stalledSubscriber{release: make(chan struct{})}
	defer close(stalled.release)
	hub.Register("aliceId", stalled)

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 200; i++ {
			if _, err := svc.Submit(context.Background(), "alice", "hello"); err != nil {
				done <- err
				return
			}
		}
		_, err := svc.Submit(context.Background(), "bob", "hello")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("submit blocked behind a stalled live subscriber")
	}
}
