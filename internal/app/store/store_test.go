package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonify/anonify/internal/repository"
	"github.com/anonify/anonify/internal/repository/memory"
	"github.com/anonify/anonify/pkg/config"
	"github.com/anonify/anonify/pkg/logger"
)

type closeCounter struct {
	*memory.Repository
	closed *atomic.Int32
}

func (c closeCounter) Close(context.Context) error {
	c.closed.Add(1)
	return nil
}

func TestHandleOpensOnceAndClosesOnLastRelease(t *testing.T) {
	var opened, closed atomic.Int32
	h := New(func(context.Context) (repository.AccountRepository, error) {
		opened.Add(1)
		return closeCounter{Repository: memory.New(), closed: &closed}, nil
	}, logger.Discard())

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Acquire(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), opened.Load())
	assert.Equal(t, 10, h.Refs())

	for i := 0; i < 9; i++ {
		require.NoError(t, h.Release(ctx))
	}
	assert.Equal(t, int32(0), closed.Load())
	require.NoError(t, h.Release(ctx))
	assert.Equal(t, int32(1), closed.Load())
	assert.ErrorIs(t, h.Release(ctx), ErrReleased)

	_, err := h.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), opened.Load())
}

func TestHandleOpenFailureIsRetried(t *testing.T) {
	calls := 0
	h := New(func(context.Context) (repository.AccountRepository, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("boom")
		}
		return memory.New(), nil
	}, logger.Discard())

	_, err := h.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, h.Refs())

	_, err = h.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.Refs())
}

func TestFromConfigRejectsUnknownDriver(t *testing.T) {
	_, err := FromConfig(config.APIConfig{StoreDriver: "sqlite"}, logger.Discard())
	assert.Error(t, err)

	h, err := FromConfig(config.APIConfig{StoreDriver: config.StoreDriverMemory}, logger.Discard())
	require.NoError(t, err)
	repo, err := h.Acquire(context.Background())
	require.NoError(t, err)
	assert.NoError(t, repo.Ping(context.Background()))
}
