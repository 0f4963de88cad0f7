// Package store owns the process-wide credential store connection. The
// connection is opened on first use and closed when the last holder releases it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/anonify/anonify/internal/repository"
	"github.com/anonify/anonify/internal/repository/memory"
	"github.com/anonify/anonify/internal/repository/mongo"
	"github.com/anonify/anonify/internal/repository/postgres"
	"github.com/anonify/anonify/pkg/config"
)

// ErrReleased is returned when Release is called more often than Acquire.
var ErrReleased = errors.New("store: handle already released")

// Opener connects a repository.
type Opener func(ctx context.Context) (repository.AccountRepository, error)

// Handle is a lazily-initialized, reference-counted store.
type Handle struct {
	mu     sync.Mutex
	open   Opener
	repo   repository.AccountRepository
	refs   int
	logger *slog.Logger
}

// New returns a handle that connects through open on first Acquire.
func New(open Opener, logger *slog.Logger) *Handle {
	return &Handle{open: open, logger: logger}
}

// FromConfig selects an opener for cfg.StoreDriver.
func FromConfig(cfg config.APIConfig, logger *slog.Logger) (*Handle, error) {
	var open Opener
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		open = func(ctx context.Context) (repository.AccountRepository, error) {
			return postgres.Open(ctx, cfg.DatabaseURL)
		}
	case config.StoreDriverMongo:
		open = func(ctx context.Context) (repository.AccountRepository, error) {
			return mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		}
	case config.StoreDriverMemory:
		open = func(context.Context) (repository.AccountRepository, error) {
			return memory.New(), nil
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	return New(open, logger.With("driver", cfg.StoreDriver)), nil
}

// Acquire returns the shared repository, connecting it if no holder exists.
// Concurrent first callers share one connection attempt.
func (h *Handle) Acquire(ctx context.Context) (repository.AccountRepository, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.repo == nil {
		repo, err := h.open(ctx)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		h.repo = repo
		h.logger.Info("store connected")
	}
	h.refs++
	return h.repo, nil
}

// Release drops one reference and closes the store when none remain.
func (h *Handle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		return ErrReleased
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	repo := h.repo
	h.repo = nil
	if err := repo.Close(ctx); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	h.logger.Info("store closed")
	return nil
}

// Refs reports the number of outstanding references.
func (h *Handle) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}
