// Package inbox implements anonymous message intake and owner inbox management.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/anonify/anonify/internal/domain"
	"github.com/anonify/anonify/internal/repository"
	"github.com/anonify/anonify/internal/ws"
)

// MaxContentLength bounds a message in characters.
const MaxContentLength = 300

// Outcome labels a Submit result for metrics.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeRejected  Outcome = "rejected"
	OutcomePaused    Outcome = "paused"
	OutcomeNoUser    Outcome = "no_user"
	OutcomeError     Outcome = "error"
)

// Recorder observes intake outcomes.
type Recorder interface {
	RecordIntake(outcome Outcome)
}

// Service handles message intake and inbox management.
type Service struct {
	accounts repository.AccountRepository
	hub      *ws.Hub
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs an inbox service. hub and recorder may be nil.
func New(accounts repository.AccountRepository, hub *ws.Hub, recorder Recorder, logger *slog.Logger) Service {
	return Service{accounts: accounts, hub: hub, recorder: recorder, logger: logger, now: time.Now}
}

// Submit delivers content to username's inbox. Nothing about the sender is
// recorded. The accepting check and the append happen in one store write, so a
// concurrent pause either lands before (rejected) or after (delivered).
func (s Service) Submit(ctx context.Context, username, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		s.record(OutcomeRejected)
		return nil, ErrEmptyContent
	case utf8.RuneCountInString(content) > MaxContentLength:
		s.record(OutcomeRejected)
		return nil, ErrContentTooLong
	}

	account, err := s.accounts.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.record(OutcomeNoUser)
			return nil, ErrRecipientNotFound
		}
		s.record(OutcomeError)
		return nil, fmt.Errorf("find recipient: %w", err)
	}
	if !account.AcceptingMessages {
		s.record(OutcomePaused)
		return nil, ErrNotAccepting
	}

	msg := domain.Message{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.accounts.AppendMessage(ctx, account.ID, msg); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotAccepting):
			s.record(OutcomePaused)
			return nil, ErrNotAccepting
		case errors.Is(err, repository.ErrNotFound):
			s.record(OutcomeNoUser)
			return nil, ErrRecipientNotFound
		}
		s.record(OutcomeError)
		return nil, fmt.Errorf("append message: %w", err)
	}
	s.record(OutcomeDelivered)
	s.broadcast(account.ID, msg)
	return &msg, nil
}

// List returns the inbox newest first.
func (s Service) List(ctx context.Context, accountID string) ([]domain.Message, error) {
	messages, err := s.accounts.ListMessages(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("list messages: %w", err)
	}
	domain.SortNewestFirst(messages)
	return messages, nil
}

// Delete removes one message from the owner's inbox.
func (s Service) Delete(ctx context.Context, accountID, messageID string) error {
	removed, err := s.accounts.RemoveMessage(ctx, accountID, strings.TrimSpace(messageID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("remove message: %w", err)
	}
	if !removed {
		return ErrMessageNotFound
	}
	s.logger.Info("message deleted", "account_id", accountID)
	return nil
}

// Accepting reports the account's current accepting state from the store.
func (s Service) Accepting(ctx context.Context, accountID string) (bool, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrAccountNotFound
		}
		return false, fmt.Errorf("find account: %w", err)
	}
	return account.AcceptingMessages, nil
}

// SetAccepting stores the accepting state and returns it. Repeating a value is a no-op.
func (s Service) SetAccepting(ctx context.Context, accountID string, accepting bool) (bool, error) {
	if err := s.accounts.SetAccepting(ctx, accountID, accepting); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrAccountNotFound
		}
		return false, fmt.Errorf("set accepting: %w", err)
	}
	s.logger.Info("accepting state changed", "account_id", accountID, "accepting", accepting)
	return accepting, nil
}

// Profile is the public view of a recipient.
type Profile struct {
	Username          string `json:"username"`
	AcceptingMessages bool   `json:"accepting_messages"`
}

// PublicProfile looks a recipient up by username.
func (s Service) PublicProfile(ctx context.Context, username string) (Profile, error) {
	account, err := s.accounts.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Profile{}, ErrRecipientNotFound
		}
		return Profile{}, fmt.Errorf("find recipient: %w", err)
	}
	return Profile{Username: account.Username, AcceptingMessages: account.AcceptingMessages}, nil
}

// Hub returns the live feed hub (useful for HTTP handlers).
func (s Service) Hub() *ws.Hub {
	return s.hub
}

func (s Service) record(outcome Outcome) {
	if s.recorder != nil {
		s.recorder.RecordIntake(outcome)
	}
}

func (s Service) broadcast(accountID string, msg domain.Message) {
	if s.hub == nil {
		return
	}
	data, err := MarshalMessage(msg)
	if err != nil {
		s.logger.Warn("failed to marshal message payload", "error", err)
		return
	}
	if !s.hub.Broadcast(accountID, data) {
		s.logger.Warn("live feed event dropped", "account_id", accountID)
	}
}

// MarshalMessage formats a message for streaming payloads.
func MarshalMessage(msg domain.Message) ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":         msg.ID,
		"content":    msg.Content,
		"is_read":    msg.IsRead,
		"created_at": msg.CreatedAt.Format(time.RFC3339Nano),
	})
}
