package domain

import (
	"sort"
	"time"
)

// Account represents a registered identity that owns an inbox.
type Account struct {
	ID                 string
	Username           string
	Email              string
	PasswordHash       []byte
	Verified           bool
	AcceptingMessages  bool
	VerificationCode   string
	VerificationExpiry time.Time
	Messages           []Message
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CodeExpired reports whether the verification code is no longer valid at now.
// A code is invalid at or after its expiry instant.
func (a Account) CodeExpired(now time.Time) bool {
	return !now.Before(a.VerificationExpiry)
}

// Message is an anonymous submission owned by one account.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// SortNewestFirst orders messages by CreatedAt descending, keeping arrival
// order for equal timestamps.
func SortNewestFirst(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})
}

// ClaimSet is the identity snapshot issued at authentication time. It is not
// refreshed when the account changes later.
type ClaimSet struct {
	AccountID         string    `json:"account_id"`
	Username          string    `json:"username"`
	Verified          bool      `json:"verified"`
	AcceptingMessages bool      `json:"accepting_messages"`
	TokenID           string    `json:"-"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}
