package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anonify/anonify/internal/domain"
	"github.com/anonify/anonify/internal/repository"
)

const (
	uniqueViolation       = "23505"
	usernameConstraint    = "accounts_username_key"
	emailConstraint       = "accounts_email_key"
	accountColumns        = `id, username, email, password_hash, verified, accepting_messages, verification_code, verification_expiry, created_at, updated_at`
	selectAccountsByQuery = `SELECT ` + accountColumns + ` FROM accounts WHERE `
)

// Repository implements repository.AccountRepository on PostgreSQL. Messages
// live in a child table ordered by an arrival sequence.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(pool), nil
}

var _ repository.AccountRepository = (*Repository)(nil)

// Pool exposes the underlying pool for migrations.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *Repository) findOne(ctx context.Context, where string, args ...any) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, selectAccountsByQuery+where, args...)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return acc, nil
}

// FindByUsernameOrEmail matches identifier against username or email.
func (r *Repository) FindByUsernameOrEmail(ctx context.Context, identifier string) (*domain.Account, error) {
	return r.findOne(ctx, `username = $1 OR email = $1 LIMIT 1`, identifier)
}

// FindByUsername fetches an account by username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, `username = $1`, username)
}

// FindByEmail fetches an account by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, `email = $1`, email)
}

// FindByID fetches an account by identifier.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// FindVerifiedByUsername fetches a verified account by username.
func (r *Repository) FindVerifiedByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, `username = $1 AND verified`, username)
}

// FindVerifiedByEmail fetches a verified account by email.
func (r *Repository) FindVerifiedByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, `email = $1 AND verified`, email)
}

// Insert creates an account row.
func (r *Repository) Insert(ctx context.Context, account *domain.Account) error {
	const query = `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	updated := account.UpdatedAt
	if updated.IsZero() {
		updated = account.CreatedAt
	}
	_, err := r.pool.Exec(ctx, query,
		account.ID, account.Username, account.Email, account.PasswordHash,
		account.Verified, account.AcceptingMessages,
		nullable(account.VerificationCode), nullableTime(account.VerificationExpiry),
		account.CreatedAt, updated,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case usernameConstraint:
				return repository.ErrDuplicateUsername
			case emailConstraint:
				return repository.ErrDuplicateEmail
			}
		}
		return err
	}
	return nil
}

// UpdateRegistration overwrites credentials of an unverified account.
func (r *Repository) UpdateRegistration(ctx context.Context, id string, passwordHash []byte, code string, expiry time.Time) error {
	const query = `UPDATE accounts
		SET password_hash = $2, verification_code = $3, verification_expiry = $4, updated_at = NOW()
		WHERE id = $1 AND NOT verified`
	tag, err := r.pool.Exec(ctx, query, id, passwordHash, code, expiry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkVerified verifies the account when its stored code still matches.
func (r *Repository) MarkVerified(ctx context.Context, id, code string) error {
	const query = `UPDATE accounts
		SET verified = TRUE, verification_code = NULL, updated_at = NOW()
		WHERE id = $1 AND verification_code = $2`
	tag, err := r.pool.Exec(ctx, query, id, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return repository.ErrCodeMismatch
	}
	return nil
}

// SetAccepting stores the accepting flag.
func (r *Repository) SetAccepting(ctx context.Context, id string, accepting bool) error {
	const query = `UPDATE accounts SET accepting_messages = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, accepting)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AppendMessage inserts the message only while the owning row is accepting.
// The share lock on the account row orders the insert against a concurrent
// SetAccepting.
func (r *Repository) AppendMessage(ctx context.Context, id string, message domain.Message) error {
	const query = `WITH target AS (
			SELECT id FROM accounts WHERE id = $2 AND accepting_messages FOR SHARE
		)
		INSERT INTO messages (id, account_id, content, is_read, created_at)
		SELECT $1, target.id, $3, $4, $5 FROM target`
	tag, err := r.pool.Exec(ctx, query, message.ID, id, message.Content, message.IsRead, message.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return repository.ErrNotAccepting
	}
	return nil
}

// RemoveMessage deletes a message scoped to its owner.
func (r *Repository) RemoveMessage(ctx context.Context, id, messageID string) (bool, error) {
	const query = `DELETE FROM messages WHERE id = $1 AND account_id = $2`
	tag, err := r.pool.Exec(ctx, query, messageID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListMessages returns the inbox in arrival order.
func (r *Repository) ListMessages(ctx context.Context, id string) ([]domain.Message, error) {
	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}
	const query = `SELECT id, content, is_read, created_at FROM messages WHERE account_id = $1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Delete removes the account; messages cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *Repository) Close(context.Context) error {
	r.pool.Close()
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a      domain.Account
		code   *string
		expiry *time.Time
	)
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Verified, &a.AcceptingMessages,
		&code, &expiry, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if code != nil {
		a.VerificationCode = *code
	}
	if expiry != nil {
		a.VerificationExpiry = *expiry
	}
	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
