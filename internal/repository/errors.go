package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateUsername indicates the username index rejected a write.
	ErrDuplicateUsername = errors.New("repository: duplicate username")
	// ErrDuplicateEmail indicates the email index rejected a write.
	ErrDuplicateEmail = errors.New("repository: duplicate email")
	// ErrNotAccepting indicates a conditional inbox append found the account paused.
	ErrNotAccepting = errors.New("repository: account not accepting messages")
	// ErrCodeMismatch indicates a conditional verification update did not match the stored code.
	ErrCodeMismatch = errors.New("repository: verification code mismatch")
)
