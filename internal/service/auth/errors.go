package auth

import "github.com/anonify/anonify/internal/apperr"

var (
	ErrInvalidUsername   = apperr.New(apperr.Validation, "Username must be 2-20 characters of letters, digits or underscores")
	ErrInvalidEmail      = apperr.New(apperr.Validation, "Invalid email address")
	ErrInvalidPassword   = apperr.New(apperr.Validation, "Password must be between 6 and 72 characters")
	ErrMissingCredential = apperr.New(apperr.Validation, "Missing credentials")
	ErrUsernameTaken     = apperr.New(apperr.Conflict, "Username is already taken")
	ErrEmailTaken        = apperr.New(apperr.Conflict, "User already registered using this email")
	ErrMailDelivery      = apperr.New(apperr.Upstream, "Failed to send verification email")

	ErrAccountNotFound   = apperr.New(apperr.NotFound, "User not found")
	ErrAlreadyVerified   = apperr.New(apperr.Conflict, "Account is already verified")
	ErrCodeExpired       = apperr.New(apperr.Validation, "Verification code has expired. Please sign up again to get a new code")
	ErrIncorrectCode     = apperr.New(apperr.Validation, "Incorrect verification code")
	ErrNoUser            = apperr.New(apperr.NotFound, "No user found")
	ErrNotVerified       = apperr.New(apperr.Forbidden, "Please verify your account")
	ErrIncorrectPassword = apperr.New(apperr.Unauthenticated, "Incorrect password")
	ErrUnauthenticated   = apperr.New(apperr.Unauthenticated, "Not authenticated")

	ErrUnknownProvider = apperr.New(apperr.NotFound, "Unknown sign-in provider")
	ErrProviderEmail   = apperr.New(apperr.Upstream, "Sign-in provider did not return a verified email")
	ErrProviderFailure = apperr.New(apperr.Upstream, "Sign-in provider is unavailable")
)
