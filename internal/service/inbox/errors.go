package inbox

import "github.com/anonify/anonify/internal/apperr"

var (
	ErrEmptyContent      = apperr.New(apperr.Validation, "Message content is required")
	ErrContentTooLong    = apperr.New(apperr.Validation, "Message must be no longer than 300 characters")
	ErrRecipientNotFound = apperr.New(apperr.NotFound, "User not found")
	ErrNotAccepting      = apperr.New(apperr.Forbidden, "User is not accepting messages")
	ErrAccountNotFound   = apperr.New(apperr.NotFound, "User not found")
	ErrMessageNotFound   = apperr.New(apperr.NotFound, "Message not found or already deleted")
)
