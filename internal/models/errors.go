package models

import "errors"

// Construction errors. These are the only failures that reach the caller of
// the notification pipeline as validation problems.
var (
	ErrMissingRecipient = errors.New("user_id is required")
	ErrEmptyChannels    = errors.New("at least one channel is required")
	ErrInvalidType      = errors.New("invalid notification type")
	ErrInvalidChannel   = errors.New("invalid notification channel")
)

// IsValidationError reports whether err is a construction error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingRecipient) ||
		errors.Is(err, ErrEmptyChannels) ||
		errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrInvalidChannel)
}
