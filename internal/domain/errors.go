package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common business logic failures.
var (
	// ErrInvalidRecipient is returned when a message is addressed to a user
	// that does not exist. The send is rejected before any persistence.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("requested resource not found")
)
