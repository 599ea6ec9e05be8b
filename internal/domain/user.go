package domain

import (
	"context"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// User is the minimal view of a user this service needs. Registration,
// authentication and profile management belong to a separate system; messaging
// only ever asks "does this user exist".
type User struct {
	ID    *surrealmodels.RecordID `json:"id,omitempty"`
	Email string                  `json:"email"`
	Name  *string                 `json:"name,omitempty"`
}

// UserDirectory is the narrow boundary to the external user system, consumed
// to validate recipients before a message is persisted or queued.
type UserDirectory interface {
	// FindByID returns the user with the given ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*User, error)
}
