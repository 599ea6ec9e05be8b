package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/nfrund/courier/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// userTable is the record store table holding user records.
const userTable = "user"

// UserStore implements domain.UserDirectory on SurrealDB. It deliberately
// exposes only the lookup the messaging flow needs; user management lives in a
// different system.
type UserStore struct {
	db *surrealdb.DB
}

// NewUserStore creates a user directory backed by the given connection.
func NewUserStore(db *surrealdb.DB) *UserStore {
	return &UserStore{db: db}
}

// FindByID returns the user with the given ID, or domain.ErrNotFound.
func (s *UserStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT * FROM $id`
	// The param must be a typed record ID; a plain string is a strand to the
	// database and selects nothing.
	params := map[string]any{"id": userRecordID(id)}

	user, err := QueryOne[domain.User](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

// userRecordID builds the typed record ID for a user, accepting either a bare
// ID or the full "user:<id>" form.
func userRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(userTable, strings.TrimPrefix(id, userTable+":"))
}
