package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nfrund/courier/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// messageTable is the record store table holding message records.
const messageTable = "message"

// MessageStore implements domain.MessageRepository on SurrealDB.
type MessageStore struct {
	db *surrealdb.DB
}

// NewMessageStore creates a message repository backed by the given connection.
func NewMessageStore(db *surrealdb.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Create persists a new message record. The timestamp is set here, at persist
// time, and the returned message carries the server-generated record ID with
// delivered defaulted to false.
func (s *MessageStore) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	query := `
		CREATE message CONTENT {
			senderId: $sender_id,
			recipientId: $recipient_id,
			content: $content,
			timestamp: $timestamp,
			delivered: false
		}
	`
	params := map[string]any{
		"sender_id":    msg.SenderID,
		"recipient_id": msg.RecipientID,
		"content":      msg.Content,
		"timestamp":    msg.Timestamp,
	}

	created, err := QueryOne[domain.Message](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	if created == nil {
		return nil, fmt.Errorf("create returned no message record")
	}
	return created, nil
}

// MarkDelivered records a successful push for the message with the given
// record ID. The WHERE clause keeps the false->true transition one-way: a
// message already marked delivered is left untouched.
func (s *MessageStore) MarkDelivered(ctx context.Context, id string) error {
	query := `
		UPDATE $id SET delivered = true, deliveredAt = $delivered_at
		WHERE delivered = false
	`
	// The param must be a typed record ID; a plain string is a strand to the
	// database and cannot be updated.
	params := map[string]any{
		"id":           messageRecordID(id),
		"delivered_at": time.Now().UTC(),
	}

	if err := Execute(ctx, s.db, query, params); err != nil {
		return fmt.Errorf("failed to mark message delivered: %w", err)
	}
	return nil
}

// ListByRecipient returns every message addressed to the given user in
// creation order.
func (s *MessageStore) ListByRecipient(ctx context.Context, userID string) ([]domain.Message, error) {
	query := `SELECT * FROM message WHERE recipientId = $recipient ORDER BY timestamp ASC`
	params := map[string]any{"recipient": userID}

	messages, err := Query[domain.Message](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// messageRecordID builds the typed record ID for a message, accepting either
// a bare ID or the full "message:<id>" form the queue payload carries.
func messageRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(messageTable, strings.TrimPrefix(id, messageTable+":"))
}
