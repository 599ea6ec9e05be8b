package domain

import (
	"context"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Message is the durable record of a single chat message. The record store
// assigns the ID at creation time and is the source of truth for delivery
// status: Delivered transitions false->true exactly once, driven by a
// successful push over the recipient's live connection, and DeliveredAt is set
// iff Delivered is true.
type Message struct {
	ID          *surrealmodels.RecordID `json:"id,omitempty"`
	SenderID    string                  `json:"senderId"`
	RecipientID string                  `json:"recipientId"`
	Content     string                  `json:"content"`
	Timestamp   time.Time               `json:"timestamp"`
	Delivered   bool                    `json:"delivered"`
	DeliveredAt *time.Time              `json:"deliveredAt,omitempty"`
}

// QueuedMessage is the flat form of a Message as it travels through the
// broker queue. The record ID is carried as a plain string so the payload
// round-trips through JSON without the record store's ID type.
type QueuedMessage struct {
	MessageID   string    `json:"messageId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// Queued converts a persisted message into its queue payload form.
func (m *Message) Queued() QueuedMessage {
	var id string
	if m.ID != nil {
		id = m.ID.String()
	}
	return QueuedMessage{
		MessageID:   id,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		Timestamp:   m.Timestamp,
	}
}

// MessageRepository defines the contract for message record storage. It lives
// in the domain because it is a requirement OF the domain, not of the database
// implementation.
type MessageRepository interface {
	// Create persists a new message, setting its timestamp and ID. The
	// returned message carries the server-generated ID.
	Create(ctx context.Context, msg *Message) (*Message, error)

	// MarkDelivered flips the delivered flag for the given record ID and
	// stamps deliveredAt. The transition only ever happens once.
	MarkDelivered(ctx context.Context, id string) error

	// ListByRecipient returns every message addressed to the given user,
	// ordered by creation time.
	ListByRecipient(ctx context.Context, userID string) ([]Message, error)
}
