package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nfrund/courier/internal/domain"
)

// Queue is the slice of the broker the messaging service needs: durably
// enqueueing a persisted message onto its recipient's queue.
type Queue interface {
	Enqueue(ctx context.Context, msg *domain.Message) error
}

// Service orchestrates the send and read flows: recipient validation,
// persistence, and hand-off to the per-recipient queue. Delivery itself is
// the gateway's business.
type Service struct {
	store  domain.MessageRepository
	users  domain.UserDirectory
	queue  Queue
	logger *slog.Logger
}

// NewService wires the messaging service.
func NewService(store domain.MessageRepository, users domain.UserDirectory, queue Queue) *Service {
	return &Service{
		store:  store,
		users:  users,
		queue:  queue,
		logger: slog.Default().With("service", "messaging"),
	}
}

// SendMessage validates the recipient, persists the message and enqueues it
// for delivery. Validation failure leaves no trace; an enqueue failure
// propagates even though the record now exists, so the caller can observe the
// persisted-but-unqueued state as a send failure.
func (s *Service) SendMessage(ctx context.Context, senderID, recipientID, content string) (*domain.Message, error) {
	if _, err := s.users.FindByID(ctx, recipientID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("recipient %q: %w", recipientID, domain.ErrInvalidRecipient)
		}
		return nil, fmt.Errorf("recipient lookup failed: %w", err)
	}

	msg, err := s.store.Create(ctx, &domain.Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	if err := s.queue.Enqueue(ctx, msg); err != nil {
		s.logger.Error("Message persisted but not queued",
			"message_id", msg.Queued().MessageID, "recipient_id", recipientID, "error", err)
		return nil, err
	}

	return msg, nil
}

// GetMessagesForUser returns every message addressed to userID, grouped by
// sender, with each sender's messages in creation order. An empty map is not
// an error at this layer; the edge decides how to report it.
func (s *Service) GetMessagesForUser(ctx context.Context, userID string) (map[string][]domain.Message, error) {
	messages, err := s.store.ListByRecipient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return groupBySender(messages), nil
}

// groupBySender buckets messages by sender, preserving the input order within
// each bucket.
func groupBySender(messages []domain.Message) map[string][]domain.Message {
	grouped := make(map[string][]domain.Message, len(messages))
	for _, msg := range messages {
		grouped[msg.SenderID] = append(grouped[msg.SenderID], msg)
	}
	return grouped
}
