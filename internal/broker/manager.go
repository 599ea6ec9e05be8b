package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nfrund/courier/internal/domain"
)

const (
	// queuePrefix is prepended to a recipient's user ID to form their queue name.
	queuePrefix = "user_messages_"

	// messageRetention is how long an unconsumed message survives in a queue.
	messageRetention = 30 * 24 * time.Hour
)

// DeliveryHandler processes one dequeued message. A nil return acknowledges
// the broker message and removes it from the queue; an error rejects it
// without requeue, permanently discarding it.
type DeliveryHandler func(ctx context.Context, msg domain.QueuedMessage) error

// Manager owns the process-wide broker connection and one durable, ordered,
// TTL-bounded queue per recipient. It registers at most one active consumer
// per user and tracks the consumer tags needed to cancel them.
type Manager struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu        sync.Mutex
	consumers map[string]string // userID -> consumerTag
	logger    *slog.Logger
}

// New dials the broker and opens the shared channel. A connection failure is
// logged rather than fatal: the returned manager is non-functional and every
// subsequent operation fails with a QueueError wrapping ErrNotConnected, so
// the rest of the process keeps running in a degraded state.
func New(url string) *Manager {
	m := &Manager{
		consumers: make(map[string]string),
		logger:    slog.Default().With("service", "broker"),
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		m.logger.Error("Failed to connect to broker", "error", err)
		return m
	}

	ch, err := conn.Channel()
	if err != nil {
		m.logger.Error("Failed to open broker channel", "error", err)
		conn.Close()
		return m
	}

	m.conn = conn
	m.ch = ch
	m.logger.Info("Broker connected")
	return m
}

// queueNameFor derives the deterministic queue name for a recipient.
func queueNameFor(userID string) string {
	return queuePrefix + userID
}

// queueArgs returns the declaration arguments shared by publish and consume.
func queueArgs() amqp.Table {
	return amqp.Table{
		"x-message-ttl": messageRetention.Milliseconds(),
	}
}

// declareQueue ensures the recipient's durable queue exists with its
// retention policy. Declaration is idempotent on matching arguments.
func (m *Manager) declareQueue(name string) error {
	_, err := m.ch.QueueDeclare(name, true, false, false, false, queueArgs())
	if err != nil {
		return newQueueError("declare", name, err)
	}
	return nil
}

// Enqueue publishes the message onto its recipient's queue, marked persistent
// so it survives a broker restart. On error the caller must not assume the
// message was durably queued.
func (m *Manager) Enqueue(ctx context.Context, msg *domain.Message) error {
	queue := queueNameFor(msg.RecipientID)

	if m.ch == nil {
		return newQueueError("publish", queue, ErrNotConnected)
	}
	if err := m.declareQueue(queue); err != nil {
		return err
	}

	body, err := json.Marshal(msg.Queued())
	if err != nil {
		return newQueueError("publish", queue, err)
	}

	err = m.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return newQueueError("publish", queue, err)
	}

	m.logger.Debug("Message queued", "queue", queue, "message_id", msg.Queued().MessageID)
	return nil
}

// StartConsuming registers a consumer for the user's queue and feeds every
// delivery through handler. A nil handler result acks the broker message;
// an error rejects it without requeue and the loop moves on to the next one.
// If a consumer is already active for this user it is cancelled first, so a
// user never has two live consumers.
func (m *Manager) StartConsuming(ctx context.Context, userID string, handler DeliveryHandler) error {
	queue := queueNameFor(userID)

	if m.ch == nil {
		return newQueueError("consume", queue, ErrNotConnected)
	}

	// Last registration wins: a stale consumer for the same user is cancelled
	// before the new one is registered.
	m.StopConsuming(userID)

	if err := m.declareQueue(queue); err != nil {
		return err
	}

	tag := "courier-" + uuid.NewString()
	deliveries, err := m.ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return newQueueError("consume", queue, err)
	}

	m.mu.Lock()
	m.consumers[userID] = tag
	m.mu.Unlock()

	go m.consumeLoop(ctx, userID, queue, deliveries, handler)

	m.logger.Info("Started consuming", "user_id", userID, "queue", queue, "consumer_tag", tag)
	return nil
}

// consumeLoop drains deliveries until the consumer is cancelled or the
// channel closes. Failures are contained to the individual message.
func (m *Manager) consumeLoop(ctx context.Context, userID, queue string, deliveries <-chan amqp.Delivery, handler DeliveryHandler) {
	for d := range deliveries {
		var msg domain.QueuedMessage
		if err := json.Unmarshal(d.Body, &msg); err != nil {
			m.logger.Error("Discarding unparseable queue payload", "queue", queue, "error", err)
			if rejectErr := d.Reject(false); rejectErr != nil {
				m.logger.Error("Failed to reject message", "queue", queue, "error", rejectErr)
			}
			continue
		}

		if err := handler(ctx, msg); err != nil {
			m.logger.Error("Error processing message",
				"queue", queue, "message_id", msg.MessageID, "error", err)
			// Reject without requeue; the message is dropped rather than
			// redelivered on the next connection.
			if rejectErr := d.Reject(false); rejectErr != nil {
				m.logger.Error("Failed to reject message",
					"queue", queue, "message_id", msg.MessageID, "error", rejectErr)
			}
			continue
		}

		if err := d.Ack(false); err != nil {
			m.logger.Error("Failed to ack message",
				"queue", queue, "message_id", msg.MessageID, "error", err)
		}
	}
	m.logger.Debug("Consumer loop ended", "user_id", userID, "queue", queue)
}

// StopConsuming cancels the consumer registered for the user, if any.
// Stopping a user with no active consumer is a no-op, and a failed
// cancellation is logged rather than raised.
func (m *Manager) StopConsuming(userID string) {
	m.mu.Lock()
	tag, ok := m.consumers[userID]
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := m.ch.Cancel(tag, false); err != nil {
		m.logger.Error("Failed to cancel consumer", "user_id", userID, "consumer_tag", tag, "error", err)
		return
	}

	m.mu.Lock()
	delete(m.consumers, userID)
	m.mu.Unlock()
	m.logger.Info("Stopped consuming", "user_id", userID, "consumer_tag", tag)
}

// hasConsumer reports whether a consumer is currently recorded for the user.
func (m *Manager) hasConsumer(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.consumers[userID]
	return ok
}

// Close cancels every active consumer, then closes the channel and the
// connection. Each step is best-effort: a failure is logged and does not
// block the next resource from closing.
func (m *Manager) Close() {
	m.mu.Lock()
	tags := make(map[string]string, len(m.consumers))
	for user, tag := range m.consumers {
		tags[user] = tag
	}
	m.consumers = make(map[string]string)
	m.mu.Unlock()

	if m.ch != nil {
		for user, tag := range tags {
			if err := m.ch.Cancel(tag, false); err != nil {
				m.logger.Error("Failed to cancel consumer during shutdown", "user_id", user, "error", err)
			}
		}
		if err := m.ch.Close(); err != nil {
			m.logger.Error("Failed to close broker channel", "error", err)
		}
	}
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Error("Failed to close broker connection", "error", err)
		}
	}
}
