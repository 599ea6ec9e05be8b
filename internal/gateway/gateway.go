package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/courier/internal/broker"
	"github.com/nfrund/courier/internal/domain"
	"github.com/nfrund/courier/internal/presence"
	"github.com/nfrund/courier/internal/pubsub"
)

// Consumers is the slice of the broker the gateway needs: binding and
// unbinding a per-user queue consumer.
type Consumers interface {
	StartConsuming(ctx context.Context, userID string, handler broker.DeliveryHandler) error
	StopConsuming(userID string)
}

// DeliveryRecorder marks a message as delivered in the record store.
type DeliveryRecorder interface {
	MarkDelivered(ctx context.Context, id string) error
}

// pusher is the write side of a connection, satisfied by *Client.
type pusher interface {
	Write(ctx context.Context, payload []byte) error
}

// registerFrame is the in-band signal a connected client sends to bind its
// connection to a user identity.
type registerFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// deliveryFrame is the wire-level contract for a pushed message: one frame
// per delivered message, no batching.
type deliveryFrame struct {
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	MessageID string `json:"messageId"`
}

// Gateway bridges the broker's per-user queues and live websocket
// connections. It is the single authority for when a message counts as
// delivered: push over the transport, then mark delivered, then ack.
type Gateway struct {
	queue    Consumers
	store    DeliveryRecorder
	presence *presence.Service

	mu      sync.RWMutex
	clients map[string]*Client // connectionID -> client

	logger *slog.Logger
}

// New wires the gateway and subscribes it to presence status events, which it
// relays to every connected client.
func New(queue Consumers, store DeliveryRecorder, registry *presence.Service, sub pubsub.Subscriber) *Gateway {
	g := &Gateway{
		queue:    queue,
		store:    store,
		presence: registry,
		clients:  make(map[string]*Client),
		logger:   slog.Default().With("service", "gateway"),
	}

	if sub != nil {
		if err := sub.Subscribe(context.Background(), presence.TopicStatus, g.relayPresence); err != nil {
			g.logger.Error("Failed to subscribe to presence status events", "error", err)
		}
	}

	return g
}

// Handler returns an echo.HandlerFunc that upgrades the request to a
// websocket and serves the connection until it closes.
func (g *Gateway) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			InsecureSkipVerify: true, // In production, check origin.
		})
		if err != nil {
			g.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
			return err
		}

		client := NewClient(uuid.NewString(), conn)
		g.addClient(client)
		g.logger.Info("Client connected", "connection_id", client.ID)

		g.serve(c.Request().Context(), client)
		return nil
	}
}

// serve runs the connection's read loop and tears the connection down when it
// ends, whatever the reason.
func (g *Gateway) serve(ctx context.Context, client *Client) {
	defer func() {
		g.removeClient(client.ID)
		g.disconnect(client)
		client.Close(websocket.StatusNormalClosure, "Client disconnected")
	}()

	for {
		data, err := client.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				g.logger.Info("WebSocket closed normally by client", "connection_id", client.ID)
			} else if err != io.EOF {
				g.logger.Error("WebSocket read error", "connection_id", client.ID, "error", err)
			}
			return
		}

		var frame registerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.logger.Warn("Ignoring unparseable frame", "connection_id", client.ID, "error", err)
			continue
		}

		switch frame.Type {
		case "register_user":
			if frame.UserID == "" {
				g.logger.Warn("Register frame without userId", "connection_id", client.ID)
				continue
			}
			g.register(client, frame.UserID)
		default:
			g.logger.Debug("Ignoring frame of unknown type", "connection_id", client.ID, "type", frame.Type)
		}
	}
}

// register binds the connection to a user and starts a consumer for their
// queue. Re-registration is safe: the presence entry is replaced (last
// registration wins) and the broker cancels any stale consumer before
// registering the new one, so a user never has two live consumers.
func (g *Gateway) register(client *Client, userID string) {
	prevConn, replaced := g.presence.Register(userID, client.ID)
	if replaced {
		g.logger.Info("Displacing previous connection for user",
			"user_id", userID, "prev_connection_id", prevConn)
	}

	if err := g.queue.StartConsuming(context.Background(), userID, g.deliveryHandler(client.ID, client)); err != nil {
		// No consumer is active; queued messages wait for the next
		// registration. There is no automatic retry.
		g.logger.Error("Failed to start consuming", "user_id", userID, "error", err)
		return
	}

	g.logger.Info("User registered on connection", "user_id", userID, "connection_id", client.ID)
}

// deliveryHandler builds the per-message pipeline for a registered
// connection: push the frame, then record the delivery. Returning an error at
// either stage makes the broker reject the message without requeue, so the
// mark-delivered step is skipped whenever the push failed.
func (g *Gateway) deliveryHandler(connID string, conn pusher) broker.DeliveryHandler {
	return func(ctx context.Context, msg domain.QueuedMessage) error {
		frame, err := json.Marshal(deliveryFrame{
			SenderID:  msg.SenderID,
			Content:   msg.Content,
			MessageID: msg.MessageID,
		})
		if err != nil {
			return fmt.Errorf("failed to encode delivery frame: %w", err)
		}

		if err := conn.Write(ctx, frame); err != nil {
			g.logger.Error("Failed to push message",
				"message_id", msg.MessageID, "connection_id", connID, "error", err)
			return fmt.Errorf("push failed: %w", err)
		}

		if err := g.store.MarkDelivered(ctx, msg.MessageID); err != nil {
			g.logger.Error("Failed to mark message delivered",
				"message_id", msg.MessageID, "error", err)
			return fmt.Errorf("mark delivered failed: %w", err)
		}

		g.logger.Info("Message delivered", "message_id", msg.MessageID, "connection_id", connID)
		return nil
	}
}

// disconnect cleans up after a closed connection. A connection that never
// registered has no presence entry and no consumer, so there is nothing to do
// beyond logging.
func (g *Gateway) disconnect(client *Client) {
	userID, ok := g.presence.Disconnect(client.ID)
	if !ok {
		g.logger.Debug("Connection closed without a registered user", "connection_id", client.ID)
		return
	}
	g.queue.StopConsuming(userID)
}

// relayPresence forwards presence status events to every connected client.
// Pushes here are best-effort; a failed write is the read loop's problem.
func (g *Gateway) relayPresence(ctx context.Context, msg pubsub.Message) error {
	g.mu.RLock()
	clients := make([]*Client, 0, len(g.clients))
	for _, client := range g.clients {
		clients = append(clients, client)
	}
	g.mu.RUnlock()

	for _, client := range clients {
		if err := client.Write(ctx, msg.Payload); err != nil {
			g.logger.Debug("Failed to relay presence update", "connection_id", client.ID, "error", err)
		}
	}
	return nil
}

func (g *Gateway) addClient(client *Client) {
	g.mu.Lock()
	g.clients[client.ID] = client
	g.mu.Unlock()
}

func (g *Gateway) removeClient(connID string) {
	g.mu.Lock()
	delete(g.clients, connID)
	g.mu.Unlock()
}

// connectedCount reports the number of open connections, registered or not.
func (g *Gateway) connectedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}
