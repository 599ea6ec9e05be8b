package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/courier/internal/broker"
	"github.com/nfrund/courier/internal/domain"
	"github.com/nfrund/courier/internal/presence"
)

// mockConsumers implements Consumers for testing.
type mockConsumers struct {
	started  []string
	stopped  []string
	startErr error
	handlers map[string]broker.DeliveryHandler
}

func newMockConsumers() *mockConsumers {
	return &mockConsumers{handlers: make(map[string]broker.DeliveryHandler)}
}

func (m *mockConsumers) StartConsuming(ctx context.Context, userID string, handler broker.DeliveryHandler) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = append(m.started, userID)
	m.handlers[userID] = handler
	return nil
}

func (m *mockConsumers) StopConsuming(userID string) {
	m.stopped = append(m.stopped, userID)
}

// mockRecorder implements DeliveryRecorder for testing.
type mockRecorder struct {
	delivered []string
	err       error
}

func (m *mockRecorder) MarkDelivered(ctx context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.delivered = append(m.delivered, id)
	return nil
}

// mockPusher implements pusher for testing.
type mockPusher struct {
	frames [][]byte
	err    error
}

func (m *mockPusher) Write(ctx context.Context, payload []byte) error {
	if m.err != nil {
		return m.err
	}
	m.frames = append(m.frames, payload)
	return nil
}

func newTestGateway(queue Consumers, store DeliveryRecorder) *Gateway {
	return New(queue, store, presence.NewService(nil), nil)
}

func TestDeliveryHandler_PushThenMarkThenAck(t *testing.T) {
	queue := newMockConsumers()
	store := &mockRecorder{}
	conn := &mockPusher{}
	g := newTestGateway(queue, store)

	handler := g.deliveryHandler("conn1", conn)
	err := handler(context.Background(), domain.QueuedMessage{
		MessageID: "message:1",
		SenderID:  "s1",
		Content:   "hello",
	})
	require.NoError(t, err)

	// Exactly one push with the wire-level contract.
	require.Len(t, conn.frames, 1)
	var frame map[string]string
	require.NoError(t, json.Unmarshal(conn.frames[0], &frame))
	assert.Equal(t, map[string]string{
		"senderId":  "s1",
		"content":   "hello",
		"messageId": "message:1",
	}, frame)

	// The delivery was recorded after the push succeeded.
	assert.Equal(t, []string{"message:1"}, store.delivered)
}

func TestDeliveryHandler_PushFailureSkipsMarkDelivered(t *testing.T) {
	store := &mockRecorder{}
	conn := &mockPusher{err: errors.New("connection reset")}
	g := newTestGateway(newMockConsumers(), store)

	handler := g.deliveryHandler("conn1", conn)
	err := handler(context.Background(), domain.QueuedMessage{MessageID: "message:1"})

	// The error propagates so the broker rejects without requeue, and the
	// record keeps delivered=false.
	require.Error(t, err)
	assert.Empty(t, store.delivered)
}

func TestDeliveryHandler_MarkDeliveredFailurePropagates(t *testing.T) {
	store := &mockRecorder{err: errors.New("db unavailable")}
	conn := &mockPusher{}
	g := newTestGateway(newMockConsumers(), store)

	handler := g.deliveryHandler("conn1", conn)
	err := handler(context.Background(), domain.QueuedMessage{MessageID: "message:1"})

	require.Error(t, err)
	// The push already happened; only the record write failed.
	assert.Len(t, conn.frames, 1)
}

func TestRegisterStartsConsumer(t *testing.T) {
	queue := newMockConsumers()
	g := newTestGateway(queue, &mockRecorder{})
	client := NewClient("conn1", nil)
	g.addClient(client)

	g.register(client, "u1")

	assert.Equal(t, []string{"u1"}, queue.started)
	connID, ok := g.presence.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "conn1", connID)
}

func TestRegisterFailureLeavesNoConsumer(t *testing.T) {
	queue := newMockConsumers()
	queue.startErr = errors.New("broker unavailable")
	g := newTestGateway(queue, &mockRecorder{})
	client := NewClient("conn1", nil)

	// Registration failure is logged and absorbed; the user stays registered
	// in presence but has no active consumer and no automatic retry.
	g.register(client, "u1")
	assert.Empty(t, queue.started)
}

func TestDisconnectStopsConsumerOnce(t *testing.T) {
	queue := newMockConsumers()
	g := newTestGateway(queue, &mockRecorder{})
	client := NewClient("conn1", nil)
	g.addClient(client)
	g.register(client, "u1")

	g.removeClient(client.ID)
	g.disconnect(client)
	assert.Equal(t, []string{"u1"}, queue.stopped)

	// A second disconnect for the same connection finds no binding.
	g.disconnect(client)
	assert.Equal(t, []string{"u1"}, queue.stopped)
}

func TestDisconnectUnregisteredConnectionIsNoOp(t *testing.T) {
	queue := newMockConsumers()
	g := newTestGateway(queue, &mockRecorder{})
	client := NewClient("conn1", nil)
	g.addClient(client)

	g.removeClient(client.ID)
	g.disconnect(client)

	assert.Empty(t, queue.stopped)
}

func TestReRegisterReplacesBinding(t *testing.T) {
	queue := newMockConsumers()
	g := newTestGateway(queue, &mockRecorder{})
	oldClient := NewClient("conn1", nil)
	newClient := NewClient("conn2", nil)

	g.register(oldClient, "u1")
	g.register(newClient, "u1")

	// Two registrations were handed to the broker, which enforces the
	// single-consumer invariant by cancelling the stale one first.
	assert.Equal(t, []string{"u1", "u1"}, queue.started)

	connID, ok := g.presence.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "conn2", connID)

	// The stale connection closing afterwards must not stop the consumer.
	g.disconnect(oldClient)
	assert.Empty(t, queue.stopped)
}

func TestClientTrackingFollowsConnectionLifecycle(t *testing.T) {
	g := newTestGateway(newMockConsumers(), &mockRecorder{})
	assert.Equal(t, 0, g.connectedCount())

	first := NewClient("conn1", nil)
	second := NewClient("conn2", nil)
	g.addClient(first)
	g.addClient(second)
	assert.Equal(t, 2, g.connectedCount())

	g.removeClient(first.ID)
	assert.Equal(t, 1, g.connectedCount())

	// Removing an unknown connection leaves the count untouched.
	g.removeClient("conn-unknown")
	assert.Equal(t, 1, g.connectedCount())
}
