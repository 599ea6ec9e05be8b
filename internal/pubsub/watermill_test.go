package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillBridge_RoundTrip(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	received := make(chan Message, 1)
	err := bridge.Subscribe(context.Background(), "test.topic", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	})
	require.NoError(t, err)

	err = bridge.Publish(context.Background(), Message{
		Topic:    "test.topic",
		UserID:   "u1",
		Payload:  []byte(`{"hello":"world"}`),
		Metadata: map[string]string{"source": "test"},
	})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "test.topic", msg.Topic)
		assert.Equal(t, "u1", msg.UserID)
		assert.JSONEq(t, `{"hello":"world"}`, string(msg.Payload))
		assert.Equal(t, "test", msg.Metadata["source"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestWatermillBridge_SubscribersAreIndependent(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	other := make(chan Message, 1)
	require.NoError(t, bridge.Subscribe(context.Background(), "other.topic", func(ctx context.Context, msg Message) error {
		other <- msg
		return nil
	}))

	require.NoError(t, bridge.Publish(context.Background(), Message{Topic: "test.topic", Payload: []byte("x")}))

	select {
	case <-other:
		t.Fatal("message leaked onto an unrelated topic")
	case <-time.After(100 * time.Millisecond):
	}
}
