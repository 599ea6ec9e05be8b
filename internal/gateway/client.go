package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single push to a client connection.
const writeTimeout = 10 * time.Second

// Client represents one live transport connection. It is identified by a
// generated connection ID, not a user: the binding to a user only exists in
// the presence registry once the client sends its register frame.
type Client struct {
	// ID is the unique connection identifier.
	ID string

	conn *websocket.Conn
	mu   sync.Mutex
}

// NewClient wraps an accepted websocket connection.
func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{ID: id, conn: conn}
}

// Write pushes one frame to the connection. Writes are serialized by a mutex
// so queue deliveries and presence broadcasts never interleave, and each write
// carries a deadline so a dead peer fails the push instead of wedging the
// consumer.
func (c *Client) Write(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

// Read blocks for the next frame from the peer.
func (c *Client) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

// Close closes the underlying connection.
func (c *Client) Close(code websocket.StatusCode, reason string) {
	c.conn.Close(code, reason)
}
