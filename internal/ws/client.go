package ws

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds every write; adoption pushes arrive on a fixed cadence,
// so a subscriber that cannot drain one frame before the next is dead
// weight and gets dropped.
const writeWait = 5 * time.Second

// Client is one adoption stream subscriber.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger}
}

// Send pushes one adoption summary frame. A write failure or deadline miss
// tears the connection down; the hub drops the subscriber on error.
func (c *Client) Send(payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("adoption stream send failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close attempts a normal close handshake before dropping the connection.
func (c *Client) Close() {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.conn.Close()
}
