package hub

import (
	"context"
	"crypto/rand"
	"time"

	"nhooyr.io/websocket"
)

const clientSendBuffer = 64

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   generateID(),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
}

// enqueue delivers data to the client without blocking the publisher. When
// the buffer is full the oldest queued event is dropped to make room —
// observers care about staying current, not replaying history.
func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) readPump(ctx context.Context, onClose func()) {
	defer onClose()
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
		// The stream is observe-only; any client message is ignored but
		// still drained so the connection's read loop keeps progressing.
	}
}

func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

func generateID() string {
	return time.Now().Format("20060102150405") + "-" + randomString(6)
}

func randomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	rand.Read(b)
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}
