// Package ws provides the WebSocket transport: a gobwas/ws dialer for chat
// clients and a coder/websocket server for the development gateway.
package ws

import (
	"context"
	"errors"
	"io"

	"github.com/coder/websocket"
)

// Conn adapts a server-side coder/websocket connection to chat.Conn.
type Conn struct {
	conn       *websocket.Conn
	remoteAddr string
}

// NewConnWithAddr wraps a websocket.Conn with the specified remote address.
func NewConnWithAddr(conn *websocket.Conn, addr string) *Conn {
	return &Conn{conn: conn, remoteAddr: addr}
}

// Read implements chat.Conn.
// A normal or going-away closure from the peer is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// Write implements chat.Conn.
// Writes a text message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}
