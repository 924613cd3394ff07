package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/chatlink/internal/chat"
)

// closeTimeout bounds how long Close waits to deliver the close frame.
const closeTimeout = time.Second

// Dialer opens client connections using gobwas/ws.
type Dialer struct {
	dialer       ws.Dialer
	writeTimeout time.Duration
}

// NewDialer creates a Dialer. A zero timeout leaves the handshake bounded only
// by the context passed to Dial.
func NewDialer(handshakeTimeout, writeTimeout time.Duration) *Dialer {
	return &Dialer{
		dialer:       ws.Dialer{Timeout: handshakeTimeout},
		writeTimeout: writeTimeout,
	}
}

// Dial performs the WebSocket handshake against url.
func (d *Dialer) Dial(ctx context.Context, url string) (chat.Conn, error) {
	conn, br, _, err := d.dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewClientConn(conn, br, d.writeTimeout), nil
}

// ClientConn adapts a client-side gobwas connection to chat.Conn.
// Frames are written as text; control frames are answered while reading.
type ClientConn struct {
	conn         net.Conn
	reader       *wsutil.Reader
	control      wsutil.FrameHandlerFunc
	writeMu      sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// NewClientConn wraps conn. br holds bytes the server sent right after the
// handshake and may be nil.
func NewClientConn(conn net.Conn, br *bufio.Reader, writeTimeout time.Duration) *ClientConn {
	var src io.Reader = conn
	if br != nil {
		src = br
	}
	c := &ClientConn{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
	c.control = wsutil.ControlFrameHandler(lockedWriter{c}, ws.StateClientSide)
	c.reader = &wsutil.Reader{
		Source:         src,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: c.control,
	}
	return c
}

// Read implements chat.Conn.
// A close frame from the server is reported as io.EOF.
func (c *ClientConn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, c.readErr(ctx, err)
		}
		if hdr.OpCode.IsControl() {
			if err := c.control(hdr, c.reader); err != nil {
				return nil, c.readErr(ctx, err)
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := c.reader.Discard(); err != nil {
				return nil, c.readErr(ctx, err)
			}
			continue
		}
		data, err := io.ReadAll(c.reader)
		if err != nil {
			return nil, c.readErr(ctx, err)
		}
		return data, nil
	}
}

func (c *ClientConn) readErr(ctx context.Context, err error) error {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return io.EOF
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Write implements chat.Conn.
func (c *ClientConn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	} else if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// Close implements chat.Conn. It sends a normal-closure frame and closes the
// socket; repeated calls return the first result.
func (c *ClientConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *ClientConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// lockedWriter serializes control-frame replies with regular writes.
type lockedWriter struct {
	c *ClientConn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}
