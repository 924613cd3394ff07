// Package client keeps one authenticated chat connection alive on behalf of a
// user: it dials, feeds inbound frames into a message store, reconnects with
// exponential backoff, and gates outbound sends on readiness.
package client

import (
	"context"

	"github.com/omochice/chatlink/internal/chat"
)

// Client is the surface a UI binds to.
// Manager satisfies this interface.
type Client interface {
	Connect() error
	Teardown()
	IsReady() bool
	State() State
	StateChanges() <-chan struct{}
	Send(ctx context.Context, input InputBuffer, receiverID int64) error
	Store() *chat.Store
}

// Dialer opens a transport connection to url.
type Dialer interface {
	Dial(ctx context.Context, url string) (chat.Conn, error)
}

// InputBuffer is the caller's pending outgoing text.
// *textinput.Model from charmbracelet/bubbles satisfies it.
type InputBuffer interface {
	Value() string
	Reset()
}

var _ Client = (*Manager)(nil)
