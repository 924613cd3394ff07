package client

import (
	"context"
	"fmt"

	"github.com/omochice/chatlink/pkg/protocol"
)

// Send transmits the content of input to receiverID over the open connection
// and resets input once the frame is written.
//
// The message is not added to the local store; it appears when the server
// echoes it back. Rejections wrap ErrSendRejected and transmit nothing.
func (m *Manager) Send(ctx context.Context, input InputBuffer, receiverID int64) error {
	content := input.Value()
	if content == "" {
		return ErrEmptyContent
	}

	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		return ErrConnectionNotReady
	}
	conn, gen := m.conn, m.gen
	m.mu.Unlock()

	senderID, ok := m.accessor.UserID()
	if !ok {
		return ErrUnauthenticated
	}

	msg := protocol.Message{SenderID: senderID, ReceiverID: receiverID, Content: content}
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	if m.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.WriteTimeout)
		defer cancel()
	}
	if err := conn.Write(ctx, data); err != nil {
		m.onError(gen, err)
		return fmt.Errorf("failed to send message: %w", err)
	}

	input.Reset()
	m.logger.Debug("Message sent", "receiver_id", receiverID, "bytes", len(data))
	return nil
}
