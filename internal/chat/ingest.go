package chat

import (
	"log/slog"

	"github.com/omochice/chatlink/pkg/protocol"
)

// Ingestor routes decoded inbound frames into a Store.
type Ingestor struct {
	store  *Store
	logger *slog.Logger
}

// NewIngestor creates an Ingestor writing to store.
func NewIngestor(store *Store, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{store: store, logger: logger}
}

// Handle classifies one inbound frame. A snapshot replaces the store, anything
// else that decodes as a message is appended. Malformed frames are dropped and
// the decode error is returned for the caller to report.
func (in *Ingestor) Handle(data []byte) error {
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		in.logger.Warn("Dropping malformed frame", "error", err, "bytes", len(data))
		return err
	}

	if frame.Snapshot {
		in.store.Replace(frame.History)
		in.logger.Debug("History snapshot loaded", "messages", len(frame.History))
		return nil
	}

	in.store.Append(frame.Message)
	return nil
}
