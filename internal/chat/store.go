package chat

import (
	"sync"

	"github.com/omochice/chatlink/pkg/protocol"
)

// Store is the in-memory, arrival-ordered sequence of messages seen this session.
// It is append-only apart from Replace, which loads a history snapshot.
type Store struct {
	mu       sync.RWMutex
	messages []protocol.Message
	changes  chan struct{}
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		changes: make(chan struct{}, 1),
	}
}

// Replace discards the current contents and loads history in order.
func (s *Store) Replace(history []protocol.Message) {
	s.mu.Lock()
	s.messages = append(make([]protocol.Message, 0, len(history)), history...)
	s.mu.Unlock()
	s.notify()
}

// Append adds msg to the end of the store.
func (s *Store) Append(msg protocol.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify()
}

// Reset empties the store.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
	s.notify()
}

// Messages returns a copy of all messages in arrival order.
func (s *Store) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Conversation returns the messages exchanged with peerID, in arrival order.
func (s *Store) Conversation(peerID int64) []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []protocol.Message
	for _, m := range s.messages {
		if m.SenderID == peerID || m.ReceiverID == peerID {
			out = append(out, m)
		}
	}
	return out
}

// Changes returns a channel that receives a value after the store changes.
// Notifications coalesce: readers should re-read the store on each receive.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
