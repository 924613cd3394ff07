package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/omochice/chatlink/internal/auth"
	"github.com/omochice/chatlink/internal/chat"
	"github.com/omochice/chatlink/internal/history"
	"github.com/omochice/chatlink/pkg/protocol"
)

const (
	outgoingQueueSize = 32
	historyTimeout    = 5 * time.Second
	writeTimeout      = 10 * time.Second
)

// Server is the development gateway. It authenticates /ws connections by the
// token query parameter, sends each new connection its history snapshot, and
// relays messages to the receiver with an echo to the sender. The same
// router serves account registration, login, and HTTP send and history
// endpoints.
type Server struct {
	address string
	hub     *chat.Hub
	tokens  auth.Tokens
	repo    history.Repository
	users   history.UserRepository
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// relayMu makes loading a new connection's history and registering it
	// one step with respect to deliver, so no message falls between the two.
	relayMu sync.Mutex

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// New creates a WebSocket server that uses the provided Hub.
func New(address string, hub *chat.Hub, tokens auth.Tokens, repo history.Repository, users history.UserRepository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		address: address,
		hub:     hub,
		tokens:  tokens,
		repo:    repo,
		users:   users,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handler returns the gateway routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/send", s.handleSend)
	r.Get("/messages/{user_id}", s.handleMessages)
	return r
}

// Start starts accepting connections. It blocks until Stop is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	s.logger.Info("Gateway listening", "addr", listener.Addr().String())

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the server and closes every client connection.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			s.logger.Warn("Gateway shutdown incomplete", "error", err)
		}
	}
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.tokens.Authenticate(r.URL.Query().Get("token"))
	if err != nil {
		s.logger.Warn("Rejected WebSocket connection", "error", err, "ip", r.RemoteAddr)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}

	client := &chat.Client{
		Conn:     NewConnWithAddr(wsConn, r.RemoteAddr),
		UserID:   userID,
		Outgoing: make(chan []byte, outgoingQueueSize),
	}

	s.relayMu.Lock()
	s.sendHistory(client)
	s.hub.Register(client)
	s.relayMu.Unlock()
	s.logger.Info("Client connected", "user_id", userID, "remote", r.RemoteAddr)

	s.wg.Add(2)
	go s.writeLoop(client)
	go s.handleClient(client)
}

func (s *Server) sendHistory(client *chat.Client) {
	ctx, cancel := context.WithTimeout(s.ctx, historyTimeout)
	defer cancel()

	msgs, err := s.repo.ListForUser(ctx, client.UserID)
	if err != nil {
		s.logger.Error("Failed to load history", "error", err, "user_id", client.UserID)
		return
	}
	data, err := protocol.EncodeHistory(msgs)
	if err != nil {
		s.logger.Error("Failed to encode history", "error", err)
		return
	}
	client.Outgoing <- data
}

func (s *Server) handleClient(client *chat.Client) {
	defer s.wg.Done()
	defer func() {
		s.hub.Unregister(client)
		close(client.Outgoing)
		s.logger.Info("Client disconnected", "user_id", client.UserID)
	}()

	for {
		data, err := client.Conn.Read(s.ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				s.logger.Warn("WebSocket read error", "error", err, "user_id", client.UserID)
			}
			return
		}

		var msg protocol.Message
		if err := msg.Decode(data); err != nil {
			s.logger.Warn("Failed to decode message", "error", err, "user_id", client.UserID)
			continue
		}
		msg.SenderID = client.UserID
		if err := s.deliver(msg); err != nil {
			s.logger.Error("Failed to deliver message", "error", err, "sender_id", msg.SenderID)
		}
	}
}

// deliver persists msg, then relays it to the receiver and echoes it to the sender.
func (s *Server) deliver(msg protocol.Message) error {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, historyTimeout)
	defer cancel()
	if err := s.repo.Save(ctx, msg); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}

	s.hub.SendTo(msg.ReceiverID, data)
	if msg.ReceiverID != msg.SenderID {
		s.hub.SendTo(msg.SenderID, data)
	}
	return nil
}

func (s *Server) writeLoop(client *chat.Client) {
	defer s.wg.Done()
	defer client.Conn.Close()

	for data := range client.Outgoing {
		ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
		err := client.Conn.Write(ctx, data)
		cancel()
		if err != nil {
			s.logger.Warn("Failed to write to WebSocket client", "error", err, "user_id", client.UserID)
			return
		}
	}
}
