package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/omochice/chatlink/internal/auth"
	"github.com/omochice/chatlink/internal/history"
	"github.com/omochice/chatlink/pkg/protocol"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
}

// sendRequest is the body of POST /send. sender_id is ignored if present.
type sendRequest struct {
	ReceiverID *int64  `json:"receiver_id"`
	Content    *string `json:"content"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeBody(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user, err := s.users.CreateUser(r.Context(), req.Username, hash)
	if errors.Is(err, history.ErrUserExists) {
		writeError(w, http.StatusConflict, "username already registered")
		return
	}
	if err != nil {
		s.logger.Error("Failed to create user", "error", err, "username", req.Username)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	s.logger.Info("User registered", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, registerResponse{ID: user.ID, Username: user.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.users.FindUser(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if !errors.Is(err, history.ErrUserNotFound) {
			s.logger.Error("Failed to look up user", "error", err)
		}
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		s.logger.Error("Failed to issue token", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, UserID: user.ID})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticateBearer(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ReceiverID == nil || req.Content == nil || *req.Content == "" {
		writeError(w, http.StatusBadRequest, "receiver_id and content are required")
		return
	}

	msg := protocol.Message{SenderID: userID, ReceiverID: *req.ReceiverID, Content: *req.Content}
	if err := s.deliver(msg); err != nil {
		s.logger.Error("Failed to deliver message", "error", err, "sender_id", userID)
		writeError(w, http.StatusInternalServerError, "send failed")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticateBearer(w, r)
	if !ok {
		return
	}

	pathID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if pathID != userID {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), historyTimeout)
	defer cancel()
	msgs, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load history", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if msgs == nil {
		msgs = []protocol.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// authenticateBearer resolves the Authorization: Bearer token. On failure it
// writes a 401 and returns false.
func (s *Server) authenticateBearer(w http.ResponseWriter, r *http.Request) (int64, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return 0, false
	}
	userID, err := s.tokens.Authenticate(strings.TrimSpace(token))
	if err != nil {
		s.logger.Warn("Rejected request", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return 0, false
	}
	return userID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
