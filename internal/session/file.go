package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvToken  = "CHATLINK_TOKEN"
	EnvUserID = "CHATLINK_USER_ID"
)

type fileSession struct {
	Token  string `yaml:"token"`
	UserID *int64 `yaml:"user_id"`
}

// File is an Accessor backed by a YAML file of the form
//
//	token: <jwt>
//	user_id: 1
//
// CHATLINK_TOKEN and CHATLINK_USER_ID override the file when set.
// The file is re-read on every call.
type File struct {
	path      string
	lookupEnv func(string) (string, bool)
	logger    *slog.Logger
}

// NewFile creates a File accessor for path.
func NewFile(path string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{
		path:      path,
		lookupEnv: os.LookupEnv,
		logger:    logger,
	}
}

// Path returns the session file location.
func (f *File) Path() string {
	return f.path
}

func (f *File) Token() (string, bool) {
	if v, ok := f.lookupEnv(EnvToken); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	s, err := f.read()
	if err != nil {
		f.logger.Debug("Session token unavailable", "path", f.path, "error", err)
		return "", false
	}
	return s.Token, s.Token != ""
}

func (f *File) UserID() (int64, bool) {
	if v, ok := f.lookupEnv(EnvUserID); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			f.logger.Warn("Ignoring invalid user id in environment", "var", EnvUserID, "error", err)
			return 0, false
		}
		return id, true
	}
	s, err := f.read()
	if err != nil {
		f.logger.Debug("Session user id unavailable", "path", f.path, "error", err)
		return 0, false
	}
	if s.UserID == nil {
		return 0, false
	}
	return *s.UserID, true
}

// Save writes s to the session file, creating its directory if needed.
func (f *File) Save(s Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	userID := s.UserID
	data, err := yaml.Marshal(fileSession{Token: s.Token, UserID: &userID})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Clear removes the session file. A missing file is not an error.
func (f *File) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

func (f *File) read() (fileSession, error) {
	var s fileSession
	data, err := os.ReadFile(f.path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse session file: %w", err)
	}
	s.Token = strings.TrimSpace(s.Token)
	return s, nil
}
