// Package history persists delivered chat messages for the gateway so a
// reconnecting client can be sent its full history. It also keeps the
// gateway's user accounts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/omochice/chatlink/pkg/protocol"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Repository stores and lists messages.
type Repository interface {
	Save(ctx context.Context, msg protocol.Message) error
	ListForUser(ctx context.Context, userID int64) ([]protocol.Message, error)
}

// SQLite implements Repository using SQLite.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	dsn := dbPath
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == MemoryPath {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL,
		receiver_id INTEGER NOT NULL,
		content TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);
	CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id);
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Save appends msg.
func (s *SQLite) Save(ctx context.Context, msg protocol.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content) VALUES (?, ?, ?)`,
		msg.SenderID, msg.ReceiverID, msg.Content)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListForUser returns every message sent or received by userID, oldest first.
func (s *SQLite) ListForUser(ctx context.Context, userID int64) ([]protocol.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_id, receiver_id, content
		FROM messages
		WHERE sender_id = ? OR receiver_id = ?
		ORDER BY id`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []protocol.Message
	for rows.Next() {
		var m protocol.Message
		if err := rows.Scan(&m.SenderID, &m.ReceiverID, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
