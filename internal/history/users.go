package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

// User is a registered account. PasswordHash is a bcrypt hash.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

// UserRepository stores accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	FindUser(ctx context.Context, username string) (User, error)
}

// CreateUser inserts a new account. A taken username yields ErrUserExists.
func (s *SQLite) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?) ON CONFLICT(username) DO NOTHING`,
		username, passwordHash)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	if n == 0 {
		return User{}, ErrUserExists
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return User{ID: id, Username: username, PasswordHash: passwordHash}, nil
}

// FindUser looks an account up by username.
func (s *SQLite) FindUser(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}
