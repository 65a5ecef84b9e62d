package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no open session matches.
var ErrNotFound = errors.New("not found")

// Session records one connection's stay in a code room. Only presence is
// stored; code and chat content never are.
type Session struct {
	ID       int64
	RoomID   string
	ConnID   string
	UserID   string
	Username string
	JoinedAt time.Time
	LeftAt   *time.Time
}

// Duration returns how long the session lasted, measured to now when open.
func (s *Session) Duration(now time.Time) time.Duration {
	end := now
	if s.LeftAt != nil {
		end = *s.LeftAt
	}
	return end.Sub(s.JoinedAt)
}

// SessionStore handles participation persistence.
type SessionStore interface {
	// OpenSession records a join. A second open session for the same
	// connection closes the previous one first.
	OpenSession(ctx context.Context, s *Session) error

	// CloseSession stamps left_at on the open session of connID.
	// Returns ErrNotFound when the connection has no open session.
	CloseSession(ctx context.Context, connID string, at time.Time) error

	// ListSessions returns the most recent sessions of a room, newest first.
	ListSessions(ctx context.Context, roomID string, limit int) ([]*Session, error)

	// CloseDangling closes sessions left open by an unclean shutdown.
	// Returns the number of sessions closed.
	CloseDangling(ctx context.Context, at time.Time) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	SessionStore

	// Close closes the underlying database connection.
	Close() error
}
