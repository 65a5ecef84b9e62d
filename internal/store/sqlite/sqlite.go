package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/coderoom-server/internal/store"
)

// Schema creates the participation tables. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS room_sessions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id   TEXT NOT NULL,
	conn_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	username  TEXT NOT NULL,
	joined_at DATETIME NOT NULL,
	left_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_room_sessions_room ON room_sessions(room_id, joined_at DESC);
CREATE INDEX IF NOT EXISTS idx_room_sessions_open ON room_sessions(conn_id) WHERE left_at IS NULL;
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens dbPath and applies Schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies Schema to db.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// OpenSession records a join.
func (s *SQLiteStore) OpenSession(ctx context.Context, sess *store.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE room_sessions SET left_at = ? WHERE conn_id = ? AND left_at IS NULL`,
		sess.JoinedAt.UTC(), sess.ConnID,
	); err != nil {
		return fmt.Errorf("close previous session: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO room_sessions (room_id, conn_id, user_id, username, joined_at)
		VALUES (?, ?, ?, ?, ?)
	`, sess.RoomID, sess.ConnID, sess.UserID, sess.Username, sess.JoinedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	sess.ID = id
	return nil
}

// CloseSession stamps left_at on the open session of connID.
func (s *SQLiteStore) CloseSession(ctx context.Context, connID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE room_sessions SET left_at = ? WHERE conn_id = ? AND left_at IS NULL`,
		at.UTC(), connID,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListSessions returns the most recent sessions of a room, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, roomID string, limit int) ([]*store.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, conn_id, user_id, username, joined_at, left_at
		FROM room_sessions
		WHERE room_id = ?
		ORDER BY joined_at DESC, id DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*store.Session
	for rows.Next() {
		var (
			sess   store.Session
			leftAt sql.NullTime
		)
		if err := rows.Scan(&sess.ID, &sess.RoomID, &sess.ConnID, &sess.UserID, &sess.Username, &sess.JoinedAt, &leftAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if leftAt.Valid {
			t := leftAt.Time
			sess.LeftAt = &t
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// CloseDangling closes sessions left open by an unclean shutdown.
func (s *SQLiteStore) CloseDangling(ctx context.Context, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE room_sessions SET left_at = ? WHERE left_at IS NULL`, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("close dangling sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
