package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iamibadd/survey-agent/internal/domain"
	"github.com/iamibadd/survey-agent/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository and History using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

var (
	_ Repository = (*SQLiteStore)(nil)
	_ History    = (*SQLiteStore)(nil)
)

// NewSQLite opens (or creates) the database at dbPath and ensures the schema exists.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets readers see the last committed interest set while a replacement is in flight.
	// Immediate transactions take the write lock up front so read-then-write never upgrades.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prompt TEXT NOT NULL,
		consent INTEGER NOT NULL,
		paused INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_deleted ON sessions(deleted);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user', 'agent')),
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

	CREATE TABLE IF NOT EXISTS interests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id),
		name TEXT NOT NULL,
		confidence REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
		rationale TEXT NOT NULL DEFAULT '',
		deleted INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_interests_session ON interests(session_id, deleted);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession inserts a session and assigns its ID.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	query := `
	INSERT INTO sessions (prompt, consent, paused, deleted, created_at, updated_at)
	VALUES (?, ?, ?, 0, ?, ?)`

	var id int64
	err := shared.RetryOnConflict(ctx, "create session", s.retry, func() error {
		result, err := s.db.ExecContext(ctx, query,
			session.Prompt, session.Consent, session.Paused,
			session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
		)
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	session.ID = id
	session.Deleted = false
	return nil
}

// GetSession retrieves a session by ID. Returns nil if it does not exist.
func (s *SQLiteStore) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	query := `
		SELECT id, prompt, consent, paused, deleted, created_at, updated_at
		FROM sessions WHERE id = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// ListSessions returns non-deleted sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `
		SELECT id, prompt, consent, paused, deleted, created_at, updated_at
		FROM sessions WHERE deleted = 0 ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	sessions := []*domain.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var createdAt, updatedAt int64
	if err := row.Scan(
		&session.ID, &session.Prompt, &session.Consent,
		&session.Paused, &session.Deleted, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	return &session, nil
}

// SetPaused toggles the paused flag on a non-deleted session.
func (s *SQLiteStore) SetPaused(ctx context.Context, id int64, paused bool) (bool, error) {
	query := `UPDATE sessions SET paused = ?, updated_at = ? WHERE id = ? AND deleted = 0`

	var rows int64
	err := shared.RetryOnConflict(ctx, "set paused", s.retry, func() error {
		result, err := s.db.ExecContext(ctx, query, paused, time.Now().Unix(), id)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("update paused: %w", err)
	}
	if rows == 0 {
		slog.Warn("SetPaused affected 0 rows", "session_id", id, "paused", paused)
	}
	return rows > 0, nil
}

// MarkDeleted soft-deletes a session and cascades the flag to its interests.
func (s *SQLiteStore) MarkDeleted(ctx context.Context, id int64) error {
	return shared.RetryOnConflict(ctx, "mark deleted", s.retry, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			var deleted bool
			err := tx.QueryRowContext(ctx, `SELECT deleted FROM sessions WHERE id = ?`, id).Scan(&deleted)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("load session: %w", err)
			}
			if deleted {
				return ErrAlreadyDeleted
			}

			if _, err := tx.ExecContext(ctx,
				`UPDATE interests SET deleted = 1 WHERE session_id = ?`, id); err != nil {
				return fmt.Errorf("mark interests deleted: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE sessions SET deleted = 1, updated_at = ? WHERE id = ?`, time.Now().Unix(), id); err != nil {
				return fmt.Errorf("mark session deleted: %w", err)
			}
			return nil
		})
	})
}

// ListInterests returns the live interests of a session by confidence, highest first.
func (s *SQLiteStore) ListInterests(ctx context.Context, sessionID int64) ([]domain.Interest, error) {
	query := `
		SELECT name, confidence, rationale FROM interests
		WHERE session_id = ? AND deleted = 0
		ORDER BY confidence DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query interests: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close interest rows", "error", closeErr)
		}
	}()

	interests := []domain.Interest{}
	for rows.Next() {
		var interest domain.Interest
		if err := rows.Scan(&interest.Name, &interest.Confidence, &interest.Rationale); err != nil {
			return nil, fmt.Errorf("scan interest row: %w", err)
		}
		interests = append(interests, interest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interests: %w", err)
	}
	return interests, nil
}

// ReplaceInterests deletes the live interest set and inserts the new one in a
// single transaction. Fails with ErrNotFound if the session is absent or deleted.
func (s *SQLiteStore) ReplaceInterests(ctx context.Context, sessionID int64, interests []domain.Interest) error {
	return shared.RetryOnConflict(ctx, "replace interests", s.retry, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			var deleted bool
			err := tx.QueryRowContext(ctx, `SELECT deleted FROM sessions WHERE id = ?`, sessionID).Scan(&deleted)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("load session: %w", err)
			}

			if _, err := tx.ExecContext(ctx,
				`DELETE FROM interests WHERE session_id = ? AND deleted = 0`, sessionID); err != nil {
				return fmt.Errorf("delete interests: %w", err)
			}

			stmt, err := tx.PrepareContext(ctx,
				`INSERT INTO interests (session_id, name, confidence, rationale) VALUES (?, ?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("prepare interest insert: %w", err)
			}
			defer func() { _ = stmt.Close() }()

			for _, interest := range interests {
				if _, err := stmt.ExecContext(ctx, sessionID,
					interest.Name, interest.Confidence, interest.Rationale); err != nil {
					return fmt.Errorf("insert interest %q: %w", interest.Name, err)
				}
			}
			return nil
		})
	})
}

// AppendMessage persists one turn and returns its row id. Whitespace-only
// text is ignored and yields id 0.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID int64, role domain.Role, text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}

	query := `INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	var id int64
	err := shared.RetryOnConflict(ctx, "append message", s.retry, func() error {
		result, err := s.db.ExecContext(ctx, query, sessionID, string(role), text, time.Now().Unix())
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// ReadAllMessages returns the full history of a session in append order.
func (s *SQLiteStore) ReadAllMessages(ctx context.Context, sessionID int64) ([]domain.Message, error) {
	query := `
		SELECT id, session_id, role, content, created_at FROM messages
		WHERE session_id = ? ORDER BY id ASC`
	return s.queryMessages(ctx, query, sessionID)
}

// ReadRecentMessages returns the most recent limit messages, oldest first.
func (s *SQLiteStore) ReadRecentMessages(ctx context.Context, sessionID int64, limit int) ([]domain.Message, error) {
	return s.ReadMessagesBefore(ctx, sessionID, math.MaxInt64, limit)
}

// ReadMessagesBefore returns the most recent limit messages whose id is below
// beforeID, oldest first.
func (s *SQLiteStore) ReadMessagesBefore(ctx context.Context, sessionID, beforeID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	query := `
		SELECT id, session_id, role, content, created_at FROM messages
		WHERE session_id = ? AND id < ? ORDER BY id DESC LIMIT ?`
	messages, err := s.queryMessages(ctx, query, sessionID, beforeID, limit)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ClearMessages removes the history of a session. A failure leaves orphaned
// rows behind, which callers accept, so it is only logged.
func (s *SQLiteStore) ClearMessages(ctx context.Context, sessionID int64) {
	err := shared.RetryOnConflict(ctx, "clear messages", s.retry, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
		return err
	})
	if err != nil {
		slog.Error("Failed to clear chat history", "session_id", sessionID, "error", err)
	}
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if msg.Role, err = domain.ParseRole(role); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
