// Package sessions implements the session/history HTTP surface described in
// spec.md's API section, grounded on original_source's api/sessions.py and
// services/session_service.py. Persistence moves from the original's
// Prisma/Postgres stack to github.com/jackc/pgx/v5, the teacher pack's
// Postgres driver of choice.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a session id is well-formed but unknown.
var ErrNotFound = errors.New("sessions: not found")

// Session is one conversation thread.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn persisted to a session's transcript.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// maxTitleRunes bounds the auto-generated title taken from a session's
// first user message, matching session_service.py's title truncation.
const maxTitleRunes = 50

// TitleFromContent derives an auto-title from the first 50 runes of a
// message, matching session_service.py's create_session_from_message.
func TitleFromContent(content string) string {
	runes := []rune(content)
	if len(runes) <= maxTitleRunes {
		return string(runes)
	}
	return string(runes[:maxTitleRunes]) + "..."
}

// Store is the persistence surface the HTTP handlers and the Orchestrator
// (for message persistence mid-turn) depend on.
type Store interface {
	CreateSession(ctx context.Context, title string) (Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	DeleteSession(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, sessionID, role, content string) (Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	UpdateTitle(ctx context.Context, sessionID, title string) error
}

// PGStore is the production Store.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, connString string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) CreateSession(ctx context.Context, title string) (Session, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, title, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
		id, title, now)
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PGStore) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PGStore) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

func (s *PGStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) AppendMessage(ctx context.Context, sessionID, role, content string) (Message, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, sessionID, role, content, now)
	if err != nil {
		return Message{}, err
	}
	s.pool.Exec(ctx, `UPDATE sessions SET updated_at = $1 WHERE id = $2`, now, sessionID)
	return Message{ID: id, SessionID: sessionID, Role: role, Content: content, CreatedAt: now}, nil
}

// UpdateTitle overwrites a session's auto-generated title, called once the
// orchestrator has seen the first user message worth titling from.
func (s *PGStore) UpdateTitle(ctx context.Context, sessionID, title string) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET title = $1, updated_at = $2 WHERE id = $3`, title, time.Now(), sessionID)
	return err
}

func (s *PGStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
