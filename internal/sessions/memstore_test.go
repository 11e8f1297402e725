package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is a test-only in-memory Store so handler tests don't need a
// live Postgres connection.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	messages map[string][]Message
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]Session), messages: make(map[string][]Message)}
}

func (m *memStore) CreateSession(ctx context.Context, title string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	s := Session{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) ListSessions(ctx context.Context) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) GetSession(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *memStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *memStore) AppendMessage(ctx context.Context, sessionID, role, content string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := Message{ID: uuid.NewString(), SessionID: sessionID, Role: role, Content: content, CreatedAt: time.Now()}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return msg, nil
}

func (m *memStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages[sessionID]...), nil
}

func (m *memStore) UpdateTitle(ctx context.Context, sessionID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.Title = title
	s.UpdatedAt = time.Now()
	m.sessions[sessionID] = s
	return nil
}
