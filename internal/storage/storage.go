package storage

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/mangaroo/internal/models"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the process-wide registry of open reading sessions.
type SessionStore struct {
	sessions map[string]*models.ReadingSession
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.ReadingSession),
	}
}

// NewID returns a short random session identifier.
func NewID() string {
	return uuid.NewString()[:8]
}

// Add registers session, assigning an id when it has none.
func (s *SessionStore) Add(session *models.ReadingSession) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = NewID()
		for s.sessions[session.ID] != nil {
			session.ID = NewID()
		}
	}
	s.sessions[session.ID] = session
	return session.ID
}

func (s *SessionStore) Get(sessionID string) (*models.ReadingSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

// GetAll returns the open sessions, oldest first.
func (s *SessionStore) GetAll() []*models.ReadingSession {
	s.mu.RLock()
	result := make([]*models.ReadingSession, 0, len(s.sessions))
	for _, v := range s.sessions {
		result = append(result, v)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close removes the session and releases its text source.
func (s *SessionStore) Close(sessionID string) (*models.ReadingSession, error) {
	s.mu.Lock()
	session, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !exists {
		return nil, ErrSessionNotFound
	}
	if session.Source != nil {
		if err := session.Source.Close(); err != nil {
			return session, err
		}
	}
	return session, nil
}

// CloseAll closes every session. Used on shutdown.
func (s *SessionStore) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*models.ReadingSession)
	s.mu.Unlock()

	for id, session := range sessions {
		if session.Source == nil {
			continue
		}
		if err := session.Source.Close(); err != nil {
			slog.Warn("Failed to close session source", "session_id", id, "err", err)
		}
	}
}
