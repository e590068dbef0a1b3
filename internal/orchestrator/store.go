package orchestrator

import (
	"sync"
	"time"

	"github.com/skywatch/backend/pkg/assessment"
)

// sessionStore is the in-memory session registry. All mutations of a session
// after creation go through update, so readers always see a consistent
// snapshot via Clone.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*assessment.OrchestrationSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*assessment.OrchestrationSession)}
}

// putIfAbsent registers the session, refusing an id already in use.
func (s *sessionStore) putIfAbsent(session *assessment.OrchestrationSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.SessionID]; ok {
		return false
	}
	s.sessions[session.SessionID] = session
	return true
}

// get returns a snapshot of the session, or nil when unknown.
func (s *sessionStore) get(sessionID string) *assessment.OrchestrationSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID].Clone()
}

// update applies fn to the live session under the store lock.
func (s *sessionStore) update(sessionID string, fn func(*assessment.OrchestrationSession)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		fn(session)
	}
}

// activeCount counts sessions that have not reached a terminal status.
func (s *sessionStore) activeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, session := range s.sessions {
		if !session.Status.Terminal() {
			n++
		}
	}
	return n
}

func (s *sessionStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// cleanup removes terminal sessions that ended before the cutoff and returns
// how many were removed. Running sessions are never touched.
func (s *sessionStore) cleanup(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if !session.Status.Terminal() {
			continue
		}
		if session.EndedAt != nil && session.EndedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
