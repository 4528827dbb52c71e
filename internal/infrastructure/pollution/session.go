package pollution

import (
	"sync"
	"time"
)

// expiryMargin treats tokens as expired slightly before the server does.
const expiryMargin = 10 * time.Second

// Session holds the credentials of a single authenticated API session.
// It is safe for concurrent use; a client owns exactly one.
type Session struct {
	mu           sync.Mutex
	token        string
	refreshToken string
	expiresAt    time.Time
}

// NewSession returns an empty, unauthenticated session.
func NewSession() *Session {
	return &Session{}
}

func (s *Session) snapshot() (token, refreshToken string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.refreshToken, s.expiresAt
}

// store replaces the tokens; an empty refreshToken keeps the previous one.
func (s *Session) store(token, refreshToken string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
	s.expiresAt = expiresAt
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.refreshToken = ""
	s.expiresAt = time.Time{}
}

// tokenExpired is true when no token is held or it expires within expiryMargin of now.
func tokenExpired(token string, expiresAt, now time.Time) bool {
	if token == "" || expiresAt.IsZero() {
		return true
	}
	return !now.Add(expiryMargin).Before(expiresAt)
}
