// Package session carries the identity of one client connection.
package session

import "sync"

// Session is the per-connection state the sync core cares about: who the
// client is and which document they are currently viewing. CurrentDocID is
// "" while the client sits in the document-selection screen.
type Session struct {
	connID string
	userID string

	mu           sync.Mutex
	currentDocID string
}

func New(connID, userID string) *Session {
	return &Session{connID: connID, userID: userID}
}

func (s *Session) ConnID() string { return s.connID }
func (s *Session) UserID() string { return s.userID }

func (s *Session) CurrentDocID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentDocID
}

func (s *Session) SetCurrentDocID(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDocID = docID
}
