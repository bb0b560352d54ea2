package core

import "github.com/google/uuid"

// SessionID identifies one live connection. A user with two tabs open has
// two sessions; it is unrelated to the room's round token.
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}
