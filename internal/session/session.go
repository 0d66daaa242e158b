// Package session carries the identity of the console user explicitly
// instead of reading it from ambient process state.
package session

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"visionctl/internal/protocol"
)

// Session identifies one console run and, optionally, its user.
type Session struct {
	ID   string
	User string
}

// New starts a session with a fresh id.
func New(user string) Session {
	return Session{
		ID:   uuid.NewString(),
		User: strings.TrimSpace(user),
	}
}

// Anonymous reports whether no user is attached.
func (s Session) Anonymous() bool {
	return strings.TrimSpace(s.User) == ""
}

// Apply stamps the session headers on req.
func (s Session) Apply(req *http.Request) {
	if req == nil {
		return
	}
	if id := strings.TrimSpace(s.ID); id != "" {
		req.Header.Set(protocol.SessionHeader, id)
	}
	if !s.Anonymous() {
		req.Header.Set(protocol.UserHeader, strings.TrimSpace(s.User))
	}
}
