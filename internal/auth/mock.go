package auth

import (
	"net/http"
	"time"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
)

// MockAuth signs anyone in as a development instructor
type MockAuth struct {
	sessions *sessionStore
	group    string
}

// NewMockAuth creates a mock provider whose user belongs to group
func NewMockAuth(group string) *MockAuth {
	return &MockAuth{sessions: newSessionStore(), group: group}
}

// LoginHandler auto-creates a session and returns to the console
func (m *MockAuth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	groups := []string{"users"}
	if m.group != "" {
		groups = append(groups, m.group)
	}
	sess := m.sessions.create(&User{
		ID:       "dev-instructor",
		Email:    "instructor@pricing.local",
		Name:     "Dev Instructor",
		Username: "instructor",
		Groups:   groups,
	}, time.Now().Add(24*time.Hour))

	setSessionCookie(w, sess, false)
	logger.Info("Mock instructor signed in", "session_expires", sess.ExpiresAt)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// CallbackHandler is not needed for mock auth
func (m *MockAuth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LogoutHandler for mock auth
func (m *MockAuth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	m.sessions.remove(r)
	clearCookie(w, sessionCookie)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Middleware for mock auth
func (m *MockAuth) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return m.sessions.guard(m.group, next)
}

// Instructor for mock auth
func (m *MockAuth) Instructor(token string) (*User, error) {
	return m.sessions.authorize(token, m.group)
}

// NoAuth leaves instructor routes open
type NoAuth struct{}

func (NoAuth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (NoAuth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (NoAuth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (NoAuth) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return next
}

// Instructor admits every caller
func (NoAuth) Instructor(token string) (*User, error) {
	return nil, nil
}
