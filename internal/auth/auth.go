// Package auth gates the instructor console. Teams never authenticate.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
)

// User represents an authenticated user
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Groups   []string `json:"groups"`
}

// InGroup reports whether the user belongs to group. An empty group admits everyone.
func (u *User) InGroup(group string) bool {
	if u == nil {
		return false
	}
	if group == "" {
		return true
	}
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}
	return false
}

var (
	// ErrUnauthenticated is returned for a missing, unknown or expired session.
	ErrUnauthenticated = errors.New("instructor sign-in required")
	// ErrForbidden is returned when the session's user is not an instructor.
	ErrForbidden = errors.New("instructor access required")
)

// AuthProvider is a common interface for authentication providers
type AuthProvider interface {
	LoginHandler(w http.ResponseWriter, r *http.Request)
	CallbackHandler(w http.ResponseWriter, r *http.Request)
	LogoutHandler(w http.ResponseWriter, r *http.Request)
	// Middleware admits only signed-in instructors.
	Middleware(next http.HandlerFunc) http.HandlerFunc
	// Instructor resolves a session token for callers outside HTTP, such as gRPC.
	Instructor(token string) (*User, error)
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// GetUser retrieves the authenticated user from the request context
func GetUser(r *http.Request) *User {
	user, _ := r.Context().Value(ctxKey{}).(*User)
	return user
}

const sessionCookie = "session_id"

// Session represents a signed-in instructor
type Session struct {
	ID        string
	User      *User
	CreatedAt time.Time
	ExpiresAt time.Time
}

type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*Session)}
}

func (s *sessionStore) create(user *User, expires time.Time) *Session {
	sess := &Session{
		ID:        randomToken(),
		User:      user,
		CreatedAt: time.Now(),
		ExpiresAt: expires,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// lookup returns the live session for r, dropping it if it has expired.
func (s *sessionStore) lookup(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	return s.session(cookie.Value)
}

func (s *sessionStore) session(token string) *Session {
	if token == "" {
		return nil
	}

	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if time.Now().After(sess.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		s.mu.Unlock()
		return nil
	}
	return sess
}

// authorize returns the instructor behind token.
func (s *sessionStore) authorize(token, group string) (*User, error) {
	sess := s.session(token)
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	if !sess.User.InGroup(group) {
		logger.Warn("Instructor call denied", "user", sess.User.Username, "required_group", group)
		return nil, ErrForbidden
	}
	return sess.User, nil
}

func (s *sessionStore) remove(r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}
}

func setSessionCookie(w http.ResponseWriter, sess *Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// guard is the shared Middleware body. API callers get JSON errors, browsers
// are sent to the login page.
func (s *sessionStore) guard(group string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.lookup(r)
		if sess == nil {
			if isAPI(r) {
				writeAuthError(w, http.StatusUnauthorized, "instructor sign-in required")
				return
			}
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}

		if !sess.User.InGroup(group) {
			logger.Warn("Instructor route denied", "user", sess.User.Username, "required_group", group)
			writeAuthError(w, http.StatusForbidden, "instructor access required")
			return
		}

		next(w, r.WithContext(WithUser(r.Context(), sess.User)))
	}
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") || strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": "auth"})
}

// randomToken generates a random URL-safe token
func randomToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
