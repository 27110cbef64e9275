package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type ctxKey struct{}

// Manager ties sessions to a cookie.
type Manager struct {
	store      Store
	ttl        time.Duration
	cookieName string
	secure     bool
	log        *zap.Logger
}

func NewManager(store Store, ttl time.Duration, cookieName string, secure bool, log *zap.Logger) *Manager {
	return &Manager{
		store:      store,
		ttl:        ttl,
		cookieName: cookieName,
		secure:     secure,
		log:        log.Named("session"),
	}
}

// Middleware loads the caller's session, or starts an empty one, and puts it
// in the request context. Nothing is written until Save.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.load(r)
		if err != nil {
			m.log.Error("load session", zap.Error(err))
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, s)))
	})
}

func (m *Manager) load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return New(), nil
	}
	s, err := m.store.Load(r.Context(), c.Value)
	if errors.Is(err, ErrNotFound) {
		return New(), nil
	}
	return s, err
}

// FromContext returns the request's session. Outside the middleware it
// returns a fresh session that is never saved.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok {
		return s
	}
	return New()
}

// WithSession is used by tests and by callers that build requests by hand.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// Save persists s and refreshes the cookie. It must run before any redirect
// that depends on the new state.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    s.ID,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
