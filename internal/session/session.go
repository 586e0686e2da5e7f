// Package session keeps the authenticated user id in a signed cookie with a
// rolling expiry: every authenticated request re-issues the cookie.
package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	keyUserID   = "user_id"
	keyLastSeen = "last_seen"
)

// Options configures the cookie store
type Options struct {
	SecretKey []byte
	Name      string
	MaxAge    time.Duration
	Secure    bool
	Now       func() time.Time
}

// Manager issues and validates session cookies
type Manager struct {
	store  *sessions.CookieStore
	name   string
	maxAge time.Duration
	now    func() time.Time
}

// NewManager creates a session manager
func NewManager(opts Options) *Manager {
	if opts.Name == "" {
		opts.Name = "session"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	store := sessions.NewCookieStore(opts.SecretKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(int(opts.MaxAge / time.Second))

	return &Manager{
		store:  store,
		name:   opts.Name,
		maxAge: opts.MaxAge,
		now:    opts.Now,
	}
}

// Establish binds a new session to userID
func (m *Manager) Establish(w http.ResponseWriter, r *http.Request, userID int64) error {
	// A stale or tampered cookie yields a fresh session alongside the error
	sess, _ := m.store.Get(r, m.name)
	sess.Values[keyUserID] = userID
	sess.Values[keyLastSeen] = m.now().Unix()

	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Lookup returns the session's user id without refreshing it. Sessions idle
// for longer than MaxAge are treated as absent.
func (m *Manager) Lookup(r *http.Request) (int64, bool) {
	sess, err := m.store.Get(r, m.name)
	if err != nil || sess.IsNew {
		return 0, false
	}

	userID, ok := sess.Values[keyUserID].(int64)
	if !ok || userID == 0 {
		return 0, false
	}

	lastSeen, ok := sess.Values[keyLastSeen].(int64)
	if !ok {
		return 0, false
	}
	if m.now().Sub(time.Unix(lastSeen, 0)) >= m.maxAge {
		return 0, false
	}

	return userID, true
}

// Touch re-issues the cookie with a new last-seen time
func (m *Manager) Touch(w http.ResponseWriter, r *http.Request) error {
	sess, err := m.store.Get(r, m.name)
	if err != nil || sess.IsNew {
		return nil
	}

	sess.Values[keyLastSeen] = m.now().Unix()
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	return nil
}

// Destroy expires the session cookie
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1

	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// MaxAge returns the rolling session lifetime
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}
