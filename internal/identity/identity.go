// Package identity resolves the calling user of an HTTP request. Credential
// issuance lives outside this service; a resolver only reads an identity
// that was established elsewhere.
package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// HeaderName carries the user id for header-based identity.
const HeaderName = "X-User-ID"

const (
	sessionName = "finsim_session"
	sessionKey  = "userID"
)

// Resolver returns the user id for a request.
type Resolver interface {
	UserID(r *http.Request) (string, error)
}

// HeaderResolver trusts the X-User-ID header. It is meant to sit behind a
// gateway that has already authenticated the caller.
type HeaderResolver struct{}

// UserID implements Resolver.
func (HeaderResolver) UserID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderName))
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// SessionResolver reads the user id from a signed cookie session.
type SessionResolver struct {
	store *sessions.CookieStore
}

// NewSessionResolver creates a resolver signing cookies with secret.
func NewSessionResolver(secret []byte) *SessionResolver {
	st := sessions.NewCookieStore(secret)
	st.Options.HttpOnly = true
	st.Options.SameSite = http.SameSiteLaxMode
	return &SessionResolver{store: st}
}

// UserID implements Resolver.
func (s *SessionResolver) UserID(r *http.Request) (string, error) {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		return "", ErrUnauthenticated
	}
	id, ok := session.Values[sessionKey].(string)
	if !ok || id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// Save binds userID to the caller's session cookie.
func (s *SessionResolver) Save(w http.ResponseWriter, r *http.Request, userID string) error {
	session, _ := s.store.Get(r, sessionName)
	session.Values[sessionKey] = userID
	return session.Save(r, w)
}

// Clear drops every value from the caller's session.
func (s *SessionResolver) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, sessionName)
	for key := range session.Values {
		delete(session.Values, key)
	}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// Chain tries each resolver in order and returns the first identity found.
type Chain []Resolver

// UserID implements Resolver.
func (c Chain) UserID(r *http.Request) (string, error) {
	for _, res := range c {
		id, err := res.UserID(r)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrUnauthenticated) {
			return "", err
		}
	}
	return "", ErrUnauthenticated
}
