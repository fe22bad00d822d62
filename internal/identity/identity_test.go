package identity_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsim/ledger-engine/internal/identity"
)

func TestHeaderResolver(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := identity.HeaderResolver{}.UserID(r)
	require.ErrorIs(t, err, identity.ErrUnauthenticated)

	r.Header.Set(identity.HeaderName, "  u-42 ")
	id, err := identity.HeaderResolver{}.UserID(r)
	require.NoError(t, err)
	assert.Equal(t, "u-42", id)
}

// sessionCookies saves userID through the resolver and returns the
// cookies it set.
func sessionCookies(t *testing.T, res *identity.SessionResolver, userID string) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	require.NoError(t, res.Save(w, httptest.NewRequest(http.MethodPost, "/", nil), userID))
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func TestSessionResolver_RoundTrip(t *testing.T) {
	res := identity.NewSessionResolver([]byte("0123456789abcdef0123456789abcdef"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := res.UserID(r)
	require.ErrorIs(t, err, identity.ErrUnauthenticated)

	for _, c := range sessionCookies(t, res, "u-7") {
		r.AddCookie(c)
	}
	id, err := res.UserID(r)
	require.NoError(t, err)
	assert.Equal(t, "u-7", id)
}

func TestSessionResolver_RejectsForeignSignature(t *testing.T) {
	issuer := identity.NewSessionResolver([]byte("issuer-secret-issuer-secret-0000"))
	verifier := identity.NewSessionResolver([]byte("another-secret-another-secret-00"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range sessionCookies(t, issuer, "u-7") {
		r.AddCookie(c)
	}
	_, err := verifier.UserID(r)
	require.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestChain(t *testing.T) {
	res := identity.NewSessionResolver([]byte("0123456789abcdef0123456789abcdef"))
	chain := identity.Chain{res, identity.HeaderResolver{}}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(identity.HeaderName, "from-header")
	id, err := chain.UserID(r)
	require.NoError(t, err)
	assert.Equal(t, "from-header", id)

	for _, c := range sessionCookies(t, res, "from-session") {
		r.AddCookie(c)
	}
	id, err = chain.UserID(r)
	require.NoError(t, err)
	assert.Equal(t, "from-session", id)

	_, err = identity.Chain{}.UserID(httptest.NewRequest(http.MethodGet, "/", nil))
	require.ErrorIs(t, err, identity.ErrUnauthenticated)
}
