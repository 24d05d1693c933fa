package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/nbhttp/internal/session"
)

func decodeWith(t *testing.T, opts Options, data string) *Request {
	t.Helper()
	d := NewDecoder(nil, opts)
	done, err := d.Feed([]byte(data))
	require.NoError(t, err)
	require.True(t, done)
	return d.Request()
}

func TestCookiesParsed(t *testing.T) {
	req := decodeAll(t, "GET / HTTP/1.1\r\nCookie: a=1; b=\"two\"; bad; =x;  c = 3 \r\n\r\n")

	cookies := req.Cookies()
	require.Len(t, cookies, 3)
	assert.Equal(t, "a", cookies[0].Name)
	assert.Equal(t, "1", cookies[0].Value)
	assert.Equal(t, "two", cookies[1].Value)
	assert.Equal(t, "c", cookies[2].Name)
	assert.Equal(t, "3", cookies[2].Value)

	c, ok := req.Cookie("b")
	require.True(t, ok)
	assert.Equal(t, "two", c.Value)

	_, ok = req.Cookie("missing")
	assert.False(t, ok)
}

func TestCookiesDerivedOnce(t *testing.T) {
	req := decodeAll(t, "GET / HTTP/1.1\r\nCookie: a=1\r\n\r\n")

	first := req.Cookies()
	req.Headers().Set("Cookie", "a=2; b=3")
	second := req.Cookies()

	require.Len(t, second, 1)
	assert.Same(t, first[0], second[0])
	assert.Equal(t, "1", second[0].Value)
}

func TestNoCookieHeader(t *testing.T) {
	req := decodeAll(t, "GET / HTTP/1.1\r\n\r\n")
	assert.Empty(t, req.Cookies())
	assert.Nil(t, req.PeekSession())
}

func TestEnsureSessionCreatesSession(t *testing.T) {
	opts := testOptions(Config{})
	store := opts.Sessions.(*session.Registry)
	req := decodeWith(t, opts, "GET / HTTP/1.1\r\n\r\n")

	assert.Nil(t, req.PeekSession(), "peek never creates")
	assert.Equal(t, 0, store.Len())

	s := req.EnsureSession()
	require.NotNil(t, s)
	assert.Equal(t, fixedNow, s.CreatedAt())

	registered, ok := store.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, registered)

	c, ok := req.Cookie(session.CookieName)
	require.True(t, ok)
	assert.Equal(t, s.ID(), c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.New)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure)

	pending := req.PendingCookies()
	require.Len(t, pending, 1)
	assert.Same(t, c, pending[0])

	// idempotent
	assert.Same(t, s, req.EnsureSession())
	assert.Same(t, s, req.PeekSession())
	assert.Len(t, req.Cookies(), 1)
	assert.Equal(t, 1, store.Len())
}

func TestExistingSessionIsResolved(t *testing.T) {
	opts := testOptions(Config{})
	existing := session.New("abc123", fixedNow.Add(-time.Hour))
	opts.Sessions.Put("abc123", existing)

	req := decodeWith(t, opts, "GET / HTTP/1.1\r\nCookie: theme=dark; JSESSIONID=abc123\r\n\r\n")

	assert.Same(t, existing, req.PeekSession())
	assert.Same(t, existing, req.EnsureSession())
	assert.True(t, fixedNow.Equal(existing.LastAccess()))

	for _, c := range req.Cookies() {
		assert.False(t, c.New, "no cookie is minted for a known session")
	}
	assert.Len(t, req.Cookies(), 2)
	assert.Empty(t, req.PendingCookies())
}

func TestUnknownSessionIDGetsNewSession(t *testing.T) {
	opts := testOptions(Config{})
	req := decodeWith(t, opts, "GET / HTTP/1.1\r\nCookie: JSESSIONID=stale\r\n\r\n")

	assert.Nil(t, req.PeekSession())

	s := req.EnsureSession()
	require.NotNil(t, s)
	assert.NotEqual(t, "stale", s.ID())
	assert.Len(t, req.Cookies(), 2)

	_, ok := opts.Sessions.Get(s.ID())
	assert.True(t, ok)
}

func TestCookiesDisabled(t *testing.T) {
	opts := testOptions(Config{DisableCookie: true})
	req := decodeWith(t, opts, "GET / HTTP/1.1\r\nCookie: a=1\r\n\r\n")

	assert.Nil(t, req.Cookies())
	assert.Nil(t, req.PeekSession())
	assert.Nil(t, req.EnsureSession())
	assert.Equal(t, 0, opts.Sessions.(*session.Registry).Len())
}

func TestSessionCookieSecureOverHTTPS(t *testing.T) {
	req := decodeWith(t, testOptions(Config{Secure: true}), "GET / HTTP/1.1\r\n\r\n")
	req.EnsureSession()

	c, ok := req.Cookie(session.CookieName)
	require.True(t, ok)
	assert.True(t, c.Secure)
}

func TestEnsureSessionWithoutStore(t *testing.T) {
	opts := testOptions(Config{})
	opts.Sessions = nil
	req := decodeWith(t, opts, "GET / HTTP/1.1\r\n\r\n")

	s := req.EnsureSession()
	require.NotNil(t, s)
	assert.Same(t, s, req.EnsureSession())
}

func TestCookieString(t *testing.T) {
	c := &Cookie{Name: "JSESSIONID", Value: "v", Path: "/", HttpOnly: true, Secure: true}
	assert.Equal(t, "JSESSIONID=v; Path=/; HttpOnly; Secure", c.String())

	c = &Cookie{
		Name:    "k",
		Value:   "v",
		Domain:  "example.com",
		Expires: time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		MaxAge:  60,
	}
	assert.Equal(t, "k=v; Domain=example.com; Expires=Wed, 02 Jan 2030 03:04:05 GMT; Max-Age=60", c.String())
}
