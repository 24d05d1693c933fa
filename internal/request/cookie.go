package request

import (
	"strconv"
	"strings"
	"time"

	"github.com/Brownie44l1/nbhttp/internal/session"
)

// cookieTimeFormat is the IMF-fixdate layout used in Expires
const cookieTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Cookie is a single name/value pair received from the client or minted by
// the server. Cookies with New set must be sent back with Set-Cookie.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  time.Time
	MaxAge   int
	HttpOnly bool
	Secure   bool
	New      bool
}

// String renders the cookie as a Set-Cookie header value
func (c *Cookie) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if !c.Expires.IsZero() {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires.UTC().Format(cookieTimeFormat))
	}
	if c.MaxAge > 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	return b.String()
}

// parseCookies reads a Cookie header: name=value pairs separated by ';'.
// Pairs without '=' or without a name are skipped.
func parseCookies(raw string) []*Cookie {
	var cookies []*Cookie
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		cookies = append(cookies, &Cookie{Name: name, Value: value})
	}
	return cookies
}

// deriveCookies runs once per request: it parses the Cookie header and
// resolves the session cookie against the session store.
func (r *Request) deriveCookies() {
	if r.cookiesDerived {
		return
	}
	r.cookiesDerived = true

	if r.disableCookie {
		return
	}

	r.cookies = parseCookies(r.Header("Cookie"))

	c, ok := r.Cookie(session.CookieName)
	if !ok || r.sessions == nil {
		return
	}
	if s, found := r.sessions.Get(c.Value); found {
		s.Touch(r.now())
		r.session = s
	}
}

// Cookies returns the request cookies, including any minted by
// EnsureSession. Always nil when cookies are disabled.
func (r *Request) Cookies() []*Cookie {
	r.deriveCookies()
	return r.cookies
}

// PendingCookies returns cookies minted for this request that the response
// must set. It does not trigger cookie derivation.
func (r *Request) PendingCookies() []*Cookie {
	var out []*Cookie
	for _, c := range r.cookies {
		if c.New {
			out = append(out, c)
		}
	}
	return out
}

// Cookie returns the first cookie with the given name
func (r *Request) Cookie(name string) (*Cookie, bool) {
	r.deriveCookies()
	for _, c := range r.cookies {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// PeekSession returns the session referenced by the session cookie, or nil.
// It never creates one.
func (r *Request) PeekSession() *session.Session {
	r.deriveCookies()
	return r.session
}

// EnsureSession returns the request's session, creating and registering a
// new one (and its cookie) when the client did not present a valid id.
// Returns nil when cookies are disabled.
func (r *Request) EnsureSession() *session.Session {
	r.deriveCookies()
	if r.disableCookie {
		return nil
	}
	if r.session != nil {
		return r.session
	}

	id := session.NewID()
	r.cookies = append(r.cookies, &Cookie{
		Name:     session.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.scheme == "https",
		New:      true,
	})

	r.session = session.New(id, r.now())
	if r.sessions != nil {
		r.sessions.Put(id, r.session)
	}
	return r.session
}
