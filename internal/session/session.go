// Package session holds server-side state associated with a client across
// requests, keyed by the token carried in the session cookie.
package session

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/xid"
)

// CookieName is the cookie that carries the session id.
const CookieName = "JSESSIONID"

// Store is the get/put contract the request layer consumes.
type Store interface {
	Get(id string) (*Session, bool)
	Put(id string, s *Session)
}

// Session is a single client's server-side state. Sessions are shared across
// connections so the attribute map is safe for concurrent use.
type Session struct {
	id         string
	createdAt  time.Time
	lastAccess atomic.Int64
	attrs      *xsync.MapOf[string, any]
}

// New creates a session with the given id.
func New(id string, now time.Time) *Session {
	s := &Session{
		id:        id,
		createdAt: now,
		attrs:     xsync.NewMapOf[string, any](),
	}
	s.lastAccess.Store(now.UnixNano())
	return s
}

// NewID mints a random, unique session token.
func NewID() string {
	return xid.New().String()
}

func (s *Session) ID() string           { return s.id }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastAccess returns the time of the most recent Touch.
func (s *Session) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

// Touch records an access at now.
func (s *Session) Touch(now time.Time) {
	s.lastAccess.Store(now.UnixNano())
}

// Get returns an attribute value
func (s *Session) Get(key string) (any, bool) {
	return s.attrs.Load(key)
}

// Set stores an attribute value
func (s *Session) Set(key string, value any) {
	s.attrs.Store(key, value)
}

// Delete removes an attribute
func (s *Session) Delete(key string) {
	s.attrs.Delete(key)
}

// Len returns the number of attributes
func (s *Session) Len() int {
	return s.attrs.Size()
}
