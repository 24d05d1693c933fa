package session

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry is the process-wide in-memory session store. Any connection's
// goroutine may read or write it; identical keys are last-write-wins.
type Registry struct {
	sessions *xsync.MapOf[string, *Session]
}

var _ Store = (*Registry)(nil)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: xsync.NewMapOf[string, *Session](),
	}
}

func (r *Registry) Get(id string) (*Session, bool) {
	return r.sessions.Load(id)
}

func (r *Registry) Put(id string, s *Session) {
	r.sessions.Store(id, s)
}

// Delete removes a session
func (r *Registry) Delete(id string) {
	r.sessions.Delete(id)
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Expire drops every session whose last access is older than maxIdle.
// It returns the number of sessions removed.
func (r *Registry) Expire(now time.Time, maxIdle time.Duration) int {
	removed := 0
	r.sessions.Range(func(id string, s *Session) bool {
		if now.Sub(s.LastAccess()) > maxIdle {
			r.sessions.Delete(id)
			removed++
		}
		return true
	})
	return removed
}
