package server

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Brownie44l1/nbhttp/internal/request"
)

// Registry maps each connection to the decoder of its in-flight request.
// Event loops deliver chunks concurrently for different connections; a
// single connection is only ever driven by one loop at a time. Only that
// loop may feed or release a decoder.
type Registry struct {
	decoders *xsync.MapOf[request.Conn, *inflight]
	opts     request.Options
	clock    func() time.Time
}

type inflight struct {
	decoder *request.Decoder
	started time.Time
	expired atomic.Bool
}

// NewRegistry creates a registry whose decoders share opts
func NewRegistry(opts request.Options) *Registry {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		decoders: xsync.NewMapOf[request.Conn, *inflight](),
		opts:     opts,
		clock:    clock,
	}
}

// Deliver feeds a chunk to the connection's decoder, creating one for a new
// request. It returns the request once complete, or nil while more bytes
// are needed. Either outcome other than "need more" removes the decoder so
// the next chunk starts a fresh request.
func (r *Registry) Deliver(conn request.Conn, chunk []byte) (*request.Request, error) {
	e, _ := r.decoders.LoadOrCompute(conn, func() *inflight {
		d := request.NewDecoder(conn, r.opts)
		return &inflight{decoder: d, started: d.Request().CreatedAt()}
	})
	d := e.decoder

	done, err := d.Feed(chunk)
	if err != nil {
		r.decoders.Delete(conn)
		d.Release()
		return nil, err
	}
	if !done {
		return nil, nil
	}

	r.decoders.Delete(conn)
	return d.Request(), nil
}

// Forget discards the connection's in-flight decoder, if any
func (r *Registry) Forget(conn request.Conn) {
	if e, ok := r.decoders.LoadAndDelete(conn); ok {
		e.decoder.Release()
	}
}

// Len reports the number of requests being decoded
func (r *Registry) Len() int {
	return r.decoders.Size()
}

// Expire passes fn the connection of every request that started more than
// maxAge ago, once per request, and returns how many it found. Decoders are
// left in place: Expire may run off the event loop, so the caller closes the
// connection and the owning loop forgets it in OnClose.
func (r *Registry) Expire(maxAge time.Duration, fn func(conn request.Conn)) int {
	cutoff := r.clock().Add(-maxAge)
	expired := 0
	r.decoders.Range(func(conn request.Conn, e *inflight) bool {
		if e.started.Before(cutoff) && e.expired.CompareAndSwap(false, true) {
			expired++
			if fn != nil {
				fn(conn)
			}
		}
		return true
	})
	return expired
}
