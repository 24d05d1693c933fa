package server

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/nbhttp/internal/request"
	"github.com/Brownie44l1/nbhttp/internal/session"
)

// Handler responds to a decoded request
type Handler interface {
	ServeHTTP(ctx *Context)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx *Context)

func (f HandlerFunc) ServeHTTP(ctx *Context) { f(ctx) }

const defaultTickInterval = time.Second

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	Addr         string
	Multicore    bool
	NumEventLoop int
	ReusePort    bool

	// ReadTimeout bounds how long a request may stay partially received
	ReadTimeout time.Duration
	// SessionMaxIdle expires sessions unused for longer; zero keeps them
	SessionMaxIdle time.Duration
	TickInterval   time.Duration

	Decoder      request.Options
	Sessions     *session.Registry
	Interceptors []Interceptor
	Logger       *logrus.Entry
	Metrics      *Metrics
}

// Server is the gnet event handler. Bytes arriving on a connection are fed
// to that connection's decoder through the Registry; completed requests are
// handled on the event loop and answered on the same connection.
type Server struct {
	gnet.BuiltinEventEngine

	opts     Options
	eng      gnet.Engine
	handler  Handler
	registry *Registry
	sessions *session.Registry
	log      *logrus.Entry
	metrics  *Metrics
	clock    func() time.Time
}

var ErrNoHandler = errors.New("server needs a handler")

// New creates a server that passes completed requests through the
// configured interceptors to handler
func New(handler Handler, opts Options) (*Server, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewRegistry()
	}
	if opts.Decoder.Sessions == nil {
		opts.Decoder.Sessions = opts.Sessions
	}
	if opts.Decoder.Logger == nil {
		opts.Decoder.Logger = opts.Logger
	}
	if opts.Decoder.Clock == nil {
		opts.Decoder.Clock = time.Now
	}

	return &Server{
		opts:     opts,
		handler:  Chain(handler, opts.Interceptors),
		registry: NewRegistry(opts.Decoder),
		sessions: opts.Sessions,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		clock:    opts.Decoder.Clock,
	}, nil
}

// Run serves until the engine stops. It blocks.
func (s *Server) Run() error {
	options := []gnet.Option{
		gnet.WithMulticore(s.opts.Multicore),
		gnet.WithReusePort(s.opts.ReusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithTicker(true),
		gnet.WithLogger(s.log),
	}
	if s.opts.NumEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(s.opts.NumEventLoop))
	}

	s.log.WithField("addr", s.opts.Addr).Info("starting server")
	return gnet.Run(s, "tcp://"+s.opts.Addr, options...)
}

// Stop shuts the engine down, closing every connection
func (s *Server) Stop(ctx context.Context) error {
	return s.eng.Stop(ctx)
}

// Registry exposes the in-flight decoder registry
func (s *Server) Registry() *Registry {
	return s.registry
}

// Stats returns a metrics snapshot including in-flight decoders
func (s *Server) Stats() MetricsSnapshot {
	snap := s.metrics.Snapshot()
	snap.InFlightDecoders = s.registry.Len()
	return snap
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.eng = eng
	s.log.WithFields(logrus.Fields{
		"addr":      s.opts.Addr,
		"multicore": s.opts.Multicore,
	}).Info("server is listening")
	return gnet.None
}

func (s *Server) OnShutdown(gnet.Engine) {
	s.log.Info("server stopped")
}

func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	s.metrics.ActiveConnections.Add(1)
	s.log.WithField("remote", c.RemoteAddr().String()).Debug("connection opened")
	return nil, gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	s.metrics.ActiveConnections.Add(-1)
	s.registry.Forget(c)

	entry := s.log.WithField("remote", c.RemoteAddr().String())
	if err != nil {
		entry.WithError(err).Debug("connection closed with error")
	} else {
		entry.Debug("connection closed")
	}
	return gnet.None
}

// OnTraffic feeds whatever arrived to the connection's decoder. A chunk is
// only valid during this call; the decoder copies what it keeps.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	buf, err := c.Next(-1)
	if err != nil {
		s.log.WithError(err).Warn("read failed")
		return gnet.Close
	}

	req, err := s.registry.Deliver(c, buf)
	if err != nil {
		s.rejectRequest(c, err)
		return gnet.Close
	}
	if req == nil {
		return gnet.None
	}

	if s.serveRequest(c, req) {
		return gnet.Close
	}
	return gnet.None
}

// OnTick closes connections whose request stalled and prunes expired
// sessions and interceptor state
func (s *Server) OnTick() (time.Duration, gnet.Action) {
	s.sweep()
	return s.opts.TickInterval, gnet.None
}

func (s *Server) sweep() {
	now := s.clock()

	// OnTick runs on gnet's ticker goroutine. Close is queued onto the
	// connection's own loop, which then forgets the decoder in OnClose.
	if s.opts.ReadTimeout > 0 {
		n := s.registry.Expire(s.opts.ReadTimeout, func(conn request.Conn) {
			if c, ok := conn.(interface{ Close() error }); ok {
				c.Close()
			}
		})
		if n > 0 {
			s.metrics.DecodeTimeouts.Add(int64(n))
			s.log.WithField("count", n).Info("closed stalled connections")
		}
	}

	if s.opts.SessionMaxIdle > 0 {
		if n := s.sessions.Expire(now, s.opts.SessionMaxIdle); n > 0 {
			s.log.WithField("count", n).Debug("expired sessions")
		}
	}

	for _, ic := range s.opts.Interceptors {
		if sw, ok := ic.(Sweeper); ok {
			sw.Sweep(now)
		}
	}
}
