package server

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/nbhttp/internal/response"
)

// Interceptor wraps request handling. Calling next continues the chain;
// returning without calling it short-circuits the request.
type Interceptor interface {
	Name() string
	Intercept(ctx *Context, next Handler)
}

// Sweeper is implemented by interceptors holding state that must be
// pruned periodically. The server calls Sweep from its ticker.
type Sweeper interface {
	Sweep(now time.Time)
}

// InterceptorDeps are the collaborators interceptor constructors may use
type InterceptorDeps struct {
	Logger    *logrus.Entry
	Metrics   *Metrics
	Clock     func() time.Time
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// InterceptorConstructor builds an interceptor from its dependencies
type InterceptorConstructor func(deps InterceptorDeps) (Interceptor, error)

var ErrUnknownInterceptor = errors.New("unknown interceptor")

var interceptorConstructors = map[string]InterceptorConstructor{
	"recovery":   func(d InterceptorDeps) (Interceptor, error) { return &Recovery{log: d.Logger}, nil },
	"logging":    func(d InterceptorDeps) (Interceptor, error) { return &Logging{log: d.Logger}, nil },
	"request-id": func(InterceptorDeps) (Interceptor, error) { return &RequestID{}, nil },
	"metrics":    func(d InterceptorDeps) (Interceptor, error) { return &MetricsInterceptor{metrics: d.Metrics}, nil },
	"rate-limit": func(d InterceptorDeps) (Interceptor, error) { return NewRateLimiter(d.RateLimit, d.Clock) },
	"cors":       func(d InterceptorDeps) (Interceptor, error) { return &CORS{config: d.CORS}, nil },
}

// InterceptorNames lists the names BuildInterceptors accepts
func InterceptorNames() []string {
	names := make([]string, 0, len(interceptorConstructors))
	for name := range interceptorConstructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildInterceptors resolves configured names, in order, into interceptors
func BuildInterceptors(names []string, deps InterceptorDeps) ([]Interceptor, error) {
	if deps.Logger == nil {
		deps.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	out := make([]Interceptor, 0, len(names))
	for _, name := range names {
		ctor, ok := interceptorConstructors[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownInterceptor, name)
		}
		ic, err := ctor(deps)
		if err != nil {
			return nil, fmt.Errorf("interceptor %s: %w", name, err)
		}
		out = append(out, ic)
	}
	return out, nil
}

// Chain wraps h so that interceptors run in list order, the first
// outermost
func Chain(h Handler, interceptors []Interceptor) Handler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic, next := interceptors[i], h
		h = HandlerFunc(func(ctx *Context) {
			ic.Intercept(ctx, next)
		})
	}
	return h
}

// Recovery turns a handler panic into a 500
type Recovery struct {
	log *logrus.Entry
}

func (*Recovery) Name() string { return "recovery" }

func (m *Recovery) Intercept(ctx *Context, next Handler) {
	defer func() {
		if err := recover(); err != nil {
			m.log.WithFields(logrus.Fields{
				"error":      fmt.Sprint(err),
				"stack":      string(debug.Stack()),
				"request_id": ctx.RequestID,
				"path":       ctx.Path(),
			}).Error("panic recovered")

			if ctx.Response.Written() {
				ctx.CloseAfterResponse()
				return
			}
			ctx.Error(response.StatusInternalServerError, "")
		}
	}()

	next.ServeHTTP(ctx)
}

// Logging logs one line per request after it is handled
type Logging struct {
	log *logrus.Entry
}

func (*Logging) Name() string { return "logging" }

func (m *Logging) Intercept(ctx *Context, next Handler) {
	start := time.Now()
	next.ServeHTTP(ctx)

	// never log cookies or other sensitive headers
	m.log.WithFields(logrus.Fields{
		"method":      ctx.Method(),
		"path":        ctx.Path(),
		"status":      int(ctx.Response.StatusCode()),
		"duration_ms": time.Since(start).Milliseconds(),
		"request_id":  ctx.RequestID,
		"client_ip":   ctx.ClientIP(),
	}).Info("request handled")
}

// RequestID assigns each request an id, reusing a client supplied
// X-Request-ID when present
type RequestID struct{}

func (*RequestID) Name() string { return "request-id" }

func (*RequestID) Intercept(ctx *Context, next Handler) {
	id := ctx.Header("X-Request-ID")
	if id == "" {
		id = xid.New().String()
	}
	ctx.RequestID = id
	ctx.Log = ctx.Log.WithField("request_id", id)
	ctx.Response.Header().Set("X-Request-ID", id)

	next.ServeHTTP(ctx)
}

// MetricsInterceptor records request counts, latency and uploads
type MetricsInterceptor struct {
	metrics *Metrics
}

func (*MetricsInterceptor) Name() string { return "metrics" }

func (m *MetricsInterceptor) Intercept(ctx *Context, next Handler) {
	start := time.Now()
	next.ServeHTTP(ctx)

	m.metrics.RecordRequest(int(ctx.Response.StatusCode()), time.Since(start))
	m.metrics.UploadsTotal.Add(int64(len(ctx.Request.Files())))
}

// CORSConfig configures the cors interceptor
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig returns a permissive CORS config (for development)
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:         12 * time.Hour,
	}
}

// CORS sets access control headers and answers preflight requests
type CORS struct {
	config CORSConfig
}

func (*CORS) Name() string { return "cors" }

func (m *CORS) Intercept(ctx *Context, next Handler) {
	origin := ctx.Header("Origin")

	if origin != "" && isAllowedOrigin(origin, m.config.AllowedOrigins) {
		h := ctx.Response.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Vary", "Origin")
		if len(m.config.AllowedMethods) > 0 {
			h.Set("Access-Control-Allow-Methods", strings.Join(m.config.AllowedMethods, ", "))
		}
		if len(m.config.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(m.config.AllowedHeaders, ", "))
		}
		if m.config.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if m.config.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(int(m.config.MaxAge.Seconds())))
		}
	}

	if ctx.Method() == "OPTIONS" && ctx.Header("Access-Control-Request-Method") != "" {
		ctx.NoContent()
		return
	}

	next.ServeHTTP(ctx)
}

func isAllowedOrigin(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
