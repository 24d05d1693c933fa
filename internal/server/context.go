package server

import (
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/nbhttp/internal/request"
	"github.com/Brownie44l1/nbhttp/internal/response"
	"github.com/Brownie44l1/nbhttp/internal/session"
)

// Context carries one decoded request and its response through the
// interceptor chain to the handler
type Context struct {
	Request   *request.Request
	Response  *response.Writer
	Params    map[string]string // Path parameters (e.g., /users/:id)
	RequestID string
	Log       *logrus.Entry

	closeAfter bool
}

// NewContext creates a new context
func NewContext(req *request.Request, resp *response.Writer, log *logrus.Entry) *Context {
	return &Context{
		Request:  req,
		Response: resp,
		Params:   make(map[string]string),
		Log:      log,
	}
}

func (c *Context) Method() string {
	return c.Request.Method().String()
}

// Path returns the decoded request path without the query string
func (c *Context) Path() string {
	return c.Request.URI()
}

func (c *Context) Header(key string) string {
	return c.Request.Header(key)
}

func (c *Context) Param(name string) string {
	return c.Params[name]
}

func (c *Context) SetParams(params map[string]string) {
	c.Params = params
}

// Query returns the first value of a query or form parameter
func (c *Context) Query(key string) string {
	v, _ := c.Request.ParamString(key)
	return v
}

func (c *Context) Body() []byte {
	return c.Request.Body()
}

func (c *Context) BodyString() string {
	return string(c.Request.Body())
}

// Session returns the request's session, creating one if needed. The
// session cookie is sent with the response headers.
func (c *Context) Session() *session.Session {
	return c.Request.EnsureSession()
}

// ClientIP prefers proxy headers over the socket address
func (c *Context) ClientIP() string {
	if xff := c.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := c.Header("X-Real-IP"); ip != "" {
		return ip
	}
	addr := c.Request.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// CloseAfterResponse closes the connection once this exchange finishes
func (c *Context) CloseAfterResponse() {
	c.closeAfter = true
}

// Response helpers

func (c *Context) Text(code response.StatusCode, text string) error {
	return c.Response.Text(code, text)
}

func (c *Context) HTML(code response.StatusCode, html string) error {
	return c.Response.HTML(code, html)
}

// JSON marshals v as the response body
func (c *Context) JSON(code response.StatusCode, v any) error {
	return c.Response.JSON(code, v)
}

func (c *Context) Error(code response.StatusCode, message string) error {
	return c.Response.Error(code, message)
}

func (c *Context) Redirect(code response.StatusCode, location string) error {
	return c.Response.Redirect(code, location)
}

func (c *Context) NoContent() error {
	return c.Response.NoContent()
}

// Status sends just a status code with an empty body
func (c *Context) Status(code response.StatusCode) error {
	return c.Response.Bytes(code, "", nil)
}

// String is a helper for formatting responses
func (c *Context) String(code response.StatusCode, format string, values ...any) error {
	return c.Text(code, fmt.Sprintf(format, values...))
}
