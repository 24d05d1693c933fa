package request

import (
	"io"
	"net"
	"strings"
	"time"

	"github.com/Brownie44l1/nbhttp/internal/headers"
	"github.com/Brownie44l1/nbhttp/internal/session"
)

// Conn is the owning connection handle as seen by a request
type Conn interface {
	io.Writer
	RemoteAddr() net.Addr
}

// UploadedFile is a multipart file part that was written to the temp directory
type UploadedFile struct {
	Field       string
	Filename    string
	Path        string
	Size        int64
	ContentType string
}

// Request is filled progressively by a Decoder. Once the decoder reports
// completion it is handed to request handling and is owned by a single
// connection for the rest of its life, so nothing here is locked.
type Request struct {
	createdAt  time.Time
	remoteAddr net.Addr
	conn       Conn

	method      Method
	uri         string
	queryString string
	hasQuery    bool
	proto       string
	scheme      string
	headers     *headers.Headers
	params      map[string][]string
	files       map[string]*UploadedFile
	attrs       map[string]any
	body        []byte
	head        []byte // request line and headers, without the blank line

	// derived on first use
	cookiesDerived bool
	cookies        []*Cookie
	session        *session.Session

	disableCookie bool
	sessions      session.Store
	now           func() time.Time
}

func newRequest(conn Conn, opts *Options) *Request {
	r := &Request{
		createdAt:     opts.Clock(),
		conn:          conn,
		scheme:        "http",
		headers:       headers.NewHeaders(),
		files:         make(map[string]*UploadedFile),
		attrs:         make(map[string]any),
		disableCookie: opts.Config.DisableCookie,
		sessions:      opts.Sessions,
		now:           opts.Clock,
	}
	if conn != nil {
		r.remoteAddr = conn.RemoteAddr()
	}
	if opts.Config.Secure {
		r.scheme = "https"
	}
	return r
}

func (r *Request) CreatedAt() time.Time { return r.createdAt }
func (r *Request) RemoteAddr() net.Addr { return r.remoteAddr }
func (r *Request) Conn() Conn           { return r.conn }
func (r *Request) Method() Method       { return r.method }
func (r *Request) URI() string          { return r.uri }
func (r *Request) QueryString() string  { return r.queryString }
func (r *Request) Proto() string        { return r.proto }
func (r *Request) Scheme() string       { return r.scheme }

// Headers returns the header mapping as received
func (r *Request) Headers() *headers.Headers {
	return r.headers
}

// Header returns a header value, matching the name exactly first and then
// ignoring case.
func (r *Request) Header(key string) string {
	v, _ := r.headers.Lookup(key)
	return v
}

// Files returns the uploaded-file mapping keyed by form field name
func (r *Request) Files() map[string]*UploadedFile {
	return r.files
}

// File returns the upload registered under a form field
func (r *Request) File(field string) (*UploadedFile, bool) {
	f, ok := r.files[field]
	return f, ok
}

// Body returns the raw body bytes, or an empty slice when no body was read
func (r *Request) Body() []byte {
	if r.body == nil {
		return []byte{}
	}
	return r.body
}

// Attr returns a per-request attribute set by a later processing stage
func (r *Request) Attr(key string) (any, bool) {
	v, ok := r.attrs[key]
	return v, ok
}

// SetAttr stores a per-request attribute
func (r *Request) SetAttr(key string, value any) {
	r.attrs[key] = value
}

// Raw rebuilds the request as received: head, blank line, body. Used to
// forward a request upstream unchanged.
func (r *Request) Raw() []byte {
	out := make([]byte, 0, len(r.head)+len(headerDelimiter)+len(r.body))
	out = append(out, r.head...)
	out = append(out, headerDelimiter...)
	return append(out, r.body...)
}

// FullURL rebuilds scheme://Host+URI[?query]. Host is not validated. The
// '?' is kept whenever the target carried one, even with an empty query.
func (r *Request) FullURL() string {
	var b strings.Builder
	b.WriteString(r.scheme)
	b.WriteString("://")
	b.WriteString(r.Header("Host"))
	b.WriteString(r.uri)
	if r.hasQuery {
		b.WriteByte('?')
		b.WriteString(r.queryString)
	}
	return b.String()
}
