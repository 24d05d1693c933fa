package request

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/bytebufferpool"

	"github.com/Brownie44l1/nbhttp/internal/session"
)

// Size limits
const (
	DefaultMaxUploadSize  = 10 << 20 // 10MB body
	DefaultMaxHeaderBytes = 1 << 20  // 1MB request line + headers
)

var (
	ErrUnsupportedMethod     = errors.New("unsupported method")
	ErrContentLengthTooLarge = errors.New("content length too large")
	ErrHeaderTooLarge        = errors.New("headers too large")

	crlf            = []byte("\r\n")
	headerDelimiter = []byte("\r\n\r\n")
)

// decodeState represents where the decoder is in the current request
type decodeState int

const (
	stateHeaders decodeState = iota
	stateBody
	stateDone
	stateFailed
)

func (s decodeState) String() string {
	switch s {
	case stateHeaders:
		return "headers"
	case stateBody:
		return "body"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config is the server configuration a decoder consumes
type Config struct {
	MaxUploadSize  int64
	MaxHeaderBytes int
	TempDir        string
	DisableCookie  bool
	Secure         bool
}

// RandSource picks the random suffix for synthesized upload filenames
type RandSource interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.Intn(n) }

// Options carries a decoder's configuration and injected collaborators.
// Zero values are replaced with defaults.
type Options struct {
	Config   Config
	Sessions session.Store
	Clock    func() time.Time
	Rand     RandSource
	Logger   *logrus.Entry
}

func (o *Options) setDefaults() {
	if o.Config.MaxUploadSize <= 0 {
		o.Config.MaxUploadSize = DefaultMaxUploadSize
	}
	if o.Config.MaxHeaderBytes <= 0 {
		o.Config.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if o.Config.TempDir == "" {
		o.Config.TempDir = os.TempDir()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Rand == nil {
		o.Rand = globalRand{}
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

// Decoder turns the chunks of one request into a Request. It never blocks:
// each Feed consumes what it is given and reports whether the request is
// complete. A decoder is single-use.
type Decoder struct {
	state decodeState
	err   error

	acc  *bytebufferpool.ByteBuffer // request line + headers seen so far
	req  *Request
	opts Options
	log  *logrus.Entry
}

// NewDecoder creates a decoder, and the request it fills, for a connection
func NewDecoder(conn Conn, opts Options) *Decoder {
	opts.setDefaults()

	d := &Decoder{
		state: stateHeaders,
		acc:   bytebufferpool.Get(),
		opts:  opts,
	}
	d.req = newRequest(conn, &d.opts)

	d.log = opts.Logger
	if d.req.remoteAddr != nil {
		d.log = d.log.WithField("remote", d.req.remoteAddr.String())
	}
	return d
}

// Request returns the request being filled. It is only safe to hand
// downstream once Feed has returned true.
func (d *Decoder) Request() *Request {
	return d.req
}

// Done reports whether the request is fully decoded
func (d *Decoder) Done() bool {
	return d.state == stateDone
}

// Feed consumes the next chunk of the connection's inbound stream.
// Once an error is returned the decoder stays failed and returns it again.
func (d *Decoder) Feed(chunk []byte) (bool, error) {
	switch d.state {
	case stateHeaders:
		return d.feedHeaders(chunk)
	case stateBody:
		return d.fill(chunk)
	case stateDone:
		return true, nil
	case stateFailed:
		return false, d.err
	default:
		return false, fmt.Errorf("invalid decoder state: %d", d.state)
	}
}

// Release returns pooled buffers. Safe to call more than once; the decoder
// releases on its own when headers complete or decoding fails.
func (d *Decoder) Release() {
	if d.acc != nil {
		bytebufferpool.Put(d.acc)
		d.acc = nil
	}
}

func (d *Decoder) fail(err error) (bool, error) {
	d.state = stateFailed
	d.err = err
	d.Release()
	d.log.WithError(err).Debug("decode failed")
	return false, err
}

func (d *Decoder) feedHeaders(chunk []byte) (bool, error) {
	d.acc.Write(chunk)
	data := d.acc.B

	idx := bytes.Index(data, headerDelimiter)
	if idx == -1 {
		// fail fast instead of buffering garbage
		if !plausibleMethodPrefix(data) {
			return d.fail(fmt.Errorf("%w: %q", ErrUnsupportedMethod, truncate(string(data), 16)))
		}
		if len(data) > d.opts.Config.MaxHeaderBytes {
			return d.fail(ErrHeaderTooLarge)
		}
		return false, nil
	}

	if idx > d.opts.Config.MaxHeaderBytes {
		return d.fail(ErrHeaderTooLarge)
	}

	if err := d.parseHead(data[:idx]); err != nil {
		return d.fail(err)
	}

	done, err := d.dispatch(data[idx+len(headerDelimiter):])
	d.Release()
	return done, err
}

// parseHead parses the request line and header lines of a complete block
func (d *Decoder) parseHead(block []byte) error {
	line, rest, _ := bytes.Cut(block, crlf)

	method, target, version, err := parseRequestLine(line)
	if err != nil {
		return err
	}

	r := d.req
	r.method = method
	r.proto = version
	r.head = bytes.Clone(block)
	r.hasQuery = strings.Contains(target, "?")

	for len(rest) > 0 {
		line, rest, _ = bytes.Cut(rest, crlf)
		r.headers.ParseLine(line)
	}

	r.uri, r.queryString = normalizeTarget(target, r.headers)

	if d.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		d.log.WithFields(logrus.Fields{
			"method":  string(method),
			"uri":     r.uri,
			"headers": r.headers.Len(),
		}).Debug("request head parsed")
	}
	return nil
}

// dispatch decides by method whether a body follows. rest holds the bytes
// that arrived after the header block.
func (d *Decoder) dispatch(rest []byte) (bool, error) {
	r := d.req
	r.params = make(map[string][]string)
	parseParamsInto(r.params, r.queryString)

	if !r.method.HasBody() {
		d.state = stateDone
		return true, nil
	}

	length, ok := d.contentLength()
	if !ok {
		d.state = stateDone
		return true, nil
	}

	if length > d.opts.Config.MaxUploadSize {
		return d.fail(fmt.Errorf("%w: %d exceeds max upload size %d",
			ErrContentLengthTooLarge, length, d.opts.Config.MaxUploadSize))
	}

	r.body = make([]byte, 0, length)
	return d.fill(rest)
}

// contentLength returns the announced body size. A missing, unparsable or
// negative value means no body.
func (d *Decoder) contentLength() (int64, bool) {
	v, ok := d.req.headers.Lookup("Content-Length")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		d.log.WithField("content_length", v).Debug("ignoring invalid Content-Length")
		return 0, false
	}
	return n, true
}

// fill copies p into the body buffer up to its fixed capacity and
// finalizes the body once it is full.
func (d *Decoder) fill(p []byte) (bool, error) {
	r := d.req
	if room := cap(r.body) - len(r.body); len(p) > room {
		p = p[:room]
	}
	r.body = append(r.body, p...)

	if len(r.body) < cap(r.body) {
		d.state = stateBody
		return false, nil
	}

	if err := d.finalizeBody(); err != nil {
		return d.fail(err)
	}
	d.state = stateDone
	return true, nil
}
