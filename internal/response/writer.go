package response

import (
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"

	"github.com/Brownie44l1/nbhttp/internal/headers"
)

var (
	ErrStatusWritten     = errors.New("status line already written")
	ErrStatusNotWritten  = errors.New("must write status line before headers")
	ErrHeadersNotWritten = errors.New("must write headers before body")
	ErrBodyNotWritten    = errors.New("must write body before trailers")
)

// writerState tracks what's been written so far
type writerState int

const (
	stateStart writerState = iota
	stateStatusWritten
	stateHeadersWritten
	stateBodyWritten
)

// Writer writes one HTTP/1.1 response to an io.Writer. The status line and
// headers are buffered and flushed together with WriteHeaders.
type Writer struct {
	w     io.Writer
	state writerState
	head  *bytebufferpool.ByteBuffer

	pending       *headers.Headers
	cookies       []string
	beforeHeaders []func(*Writer)

	statusCode    StatusCode
	contentLength int64 // -1 means unknown
	isChunked     bool
	hadError      bool
}

// NewWriter creates a new response writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:             w,
		state:         stateStart,
		pending:       headers.NewHeaders(),
		contentLength: -1,
	}
}

// Header returns headers that are merged into the next WriteHeaders call.
// Values passed to WriteHeaders win on conflict.
func (w *Writer) Header() *headers.Headers {
	return w.pending
}

// AddCookie queues a Set-Cookie header value
func (w *Writer) AddCookie(value string) {
	w.cookies = append(w.cookies, value)
}

// OnWriteHeaders registers fn to run when WriteHeaders starts, while
// pending headers and cookies can still be added
func (w *Writer) OnWriteHeaders(fn func(*Writer)) {
	w.beforeHeaders = append(w.beforeHeaders, fn)
}

// WriteStatusLine buffers the HTTP status line
func (w *Writer) WriteStatusLine(code StatusCode) error {
	if w.state != stateStart {
		return ErrStatusWritten
	}

	w.head = bytebufferpool.Get()
	w.head.WriteString("HTTP/1.1 ")
	w.head.B = strconv.AppendInt(w.head.B, int64(code), 10)
	w.head.WriteString(" ")
	w.head.WriteString(StatusText(code))
	w.head.WriteString("\r\n")

	w.statusCode = code
	w.state = stateStatusWritten
	return nil
}

// WriteHeaders writes the status line, h merged over the pending headers,
// and any queued cookies. Header lines are sorted by name.
func (w *Writer) WriteHeaders(h *headers.Headers) error {
	if w.state != stateStatusWritten {
		return ErrStatusNotWritten
	}

	for _, fn := range w.beforeHeaders {
		fn(w)
	}

	all := w.pending.Clone().GetAllHeaders()
	if h != nil {
		for k, v := range h.GetAllHeaders() {
			all[k] = v
		}
	}

	if cl, ok := all["Content-Length"]; ok {
		if length, err := strconv.ParseInt(cl, 10, 64); err == nil {
			w.contentLength = length
		}
	}
	if te, ok := all["Transfer-Encoding"]; ok && strings.EqualFold(te, "chunked") {
		w.isChunked = true
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		writeField(w.head, k, all[k])
	}
	for _, c := range w.cookies {
		writeField(w.head, "Set-Cookie", c)
	}
	w.head.WriteString("\r\n")

	_, err := w.w.Write(w.head.B)
	bytebufferpool.Put(w.head)
	w.head = nil
	if err != nil {
		w.hadError = true
		return err
	}

	w.state = stateHeadersWritten
	return nil
}

func writeField(b *bytebufferpool.ByteBuffer, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// WriteBody writes the complete response body
func (w *Writer) WriteBody(data []byte) (int, error) {
	if w.state != stateHeadersWritten {
		return 0, ErrHeadersNotWritten
	}

	w.state = stateBodyWritten
	if len(data) == 0 {
		return 0, nil
	}

	n, err := w.w.Write(data)
	if err != nil {
		w.hadError = true
	}
	return n, err
}

// WriteChunkedBody writes a single chunk in chunked transfer encoding.
// Empty chunks are skipped, only WriteChunkedBodyDone ends the body.
func (w *Writer) WriteChunkedBody(data []byte) (int, error) {
	if w.state != stateHeadersWritten && w.state != stateBodyWritten {
		return 0, ErrHeadersNotWritten
	}
	if len(data) == 0 {
		return 0, nil
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = strconv.AppendInt(buf.B, int64(len(data)), 16)
	buf.WriteString("\r\n")
	buf.Write(data)
	buf.WriteString("\r\n")

	if _, err := w.w.Write(buf.B); err != nil {
		w.hadError = true
		return 0, err
	}

	w.state = stateBodyWritten
	return len(data), nil
}

// WriteChunkedBodyDone writes the final zero-length chunk. Trailers, if
// any, follow with WriteTrailers.
func (w *Writer) WriteChunkedBodyDone() (int, error) {
	if w.state != stateHeadersWritten && w.state != stateBodyWritten {
		return 0, ErrHeadersNotWritten
	}

	n, err := io.WriteString(w.w, "0\r\n")
	if err != nil {
		w.hadError = true
		return n, err
	}

	w.state = stateBodyWritten
	return n, nil
}

// WriteTrailers writes HTTP trailers and the closing CRLF of a chunked body
func (w *Writer) WriteTrailers(h *headers.Headers) error {
	if w.state != stateBodyWritten {
		return ErrBodyNotWritten
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if h != nil {
		all := h.GetAllHeaders()
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeField(buf, k, all[k])
		}
	}
	buf.WriteString("\r\n")

	if _, err := w.w.Write(buf.B); err != nil {
		w.hadError = true
		return err
	}
	return nil
}

// Written reports whether the status line has been started
func (w *Writer) Written() bool {
	return w.state != stateStart
}

// Complete reports whether headers reached the wire
func (w *Writer) Complete() bool {
	return w.state >= stateHeadersWritten
}

func (w *Writer) HadError() bool {
	return w.hadError
}

func (w *Writer) HasContentLength() bool {
	return w.contentLength >= 0
}

func (w *Writer) IsChunked() bool {
	return w.isChunked
}

func (w *Writer) StatusCode() StatusCode {
	return w.statusCode
}
