package response

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Brownie44l1/nbhttp/internal/headers"
)

const (
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeJSON = "application/json; charset=utf-8"
)

// Bytes writes a complete response with a known length
func (w *Writer) Bytes(code StatusCode, contentType string, data []byte) error {
	if err := w.WriteStatusLine(code); err != nil {
		return err
	}

	h := headers.NewHeaders()
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	h.Set("Content-Length", strconv.Itoa(len(data)))

	if err := w.WriteHeaders(h); err != nil {
		return err
	}

	_, err := w.WriteBody(data)
	return err
}

func (w *Writer) Text(code StatusCode, body string) error {
	return w.Bytes(code, ContentTypeText, []byte(body))
}

func (w *Writer) HTML(code StatusCode, body string) error {
	return w.Bytes(code, ContentTypeHTML, []byte(body))
}

// JSON marshals v and writes it
func (w *Writer) JSON(code StatusCode, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json response: %w", err)
	}
	return w.Bytes(code, ContentTypeJSON, data)
}

// Error writes a plain text error. An empty message uses the reason phrase.
func (w *Writer) Error(code StatusCode, message string) error {
	if message == "" {
		message = StatusText(code)
	}
	return w.Text(code, fmt.Sprintf("Error %d: %s\n", code, message))
}

// NoContent writes a 204 with no body
func (w *Writer) NoContent() error {
	if err := w.WriteStatusLine(StatusNoContent); err != nil {
		return err
	}
	if err := w.WriteHeaders(nil); err != nil {
		return err
	}
	_, err := w.WriteBody(nil)
	return err
}

// Chunked starts a chunked response. Finish it with WriteChunkedBodyDone
// and WriteTrailers.
func (w *Writer) Chunked(code StatusCode, contentType string) error {
	if err := w.WriteStatusLine(code); err != nil {
		return err
	}

	h := headers.NewHeaders()
	h.Set("Transfer-Encoding", "chunked")
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}

	return w.WriteHeaders(h)
}

// Redirect writes an empty-bodied redirect
func (w *Writer) Redirect(code StatusCode, location string) error {
	switch code {
	case StatusMovedPermanently, StatusFound, StatusSeeOther, StatusTemporaryRedirect, StatusPermanentRedirect:
	default:
		return fmt.Errorf("invalid redirect status code: %d", code)
	}

	w.Header().Set("Location", location)
	return w.Bytes(code, "", nil)
}
