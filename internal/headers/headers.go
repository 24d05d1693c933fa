package headers

import (
	"bytes"
	"strings"
)

// Headers maps a header name to a single value. Keys are stored exactly as
// received; a repeated key overwrites the earlier value.
type Headers struct {
	headers map[string]string
}

func NewHeaders() *Headers {
	return &Headers{
		headers: make(map[string]string),
	}
}

// Get returns the value stored under exactly this key
func (h *Headers) Get(key string) (string, bool) {
	v, ok := h.headers[key]
	return v, ok
}

// Lookup tries the exact key first, then falls back to a case-insensitive
// scan. Used for framing headers where clients disagree on casing.
func (h *Headers) Lookup(key string) (string, bool) {
	if v, ok := h.headers[key]; ok {
		return v, true
	}
	for k, v := range h.headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// GetAllHeaders returns the internal map (for iteration)
func (h *Headers) GetAllHeaders() map[string]string {
	return h.headers
}

// Clone returns an independent copy
func (h *Headers) Clone() *Headers {
	c := &Headers{headers: make(map[string]string, len(h.headers))}
	for k, v := range h.headers {
		c.headers[k] = v
	}
	return c
}

// Set replaces the value for a header
func (h *Headers) Set(key, value string) {
	h.headers[key] = value
}

// Len returns the number of distinct header names
func (h *Headers) Len() int {
	return len(h.headers)
}

// Parse consumes CRLF terminated header lines until an empty line.
// Lines without a colon are skipped. It returns the number of bytes
// consumed and whether the terminating empty line was seen.
func (h *Headers) Parse(data []byte) (int, bool) {
	read := 0

	for {
		idx := bytes.Index(data[read:], []byte("\r\n"))
		if idx == -1 {
			// Need more data
			return read, false
		}

		if idx == 0 {
			// Empty line = end of headers
			return read + 2, true
		}

		h.ParseLine(data[read : read+idx])
		read += idx + 2
	}
}

// ParseLine stores a single "Name: value" line. It reports false when the
// line carries no colon and was ignored.
func (h *Headers) ParseLine(line []byte) bool {
	name, value, ok := bytes.Cut(line, []byte(":"))
	if !ok {
		return false
	}

	key := string(bytes.TrimSpace(name))
	if key == "" {
		return false
	}

	h.headers[key] = string(bytes.TrimSpace(value))
	return true
}
