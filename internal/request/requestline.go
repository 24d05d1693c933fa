package request

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/Brownie44l1/nbhttp/internal/headers"
)

// Method is a request-line method token
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodConnect Method = "CONNECT"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"
	MethodPatch   Method = "PATCH"
)

var knownMethods = []Method{
	MethodGet, MethodHead, MethodPost, MethodPut, MethodDelete,
	MethodConnect, MethodOptions, MethodTrace, MethodPatch,
}

// ParseMethod returns the Method for an exact, case-sensitive token
func ParseMethod(token string) (Method, bool) {
	for _, m := range knownMethods {
		if string(m) == token {
			return m, true
		}
	}
	return "", false
}

// HasBody reports whether a request with this method may carry a
// Content-Length delimited body.
func (m Method) HasBody() bool {
	switch m {
	case MethodPost, MethodPut, MethodDelete, MethodPatch:
		return true
	default:
		return false
	}
}

func (m Method) String() string { return string(m) }

// plausibleMethodPrefix reports whether data can still turn into a request
// line for a known method. It is the cheap check run on every partial read
// so garbage is rejected before it is buffered.
func plausibleMethodPrefix(data []byte) bool {
	for _, m := range knownMethods {
		if len(data) >= len(m) {
			if bytes.HasPrefix(data, []byte(m)) {
				return true
			}
		} else if strings.HasPrefix(string(m), string(data)) {
			return true
		}
	}
	return false
}

// parseRequestLine parses: METHOD SP TARGET [SP VERSION]
// Returns: method, target, version, error
func parseRequestLine(line []byte) (Method, string, string, error) {
	parts := strings.SplitN(string(line), " ", 3)

	method, ok := ParseMethod(parts[0])
	if !ok {
		return "", "", "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, truncate(parts[0], 16))
	}

	if len(parts) < 2 || parts[1] == "" {
		return "", "", "", fmt.Errorf("%w: missing request target", ErrUnsupportedMethod)
	}

	version := ""
	if len(parts) == 3 {
		version = strings.TrimSpace(parts[2])
	}

	return method, parts[1], version, nil
}

// normalizeTarget turns a request target into a decoded URI path and a raw
// query string. Absolute-form targets (proxy clients) and authority-form
// targets (CONNECT host:port) move their authority into the Host header.
func normalizeTarget(target string, h *headers.Headers) (string, string) {
	if i := strings.Index(target, "://"); i > 0 && isScheme(target[:i]) {
		rest := target[i+3:]
		end := strings.IndexAny(rest, "/?")
		if end == -1 {
			h.Set("Host", rest)
			target = "/"
		} else {
			h.Set("Host", rest[:end])
			target = rest[end:]
			if target[0] == '?' {
				target = "/" + target
			}
		}
	}

	path, query, _ := strings.Cut(target, "?")

	if path == "*" {
		return "/", query
	}

	slash := strings.IndexByte(path, '/')
	if slash == -1 {
		// authority-form: the whole target is the host
		if path != "" {
			h.Set("Host", path)
		}
		return "/", query
	}

	return decodePath(path[slash:]), query
}

// decodePath percent-decodes a path, keeping the raw text when the escapes
// are malformed.
func decodePath(p string) string {
	decoded, err := url.PathUnescape(p)
	if err != nil {
		return p
	}
	return decoded
}

func isScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return s != ""
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
