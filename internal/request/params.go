package request

import (
	"net/url"
	"strconv"
	"strings"
)

// parseParamsInto splits an url-encoded string on '&' and each pair on the
// first '='. Values stay raw; they are decoded on read. Pairs without '='
// are dropped and repeated keys accumulate in order.
func parseParamsInto(dst map[string][]string, s string) {
	if s == "" {
		return
	}
	for _, pair := range strings.Split(s, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		dst[key] = append(dst[key], value)
	}
}

// mergeParams overlays src on dst: every key present in src replaces the
// values dst held for it.
func mergeParams(dst map[string][]string, s string) {
	src := make(map[string][]string)
	parseParamsInto(src, s)
	for k, v := range src {
		dst[k] = v
	}
}

func decodeParam(v string) string {
	decoded, err := url.QueryUnescape(v)
	if err != nil {
		return v
	}
	return decoded
}

// Params returns the raw parameter mapping (query and url-encoded body)
func (r *Request) Params() map[string][]string {
	return r.params
}

// DecodedParams returns a copy of the parameter mapping with every value
// decoded. Keys are left as received.
func (r *Request) DecodedParams() map[string][]string {
	out := make(map[string][]string, len(r.params))
	for k := range r.params {
		out[k] = r.ParamValues(k)
	}
	return out
}

// ParamString returns the first decoded value for key
func (r *Request) ParamString(key string) (string, bool) {
	values := r.params[key]
	if len(values) == 0 {
		return "", false
	}
	return decodeParam(values[0]), true
}

// ParamValues returns every decoded value for key, in arrival order
func (r *Request) ParamValues(key string) []string {
	values := r.params[key]
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = decodeParam(v)
	}
	return out
}

// ParamInt returns the first value for key as an int, or 0 when it is
// missing or not a number.
func (r *Request) ParamInt(key string) int {
	v, ok := r.ParamString(key)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

// ParamBool is true only for the checkbox value "on"
func (r *Request) ParamBool(key string) bool {
	v, ok := r.ParamString(key)
	return ok && v == "on"
}
