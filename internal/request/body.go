package request

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/nbhttp/internal/headers"
)

const mediaTypeMultipart = "multipart/form-data"

// finalizeBody runs once the body buffer is full and dispatches on the
// request's Content-Type.
func (d *Decoder) finalizeBody() error {
	ct, _ := d.req.headers.Lookup("Content-Type")
	mediaType, _, _ := strings.Cut(ct, ";")

	if strings.EqualFold(strings.TrimSpace(mediaType), mediaTypeMultipart) {
		return d.storeUpload()
	}

	mergeParams(d.req.params, string(d.req.body))
	return nil
}

// multipartPart locates the pieces of a single-part multipart body
type multipartPart struct {
	headers      *headers.Headers
	payloadStart int
	payloadEnd   int
}

// scanSinglePart walks a multipart body by byte offset:
//
//	--boundary CRLF
//	part headers CRLF CRLF
//	payload
//	CRLF --boundary-- CRLF
//
// Missing pieces degrade to an empty header block or a payload running to
// the end of the buffer; scanning never fails.
func scanSinglePart(body []byte) multipartPart {
	part := multipartPart{
		headers:      headers.NewHeaders(),
		payloadStart: len(body),
		payloadEnd:   len(body),
	}

	// step 1: boundary line
	lineEnd := bytes.Index(body, crlf)
	if lineEnd == -1 {
		return part
	}
	boundary := body[:lineEnd]

	// step 2: nested header block, up to the first blank line
	blockStart := lineEnd + len(crlf)
	n, ok := part.headers.Parse(body[blockStart:])
	if !ok {
		return part
	}
	part.payloadStart = blockStart + n

	// step 3: payload runs to CRLF + boundary line
	closing := append(append([]byte{}, crlf...), boundary...)
	if end := bytes.Index(body[part.payloadStart:], closing); end != -1 {
		part.payloadEnd = part.payloadStart + end
	}

	return part
}

// dispositionParams tokenizes a Content-Disposition value such as
//
//	form-data; name="avatar"; filename="me; too.jpg"
//
// into its disposition type and lower-cased parameters. Quoted values may
// contain ';' and backslash escapes. Malformed segments are skipped.
func dispositionParams(v string) (string, map[string]string) {
	params := make(map[string]string)
	dispType, rest, _ := strings.Cut(v, ";")

	i := 0
	for i < len(rest) {
		// skip separators and whitespace
		for i < len(rest) && (rest[i] == ';' || rest[i] == ' ' || rest[i] == '\t') {
			i++
		}

		// parameter name
		start := i
		for i < len(rest) && rest[i] != '=' && rest[i] != ';' {
			i++
		}
		name := strings.ToLower(strings.TrimSpace(rest[start:i]))
		if i >= len(rest) || rest[i] == ';' {
			continue
		}
		i++ // '='

		// parameter value
		var value string
		if i < len(rest) && rest[i] == '"' {
			value, i = scanQuoted(rest, i+1)
		} else {
			start = i
			for i < len(rest) && rest[i] != ';' {
				i++
			}
			value = strings.TrimSpace(rest[start:i])
		}

		if name != "" {
			params[name] = value
		}
	}

	return strings.TrimSpace(dispType), params
}

// scanQuoted reads a quoted-string body starting just after the opening
// quote. It returns the unescaped value and the index after the closing
// quote (or len(s) when unterminated).
func scanQuoted(s string, i int) (string, int) {
	var b strings.Builder
	for i < len(s) {
		switch c := s[i]; {
		case c == '\\' && i+1 < len(s):
			b.WriteByte(s[i+1])
			i += 2
		case c == '"':
			return b.String(), i + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i
}

// storeUpload writes the single file part to the temp directory and
// registers it. Form fields sent alongside the file are not recovered; the
// parameter mapping is reset.
func (d *Decoder) storeUpload() error {
	r := d.req
	part := scanSinglePart(r.body)

	disposition, _ := part.headers.Lookup("Content-Disposition")
	_, params := dispositionParams(disposition)

	field := params["name"]
	filename := sanitizeFilename(params["filename"])
	if filename == "" {
		filename = d.randomFilename()
	}

	payload := r.body[part.payloadStart:part.payloadEnd]
	path := filepath.Join(d.opts.Config.TempDir, filename)
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write upload %q: %w", filename, err)
	}

	ct, _ := part.headers.Lookup("Content-Type")
	r.files[field] = &UploadedFile{
		Field:       field,
		Filename:    filename,
		Path:        path,
		Size:        int64(len(payload)),
		ContentType: ct,
	}
	r.params = make(map[string][]string)

	d.log.WithFields(logrus.Fields{
		"field":    field,
		"filename": filename,
		"size":     len(payload),
	}).Debug("upload stored")

	return nil
}

// sanitizeFilename keeps only the base name of a client supplied filename.
// Browsers on Windows may send a full path.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

// randomFilename builds yyyyMMddHHmmss_N with N in [0, 1000)
func (d *Decoder) randomFilename() string {
	return d.opts.Clock().Format("20060102150405") + "_" + strconv.Itoa(d.opts.Rand.IntN(1000))
}
