package request

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// multipartRequest builds a single-part upload the way browsers send it
func multipartRequest(target, disposition, payload string) []byte {
	body := "--XyZ\r\n"
	if disposition != "" {
		body += "Content-Disposition: " + disposition + "\r\n"
	}
	body += "Content-Type: application/octet-stream\r\n" +
		"\r\n" +
		payload +
		"\r\n--XyZ--\r\n"

	return []byte("POST " + target + " HTTP/1.1\r\n" +
		"Host: h\r\n" +
		"Content-Type: multipart/form-data; boundary=XyZ\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n" +
		body)
}

func TestMultipartSynthesizedFilename(t *testing.T) {
	dir := t.TempDir()
	payload := "\x00\x01binary\r\npayload\r\n--Xy not the boundary\xff"
	data := multipartRequest("/upload", `form-data; name="upload"`, payload)

	d := newTestDecoder(Config{TempDir: dir})
	done, err := feedInChunks(d, data, 7)
	require.NoError(t, err)
	require.True(t, done)

	req := d.Request()
	f, ok := req.File("upload")
	require.True(t, ok)
	assert.Equal(t, "upload", f.Field)
	assert.Equal(t, "20240305140709_42", f.Filename)
	assert.Equal(t, filepath.Join(dir, "20240305140709_42"), f.Path)
	assert.Equal(t, int64(len(payload)), f.Size)
	assert.Equal(t, "application/octet-stream", f.ContentType)

	got, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte(payload), got)

	assert.NotNil(t, req.Params())
	assert.Empty(t, req.Params())
}

func TestMultipartClientFilename(t *testing.T) {
	dir := t.TempDir()
	data := multipartRequest("/upload?x=1", `form-data; name="doc"; filename="report; final.txt"`, "hello")

	d := newTestDecoder(Config{TempDir: dir})
	done, err := d.Feed(data)
	require.NoError(t, err)
	require.True(t, done)

	f, ok := d.Request().File("doc")
	require.True(t, ok)
	assert.Equal(t, "report; final.txt", f.Filename)

	got, err := os.ReadFile(filepath.Join(dir, "report; final.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	// query parameters are dropped along with any mixed-in fields
	assert.Empty(t, d.Request().Params())
}

func TestMultipartFilenameIsSanitized(t *testing.T) {
	cases := []struct {
		disposition string
		want        string
	}{
		{`form-data; name="f"; filename="../../etc/passwd"`, "passwd"},
		{`form-data; name="f"; filename="C:\\Users\\me\\a.txt"`, "a.txt"},
		{`form-data; name="f"; filename=".."`, "20240305140709_42"},
		{`form-data; name="f"; filename=""`, "20240305140709_42"},
	}

	for _, tc := range cases {
		disposition, want := tc.disposition, tc.want
		dir := t.TempDir()
		d := newTestDecoder(Config{TempDir: dir})
		done, err := d.Feed(multipartRequest("/u", disposition, "x"))
		require.NoError(t, err, disposition)
		require.True(t, done)

		f, ok := d.Request().File("f")
		require.True(t, ok, disposition)
		assert.Equal(t, want, f.Filename, disposition)
		assert.Equal(t, dir, filepath.Dir(f.Path), disposition)
	}
}

func TestMultipartWithoutDisposition(t *testing.T) {
	dir := t.TempDir()
	d := newTestDecoder(Config{TempDir: dir})
	done, err := d.Feed(multipartRequest("/u", "", "anon"))
	require.NoError(t, err)
	require.True(t, done)

	f, ok := d.Request().File("")
	require.True(t, ok, "anonymous upload is registered under the empty field name")
	assert.Equal(t, "20240305140709_42", f.Filename)

	got, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "anon", string(got))
}

func TestMultipartWriteFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	d := newTestDecoder(Config{TempDir: missing})

	_, err := d.Feed(multipartRequest("/u", `form-data; name="f"`, "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, d.Done())

	_, again := d.Feed([]byte("x"))
	assert.Equal(t, err, again)
}

func TestMultipartMediaTypeIsCaseInsensitive(t *testing.T) {
	body := "--b\r\nContent-Disposition: form-data; name=\"f\"\r\n\r\nzz\r\n--b--\r\n"
	data := "POST /u HTTP/1.1\r\n" +
		"Content-Type: Multipart/Form-Data ; boundary=b\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body

	d := newTestDecoder(Config{TempDir: t.TempDir()})
	done, err := d.Feed([]byte(data))
	require.NoError(t, err)
	require.True(t, done)

	f, ok := d.Request().File("f")
	require.True(t, ok)
	assert.Equal(t, int64(2), f.Size)
}

func TestNonMultipartContentTypeParsesForm(t *testing.T) {
	req := decodeAll(t, "POST /f HTTP/1.1\r\n"+
		"Content-Type: application/x-www-form-urlencoded; charset=utf-8\r\n"+
		"Content-Length: 3\r\n\r\nk=v")
	assert.Equal(t, []string{"v"}, req.Params()["k"])

	req = decodeAll(t, "POST /f HTTP/1.1\r\n"+
		"Content-Type: application/json\r\n"+
		"Content-Length: 9\r\n\r\n{\"k\":\"v\"}")
	assert.Equal(t, `{"k":"v"}`, string(req.Body()))
	assert.Empty(t, req.Params())
}

func TestScanSinglePart(t *testing.T) {
	body := []byte("--b\r\nA: 1\r\nB: 2\r\n\r\npayload\r\n--b--\r\n")
	part := scanSinglePart(body)
	assert.Equal(t, "payload", string(body[part.payloadStart:part.payloadEnd]))
	v, _ := part.headers.Get("B")
	assert.Equal(t, "2", v)

	// no closing boundary: payload runs to the end
	body = []byte("--b\r\nA: 1\r\n\r\ntruncated")
	part = scanSinglePart(body)
	assert.Equal(t, "truncated", string(body[part.payloadStart:part.payloadEnd]))

	// no part headers at all
	body = []byte("--b\r\n\r\nbare\r\n--b--\r\n")
	part = scanSinglePart(body)
	assert.Equal(t, "bare", string(body[part.payloadStart:part.payloadEnd]))
	assert.Equal(t, 0, part.headers.Len())

	// no blank line: empty payload
	body = []byte("--b\r\nA: 1\r\n")
	part = scanSinglePart(body)
	assert.Equal(t, part.payloadStart, part.payloadEnd)

	part = scanSinglePart(nil)
	assert.Equal(t, 0, part.payloadEnd)
}

func TestDispositionParams(t *testing.T) {
	typ, params := dispositionParams(`form-data; name="avatar"; filename="me.jpg"`)
	assert.Equal(t, "form-data", typ)
	assert.Equal(t, map[string]string{"name": "avatar", "filename": "me.jpg"}, params)

	_, params = dispositionParams(`form-data;NAME=plain ; filename="a \"quoted\" ; name"`)
	assert.Equal(t, "plain", params["name"])
	assert.Equal(t, `a "quoted" ; name`, params["filename"])

	_, params = dispositionParams(`form-data; =orphan; novalue; name="x`)
	assert.Equal(t, map[string]string{"name": "x"}, params)

	typ, params = dispositionParams("")
	assert.Equal(t, "", typ)
	assert.Empty(t, params)
}
