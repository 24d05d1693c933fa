package router

import (
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/nbhttp/internal/request"
	"github.com/Brownie44l1/nbhttp/internal/response"
	"github.com/Brownie44l1/nbhttp/internal/server"
)

type bufConn struct {
	bytes.Buffer
}

func (*bufConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1} }

func serve(t *testing.T, r *Router, raw string) string {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	conn := &bufConn{}

	d := request.NewDecoder(conn, request.Options{
		Config: request.Config{TempDir: t.TempDir()},
		Logger: logrus.NewEntry(logger),
	})
	done, err := d.Feed([]byte(raw))
	require.NoError(t, err)
	require.True(t, done)

	ctx := server.NewContext(d.Request(), response.NewWriter(conn), logrus.NewEntry(logger))
	r.ServeHTTP(ctx)
	return conn.String()
}

func TestRouterMatchesParams(t *testing.T) {
	r := New()
	r.GET("/users/:id/posts/:postId", func(ctx *server.Context) {
		ctx.String(response.StatusOK, "%s/%s", ctx.Param("id"), ctx.Param("postId"))
	})

	got := serve(t, r, "GET /users/42/posts/abc?ignored=1 HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasSuffix(got, "\r\n\r\n42/abc"))
}

func TestRouterFirstRegisteredWins(t *testing.T) {
	r := New()
	r.GET("/items/new", func(ctx *server.Context) { ctx.Text(response.StatusOK, "static") })
	r.GET("/items/:id", func(ctx *server.Context) { ctx.Text(response.StatusOK, "param") })

	assert.True(t, strings.HasSuffix(serve(t, r, "GET /items/new HTTP/1.1\r\n\r\n"), "static"))
	assert.True(t, strings.HasSuffix(serve(t, r, "GET /items/7 HTTP/1.1\r\n\r\n"), "param"))
}

func TestRouterNotFound(t *testing.T) {
	r := New()
	r.GET("/a", func(ctx *server.Context) { ctx.Text(response.StatusOK, "a") })

	got := serve(t, r, "GET /b HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(got, "HTTP/1.1 404 Not Found\r\n"))

	r.NotFound(func(ctx *server.Context) { ctx.Text(response.StatusNotFound, "nothing here") })
	got = serve(t, r, "GET /b HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasSuffix(got, "nothing here"))
}

func TestRouterMethodNotAllowed(t *testing.T) {
	r := New()
	r.GET("/thing", func(*server.Context) {})
	r.DELETE("/thing", func(*server.Context) {})
	r.PUT("/other", func(*server.Context) {})

	got := serve(t, r, "POST /thing HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	assert.True(t, strings.HasPrefix(got, "HTTP/1.1 405 Method Not Allowed\r\n"))
	assert.Contains(t, got, "Allow: DELETE, GET\r\n")
}

func TestMatchPath(t *testing.T) {
	assert.Equal(t, map[string]string{}, matchPath("/", "/"))
	assert.Equal(t, map[string]string{"id": "1"}, matchPath("/u/:id", "/u/1"))
	assert.Nil(t, matchPath("/u/:id", "/u/"))
	assert.Nil(t, matchPath("/u/:id", "/u/1/x"))
	assert.Nil(t, matchPath("/a", "/b"))
	assert.Equal(t, []string{"id", "postId"}, extractParams("/users/:id/posts/:postId"))
	assert.Empty(t, extractParams("/static"))
}
