package server

import (
	"strings"

	"github.com/Brownie44l1/nbhttp/internal/request"
	"github.com/Brownie44l1/nbhttp/internal/response"
)

// shouldCloseConnection determines if connection should be closed after this request
func shouldCloseConnection(ctx *Context) bool {
	req, w := ctx.Request, ctx.Response

	if w.HadError() || !w.Complete() || ctx.closeAfter {
		return true
	}

	conn := strings.ToLower(req.Header("Connection"))

	// HTTP/1.0 closes by default unless "Connection: keep-alive"
	if req.Proto() == "HTTP/1.0" {
		return !strings.Contains(conn, "keep-alive")
	}

	// HTTP/1.1 keeps alive by default unless "Connection: close"
	if strings.Contains(conn, "close") {
		return true
	}

	// without framing the client can only find the end of the body at EOF
	return !bodyless(req.Method(), w.StatusCode()) && !w.HasContentLength() && !w.IsChunked()
}

// bodyless reports responses that never carry a body
func bodyless(m request.Method, code response.StatusCode) bool {
	return m == request.MethodHead ||
		code.IsInformational() ||
		code == response.StatusNoContent ||
		code == response.StatusNotModified
}
