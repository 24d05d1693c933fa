package server

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/nbhttp/internal/request"
	"github.com/Brownie44l1/nbhttp/internal/response"
)

// serveRequest runs a decoded request through the handler chain and
// reports whether the connection must be closed afterwards
func (s *Server) serveRequest(c request.Conn, req *request.Request) bool {
	w := response.NewWriter(c)
	w.OnWriteHeaders(func(w *response.Writer) {
		for _, ck := range req.PendingCookies() {
			w.AddCookie(ck.String())
		}
	})

	ctx := NewContext(req, w, s.log)
	s.handleRequest(ctx)

	// a bare WriteStatusLine still needs its head flushed
	if w.Written() && !w.Complete() && !w.HadError() {
		if err := w.WriteHeaders(nil); err == nil {
			w.WriteBody(nil)
		}
	}
	if !w.Written() {
		w.Bytes(response.StatusOK, "", nil)
	}

	return shouldCloseConnection(ctx)
}

// handleRequest wraps the handler call with panic recovery so a panicking
// handler never takes the event loop down
func (s *Server) handleRequest(ctx *Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"error": fmt.Sprint(r),
				"stack": string(debug.Stack()),
				"path":  ctx.Path(),
			}).Error("handler panic")

			ctx.CloseAfterResponse()
			if !ctx.Response.Written() {
				ctx.Error(response.StatusInternalServerError, "")
			}
		}
	}()

	s.handler.ServeHTTP(ctx)
}

// rejectRequest answers a request that failed to decode. The connection is
// always closed afterwards: the stream position is unknown.
func (s *Server) rejectRequest(c request.Conn, err error) {
	code := StatusForDecodeError(err)
	s.metrics.RecordDecodeError(err)

	entry := s.log.WithError(err).WithField("status", int(code))
	if addr := c.RemoteAddr(); addr != nil {
		entry = entry.WithField("remote", addr.String())
	}
	entry.Info("request rejected")

	w := response.NewWriter(c)
	w.Header().Set("Connection", "close")
	if werr := w.Error(code, ""); werr != nil {
		entry.WithField("write_error", werr.Error()).Debug("rejection not delivered")
	}
}

// StatusForDecodeError maps decoder failures to the status sent before closing
func StatusForDecodeError(err error) response.StatusCode {
	switch {
	case errors.Is(err, request.ErrContentLengthTooLarge):
		return response.StatusRequestEntityTooLarge
	case errors.Is(err, request.ErrHeaderTooLarge):
		return response.StatusRequestHeaderFieldsTooLarge
	case errors.Is(err, request.ErrUnsupportedMethod):
		return response.StatusNotImplemented
	default:
		return response.StatusBadRequest
	}
}
