package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/nbhttp/internal/config"
	"github.com/Brownie44l1/nbhttp/internal/headers"
	"github.com/Brownie44l1/nbhttp/internal/request"
	"github.com/Brownie44l1/nbhttp/internal/response"
	"github.com/Brownie44l1/nbhttp/internal/router"
	"github.com/Brownie44l1/nbhttp/internal/server"
	"github.com/Brownie44l1/nbhttp/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	log, err := server.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

func run(cfg config.Config, log *logrus.Entry) error {
	metrics := server.NewMetrics()
	sessions := session.NewRegistry()

	interceptors, err := server.BuildInterceptors(cfg.Interceptors, server.InterceptorDeps{
		Logger:  log,
		Metrics: metrics,
		RateLimit: server.RateLimitConfig{
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
		},
		CORS: server.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		},
	})
	if err != nil {
		return err
	}

	var srv *server.Server

	r := router.New()
	r.GET("/", handleHome)
	r.GET("/health", handleHealth)
	r.GET("/users/:id", handleGetUser)
	r.POST("/form", handleForm)
	r.POST("/upload", handleUpload)
	r.GET("/session", handleSession)
	r.GET("/stream", handleStream)
	r.GET("/metrics", func(ctx *server.Context) {
		ctx.JSON(response.StatusOK, srv.Stats())
	})

	srv, err = server.New(r, server.Options{
		Addr:           cfg.Server.Addr,
		Multicore:      cfg.Server.Multicore,
		NumEventLoop:   cfg.Server.NumEventLoop,
		ReusePort:      cfg.Server.ReusePort,
		ReadTimeout:    cfg.Server.ReadTimeout,
		SessionMaxIdle: cfg.Session.MaxIdle,
		Decoder: request.Options{
			Config: cfg.DecoderConfig(),
			Logger: log,
		},
		Sessions:     sessions,
		Interceptors: interceptors,
		Logger:       log,
		Metrics:      metrics,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return err
	}

	stats := srv.Stats()
	log.WithFields(logrus.Fields{
		"requests":        stats.RequestsTotal,
		"uploads":         stats.UploadsTotal,
		"decode_rejected": stats.DecodeTooLarge + stats.DecodeUnsupported + stats.DecodeMalformed,
	}).Info("server stopped")
	return nil
}

func handleHome(ctx *server.Context) {
	ctx.HTML(response.StatusOK, `<!DOCTYPE html>
<html>
<head><title>nbhttp</title></head>
<body>
	<h1>nbhttp</h1>
	<ul>
		<li><a href="/users/123">User</a></li>
		<li><a href="/session">Session counter</a></li>
		<li><a href="/stream?n=5">Chunked stream</a></li>
		<li><a href="/metrics">Metrics</a></li>
	</ul>
	<form action="/upload" method="post" enctype="multipart/form-data">
		<input type="file" name="file"><button>Upload</button>
	</form>
</body>
</html>`)
}

func handleHealth(ctx *server.Context) {
	ctx.JSON(response.StatusOK, map[string]string{
		"status":     "healthy",
		"request_id": ctx.RequestID,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

func handleGetUser(ctx *server.Context) {
	ctx.JSON(response.StatusOK, map[string]string{
		"id": ctx.Param("id"),
	})
}

// handleForm echoes url-encoded form and query parameters
func handleForm(ctx *server.Context) {
	ctx.JSON(response.StatusOK, ctx.Request.Params())
}

func handleUpload(ctx *server.Context) {
	files := ctx.Request.Files()
	if len(files) == 0 {
		ctx.Error(response.StatusBadRequest, "expected a multipart file")
		return
	}

	out := make([]map[string]any, 0, len(files))
	for _, f := range files {
		out = append(out, map[string]any{
			"field":        f.Field,
			"filename":     f.Filename,
			"size":         f.Size,
			"content_type": f.ContentType,
		})
	}
	ctx.JSON(response.StatusCreated, out)
}

// handleStream sends ?n lines as separate chunks and reports the count in
// a trailer
func handleStream(ctx *server.Context) {
	n := ctx.Request.ParamInt("n")
	if n <= 0 || n > 1000 {
		n = 10
	}

	w := ctx.Response
	w.Header().Set("Trailer", "X-Line-Count")
	if err := w.Chunked(response.StatusOK, response.ContentTypeText); err != nil {
		ctx.Log.WithError(err).Warn("stream not started")
		return
	}
	for i := 1; i <= n; i++ {
		if _, err := w.WriteChunkedBody([]byte(fmt.Sprintf("line %d\n", i))); err != nil {
			ctx.Log.WithError(err).Warn("stream interrupted")
			return
		}
	}
	if _, err := w.WriteChunkedBodyDone(); err != nil {
		return
	}

	trailers := headers.NewHeaders()
	trailers.Set("X-Line-Count", strconv.Itoa(n))
	if err := w.WriteTrailers(trailers); err != nil {
		ctx.Log.WithError(err).Warn("trailers not written")
	}
}

func handleSession(ctx *server.Context) {
	sess := ctx.Session()
	if sess == nil {
		ctx.Error(response.StatusNotImplemented, "cookies are disabled")
		return
	}

	n, _ := sess.Get("visits")
	visits, _ := n.(int)
	visits++
	sess.Set("visits", visits)

	ctx.JSON(response.StatusOK, map[string]any{
		"session": sess.ID(),
		"visits":  visits,
	})
}
