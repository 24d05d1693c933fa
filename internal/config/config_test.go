package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(10<<20), cfg.Request.MaxUploadSize)
	assert.Equal(t, []string{"recovery", "request-id", "logging", "metrics"}, cfg.Interceptors)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	err := os.WriteFile(path, []byte(`
server:
  addr: 127.0.0.1:9000
  multicore: true
  secure: true
  read_timeout: 5s
request:
  max_upload_size: 2048
  temp_dir: /var/tmp/uploads
  disable_cookie: true
session:
  max_idle: 1h
interceptors: [recovery, rate-limit]
rate_limit:
  requests: 10
  window: 10s
log:
  level: debug
  format: json
`), 0o600)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.True(t, cfg.Server.Multicore)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Hour, cfg.Session.MaxIdle)
	assert.Equal(t, []string{"recovery", "rate-limit"}, cfg.Interceptors)
	assert.Equal(t, 10, cfg.RateLimit.Requests)
	assert.Equal(t, "json", cfg.Log.Format)

	// untouched sections keep their defaults
	assert.Equal(t, 1<<20, cfg.Request.MaxHeaderBytes)
	assert.Equal(t, 12*time.Hour, cfg.CORS.MaxAge)

	dc := cfg.DecoderConfig()
	assert.Equal(t, int64(2048), dc.MaxUploadSize)
	assert.Equal(t, "/var/tmp/uploads", dc.TempDir)
	assert.True(t, dc.DisableCookie)
	assert.True(t, dc.Secure)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("server:\n  adress: :80\n"))
	assert.Error(t, err)
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse([]byte("server:\n  read_timeout: soon\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ""
	cfg.Request.MaxUploadSize = 0
	cfg.Server.ReadTimeout = -time.Second
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidAddr)
	assert.ErrorIs(t, err, ErrInvalidLimit)
	assert.ErrorIs(t, err, ErrNegativeTimeout)
	assert.ErrorIs(t, err, ErrInvalidLogFormat)

	_, err = Parse([]byte("request:\n  max_header_bytes: -1\n"))
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
