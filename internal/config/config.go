package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/nbhttp/internal/request"
)

// Config is the on-disk server configuration
type Config struct {
	Server       Server    `yaml:"server"`
	Request      Request   `yaml:"request"`
	Session      Session   `yaml:"session"`
	Interceptors []string  `yaml:"interceptors"`
	RateLimit    RateLimit `yaml:"rate_limit"`
	CORS         CORS      `yaml:"cors"`
	Log          Log       `yaml:"log"`
}

type Server struct {
	Addr         string `yaml:"addr"`
	Multicore    bool   `yaml:"multicore"`
	NumEventLoop int    `yaml:"num_event_loop"`
	ReusePort    bool   `yaml:"reuse_port"`

	// Secure marks requests as https (TLS terminated in front of us)
	Secure      bool          `yaml:"secure"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type Request struct {
	MaxUploadSize  int64  `yaml:"max_upload_size"`
	MaxHeaderBytes int    `yaml:"max_header_bytes"`
	TempDir        string `yaml:"temp_dir"`
	DisableCookie  bool   `yaml:"disable_cookie"`
}

type Session struct {
	MaxIdle time.Duration `yaml:"max_idle"`
}

type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type CORS struct {
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	AllowedMethods   []string      `yaml:"allowed_methods"`
	AllowedHeaders   []string      `yaml:"allowed_headers"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var (
	ErrInvalidAddr       = errors.New("server.addr must be set")
	ErrInvalidLimit      = errors.New("request size limits must be positive")
	ErrNegativeTimeout   = errors.New("durations must not be negative")
	ErrInvalidLogFormat  = errors.New("log.format must be text or json")
	ErrInvalidEventLoops = errors.New("server.num_event_loop must not be negative")
)

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Server: Server{
			Addr:        ":8080",
			ReadTimeout: 30 * time.Second,
		},
		Request: Request{
			MaxUploadSize:  request.DefaultMaxUploadSize,
			MaxHeaderBytes: request.DefaultMaxHeaderBytes,
		},
		Session: Session{
			MaxIdle: 30 * time.Minute,
		},
		Interceptors: []string{"recovery", "request-id", "logging", "metrics"},
		RateLimit: RateLimit{
			Requests: 100,
			Window:   time.Minute,
		},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
			MaxAge:         12 * time.Hour,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem found, joined
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, ErrInvalidAddr)
	}
	if c.Server.NumEventLoop < 0 {
		errs = append(errs, ErrInvalidEventLoops)
	}
	if c.Request.MaxUploadSize <= 0 || c.Request.MaxHeaderBytes <= 0 {
		errs = append(errs, ErrInvalidLimit)
	}
	if c.Server.ReadTimeout < 0 || c.Session.MaxIdle < 0 || c.RateLimit.Window < 0 || c.CORS.MaxAge < 0 {
		errs = append(errs, ErrNegativeTimeout)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format))
	}

	return errors.Join(errs...)
}

// DecoderConfig is the part of the configuration each request decoder sees
func (c Config) DecoderConfig() request.Config {
	return request.Config{
		MaxUploadSize:  c.Request.MaxUploadSize,
		MaxHeaderBytes: c.Request.MaxHeaderBytes,
		TempDir:        c.Request.TempDir,
		DisableCookie:  c.Request.DisableCookie,
		Secure:         c.Server.Secure,
	}
}
