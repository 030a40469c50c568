// Package api provides the HTTP boundary of mink: upload ingest, job and
// meeting lookup, health and the API documentation pages.
package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/gommon/bytes"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 10 * time.Minute // uploads are large
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	// Server binding
	Host string // Host to bind to (empty for all interfaces)
	Port string // Port to listen on

	// Security settings
	AllowedOrigins []string // CORS allowed origins
	AuthType       string   // none or static
	APIKeys        []string // accepted X-API-Key values

	// Timeouts
	ReadTimeout     time.Duration // Maximum duration for reading request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum time to wait for next request
	ShutdownTimeout time.Duration // Maximum time to wait for graceful shutdown

	// Limits
	BodyLimit string // Maximum request body size (e.g., "512M", "2G")

	// Logging
	Debug bool // Enable debug mode
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            "",
		Port:            "8000",
		AllowedOrigins:  []string{"*"},
		AuthType:        conf.AuthNone,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       "2G",
		Debug:           false,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()

	srv := settings.Server
	cfg.Host = srv.Host
	if srv.Port > 0 {
		cfg.Port = strconv.Itoa(srv.Port)
	}
	if len(srv.CORSOrigins) > 0 {
		cfg.AllowedOrigins = srv.CORSOrigins
	}
	if srv.ReadTimeout > 0 {
		cfg.ReadTimeout = srv.ReadTimeout
	}
	if srv.WriteTimeout > 0 {
		cfg.WriteTimeout = srv.WriteTimeout
	}
	if srv.IdleTimeout > 0 {
		cfg.IdleTimeout = srv.IdleTimeout
	}
	if srv.BodyLimit != "" {
		cfg.BodyLimit = srv.BodyLimit
	}
	if settings.Pipeline.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = settings.Pipeline.ShutdownTimeout
	}

	cfg.AuthType = settings.Auth.Type
	cfg.APIKeys = settings.Auth.Keys

	cfg.Debug = srv.Debug || settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}

	if _, err := bytes.Parse(c.BodyLimit); err != nil {
		return fmt.Errorf("invalid body limit %q: %w", c.BodyLimit, err)
	}

	if c.AuthType == conf.AuthStatic && len(c.APIKeys) == 0 {
		return fmt.Errorf("static auth enabled but no API keys configured")
	}

	return nil
}

// Address returns the full address string for the server to listen on.
func (c *Config) Address() string {
	if c.Host == "" {
		return ":" + c.Port
	}
	return c.Host + ":" + c.Port
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, auth=%s, body_limit=%s, debug=%v",
		c.Address(), c.AuthType, c.BodyLimit, c.Debug)
}
