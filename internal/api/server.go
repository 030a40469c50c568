package api

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	gommonlog "github.com/labstack/gommon/log"

	mw "github.com/rsamf/mink/internal/api/middleware"
	"github.com/rsamf/mink/internal/buildinfo"
	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/jobqueue"
	"github.com/rsamf/mink/internal/logger"
	"github.com/rsamf/mink/internal/observability"
)

// JobService is what the handlers need from the orchestrator.
type JobService interface {
	Ingest(ctx context.Context, filename string, r io.Reader) (*datastore.Job, error)
	Job(ctx context.Context, jobID string) (*datastore.Job, error)
	Meeting(ctx context.Context, id uint) (*datastore.Meeting, error)
}

// QueueStats reports the job queue state for /health.
type QueueStats interface {
	Stats() jobqueue.StatsSnapshot
}

// Server is the main HTTP server for mink.
// It manages the Echo framework instance, middleware, and all HTTP routes.
type Server struct {
	// Core components
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	log      logger.Logger

	// Dependencies
	service JobService
	queue   QueueStats
	metrics *observability.Metrics
	build   buildinfo.BuildInfo

	// Lifecycle management
	wg        sync.WaitGroup
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithService sets the job service backing the handlers.
func WithService(svc JobService) ServerOption {
	return func(s *Server) {
		s.service = svc
	}
}

// WithQueueStats exposes queue statistics in /health.
func WithQueueStats(q QueueStats) ServerOption {
	return func(s *Server) {
		s.queue = q
	}
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithBuildInfo sets the version reported by /health.
func WithBuildInfo(b buildinfo.BuildInfo) ServerOption {
	return func(s *Server) {
		s.build = b
	}
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("server", config.String()).
			Build()
	}

	s := &Server{
		config:    config,
		settings:  settings,
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = GetLogger()
	}
	if s.build == nil {
		s.build = buildinfo.Current()
	}
	if s.service == nil {
		return nil, errors.Newf("api server requires a job service").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.HTTPErrorHandler = s.httpErrorHandler
	s.echo.Logger = logger.NewEchoAdapter(s.log.Module("echo"))
	if config.Debug {
		s.echo.Logger.SetLevel(gommonlog.DEBUG)
	} else {
		s.echo.Logger.SetLevel(gommonlog.ERROR)
	}

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.String("auth", config.AuthType),
		logger.Bool("debug", config.Debug))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestLogger(s.log.Module("request")))

	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins

	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))

	if s.config.AuthType == conf.AuthStatic {
		authConfig := mw.APIKeyConfig{
			Keys:        s.config.APIKeys,
			PublicPaths: mw.DefaultPublicPaths,
		}
		if s.metrics != nil {
			authConfig.OnResult = s.metrics.HTTP.RecordAuth
		}
		s.echo.Use(mw.NewAPIKeyAuth(authConfig))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() error {
	s.echo.GET("/health", s.healthCheck)

	s.echo.POST("/take-notes", s.takeNotes)
	s.echo.GET("/job/:job_id", s.getJob)
	s.echo.GET("/meeting/:meeting_id", s.getMeeting)

	if err := s.registerDocs(); err != nil {
		return err
	}

	s.log.Debug("Routes initialized", logger.Int("routes", len(s.echo.Routes())))
	return nil
}

// Start begins serving HTTP requests in a background goroutine and returns
// immediately. Use Shutdown to stop the server.
func (s *Server) Start() {
	s.wg.Go(func() {
		if err := s.startBlocking(); err != nil {
			s.log.Error("Server error", logger.Error(err))
		}
	})
	s.log.Info("HTTP server starting", logger.String("address", s.config.Address()))
}

// startBlocking begins serving HTTP requests and blocks until the server is shut down.
func (s *Server) startBlocking() error {
	err := s.echo.Start(s.config.Address())
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Category(errors.CategoryNetwork).
			Context("address", s.config.Address()).
			Build()
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("Error during server shutdown", logger.Error(err))
		return errors.New(err).
			Category(errors.CategoryNetwork).
			Build()
	}

	s.wg.Wait()
	s.log.Info("Server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Config returns the effective server configuration.
func (s *Server) Config() *Config {
	return s.config
}
