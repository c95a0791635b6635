package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/leafnet"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/observability"
)

const (
	defaultListen   = ":8080"
	shutdownTimeout = 10 * time.Second
	readTimeout     = 30 * time.Second
	writeTimeout    = 60 * time.Second
)

// Server owns the echo instance and the API controller.
type Server struct {
	echo     *echo.Echo
	settings *conf.Settings
	log      logger.Logger

	dataStore    datastore.Interface
	preprocessor *leafnet.Preprocessor
	classifier   *leafnet.Classifier
	metrics      *observability.Metrics

	controller *Controller
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithDataStore sets the record store.
func WithDataStore(ds datastore.Interface) ServerOption {
	return func(s *Server) { s.dataStore = ds }
}

// WithClassifier sets the preprocessor and classifier for ad-hoc endpoints.
func WithClassifier(pre *leafnet.Preprocessor, classifier *leafnet.Classifier) ServerOption {
	return func(s *Server) {
		s.preprocessor = pre
		s.classifier = classifier
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// New creates a server with middleware and routes installed.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	s := &Server{settings: settings, log: GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	if s.dataStore == nil {
		return nil, fmt.Errorf("datastore is required")
	}
	if s.preprocessor == nil || s.classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = readTimeout
	s.echo.Server.WriteTimeout = writeTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized", logger.String("address", s.Address()))
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestID())
	s.echo.Use(newRequestLogger(s.log))
	if s.metrics != nil {
		s.echo.Use(newMetricsMiddleware(s.metrics.HTTP))
	}

	origins := s.settings.WebServer.CORSOrigins
	if len(origins) > 0 {
		s.echo.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			Skipper:      func(c echo.Context) bool { return c.Path() == "/api/v1/detect" },
			AllowOrigins: origins,
		}))
	}

	limit := s.settings.WebServer.MaxUploadSize
	if limit <= 0 {
		limit = defaultMaxUploadSize
	}
	// base64 inflates bodies by a third
	s.echo.Use(echomw.BodyLimit(formatBodyLimit(limit * 4 / 3)))
}

func (s *Server) setupRoutes() {
	s.controller = NewController(s.echo, s.dataStore, s.preprocessor, s.classifier, s.settings, s.metrics)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Address returns the listen address.
func (s *Server) Address() string {
	if s.settings.WebServer.Listen != "" {
		return s.settings.WebServer.Listen
	}
	return defaultListen
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", s.Address()))
		if err := s.echo.Start(s.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return <-errCh
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Controller returns the API controller.
func (s *Server) Controller() *Controller {
	return s.controller
}
