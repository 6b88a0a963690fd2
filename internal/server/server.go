// Package server exposes the calendar feeds and the operator API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"github.com/tartampluch/famcal/internal/feed"
	"github.com/tartampluch/famcal/internal/reconcile"
	"github.com/tartampluch/famcal/internal/store"
)

// Store is everything the server reads and writes.
type Store interface {
	store.RecordSource
	store.FeedStore
	store.EventWriter
}

// Options configure a Server.
type Options struct {
	Listen    string
	JWTSecret string
	CacheSize int
	Clock     calendar.Clock
	Labels    *feed.Labels
}

// Server serves feeds publicly and the import/export API to operators.
type Server struct {
	store  Store
	clock  calendar.Clock
	labels *feed.Labels
	engine *reconcile.Engine
	cache  *feedCache
	listen string
	echo   *echo.Echo
}

// New builds the server and its routes.
func New(st Store, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = calendar.RealClock{}
	}
	s := &Server{
		store:  st,
		clock:  opts.Clock,
		labels: opts.Labels,
		engine: &reconcile.Engine{},
		cache:  newFeedCache(opts.CacheSize),
		listen: opts.Listen,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	e.GET(config.RouteHealth, health)
	e.Match([]string{http.MethodGet, http.MethodHead}, config.RouteFeed, s.handleFeed)

	api := e.Group(config.RouteAPI,
		middleware.BodyLimit(config.MaxImportBodySize),
		requireOperator(opts.JWTSecret),
	)
	api.GET(config.RouteExport, s.handleExport)
	api.POST(config.RoutePreview, s.handlePreview)
	api.POST(config.RouteCommit, s.handleCommit)
	api.GET(config.RouteOccurrences, s.handleOccurrences)
	api.PUT(config.RouteOverride, s.handlePutOverride)
	api.DELETE(config.RouteOverride, s.handleDeleteOverride)

	s.echo = e
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.listen,
		Handler:      s.echo,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverError := make(chan error, config.ChannelBufferSize)
	go func() {
		slog.Info(config.MsgServerListen,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyListen, s.listen,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info(config.MsgServerStop, config.LogKeyComponent, config.CompServer)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: %w", config.ErrServerShutdown, err)
		}
		return nil
	case err := <-serverError:
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
}

func health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{config.ResponseKeyStatus: config.ResponseStatusOK})
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogMethod:  true,
		LogURIPath: true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			// Feed tokens are secrets: log the route, not the path.
			uri := v.URIPath
			if c.Path() == config.RouteFeed {
				uri = config.RouteFeed
			}
			slog.Debug(config.MsgRequest,
				config.LogKeyComponent, config.CompServer,
				config.LogKeyMethod, v.Method,
				config.LogKeyURI, uri,
				config.LogKeyStatus, v.Status,
				config.LogKeyDuration, v.Latency.Milliseconds(),
			)
			return nil
		},
	})
}

// apiError builds the JSON error body used by every handler.
func apiError(status int, code string) error {
	return echo.NewHTTPError(status, map[string]any{config.ResponseKeyError: code})
}

// storeError maps lookup failures to 404 and logs everything else as 500.
func storeError(c echo.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apiError(http.StatusNotFound, config.CodeNotFound)
	}
	slog.Error(config.MsgHandlerFailed,
		config.LogKeyComponent, config.CompAPI,
		config.LogKeyURI, c.Path(),
		config.LogKeyError, err,
	)
	return apiError(http.StatusInternalServerError, config.CodeInternal)
}
