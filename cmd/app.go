package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mikills/lpnfinder/lpn"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// defaultMaxUploadBytes caps one multipart upload request.
const defaultMaxUploadBytes = 64 << 20

type AppConfig struct {
	Address           string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	MaxUploadBytes    int64
	Logger            *slog.Logger
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Address:           "127.0.0.1:8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		MaxUploadBytes:    defaultMaxUploadBytes,
		Logger:            slog.Default(),
	}
}

type App struct {
	indexer *lpn.Indexer
	echo    *echo.Echo
	config  AppConfig
	logger  *slog.Logger
	metrics lpn.AppMetrics

	mu       sync.Mutex
	listener net.Listener
	errCh    chan error
	started  bool
}

func NewApp(indexer *lpn.Indexer, cfg AppConfig) *App {
	cfg = mergeWithDefaultAppConfig(cfg)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := lpn.AppMetrics(lpn.NoopAppMetrics{})
	if m := lpn.NewInMemAppMetrics(); m != nil {
		metrics = m
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLoggerMiddleware(logger, metrics))

	app := &App{
		indexer: indexer,
		echo:    e,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		errCh:   make(chan error, 1),
	}
	app.registerRoutes()
	return app
}

func mergeWithDefaultAppConfig(cfg AppConfig) AppConfig {
	d := DefaultAppConfig()
	if cfg.Address != "" {
		d.Address = cfg.Address
	}
	if cfg.ReadHeaderTimeout > 0 {
		d.ReadHeaderTimeout = cfg.ReadHeaderTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		d.ShutdownTimeout = cfg.ShutdownTimeout
	}
	if cfg.MaxUploadBytes > 0 {
		d.MaxUploadBytes = cfg.MaxUploadBytes
	}
	if cfg.Logger != nil {
		d.Logger = cfg.Logger
	}
	return d
}

func requestLoggerMiddleware(logger *slog.Logger, metrics lpn.AppMetrics) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = lpn.NoopAppMetrics{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			if status == 0 {
				status = http.StatusOK
			}
			latencyMS := time.Since(start).Milliseconds()
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			metrics.RecordRequest(c.Request().Method, path, status, latencyMS)
			attrs := []any{
				"method", c.Request().Method,
				"path", path,
				"status", status,
				"latency_ms", latencyMS,
				"remote_ip", c.RealIP(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			}

			switch {
			case status >= http.StatusInternalServerError:
				logger.ErrorContext(c.Request().Context(), "http request", attrs...)
			case status >= http.StatusBadRequest:
				logger.WarnContext(c.Request().Context(), "http request", attrs...)
			default:
				logger.InfoContext(c.Request().Context(), "http request", attrs...)
			}
			return nil
		}
	}
}

func (a *App) registerRoutes() {
	deps := Dependencies{
		Lookup: func(ctx context.Context, raw string) (*lpn.LookupResult, error) {
			if a.indexer == nil {
				return nil, fmt.Errorf("%w: indexer not configured", lpn.ErrIndexUnavailable)
			}
			return a.indexer.Lookup(ctx, raw)
		},
		Upload: func(ctx context.Context, files []lpn.UploadFile) (*lpn.UploadSummary, error) {
			if a.indexer == nil {
				return nil, fmt.Errorf("%w: indexer not configured", lpn.ErrIndexUnavailable)
			}
			return a.indexer.Upload(ctx, files)
		},
		Stats: func(ctx context.Context) (*lpn.Stats, error) {
			if a.indexer == nil {
				return nil, fmt.Errorf("%w: indexer not configured", lpn.ErrIndexUnavailable)
			}
			return a.indexer.Stats(ctx)
		},
		Reconcile: func(ctx context.Context) (lpn.MetaDocument, error) {
			if a.indexer == nil {
				return lpn.MetaDocument{}, fmt.Errorf("%w: indexer not configured", lpn.ErrIndexUnavailable)
			}
			return a.indexer.Reconcile(ctx)
		},
		MaxUploadBytes: a.config.MaxUploadBytes,
		Logger:         a.logger,
		AppMetrics:     a.metrics,
	}
	Register(a.echo, deps)
	RegisterUI(a.echo)
}

func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("app already started")
	}

	ln, err := net.Listen("tcp", a.config.Address)
	if err != nil {
		return err
	}
	a.listener = ln
	a.started = true

	srv := &http.Server{Handler: a.echo, ReadHeaderTimeout: a.config.ReadHeaderTimeout}
	a.echo.Server = srv

	go func() {
		err := a.echo.Server.Serve(ln)
		if err == http.ErrServerClosed {
			err = nil
		}
		a.errCh <- err
	}()

	a.logger.Info("http server listening", "address", ln.Addr().String())
	return nil
}

func (a *App) Address() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	addr := a.listener.Addr().String()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	host = strings.TrimSpace(host)
	if host == "" || host == "::" || host == "0.0.0.0" || host == "[::]" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func (a *App) Wait() error {
	return <-a.errCh
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	started := a.started
	a.started = false
	a.mu.Unlock()

	if !started {
		return nil
	}

	if ctx == nil {
		c, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
		ctx = c
	}

	return a.echo.Shutdown(ctx)
}

// Handler exposes the router for in-process tests and embedding.
func (a *App) Handler() http.Handler {
	return a.echo
}

// Metrics returns the app's metrics recorder.
func (a *App) Metrics() lpn.AppMetrics {
	return a.metrics
}
