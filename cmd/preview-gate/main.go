// Package main provides the entry point for the preview gate server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sipico/preview-gate/internal/admin"
	"github.com/sipico/preview-gate/internal/config"
	"github.com/sipico/preview-gate/internal/gate"
	"github.com/sipico/preview-gate/internal/issuer"
	"github.com/sipico/preview-gate/internal/metrics"
	"github.com/sipico/preview-gate/internal/middleware"
	"github.com/sipico/preview-gate/internal/proxy"
	"github.com/sipico/preview-gate/internal/session"
	"github.com/sipico/preview-gate/internal/storage"
)

const (
	version               = "2026.10.1"
	serverShutdownTimeout = 30 * time.Second
	sessionCleanupEvery   = 10 * time.Minute
)

// logAllowlist lists JSON fields logged verbatim by the debug HTTP logger.
// Everything else, tokens and links included, is masked.
var logAllowlist = []string{
	"client_name", "resource", "site_wide", "duration", "days", "hours", "minutes",
	"expires_at", "show_banner", "scope", "label", "expired", "level", "status", "error", "message",
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthCheck())
	}

	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// runHealthCheck probes the local health endpoint, for container HEALTHCHECK.
func runHealthCheck() int {
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return doHealthCheck("http://" + addr + "/healthz")
}

func doHealthCheck(target string) int {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(target) //nolint:gosec,noctx
	if err != nil {
		return 1
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

// serverComponents holds everything wired by initializeComponents.
type serverComponents struct {
	logger       *slog.Logger
	logLevel     *slog.LevelVar
	store        storage.Backend
	registry     *prometheus.Registry
	issuer       *issuer.Service
	admin        *admin.Handler
	gate         *gate.Gate
	proxy        *proxy.Handler
	mainRouter   chi.Router
	metricsRoute http.Handler
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	components, err := initializeComponents(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.store.Close(); err != nil {
			components.logger.Error("failed to close store", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go components.admin.Sessions().RunCleanup(ctx, sessionCleanupEvery)

	metricsServer := createMetricsServer(cfg, components.metricsRoute)
	go func() {
		components.logger.Info("metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			components.logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	server := createServer(cfg, components.mainRouter)
	components.logger.Info("preview gate starting",
		"version", version,
		"addr", cfg.ListenAddr,
		"upstream", cfg.UpstreamURL,
		"store", cfg.StoreBackend,
	)
	return startServerAndWaitForShutdown(components.logger, server)
}

func initializeComponents(cfg *config.Config) (*serverComponents, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logLevel := new(slog.LevelVar)
	level, ok := admin.ParseLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	logLevel.Set(level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Version = version
	if err := metrics.Init(registry); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	store, err := storage.Open(context.Background(), cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open grant store: %w", err)
	}

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	binder := session.Binder{TrustForwardedProto: cfg.TrustForwardedProto}

	svc := issuer.New(store, issuer.Options{
		Location: cfg.Location(),
		SiteURL:  cfg.SiteURL,
		Logger:   logger,
	})

	adminHandler, err := admin.NewHandler(svc, store, admin.Options{
		Password:   cfg.AdminPassword,
		SessionTTL: cfg.AdminSessionTTL,
		IsSecure:   binder.IsSecure,
		LogLevel:   logLevel,
		Logger:     logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	g := gate.New(store, gate.Options{
		Binder: binder,
		Bypass: gate.AnyBypass(
			gate.PathPrefixBypass("/admin", "/healthz", "/readyz"),
			gate.AssetBypass(cfg.AssetPrefixes, cfg.AssetExtensions),
			adminHandler.IsAdministrator,
		),
		Logger: logger,
	})

	contentProxy, err := proxy.New(upstream, proxy.Options{
		StripCookies: []string{admin.SessionCookieName},
		Logger:       logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.HTTPLogging(logger, logAllowlist))
	r.Use(metrics.Middleware)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", adminHandler.HandleHealth)
	r.Get("/readyz", adminHandler.HandleReady)
	r.Mount("/admin", adminHandler.NewRouter())
	r.Handle("/*", g.Middleware(contentProxy))

	return &serverComponents{
		logger:       logger,
		logLevel:     logLevel,
		store:        store,
		registry:     registry,
		issuer:       svc,
		admin:        adminHandler,
		gate:         g,
		proxy:        contentProxy,
		mainRouter:   r,
		metricsRoute: metrics.HandlerFor(registry),
	}, nil
}

func createServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func createMetricsServer(cfg *config.Config, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &http.Server{
		Addr:              cfg.MetricsListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// startServerAndWaitForShutdown serves until SIGINT/SIGTERM, then drains
// in-flight requests within serverShutdownTimeout.
func startServerAndWaitForShutdown(logger *slog.Logger, server *http.Server) error {
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		logger.Info("Received signal, shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("Server shut down gracefully")
		return nil
	}
}
