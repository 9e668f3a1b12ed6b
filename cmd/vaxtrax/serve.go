package main

import (
	"context"
	"crypto/rand"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vaxtrax/internal/adapters/httpapi"
	"vaxtrax/internal/audit"
	"vaxtrax/internal/auth"
	"vaxtrax/internal/config"
	"vaxtrax/internal/core"
	"vaxtrax/internal/seed"
	"vaxtrax/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// app is a fully wired server without a listener.
type app struct {
	handler http.Handler
	service *core.Service
	closers []func(context.Context) error
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeStore(store core.PersistentStore) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}

func buildMetrics(cfg config.Config) (core.MetricsRecorder, http.Handler, error) {
	switch cfg.MetricsBackend {
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, nil, err
		}
		return rec, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
	case "expvar":
		return core.NewExpvarMetricsRecorder(""), expvar.Handler(), nil
	default:
		return nil, nil, nil
	}
}

func sessionSecret(cfg config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	logger.Warn("VAXTRAX_SESSION_SECRET unset; sessions will not survive a restart")
	return secret, nil
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		_ = a.Close(context.Background())
		return nil, err
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, "vaxtrax")
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, shutdownTracing)

	metrics, metricsHandler, err := buildMetrics(cfg)
	if err != nil {
		return fail(err)
	}

	store, err := core.OpenPersistentStore(cfg.StorageOptions(), nil)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, func(context.Context) error { closeStore(store); return nil })

	pipeline, err := audit.Open(ctx, cfg.AuditConfig(), logger, metrics)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, pipeline.Close)

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithTracer(telemetry.NewOTelTracer(nil)),
		core.WithAuditSink(pipeline.Sink()),
	}
	rng := seed.NewRand(cfg.DemoSeed)
	if cfg.DemoSeed == 0 {
		rng = seed.NewRand(uint64(time.Now().UnixNano()))
	}
	if cfg.Demo {
		opts = append(opts, core.WithTemperatureSampler(seed.NewSampler(rng)))
	}
	a.service = core.NewService(store, opts...)

	if cfg.Demo {
		if _, err := a.service.Bootstrap(ctx, seed.NewDemoProvider(rng)); err != nil {
			return fail(err)
		}
	}

	users, err := auth.NewDirectory(0, seed.DemoUsers()...)
	if err != nil {
		return fail(err)
	}
	secret, err := sessionSecret(cfg, logger)
	if err != nil {
		return fail(err)
	}
	sessions, err := auth.NewSessions(secret, cfg.SessionTTL, auth.WithSecureCookie(cfg.SessionSecure))
	if err != nil {
		return fail(err)
	}
	h := httpapi.NewHandler(a.service, users, sessions)
	h.Metrics = metricsHandler
	h.Logger = logger
	if cfg.Demo {
		h.Drift = seed.Drift(rng)
	}
	a.handler = h
	return a, nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "storage", cfg.StorageDriver, "audit", cfg.AuditDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	if cerr := a.Close(shutdownCtx); cerr != nil {
		logger.Warn("shutdown", "error", cerr)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
