// Package main provides the Parley API server implementation.
package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/parley/pkg/breaker"
	"github.com/dukex/parley/pkg/cmd"
	"github.com/dukex/parley/pkg/conversation"
	"github.com/dukex/parley/pkg/engine"
	"github.com/dukex/parley/pkg/eventbus"
	"github.com/dukex/parley/pkg/interpreter"
	"github.com/dukex/parley/pkg/metrics"
	"github.com/dukex/parley/pkg/notifier"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/dukex/parley/pkg/registry"
	"github.com/dukex/parley/pkg/resolver"
	"github.com/dukex/parley/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

const (
	shutdownTimeout = 10 * time.Second
	ackTimeout      = 5 * time.Second
)

type Config struct {
	DatabaseURL         string
	EventBus            string
	RedisURL            string
	InterpreterURL      string
	InterpreterProvider string
	InterpreterTimeout  time.Duration
	MinConfidence       float64
	AckWebhookURL       string
	Tracing             bool
}

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	prometheus  *prometheus.Registry
	handlers    *web.APIHandlers

	closers []func(ctx context.Context) error
}

// NewAPI opens every backing service and wires the engine, registry, resolver and
// conversation pipeline behind the HTTP handlers.
func NewAPI(ctx context.Context, log *slog.Logger, cfg Config) (*API, error) {
	a := &API{logger: log, prometheus: prometheus.NewRegistry()}

	a.prometheus.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := cmd.NewPersistence(ctx, log, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	a.persistence = store
	a.closers = append(a.closers, store.Close)

	bus, err := cmd.NewEventBus(cfg.EventBus, log)
	if err != nil {
		a.Close(ctx)

		return nil, err
	}

	a.eventBus = bus
	a.closers = append(a.closers, func(context.Context) error { return bus.Close() })

	tracer, shutdown, err := cmd.NewTracer(ctx, cfg.Tracing, "parley-api")
	if err != nil {
		a.Close(ctx)

		return nil, err
	}

	a.closers = append(a.closers, shutdown)

	breakerStore, closeStore, err := cmd.NewBreakerStore(cfg.RedisURL)
	if err != nil {
		a.Close(ctx)

		return nil, err
	}

	a.closers = append(a.closers, func(context.Context) error { return closeStore() })

	a.handlers = a.wire(cfg, tracer, breakerStore)

	deliverer := notifier.NewDeliverer(cfg.AckWebhookURL, ackTimeout, log)
	if err := deliverer.Register(bus); err != nil {
		a.Close(ctx)

		return nil, err
	}

	if err := bus.Subscribe(ctx); err != nil {
		a.Close(ctx)

		return nil, err
	}

	return a, nil
}

func (a *API) wire(cfg Config, tracer trace.Tracer, breakerStore breaker.Store) *web.APIHandlers {
	sink := metrics.NewPrometheus(a.prometheus)

	eng := engine.New(a.persistence, a.logger,
		engine.WithMetrics(sink),
		engine.WithPublisher(a.eventBus),
		engine.WithTracer(tracer),
	)

	definitions := registry.New(a.persistence.Definitions(), a.logger)
	res := resolver.New(a.persistence)

	gate := breaker.New(breakerStore, a.logger, breaker.WithMetrics(sink))
	interp := interpreter.NewGuarded(
		interpreter.NewHTTPClient(cfg.InterpreterURL, cfg.InterpreterTimeout),
		gate,
		cfg.InterpreterProvider,
		a.logger,
		interpreter.WithMetrics(sink),
		interpreter.WithTracer(tracer),
	)

	conv := conversation.New(conversation.Dependencies{
		Engine:      eng,
		Resolver:    res,
		Definitions: definitions,
		Interpreter: interp,
		Notifier:    notifier.New(a.eventBus, a.logger),
	}, a.logger, conversation.WithMinConfidence(cfg.MinConfidence))

	return web.NewAPIHandlers(eng, definitions, res, conv, registry.NewValidator())
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Parley API")
	})

	web.Routes(app, a.handlers, promhttp.HandlerFor(a.prometheus, promhttp.HandlerOpts{}))

	return app
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":" + strconv.Itoa(port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info("Shutting down Parley API")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return app.ShutdownWithContext(shutdownCtx)
	}
}

// Close releases backing services in reverse order of acquisition.
func (a *API) Close(ctx context.Context) {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}

	a.closers = nil

	if err := errors.Join(errs...); err != nil {
		a.logger.ErrorContext(ctx, "Failed to close API resources", "error", err)
	}
}
