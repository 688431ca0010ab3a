package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/multierr"

	"github.com/angelmondragon/smartbill-sync/api/controllers"
	"github.com/angelmondragon/smartbill-sync/api/routes"
	"github.com/angelmondragon/smartbill-sync/internal/invoicing"
	"github.com/angelmondragon/smartbill-sync/pkg/config"
	"github.com/angelmondragon/smartbill-sync/pkg/instance"
	"github.com/angelmondragon/smartbill-sync/pkg/logger"
	"github.com/angelmondragon/smartbill-sync/pkg/metrics"
	"github.com/angelmondragon/smartbill-sync/pkg/redis"
	"github.com/angelmondragon/smartbill-sync/pkg/smartbill"
	"github.com/angelmondragon/smartbill-sync/pkg/vtex"
)

const (
	shutdownTimeout        = 15 * time.Second
	defaultUpstreamTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "smartbill-sync"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "smartbill-sync",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Fields: map[string]any{
			"env":      cfg.App.Env,
			"instance": instance.GetID(),
			"account":  cfg.VTEX.Account,
		},
	})

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		redisClient *redis.Client
		guard       invoicing.InvoiceGuard
		idemStore   redis.IdempotencyStore
		readiness   = map[string]controllers.Pinger{"redis": nil}
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		guard = redisClient
		idemStore = redisClient
		readiness["redis"] = redisClient
	} else {
		logg.Warn(ctx, "redis disabled, invoice locking and idempotency replay are off")
	}

	vtexClient, err := vtex.NewClient(cfg.VTEX,
		vtex.WithLogger(logg),
		vtex.WithHTTPClient(tracedClient(cfg.VTEX.Timeout)),
	)
	if err != nil {
		logg.Error(ctx, "failed to create vtex client", err)
		os.Exit(1)
	}
	smartbillClient := smartbill.NewClient(cfg.SmartBill,
		smartbill.WithLogger(logg),
		smartbill.WithHTTPClient(tracedClient(cfg.SmartBill.Timeout)),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	invoiceService, err := invoicing.NewService(invoicing.ServiceParams{
		Orders:     vtexClient,
		Customers:  vtexClient,
		Catalog:    vtexClient,
		Provider:   smartbillClient,
		Settings:   invoicing.NewStaticSettings(cfg.SmartBill),
		Guard:      guard,
		Metrics:    metrics.NewInvoiceMetrics(registry),
		Logger:     logg,
		Invoice:    cfg.Invoice,
		InvoiceURL: cfg.ShowInvoiceURL,
	})
	if err != nil {
		logg.Error(ctx, "failed to create invoicing service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithField(ctx, "addr", addr)

	router := routes.NewRouter(
		cfg,
		logg,
		idemStore,
		readiness,
		invoiceService,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	)
	server := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(router, "smartbill-sync"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	shutdownErr = multierr.Append(shutdownErr, server.Shutdown(shutdownCtx))
	if redisClient != nil {
		shutdownErr = multierr.Append(shutdownErr, redisClient.Close())
	}
	if shutdownErr != nil {
		logg.Error(shutdownCtx, "shutdown incomplete", shutdownErr)
		exitCode = 1
	}
	logg.Info(shutdownCtx, "api server stopped")

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// tracedClient propagates trace context on calls to VTEX and SmartBill.
func tracedClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
