// Command smsboxd runs the smsbox message core with an ops HTTP API and a
// loopback radio.
//
// Usage:
//
//	smsboxd -config smsbox.yaml
//
// Operational metrics are served in Prometheus format on /metrics. With
// service.telemetry enabled the service, store and archive record OpenTelemetry
// spans and metrics through the global providers. smsboxd installs no
// exporter, so these reach a backend only when the process is built with one
// registered via otel.SetTracerProvider and otel.SetMeterProvider.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rbaliyan/smsbox"
	"github.com/rbaliyan/smsbox/internal/config"
	"github.com/rbaliyan/smsbox/internal/httpapi"
	"github.com/rbaliyan/smsbox/internal/logger"
	"github.com/rbaliyan/smsbox/internal/radio"
	"github.com/rbaliyan/smsbox/retry"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "smsboxd:", err)
		os.Exit(2)
	}
	log := logger.Initialize(cfg.Log.Level, cfg.Log.JSON)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("smsboxd stopped", "error", err)
		os.Exit(1)
	}
}

// run wires the daemon and blocks until ctx ends or a component fails.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	var cl closers
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := cl.close(closeCtx); err != nil {
			log.Warn("cleanup failed", "error", err)
		}
	}()

	st, err := openStore(*cfg, log, &cl)
	if err != nil {
		return err
	}
	rdb, err := openRedis(ctx, cfg.Redis, &cl)
	if err != nil {
		return err
	}
	archiver, err := openArchiver(ctx, *cfg, log, &cl)
	if err != nil {
		return err
	}

	connectRetry := retry.DefaultConfig()
	connectRetry.MaxRetries = cfg.Service.ConnectRetries
	connectRetry.InitialBackoff = 500 * time.Millisecond

	lb := radio.New(radio.WithLogger(log))
	opts := []smsbox.Option{
		smsbox.WithStore(st),
		smsbox.WithRadio(lb),
		smsbox.WithLogger(log),
		smsbox.WithServiceName(cfg.Service.Name),
		smsbox.WithContactResolver(contactResolver(rdb, cfg.Redis, log)),
		smsbox.WithArchiver(archiver),
		smsbox.WithRetentionCap(cfg.Service.RetentionCap),
		smsbox.WithQueueSize(cfg.Service.QueueSize),
		smsbox.WithShutdownTimeout(cfg.Service.ShutdownTimeout),
		smsbox.WithConnectRetry(connectRetry),
		smsbox.WithOTel(cfg.Service.Telemetry),
	}
	if rdb != nil && cfg.Redis.Events {
		opts = append(opts, smsbox.WithRedisClient(rdb))
	}

	svc, err := smsbox.NewService(opts...)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	if err := svc.Connect(ctx); err != nil {
		return err
	}
	lb.Attach(svc.Submit)

	if err := svc.Submit(ctx, smsbox.BootCompleted{}); err != nil {
		log.Warn("failed to submit boot event", "error", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.New(svc, httpapi.WithLogger(log), httpapi.WithJWTKey(cfg.HTTP.JWTKey)),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http api listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := lb.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("radio close: %w", err))
		}
		if err := svc.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("service close: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
