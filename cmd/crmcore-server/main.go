// Command crmcore-server runs the CRM admin console API server.
package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crmcore/internal/adapters/httpapi"
	"crmcore/internal/blob"
	"crmcore/internal/core"
	"crmcore/internal/infra/logging"
)

func main() {
	debug := envBool("CRMCORE_DEBUG")
	logger, err := logging.New(debug)
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *logging.ZapLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := core.NewDefaultRulesEngine()
	if envBool("CRMCORE_STRICT_PIPELINE") {
		engine = core.NewStrictRulesEngine()
	}

	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		return err
	}

	avatars, err := blob.Open(ctx)
	if err != nil {
		return err
	}

	metrics, err := core.NewPrometheusMetricsRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.NewLoggingAuditRecorder(logger)),
	)

	if envBool("CRMCORE_SEED_DEMO") {
		if err := svc.SeedDemoData(ctx); err != nil {
			return err
		}
		logger.Info("demo data seeded")
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", httpapi.NewHandler(svc, avatars))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := os.Getenv("CRMCORE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func envBool(name string) bool {
	return strings.EqualFold(os.Getenv(name), "true") || os.Getenv(name) == "1"
}
