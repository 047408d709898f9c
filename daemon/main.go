package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantarax/relay/daemon/api/server"
	"github.com/quantarax/relay/daemon/config"
	"github.com/quantarax/relay/engine"
	"github.com/quantarax/relay/internal/observability"
)

func main() {
	restAddr := flag.String("rest-addr", "", "REST server address (overrides config default)")
	flag.Parse()

	logger := observability.NewLogger("relay-daemon", "1.0.0", os.Stdout)
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker("1.0.0")

	if shutdown, err := observability.InitTracing(context.Background(), "relay-daemon"); err == nil {
		defer shutdown(context.Background())
	}

	logger.Info("relay daemon starting")

	cfg, err := config.LoadConfig("")
	if err != nil {
		logger.Fatal(err, "failed to load config")
	}
	if *restAddr != "" {
		cfg.RESTAddress = *restAddr
	}
	logger.Info("configuration loaded")

	eng := engine.NewEngine(logger)
	eng.SetMetrics(metrics)

	healthChecker.RegisterCheck("rest_server", func(ctx context.Context) observability.ComponentHealth {
		return observability.ComponentHealth{Status: observability.HealthStatusOK, Message: "serving on " + cfg.RESTAddress}
	})

	mux := http.NewServeMux()
	server.NewDaemonAPIServer(eng).RegisterHTTP(mux)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", healthChecker.Handler())

	httpServer := &http.Server{Addr: cfg.RESTAddress, Handler: mux}
	go func() {
		logger.Info("REST+SSE control plane listening on " + cfg.RESTAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "REST server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)

	logger.Info("daemon stopped")
}
