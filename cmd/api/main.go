package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/dermafusion/internal/adapters/http"
	"github.com/kirillkom/dermafusion/internal/bootstrap"
	"github.com/kirillkom/dermafusion/internal/config"
	"github.com/kirillkom/dermafusion/internal/observability/logging"
	"github.com/kirillkom/dermafusion/internal/observability/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := config.Load()
	logging.Configure("api", cfg.LogLevel, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithBreakerObserver(httpMetrics.RecordBreakerTransition),
		bootstrap.WithBackendFailureObserver(httpMetrics.RecordBackendFailure),
	)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, app.DiagnosisUC, app.QueryTypeUC, app.LabelsUC,
		httpadapter.WithMetrics(httpMetrics),
		httpadapter.WithBreakerStates(app.BreakerStates),
	).Handler()

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		log.Fatalf("api listen error: %v", err)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	writeTimeout := 60 * time.Second
	if requestTimeout := time.Duration(cfg.APIRequestTimeoutSec) * time.Second; requestTimeout+10*time.Second > writeTimeout {
		writeTimeout = requestTimeout + 10*time.Second
	}
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "max_connections", cfg.APIMaxConnections, "version", cfg.AppVersion)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
