package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-content-flow/internal/cliutil"
	"github.com/ramiqadoumi/go-content-flow/internal/wiring"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
	"github.com/ramiqadoumi/go-content-flow/services/api-gateway/config"
	"github.com/ramiqadoumi/go-content-flow/services/api-gateway/handler"
	"github.com/ramiqadoumi/go-content-flow/services/api-gateway/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	cliutil.AddCommonFlags(serveCmd.Flags())

	cliutil.BindFlag("http_port", serveCmd.Flags(), "http-port")
	cliutil.BindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := cliutil.BuildLogger(cfg.LogLevel, "api-gateway")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "api-gateway", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	app, err := wiring.Build(context.Background(), cfg.Config, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	rest := handler.NewREST(handler.Deps{
		Workflows: app.Orchestrator,
		Batch:     app.Batch,
		Tasks:     app.Admin,
		Drainer:   app.Drainer,
		RAG:       app.RAG,
		Knowledge: app.Knowledge,
		Producer:  app.Producer,
		Ready:     app.Ready,
	}, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1MB limit
	rest.Routes(r)

	// Workflows run synchronously and call the model several times.
	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger, app.Ready)

	go func() {
		logger.Info("api-gateway HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
