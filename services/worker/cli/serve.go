package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-content-flow/internal/cliutil"
	"github.com/ramiqadoumi/go-content-flow/internal/kafka"
	redisstore "github.com/ramiqadoumi/go-content-flow/internal/redis"
	"github.com/ramiqadoumi/go-content-flow/internal/wiring"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
	"github.com/ramiqadoumi/go-content-flow/services/worker"
	"github.com/ramiqadoumi/go-content-flow/services/worker/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume article requests from Kafka",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("group-id", "content-workers", "Kafka consumer group")
	serveCmd.Flags().Duration("claim-ttl", 24*time.Hour, "how long a processed request ID is remembered")
	serveCmd.Flags().String("metrics-addr", ":9091", "Prometheus metrics server address")

	cliutil.BindFlag("group_id", serveCmd.Flags(), "group-id")
	cliutil.BindFlag("claim_ttl", serveCmd.Flags(), "claim-ttl")
	cliutil.BindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	workerID := "worker-" + uuid.New().String()[:8]
	logger := cliutil.BuildLogger(cfg.LogLevel, "worker").With(slog.String("worker_id", workerID))

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return errors.New("kafka_brokers is required to serve")
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "worker", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	app, err := wiring.Build(context.Background(), cfg.Config, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	consumer := kafka.NewConsumer(brokers, kafka.TopicArticleRequests, cfg.GroupID, logger)
	defer func() { _ = consumer.Close() }()

	opts := []worker.Option{worker.WithLogger(logger)}
	if app.Redis != nil && cfg.ClaimTTL > 0 {
		opts = append(opts, worker.WithClaims(redisstore.NewLeaser(app.Redis, "contentflow:claims", cfg.ClaimTTL)))
	}
	w := worker.NewWorker(workerID, consumer, app.Batch, opts...)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger, app.Ready)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down, interrupting in-flight batches...")
		runCancel()
	}()

	logger.Info("worker starting",
		slog.String("topic", kafka.TopicArticleRequests),
		slog.String("group_id", cfg.GroupID),
		slog.Duration("batch_delay", cfg.BatchDelay),
	)

	if err := w.Run(runCtx); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	w.Wait()
	logger.Info("stopped cleanly")
	return nil
}
