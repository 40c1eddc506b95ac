package cli

import (
	"context"
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
	redisstore "github.com/ramiqadoumi/go-content-flow/internal/redis"
	"github.com/ramiqadoumi/go-content-flow/internal/wiring"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
	"github.com/ramiqadoumi/go-content-flow/services/drainer"
	"github.com/ramiqadoumi/go-content-flow/services/drainer/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduled drainer",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("drain-schedule", drainer.DefaultSchedule, "cron schedule of drain ticks")
	serveCmd.Flags().Duration("stale-after", drainer.DefaultStaleAfter, "fail running tasks older than this")
	serveCmd.Flags().Duration("leader-ttl", 90*time.Second, "leader lease TTL")
	serveCmd.Flags().String("metrics-addr", ":9093", "Prometheus metrics server address")

	cliutil.BindFlag("drain_schedule", serveCmd.Flags(), "drain-schedule")
	cliutil.BindFlag("stale_after", serveCmd.Flags(), "stale-after")
	cliutil.BindFlag("leader_ttl", serveCmd.Flags(), "leader-ttl")
	cliutil.BindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	instanceID := "drainer-" + uuid.New().String()[:8]
	logger := cliutil.BuildLogger(cfg.LogLevel, "drainer").With(slog.String("instance_id", instanceID))

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "drainer", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	app, err := wiring.Build(context.Background(), cfg.Config, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	opts := []drainer.Option{
		drainer.WithInstanceID(instanceID),
		drainer.WithStaleAfter(cfg.StaleAfter),
		drainer.WithLogger(logger),
	}
	if app.Redis != nil {
		opts = append(opts, drainer.WithLeader(redisstore.NewLeaser(app.Redis, "contentflow:leader", cfg.LeaderTTL)))
	} else {
		logger.Warn("redis_addr not set, running without leader election")
	}
	svc := drainer.NewService(app.Admin, app.Drainer, opts...)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger, app.Ready)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down...")
		runCancel()
	}()

	logger.Info("drainer starting",
		slog.String("schedule", cfg.DrainSchedule),
		slog.Duration("stale_after", cfg.StaleAfter),
	)
	if err := svc.Run(runCtx, cfg.DrainSchedule); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
