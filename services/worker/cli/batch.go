package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-content-flow/internal/cliutil"
	"github.com/ramiqadoumi/go-content-flow/internal/wiring"
	"github.com/ramiqadoumi/go-content-flow/services/worker"
	"github.com/ramiqadoumi/go-content-flow/services/worker/config"
)

var batchFile string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the article workflow for every topic in a YAML file",
	Long: `Run the article workflow once per topic listed in a YAML file, in order,
and print the aggregate result as JSON. Ctrl-C stops between topics.

  topics:
    - topic: Go generics
      tags: [go, generics]`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "topics.yaml", "YAML file listing topics")
}

func runBatch(cmd *cobra.Command, _ []string) error {
	topics, err := worker.LoadTopics(batchFile)
	if err != nil {
		return err
	}

	cfg := config.Load(viper.GetViper())
	logger := cliutil.BuildLogger(cfg.LogLevel, "worker-batch")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := wiring.Build(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	res, runErr := app.Batch.Run(ctx, topics)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return runErr
}
