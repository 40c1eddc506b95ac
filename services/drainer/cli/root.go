package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ramiqadoumi/go-content-flow/internal/cliutil"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "drainer",
	Short:        "GoContentFlow Drainer — executes queued tasks on a schedule",
	SilenceUsage: true,
}

// Execute is the entry point called from cmd/drainer/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() { cliutil.InitConfig("drainer", cfgFile) })

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./drainer.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")
	cliutil.BindFlag("log_level", rootCmd.PersistentFlags(), "log-level")
	cliutil.AddCommonFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cliutil.NewInitCmd("drainer", defaultDrainerYAML, &cfgFile))
	rootCmd.AddCommand(cliutil.NewVersionCmd("drainer"))
}
