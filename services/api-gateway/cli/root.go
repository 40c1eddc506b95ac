package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ramiqadoumi/go-content-flow/internal/cliutil"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "api-gateway",
	Short:        "GoContentFlow API Gateway — REST access to workflows, tasks and retrieval",
	SilenceUsage: true,
}

// Execute is the entry point called from cmd/api-gateway/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() { cliutil.InitConfig("api-gateway", cfgFile) })

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./api-gateway.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")
	cliutil.BindFlag("log_level", rootCmd.PersistentFlags(), "log-level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cliutil.NewInitCmd("api-gateway", defaultAPIGatewayYAML, &cfgFile))
	rootCmd.AddCommand(cliutil.NewVersionCmd("api-gateway"))
}
