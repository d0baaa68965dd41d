package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mathcoach",
	Short: "AI maths coach for Irish secondary-school students",
	Long: "Smart Math Coach asks Junior Cycle and Leaving Cert maths questions,\n" +
		"checks your answers and explains the working.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd)
	},
}

// Execute runs the root command. ctx is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (default $XDG_CONFIG_HOME/mathcoach/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite call log (overrides MATHCOACH_DB env var)")
	rootCmd.Flags().String("level", "", "Starting level: junior or leaving")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}
