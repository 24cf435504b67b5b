package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	timeout = defaultStopTimeout
)

var rootCmd = &cobra.Command{
	Use:   "distask",
	Short: "DisTask notification engine",
	Long: `distask delivers due-date reminders, escalations, snoozed reminders
and channel digests for DisTask boards.

Run without a subcommand to start the service.`,
	SilenceUsage: true,
	RunE:         runService,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config file (json or yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "stop-timeout", defaultStopTimeout, "graceful shutdown deadline")

	rootCmd.AddCommand(runCmd, migrateCmd, checkConfigCmd, tickCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
