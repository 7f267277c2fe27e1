package main

import (
	"os"

	"github.com/spf13/cobra"

	logx "repod/pkg/logx"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "repod",
	Short:         "Repository server scheduler and script runner",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./repod.yaml", "path to config file (yaml or json)")
	rootCmd.AddCommand(serveCmd, runCmd, crontabCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// The config may not have loaded, so report through a bootstrap logger.
		logx.NewConsole("INFO").Error("fatal", logx.String("cmd", "repod"), logx.Err(err))
		os.Exit(1)
	}
}
