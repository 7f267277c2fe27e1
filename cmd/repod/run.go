package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"repod/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run <key>",
	Short: "Execute one script from the configuration storage and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfgPath)
		if err != nil {
			return err
		}
		defer a.Stop(context.Background(), app.StopAppStop)

		ran, err := a.RunOnce(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ran {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to run\n", args[0])
		}
		return nil
	},
}
