package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"repod/internal/config"
	"repod/internal/task/scheduler"
)

var previewCount int

var crontabCmd = &cobra.Command{
	Use:   "crontab",
	Short: "Validate crontab entries and preview their next fire times",
	RunE: func(cmd *cobra.Command, _ []string) error {
		m := config.NewConfigManager(cfgPath)
		cfg, err := m.Load()
		if err != nil {
			return err
		}
		loc := time.Local
		if tz := cfg.Scheduler.Timezone; tz != "" {
			if loc, err = time.LoadLocation(tz); err != nil {
				return err
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tCRONEXP\tNEXT")
		invalid := 0
		for _, e := range cfg.Meta.Crontab {
			next, err := scheduler.NextFireTimes(e.CronExp, time.Now().In(loc), previewCount)
			if err != nil {
				invalid++
				fmt.Fprintf(w, "%s\t%s\tINVALID: %v\n", e.Key, e.CronExp, err)
				continue
			}
			for i, t := range next {
				if i == 0 {
					fmt.Fprintf(w, "%s\t%s\t%s\n", e.Key, e.CronExp, t.Format(time.RFC3339))
				} else {
					fmt.Fprintf(w, "\t\t%s\n", t.Format(time.RFC3339))
				}
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if invalid > 0 {
			return fmt.Errorf("%d invalid crontab entries (they are skipped at load time)", invalid)
		}
		return nil
	},
}

func init() {
	crontabCmd.Flags().IntVarP(&previewCount, "next", "n", 3, "number of fire times to preview")
}
