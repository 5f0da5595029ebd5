package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/ads-insights/internal/monitoring"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete data older than the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if days, _ := cmd.Flags().GetInt("days"); days > 0 {
			cfg.Retention.Days = days
		}
		if err := cfg.Validate("cleanup"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sched := monitoring.NewScheduler(nil, st, nil, nil, cfg)
		res, err := sched.Sweep(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Deleted %d rows, %d alerts, %d recommendations, %d sync runs older than %d days\n",
			res.Rows, res.Alerts, res.Recommendations, res.SyncRuns, cfg.Retention.Days)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Int("days", 0, "retention window in days (default from config)")
	rootCmd.AddCommand(cleanupCmd)
}
