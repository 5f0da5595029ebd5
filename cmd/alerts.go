package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ads-insights/internal/store"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List anomaly alerts",
	Long:  "Lists unacknowledged alerts, newest first. Use --all to include acknowledged ones.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		all, _ := cmd.Flags().GetBool("all")
		campaign, _ := cmd.Flags().GetString("campaign")
		limit, _ := cmd.Flags().GetInt("limit")

		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.AlertFilter{CampaignID: campaign, Limit: limit}
		if !all {
			unacked := false
			filter.Acknowledged = &unacked
		}
		alerts, err := st.QueryAlerts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "alerts list")
		}
		if len(alerts) == 0 {
			fmt.Fprintln(os.Stderr, "No alerts found.")
			return nil
		}
		formatAlerts(os.Stdout, alerts)
		return nil
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.AcknowledgeAlert(ctx, args[0]); err != nil {
			return eris.Wrap(err, "alerts ack")
		}
		fmt.Fprintf(os.Stdout, "Acknowledged %s\n", args[0])
		return nil
	},
}

func init() {
	alertsCmd.Flags().Bool("all", false, "include acknowledged alerts")
	alertsCmd.Flags().String("campaign", "", "filter by campaign id")
	alertsCmd.Flags().Int("limit", 50, "maximum alerts to show")
	alertsCmd.AddCommand(alertsAckCmd)
	rootCmd.AddCommand(alertsCmd)
}
