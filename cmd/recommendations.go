package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/store"
)

var recommendationsCmd = &cobra.Command{
	Use:     "recommendations",
	Aliases: []string{"recs"},
	Short:   "List campaign recommendations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		campaign, _ := cmd.Flags().GetString("campaign")
		priority, _ := cmd.Flags().GetString("priority")
		pending, _ := cmd.Flags().GetBool("pending")
		limit, _ := cmd.Flags().GetInt("limit")

		sev := model.Severity(priority)
		if priority != "" && !sev.Valid() {
			return eris.Errorf("recommendations: unknown priority %q", priority)
		}

		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.RecommendationFilter{CampaignID: campaign, Priority: sev, Limit: limit}
		if pending {
			no := false
			filter.Implemented = &no
			filter.Dismissed = &no
		}
		recs, err := st.QueryRecommendations(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "recommendations list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No recommendations found.")
			return nil
		}
		formatRecommendations(os.Stdout, recs)
		return nil
	},
}

func init() {
	recommendationsCmd.Flags().String("campaign", "", "filter by campaign id")
	recommendationsCmd.Flags().String("priority", "", "filter by priority (low, medium, high, critical)")
	recommendationsCmd.Flags().Bool("pending", false, "only recommendations neither implemented nor dismissed")
	recommendationsCmd.Flags().Int("limit", 50, "maximum recommendations to show")
	rootCmd.AddCommand(recommendationsCmd)
}
