package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/report"
	"github.com/sells-group/ads-insights/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export campaign performance to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")
		out, _ := cmd.Flags().GetString("out")

		rng := model.TrailingDays(time.Now(), cfg.Sync.DefaultDays)
		if start != "" || end != "" {
			r, err := flagRange(start, end)
			if err != nil {
				return err
			}
			rng = *r
		}

		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := st.QueryRows(ctx, store.RowFilter{Range: rng})
		if err != nil {
			return eris.Wrap(err, "report: query rows")
		}
		rep, err := report.Build(rows, rng)
		if err != nil {
			return err
		}
		if err := rep.Write(out); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Wrote %s: %d campaigns, %d days (%s to %s)\n",
			out, len(rep.Campaigns), len(rep.Daily), rng.Since(), rng.Until())
		return nil
	},
}

func init() {
	reportCmd.Flags().String("start", "", "first day (YYYY-MM-DD)")
	reportCmd.Flags().String("end", "", "last day (YYYY-MM-DD)")
	reportCmd.Flags().String("out", "ads-report.xlsx", "output file")
	rootCmd.AddCommand(reportCmd)
}
