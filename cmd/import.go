package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ads-insights/internal/fetcher"
	"github.com/sells-group/ads-insights/internal/pipeline"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import insight rows from a CSV export",
	Long:  "Reads daily campaign rows from a CSV export and runs them through the same derive, store, classify and recommend cycle as a sync. No Meta API access is needed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("csv")
		account, _ := cmd.Flags().GetString("account")
		if path == "" {
			return eris.New("import: --csv is required")
		}

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "import: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		rows, err := fetcher.ReadInsightsCSV(ctx, f)
		if err != nil {
			return eris.Wrapf(err, "import: read %s", path)
		}
		if len(rows) == 0 {
			return eris.Errorf("import: %s has no rows", path)
		}

		env, err := initSyncEnv(ctx, "import", fetcher.NewFileSource(rows))
		if err != nil {
			return err
		}
		defer env.Close()

		span := fetcher.Span(rows)
		zap.L().Info("import: loaded csv",
			zap.String("path", path),
			zap.Int("rows", len(rows)),
			zap.String("since", span.Since()),
			zap.String("until", span.Until()),
		)

		run, err := env.Pipeline.Run(ctx, pipeline.SyncRequest{AccountID: account, Range: &span})
		if run != nil {
			formatSyncRun(os.Stdout, run)
		}
		return err
	},
}

func init() {
	importCmd.Flags().String("csv", "", "path to an insights CSV export (required)")
	_ = importCmd.MarkFlagRequired("csv")
	importCmd.Flags().String("account", "csv-import", "account label recorded on the sync run")
	rootCmd.AddCommand(importCmd)
}
