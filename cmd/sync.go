package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/pipeline"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync insights for one or all configured ad accounts",
	Long:  "Fetches daily campaign insights, stores them, raises alerts and writes recommendations. Without --account every configured account is synced.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		account, _ := cmd.Flags().GetString("account")
		since, _ := cmd.Flags().GetString("since")
		until, _ := cmd.Flags().GetString("until")

		rng, err := flagRange(since, until)
		if err != nil {
			return err
		}

		accounts := cfg.Meta.Accounts
		if account != "" {
			accounts = []string{account}
		}
		if len(accounts) == 0 {
			return eris.New("sync: --account or meta.accounts is required")
		}

		env, err := initSyncEnv(ctx, "sync", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		var failed int
		for _, a := range accounts {
			run, err := env.Pipeline.Run(ctx, pipeline.SyncRequest{AccountID: a, Range: rng})
			if run != nil {
				formatSyncRun(os.Stdout, run)
			}
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "sync %s: %v\n", a, err)
			}
		}
		if failed > 0 {
			return eris.Errorf("sync: %d of %d accounts failed", failed, len(accounts))
		}
		return nil
	},
}

// flagRange parses --since/--until. Both empty means the default window.
func flagRange(since, until string) (*model.DateRange, error) {
	if since == "" && until == "" {
		return nil, nil
	}
	if since == "" || until == "" {
		return nil, eris.New("--since and --until must be set together")
	}
	r, err := model.ParseDateRange(since, until)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func init() {
	syncCmd.Flags().String("account", "", "ad account id (default: all configured accounts)")
	syncCmd.Flags().String("since", "", "first day to sync (YYYY-MM-DD)")
	syncCmd.Flags().String("until", "", "last day to sync (YYYY-MM-DD)")
	rootCmd.AddCommand(syncCmd)
}
