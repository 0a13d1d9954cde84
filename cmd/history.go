package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	historyAppID  int64
	historyMonths int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Backfill price history from the deal aggregator",
	Long: `Fetch historical price-change events for catalog items from
IsThereAnyDeal and merge them into the price series. Each event keeps its
own server-provided timestamp. Items unknown to the aggregator are skipped
without aborting the cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "history"))

		if cfg.ITAD.APIKey == "" {
			return eris.New("history: itad.api_key is not configured")
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return eris.Wrap(err, "history: open store")
		}
		defer st.Close() //nolint:errcheck

		if historyMonths > 0 {
			cfg.Sync.HistoryMonths = historyMonths
		}
		sy := newSyncer(st)

		if historyAppID != 0 {
			r, err := sy.SyncHistoryForItem(ctx, historyAppID)
			if err != nil {
				return eris.Wrap(err, "history")
			}
			printProgress(1, 1, r)
			return nil
		}

		log.Info("starting history backfill", zap.Int("months", cfg.Sync.HistoryMonths))
		summary, err := sy.SyncHistory(ctx, printProgress)
		if err != nil {
			return eris.Wrap(err, "history")
		}

		fmt.Printf("Processed %d/%d items, %d price changes saved\n",
			summary.Successful, summary.Total, summary.Records)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int64Var(&historyAppID, "appid", 0, "backfill a single app instead of the whole catalog")
	historyCmd.Flags().IntVar(&historyMonths, "months", 0, "months of history to request (default from config)")
	rootCmd.AddCommand(historyCmd)
}
