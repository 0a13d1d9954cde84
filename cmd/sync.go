package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricewatch/wishlist-cli/internal/model"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the wishlist and current prices",
	Long: `Fetch the account's wishlist, look up the current storefront price for
each item, and record one observation per item under a shared batch
timestamp. New wishlist items are added to the catalog on first sight.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "sync"))

		st, err := openMigratedStore(ctx)
		if err != nil {
			return eris.Wrap(err, "sync: open store")
		}
		defer st.Close() //nolint:errcheck

		sy := newSyncer(st)
		log.Info("starting wishlist sync")

		summary, err := sy.SyncWishlist(ctx, printProgress)
		if err != nil {
			return eris.Wrap(err, "sync")
		}

		fmt.Printf("Synced %d/%d items (batch %s)\n",
			summary.Successful, summary.Total,
			summary.BatchTime.Format("2006-01-02 15:04:05"))
		return nil
	},
}

// printProgress writes one line per processed item.
func printProgress(completed, total int, r model.ItemResult) {
	status := "ok"
	if !r.Success {
		status = "skipped"
	}
	msg := r.Message
	if msg == "" {
		msg = r.Name
	}
	fmt.Printf("[%d/%d] %s: %s\n", completed, total, status, msg)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
