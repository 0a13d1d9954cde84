package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pricewatch/wishlist-cli/internal/store"
)

var observationsAppID int64

var observationsCmd = &cobra.Command{
	Use:   "observations",
	Short: "List price observations",
	Long: `List price observations. With --appid the item's series is printed in
chronological order; without it the full history across all items is
printed most recent first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openMigratedStore(ctx)
		if err != nil {
			return eris.Wrap(err, "observations: open store")
		}
		defer st.Close() //nolint:errcheck

		obs, err := st.ListObservations(ctx, store.ObservationFilter{AppID: observationsAppID})
		if err != nil {
			return eris.Wrap(err, "observations: list")
		}

		if len(obs) == 0 {
			fmt.Println("No observations")
			return nil
		}
		for _, o := range obs {
			fmt.Printf("%s  %-10d %-8s %s\n",
				o.ObservedAt.Format("2006-01-02 15:04:05"),
				o.AppID, o.Source, formatPrice(o.Price, o.Currency))
		}
		fmt.Printf("%d observations\n", len(obs))
		return nil
	},
}

var observationsDeleteBatchCmd = &cobra.Command{
	Use:   "delete-batch <timestamp>",
	Short: "Delete all observations sharing a batch timestamp",
	Long: `Delete every observation stamped with the given batch timestamp
(RFC 3339, e.g. 2026-08-01T17:00:00Z). Only exact matches are removed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ts, err := time.Parse(time.RFC3339, args[0])
		if err != nil {
			return eris.Wrapf(err, "observations delete-batch: parse timestamp %q", args[0])
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return eris.Wrap(err, "observations delete-batch: open store")
		}
		defer st.Close() //nolint:errcheck

		deleted, err := st.DeleteObservationsByBatch(ctx, ts)
		if err != nil {
			return eris.Wrap(err, "observations delete-batch")
		}
		if !deleted {
			fmt.Println("No observations matched that batch timestamp")
			return nil
		}
		fmt.Printf("Deleted batch %s\n", ts.UTC().Format(time.RFC3339))
		return nil
	},
}

func init() {
	observationsCmd.Flags().Int64Var(&observationsAppID, "appid", 0, "restrict to one item (chronological order)")
	observationsCmd.AddCommand(observationsDeleteBatchCmd)
	rootCmd.AddCommand(observationsCmd)
}
