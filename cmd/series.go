package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pricewatch/wishlist-cli/internal/model"
	"github.com/pricewatch/wishlist-cli/internal/series"
)

var (
	seriesPeriod string
	seriesJSON   bool
)

var seriesCmd = &cobra.Command{
	Use:   "series <appid>",
	Short: "Print an item's windowed price series",
	Long: `Print the observations inside the selected display window, opened by an
anchor point that carries the last known price into the window start. The
series is what the chart frontend renders.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		appID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "series: parse appid %q", args[0])
		}
		period, err := model.ParsePeriod(seriesPeriod)
		if err != nil {
			return eris.Wrap(err, "series")
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return eris.Wrap(err, "series: open store")
		}
		defer st.Close() //nolint:errcheck

		res, err := series.New(st).Window(ctx, appID, period, time.Now().UTC())
		if err != nil {
			return eris.Wrap(err, "series")
		}

		if seriesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(res), "series: encode")
		}

		switch res.Status {
		case series.StatusNoObservations:
			fmt.Printf("Item %d has no observations\n", appID)
			return nil
		case series.StatusNoPrices:
			fmt.Printf("No prices available for item %d in window %s\n", appID, period)
			return nil
		}
		for _, p := range res.Points {
			marker := " "
			if p.Anchor {
				marker = "*"
			}
			fmt.Printf("%s %s  %s\n", marker,
				p.ObservedAt.Format("2006-01-02 15:04:05"),
				formatPrice(p.Price, p.Currency))
		}
		fmt.Printf("%d points (* = window anchor)\n", len(res.Points))
		return nil
	},
}

func init() {
	seriesCmd.Flags().StringVar(&seriesPeriod, "period", "1y", "display window: 3m, 6m, 1y or all")
	seriesCmd.Flags().BoolVar(&seriesJSON, "json", false, "emit JSON instead of a table")
	rootCmd.AddCommand(seriesCmd)
}
