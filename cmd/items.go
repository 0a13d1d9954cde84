package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/currency"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List tracked wishlist items",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openMigratedStore(ctx)
		if err != nil {
			return eris.Wrap(err, "items: open store")
		}
		defer st.Close() //nolint:errcheck

		items, err := st.ListItems(ctx)
		if err != nil {
			return eris.Wrap(err, "items: list")
		}

		if len(items) == 0 {
			fmt.Println("No items tracked yet; run `wishlist-cli sync` first")
			return nil
		}
		for _, it := range items {
			fmt.Printf("%-10d %s\n", it.AppID, it.Name)
		}
		fmt.Printf("%d items\n", len(items))
		return nil
	},
}

var itemsDeleteCmd = &cobra.Command{
	Use:   "delete <appid>",
	Short: "Delete an item and all its observations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		appID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "items delete: parse appid %q", args[0])
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return eris.Wrap(err, "items delete: open store")
		}
		defer st.Close() //nolint:errcheck

		deleted, err := st.DeleteItem(ctx, appID)
		if err != nil {
			return eris.Wrap(err, "items delete")
		}
		if !deleted {
			fmt.Printf("Item %d not found\n", appID)
			return nil
		}
		fmt.Printf("Deleted item %d and its observations\n", appID)
		return nil
	},
}

// formatPrice renders a nullable price with its currency symbol when the
// code is a known ISO unit.
func formatPrice(p *decimal.Decimal, code string) string {
	if p == nil {
		return "-"
	}
	if code == "" {
		return p.StringFixed(2)
	}
	if unit, err := currency.ParseISO(code); err == nil {
		return fmt.Sprintf("%v%s", currency.Symbol(unit), p.StringFixed(2))
	}
	return code + " " + p.StringFixed(2)
}

func init() {
	itemsCmd.AddCommand(itemsDeleteCmd)
	rootCmd.AddCommand(itemsCmd)
}
