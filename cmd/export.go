package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/pricewatch/wishlist-cli/internal/model"
	"github.com/pricewatch/wishlist-cli/internal/store"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export price history to a spreadsheet",
	Long:  "Write one worksheet per tracked item with its full price series, plus an overview sheet of the catalog.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openMigratedStore(ctx)
		if err != nil {
			return eris.Wrap(err, "export: open store")
		}
		defer st.Close() //nolint:errcheck

		items, err := st.ListItems(ctx)
		if err != nil {
			return eris.Wrap(err, "export: list items")
		}
		if len(items) == 0 {
			return eris.New("export: nothing to export, catalog is empty")
		}

		file := xlsx.NewFile()

		overview, err := file.AddSheet("Items")
		if err != nil {
			return eris.Wrap(err, "export: add overview sheet")
		}
		header := overview.AddRow()
		header.AddCell().Value = "App ID"
		header.AddCell().Value = "Name"
		header.AddCell().Value = "Observations"

		for _, it := range items {
			obs, err := st.ListObservations(ctx, store.ObservationFilter{AppID: it.AppID})
			if err != nil {
				return eris.Wrapf(err, "export: list observations for item %d", it.AppID)
			}

			row := overview.AddRow()
			row.AddCell().SetInt64(it.AppID)
			row.AddCell().Value = it.Name
			row.AddCell().SetInt(len(obs))

			sheet, err := file.AddSheet(sheetName(it))
			if err != nil {
				return eris.Wrapf(err, "export: add sheet for item %d", it.AppID)
			}
			h := sheet.AddRow()
			h.AddCell().Value = "Observed At"
			h.AddCell().Value = "Price"
			h.AddCell().Value = "Currency"
			h.AddCell().Value = "Source"
			for _, o := range obs {
				r := sheet.AddRow()
				r.AddCell().Value = o.ObservedAt.Format("2006-01-02 15:04:05")
				if o.Price != nil {
					r.AddCell().Value = o.Price.StringFixed(2)
				} else {
					r.AddCell().Value = ""
				}
				r.AddCell().Value = o.Currency
				r.AddCell().Value = string(o.Source)
			}
		}

		if err := file.Save(exportOut); err != nil {
			return eris.Wrapf(err, "export: save %s", exportOut)
		}
		fmt.Printf("Exported %d items to %s\n", len(items), exportOut)
		return nil
	},
}

// sheetName builds a worksheet title within the 31-char Excel limit.
func sheetName(it model.Item) string {
	name := it.Name
	for _, c := range []string{"/", "\\", "?", "*", "[", "]", ":"} {
		name = strings.ReplaceAll(name, c, " ")
	}
	suffix := fmt.Sprintf(" (%d)", it.AppID)
	if max := 31 - len(suffix); len(name) > max {
		name = name[:max]
	}
	return name + suffix
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "wishlist.xlsx", "output file path")
	rootCmd.AddCommand(exportCmd)
}
