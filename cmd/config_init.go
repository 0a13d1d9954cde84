package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pricewatch/wishlist-cli/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.yaml with the built-in defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		const path = "config.yaml"

		if !configForce {
			if _, err := os.Stat(path); err == nil {
				return eris.Errorf("config init: %s already exists (use --force to overwrite)", path)
			}
		}

		out, err := yaml.Marshal(config.Default())
		if err != nil {
			return eris.Wrap(err, "config init: marshal defaults")
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return eris.Wrapf(err, "config init: write %s", path)
		}

		fmt.Printf("Wrote %s; set steam.api_key, steam.steam_id and itad.api_key\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config.yaml")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
