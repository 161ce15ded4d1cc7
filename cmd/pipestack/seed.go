package main

import (
	"github.com/spf13/cobra"

	"arc-framework/pipestack/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the source database and prepare the warehouse schemas",
	Long: `Seed recreates the source tables and inserts a reproducible data set of
users, products, orders and order items, then recreates the warehouse's
raw_ingest and raw_current schemas.

Connection settings come from the config file and the SOURCE_DB_* and
DWH_DB_* environment variables. Exits 3 when a database cannot be reached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return seed.NewSeeder(cfg, cmd.OutOrStdout()).Run(cmd.Context())
	},
}
