package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of the compose services",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := app.envFile.Load()
		if err != nil {
			return fmt.Errorf("%w: %w", errConfig, err)
		}
		out, err := app.compose.Status(cmd.Context(), env)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}
