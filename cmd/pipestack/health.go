package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

var errUnhealthy = errors.New("one or more dependencies are unhealthy")

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the runtime, databases and extra services",
	RunE: func(cmd *cobra.Command, args []string) error {
		probes := app.orchestrator.RunDeepHealth(cmd.Context())

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(probes); err != nil {
			return err
		}

		names := make([]string, 0, len(probes))
		for name, p := range probes {
			if !p.OK {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			slices.Sort(names)
			return fmt.Errorf("%w: %v", errUnhealthy, names)
		}
		return nil
	},
}
