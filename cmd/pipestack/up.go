package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"arc-framework/pipestack/internal/orchestrator"
)

var upJSON bool

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Bootstrap the local environment and exit",
	Long: `Up runs the full bootstrap once: container runtime check, .env
provisioning, compose up, settle, status report and source seeding.

Progress messages go to stdout. The exit status identifies the failed step:
1 runtime unavailable, 2 configuration, 3 services failed to start,
4 services not ready, 5 source database unreachable, 6 seeding failed.`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().BoolVar(&upJSON, "json", false, "print the phase results as JSON when done")
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Bootstrap.Timeout)
	defer cancel()

	slog.Debug("starting bootstrap", "workdir", cfg.Paths.Workdir, "project", app.compose.Project())

	result, err := app.orchestrator.RunBootstrap(ctx)
	if upJSON && result != nil {
		printBootstrapResult(result)
	}
	return err
}

func printBootstrapResult(result *orchestrator.BootstrapResult) {
	result.Lock()
	defer result.Unlock()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		RunID  string                     `json:"run_id"`
		Status string                     `json:"status"`
		Phases []orchestrator.PhaseResult `json:"phases"`
	}{result.RunID, result.Status, result.Phases}); err != nil {
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", result.Status)
	}
}
