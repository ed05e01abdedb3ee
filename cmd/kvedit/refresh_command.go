package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kvedit/internal/apiclient"
)

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [VISUALIZATION_ID]",
		Short: "Ask open dashboards to reload a visualization",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id := cfg.Dashboard.VisualizationID
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				id = strings.TrimSpace(args[0])
			}
			client, err := apiclient.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("refresh: %w (set paths.api_bind)", err)
			}
			res, err := client.Refresh(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("refresh %s: %w", id, err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s on %d dashboard(s)\n", res.ID, res.Delivered)
			return nil
		},
	}
}
