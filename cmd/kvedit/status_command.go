package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kvedit/internal/apiclient"
	"kvedit/internal/table"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the KV Store connection and the kvedit server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			cfg := env.cfg
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("kvedit", colorize)

			lines = append(lines, renderStatusLine("Splunk", statusInfo, cfg.Splunk.URL, colorize))
			meta, err := table.Describe(cmd.Context(), env.client, cfg.Collection.Name, cfg.Collection.Fields)
			switch {
			case err == nil:
				lines = append(lines, renderStatusLine("Collection", statusOK,
					fmt.Sprintf("%s (%d rows, fields %s)", cfg.Collection.Name, meta.TotalItems, strings.Join(meta.DataFields, ", ")), colorize))
			case errors.Is(err, table.ErrNoMetadata):
				lines = append(lines, renderStatusLine("Collection", statusWarn, cfg.Collection.Name+" is empty", colorize))
			default:
				lines = append(lines, renderStatusLine("Collection", statusError, err.Error(), colorize))
			}

			if cfg.BackupEnabled() {
				lines = append(lines, renderStatusLine("Backup lookup", statusOK, cfg.Collection.Lookup, colorize))
			} else {
				lines = append(lines, renderStatusLine("Backup lookup", statusWarn, "not configured", colorize))
			}
			lines = append(lines, renderStatusLine("Upload mode", statusInfo,
				fmt.Sprintf("%s, key in csv: %s", cfg.Upload.Mode, yesNo(cfg.Upload.KeyInCSV)), colorize))
			if env.snapshots != nil {
				lines = append(lines, renderStatusLine("Snapshots", statusOK, env.snapshots.Dir(), colorize))
			} else {
				lines = append(lines, renderStatusLine("Snapshots", statusInfo, "disabled", colorize))
			}
			lines = append(lines, serverStatusLine(cmd.Context(), cfg.Paths.APIBind, cfg.Paths.APIToken, colorize))

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
}

func serverStatusLine(ctx context.Context, bind, token string, colorize bool) string {
	client, err := apiclient.New(bind, token)
	if err != nil {
		return renderStatusLine("Server", statusInfo, "no api_bind configured", colorize)
	}
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	status, err := client.Status(probeCtx)
	if err != nil {
		return renderStatusLine("Server", statusWarn, fmt.Sprintf("not reachable at %s", bind), colorize)
	}
	return renderStatusLine("Server", statusOK, fmt.Sprintf("%s (%d dashboard(s) connected)", bind, status.Subscribers), colorize)
}
