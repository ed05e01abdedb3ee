package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"kvedit/internal/api"
	"kvedit/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var operation string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent write runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), history.Filter{
				Collection: cfg.Collection.Name,
				Operation:  operation,
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.HistoryResponse{Entries: api.FromHistoryEntries(entries)})
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.StartedAt.Local().Format("2006-01-02 15:04:05"),
					e.Operation,
					e.Mode,
					string(e.Outcome),
					strconv.Itoa(e.Removed),
					strconv.Itoa(e.Added),
					strconv.Itoa(e.Updated),
					e.Message,
				})
			}
			headers := []string{"Started", "Operation", "Mode", "Outcome", "Removed", "Added", "Updated", "Message"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	cmd.Flags().StringVar(&operation, "operation", "", "Only show one operation (upload, edit, backup, restore)")
	return cmd
}
