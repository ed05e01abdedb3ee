package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kvedit/internal/api"
	"kvedit/internal/kvstore"
	"kvedit/internal/records"
	"kvedit/internal/table"
)

func newRowsCommand(ctx *commandContext) *cobra.Command {
	rowsCmd := &cobra.Command{
		Use:   "rows",
		Short: "View and edit collection rows",
	}
	rowsCmd.AddCommand(newRowsListCommand(ctx))
	rowsCmd.AddCommand(newRowsShowCommand(ctx))
	rowsCmd.AddCommand(newRowsEditCommand(ctx))
	return rowsCmd
}

func newRowsListCommand(ctx *commandContext) *cobra.Command {
	var offset, count int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			if count <= 0 {
				count = env.cfg.Dashboard.PageSize
			}
			collection := env.cfg.Collection.Name
			meta, err := table.Describe(cmd.Context(), env.client, collection, env.cfg.Collection.Fields)
			if errors.Is(err, table.ErrNoMetadata) {
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.TablePage{Loading: true, DataFields: []string{}, Rows: []kvstore.Record{}})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Collection %s has no rows or declared fields\n", collection)
				return nil
			}
			if err != nil {
				return fmt.Errorf("describe table: %w", err)
			}
			page, err := table.LoadPage(cmd.Context(), env.client, collection, meta, table.PageRequest{Offset: offset, Count: count})
			if err != nil {
				return fmt.Errorf("load page: %w", err)
			}
			if ctx.jsonOutput() {
				rows := page.Rows
				if rows == nil {
					rows = []kvstore.Record{}
				}
				return writeJSON(cmd, api.TablePage{
					DataFields: page.DataFields,
					TotalItems: page.TotalItems,
					Offset:     page.Offset,
					Count:      page.Count,
					Rows:       rows,
				})
			}

			out := cmd.OutOrStdout()
			cells := make([][]string, 0, len(page.Rows))
			for _, row := range page.Rows {
				cells = append(cells, table.Cells(row, page.DataFields))
			}
			fmt.Fprintln(out, renderTable(page.DataFields, cells, nil))
			last := page.Offset + len(page.Rows)
			if len(page.Rows) == 0 {
				fmt.Fprintf(out, "No rows at offset %d of %d\n", page.Offset, page.TotalItems)
			} else {
				fmt.Fprintf(out, "Rows %d-%d of %d\n", page.Offset+1, last, page.TotalItems)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Index of the first row")
	cmd.Flags().IntVar(&count, "count", 0, "Rows per page (defaults to dashboard.page_size)")
	return cmd
}

func newRowsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show KEY",
		Short: "Show one row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			row, err := env.client.GetEntry(cmd.Context(), env.cfg.Collection.Name, args[0])
			if kvstore.IsNotFound(err) {
				return fmt.Errorf("row %q not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("get row: %w", err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.RowResponse{Row: row})
			}
			fields := records.Columns([]kvstore.Record{row}, nil)
			cells := make([][]string, 0, len(fields))
			for _, field := range fields {
				cells = append(cells, []string{field, table.CellText(row[field])})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, cells, nil))
			return nil
		},
	}
}

func newRowsEditCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "edit KEY FIELD=VALUE...",
		Short: "Change fields of one row",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			edits, err := parseEdits(args[1:])
			if err != nil {
				return err
			}
			env, err := ctx.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			res, runErr := env.service.EditRow(cmd.Context(), args[0], edits)
			return reportRun(cmd, ctx, res, runErr)
		},
	}
}

func parseEdits(args []string) (map[string]string, error) {
	edits := make(map[string]string, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid edit %q (expected FIELD=VALUE)", arg)
		}
		edits[field] = value
	}
	return edits, nil
}
