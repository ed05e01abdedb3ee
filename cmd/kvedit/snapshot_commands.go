package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"kvedit/internal/api"
)

var errSnapshotsDisabled = errors.New("snapshots are disabled (set snapshot.enabled = true)")

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "List and restore local pre-change snapshots",
	}
	snapshotCmd.AddCommand(newSnapshotListCommand(ctx))
	snapshotCmd.AddCommand(newSnapshotRestoreCommand(ctx))
	return snapshotCmd
}

func newSnapshotListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots of the collection, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			if env.snapshots == nil {
				return errSnapshotsDisabled
			}
			infos, err := env.snapshots.List(env.cfg.Collection.Name)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.SnapshotListResponse{Snapshots: api.FromSnapshots(infos)})
			}
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No snapshots")
				return nil
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					info.Name,
					info.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					strconv.FormatInt(info.SizeBytes, 10),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Created", "Bytes"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}

func newSnapshotRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore NAME",
		Short: "Replace the collection with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			if env.snapshots == nil {
				return errSnapshotsDisabled
			}
			res, runErr := env.service.RestoreSnapshot(cmd.Context(), env.snapshots.Resolve(args[0]))
			return reportRun(cmd, ctx, res, runErr)
		},
	}
}
