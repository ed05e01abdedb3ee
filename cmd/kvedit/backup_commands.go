package main

import (
	"github.com/spf13/cobra"
)

func newBackupCommand(ctx *commandContext) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage the lookup backup CSV",
	}
	backupCmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Copy the collection's lookup into its backup CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			res, runErr := env.service.Backup(cmd.Context())
			return reportRun(cmd, ctx, res, runErr)
		},
	})
	backupCmd.AddCommand(&cobra.Command{
		Use:   "restore",
		Short: "Replace the collection with its backup CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			res, runErr := env.service.Restore(cmd.Context())
			return reportRun(cmd, ctx, res, runErr)
		},
	})
	return backupCmd
}
