package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"kvedit/internal/config"
	"kvedit/internal/fileutil"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the collection as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			download, err := env.service.Export(cmd.Context())
			if err != nil {
				return err
			}
			target := strings.TrimSpace(output)
			if target == "" || target == "-" {
				_, err := cmd.OutOrStdout().Write(append(download.Data, '\n'))
				return err
			}
			target, err = config.ExpandPath(target)
			if err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}
			if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
				target = filepath.Join(target, download.FileName)
			}
			if err := fileutil.WriteFileAtomic(target, append(download.Data, '\n'), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", download.Rows, target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file, or a directory to write <collection>.csv into (defaults to stdout)")
	return cmd
}
