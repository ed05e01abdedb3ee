package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"kvedit/internal/api"
	"kvedit/internal/upload"
)

// reportRun prints a finished run and turns a failed run into the command
// error.
func reportRun(cmd *cobra.Command, ctx *commandContext, res upload.Result, runErr error) error {
	if ctx.jsonOutput() {
		if err := writeJSON(cmd, api.FromResult(res)); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		lines := [][2]string{
			{"Run", res.RunID},
			{"Operation", res.Operation},
			{"Outcome", string(res.Outcome)},
			{"Message", res.Message},
		}
		if res.Mode != "" {
			lines = append(lines, [2]string{"Mode", res.Mode})
		}
		if res.Removed > 0 || res.Added > 0 || res.Updated > 0 {
			lines = append(lines,
				[2]string{"Removed", strconv.Itoa(res.Removed)},
				[2]string{"Added", strconv.Itoa(res.Added)},
				[2]string{"Updated", strconv.Itoa(res.Updated)},
			)
		}
		if res.BackupCreated {
			lines = append(lines, [2]string{"Backup", "created"})
		}
		if res.Restored {
			lines = append(lines, [2]string{"Restored", "yes"})
		}
		if res.Snapshot != "" {
			lines = append(lines, [2]string{"Snapshot", res.Snapshot})
		}
		for _, line := range lines {
			fmt.Fprintf(out, "%-10s %s\n", line[0]+":", line[1])
		}
	}
	if runErr != nil {
		return fmt.Errorf("run %s %s: %w", res.RunID, res.Outcome, runErr)
	}
	return nil
}
