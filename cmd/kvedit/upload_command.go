package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"kvedit/internal/config"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var keyInCSV bool

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a CSV file into the collection",
		Long: "Upload a CSV file into the collection. In replace mode every entry is deleted and the file is inserted;\n" +
			"in incremental mode rows with a known _key are updated and the rest are added.\n" +
			"Use - to read the file from stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, name, err := readUploadFile(cmd, args[0])
			if err != nil {
				return err
			}
			env, err := ctx.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			req := env.service.NewRequest(content)
			req.FileName = name
			if cmd.Flags().Changed("mode") {
				req.Mode = strings.ToLower(strings.TrimSpace(mode))
			}
			if cmd.Flags().Changed("key-in-csv") {
				req.KeyInCSV = keyInCSV
			}
			res, runErr := env.service.Upload(cmd.Context(), req)
			return reportRun(cmd, ctx, res, runErr)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", fmt.Sprintf("Upload mode: %s or %s (defaults to upload.mode)", config.UploadModeReplace, config.UploadModeIncremental))
	cmd.Flags().BoolVar(&keyInCSV, "key-in-csv", false, "Require the CSV to carry the _key column")
	return cmd
}

// readUploadFile reads path, or stdin for "-". An empty file is returned as
// empty, not nil, so it is reported as an empty CSV.
func readUploadFile(cmd *cobra.Command, path string) ([]byte, string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, "", fmt.Errorf("read stdin: %w", err)
		}
		if data == nil {
			data = []byte{}
		}
		return data, "stdin", nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, filepath.Base(expanded), nil
}
