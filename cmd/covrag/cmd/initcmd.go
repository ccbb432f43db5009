package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/covrag/covrag/configs"
	"github.com/covrag/covrag/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		dir   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config and topic table to the data dir",
		Long: `Create the data directory with an annotated config.yaml and the
default topics.yaml, ready to edit. Existing files are left alone
unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Data directory (default ~/.covrag)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	if dir == "" {
		dir = config.Default().DataDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{"config.yaml", []byte(configs.ConfigTemplate)},
		{"topics.yaml", configs.DefaultTopics},
	}

	w := cmd.OutOrStdout()
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if !force {
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(w, "Keeping existing %s\n", path)
				continue
			}
		}
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(w, "Wrote %s\n", path)
	}
	fmt.Fprintf(w, "\nRun commands with --config %s\n", filepath.Join(dir, "config.yaml"))
	return nil
}
