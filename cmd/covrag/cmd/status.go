package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// statusInfo captures index health for display.
type statusInfo struct {
	DataDir       string `json:"data_dir"`
	Documents     int    `json:"documents"`
	Vectors       int    `json:"vectors"`
	LexicalDocs   int    `json:"lexical_built_at_count"`
	LexicalFresh  bool   `json:"lexical_fresh"`
	StalenessMode string `json:"staleness_mode"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store and index health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	count, err := a.content.Count(ctx)
	if err != nil {
		return err
	}

	builtAt := a.lexical.BuiltAtCount()
	info := statusInfo{
		DataDir:       a.cfg.DataDir,
		Documents:     count,
		Vectors:       a.vectors.Count(),
		LexicalDocs:   builtAt,
		LexicalFresh:  builtAt == count,
		StalenessMode: a.cfg.Retrieval.StalenessMode,
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Data dir:       %s\n", info.DataDir)
	fmt.Fprintf(w, "Documents:      %d\n", info.Documents)
	fmt.Fprintf(w, "Vectors:        %d\n", info.Vectors)
	if info.LexicalDocs < 0 {
		fmt.Fprintf(w, "Lexical index:  not built (first query builds it)\n")
	} else {
		freshness := "stale"
		if info.LexicalFresh {
			freshness = "fresh"
		}
		fmt.Fprintf(w, "Lexical index:  built at %d docs (%s)\n", info.LexicalDocs, freshness)
	}
	fmt.Fprintf(w, "Staleness mode: %s\n", info.StalenessMode)
	return nil
}
