package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTopicsCmd() *cobra.Command {
	var detect string

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List topic clusters or test topic detection",
		Long: `List the active topic cluster table, or with --detect run topic
detection against a sample query to see which anchors would fire.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopics(cmd, detect)
		},
	}

	cmd.Flags().StringVar(&detect, "detect", "", "Run detection against this query instead of listing")
	return cmd
}

func runTopics(cmd *cobra.Command, detect string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	w := cmd.OutOrStdout()

	if detect != "" {
		topics := a.topics.Detect(detect)
		if len(topics) == 0 {
			fmt.Fprintf(w, "No topics detected for %q\n", detect)
			return nil
		}
		fmt.Fprintf(w, "Topics for %q: %s\n", detect, strings.Join(topics, ", "))
		return nil
	}

	entries := a.topics.Entries()
	fmt.Fprintf(w, "%d topic clusters:\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "  %s (%s)\n", e.Name, e.Label)
		fmt.Fprintf(w, "    patterns: %d  anchors: %s\n",
			len(e.Patterns), strings.Join(e.AnchorDocIDs, ", "))
	}
	return nil
}
