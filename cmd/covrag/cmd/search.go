package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/covrag/covrag/internal/search"
	"github.com/covrag/covrag/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		limit       int
		source      string
		jsonOutput  bool
		lexicalOnly bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid retrieval query",
		Long: `Expand the query into source-targeted variants, run lexical and
semantic search for each, fuse with weighted RRF, and print the top
results with source diversity and topic anchors applied.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "),
				limit, source, jsonOutput, lexicalOnly)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (default from config)")
	cmd.Flags().StringVar(&source, "source", "", "Restrict to one source (policy-manual, coverage-record, code-record)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&lexicalOnly, "lexical-only", false, "Skip semantic search")

	return cmd
}

// searchResultJSON is the machine-readable result shape.
type searchResultJSON struct {
	ID           string   `json:"id"`
	Score        float64  `json:"score"`
	Source       string   `json:"source"`
	Title        string   `json:"title,omitempty"`
	DocType      string   `json:"doc_type"`
	Anchor       bool     `json:"anchor,omitempty"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	Snippet      string   `json:"snippet"`
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, limit int, source string, jsonOutput, lexicalOnly bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	opts := search.Options{
		Limit:       limit,
		LexicalOnly: lexicalOnly,
	}
	if source != "" {
		opts.SourceFilter = store.Source(source)
	}

	results, err := a.retriever.Retrieve(ctx, query, opts)
	if err != nil {
		return err
	}

	// Pipes get JSON so the output is scriptable without --json.
	if jsonOutput || !isatty.IsTerminal(os.Stdout.Fd()) {
		return renderJSON(cmd, results)
	}
	renderText(cmd, query, results)
	return nil
}

func renderJSON(cmd *cobra.Command, results []*search.RetrievedDocument) error {
	out := make([]searchResultJSON, 0, len(results))
	for _, r := range results {
		out = append(out, searchResultJSON{
			ID:           r.Document.ID,
			Score:        r.Score,
			Source:       string(r.Document.Metadata.Source),
			Title:        r.Document.Metadata.Title,
			DocType:      string(r.Document.Metadata.DocType),
			Anchor:       r.Anchor,
			MatchedTerms: r.MatchedTerms,
			Snippet:      snippet(r.Document.Text, 200),
		})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func renderText(cmd *cobra.Command, query string, results []*search.RetrievedDocument) {
	w := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(w, "No results for %q\n", query)
		return
	}
	fmt.Fprintf(w, "Results for %q:\n\n", query)
	for i, r := range results {
		marker := ""
		if r.Anchor {
			marker = " [anchor]"
		}
		title := r.Document.Metadata.Title
		if title == "" {
			title = r.Document.ID
		}
		fmt.Fprintf(w, "%2d. %s (%s, score %.3f)%s\n", i+1, title,
			r.Document.Metadata.Source, r.Score, marker)
		fmt.Fprintf(w, "    %s\n", snippet(r.Document.Text, 160))
		if len(r.MatchedTerms) > 0 {
			fmt.Fprintf(w, "    matched: %s\n", strings.Join(r.MatchedTerms, ", "))
		}
		fmt.Fprintln(w)
	}
}

func snippet(text string, maxLen int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
