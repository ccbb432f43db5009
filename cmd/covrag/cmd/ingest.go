package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	coverrors "github.com/covrag/covrag/internal/errors"
	"github.com/covrag/covrag/internal/store"
)

// ingestRecord is one JSONL line of the ingest input.
type ingestRecord struct {
	DocID         string   `json:"doc_id"`
	ChunkIndex    int      `json:"chunk_index"`
	Text          string   `json:"text"`
	Source        string   `json:"source"`
	Title         string   `json:"title"`
	Jurisdiction  *string  `json:"jurisdiction,omitempty"`
	EffectiveDate string   `json:"effective_date,omitempty"`
	DocType       string   `json:"doc_type,omitempty"`
	Topics        []string `json:"topics,omitempty"`
}

func newIngestCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "ingest <file.jsonl>",
		Short: "Ingest documents from a JSONL file",
		Long: `Read one document per line and upsert into the content store.

Unchanged documents (same content hash) are skipped, so re-running an
ingest is cheap and idempotent. Embeddings are computed for documents
that carry no vector.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args[0], batchSize)
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Documents per ingest batch")
	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, path string, batchSize int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if batchSize < 1 {
		batchSize = 500
	}

	var (
		batch   []*store.Document
		written int
		skipped int
		failed  int
		line    int
	)

	// Upserts are content-addressed, so retrying a batch after a
	// transient store error re-writes nothing that already landed.
	retryCfg := coverrors.DefaultRetryConfig()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		var report *store.UpsertReport
		err := coverrors.Retry(ctx, retryCfg, func() error {
			var ingestErr error
			report, ingestErr = a.retriever.Ingest(ctx, batch)
			return ingestErr
		})
		if err != nil {
			return err
		}
		written += report.Written
		skipped += report.Skipped
		failed += report.Failed
		for _, f := range report.Failures {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", f.ID, f.Err)
		}
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec ingestRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "line %d: bad JSON: %v\n", line, err)
			failed++
			continue
		}
		batch = append(batch, recordToDocument(rec))
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := flush(); err != nil {
		return err
	}

	if err := a.vectors.Save(a.cfg.Vector.Path); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d documents (%d written, %d unchanged, %d failed)\n",
		written+skipped, written, skipped, failed)
	return nil
}

func recordToDocument(rec ingestRecord) *store.Document {
	doc := &store.Document{
		DocID:      rec.DocID,
		ChunkIndex: rec.ChunkIndex,
		Text:       rec.Text,
		Metadata: store.Metadata{
			Source:       store.Source(rec.Source),
			Title:        rec.Title,
			Jurisdiction: rec.Jurisdiction,
			DocType:      store.DocType(rec.DocType),
			Topics:       rec.Topics,
		},
	}
	if doc.Metadata.DocType == "" {
		doc.Metadata.DocType = store.DocTypeChunk
	}
	if rec.EffectiveDate != "" {
		if t, err := time.Parse("2006-01-02", rec.EffectiveDate); err == nil {
			doc.Metadata.EffectiveDate = &t
		}
	}
	return doc
}
