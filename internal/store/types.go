// Package store provides document persistence (SQLite), incremental
// content-addressed upserts, and vector storage (HNSW).
// This is the persistence layer for all indexed data.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Source identifies the document-source category a document came from.
type Source string

const (
	SourcePolicyManual   Source = "policy-manual"
	SourceCoverageRecord Source = "coverage-record"
	SourceCodeRecord     Source = "code-record"
)

// KnownSources lists every valid source in deterministic order.
var KnownSources = []Source{SourcePolicyManual, SourceCoverageRecord, SourceCodeRecord}

// Valid reports whether s is a recognized source.
func (s Source) Valid() bool {
	switch s {
	case SourcePolicyManual, SourceCoverageRecord, SourceCodeRecord:
		return true
	}
	return false
}

// DocType classifies the granularity of a document.
type DocType string

const (
	DocTypeChunk           DocType = "chunk"
	DocTypeDocumentSummary DocType = "document_summary"
	DocTypeTopicSummary    DocType = "topic_summary"
)

// IsSummary reports whether the doc type is a summary anchor type.
// Summary documents are never displaced by cross-source diversification.
func (d DocType) IsSummary() bool {
	return d == DocTypeDocumentSummary || d == DocTypeTopicSummary
}

// Metadata carries the recognized metadata fields of a document.
// Unrecognized keys are rejected at the store boundary rather than
// propagated as an open-ended map.
type Metadata struct {
	Source        Source     // Document-source category
	Title         string     // Human-readable title
	Jurisdiction  *string    // Contractor jurisdiction (coverage records only)
	EffectiveDate *time.Time // Policy effective date, when known
	DocType       DocType    // chunk, document_summary, topic_summary
	Topics        []string   // Topic cluster memberships
	ContentHash   string     // Fingerprint of text + identity fields
}

// Document is an immutable-once-written retrievable record.
// If content changes, the content hash changes and the record is
// replaced wholesale; an ID is never reused for different content.
type Document struct {
	ID         string    // Globally unique: "<docID>_<chunkIndex>"
	DocID      string    // Logical source document identifier
	ChunkIndex int       // Position within the logical document
	Text       string    // Retrievable content
	Vector     []float32 // Embedding, produced externally
	Metadata   Metadata
	UpdatedAt  time.Time
}

// ChunkID derives the globally unique ID from identity fields.
func (d *Document) ChunkID() string {
	if d.ID != "" {
		return d.ID
	}
	return fmt.Sprintf("%s_%d", d.DocID, d.ChunkIndex)
}

// ContentHash fingerprints the document text plus stable identity fields.
// Metadata-only edits with identical text do not change the hash.
func (d *Document) ContentHash() string {
	h := sha256.New()
	h.Write([]byte(d.Text))
	h.Write([]byte{0})
	h.Write([]byte(d.Metadata.Source))
	h.Write([]byte{0})
	h.Write([]byte(d.DocID))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", d.ChunkIndex)
	return hex.EncodeToString(h.Sum(nil))
}

// Validate checks that identity fields required for content addressing
// are present. A failing document is reported per item during upsert;
// it never aborts the batch.
func (d *Document) Validate() error {
	if d.DocID == "" && d.ID == "" {
		return fmt.Errorf("document missing id and doc_id")
	}
	if !d.Metadata.Source.Valid() {
		return fmt.Errorf("document %s: unknown source %q", d.ChunkID(), d.Metadata.Source)
	}
	if d.Text == "" {
		return fmt.Errorf("document %s: empty text", d.ChunkID())
	}
	return nil
}

// ItemFailure records a single document that failed upsert validation.
type ItemFailure struct {
	ID  string
	Err error
}

// UpsertReport summarizes an incremental upsert call.
type UpsertReport struct {
	Written  int
	Skipped  int
	Failed   int
	Failures []ItemFailure
}

// Batch size tuning constants. Hash lookups are batched to bound
// round-trips on large corpora; writes are committed per sub-batch so
// a crash mid-call leaves earlier sub-batches durable.
const (
	DefaultHashLookupBatchSize = 200
	DefaultUpsertBatchSize     = 200
	DefaultListPageSize        = 500
)

// ContentStore persists documents and supports content-addressed upserts.
type ContentStore interface {
	// Upsert writes new or changed documents, skipping documents whose
	// stored content hash matches. Retry-safe: re-running after a
	// partial failure is a no-op for already-written documents.
	Upsert(ctx context.Context, docs []*Document) (*UpsertReport, error)

	// GetByID fetches a single document, vector included.
	GetByID(ctx context.Context, id string) (*Document, error)

	// GetByIDs batch-fetches documents. Missing IDs are silently omitted.
	GetByIDs(ctx context.Context, ids []string) ([]*Document, error)

	// GetHashesByIDs returns the stored content hash for each existing ID.
	GetHashesByIDs(ctx context.Context, ids []string) (map[string]string, error)

	// Count returns the current document count, used for staleness checks.
	Count(ctx context.Context) (int, error)

	// List pages through all documents in ID order (for index rebuilds).
	// Vectors are not populated.
	List(ctx context.Context, offset, limit int) ([]*Document, error)

	// Close releases the underlying storage.
	Close() error
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID       string  // Document ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStore provides nearest-neighbor search over document vectors.
// The retrieval core treats it as an opaque service; the in-process
// HNSW implementation is the default.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Contains checks if ID exists.
	Contains(id string) bool

	// Count returns number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
