package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	coverrors "github.com/covrag/covrag/internal/errors"
)

// SQLiteContentStore persists documents in a single SQLite database.
// Uses modernc.org/sqlite (pure Go, no CGO).
type SQLiteContentStore struct {
	db     *sql.DB
	logger *slog.Logger

	hashBatchSize   int
	upsertBatchSize int
}

// SQLiteOption configures the store.
type SQLiteOption func(*SQLiteContentStore)

// WithHashLookupBatchSize overrides the batch size used when checking
// stored content hashes during upsert.
func WithHashLookupBatchSize(n int) SQLiteOption {
	return func(s *SQLiteContentStore) {
		if n > 0 {
			s.hashBatchSize = n
		}
	}
}

// WithUpsertBatchSize overrides the per-transaction write batch size.
func WithUpsertBatchSize(n int) SQLiteOption {
	return func(s *SQLiteContentStore) {
		if n > 0 {
			s.upsertBatchSize = n
		}
	}
}

// WithStoreLogger sets the structured logger.
func WithStoreLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLiteContentStore) {
		if l != nil {
			s.logger = l
		}
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	doc_id        TEXT NOT NULL,
	chunk_index   INTEGER NOT NULL,
	text          TEXT NOT NULL,
	vector        BLOB,
	source        TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	jurisdiction  TEXT,
	effective_date TEXT,
	doc_type      TEXT NOT NULL DEFAULT 'chunk',
	topics        TEXT NOT NULL DEFAULT '[]',
	content_hash  TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_doc_id ON documents(doc_id);
CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);
CREATE INDEX IF NOT EXISTS idx_documents_hash   ON documents(content_hash);
`

// NewSQLiteContentStore opens (or creates) the database at path.
// Use ":memory:" for an ephemeral store in tests.
func NewSQLiteContentStore(path string, opts ...SQLiteOption) (*SQLiteContentStore, error) {
	dsn := path
	if path != ":memory:" {
		// WAL mode for concurrent readers; busy_timeout handles lock
		// contention from the rebuild paging reads.
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, coverrors.StoreUnavailable("open database", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != ":memory:" {
		// DSN params may be ignored by modernc.org/sqlite; set via PRAGMA.
		pragmas := []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA cache_size = -65536",
			"PRAGMA temp_store = MEMORY",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, coverrors.StoreUnavailable("set pragma", err)
			}
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, coverrors.StoreUnavailable("create schema", err)
	}

	return &SQLiteContentStore{
		db:              db,
		logger:          slog.Default(),
		hashBatchSize:   DefaultHashLookupBatchSize,
		upsertBatchSize: DefaultUpsertBatchSize,
	}, nil
}

// Upsert writes new or changed documents. Unchanged documents (same
// stored content hash) are skipped. Invalid documents are reported in
// the result and never abort the batch. Re-running after a partial
// failure is safe: already-written documents hash-match and skip.
func (s *SQLiteContentStore) Upsert(ctx context.Context, docs []*Document) (*UpsertReport, error) {
	report := &UpsertReport{}
	if len(docs) == 0 {
		return report, nil
	}

	// Validate per item; collect the survivors.
	valid := make([]*Document, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if err := d.Validate(); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, ItemFailure{ID: d.ChunkID(), Err: err})
			continue
		}
		valid = append(valid, d)
		ids = append(ids, d.ChunkID())
	}

	// Batched hash lookup to decide what actually changed.
	existing := make(map[string]string, len(ids))
	for start := 0; start < len(ids); start += s.hashBatchSize {
		end := min(start+s.hashBatchSize, len(ids))
		batch, err := s.GetHashesByIDs(ctx, ids[start:end])
		if err != nil {
			return report, err
		}
		for id, h := range batch {
			existing[id] = h
		}
	}

	changed := make([]*Document, 0, len(valid))
	for _, d := range valid {
		hash := d.ContentHash()
		if stored, ok := existing[d.ChunkID()]; ok && stored == hash {
			report.Skipped++
			continue
		}
		changed = append(changed, d)
	}

	// Write in sub-batch transactions so a crash mid-call leaves
	// earlier sub-batches durable.
	for start := 0; start < len(changed); start += s.upsertBatchSize {
		end := min(start+s.upsertBatchSize, len(changed))
		if err := s.writeBatch(ctx, changed[start:end]); err != nil {
			return report, err
		}
		report.Written += end - start
	}

	s.logger.Debug("documents_upserted",
		slog.Int("written", report.Written),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed))
	return report, nil
}

func (s *SQLiteContentStore) writeBatch(ctx context.Context, docs []*Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return coverrors.StoreUnavailable("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents
			(id, doc_id, chunk_index, text, vector, source, title,
			 jurisdiction, effective_date, doc_type, topics, content_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc_id = excluded.doc_id,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			vector = excluded.vector,
			source = excluded.source,
			title = excluded.title,
			jurisdiction = excluded.jurisdiction,
			effective_date = excluded.effective_date,
			doc_type = excluded.doc_type,
			topics = excluded.topics,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at`)
	if err != nil {
		return coverrors.StoreUnavailable("prepare upsert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range docs {
		topicsJSON, err := json.Marshal(d.Metadata.Topics)
		if err != nil {
			return fmt.Errorf("marshal topics for %s: %w", d.ChunkID(), err)
		}
		var effective sql.NullString
		if d.Metadata.EffectiveDate != nil {
			effective = sql.NullString{String: d.Metadata.EffectiveDate.UTC().Format(time.RFC3339), Valid: true}
		}
		var jurisdiction sql.NullString
		if d.Metadata.Jurisdiction != nil {
			jurisdiction = sql.NullString{String: *d.Metadata.Jurisdiction, Valid: true}
		}
		docType := d.Metadata.DocType
		if docType == "" {
			docType = DocTypeChunk
		}
		if _, err := stmt.ExecContext(ctx,
			d.ChunkID(), d.docIDOrDerived(), d.ChunkIndex, d.Text,
			encodeVector(d.Vector), string(d.Metadata.Source), d.Metadata.Title,
			jurisdiction, effective, string(docType), string(topicsJSON),
			d.ContentHash(), now,
		); err != nil {
			return coverrors.StoreUnavailable("write document "+d.ChunkID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return coverrors.StoreUnavailable("commit upsert batch", err)
	}
	return nil
}

// docIDOrDerived falls back to the full ID when only ID was supplied.
func (d *Document) docIDOrDerived() string {
	if d.DocID != "" {
		return d.DocID
	}
	return d.ID
}

// GetByID fetches a single document, vector included.
func (s *SQLiteContentStore) GetByID(ctx context.Context, id string) (*Document, error) {
	docs, err := s.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	return docs[0], nil
}

const selectColumns = `id, doc_id, chunk_index, text, vector, source, title,
	jurisdiction, effective_date, doc_type, topics, content_hash, updated_at`

// GetByIDs batch-fetches documents. Missing IDs are silently omitted;
// callers treat absent anchors as a non-event.
func (s *SQLiteContentStore) GetByIDs(ctx context.Context, ids []string) ([]*Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM documents WHERE id IN (%s)",
		selectColumns, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, toAny(ids)...)
	if err != nil {
		return nil, coverrors.StoreUnavailable("query documents", err)
	}
	defer rows.Close()

	byID := make(map[string]*Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, coverrors.StoreUnavailable("iterate documents", err)
	}

	// Preserve request order.
	out := make([]*Document, 0, len(byID))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			out = append(out, doc)
			delete(byID, id)
		}
	}
	return out, nil
}

// GetHashesByIDs returns stored content hashes for the IDs that exist.
func (s *SQLiteContentStore) GetHashesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	query := fmt.Sprintf("SELECT id, content_hash FROM documents WHERE id IN (%s)",
		placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, toAny(ids)...)
	if err != nil {
		return nil, coverrors.StoreUnavailable("query content hashes", err)
	}
	defer rows.Close()

	hashes := make(map[string]string, len(ids))
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, coverrors.StoreUnavailable("scan content hash", err)
		}
		hashes[id] = hash
	}
	return hashes, rows.Err()
}

// Count returns the total document count. The lexical index compares
// this against its snapshot's built-at count to detect staleness.
func (s *SQLiteContentStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, coverrors.StoreUnavailable("count documents", err)
	}
	return n, nil
}

// List pages through documents in ID order. Vectors are not populated;
// rebuilds only need text and metadata.
func (s *SQLiteContentStore) List(ctx context.Context, offset, limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = DefaultListPageSize
	}
	query := fmt.Sprintf(`SELECT %s FROM documents ORDER BY id LIMIT ? OFFSET ?`, selectColumns)
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, coverrors.StoreUnavailable("list documents", err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		doc.Vector = nil
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Close checkpoints WAL and releases the connection.
func (s *SQLiteContentStore) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func scanDocument(rows *sql.Rows) (*Document, error) {
	var (
		doc          Document
		vectorBlob   []byte
		source       string
		jurisdiction sql.NullString
		effective    sql.NullString
		docType      string
		topicsJSON   string
		updatedAt    string
	)
	if err := rows.Scan(&doc.ID, &doc.DocID, &doc.ChunkIndex, &doc.Text,
		&vectorBlob, &source, &doc.Metadata.Title, &jurisdiction,
		&effective, &docType, &topicsJSON, &doc.Metadata.ContentHash,
		&updatedAt); err != nil {
		return nil, coverrors.StoreUnavailable("scan document", err)
	}
	doc.Vector = decodeVector(vectorBlob)
	doc.Metadata.Source = Source(source)
	doc.Metadata.DocType = DocType(docType)
	if jurisdiction.Valid {
		j := jurisdiction.String
		doc.Metadata.Jurisdiction = &j
	}
	if effective.Valid {
		if t, err := time.Parse(time.RFC3339, effective.String); err == nil {
			doc.Metadata.EffectiveDate = &t
		}
	}
	if err := json.Unmarshal([]byte(topicsJSON), &doc.Metadata.Topics); err != nil {
		return nil, fmt.Errorf("decode topics for %s: %w", doc.ID, err)
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		doc.UpdatedAt = t
	}
	return &doc, nil
}

// encodeVector serializes float32s as little-endian bytes.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
