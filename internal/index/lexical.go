package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	coverrors "github.com/covrag/covrag/internal/errors"
	"github.com/covrag/covrag/internal/store"
)

// StalenessMode selects how a stale snapshot is handled at query time.
type StalenessMode string

const (
	// StalenessWait rebuilds synchronously before serving the query.
	StalenessWait StalenessMode = "wait"
	// StalenessServeStale serves the old snapshot and rebuilds in the
	// background.
	StalenessServeStale StalenessMode = "serve-stale"
)

// Valid reports whether m is a recognized mode.
func (m StalenessMode) Valid() bool {
	return m == StalenessWait || m == StalenessServeStale
}

// LexicalResult is a single BM25 hit.
type LexicalResult struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// DocumentSource is the slice of the content store the index needs.
type DocumentSource interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, offset, limit int) ([]*store.Document, error)
}

// lexicalDoc is the shape indexed into bleve.
type lexicalDoc struct {
	Text   string `json:"text"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

// snapshot is an immutable built index plus the corpus size it was
// built against. A snapshot is never mutated after the pointer swap;
// any document change produces a whole new snapshot.
type snapshot struct {
	index        bleve.Index
	builtAtCount int
}

// LexicalIndex is an in-memory BM25 index over the content store.
// Staleness is count-based: if the store's document count differs from
// the count the current snapshot was built at, the snapshot is stale
// and is replaced by a full rebuild. Equal counts with different
// content are not detected; upserts always change the count or the
// content hash path, so this holds for the supported write patterns.
type LexicalIndex struct {
	source   DocumentSource
	mode     StalenessMode
	logger   *slog.Logger
	pageSize int

	mu   sync.RWMutex
	snap *snapshot

	rebuildMu  sync.Mutex
	rebuilding atomic.Bool
	rebuilds   atomic.Int64
}

// LexicalOption configures the index.
type LexicalOption func(*LexicalIndex)

// WithStalenessMode sets the staleness handling mode.
func WithStalenessMode(m StalenessMode) LexicalOption {
	return func(l *LexicalIndex) {
		if m.Valid() {
			l.mode = m
		}
	}
}

// WithLexicalLogger sets the structured logger.
func WithLexicalLogger(logger *slog.Logger) LexicalOption {
	return func(l *LexicalIndex) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRebuildPageSize sets the page size used when scanning the store
// during rebuilds.
func WithRebuildPageSize(n int) LexicalOption {
	return func(l *LexicalIndex) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// NewLexicalIndex creates an index with no snapshot. The first
// EnsureFresh call builds one.
func NewLexicalIndex(source DocumentSource, opts ...LexicalOption) *LexicalIndex {
	l := &LexicalIndex{
		source:   source,
		mode:     StalenessWait,
		logger:   slog.Default(),
		pageSize: store.DefaultListPageSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EnsureFresh checks staleness and rebuilds per the configured mode.
// In wait mode the call returns only once a fresh snapshot is
// installed. In serve-stale mode a stale snapshot triggers a
// background rebuild and the call returns immediately; a missing
// snapshot always waits.
func (l *LexicalIndex) EnsureFresh(ctx context.Context) error {
	count, err := l.source.Count(ctx)
	if err != nil {
		if l.current() != nil && l.mode == StalenessServeStale {
			l.logger.Warn("staleness_check_failed_serving_stale",
				slog.String("error", err.Error()))
			return nil
		}
		return coverrors.StoreUnavailable("staleness check", err)
	}

	snap := l.current()
	if snap != nil && snap.builtAtCount == count {
		return nil
	}

	if snap != nil && l.mode == StalenessServeStale {
		l.rebuildAsync(count)
		return nil
	}

	return l.rebuildSync(ctx, count)
}

// rebuildSync rebuilds under single-flight. A waiter that arrives
// while another rebuild is in progress blocks, then rechecks: if the
// winner already rebuilt to the target count, it returns immediately.
func (l *LexicalIndex) rebuildSync(ctx context.Context, count int) error {
	l.rebuildMu.Lock()
	defer l.rebuildMu.Unlock()

	if snap := l.current(); snap != nil && snap.builtAtCount == count {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.rebuild(count)
}

func (l *LexicalIndex) rebuildAsync(count int) {
	if l.rebuilding.Swap(true) {
		return
	}
	go func() {
		defer l.rebuilding.Store(false)
		l.rebuildMu.Lock()
		defer l.rebuildMu.Unlock()
		if snap := l.current(); snap != nil && snap.builtAtCount == count {
			return
		}
		if err := l.rebuild(count); err != nil {
			l.logger.Error("background_rebuild_failed",
				slog.String("error", err.Error()))
		}
	}()
}

// rebuild constructs a whole new snapshot and swaps the pointer. The
// old snapshot stays installed if anything fails. Rebuilds run to
// completion regardless of caller cancellation so a slow client
// cannot leave the index half-built.
func (l *LexicalIndex) rebuild(targetCount int) error {
	ctx := context.Background()

	mapping, err := buildIndexMapping()
	if err != nil {
		return coverrors.New(coverrors.ErrCodeIndexRebuild, "build index mapping", err)
	}
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return coverrors.New(coverrors.ErrCodeIndexRebuild, "create in-memory index", err)
	}

	indexed := 0
	for offset := 0; ; offset += l.pageSize {
		docs, err := l.source.List(ctx, offset, l.pageSize)
		if err != nil {
			_ = idx.Close()
			return coverrors.New(coverrors.ErrCodeIndexRebuild, "scan documents", err)
		}
		if len(docs) == 0 {
			break
		}
		batch := idx.NewBatch()
		for _, doc := range docs {
			entry := lexicalDoc{
				Text:   doc.Text,
				Title:  doc.Metadata.Title,
				Source: string(doc.Metadata.Source),
			}
			if err := batch.Index(doc.ID, entry); err != nil {
				_ = idx.Close()
				return coverrors.New(coverrors.ErrCodeIndexRebuild,
					fmt.Sprintf("index document %s", doc.ID), err)
			}
		}
		if err := idx.Batch(batch); err != nil {
			_ = idx.Close()
			return coverrors.New(coverrors.ErrCodeIndexRebuild, "execute index batch", err)
		}
		indexed += len(docs)
	}

	// Readers that loaded the old snapshot before the swap may still be
	// mid-search on it, so the old index is not closed here; dropping
	// the reference lets those searches finish and the mem-only store
	// be reclaimed once they do.
	l.swap(&snapshot{index: idx, builtAtCount: targetCount})
	l.rebuilds.Add(1)

	l.logger.Info("lexical_index_rebuilt",
		slog.Int("documents", indexed),
		slog.Int("built_at_count", targetCount),
		slog.Int64("total_rebuilds", l.rebuilds.Load()))
	return nil
}

// Search runs a BM25 query against the current snapshot. An empty
// sourceFilter searches all sources. Results are ordered by score
// descending with ID ascending as the tie-break, so the same snapshot
// and query always return the same ranking.
func (l *LexicalIndex) Search(ctx context.Context, queryStr, sourceFilter string, limit int) ([]*LexicalResult, error) {
	snap := l.current()
	if snap == nil {
		return nil, coverrors.StoreUnavailable("lexical index not built", nil)
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("text")

	var q query.Query = matchQuery
	if sourceFilter != "" {
		termQuery := bleve.NewTermQuery(sourceFilter)
		termQuery.SetField("source")
		q = bleve.NewConjunctionQuery(matchQuery, termQuery)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.IncludeLocations = true

	result, err := snap.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, coverrors.New(coverrors.ErrCodeKeywordSearchFailed, "lexical search", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		terms := make([]string, 0, len(hit.Locations["text"]))
		for term := range hit.Locations["text"] {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		results = append(results, &LexicalResult{
			ID:           hit.ID,
			Score:        hit.Score,
			MatchedTerms: terms,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// RebuildCount reports how many snapshot rebuilds have completed.
func (l *LexicalIndex) RebuildCount() int64 {
	return l.rebuilds.Load()
}

// BuiltAtCount returns the document count the current snapshot was
// built against, or -1 when no snapshot exists.
func (l *LexicalIndex) BuiltAtCount() int {
	if snap := l.current(); snap != nil {
		return snap.builtAtCount
	}
	return -1
}

// Close releases the current snapshot.
func (l *LexicalIndex) Close() error {
	old := l.swap(nil)
	if old != nil {
		return old.index.Close()
	}
	return nil
}

func (l *LexicalIndex) current() *snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

func (l *LexicalIndex) swap(next *snapshot) *snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.snap
	l.snap = next
	return old
}
