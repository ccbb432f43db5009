package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/covrag/covrag/internal/embed"
	coverrors "github.com/covrag/covrag/internal/errors"
	"github.com/covrag/covrag/internal/index"
	"github.com/covrag/covrag/internal/store"
)

// DefaultMaxParallel bounds concurrent (method, variant) executions.
const DefaultMaxParallel = 4

// minFetchLimit keeps per-variant fetches wide enough that fusion and
// diversification have real candidates to work with.
const minFetchLimit = 20

// Retriever orchestrates a full hybrid retrieval: staleness check,
// expansion, parallel per-(method, variant) search, fusion, diversity,
// and anchor injection.
type Retriever struct {
	content  store.ContentStore
	vectors  store.VectorStore
	lexical  *index.LexicalIndex
	embedder embed.Embedder
	expander *Expander
	anchors  *AnchorInjector
	strategy MergeStrategy

	weights      Weights
	minPerSource int
	maxParallel  int
	logger       *slog.Logger
}

// RetrieverConfig wires the retriever's collaborators. Content,
// Vectors, Lexical, and Embedder are required; the rest default.
type RetrieverConfig struct {
	Content  store.ContentStore
	Vectors  store.VectorStore
	Lexical  *index.LexicalIndex
	Embedder embed.Embedder
	Anchors  *AnchorInjector // nil disables anchor injection

	Weights          Weights
	RRFConstant      int
	MaxQueryVariants int
	MinPerSource     int
	MaxParallel      int
	Logger           *slog.Logger
}

// NewRetriever validates the config and builds a retriever.
func NewRetriever(cfg RetrieverConfig) (*Retriever, error) {
	if cfg.Content == nil || cfg.Vectors == nil || cfg.Lexical == nil || cfg.Embedder == nil {
		return nil, coverrors.New(coverrors.ErrCodeConfigInvalid,
			"retriever requires content store, vector store, lexical index, and embedder", nil)
	}
	weights := cfg.Weights
	if !weights.Valid() {
		weights = DefaultWeights()
	}
	minPerSource := cfg.MinPerSource
	if minPerSource < 1 {
		minPerSource = DefaultMinPerSource
	}
	maxParallel := cfg.MaxParallel
	if maxParallel < 1 {
		maxParallel = DefaultMaxParallel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		content:      cfg.Content,
		vectors:      cfg.Vectors,
		lexical:      cfg.Lexical,
		embedder:     cfg.Embedder,
		expander:     NewExpander(cfg.MaxQueryVariants),
		anchors:      cfg.Anchors,
		strategy:     NewRRFStrategy(cfg.RRFConstant),
		weights:      weights,
		minPerSource: minPerSource,
		maxParallel:  maxParallel,
		logger:       logger,
	}, nil
}

// searchTask is one (method, variant) execution.
type searchTask struct {
	method  Method
	variant QueryVariant
	source  store.Source // effective filter; empty means all
}

// Retrieve runs the full pipeline and returns up to opts.Limit ranked
// documents. Individual (method, variant) failures degrade the result
// set; only when every execution fails does Retrieve return an error.
// It never returns an empty list as a disguise for total failure.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]*RetrievedDocument, error) {
	if strings.TrimSpace(query) == "" {
		return nil, coverrors.New(coverrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if opts.SourceFilter != "" && !opts.SourceFilter.Valid() {
		return nil, coverrors.New(coverrors.ErrCodeInvalidSource,
			fmt.Sprintf("unknown source %q", opts.SourceFilter), nil)
	}
	limit := opts.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	weights := r.weights
	if opts.Weights != nil && opts.Weights.Valid() {
		weights = *opts.Weights
	}
	strategy := r.strategy
	if opts.Strategy != nil {
		strategy = opts.Strategy
	}

	if err := r.lexical.EnsureFresh(ctx); err != nil {
		return nil, err
	}

	variants := r.expander.Expand(query)
	fetchK := max(2*limit, minFetchLimit)
	tasks := r.buildTasks(query, variants, opts)

	lists, failed, firstErr := r.runTasks(ctx, tasks, fetchK)
	if len(lists) == 0 {
		return nil, coverrors.TotalRetrievalFailure(
			fmt.Sprintf("all %d retrieval executions failed", failed), firstErr)
	}
	if failed > 0 {
		partial := coverrors.PartialRetrievalFailure(
			fmt.Sprintf("%d of %d retrieval executions failed", failed, failed+len(lists)), firstErr)
		r.logger.Warn("retrieval_partial_failure",
			slog.String("error", partial.Error()),
			slog.Int("succeeded", len(lists)),
			slog.Int("failed", failed))
	}

	fused := strategy.Merge(lists, weights)
	if len(fused) > fetchK {
		fused = fused[:fetchK]
	}

	retrieved, err := r.enrich(ctx, fused)
	if err != nil {
		return nil, err
	}

	relevance := DetectSourceRelevance(query)
	retrieved = ensureSourceDiversity(retrieved, relevance, limit, r.minPerSource)

	if r.anchors != nil {
		retrieved = r.anchors.Inject(ctx, query, retrieved, limit)
	} else {
		retrieved = truncate(retrieved, limit)
	}

	r.logger.Debug("retrieval_complete",
		slog.String("query", query),
		slog.Int("variants", len(variants)),
		slog.Int("lists", len(lists)),
		slog.Int("results", len(retrieved)))
	return retrieved, nil
}

// buildTasks expands (variant × method) into the task list, honoring
// the caller's source filter and adding the coverage-record pass for
// coverage queries.
func (r *Retriever) buildTasks(query string, variants []QueryVariant, opts Options) []searchTask {
	var tasks []searchTask
	addBoth := func(variant QueryVariant, source store.Source) {
		tasks = append(tasks, searchTask{method: MethodLexical, variant: variant, source: source})
		if !opts.LexicalOnly {
			tasks = append(tasks, searchTask{method: MethodSemantic, variant: variant, source: source})
		}
	}

	for _, variant := range variants {
		source := variant.TargetSource
		if opts.SourceFilter != "" {
			source = opts.SourceFilter
		}
		addBoth(variant, source)
	}

	// Coverage queries get an extra pass pinned to coverage records,
	// unless the caller pinned a different source.
	if IsCoverageQuery(query) &&
		(opts.SourceFilter == "" || opts.SourceFilter == store.SourceCoverageRecord) {
		addBoth(QueryVariant{Text: query, Kind: VariantPrimary}, store.SourceCoverageRecord)
	}
	return tasks
}

// runTasks fans the tasks out with bounded parallelism. Failures are
// collected, not propagated: the fusion barrier sees every list that
// succeeded. Caller cancellation aborts outstanding tasks.
func (r *Retriever) runTasks(ctx context.Context, tasks []searchTask, fetchK int) ([]*RankedList, int, error) {
	results := make([]*RankedList, len(tasks))
	errs := make([]error, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)
	for i, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			list, err := r.runTask(gctx, task, fetchK)
			if err != nil {
				errs[i] = err
				r.logger.Warn("retrieval_task_failed",
					slog.String("method", string(task.method)),
					slog.String("variant", task.variant.Text),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = list
			return nil
		})
	}
	_ = g.Wait()

	var lists []*RankedList
	failed := 0
	var firstErr error
	for i := range tasks {
		if results[i] != nil {
			lists = append(lists, results[i])
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = errs[i]
		}
	}
	return lists, failed, firstErr
}

func (r *Retriever) runTask(ctx context.Context, task searchTask, fetchK int) (*RankedList, error) {
	switch task.method {
	case MethodLexical:
		hits, err := r.lexical.Search(ctx, task.variant.Text, string(task.source), fetchK)
		if err != nil {
			return nil, err
		}
		items := make([]*RankedItem, 0, len(hits))
		for _, h := range hits {
			items = append(items, &RankedItem{ID: h.ID, Score: h.Score, MatchedTerms: h.MatchedTerms})
		}
		return &RankedList{Method: MethodLexical, Variant: task.variant, Items: items}, nil

	case MethodSemantic:
		items, err := r.semanticSearch(ctx, task.variant.Text, task.source, fetchK)
		if err != nil {
			return nil, err
		}
		return &RankedList{Method: MethodSemantic, Variant: task.variant, Items: items}, nil
	}
	return nil, fmt.Errorf("unknown method %q", task.method)
}

// semanticSearch embeds the text and queries the vector store. The
// vector index has no metadata filter, so source-filtered searches
// over-fetch and filter against stored metadata.
func (r *Retriever) semanticSearch(ctx context.Context, text string, source store.Source, k int) ([]*RankedItem, error) {
	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, coverrors.New(coverrors.ErrCodeEmbeddingFailed, "embed query", err)
	}

	fetchK := k
	if source != "" {
		fetchK = k * 3
	}
	hits, err := r.vectors.Search(ctx, vector, fetchK)
	if err != nil {
		return nil, coverrors.New(coverrors.ErrCodeVectorSearchFailed, "vector search", err)
	}

	if source != "" {
		hits, err = r.filterBySource(ctx, hits, source, k)
		if err != nil {
			return nil, err
		}
	}

	items := make([]*RankedItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, &RankedItem{ID: h.ID, Score: float64(h.Score)})
	}
	if len(items) > k {
		items = items[:k]
	}
	return items, nil
}

func (r *Retriever) filterBySource(ctx context.Context, hits []*store.VectorResult, source store.Source, k int) ([]*store.VectorResult, error) {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	docs, err := r.content.GetByIDs(ctx, ids)
	if err != nil {
		return nil, coverrors.StoreUnavailable("resolve sources for vector hits", err)
	}
	sources := make(map[string]store.Source, len(docs))
	for _, d := range docs {
		sources[d.ID] = d.Metadata.Source
	}

	filtered := make([]*store.VectorResult, 0, k)
	for _, h := range hits {
		if sources[h.ID] == source {
			filtered = append(filtered, h)
			if len(filtered) == k {
				break
			}
		}
	}
	return filtered, nil
}

// enrich resolves fused candidates into full documents, preserving
// fusion order. IDs missing from the store are dropped.
func (r *Retriever) enrich(ctx context.Context, fused []*FusedResult) ([]*RetrievedDocument, error) {
	if len(fused) == 0 {
		return []*RetrievedDocument{}, nil
	}
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ID
	}
	docs, err := r.content.GetByIDs(ctx, ids)
	if err != nil {
		return nil, coverrors.StoreUnavailable("enrich results", err)
	}
	byID := make(map[string]*store.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	out := make([]*RetrievedDocument, 0, len(fused))
	for _, f := range fused {
		doc, ok := byID[f.ID]
		if !ok {
			continue
		}
		out = append(out, &RetrievedDocument{
			Document:     doc,
			Score:        f.Score,
			InBothLists:  f.InBothLists,
			MatchedTerms: f.MatchedTerms,
		})
	}
	return out, nil
}

// Ingest embeds and persists documents, then adds their vectors. The
// next Retrieve call detects the count change and rebuilds the lexical
// snapshot.
func (r *Retriever) Ingest(ctx context.Context, docs []*store.Document) (*store.UpsertReport, error) {
	for _, d := range docs {
		if len(d.Vector) == 0 && d.Text != "" {
			vec, err := r.embedder.Embed(ctx, d.Text)
			if err != nil {
				return nil, coverrors.New(coverrors.ErrCodeEmbeddingFailed,
					"embed document "+d.ChunkID(), err)
			}
			d.Vector = vec
		}
	}

	report, err := r.content.Upsert(ctx, docs)
	if err != nil {
		return report, err
	}

	failedIDs := make(map[string]bool, len(report.Failures))
	for _, f := range report.Failures {
		failedIDs[f.ID] = true
	}
	var ids []string
	var vectors [][]float32
	for _, d := range docs {
		if !failedIDs[d.ChunkID()] && len(d.Vector) > 0 {
			ids = append(ids, d.ChunkID())
			vectors = append(vectors, d.Vector)
		}
	}
	if len(ids) > 0 {
		if err := r.vectors.Add(ctx, ids, vectors); err != nil {
			return report, coverrors.New(coverrors.ErrCodeVectorSearchFailed, "add vectors", err)
		}
	}
	return report, nil
}
