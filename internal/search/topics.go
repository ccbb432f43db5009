package search

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	coverrors "github.com/covrag/covrag/internal/errors"
	"github.com/covrag/covrag/internal/store"
)

// TopicEntry defines one topic cluster: trigger patterns that detect
// it in a query and the anchor documents that consolidate its content.
type TopicEntry struct {
	Name              string   `yaml:"name"`
	Label             string   `yaml:"label"`
	Patterns          []string `yaml:"patterns"`
	RelatedTerms      []string `yaml:"related_terms"`
	AnchorDocIDs      []string `yaml:"anchor_doc_ids"`
	MinPatternMatches int      `yaml:"min_pattern_matches"`

	compiled []*regexp.Regexp
}

// topicFile is the YAML document shape.
type topicFile struct {
	Topics []*TopicEntry `yaml:"topics"`
}

// TopicTable holds the compiled topic entries. Read-only at query
// time; Reload swaps the whole entry set for admin use.
type TopicTable struct {
	mu      sync.RWMutex
	entries []*TopicEntry
}

// LoadTopicTable parses and compiles a topic table from YAML.
func LoadTopicTable(data []byte) (*TopicTable, error) {
	entries, err := parseTopicYAML(data)
	if err != nil {
		return nil, err
	}
	return &TopicTable{entries: entries}, nil
}

// Reload replaces the entry set. Queries in flight keep seeing the
// entries they started with.
func (t *TopicTable) Reload(data []byte) error {
	entries, err := parseTopicYAML(data)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	return nil
}

func parseTopicYAML(data []byte) ([]*TopicEntry, error) {
	var file topicFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, coverrors.New(coverrors.ErrCodeTopicsInvalid, "parse topic table", err)
	}
	for _, entry := range file.Topics {
		if entry.Name == "" {
			return nil, coverrors.New(coverrors.ErrCodeTopicsInvalid, "topic entry missing name", nil)
		}
		if entry.Label == "" {
			entry.Label = entry.Name
		}
		if entry.MinPatternMatches < 1 {
			entry.MinPatternMatches = 1
		}
		if len(entry.AnchorDocIDs) == 0 {
			entry.AnchorDocIDs = []string{"topic_" + entry.Name}
		}
		entry.compiled = make([]*regexp.Regexp, 0, len(entry.Patterns)+len(entry.RelatedTerms))
		for _, p := range entry.Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, coverrors.New(coverrors.ErrCodeTopicsInvalid,
					fmt.Sprintf("topic %s: bad pattern %q", entry.Name, p), err)
			}
			entry.compiled = append(entry.compiled, re)
		}
		for _, term := range entry.RelatedTerms {
			entry.compiled = append(entry.compiled,
				regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(term)+`\b`))
		}
	}
	return file.Topics, nil
}

// Detect returns the names of the topics whose trigger patterns match
// the query at least MinPatternMatches times, in table order.
func (t *TopicTable) Detect(query string) []string {
	t.mu.RLock()
	entries := t.entries
	t.mu.RUnlock()

	var topics []string
	for _, entry := range entries {
		matches := 0
		for _, p := range entry.compiled {
			if p.MatchString(query) {
				matches++
			}
		}
		if matches >= entry.MinPatternMatches {
			topics = append(topics, entry.Name)
		}
	}
	return topics
}

// Entries returns a snapshot of the current entry set.
func (t *TopicTable) Entries() []*TopicEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*TopicEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// anchorIDs collects anchor doc IDs for the given topics in table
// order without duplicates.
func (t *TopicTable) anchorIDs(topics []string) []string {
	t.mu.RLock()
	entries := t.entries
	t.mu.RUnlock()

	want := make(map[string]bool, len(topics))
	for _, name := range topics {
		want[name] = true
	}
	seen := make(map[string]bool)
	var ids []string
	for _, entry := range entries {
		if !want[entry.Name] {
			continue
		}
		for _, id := range entry.AnchorDocIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// DefaultAnchorCacheSize bounds the anchor document cache.
const DefaultAnchorCacheSize = 128

// anchorFetcher is the slice of the content store the injector needs.
type anchorFetcher interface {
	GetByIDs(ctx context.Context, ids []string) ([]*store.Document, error)
}

// AnchorInjector prepends topic anchor documents to a result list.
// Anchors are fetched through an LRU cache; anchor IDs that do not
// exist in the store are silently skipped. Injection never duplicates
// a document already present and never exceeds the limit.
type AnchorInjector struct {
	table  *TopicTable
	source anchorFetcher
	cache  *lru.Cache[string, *store.Document]
	logger *slog.Logger
}

// NewAnchorInjector builds an injector with the given cache size.
func NewAnchorInjector(table *TopicTable, source anchorFetcher, cacheSize int, logger *slog.Logger) (*AnchorInjector, error) {
	if cacheSize < 1 {
		cacheSize = DefaultAnchorCacheSize
	}
	cache, err := lru.New[string, *store.Document](cacheSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnchorInjector{table: table, source: source, cache: cache, logger: logger}, nil
}

// Inject detects topics in the query and prepends their anchor
// documents above the organic results, keeping the total at limit.
// Errors fetching anchors degrade to no injection; anchors are a
// boost, never a failure mode.
func (a *AnchorInjector) Inject(ctx context.Context, query string, results []*RetrievedDocument, limit int) []*RetrievedDocument {
	topics := a.table.Detect(query)
	if len(topics) == 0 {
		return truncate(results, limit)
	}

	ids := a.table.anchorIDs(topics)
	anchors, err := a.fetchAnchors(ctx, ids)
	if err != nil {
		a.logger.Warn("anchor_fetch_failed", slog.String("error", err.Error()))
		return truncate(results, limit)
	}
	if len(anchors) == 0 {
		return truncate(results, limit)
	}

	present := make(map[string]bool, len(results))
	for _, r := range results {
		present[r.Document.ID] = true
	}

	injected := make([]*RetrievedDocument, 0, len(anchors)+len(results))
	for _, doc := range anchors {
		if present[doc.ID] {
			continue
		}
		present[doc.ID] = true
		injected = append(injected, &RetrievedDocument{Document: doc, Anchor: true})
	}
	if len(injected) > 0 {
		a.logger.Debug("anchors_injected",
			slog.Int("count", len(injected)),
			slog.Any("topics", topics))
	}
	return truncate(append(injected, results...), limit)
}

// fetchAnchors resolves anchor IDs through the cache, batch-fetching
// the misses. Missing IDs simply do not appear in the result.
func (a *AnchorInjector) fetchAnchors(ctx context.Context, ids []string) ([]*store.Document, error) {
	found := make(map[string]*store.Document, len(ids))
	var misses []string
	for _, id := range ids {
		if doc, ok := a.cache.Get(id); ok {
			found[id] = doc
		} else {
			misses = append(misses, id)
		}
	}

	if len(misses) > 0 {
		docs, err := a.source.GetByIDs(ctx, misses)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			found[doc.ID] = doc
			a.cache.Add(doc.ID, doc)
		}
	}

	// Preserve table order.
	out := make([]*store.Document, 0, len(found))
	for _, id := range ids {
		if doc, ok := found[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func truncate(results []*RetrievedDocument, limit int) []*RetrievedDocument {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
