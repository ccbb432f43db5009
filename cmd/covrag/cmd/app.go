package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/covrag/covrag/configs"
	"github.com/covrag/covrag/internal/config"
	"github.com/covrag/covrag/internal/embed"
	"github.com/covrag/covrag/internal/index"
	"github.com/covrag/covrag/internal/search"
	"github.com/covrag/covrag/internal/store"
)

// app bundles the wired retrieval stack for a CLI invocation.
type app struct {
	cfg       *config.Config
	content   *store.SQLiteContentStore
	vectors   *store.HNSWVectorStore
	lexical   *index.LexicalIndex
	embedder  embed.Embedder
	topics    *search.TopicTable
	retriever *search.Retriever
}

// openApp wires stores, index, and retriever from config. The vector
// index is loaded from disk when a previous save exists.
func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	content, err := store.NewSQLiteContentStore(cfg.Store.Path,
		store.WithHashLookupBatchSize(cfg.Store.HashLookupBatchSize),
		store.WithUpsertBatchSize(cfg.Store.UpsertBatchSize))
	if err != nil {
		return nil, err
	}

	vectors, err := store.NewHNSWVectorStore(store.VectorConfig{
		Dimensions: cfg.Vector.Dimensions,
		Metric:     cfg.Vector.Metric,
		M:          cfg.Vector.M,
		EfSearch:   cfg.Vector.EfSearch,
	})
	if err != nil {
		_ = content.Close()
		return nil, err
	}
	if _, statErr := os.Stat(cfg.Vector.Path); statErr == nil {
		if err := vectors.Load(cfg.Vector.Path); err != nil {
			slog.Warn("vector_index_load_failed",
				slog.String("path", cfg.Vector.Path),
				slog.String("error", err.Error()))
		}
	}

	lexical := index.NewLexicalIndex(content,
		index.WithStalenessMode(index.StalenessMode(cfg.Retrieval.StalenessMode)))

	topics, err := loadTopicTable(cfg.DataDir)
	if err != nil {
		_ = content.Close()
		_ = vectors.Close()
		return nil, err
	}

	embedder := embed.NewStaticEmbedder()

	anchors, err := search.NewAnchorInjector(topics, content, cfg.Retrieval.AnchorCacheSize, nil)
	if err != nil {
		_ = content.Close()
		_ = vectors.Close()
		return nil, err
	}

	retriever, err := search.NewRetriever(search.RetrieverConfig{
		Content:  content,
		Vectors:  vectors,
		Lexical:  lexical,
		Embedder: embedder,
		Anchors:  anchors,
		Weights: search.Weights{
			Semantic: cfg.Retrieval.SemanticWeight,
			Keyword:  cfg.Retrieval.KeywordWeight,
		},
		RRFConstant:      cfg.Retrieval.RRFConstant,
		MaxQueryVariants: cfg.Retrieval.MaxQueryVariants,
		MinPerSource:     cfg.Retrieval.MinPerSource,
		MaxParallel:      cfg.Retrieval.MaxParallel,
	})
	if err != nil {
		_ = content.Close()
		_ = vectors.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		content:   content,
		vectors:   vectors,
		lexical:   lexical,
		embedder:  embedder,
		topics:    topics,
		retriever: retriever,
	}, nil
}

// loadTopicTable prefers a data-dir override, falling back to the
// embedded default table.
func loadTopicTable(dataDir string) (*search.TopicTable, error) {
	override := filepath.Join(dataDir, "topics.yaml")
	if data, err := os.ReadFile(override); err == nil {
		return search.LoadTopicTable(data)
	}
	return search.LoadTopicTable(configs.DefaultTopics)
}

func (a *app) close() {
	_ = a.lexical.Close()
	_ = a.vectors.Close()
	_ = a.content.Close()
	_ = a.embedder.Close()
}
