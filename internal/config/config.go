// Package config loads covrag configuration: defaults, then an
// optional YAML file, then COVRAG_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	coverrors "github.com/covrag/covrag/internal/errors"
)

// Config is the root configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Store     StoreConfig     `yaml:"store"`
	Vector    VectorConfig    `yaml:"vector"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig tunes the content store.
type StoreConfig struct {
	Path                string `yaml:"path"`
	HashLookupBatchSize int    `yaml:"hash_lookup_batch_size"`
	UpsertBatchSize     int    `yaml:"upsert_batch_size"`
}

// VectorConfig tunes the vector index.
type VectorConfig struct {
	Path       string `yaml:"path"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"`
	M          int    `yaml:"m"`
	EfSearch   int    `yaml:"ef_search"`
}

// RetrievalConfig tunes query-time behavior.
type RetrievalConfig struct {
	Limit            int     `yaml:"limit"`
	RRFConstant      int     `yaml:"rrf_constant"`
	SemanticWeight   float64 `yaml:"semantic_weight"`
	KeywordWeight    float64 `yaml:"keyword_weight"`
	MaxQueryVariants int     `yaml:"max_query_variants"`
	MinPerSource     int     `yaml:"min_per_source"`
	MaxParallel      int     `yaml:"max_parallel"`
	StalenessMode    string  `yaml:"staleness_mode"`
	AnchorCacheSize  int     `yaml:"anchor_cache_size"`
}

// LoggingConfig tunes the slog setup.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		DataDir: dataDir,
		Store: StoreConfig{
			Path:                filepath.Join(dataDir, "content.db"),
			HashLookupBatchSize: 200,
			UpsertBatchSize:     200,
		},
		Vector: VectorConfig{
			Path:       filepath.Join(dataDir, "vectors.hnsw"),
			Dimensions: 256,
			Metric:     "cos",
			M:          16,
			EfSearch:   20,
		},
		Retrieval: RetrievalConfig{
			Limit:            8,
			RRFConstant:      60,
			SemanticWeight:   0.6,
			KeywordWeight:    0.4,
			MaxQueryVariants: 5,
			MinPerSource:     2,
			MaxParallel:      4,
			StalenessMode:    "wait",
			AnchorCacheSize:  128,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".covrag"
	}
	return filepath.Join(home, ".covrag")
}

// Load builds the effective config: defaults, overridden by the YAML
// file at path (missing file is fine when path is empty), overridden
// by COVRAG_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, coverrors.New(coverrors.ErrCodeConfigNotFound,
				fmt.Sprintf("read config %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, coverrors.New(coverrors.ErrCodeConfigInvalid,
				fmt.Sprintf("parse config %s", path), err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays COVRAG_* environment variables.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setString("COVRAG_DATA_DIR", &cfg.DataDir)
	setString("COVRAG_STORE_PATH", &cfg.Store.Path)
	setString("COVRAG_VECTOR_PATH", &cfg.Vector.Path)
	setInt("COVRAG_VECTOR_DIMENSIONS", &cfg.Vector.Dimensions)
	setInt("COVRAG_RETRIEVAL_LIMIT", &cfg.Retrieval.Limit)
	setInt("COVRAG_RRF_CONSTANT", &cfg.Retrieval.RRFConstant)
	setFloat("COVRAG_SEMANTIC_WEIGHT", &cfg.Retrieval.SemanticWeight)
	setFloat("COVRAG_KEYWORD_WEIGHT", &cfg.Retrieval.KeywordWeight)
	setInt("COVRAG_MAX_QUERY_VARIANTS", &cfg.Retrieval.MaxQueryVariants)
	setInt("COVRAG_MIN_PER_SOURCE", &cfg.Retrieval.MinPerSource)
	setInt("COVRAG_MAX_PARALLEL", &cfg.Retrieval.MaxParallel)
	setString("COVRAG_STALENESS_MODE", &cfg.Retrieval.StalenessMode)
	setString("COVRAG_LOG_LEVEL", &cfg.Logging.Level)
	setString("COVRAG_LOG_FILE", &cfg.Logging.FilePath)
}

// Validate rejects configurations the retriever cannot run with.
func (c *Config) Validate() error {
	invalid := func(msg string) error {
		return coverrors.New(coverrors.ErrCodeConfigInvalid, msg, nil)
	}
	if c.Vector.Dimensions <= 0 {
		return invalid("vector.dimensions must be positive")
	}
	if c.Retrieval.SemanticWeight <= 0 || c.Retrieval.KeywordWeight <= 0 {
		return invalid("retrieval weights must be positive")
	}
	if c.Retrieval.RRFConstant <= 0 {
		return invalid("retrieval.rrf_constant must be positive")
	}
	if c.Retrieval.Limit <= 0 {
		return invalid("retrieval.limit must be positive")
	}
	if c.Retrieval.MaxQueryVariants < 1 {
		return invalid("retrieval.max_query_variants must be at least 1")
	}
	if c.Retrieval.MinPerSource < 1 {
		return invalid("retrieval.min_per_source must be at least 1")
	}
	switch c.Retrieval.StalenessMode {
	case "wait", "serve-stale":
	default:
		return invalid(fmt.Sprintf("unknown staleness_mode %q", c.Retrieval.StalenessMode))
	}
	return nil
}
