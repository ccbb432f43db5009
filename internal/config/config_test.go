package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coverrors "github.com/covrag/covrag/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 256, cfg.Vector.Dimensions)
	assert.Equal(t, "cos", cfg.Vector.Metric)
	assert.Equal(t, 8, cfg.Retrieval.Limit)
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 0.6, cfg.Retrieval.SemanticWeight)
	assert.Equal(t, 0.4, cfg.Retrieval.KeywordWeight)
	assert.Equal(t, 5, cfg.Retrieval.MaxQueryVariants)
	assert.Equal(t, 2, cfg.Retrieval.MinPerSource)
	assert.Equal(t, "wait", cfg.Retrieval.StalenessMode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Contains(t, cfg.Store.Path, "content.db")
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Retrieval, cfg.Retrieval)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, coverrors.ErrCodeConfigNotFound, coverrors.GetCode(err))
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/covrag
retrieval:
  limit: 12
  staleness_mode: serve-stale
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/covrag", cfg.DataDir)
	assert.Equal(t, 12, cfg.Retrieval.Limit)
	assert.Equal(t, "serve-stale", cfg.Retrieval.StalenessMode)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched keys keep their defaults.
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 256, cfg.Vector.Dimensions)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "retrieval: [")
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, coverrors.ErrCodeConfigInvalid, coverrors.GetCode(err))
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "retrieval:\n  limit: 12\n")

	t.Setenv("COVRAG_RETRIEVAL_LIMIT", "3")
	t.Setenv("COVRAG_SEMANTIC_WEIGHT", "0.7")
	t.Setenv("COVRAG_KEYWORD_WEIGHT", "0.3")
	t.Setenv("COVRAG_STALENESS_MODE", "serve-stale")
	t.Setenv("COVRAG_STORE_PATH", "/tmp/alt.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.Limit)
	assert.Equal(t, 0.7, cfg.Retrieval.SemanticWeight)
	assert.Equal(t, 0.3, cfg.Retrieval.KeywordWeight)
	assert.Equal(t, "serve-stale", cfg.Retrieval.StalenessMode)
	assert.Equal(t, "/tmp/alt.db", cfg.Store.Path)
}

func TestEnvIgnoresUnparseable(t *testing.T) {
	t.Setenv("COVRAG_RETRIEVAL_LIMIT", "a lot")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Retrieval.Limit)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dimensions", func(c *Config) { c.Vector.Dimensions = 0 }},
		{"negative semantic weight", func(c *Config) { c.Retrieval.SemanticWeight = -0.1 }},
		{"zero keyword weight", func(c *Config) { c.Retrieval.KeywordWeight = 0 }},
		{"zero rrf constant", func(c *Config) { c.Retrieval.RRFConstant = 0 }},
		{"zero limit", func(c *Config) { c.Retrieval.Limit = 0 }},
		{"zero variants", func(c *Config) { c.Retrieval.MaxQueryVariants = 0 }},
		{"zero min per source", func(c *Config) { c.Retrieval.MinPerSource = 0 }},
		{"unknown staleness mode", func(c *Config) { c.Retrieval.StalenessMode = "lazy" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, coverrors.ErrCodeConfigInvalid, coverrors.GetCode(err))
		})
	}
}
