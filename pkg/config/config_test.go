package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, 0.5, cfg.Retrieval.Alpha)
	assert.Equal(t, 50, cfg.Retrieval.BM25CandidatePool)
	assert.Equal(t, 20, cfg.Retrieval.RerankCandidates)
	assert.Equal(t, "recursive", cfg.Corpus.ChunkingMode)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retrieval:
  topK: 5
  alpha: 0.7
corpus:
  chunkingMode: semantic
`), 0o644))
	t.Setenv("RAG_RETRIEVAL_ALPHA", "0.25")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 0.25, cfg.Retrieval.Alpha)
	assert.Equal(t, "semantic", cfg.Corpus.ChunkingMode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		target error
	}{
		{"alpha above one", func(c *Config) { c.Retrieval.Alpha = 1.5 }, apperrors.ErrConfiguration},
		{"negative alpha", func(c *Config) { c.Retrieval.Alpha = -0.1 }, apperrors.ErrConfiguration},
		{"pool below k", func(c *Config) { c.Retrieval.BM25CandidatePool = 3 }, apperrors.ErrConfiguration},
		{"zero k", func(c *Config) { c.Retrieval.TopK = 0 }, apperrors.ErrConfiguration},
		{"chunking mode", func(c *Config) { c.Corpus.ChunkingMode = "sentence" }, apperrors.ErrInvalidChunkingMode},
		{"overlap", func(c *Config) { c.Corpus.ChunkOverlap = c.Corpus.ChunkSize }, apperrors.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.target)
		})
	}

	assert.NoError(t, Default().Validate())
}
