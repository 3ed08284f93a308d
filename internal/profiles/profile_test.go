package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
)

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "thorough.yaml", "code_similarity_threshold: 0.75\nconcurrency: 8\n")

	p, err := Load(dir, "thorough")
	require.NoError(t, err)
	require.NotNil(t, p.CodeSimilarityThreshold)
	assert.Equal(t, 0.75, *p.CodeSimilarityThreshold)
	require.NotNil(t, p.Concurrency)
	assert.Equal(t, 8, *p.Concurrency)
	assert.Nil(t, p.Workers, "unset knobs stay nil")
}

func TestLoad_YmlExtension(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "quick.yml", "embed_batch_size: 16\n")

	p, err := Load(dir, "quick")
	require.NoError(t, err)
	require.NotNil(t, p.EmbedBatchSize)
	assert.Equal(t, 16, *p.EmbedBatchSize)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir, "missing")
	assert.Error(t, err)

	_, err = Load(dir, "")
	assert.Error(t, err)

	_, err = Load(dir, "../escape")
	assert.Error(t, err)

	writeProfile(t, dir, "broken.yaml", "concurrency: [not an int\n")
	_, err = Load(dir, "broken")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "a.yaml", "")
	writeProfile(t, dir, "b.yml", "")
	writeProfile(t, dir, "notes.txt", "")

	names, err := List(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	names, err = List(filepath.Join(dir, "does-not-exist"))
	require.NoError(t, err)
	assert.Nil(t, names)
}

func TestApply_OverridesOnlySetFields(t *testing.T) {
	base := config.ScanConfig{
		CodeSimilarityThreshold:   0.85,
		IntentSimilarityThreshold: 0.80,
		Concurrency:               4,
		EmbedBatchSize:            64,
		TokenBudgetFactor:         0.9,
		Workers:                   2,
		MaxRetries:                3,
	}
	threshold := 0.7
	zero := 0
	p := Profile{
		CodeSimilarityThreshold: &threshold,
		Workers:                 &zero,
	}

	out := p.Apply(base)
	assert.Equal(t, 0.7, out.CodeSimilarityThreshold)
	assert.Equal(t, 0, out.Workers, "explicit zero wins over the base value")
	assert.Equal(t, 0.80, out.IntentSimilarityThreshold)
	assert.Equal(t, 4, out.Concurrency)
	assert.Equal(t, 3, out.MaxRetries)
}
