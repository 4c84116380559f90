package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelManagerVersions(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewModelManager(dir)
	require.NoError(t, err)
	assert.Nil(t, mm.GetCurrentVersion())

	_, err = mm.AddVersion("v1", filepath.Join(dir, "v1.json"), ModelMetrics{AUCScore: 0.8})
	require.NoError(t, err)
	_, err = mm.AddVersion("v2", filepath.Join(dir, "v2.json"), ModelMetrics{AUCScore: 0.85})
	require.NoError(t, err)

	_, err = mm.AddVersion("v2", "dup.json", ModelMetrics{})
	assert.Error(t, err)
	assert.True(t, mm.HasVersion("v2"))
	assert.False(t, mm.HasVersion("v3"))

	require.NoError(t, mm.ActivateVersion("v2"))
	require.NotNil(t, mm.GetCurrentVersion())
	assert.Equal(t, "v2", mm.GetCurrentVersion().Version)
	assert.Error(t, mm.ActivateVersion("v9"))

	require.NoError(t, mm.Rollback())
	assert.Equal(t, "v1", mm.GetCurrentVersion().Version)
	assert.Error(t, mm.Rollback(), "nothing older than v1")

	// state survives a reopen
	reopened, err := NewModelManager(dir)
	require.NoError(t, err)
	assert.Len(t, reopened.ListVersions(), 2)
	assert.Equal(t, "v1", reopened.GetCurrentVersion().Version)
	assert.Equal(t, 0.8, reopened.GetCurrentVersion().Metrics.AUCScore)
}

func TestModelManagerLoadActive(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewModelManager(dir)
	require.NoError(t, err)

	_, _, err = mm.LoadActive()
	assert.Error(t, err)

	path := filepath.Join(dir, "bundle.json")
	require.NoError(t, SaveBundle(path, constantBundle([]string{"vma"}, 0.4, 0.67)))
	_, err = mm.AddVersion("v1", path, ModelMetrics{})
	require.NoError(t, err)
	require.NoError(t, mm.ActivateVersion("v1"))

	b, v, err := mm.LoadActive()
	require.NoError(t, err)
	assert.Equal(t, "v1", v.Version)
	assert.Equal(t, []string{"vma"}, b.Features)
}

func TestModelManagerCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model_versions.json"), []byte("{broken"), 0o600))

	mm, err := NewModelManager(dir)
	require.NoError(t, err)
	assert.Empty(t, mm.ListVersions())

	_, err = NewModelManager("")
	assert.Error(t, err)
}
