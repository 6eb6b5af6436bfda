package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/retina-api/internal/config"
	"github.com/Brownie44l1/retina-api/internal/model"
)

func testConfig(t *testing.T, modelDir string) config.Config {
	t.Helper()
	t.Setenv("MODEL_DIR", modelDir)
	return config.Load()
}

func TestRun_MissingModelDirNeverServes(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "my-trained-vit-model"))

	err := run(cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrArtifactNotFound)
	assert.Contains(t, err.Error(), "failed to load model")
}

func TestRun_MalformedModelDirNeverServes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{"), 0o644))
	cfg := testConfig(t, dir)

	err := run(cfg)

	assert.ErrorIs(t, err, model.ErrMalformedArtifact)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Server.DefaultTopK = 0

	err := run(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
