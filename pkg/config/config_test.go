package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "flint.yaml")
	content := `
storage:
  type: local
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "cpu", cfg.Engine.Backend)
	assert.Equal(t, 0, cfg.Engine.Workers)
	assert.EqualValues(t, 256, cfg.Engine.ParallelThreshold)
	assert.EqualValues(t, 1024, cfg.Engine.GPUDispatchThreshold)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_CustomValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "flint.yaml")
	content := `
engine:
  backend: both
  workers: 4
storage:
  type: cos
  bucket: my-bucket
  region: ap-guangzhou
log:
  level: debug
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "both", cfg.Engine.Backend)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, "cos", cfg.Storage.Type)
	assert.Equal(t, "my-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "cpu", cfg.Engine.Backend)
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader("yaml", []byte("engine:\n  backend: gpu\n"))
	require.NoError(t, err)
	assert.Equal(t, "gpu", cfg.Engine.Backend)
}

func TestValidate_RejectsUnknownBackend(t *testing.T) {
	cfg := &Config{Engine: EngineConfig{Backend: "quantum"}, Storage: StorageConfig{Type: "local"}}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNegativeWorkers(t *testing.T) {
	cfg := &Config{Engine: EngineConfig{Backend: "cpu", Workers: -1}, Storage: StorageConfig{Type: "local"}}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownStorageType(t *testing.T) {
	cfg := &Config{Engine: EngineConfig{Backend: "cpu"}, Storage: StorageConfig{Type: "s3"}}
	assert.Error(t, cfg.Validate())
}
