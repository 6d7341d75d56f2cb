package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Acquire.FetchTimeout)
	assert.Equal(t, StoreBackendFile, cfg.Store.Backend)
	assert.Equal(t, OracleProviderOllama, cfg.Oracle.Provider)
	assert.Equal(t, float32(0.2), cfg.Oracle.Temperature)
	assert.Equal(t, ImageEngineTesseract, cfg.OCR.ImageEngine)
	assert.Len(t, cfg.Worker.Queues, 3)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
acquire:
  fetchTimeout: 10s
oracle:
  provider: vertex
  project: demo
store:
  backend: redis
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Acquire.FetchTimeout)
	assert.Equal(t, OracleProviderVertex, cfg.Oracle.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Oracle.Model)
	assert.Equal(t, StoreBackendRedis, cfg.Store.Backend)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Backend: "sqlite"}}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Oracle: OracleConfig{Provider: "openai"}}
	assert.Error(t, cfg.Validate())
}
