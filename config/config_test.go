package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArtifacts drops placeholder model/tokenizer files so validation
// of the artifact paths passes.
func writeArtifacts(t *testing.T) (modelDir, tokenizerPath string) {
	t.Helper()
	dir := t.TempDir()
	modelDir = filepath.Join(dir, "model")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	tokenizerPath = filepath.Join(dir, "tokenizer.json")
	require.NoError(t, os.WriteFile(tokenizerPath, []byte("{}"), 0o644))
	return modelDir, tokenizerPath
}

func validConfig(t *testing.T) *Config {
	modelDir, tokenizerPath := writeArtifacts(t)
	return &Config{
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, Username: "app", Database: "gallery",
			SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 5,
			ConnMaxLifetime: time.Hour, AcquireTimeout: 5 * time.Second,
		},
		Embedding: EmbeddingConfig{
			ModelPath:     modelDir,
			TokenizerPath: tokenizerPath,
			ModelName:     "clip-vit-base-patch32",
			ModelVersion:  "v1",
			Dimension:     512,
			Device:        "cpu",
		},
	}
}

func TestValidateOK(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsEmptyHost(t *testing.T) {
	cfg := validConfig(t)
	cfg.Database.Host = ""
	assert.ErrorContains(t, cfg.Validate(), "database host")
}

func TestValidateRejectsBadDimension(t *testing.T) {
	cfg := validConfig(t)
	cfg.Embedding.Dimension = 0
	assert.ErrorContains(t, cfg.Validate(), "dimension")
}

func TestValidateRejectsMissingModelPath(t *testing.T) {
	cfg := validConfig(t)
	cfg.Embedding.ModelPath = filepath.Join(t.TempDir(), "nope")
	assert.ErrorContains(t, cfg.Validate(), "model path does not exist")
}

func TestValidateRejectsMissingTokenizer(t *testing.T) {
	cfg := validConfig(t)
	cfg.Embedding.TokenizerPath = filepath.Join(t.TempDir(), "missing.json")
	assert.ErrorContains(t, cfg.Validate(), "tokenizer path does not exist")
}

func TestValidateCreatesMediaPath(t *testing.T) {
	cfg := validConfig(t)
	mediaPath := filepath.Join(t.TempDir(), "media", "nested")
	cfg.Storage.MediaPath = mediaPath

	require.NoError(t, cfg.Validate())
	info, err := os.Stat(mediaPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db.internal", Port: 5433, Username: "app", Password: "s3cret",
		Database: "gallery", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db.internal user=app password=s3cret dbname=gallery port=5433 sslmode=require",
		cfg.DSN())
}

func TestLoadAppliesDefaults(t *testing.T) {
	modelDir, tokenizerPath := writeArtifacts(t)

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	content := "embedding:\n  model_path: " + modelDir + "\n  tokenizer_path: " + tokenizerPath + "\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 512, cfg.Embedding.Dimension)
	assert.Equal(t, "clip-vit-base-patch32", cfg.Embedding.ModelName)
	assert.Equal(t, "v1", cfg.Embedding.ModelVersion)
	assert.Equal(t, 4, cfg.Queue.WorkerCount)
	assert.Equal(t, 5*time.Second, cfg.Database.AcquireTimeout)
}
