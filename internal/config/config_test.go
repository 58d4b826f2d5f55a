package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"MEMESEARCH_DATA_DIR",
	"MEMESEARCH_SEMANTIC_WEIGHT",
	"MEMESEARCH_LEXICAL_WEIGHT",
	"MEMESEARCH_SEARCH_LIMIT",
	"MEMESEARCH_EMBEDDINGS_PROVIDER",
	"MEMESEARCH_EMBEDDER",
	"MEMESEARCH_EMBEDDINGS_ENDPOINT",
	"MEMESEARCH_EMBEDDINGS_MODEL",
	"MEMESEARCH_TOKENIZER",
	"MEMESEARCH_OCR_ENABLED",
	"MEMESEARCH_OCR_COMMAND",
	"MEMESEARCH_SYNC_INTERVAL",
	"MEMESEARCH_SYNC_WORKERS",
	"MEMESEARCH_WATCH",
	"MEMESEARCH_SOCKET",
	"MEMESEARCH_LOG_LEVEL",
}

// isolate points the user config and data dir at temp directories and
// clears every MEMESEARCH_* variable.
func isolate(t *testing.T) (configHome, dataDir string) {
	t.Helper()
	configHome = t.TempDir()
	dataDir = t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	return configHome, dataDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// =============================================================================
// Defaults
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.3, cfg.Search.LexicalWeight)
	assert.Equal(t, 1.0, cfg.Search.ExactScore)
	assert.Equal(t, 0.5, cfg.Search.TokenScore)
	assert.Equal(t, 512, cfg.Search.BatchSize)
	assert.Equal(t, 24, cfg.Search.WarmThumbnails)

	assert.Equal(t, "http", cfg.Embeddings.Provider)
	assert.Equal(t, 512, cfg.Embeddings.Dimensions)
	assert.Equal(t, 60*time.Second, cfg.Embeddings.Timeout)

	assert.True(t, cfg.OCR.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, max(runtime.NumCPU()/2, 1), cfg.Sync.Workers)
	assert.True(t, cfg.Sync.Watch)
	assert.True(t, cfg.Sync.PregenerateThumbnails)

	assert.Equal(t, 200, cfg.Thumbnails.Size)
	assert.Equal(t, 85, cfg.Thumbnails.Quality)
	assert.Equal(t, "info", cfg.Server.LogLevel)

	require.NoError(t, cfg.Validate())
}

func TestDefaultDataDir_FollowsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "memesearch"), DefaultDataDir())
}

func TestGetUserConfigPath_FollowsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "memesearch", "config.yaml"), GetUserConfigPath())
	assert.False(t, UserConfigExists())
}

func TestDerivedPaths(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.DataDir = "/data"

	assert.Equal(t, "/data/index.db", cfg.StorePath())
	assert.Equal(t, "/data/thumbnails", cfg.ThumbnailDir())
	assert.Equal(t, "/data/memesearch.sock", cfg.SocketPath())
	assert.Equal(t, "/data/memesearch.lock", cfg.LockPath())
	assert.Equal(t, "/data/memesearch.pid", cfg.PIDPath())
	assert.Equal(t, "/data/logs", cfg.LogDir())

	cfg.Thumbnails.Dir = "/cache/thumbs"
	cfg.Server.SocketPath = "/run/ms.sock"
	assert.Equal(t, "/cache/thumbs", cfg.ThumbnailDir())
	assert.Equal(t, "/run/ms.sock", cfg.SocketPath())
}

// =============================================================================
// Layering
// =============================================================================

func TestLoad_NoFiles_UsesDefaults(t *testing.T) {
	_, dataDir := isolate(t)

	cfg, err := Load(dataDir)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.Paths.DataDir)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
}

func TestLoad_UserConfigThenDataDirConfig(t *testing.T) {
	configHome, dataDir := isolate(t)

	writeFile(t, filepath.Join(configHome, "memesearch", "config.yaml"), `
search:
  semantic_weight: 0.6
  lexical_weight: 0.4
embeddings:
  model: user-model
sync:
  interval: 10m
paths:
  exclude: ["**/private/**"]
`)
	writeFile(t, filepath.Join(dataDir, "config.yaml"), `
embeddings:
  model: data-model
sync:
  watch: false
paths:
  exclude: ["**/tmp/**"]
`)

	cfg, err := Load(dataDir)
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Search.SemanticWeight)
	assert.Equal(t, "data-model", cfg.Embeddings.Model, "data-dir config wins over user config")
	assert.Equal(t, 10*time.Minute, cfg.Sync.Interval)
	assert.False(t, cfg.Sync.Watch, "explicit false is honoured")
	assert.Equal(t, []string{"**/private/**", "**/tmp/**"}, cfg.Paths.Exclude)
}

func TestLoad_UserConfigSelectsDataDir(t *testing.T) {
	configHome, dataDir := isolate(t)
	writeFile(t, filepath.Join(configHome, "memesearch", "config.yaml"), "paths:\n  data_dir: "+dataDir+"\n")
	writeFile(t, filepath.Join(dataDir, "config.yaml"), "thumbnails:\n  size: 128\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.Paths.DataDir)
	assert.Equal(t, 128, cfg.Thumbnails.Size)
}

func TestLoad_DataDirConfigCannotMoveDataDir(t *testing.T) {
	_, dataDir := isolate(t)
	writeFile(t, filepath.Join(dataDir, "config.yaml"), "paths:\n  data_dir: /elsewhere\n")

	cfg, err := Load(dataDir)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.Paths.DataDir)
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	_, dataDir := isolate(t)
	writeFile(t, filepath.Join(dataDir, "config.yaml"), "embeddings:\n  provider: http\n")

	t.Setenv("MEMESEARCH_EMBEDDER", "static")
	t.Setenv("MEMESEARCH_SEMANTIC_WEIGHT", "1")
	t.Setenv("MEMESEARCH_LEXICAL_WEIGHT", "0")
	t.Setenv("MEMESEARCH_SYNC_INTERVAL", "90s")
	t.Setenv("MEMESEARCH_OCR_ENABLED", "false")
	t.Setenv("MEMESEARCH_LOG_LEVEL", "debug")

	cfg, err := Load(dataDir)
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 1.0, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.0, cfg.Search.LexicalWeight, "env can force a zero weight")
	assert.Equal(t, 90*time.Second, cfg.Sync.Interval)
	assert.False(t, cfg.OCR.Enabled)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_MalformedEnvIsIgnored(t *testing.T) {
	_, dataDir := isolate(t)
	t.Setenv("MEMESEARCH_SYNC_WORKERS", "many")
	t.Setenv("MEMESEARCH_SEMANTIC_WEIGHT", "2.5")

	cfg, err := Load(dataDir)
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Sync.Workers, cfg.Sync.Workers)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	_, dataDir := isolate(t)
	work := t.TempDir()
	writeFile(t, filepath.Join(work, ".env"), "MEMESEARCH_EMBEDDINGS_MODEL=from-dotenv\nMEMESEARCH_LOG_LEVEL=error\n")
	t.Chdir(work)
	t.Setenv("MEMESEARCH_LOG_LEVEL", "warn")
	// An empty variable still counts as set for godotenv.
	require.NoError(t, os.Unsetenv("MEMESEARCH_EMBEDDINGS_MODEL"))

	cfg, err := Load(dataDir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Embeddings.Model)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
}

func TestLoad_DataDirFlagWinsOverEnv(t *testing.T) {
	_, dataDir := isolate(t)
	t.Setenv("MEMESEARCH_DATA_DIR", t.TempDir())

	cfg, err := Load(dataDir)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.Paths.DataDir)
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	_, dataDir := isolate(t)
	writeFile(t, filepath.Join(dataDir, "config.yaml"), "search: [unclosed\n")

	_, err := Load(dataDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_InvalidValues_ReturnError(t *testing.T) {
	_, dataDir := isolate(t)
	writeFile(t, filepath.Join(dataDir, "config.yaml"), "search:\n  semantic_weight: 0.9\n")

	_, err := Load(dataDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_ExtensionsAreNormalized(t *testing.T) {
	_, dataDir := isolate(t)
	writeFile(t, filepath.Join(dataDir, "config.yaml"), "paths:\n  extensions: [PNG, .Jpg, '']\n")

	cfg, err := Load(dataDir)
	require.NoError(t, err)
	assert.Equal(t, []string{".png", ".jpg"}, cfg.Paths.Extensions)
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty data dir", func(c *Config) { c.Paths.DataDir = "" }, "data_dir"},
		{"weight out of range", func(c *Config) { c.Search.SemanticWeight = 1.5 }, "semantic_weight must be between"},
		{"weights do not sum", func(c *Config) { c.Search.LexicalWeight = 0.5 }, "must equal 1.0"},
		{"token above exact", func(c *Config) { c.Search.TokenScore = 2 }, "token_score"},
		{"zero batch", func(c *Config) { c.Search.BatchSize = 0 }, "batch_size"},
		{"negative limit", func(c *Config) { c.Search.Limit = -1 }, "limit"},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "onnx" }, "embeddings.provider"},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }, "dimensions"},
		{"ocr without command", func(c *Config) { c.OCR.Enabled = true; c.OCR.Command = " " }, "ocr.command"},
		{"short interval", func(c *Config) { c.Sync.Interval = time.Millisecond }, "sync.interval"},
		{"zero workers", func(c *Config) { c.Sync.Workers = 0 }, "sync.workers"},
		{"negative rate", func(c *Config) { c.Sync.ThumbnailRate = -1 }, "thumbnail_rate"},
		{"tiny thumbnails", func(c *Config) { c.Thumbnails.Size = 4 }, "thumbnails.size"},
		{"bad quality", func(c *Config) { c.Thumbnails.Quality = 101 }, "thumbnails.quality"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "trace" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// =============================================================================
// Writing and migration
// =============================================================================

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	_, dataDir := isolate(t)

	cfg := NewConfig()
	cfg.Paths.DataDir = dataDir
	cfg.Sync.Interval = 15 * time.Minute
	cfg.Sync.Watch = false
	cfg.Embeddings.Provider = "static"
	require.NoError(t, cfg.WriteYAML(filepath.Join(dataDir, "config.yaml")))

	loaded, err := Load(dataDir)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, loaded.Sync.Interval)
	assert.False(t, loaded.Sync.Watch)
	assert.Equal(t, "static", loaded.Embeddings.Provider)
}

func TestMergeNewDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Search.TokenScore = 0.25

	added := cfg.MergeNewDefaults()

	assert.Contains(t, added, "search.exact_score")
	assert.NotContains(t, added, "search.token_score")
	assert.Equal(t, 0.25, cfg.Search.TokenScore)
	assert.Equal(t, 1.0, cfg.Search.ExactScore)
	assert.Empty(t, cfg.MergeNewDefaults(), "second pass adds nothing")
}

func TestLoadFile_ReadsOnlyTheFile(t *testing.T) {
	_, dataDir := isolate(t)
	path := filepath.Join(dataDir, "config.yaml")
	writeFile(t, path, "search:\n  token_score: 0.4\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.Search.TokenScore)
	assert.Zero(t, cfg.Search.ExactScore, "defaults are not applied")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memesearch config init")
}
