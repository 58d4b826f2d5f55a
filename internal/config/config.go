package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the name of both the user and the data-dir config file.
const FileName = "config.yaml"

// Config represents the complete memesearch configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	OCR        OCRConfig        `yaml:"ocr" json:"ocr"`
	Sync       SyncConfig       `yaml:"sync" json:"sync"`
	Thumbnails ThumbnailsConfig `yaml:"thumbnails" json:"thumbnails"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig configures where state lives and which files are indexed.
type PathsConfig struct {
	// DataDir holds the index database, thumbnails, logs and the daemon socket.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Extensions overrides the eligible image extensions (lowercase, with dot).
	Extensions []string `yaml:"extensions" json:"extensions"`

	// Exclude holds extra glob patterns skipped by the scanner.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig configures hybrid ranking.
// Weights are configurable via:
//  1. User config (~/.config/memesearch/config.yaml)
//  2. Data-dir config (<data_dir>/config.yaml)
//  3. Env vars (MEMESEARCH_SEMANTIC_WEIGHT, MEMESEARCH_LEXICAL_WEIGHT)
type SearchConfig struct {
	// SemanticWeight scales the cosine similarity. Must sum to 1.0 with LexicalWeight.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// ExactScore is the lexical score when the OCR text contains the whole query.
	ExactScore float64 `yaml:"exact_score" json:"exact_score"`

	// TokenScore is the lexical score when any query word appears in the OCR text.
	TokenScore float64 `yaml:"token_score" json:"token_score"`

	BatchSize int     `yaml:"batch_size" json:"batch_size"`
	Limit     int     `yaml:"limit" json:"limit"`
	MinScore  float64 `yaml:"min_score" json:"min_score"`

	// WarmThumbnails is how many top results get their thumbnails loaded
	// in the background after a search.
	WarmThumbnails int `yaml:"warm_thumbnails" json:"warm_thumbnails"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "http" (CLIP inference server) or "static" (offline hashes).
	Provider   string        `yaml:"provider" json:"provider"`
	Endpoint   string        `yaml:"endpoint" json:"endpoint"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// Tokenizer assets. TokenizerPath (tokenizer.json) wins over the
	// vocab/merges pair.
	TokenizerPath string `yaml:"tokenizer_path" json:"tokenizer_path"`
	VocabPath     string `yaml:"vocab_path" json:"vocab_path"`
	MergesPath    string `yaml:"merges_path" json:"merges_path"`

	// CacheSize bounds the query embedding cache; negative disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// OCRConfig configures text extraction from images.
type OCRConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Command is run with the image on stdin and must print text on stdout.
	Command string        `yaml:"command" json:"command"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// SyncConfig configures background synchronization.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	Workers  int           `yaml:"workers" json:"workers"`

	// Watch enables filesystem notifications between scheduled passes.
	Watch    bool          `yaml:"watch" json:"watch"`
	Debounce time.Duration `yaml:"debounce" json:"debounce"`

	PregenerateThumbnails bool `yaml:"pregenerate_thumbnails" json:"pregenerate_thumbnails"`

	// ThumbnailRate caps pregenerated thumbnails per second; 0 means unlimited.
	ThumbnailRate float64 `yaml:"thumbnail_rate" json:"thumbnail_rate"`
}

// ThumbnailsConfig configures the thumbnail cache.
type ThumbnailsConfig struct {
	// Dir defaults to <data_dir>/thumbnails when empty.
	Dir     string `yaml:"dir" json:"dir"`
	Size    int    `yaml:"size" json:"size"`
	Quality int    `yaml:"quality" json:"quality"`
}

// ServerConfig configures the daemon.
type ServerConfig struct {
	// SocketPath defaults to <data_dir>/memesearch.sock when empty.
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: DefaultDataDir(),
		},
		Search: SearchConfig{
			SemanticWeight: 0.7,
			LexicalWeight:  0.3,
			ExactScore:     1.0,
			TokenScore:     0.5,
			BatchSize:      512,
			Limit:          0,
			MinScore:       0,
			WarmThumbnails: 24,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "http",
			Endpoint:   "http://localhost:9661",
			Model:      "clip-vit-b-32",
			Dimensions: 512,
			Timeout:    60 * time.Second,
			CacheSize:  256,
		},
		OCR: OCRConfig{
			Enabled: true,
			Command: "tesseract stdin stdout",
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			Interval:              5 * time.Minute,
			Workers:               max(runtime.NumCPU()/2, 1),
			Watch:                 true,
			Debounce:              2 * time.Second,
			PregenerateThumbnails: true,
			ThumbnailRate:         20,
		},
		Thumbnails: ThumbnailsConfig{
			Size:    200,
			Quality: 85,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// DefaultDataDir returns the default data directory. It follows the XDG Base
// Directory layout:
//   - $XDG_DATA_HOME/memesearch (if XDG_DATA_HOME is set)
//   - ~/.local/share/memesearch (default)
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "memesearch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "memesearch")
	}
	return filepath.Join(home, ".local", "share", "memesearch")
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/memesearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/memesearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "memesearch", FileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "memesearch", FileName)
	}
	return filepath.Join(home, ".config", "memesearch", FileName)
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration. Layers in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/memesearch/config.yaml)
//  3. Data-dir config (<data_dir>/config.yaml)
//  4. .env in the working directory (never overrides variables already set)
//  5. Environment variables (MEMESEARCH_*)
//
// A non-empty dataDir (the --data-dir flag) wins over every layer.
func Load(dataDir string) (*Config, error) {
	cfg := NewConfig()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	// The data dir has to be settled before its own config can be read.
	switch {
	case dataDir != "":
		cfg.Paths.DataDir = dataDir
	case os.Getenv("MEMESEARCH_DATA_DIR") != "":
		cfg.Paths.DataDir = os.Getenv("MEMESEARCH_DATA_DIR")
	}
	resolved := cfg.Paths.DataDir

	if path := filepath.Join(resolved, FileName); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	cfg.Paths.DataDir = resolved

	cfg.applyEnvOverrides()
	if dataDir != "" {
		cfg.Paths.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv sets variables from path that are not already in the
// environment. A missing file is fine.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Booleans cannot be told apart from "unset" after decoding, so they
	// are picked up from a second, pointer-typed pass.
	var flags boolOverrides
	if err := yaml.Unmarshal(data, &flags); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	flags.apply(c)
	return nil
}

// LoadFile parses a single config file as written, without defaults or
// other layers. Used to rewrite a file in place.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no config file at %s (create one with: memesearch config init)", path)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

type boolOverrides struct {
	OCR struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"ocr"`
	Sync struct {
		Watch                 *bool `yaml:"watch"`
		PregenerateThumbnails *bool `yaml:"pregenerate_thumbnails"`
	} `yaml:"sync"`
}

func (b boolOverrides) apply(c *Config) {
	if b.OCR.Enabled != nil {
		c.OCR.Enabled = *b.OCR.Enabled
	}
	if b.Sync.Watch != nil {
		c.Sync.Watch = *b.Sync.Watch
	}
	if b.Sync.PregenerateThumbnails != nil {
		c.Sync.PregenerateThumbnails = *b.Sync.PregenerateThumbnails
	}
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = expandHome(other.Paths.DataDir)
	}
	if len(other.Paths.Extensions) > 0 {
		c.Paths.Extensions = normalizeExtensions(other.Paths.Extensions)
	}
	if len(other.Paths.Exclude) > 0 {
		// Patterns accumulate across layers.
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	// Search. Zero is not a practical weight, so only non-zero values merge;
	// use the env vars to force a zero.
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.ExactScore != 0 {
		c.Search.ExactScore = other.Search.ExactScore
	}
	if other.Search.TokenScore != 0 {
		c.Search.TokenScore = other.Search.TokenScore
	}
	if other.Search.BatchSize != 0 {
		c.Search.BatchSize = other.Search.BatchSize
	}
	if other.Search.Limit != 0 {
		c.Search.Limit = other.Search.Limit
	}
	if other.Search.MinScore != 0 {
		c.Search.MinScore = other.Search.MinScore
	}
	if other.Search.WarmThumbnails != 0 {
		c.Search.WarmThumbnails = other.Search.WarmThumbnails
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Endpoint != "" {
		c.Embeddings.Endpoint = other.Embeddings.Endpoint
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.TokenizerPath != "" {
		c.Embeddings.TokenizerPath = expandHome(other.Embeddings.TokenizerPath)
	}
	if other.Embeddings.VocabPath != "" {
		c.Embeddings.VocabPath = expandHome(other.Embeddings.VocabPath)
	}
	if other.Embeddings.MergesPath != "" {
		c.Embeddings.MergesPath = expandHome(other.Embeddings.MergesPath)
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	// OCR
	if other.OCR.Command != "" {
		c.OCR.Command = other.OCR.Command
	}
	if other.OCR.Timeout != 0 {
		c.OCR.Timeout = other.OCR.Timeout
	}

	// Sync
	if other.Sync.Interval != 0 {
		c.Sync.Interval = other.Sync.Interval
	}
	if other.Sync.Workers != 0 {
		c.Sync.Workers = other.Sync.Workers
	}
	if other.Sync.Debounce != 0 {
		c.Sync.Debounce = other.Sync.Debounce
	}
	if other.Sync.ThumbnailRate != 0 {
		c.Sync.ThumbnailRate = other.Sync.ThumbnailRate
	}

	// Thumbnails
	if other.Thumbnails.Dir != "" {
		c.Thumbnails.Dir = expandHome(other.Thumbnails.Dir)
	}
	if other.Thumbnails.Size != 0 {
		c.Thumbnails.Size = other.Thumbnails.Size
	}
	if other.Thumbnails.Quality != 0 {
		c.Thumbnails.Quality = other.Thumbnails.Quality
	}

	// Server
	if other.Server.SocketPath != "" {
		c.Server.SocketPath = expandHome(other.Server.SocketPath)
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies MEMESEARCH_* environment variables. Malformed
// values are ignored and the previous layer's value is kept.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEMESEARCH_DATA_DIR"); v != "" {
		c.Paths.DataDir = expandHome(v)
	}

	// Search weights (explicit zero values are allowed here)
	if v := os.Getenv("MEMESEARCH_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("MEMESEARCH_LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("MEMESEARCH_SEARCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Search.Limit = n
		}
	}

	if v := os.Getenv("MEMESEARCH_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	// MEMESEARCH_EMBEDDER is an alias for MEMESEARCH_EMBEDDINGS_PROVIDER
	if v := os.Getenv("MEMESEARCH_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("MEMESEARCH_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("MEMESEARCH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("MEMESEARCH_TOKENIZER"); v != "" {
		c.Embeddings.TokenizerPath = expandHome(v)
	}

	if v := os.Getenv("MEMESEARCH_OCR_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.OCR.Enabled = b
		}
	}
	if v := os.Getenv("MEMESEARCH_OCR_COMMAND"); v != "" {
		c.OCR.Command = v
	}

	if v := os.Getenv("MEMESEARCH_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Sync.Interval = d
		}
	}
	if v := os.Getenv("MEMESEARCH_SYNC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sync.Workers = n
		}
	}
	if v := os.Getenv("MEMESEARCH_WATCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Sync.Watch = b
		}
	}

	if v := os.Getenv("MEMESEARCH_SOCKET"); v != "" {
		c.Server.SocketPath = expandHome(v)
	}
	if v := os.Getenv("MEMESEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir must not be empty")
	}

	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}
	sum := c.Search.SemanticWeight + c.Search.LexicalWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("semantic_weight + lexical_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.TokenScore < 0 || c.Search.TokenScore > c.Search.ExactScore {
		return fmt.Errorf("token_score must be between 0 and exact_score (%.2f), got %.2f", c.Search.ExactScore, c.Search.TokenScore)
	}
	if c.Search.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", c.Search.BatchSize)
	}
	if c.Search.Limit < 0 {
		return fmt.Errorf("limit must be non-negative, got %d", c.Search.Limit)
	}
	if c.Search.WarmThumbnails < 0 {
		return fmt.Errorf("warm_thumbnails must be non-negative, got %d", c.Search.WarmThumbnails)
	}

	validProviders := map[string]bool{"http": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'http' or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 1 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.Timeout <= 0 {
		return fmt.Errorf("embeddings.timeout must be positive, got %s", c.Embeddings.Timeout)
	}

	if c.OCR.Enabled && strings.TrimSpace(c.OCR.Command) == "" {
		return fmt.Errorf("ocr.command must be set when ocr is enabled")
	}

	if c.Sync.Interval < time.Second {
		return fmt.Errorf("sync.interval must be at least 1s, got %s", c.Sync.Interval)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be positive, got %d", c.Sync.Workers)
	}
	if c.Sync.Debounce < 0 {
		return fmt.Errorf("sync.debounce must be non-negative, got %s", c.Sync.Debounce)
	}
	if c.Sync.ThumbnailRate < 0 {
		return fmt.Errorf("sync.thumbnail_rate must be non-negative, got %f", c.Sync.ThumbnailRate)
	}

	if c.Thumbnails.Size < 16 || c.Thumbnails.Size > 2048 {
		return fmt.Errorf("thumbnails.size must be between 16 and 2048, got %d", c.Thumbnails.Size)
	}
	if c.Thumbnails.Quality < 1 || c.Thumbnails.Quality > 100 {
		return fmt.Errorf("thumbnails.quality must be between 1 and 100, got %d", c.Thumbnails.Quality)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// StorePath is the SQLite index database.
func (c *Config) StorePath() string { return filepath.Join(c.Paths.DataDir, "index.db") }

// ThumbnailDir is the on-disk thumbnail tier.
func (c *Config) ThumbnailDir() string {
	if c.Thumbnails.Dir != "" {
		return c.Thumbnails.Dir
	}
	return filepath.Join(c.Paths.DataDir, "thumbnails")
}

// SocketPath is the daemon's Unix socket.
func (c *Config) SocketPath() string {
	if c.Server.SocketPath != "" {
		return c.Server.SocketPath
	}
	return filepath.Join(c.Paths.DataDir, "memesearch.sock")
}

// LockPath guards single ownership of the data dir.
func (c *Config) LockPath() string { return filepath.Join(c.Paths.DataDir, "memesearch.lock") }

// PIDPath records the daemon's process id.
func (c *Config) PIDPath() string { return filepath.Join(c.Paths.DataDir, "memesearch.pid") }

// LogDir holds rotated log files.
func (c *Config) LogDir() string { return filepath.Join(c.Paths.DataDir, "logs") }

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeNewDefaults fills fields that an older config file leaves at zero.
// Returns the names of the fields that were added.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Search.ExactScore == 0 {
		c.Search.ExactScore = defaults.Search.ExactScore
		added = append(added, "search.exact_score")
	}
	if c.Search.TokenScore == 0 {
		c.Search.TokenScore = defaults.Search.TokenScore
		added = append(added, "search.token_score")
	}
	if c.Search.BatchSize == 0 {
		c.Search.BatchSize = defaults.Search.BatchSize
		added = append(added, "search.batch_size")
	}
	if c.Search.WarmThumbnails == 0 {
		c.Search.WarmThumbnails = defaults.Search.WarmThumbnails
		added = append(added, "search.warm_thumbnails")
	}
	if c.Embeddings.CacheSize == 0 {
		c.Embeddings.CacheSize = defaults.Embeddings.CacheSize
		added = append(added, "embeddings.cache_size")
	}
	if c.Sync.ThumbnailRate == 0 {
		c.Sync.ThumbnailRate = defaults.Sync.ThumbnailRate
		added = append(added, "sync.thumbnail_rate")
	}
	// Booleans can't distinguish "not set" from "false", so they are not migrated.

	return added
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
