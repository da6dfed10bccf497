package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/core"
	"github.com/poiesic/colloquy/index"
	"github.com/poiesic/colloquy/memory"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COLLOQUY_"

// Config holds every application setting.
type Config struct {
	// DataDir holds one index directory per session.
	DataDir string `yaml:"data_dir"`

	// Persona is the system message new sessions start with.
	Persona string `yaml:"persona"`

	AI     ai.Config    `yaml:"ai"`
	Index  IndexConfig  `yaml:"index"`
	Upload UploadConfig `yaml:"upload"`
	Server ServerConfig `yaml:"server"`
}

// IndexConfig controls chunking, embedding and retrieval.
type IndexConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	SearchK      int `yaml:"search_k"`
	BatchSize    int `yaml:"batch_size"`
	PoolSize     int `yaml:"pool_size"`

	// MaxContextChars bounds the retrieved text placed in a prompt.
	MaxContextChars int `yaml:"max_context_chars"`
}

// UploadConfig limits accepted files.
type UploadConfig struct {
	MaxBytes int64  `yaml:"max_bytes"`
	TempDir  string `yaml:"temp_dir"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DataDir: "./colloquy_storage",
		Persona: memory.DefaultPersona,
		AI:      *ai.DefaultConfig(),
		Index: IndexConfig{
			ChunkSize:       index.DefaultChunkSize,
			ChunkOverlap:    index.DefaultChunkOverlap,
			SearchK:         index.DefaultSearchK,
			BatchSize:       index.DefaultBatchSize,
			PoolSize:        index.DefaultPoolSize,
			MaxContextChars: 6000,
		},
		Upload: UploadConfig{MaxBytes: 64 << 20},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cfg.decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv reads variables from the given .env files into the process
// environment without overriding variables already set. With no files it
// reads ./.env, and a missing ./.env is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(files...)
}

// decode overlays YAML from r onto c. Unknown keys are rejected.
func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays COLLOQUY_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATA_DIR":        &c.DataDir,
		"PERSONA":         &c.Persona,
		"CHAT_HOST":       &c.AI.ChatHost,
		"EMBEDDING_HOST":  &c.AI.EmbeddingHost,
		"CHAT_MODEL":      &c.AI.ChatModel,
		"EMBEDDING_MODEL": &c.AI.EmbeddingModel,
		"API_KEY":         &c.AI.APIKey,
		"SERVER_ADDR":     &c.Server.Addr,
		"TEMP_DIR":        &c.Upload.TempDir,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "HOST"); ok {
		c.AI.ChatHost = v
		c.AI.EmbeddingHost = v
	}
	if v, ok := lookup(EnvPrefix + "PROMPT_STYLE"); ok {
		c.AI.PromptStyle = ai.PromptStyle(strings.ToLower(v))
	}
	if v, ok := lookup(EnvPrefix + "STOP_WORDS"); ok {
		c.AI.StopWords = splitList(v)
	}

	ints := map[string]*int{
		"CONTEXT_WINDOW": &c.AI.ContextWindow,
		"MAX_TOKENS":     &c.AI.MaxTokens,
		"CHUNK_SIZE":     &c.Index.ChunkSize,
		"CHUNK_OVERLAP":  &c.Index.ChunkOverlap,
		"SEARCH_K":       &c.Index.SearchK,
		"BATCH_SIZE":     &c.Index.BatchSize,
		"POOL_SIZE":      &c.Index.PoolSize,
	}
	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"TEMPERATURE":      &c.AI.Temperature,
		"TOOL_TEMPERATURE": &c.AI.ToolTemperature,
	}
	for name, dst := range floats {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = f
	}

	if v, ok := lookup(EnvPrefix + "STREAMING"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sSTREAMING: %w", EnvPrefix, err)
		}
		c.AI.Streaming = b
	}
	return nil
}

// Validate checks the configuration and normalizes the AI settings.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if err := c.AI.Validate(); err != nil {
		return err
	}
	if err := core.ValidateChunking(c.Index.ChunkSize, c.Index.ChunkOverlap); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Index.SearchK <= 0 {
		return errors.New("config: index.search_k must be positive")
	}
	if c.Index.BatchSize <= 0 || c.Index.PoolSize <= 0 {
		return errors.New("config: index.batch_size and index.pool_size must be positive")
	}
	if c.Index.MaxContextChars <= 0 {
		return errors.New("config: index.max_context_chars must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("config: upload.max_bytes must be positive")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
