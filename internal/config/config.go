// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lorebook-dev/lorebook/internal/embedding"
	"github.com/lorebook-dev/lorebook/internal/store"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LOREBOOK_NETWORKING_LISTEN.
const EnvPrefix = "LOREBOOK"

// Config is the top-level lorebook configuration.
type Config struct {
	Networking NetworkingConfig `mapstructure:"networking"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Entries    EntriesConfig    `mapstructure:"entries"`
	Search     SearchConfig     `mapstructure:"search"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	DataDir    string           `mapstructure:"data_dir"`
}

// NetworkingConfig controls the HTTP listener.
type NetworkingConfig struct {
	Listen       string        `mapstructure:"listen"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig selects and configures the vector store.
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	URL              string `mapstructure:"url"`
	APIKey           string `mapstructure:"api_key"`
	GRPCPort         int    `mapstructure:"grpc_port"`
	Collection       string `mapstructure:"collection"`
	CreateCollection bool   `mapstructure:"create_collection"`
	Path             string `mapstructure:"path"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	Dimensions int    `mapstructure:"dimensions"`
}

// EntriesConfig tunes entry listing and updates.
type EntriesConfig struct {
	ListLimit    int  `mapstructure:"list_limit"`
	StrictUpdate bool `mapstructure:"strict_update"`
}

// SearchConfig tunes similarity search.
type SearchConfig struct {
	TopK int `mapstructure:"top_k"`
}

// LoggingConfig controls the default slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	validBackends  = []string{"qdrant", "sqlite", "memory"}
	validProviders = []string{"openai", "ollama"}
	validLevels    = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"text", "json"}
)

// SetDefaults registers every key with its default value. Keys without a
// meaningful default are registered empty so Unmarshal sees env overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "0.0.0.0:5000")
	v.SetDefault("networking.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("networking.read_timeout", "30s")
	v.SetDefault("networking.write_timeout", "60s")

	v.SetDefault("storage.backend", "qdrant")
	v.SetDefault("storage.url", "")
	v.SetDefault("storage.api_key", "")
	v.SetDefault("storage.grpc_port", store.DefaultGRPCPort)
	v.SetDefault("storage.collection", store.DefaultCollection)
	v.SetDefault("storage.create_collection", true)
	v.SetDefault("storage.path", "lorebook.db")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-ada-002")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.endpoint", "")
	v.SetDefault("embedding.dimensions", store.DefaultVectorDimensions)

	v.SetDefault("entries.list_limit", 1000)
	v.SetDefault("entries.strict_update", false)
	v.SetDefault("search.top_k", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("data_dir", defaultDataDir())
}

// SetupEnv enables LOREBOOK_* overrides and binds the bare variable names
// used by existing deployments.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("storage.url", EnvPrefix+"_STORAGE_URL", "QDRANT_URL")
	_ = v.BindEnv("storage.api_key", EnvPrefix+"_STORAGE_API_KEY", "QDRANT_API_KEY")
	_ = v.BindEnv("embedding.api_key", EnvPrefix+"_EMBEDDING_API_KEY", "OPENAI_API_KEY")
}

// Load reads configuration from path (or defaults only when empty) with
// environment overrides applied, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, lberr.Errorf(lberr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, lberr.Errorf(lberr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return cfg, nil
}

// Decode unmarshals v without validating. Diagnostics use it to report every
// problem instead of stopping at the first failed load.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, lberr.Errorf(lberr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	cfg.DataDir = ExpandHome(cfg.DataDir)
	return &cfg, nil
}

// Validate checks the configuration for logical errors. All problems are
// collected rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateLimits()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if err := validateHostPort("networking.listen", c.Networking.Listen); err != nil {
		errs = append(errs, err)
	}

	for i, origin := range c.Networking.CORSOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = append(errs, invalid("config: networking.cors_origins[%d] must not be empty", i))
		}
	}

	if c.Networking.ReadTimeout <= 0 {
		errs = append(errs, invalid("config: networking.read_timeout must be greater than 0, got %s", c.Networking.ReadTimeout))
	}
	if c.Networking.WriteTimeout <= 0 {
		errs = append(errs, invalid("config: networking.write_timeout must be greater than 0, got %s", c.Networking.WriteTimeout))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	if !contains(validBackends, c.Storage.Backend) {
		errs = append(errs, invalid("config: storage.backend must be one of [%s], got %q",
			strings.Join(validBackends, ", "), c.Storage.Backend))
	}

	if c.Storage.Collection == "" {
		errs = append(errs, invalid("config: storage.collection must not be empty"))
	}

	switch c.Storage.Backend {
	case "qdrant":
		if c.Storage.GRPCPort < 1 || c.Storage.GRPCPort > 65535 {
			errs = append(errs, invalid("config: storage.grpc_port must be between 1 and 65535, got %d", c.Storage.GRPCPort))
		}
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, invalid("config: storage.path must not be empty for the sqlite backend"))
		}
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	if !contains(validProviders, c.Embedding.Provider) {
		errs = append(errs, invalid("config: embedding.provider must be one of [%s], got %q",
			strings.Join(validProviders, ", "), c.Embedding.Provider))
	}

	if c.Embedding.Model == "" {
		errs = append(errs, invalid("config: embedding.model must not be empty"))
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, invalid("config: embedding.dimensions must be greater than 0, got %d", c.Embedding.Dimensions))
	}

	return errs
}

func (c *Config) validateLimits() []error {
	var errs []error

	if c.Entries.ListLimit <= 0 {
		errs = append(errs, invalid("config: entries.list_limit must be greater than 0, got %d", c.Entries.ListLimit))
	}
	if c.Search.TopK <= 0 {
		errs = append(errs, invalid("config: search.top_k must be greater than 0, got %d", c.Search.TopK))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	if !contains(validLevels, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, invalid("config: logging.level must be one of [%s], got %q",
			strings.Join(validLevels, ", "), c.Logging.Level))
	}
	if !contains(validFormats, strings.ToLower(c.Logging.Format)) {
		errs = append(errs, invalid("config: logging.format must be one of [%s], got %q",
			strings.Join(validFormats, ", "), c.Logging.Format))
	}

	return errs
}

// StoreConfig maps the storage section onto the store factory's config. The
// vector size follows the embedding model.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Backend:          c.Storage.Backend,
		URL:              c.Storage.URL,
		APIKey:           c.Storage.APIKey,
		GRPCPort:         c.Storage.GRPCPort,
		Collection:       c.Storage.Collection,
		CreateCollection: c.Storage.CreateCollection,
		Path:             c.SQLitePath(),
		VectorDimensions: c.Embedding.Dimensions,
	}
}

// EmbeddingConfig maps the embedding section onto the provider registry's config.
func (c *Config) EmbeddingConfig() embedding.Config {
	return embedding.Config{
		Provider:   c.Embedding.Provider,
		Model:      c.Embedding.Model,
		APIKey:     c.Embedding.APIKey,
		Endpoint:   c.Embedding.Endpoint,
		Dimensions: c.Embedding.Dimensions,
	}
}

// SQLitePath resolves storage.path against data_dir unless it is absolute.
func (c *Config) SQLitePath() string {
	p := ExpandHome(c.Storage.Path)
	if p == "" || filepath.IsAbs(p) || c.DataDir == "" {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lorebook"
	}
	return filepath.Join(home, ".lorebook")
}

func validateHostPort(key, addr string) error {
	if addr == "" {
		return invalid("config: %s must not be empty", key)
	}

	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return lberr.Errorf(lberr.CodeConfigValidateInvalidValue,
			"config: %s must be a valid host:port address, got %q: %w", key, addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return invalid("config: %s port must be a number, got %q", key, portStr)
	}
	if port < 1 || port > 65535 {
		return invalid("config: %s port must be between 1 and 65535, got %d", key, port)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return lberr.Errorf(lberr.CodeConfigValidateInvalidValue, format, args...)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
