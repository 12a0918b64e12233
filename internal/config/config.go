package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/liamcoop/rulepack/internal/logger"
	"github.com/liamcoop/rulepack/rules"
)

const (
	// AppName is the application name.
	AppName = "rulepack"
	// ConfigFileName is the config file looked up in the working directory.
	ConfigFileName = "rulepack.toml"
	// EnvPrefix prefixes every environment override, e.g. RULEPACK_RESOLVER_TIMEOUT.
	EnvPrefix = "RULEPACK"
)

// Config is the complete rulepack configuration
type Config struct {
	Resolver ResolverConfig    `mapstructure:"resolver"`
	Pipeline PipelineConfig    `mapstructure:"pipeline"`
	Named    map[string]string `mapstructure:"named"`
	Classes  ClassesConfig     `mapstructure:"classes"`
	Store    StoreConfig       `mapstructure:"store"`
	Log      LogConfig         `mapstructure:"log"`
	Watch    WatchConfig       `mapstructure:"watch"`
}

// ResolverConfig bounds source access
type ResolverConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// PipelineConfig controls request processing
type PipelineConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	Mode        string `mapstructure:"mode"`
}

// ClassesConfig points at the TOML class registry
type ClassesConfig struct {
	File string `mapstructure:"file"`
}

// StoreConfig configures the optional Postgres named store
type StoreConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

// LogConfig configures internal/logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WatchConfig configures directory hot reload
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// LoadOptions selects where configuration is read from
type LoadOptions struct {
	// ConfigFilePath is used exclusively when set and must exist
	ConfigFilePath string
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *Config {
	return &Config{
		Resolver: ResolverConfig{Timeout: 10 * time.Second},
		Pipeline: PipelineConfig{Concurrency: 4, Mode: "summarize"},
		Named:    map[string]string{},
		Log:      LogConfig{Level: "info", Format: logger.FormatConsole},
		Watch:    WatchConfig{Debounce: 500 * time.Millisecond},
	}
}

// Load reads defaults, then the config file, then RULEPACK_* environment overrides.
// It returns the parsed config and the path of the file used ("" when none).
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("resolver.timeout", defaults.Resolver.Timeout)
	v.SetDefault("pipeline.concurrency", defaults.Pipeline.Concurrency)
	v.SetDefault("pipeline.mode", defaults.Pipeline.Mode)
	v.SetDefault("named", defaults.Named)
	v.SetDefault("classes.file", defaults.Classes.File)
	v.SetDefault("store.database_url", defaults.Store.DatabaseURL)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	switch {
	case opts.ConfigFilePath != "":
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", fmt.Errorf("config file not found: %s", opts.ConfigFilePath)
		}
		resolvedPath = opts.ConfigFilePath
	case fileExists(ConfigFileName):
		resolvedPath = ConfigFileName
	}

	if resolvedPath != "" {
		v.SetConfigFile(resolvedPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config file %s: %w", resolvedPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Named == nil {
		cfg.Named = map[string]string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, resolvedPath, nil
}

// Validate checks value ranges and enumerations that decoding cannot
func (c *Config) Validate() error {
	var errs []error

	if c.Resolver.Timeout < 0 {
		errs = append(errs, fmt.Errorf("resolver.timeout must not be negative, got %s", c.Resolver.Timeout))
	}
	if c.Pipeline.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency must not be negative, got %d", c.Pipeline.Concurrency))
	}
	if _, err := rules.ParseProcessMode(c.Pipeline.Mode); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.mode: %w", err))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case logger.FormatJSON, logger.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Watch.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must be positive, got %s", c.Watch.Debounce))
	}
	for name := range c.Named {
		if err := rules.ValidateIdentifier(name); err != nil {
			errs = append(errs, fmt.Errorf("named.%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
