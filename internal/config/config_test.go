package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rulepack.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, path, err := Load(context.Background(), LoadOptions{})
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
[resolver]
timeout = "250ms"

[pipeline]
concurrency = 8
mode = "validate"

[named]
core = "R1\npattern=foo"
extra = "R2 true"

[classes]
file = "classes.toml"

[log]
level = "debug"
format = "json"

[watch]
debounce = "2s"
`)

	cfg, used, err := Load(context.Background(), LoadOptions{ConfigFilePath: path})
	require.NoError(t, err)
	assert.Equal(t, path, used)

	assert.Equal(t, 250*time.Millisecond, cfg.Resolver.Timeout)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, "validate", cfg.Pipeline.Mode)
	assert.Equal(t, map[string]string{"core": "R1\npattern=foo", "extra": "R2 true"}, cfg.Named)
	assert.Equal(t, "classes.toml", cfg.Classes.File)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "[pipeline]\nconcurrency = 8\n")
	t.Setenv("RULEPACK_PIPELINE_CONCURRENCY", "2")
	t.Setenv("RULEPACK_RESOLVER_TIMEOUT", "3s")
	t.Setenv("RULEPACK_STORE_DATABASE_URL", "postgres://localhost/rules")

	cfg, _, err := Load(context.Background(), LoadOptions{ConfigFilePath: path})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pipeline.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Resolver.Timeout)
	assert.Equal(t, "postgres://localhost/rules", cfg.Store.DatabaseURL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, _, err := Load(context.Background(), LoadOptions{ConfigFilePath: filepath.Join(t.TempDir(), "nope.toml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidValues(t *testing.T) {
	for name, content := range map[string]string{
		"mode":     "[pipeline]\nmode = \"compress\"\n",
		"level":    "[log]\nlevel = \"loud\"\n",
		"format":   "[log]\nformat = \"xml\"\n",
		"debounce": "[watch]\ndebounce = \"0s\"\n",
		"syntax":   "[pipeline\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := Load(context.Background(), LoadOptions{ConfigFilePath: writeConfig(t, content)})
			assert.Error(t, err)
		})
	}
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Load(ctx, LoadOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolver.Timeout = -time.Second
	cfg.Pipeline.Concurrency = -1
	cfg.Named["has space"] = "R1"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolver.timeout")
	assert.Contains(t, err.Error(), "pipeline.concurrency")
	assert.Contains(t, err.Error(), "named.has space")
}
