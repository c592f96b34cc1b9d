package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewValidator().Validate(DefaultConfig()))
}

func TestLoader_Precedence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: v1.2.0
scheduler:
  chunk_size: 100
executor:
  parallelism: 4
transport:
  max_retries: 10
logging:
  level: debug
storage:
  backend: memory
`), 0o644))

	env := map[string]string{"DMAP_PARALLELISM": "6", "DMAP_QUEUE_SIZE": "8"}

	cfg, err := NewLoader().
		WithConfigPath(path).
		WithEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }).
		WithOverrides(map[string]string{"scheduler.chunk_size": "0", "logging.format": "json"}).
		Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.0", cfg.Version)
	assert.Equal(t, 0, cfg.Scheduler.ChunkSize, "override beats file")
	assert.Equal(t, 6, cfg.Executor.Parallelism, "env beats file")
	assert.Equal(t, 8, cfg.Transport.QueueSize, "env beats default")
	assert.Equal(t, 10, cfg.Transport.MaxRetries, "file beats default")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output, "default kept")
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().WithEnv(noEnv).WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.Error(t, err)

	_, err = NewLoader().WithEnv(noEnv).WithOverrides(map[string]string{"scheduler.nope": "1"}).Load()
	assert.Error(t, err)

	_, err = NewLoader().WithEnv(noEnv).WithOverrides(map[string]string{"scheduler.chunk_size": "many"}).Load()
	assert.Error(t, err)

	_, err = NewLoader().WithEnv(func(string) (string, bool) { return "x", true }).Load()
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, Set(cfg, "storage.path", "/var/lib/dmap/runs.db"))
	require.NoError(t, Set(cfg, "transport.queue_size", "128"))
	assert.Equal(t, "/var/lib/dmap/runs.db", cfg.Storage.Path)
	assert.Equal(t, 128, cfg.Transport.QueueSize)
	require.NoError(t, Set(cfg, "transport.codec", "sonic"))
	assert.Equal(t, "sonic", cfg.Transport.Codec)
	assert.NoError(t, NewValidator().Validate(cfg))

	assert.Error(t, Set(cfg, "version.major", "1"))
	assert.Error(t, Set(cfg, "", "1"))
}

func TestValidator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{"negative chunk size", func(c *Config) { c.Scheduler.ChunkSize = -1 }, []string{"scheduler.chunk_size"}},
		{"negative parallelism", func(c *Config) { c.Executor.Parallelism = -2 }, []string{"executor.parallelism"}},
		{"too many retries", func(c *Config) { c.Transport.MaxRetries = 64 }, []string{"transport.max_retries"}},
		{"incompatible major", func(c *Config) { c.Version = "v2.0.0" }, []string{"version"}},
		{"invalid version", func(c *Config) { c.Version = "1.0" }, []string{"version"}},
		{"file output without path", func(c *Config) { c.Logging.Output = "file" }, []string{"logging.file_path"}},
		{"bbolt without path", func(c *Config) { c.Storage.Backend = "bbolt" }, []string{"storage.path"}},
		{"unknown codec", func(c *Config) { c.Transport.Codec = "msgpack" }, []string{"transport.codec"}},
		{"everything wrong", func(c *Config) {
			c.Logging.Level = "loud"
			c.Logging.Format = "xml"
			c.Storage.Backend = "redis"
			c.Transport.QueueSize = -1
		}, []string{"logging.level", "logging.format", "storage.backend", "transport.queue_size"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := NewValidator().Validate(cfg)
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))

			var fields []string
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.ElementsMatch(t, tt.fields, fields)
		})
	}
}

func TestConfigRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("yaml round-trip preserves the tunables", prop.ForAll(
		func(chunkSize, parallelism, retries, queue int, backend string) bool {
			cfg := DefaultConfig()
			cfg.Scheduler.ChunkSize = chunkSize
			cfg.Executor.Parallelism = parallelism
			cfg.Transport.MaxRetries = retries
			cfg.Transport.QueueSize = queue
			cfg.Storage.Backend = backend

			data, err := cfg.Serialize()
			if err != nil {
				return false
			}

			parsed, err := ParseConfig(data)
			if err != nil {
				return false
			}

			return *parsed == *cfg && NewValidator().Validate(parsed) == nil
		},
		gen.IntRange(0, 1<<20),
		gen.IntRange(0, 256),
		gen.IntRange(0, MaxRetriesLimit),
		gen.IntRange(0, 4096),
		gen.OneConstOf("none", "memory"),
	))

	properties.TestingRun(t)
}
