// Package config loads the startup configuration of a dmap node.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pkg.jsn.cam/dmap/internal/logger"
	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
	"pkg.jsn.cam/dmap/pkg/storage"
)

// Config is everything a node needs besides its role and addresses.
type Config struct {
	Version   string          `yaml:"version" env:"DMAP_VERSION"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Transport TransportConfig `yaml:"transport"`
	Logging   logger.Config   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
}

// SchedulerConfig is read by the master only.
type SchedulerConfig struct {
	// ChunkSize 0 selects static scheduling.
	ChunkSize int `yaml:"chunk_size" env:"DMAP_CHUNK_SIZE"`
}

// ExecutorConfig is read by workers only.
type ExecutorConfig struct {
	// Parallelism 0 uses every CPU.
	Parallelism int `yaml:"parallelism" env:"DMAP_PARALLELISM"`
}

type TransportConfig struct {
	MaxRetries int `yaml:"max_retries" env:"DMAP_MAX_RETRIES"`
	QueueSize  int `yaml:"queue_size" env:"DMAP_QUEUE_SIZE"`
	// Codec must be the same on every node of a run: gob or sonic.
	Codec string `yaml:"codec" env:"DMAP_CODEC"`
}

// StorageConfig selects the run journal of the master.
type StorageConfig struct {
	Backend string `yaml:"backend" env:"DMAP_STORAGE_BACKEND"` // none, memory, bbolt
	Path    string `yaml:"path" env:"DMAP_STORAGE_PATH"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Version:   protocol.ProtocolVersion,
		Scheduler: SchedulerConfig{ChunkSize: 0},
		Executor:  ExecutorConfig{Parallelism: 0},
		Transport: TransportConfig{
			MaxRetries: 15,
			QueueSize:  64,
			Codec:      protocol.CodecGob,
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Storage: StorageConfig{Backend: storage.KindNone},
	}
}

// ParseConfig decodes YAML over the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Serialize encodes cfg as YAML.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// Loader builds a Config from defaults, an optional YAML file, environment
// variables and explicit overrides, in that order of precedence.
type Loader struct {
	configPath string
	overrides  map[string]string
	lookupEnv  func(string) (string, bool)
}

func NewLoader() *Loader {
	return &Loader{
		overrides: make(map[string]string),
		lookupEnv: os.LookupEnv,
	}
}

// WithConfigPath sets the YAML file to read. A missing file is an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithOverrides sets values by dotted yaml path, e.g. "scheduler.chunk_size".
func (l *Loader) WithOverrides(overrides map[string]string) *Loader {
	for k, v := range overrides {
		l.overrides[k] = v
	}
	return l
}

// WithEnv replaces the environment lookup, for tests.
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// Load assembles the configuration. It does not validate it.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", l.configPath, err)
		}
	}

	if err := l.applyEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, err
	}

	for path, value := range l.overrides {
		if err := Set(cfg, path, value); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (l *Loader) applyEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnv(field); err != nil {
				return err
			}
			continue
		}

		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}

		value, ok := l.lookupEnv(name)
		if !ok || value == "" {
			continue
		}

		if err := setField(field, value); err != nil {
			return fmt.Errorf("environment %s: %w", name, err)
		}
	}

	return nil
}

// Set assigns value to the field at the dotted yaml path.
func Set(cfg *Config, path, value string) error {
	v := reflect.ValueOf(cfg).Elem()
	parts := strings.Split(path, ".")

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("unknown config key %q", path)
		}

		if i == len(parts)-1 {
			if err := setField(field, value); err != nil {
				return fmt.Errorf("config key %s: %w", path, err)
			}
			return nil
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("unknown config key %q", path)
		}
		v = field
	}

	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer %q", value)
		}
		field.SetInt(int64(n))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
