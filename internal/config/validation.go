package config

import (
	"fmt"
	"strings"

	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
	"pkg.jsn.cam/dmap/pkg/storage"
)

// MaxRetriesLimit caps transport.max_retries; 2^20 ms of backoff is already
// over seventeen minutes for a single sleep.
const MaxRetriesLimit = 20

// ValidationError is one invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is every invalid value found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator checks a Config.
type Validator struct {
	errors ValidationErrors
}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate returns ValidationErrors when cfg has invalid values.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = nil

	v.validateVersion(cfg.Version)

	if cfg.Scheduler.ChunkSize < 0 {
		v.addError("scheduler.chunk_size", "must be 0 (static) or positive (dynamic)")
	}

	if cfg.Executor.Parallelism < 0 {
		v.addError("executor.parallelism", "must be 0 (all CPUs) or positive")
	}

	if cfg.Transport.MaxRetries < 0 || cfg.Transport.MaxRetries > MaxRetriesLimit {
		v.addError("transport.max_retries", fmt.Sprintf("must be between 0 and %d", MaxRetriesLimit))
	}
	if cfg.Transport.QueueSize < 0 {
		v.addError("transport.queue_size", "must be non-negative")
	}
	if _, err := protocol.CodecByName(cfg.Transport.Codec); err != nil {
		v.addError("transport.codec", err.Error())
	}

	v.validateLogging(cfg)
	v.validateStorage(&cfg.Storage)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateVersion(version string) {
	if version == "" {
		return
	}

	ok, err := protocol.IsCompatibleVersion(version, protocol.ProtocolVersion)
	switch {
	case err != nil:
		v.addError("version", err.Error())
	case !ok:
		v.addError("version", protocol.CompatibilityError(version))
	}
}

func (v *Validator) validateLogging(cfg *Config) {
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level))
	}

	switch cfg.Logging.Format {
	case "", "console", "json":
	default:
		v.addError("logging.format", fmt.Sprintf("unknown format %q, expected console or json", cfg.Logging.Format))
	}

	switch cfg.Logging.Output {
	case "", "stdout", "stderr":
	case "file", "both":
		if cfg.Logging.FilePath == "" {
			v.addError("logging.file_path", "required when output is file or both")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("unknown output %q", cfg.Logging.Output))
	}
}

func (v *Validator) validateStorage(cfg *StorageConfig) {
	switch cfg.Backend {
	case "", storage.KindNone, storage.KindMemory:
	case storage.KindBbolt:
		if cfg.Path == "" {
			v.addError("storage.path", "required for the bbolt backend")
		}
	default:
		v.addError("storage.backend", fmt.Sprintf("unknown backend %q, expected none, memory or bbolt", cfg.Backend))
	}
}
