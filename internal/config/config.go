package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	activeMu sync.Mutex
	active   *viper.Viper
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/phi-sentinel/")
	v.AddConfigPath("$HOME/.phi-sentinel/")

	// Environment variable overrides
	v.SetEnvPrefix("PHI_SENTINEL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	activeMu.Lock()
	active = v
	activeMu.Unlock()

	return config, nil
}

// Validate checks the loaded configuration. Errors here are configuration
// errors: they are surfaced before any scanning work begins.
func Validate(config *Config) error {
	switch config.Detection.Sensitivity {
	case "low", "medium", "high", "paranoid":
	default:
		return fmt.Errorf("invalid detection sensitivity: %q (must be low, medium, high, or paranoid)", config.Detection.Sensitivity)
	}

	if config.Batch.MaxConcurrency < 1 || config.Batch.MaxConcurrency > 64 {
		return fmt.Errorf("invalid batch max_concurrency: %d (must be 1-64)", config.Batch.MaxConcurrency)
	}
	if config.Batch.Concurrency < 1 || config.Batch.Concurrency > config.Batch.MaxConcurrency {
		return fmt.Errorf("invalid batch concurrency: %d (must be 1-%d)", config.Batch.Concurrency, config.Batch.MaxConcurrency)
	}
	if config.Batch.RatePerSecond < 0 {
		return fmt.Errorf("invalid batch rate_per_second: %g", config.Batch.RatePerSecond)
	}

	if config.Stream.MinChunkSize <= 0 {
		return fmt.Errorf("invalid stream min_chunk_size: %d", config.Stream.MinChunkSize)
	}
	if config.Stream.ChunkSize < config.Stream.MinChunkSize {
		return fmt.Errorf("invalid stream chunk_size: %d (minimum %d)", config.Stream.ChunkSize, config.Stream.MinChunkSize)
	}
	if config.Stream.Overlap < 0 || config.Stream.Overlap >= config.Stream.ChunkSize {
		return fmt.Errorf("invalid stream overlap: %d (must be 0 <= overlap < chunk_size %d)", config.Stream.Overlap, config.Stream.ChunkSize)
	}

	if config.Redaction.TokenPrefix == "" {
		return fmt.Errorf("redaction token_prefix must not be empty")
	}

	if config.Audit.Enabled && config.Audit.BaseDir == "" {
		return fmt.Errorf("audit base_dir must be set when audit is enabled")
	}
	if config.Audit.Postgres.Enabled && config.Audit.Postgres.DatabaseURL == "" {
		return fmt.Errorf("audit postgres database_url must be set when the mirror is enabled")
	}

	if config.Entity.Enabled && (config.Entity.ModelPath == "" || config.Entity.VocabPath == "" || config.Entity.LabelsPath == "") {
		return fmt.Errorf("entity recognizer requires model_path, vocab_path and labels_path")
	}

	if config.Monitor.Enabled && (config.Monitor.Port <= 0 || config.Monitor.Port > 65535) {
		return fmt.Errorf("invalid monitor port: %d", config.Monitor.Port)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}
	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file loaded by the last successful
// Load. The callback only ever receives configurations that pass Validate;
// onError is called for reloads that fail and may be nil.
func Watch(callback func(*Config), onError func(error)) error {
	activeMu.Lock()
	v := active
	activeMu.Unlock()

	if v == nil {
		return fmt.Errorf("no configuration loaded")
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("configuration was not loaded from a file")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		if err := Validate(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
