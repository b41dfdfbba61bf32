package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Detection DetectionConfig `yaml:"detection" mapstructure:"detection"`
	Entity    EntityConfig    `yaml:"entity" mapstructure:"entity"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Stream    StreamConfig    `yaml:"stream" mapstructure:"stream"`
	Redaction RedactionConfig `yaml:"redaction" mapstructure:"redaction"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// DetectionConfig contains the defaults applied to every detection call
type DetectionConfig struct {
	Sensitivity  string   `yaml:"sensitivity" mapstructure:"sensitivity"` // low, medium, high, paranoid
	Allowlist    []string `yaml:"allowlist" mapstructure:"allowlist"`
	PatternFiles []string `yaml:"pattern_files" mapstructure:"pattern_files"` // custom pattern packs
}

// EntityConfig configures the optional statistical entity recognizer
type EntityConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	ModelPath  string        `yaml:"model_path" mapstructure:"model_path"`   // token-classification ONNX model
	VocabPath  string        `yaml:"vocab_path" mapstructure:"vocab_path"`   // one token per line
	LabelsPath string        `yaml:"labels_path" mapstructure:"labels_path"` // one BIO label per line
	MaxLength  int           `yaml:"max_length" mapstructure:"max_length"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// BatchConfig contains BatchScanner defaults
type BatchConfig struct {
	Concurrency            int           `yaml:"concurrency" mapstructure:"concurrency"`
	MaxConcurrency         int           `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	ItemTimeout            time.Duration `yaml:"item_timeout" mapstructure:"item_timeout"`
	Timeout                time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerSecond          float64       `yaml:"rate_per_second" mapstructure:"rate_per_second"` // 0 disables throttling
	IncludeRedactedPreview bool          `yaml:"include_redacted_preview" mapstructure:"include_redacted_preview"`
}

// StreamConfig contains StreamScanner defaults
type StreamConfig struct {
	ChunkSize    int `yaml:"chunk_size" mapstructure:"chunk_size"`
	Overlap      int `yaml:"overlap" mapstructure:"overlap"`
	MinChunkSize int `yaml:"min_chunk_size" mapstructure:"min_chunk_size"`
}

// RedactionConfig contains Redactor defaults
type RedactionConfig struct {
	TokenPrefix string `yaml:"token_prefix" mapstructure:"token_prefix"`
	Salt        string `yaml:"salt" mapstructure:"salt"` // empty generates a per-process salt and leaves the result cache off
}

// AuditConfig contains audit trail configuration
type AuditConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	BaseDir  string         `yaml:"base_dir" mapstructure:"base_dir"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig configures the optional database mirror of the audit trail
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// CacheConfig contains batch result cache configuration
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// MonitorConfig contains the operational HTTP surface configuration
type MonitorConfig struct {
	Enabled      bool            `yaml:"enabled" mapstructure:"enabled"`
	Port         int             `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration   `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout" mapstructure:"write_timeout"`
	WebSocket    WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Username             string `yaml:"username" mapstructure:"username"`
	Password             string `yaml:"password" mapstructure:"password"`
	BroadcastProgress    bool   `yaml:"broadcast_progress" mapstructure:"broadcast_progress"`
	BroadcastAudit       bool   `yaml:"broadcast_audit" mapstructure:"broadcast_audit"`
	BroadcastSystem      bool   `yaml:"broadcast_system" mapstructure:"broadcast_system"`
	BroadcastConnections bool   `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// MetricsConfig contains Prometheus naming configuration
type MetricsConfig struct {
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	Subsystem string `yaml:"subsystem" mapstructure:"subsystem"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Detection: DetectionConfig{
			Sensitivity: "medium",
		},
		Entity: EntityConfig{
			Enabled:   false,
			MaxLength: 256,
			Timeout:   2 * time.Second,
		},
		Batch: BatchConfig{
			Concurrency:    8,
			MaxConcurrency: 64,
			ItemTimeout:    5 * time.Second,
			Timeout:        10 * time.Minute,
		},
		Stream: StreamConfig{
			ChunkSize:    64 * 1024,
			Overlap:      256,
			MinChunkSize: 1024,
		},
		Redaction: RedactionConfig{
			TokenPrefix: "PHI",
		},
		Audit: AuditConfig{
			Enabled: true,
			BaseDir: "data/audit",
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
			},
		},
		Cache: CacheConfig{
			RedisURL:       "redis://localhost:6379/0",
			KeyPrefix:      "phi-sentinel",
			DefaultTTL:     6 * time.Hour,
			MaxConnections: 10,
			MinIdleConns:   2,
		},
		Monitor: MonitorConfig{
			Port:         9464,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			WebSocket: WebSocketConfig{
				BroadcastProgress:    true,
				BroadcastAudit:       true,
				BroadcastSystem:      true,
				BroadcastConnections: false,
			},
		},
		Metrics: MetricsConfig{
			Namespace: "phi_sentinel",
			Subsystem: "engine",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
	cfg.Logging.File.Path = "logs/phi-sentinel.log"
	return cfg
}
