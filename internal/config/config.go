package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from env / config file.
type Config struct {
	App       AppConfig                 `mapstructure:"app"`
	Redis     RedisConfig               `mapstructure:"redis"`
	Storage   StorageConfig             `mapstructure:"storage"`
	S3        S3Config                  `mapstructure:"s3"`
	Export    ExportConfig              `mapstructure:"export"`
	Worker    WorkerConfig              `mapstructure:"worker"`
	Templates map[string]TemplateConfig `mapstructure:"templates"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`  // development | production
	Port    int    `mapstructure:"port"` // HTTP API port
	Version string `mapstructure:"version"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "memory", "fs", "s3"
	FSRoot  string `mapstructure:"fs_root"` // Root directory for filesystem
}

// S3Config holds credentials for an S3-compatible provider.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	// ForcePathStyle must be true for Garage / MinIO
	ForcePathStyle bool `mapstructure:"force_path_style"`
}

// ExportConfig drives the export lifecycle: strategy thresholds, chunk-size
// clamping, retention, and the processing budget.
type ExportConfig struct {
	// Record-count bands: below SingleFileThreshold -> single_file, below
	// MultiFileThreshold -> compressed_single, at or above -> multi_file.
	SingleFileThreshold int `mapstructure:"single_file_threshold"`
	MultiFileThreshold  int `mapstructure:"multi_file_threshold"`

	// Clamp range applied to a template's recommended chunk size when the
	// multi_file strategy is selected.
	MinChunkSize int `mapstructure:"min_chunk_size"`
	MaxChunkSize int `mapstructure:"max_chunk_size"`

	// RetentionTTL is how long a finished export stays downloadable.
	RetentionTTL time.Duration `mapstructure:"retention_ttl"`

	// MinExportAge is the grace period: records younger than this are never
	// expired or evicted, so a client always has a realistic window to
	// poll-and-download after a successful create.
	MinExportAge time.Duration `mapstructure:"min_export_age"`

	// MaxConcurrentExports bounds the number of processing+success records.
	// Soft bound: it may be exceeded while every record is within its grace
	// period.
	MaxConcurrentExports int `mapstructure:"max_concurrent_exports"`

	// CleanupInterval is the retention scheduler tick.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	// TombstoneTTL is how long expired/deleted map entries linger before the
	// sweep drops them entirely.
	TombstoneTTL time.Duration `mapstructure:"tombstone_ttl"`

	// ProcessTimeout is the wall-clock budget for one export's full pipeline.
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`

	// RenderWorkers bounds concurrent chunk renders within one export.
	RenderWorkers int `mapstructure:"render_workers"`
}

type WorkerConfig struct {
	// Enabled switches export processing from an in-process goroutine to the
	// asynq queue. The asynq server always runs in the same process as the
	// API: registry state is in-memory.
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
}

// TemplateConfig is the typed per-template column mapping. Replaces the
// request-time dictionaries of the original service; validated at startup.
type TemplateConfig struct {
	Format    string   `mapstructure:"format"` // csv | xlsx
	ChunkSize int      `mapstructure:"chunk_size"`
	Columns   []string `mapstructure:"columns"`
}

// Load reads configuration from environment variables and optional config file.
// Environment variable prefix: YBB_
// Example: YBB_APP_PORT=8080.
func Load() (*Config, error) {
	v := viper.New()

	// ---------- defaults ----------
	v.SetDefault("app.name", "ybb-data-management")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.version", "1.2.0")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("storage.backend", "fs")
	v.SetDefault("storage.fs_root", "./data/exports")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", true)

	v.SetDefault("export.single_file_threshold", 1000)
	v.SetDefault("export.multi_file_threshold", 10000)
	v.SetDefault("export.min_chunk_size", 500)
	v.SetDefault("export.max_chunk_size", 20000)
	v.SetDefault("export.retention_ttl", "1h")
	v.SetDefault("export.min_export_age", "10m")
	v.SetDefault("export.max_concurrent_exports", 50)
	v.SetDefault("export.cleanup_interval", "1m")
	v.SetDefault("export.tombstone_ttl", "10m")
	v.SetDefault("export.process_timeout", "5m")
	v.SetDefault("export.render_workers", 4)

	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.concurrency", 4)

	// Default template catalogue matches the PHP front end's three domains.
	v.SetDefault("templates.participants.format", "xlsx")
	v.SetDefault("templates.participants.chunk_size", 5000)
	v.SetDefault("templates.participants.columns",
		[]string{"id", "full_name", "email", "phone", "program", "registered_at"})
	v.SetDefault("templates.payments.format", "xlsx")
	v.SetDefault("templates.payments.chunk_size", 5000)
	v.SetDefault("templates.payments.columns",
		[]string{"id", "participant_id", "amount", "currency", "method", "paid_at"})
	v.SetDefault("templates.ambassadors.format", "csv")
	v.SetDefault("templates.ambassadors.chunk_size", 10000)
	v.SetDefault("templates.ambassadors.columns",
		[]string{"id", "name", "referral_code", "referrals", "joined_at"})

	// ---------- config file (optional) ----------
	v.SetConfigName("ybb-export")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ybb-export")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	// ---------- env vars ----------
	v.SetEnvPrefix("YBB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations that would make the lifecycle misbehave at
// request time. Called once at startup.
func (c *Config) Validate() error {
	e := c.Export
	if e.SingleFileThreshold < 1 {
		return fmt.Errorf("config: single_file_threshold must be >= 1, got %d", e.SingleFileThreshold)
	}
	if e.MultiFileThreshold <= e.SingleFileThreshold {
		return fmt.Errorf("config: multi_file_threshold (%d) must exceed single_file_threshold (%d)",
			e.MultiFileThreshold, e.SingleFileThreshold)
	}
	if e.MinChunkSize < 1 || e.MaxChunkSize < e.MinChunkSize {
		return fmt.Errorf("config: invalid chunk size range [%d, %d]", e.MinChunkSize, e.MaxChunkSize)
	}
	if e.RetentionTTL <= 0 {
		return fmt.Errorf("config: retention_ttl must be positive")
	}
	if e.MinExportAge < 0 {
		return fmt.Errorf("config: min_export_age must not be negative")
	}
	if e.MaxConcurrentExports < 1 {
		return fmt.Errorf("config: max_concurrent_exports must be >= 1, got %d", e.MaxConcurrentExports)
	}
	if e.CleanupInterval <= 0 {
		return fmt.Errorf("config: cleanup_interval must be positive")
	}
	if e.ProcessTimeout <= 0 {
		return fmt.Errorf("config: process_timeout must be positive")
	}
	if e.RenderWorkers < 1 || e.RenderWorkers > 32 {
		return fmt.Errorf("config: render_workers must be in [1, 32], got %d", e.RenderWorkers)
	}

	if len(c.Templates) == 0 {
		return fmt.Errorf("config: at least one template must be configured")
	}
	for name, tpl := range c.Templates {
		switch tpl.Format {
		case "csv", "xlsx":
		default:
			return fmt.Errorf("config: template %q: unknown format %q", name, tpl.Format)
		}
		if tpl.ChunkSize < 1 {
			return fmt.Errorf("config: template %q: chunk_size must be >= 1, got %d", name, tpl.ChunkSize)
		}
		if len(tpl.Columns) == 0 {
			return fmt.Errorf("config: template %q: columns must not be empty", name)
		}
	}

	switch c.Storage.Backend {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	return nil
}
