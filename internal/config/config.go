package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"installments/internal/logger"
	"installments/pkg/models"
)

// Mirror backends.
const (
	MirrorNone   = "none"
	MirrorRedis  = "redis"
	MirrorSheets = "sheets"
)

type Config struct {
	// Local store
	DataPath string

	// Auth gate
	AuthEnabled bool

	// Display
	CurrencyLabel string

	// Remote mirror
	MirrorBackend string
	MirrorWorkers int
	MirrorTimeout time.Duration

	Redis  RedisConfig
	Sheets SheetsConfig
	Backup BackupConfig

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// RedisConfig holds the connection settings of the redis mirror.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Channel  string
}

// SheetsConfig holds the spreadsheet used by the sheets mirror.
type SheetsConfig struct {
	URL string
}

// BackupConfig holds the S3-compatible bucket used for pushed backups.
type BackupConfig struct {
	Bucket       string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with LEDGER_ prefix (e.g., LEDGER_DATA_PATH)
// 2. installments.toml in the working directory
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("installments")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config := &Config{
		DataPath:      v.GetString("data.path"),
		AuthEnabled:   v.GetBool("auth.enabled"),
		CurrencyLabel: v.GetString("currency.label"),
		MirrorBackend: strings.ToLower(v.GetString("mirror.backend")),
		MirrorWorkers: v.GetInt("mirror.workers"),
		MirrorTimeout: v.GetDuration("mirror.timeout"),
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
			Channel:  v.GetString("redis.channel"),
		},
		Sheets: SheetsConfig{
			URL: v.GetString("sheets.url"),
		},
		Backup: BackupConfig{
			Bucket:       v.GetString("backup.s3.bucket"),
			Endpoint:     v.GetString("backup.s3.endpoint"),
			Region:       v.GetString("backup.s3.region"),
			AccessKey:    v.GetString("backup.s3.access_key"),
			SecretKey:    v.GetString("backup.s3.secret_key"),
			UsePathStyle: v.GetBool("backup.s3.use_path_style"),
			Prefix:       v.GetString("backup.s3.prefix"),
		},
		LogLevel:      v.GetString("log.level"),
		LogFormat:     v.GetString("log.format"),
		LogTimeFormat: v.GetString("log.time_format"),
		LogOutput:     v.GetString("log.output"),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.path", "installments.db")
	v.SetDefault("auth.enabled", true)
	v.SetDefault("currency.label", models.DefaultCurrencyLabel)

	v.SetDefault("mirror.backend", MirrorNone)
	v.SetDefault("mirror.workers", 4)
	v.SetDefault("mirror.timeout", 10*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "installments:")
	v.SetDefault("redis.channel", "installments:changes")

	v.SetDefault("backup.s3.region", "us-east-1")
	v.SetDefault("backup.s3.use_path_style", true)
	v.SetDefault("backup.s3.prefix", "backups/")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.time_format", "2006-01-02T15:04:05Z07:00")
	v.SetDefault("log.output", "stderr")
}

// Validate checks the settings required by the selected backends.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("LEDGER_DATA_PATH is required")
	}

	switch c.MirrorBackend {
	case MirrorNone, "":
	case MirrorRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("LEDGER_REDIS_ADDR is required for the redis mirror")
		}
	case MirrorSheets:
		if c.Sheets.URL == "" {
			return fmt.Errorf("LEDGER_SHEETS_URL is required for the sheets mirror")
		}
	default:
		return fmt.Errorf("unknown mirror backend %q (use none, redis or sheets)", c.MirrorBackend)
	}

	if c.MirrorWorkers <= 0 {
		return fmt.Errorf("LEDGER_MIRROR_WORKERS must be positive")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
