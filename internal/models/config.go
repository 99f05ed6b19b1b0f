package models

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	ServerAddr      string        `yaml:"server_addr" env:"SERVER_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	Database   DatabaseConfig   `yaml:"database" envPrefix:"DATABASE_"`
	Blob       BlobConfig       `yaml:"blob" envPrefix:"BLOB_"`
	Kafka      KafkaConfig      `yaml:"kafka" envPrefix:"KAFKA_"`
	Dedup      DedupConfig      `yaml:"dedup" envPrefix:"DEDUP_"`
	Moderation ModerationConfig `yaml:"moderation" envPrefix:"MODERATION_"`
	Packs      PacksConfig      `yaml:"packs" envPrefix:"PACKS_"`
	Ingest     IngestConfig     `yaml:"ingest" envPrefix:"INGEST_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" env:"DRIVER"`
	URL    string `yaml:"url" env:"URL"`
}

type BlobConfig struct {
	// Backend is "local" or "s3".
	Backend     string `yaml:"backend" env:"BACKEND"`
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH"`

	S3Endpoint     string `yaml:"s3_endpoint" env:"S3_ENDPOINT"`
	S3Region       string `yaml:"s3_region" env:"S3_REGION"`
	S3Bucket       string `yaml:"s3_bucket" env:"S3_BUCKET"`
	S3AccessKeyID  string `yaml:"s3_access_key_id" env:"S3_ACCESS_KEY_ID"`
	S3SecretKey    string `yaml:"s3_secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style" env:"S3_USE_PATH_STYLE"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled" env:"ENABLED"`
	Brokers     []string `yaml:"brokers" env:"BROKERS" envSeparator:","`
	IngestTopic string   `yaml:"ingest_topic" env:"INGEST_TOPIC"`
	EventsTopic string   `yaml:"events_topic" env:"EVENTS_TOPIC"`
	GroupID     string   `yaml:"group_id" env:"GROUP_ID"`
}

type DedupConfig struct {
	// VisualThreshold is the largest Hamming distance still treated as a near duplicate.
	VisualThreshold     int  `yaml:"visual_threshold" env:"VISUAL_THRESHOLD"`
	AllowNearDuplicates bool `yaml:"allow_near_duplicates" env:"ALLOW_NEAR_DUPLICATES"`
}

type ModerationConfig struct {
	Quorum int `yaml:"quorum" env:"QUORUM"`
}

type PacksConfig struct {
	DefaultMaxStickers int `yaml:"default_max_stickers" env:"DEFAULT_MAX_STICKERS"`
}

type IngestConfig struct {
	MaxBytes int64 `yaml:"max_bytes" env:"MAX_BYTES"`
	MinBytes int   `yaml:"min_bytes" env:"MIN_BYTES"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

const envPrefix = "STICKERVAULT_"

func DefaultConfig() Config {
	return Config{
		ServerAddr:      ":8080",
		ShutdownTimeout: 10 * time.Second,
		Database: DatabaseConfig{
			Driver: "sqlite",
			URL:    "stickervault.db",
		},
		Blob: BlobConfig{
			Backend:        "local",
			StoragePath:    "media",
			S3Region:       "us-east-1",
			S3UsePathStyle: true,
		},
		Kafka: KafkaConfig{
			IngestTopic: "stickers.ingest",
			EventsTopic: "stickers.events",
			GroupID:     "stickervault-ingest",
		},
		Dedup:      DedupConfig{VisualThreshold: 6},
		Moderation: ModerationConfig{Quorum: 3},
		Packs:      PacksConfig{DefaultMaxStickers: 30},
		Ingest: IngestConfig{
			MaxBytes: 20 * 1024 * 1024,
			MinBytes: 12,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads the yaml file at path (a missing file keeps the defaults)
// and then applies STICKERVAULT_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	const op = "models.LoadConfig"

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("%s: %w", op, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("%s: parse %s: %w", op, path, err)
			}
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("%s: parse env: %w", op, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Blob.Backend = strings.ToLower(strings.TrimSpace(c.Blob.Backend))
	c.Blob.S3Bucket = strings.TrimSpace(c.Blob.S3Bucket)
	c.Blob.S3AccessKeyID = strings.TrimSpace(c.Blob.S3AccessKeyID)
	c.Blob.S3SecretKey = strings.TrimSpace(c.Blob.S3SecretKey)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("database.url is required")
	}
	switch c.Blob.Backend {
	case "local":
		if strings.TrimSpace(c.Blob.StoragePath) == "" {
			return errors.New("blob.storage_path is required for the local backend")
		}
	case "s3":
		if c.Blob.S3Bucket == "" {
			return errors.New("blob.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("blob.backend must be local or s3, got %q", c.Blob.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	if c.Dedup.VisualThreshold < 0 || c.Dedup.VisualThreshold > 64 {
		return fmt.Errorf("dedup.visual_threshold must be within 0..64, got %d", c.Dedup.VisualThreshold)
	}
	if c.Moderation.Quorum <= 0 {
		return fmt.Errorf("moderation.quorum must be positive, got %d", c.Moderation.Quorum)
	}
	if c.Packs.DefaultMaxStickers <= 0 {
		return fmt.Errorf("packs.default_max_stickers must be positive, got %d", c.Packs.DefaultMaxStickers)
	}
	if c.Ingest.MaxBytes <= 0 {
		return fmt.Errorf("ingest.max_bytes must be positive, got %d", c.Ingest.MaxBytes)
	}
	return nil
}
