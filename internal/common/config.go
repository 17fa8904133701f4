package common

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "DOCSCAN_CONFIG"

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Models   ModelsConfig   `yaml:"models"`
	OCR      OCRConfig      `yaml:"ocr"`
	Inbox    InboxConfig    `yaml:"inbox"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"maxConns"`
	MinConns        int32         `yaml:"minConns"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string `yaml:"grpcAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"`
	Dir       string `yaml:"dir"`
	GCSBucket string `yaml:"gcsBucket"`
}

// QueueConfig describes the asynchronous broker. Backend "none" forces inline processing.
type QueueConfig struct {
	Backend      string        `yaml:"backend"`
	RedisURL     string        `yaml:"redisUrl"`
	Name         string        `yaml:"name"`
	Workers      int           `yaml:"workers"`
	JobTimeout   time.Duration `yaml:"jobTimeout"`
	ProbeTimeout time.Duration `yaml:"probeTimeout"`
}

// ModelsConfig locates detection model artifacts.
type ModelsConfig struct {
	Dir         string `yaml:"dir"`
	Weights     string `yaml:"weights"`
	DetectorCmd string `yaml:"detectorCmd"`
	Identity    string `yaml:"identity"`
	Invoice     string `yaml:"invoice"`
	Fallback    string `yaml:"fallback"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract   string `yaml:"tesseract"`
	Lang        string `yaml:"lang"`
	OEM         int    `yaml:"oem"`
	TessdataDir string `yaml:"tessdataDir"`
}

type InboxConfig struct {
	Dir     string `yaml:"dir"`
	OwnerID string `yaml:"ownerId"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:docscan.db?_pragma=busy_timeout(5000)",
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			GRPCAddr:    ":8080",
			MetricsAddr: ":9090",
		},
		Storage: StorageConfig{
			Backend: "local",
			Dir:     "./uploads",
		},
		Queue: QueueConfig{
			Backend:      "redis",
			RedisURL:     "redis://localhost:6379/0",
			Name:         "ocr_tasks",
			Workers:      2,
			JobTimeout:   10 * time.Minute,
			ProbeTimeout: time.Second,
		},
		Models: ModelsConfig{
			Dir:         "./models",
			Weights:     "weights/best.pt",
			DetectorCmd: "docscan-detect",
			Identity:    "dni",
			Invoice:     "invoices",
			Fallback:    "yolov8n",
		},
		OCR: OCRConfig{
			Tesseract: "tesseract",
			Lang:      "spa",
			OEM:       3,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig layers defaults, an optional YAML file and environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config.dotenv.failed", "error", err)
	}

	cfg := DefaultConfig()
	if path := os.Getenv(configPathEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "parse config file", err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)

	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	if v, ok := os.LookupEnv("METRICS_ADDR"); ok {
		c.Server.MetricsAddr = v
	}

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Dir = getEnv("STORAGE_DIR", c.Storage.Dir)
	c.Storage.GCSBucket = getEnv("GCS_BUCKET", c.Storage.GCSBucket)

	c.Queue.Backend = getEnv("QUEUE_BACKEND", c.Queue.Backend)
	c.Queue.RedisURL = getEnv("REDIS_URL", c.Queue.RedisURL)
	c.Queue.Name = getEnv("QUEUE_NAME", c.Queue.Name)
	c.Queue.Workers = getEnvAsInt("QUEUE_WORKERS", c.Queue.Workers)
	c.Queue.JobTimeout = getEnvAsDuration("JOB_TIMEOUT", c.Queue.JobTimeout)
	c.Queue.ProbeTimeout = getEnvAsDuration("PROBE_TIMEOUT", c.Queue.ProbeTimeout)

	c.Models.Dir = getEnv("MODELS_DIR", c.Models.Dir)
	c.Models.Weights = getEnv("MODEL_WEIGHTS", c.Models.Weights)
	c.Models.DetectorCmd = getEnv("DETECTOR_CMD", c.Models.DetectorCmd)
	c.Models.Identity = getEnv("MODEL_IDENTITY", c.Models.Identity)
	c.Models.Invoice = getEnv("MODEL_INVOICE", c.Models.Invoice)
	c.Models.Fallback = getEnv("MODEL_FALLBACK", c.Models.Fallback)

	c.OCR.Tesseract = getEnv("TESSERACT_CMD", c.OCR.Tesseract)
	c.OCR.Lang = getEnv("OCR_LANG", c.OCR.Lang)
	c.OCR.OEM = getEnvAsInt("OCR_OEM", c.OCR.OEM)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)

	c.Inbox.Dir = getEnv("INBOX_DIR", c.Inbox.Dir)
	c.Inbox.OwnerID = getEnv("INBOX_OWNER", c.Inbox.OwnerID)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate rejects unusable configurations.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("DB_DRIVER %q must be postgres or sqlite", c.Database.Driver), ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Dir == "" {
			return NewAppError("CONFIG_ERROR", "STORAGE_DIR is required for local storage", ErrInvalidInput)
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return NewAppError("CONFIG_ERROR", "GCS_BUCKET is required for gcs storage", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("STORAGE_BACKEND %q must be local or gcs", c.Storage.Backend), ErrInvalidInput)
	}
	switch c.Queue.Backend {
	case "redis":
		if c.Queue.RedisURL == "" || c.Queue.Name == "" {
			return NewAppError("CONFIG_ERROR", "REDIS_URL and QUEUE_NAME are required for the redis queue", ErrInvalidInput)
		}
	case "memory", "none":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("QUEUE_BACKEND %q must be redis, memory or none", c.Queue.Backend), ErrInvalidInput)
	}
	if c.Queue.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "QUEUE_WORKERS must be positive", ErrInvalidInput)
	}
	if c.Models.Dir == "" || c.Models.Weights == "" {
		return NewAppError("CONFIG_ERROR", "MODELS_DIR and MODEL_WEIGHTS are required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	return nil
}

// SlogLevel maps the configured level name onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
