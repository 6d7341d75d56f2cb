package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends for the flat key-value namespaces.
const (
	StoreBackendFile  = "file"
	StoreBackendRedis = "redis"
)

// Oracle providers.
const (
	OracleProviderOllama = "ollama"
	OracleProviderVertex = "vertex"
)

// Image OCR engines.
const (
	ImageEngineTesseract = "tesseract"
	ImageEngineTextract  = "textract"
)

// Archive backends used by asynchronous submissions.
const (
	ArchiveBackendS3    = "s3"
	ArchiveBackendMinio = "minio"
)

// Config is the explicit runtime configuration. It is built once in main and
// handed to every constructor.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Acquire  AcquireConfig  `yaml:"acquire"`
	OCR      OCRConfig      `yaml:"ocr"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Store    StoreConfig    `yaml:"store"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Redis    RedisConfig    `yaml:"redis"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Worker   WorkerConfig   `yaml:"worker"`
	Textract TextractConfig `yaml:"textract"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"outputPaths"`
}

type AcquireConfig struct {
	TempDir      string        `yaml:"tempDir"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
	MaxFileSize  int64         `yaml:"maxFileSize"`
}

type OCRConfig struct {
	ImageEngine string        `yaml:"imageEngine"`
	Language    string        `yaml:"language"`
	OCRmyPDF    string        `yaml:"ocrmypdf"`
	MaxPages    int           `yaml:"maxPages"`
	Timeout     time.Duration `yaml:"timeout"`
}

type OracleConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	Endpoint    string        `yaml:"endpoint"`
	Project     string        `yaml:"project"`
	Region      string        `yaml:"region"`
	APIKey      string        `yaml:"-"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	// KeyPrefix namespaces redis hashes when Backend is redis.
	KeyPrefix string `yaml:"keyPrefix"`
}

type MongoConfig struct {
	URI      string        `yaml:"-"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`
}

type ArchiveConfig struct {
	Backend   string        `yaml:"backend"`
	Bucket    string        `yaml:"bucket"`
	Region    string        `yaml:"region"`
	Endpoint  string        `yaml:"endpoint"`
	UseSSL    bool          `yaml:"useSSL"`
	AccessKey string        `yaml:"-"`
	SecretKey string        `yaml:"-"`
	Retention time.Duration `yaml:"retention"`
}

// Enabled reports whether an archive bucket is configured. Asynchronous
// submission is only available when it is.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

type WorkerConfig struct {
	Concurrency     int            `yaml:"concurrency"`
	Queues          map[string]int `yaml:"queues"`
	CleanupSchedule string         `yaml:"cleanupSchedule"`
}

type TextractConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// Load reads the YAML file at path (optional), the .env file next to it, and
// environment overrides, then applies defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		envPath := filepath.Join(filepath.Dir(path), ".env")
		// .env is optional; real environment variables still apply
		_ = godotenv.Load(envPath)

		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Oracle.APIKey, "GEMINI_API_KEY")
	setString(&c.Oracle.Endpoint, "OLLAMA_ENDPOINT")
	setString(&c.Oracle.Project, "GOOGLE_CLOUD_PROJECT")
	setString(&c.Mongo.URI, "MONGO_URI")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Store.Backend, "STORE_BACKEND")
	setString(&c.Store.Dir, "STORE_DIR")

	setString(&c.Textract.Region, "AWS_REGION")
	setString(&c.Textract.AccessKey, "AWS_ACCESS_KEY")
	setString(&c.Textract.SecretKey, "AWS_SECRET_KEY")

	switch c.Archive.Backend {
	case ArchiveBackendMinio:
		setString(&c.Archive.Endpoint, "MINIO_ENDPOINT")
		setString(&c.Archive.AccessKey, "MINIO_ACCESS_KEY")
		setString(&c.Archive.SecretKey, "MINIO_SECRET_KEY")
		setString(&c.Archive.Region, "MINIO_REGION")
		setString(&c.Archive.Bucket, "MINIO_BUCKET_NAME")
	default:
		setString(&c.Archive.Endpoint, "AWS_ENDPOINT")
		setString(&c.Archive.AccessKey, "AWS_ACCESS_KEY")
		setString(&c.Archive.SecretKey, "AWS_SECRET_KEY")
		setString(&c.Archive.Region, "AWS_REGION")
		setString(&c.Archive.Bucket, "S3_BUCKET_NAME")
	}

	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.Concurrency = n
		}
	}
}

// Validate fills defaults and rejects unknown enum values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}
	if len(c.Log.OutputPaths) == 0 {
		c.Log.OutputPaths = []string{"stdout", "logs/app.log"}
	}

	if c.Acquire.TempDir == "" {
		c.Acquire.TempDir = os.TempDir()
	}
	if c.Acquire.FetchTimeout <= 0 {
		c.Acquire.FetchTimeout = 30 * time.Second
	}
	if c.Acquire.MaxFileSize <= 0 {
		c.Acquire.MaxFileSize = 20 * 1024 * 1024
	}

	if c.OCR.ImageEngine == "" {
		c.OCR.ImageEngine = ImageEngineTesseract
	}
	if c.OCR.ImageEngine != ImageEngineTesseract && c.OCR.ImageEngine != ImageEngineTextract {
		return fmt.Errorf("unsupported image OCR engine: %s", c.OCR.ImageEngine)
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	if c.OCR.OCRmyPDF == "" {
		c.OCR.OCRmyPDF = "ocrmypdf"
	}
	if c.OCR.Timeout <= 0 {
		c.OCR.Timeout = 5 * time.Minute
	}

	if c.Oracle.Provider == "" {
		c.Oracle.Provider = OracleProviderOllama
	}
	switch c.Oracle.Provider {
	case OracleProviderOllama:
		if c.Oracle.Endpoint == "" {
			c.Oracle.Endpoint = "http://localhost:11434"
		}
		if c.Oracle.Model == "" {
			c.Oracle.Model = "llama3.1"
		}
	case OracleProviderVertex:
		if c.Oracle.Model == "" {
			c.Oracle.Model = "gemini-2.5-flash"
		}
		if c.Oracle.Region == "" {
			c.Oracle.Region = "us-central1"
		}
	default:
		return fmt.Errorf("unsupported oracle provider: %s", c.Oracle.Provider)
	}
	if c.Oracle.Temperature == 0 {
		c.Oracle.Temperature = 0.2
	}
	if c.Oracle.Timeout <= 0 {
		c.Oracle.Timeout = 60 * time.Second
	}

	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendFile
	}
	if c.Store.Backend != StoreBackendFile && c.Store.Backend != StoreBackendRedis {
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "data"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "certproc"
	}

	if c.Mongo.Database == "" {
		c.Mongo.Database = "test"
	}
	if c.Mongo.Timeout <= 0 {
		c.Mongo.Timeout = 10 * time.Second
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}

	if c.Archive.Backend == "" {
		c.Archive.Backend = ArchiveBackendS3
	}
	if c.Archive.Backend != ArchiveBackendS3 && c.Archive.Backend != ArchiveBackendMinio {
		return fmt.Errorf("unsupported archive backend: %s", c.Archive.Backend)
	}
	if c.Archive.Retention <= 0 {
		c.Archive.Retention = 24 * time.Hour
	}

	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 10
	}
	if len(c.Worker.Queues) == 0 {
		c.Worker.Queues = map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		}
	}
	if c.Worker.CleanupSchedule == "" {
		c.Worker.CleanupSchedule = "@every 1h"
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
