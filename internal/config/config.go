package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "BUCKET_CATALOG_CONFIG"
	hostEnv         = "APP_HOST"
	portEnv         = "APP_PORT"
	dataDirEnv      = "DATA_DIR"
	bucketEnv       = "BUCKET_NAME"
	prefixEnv       = "BUCKET_PREFIX"
	listerEnv       = "LISTER"
	s3RegionEnv     = "S3_REGION"
	s3EndpointEnv   = "S3_ENDPOINT"
	awsKeyIDEnv     = "AWS_ACCESS_KEY_ID"
	awsSecretEnv    = "AWS_SECRET_ACCESS_KEY"
	indexBaseURLEnv = "INDEX_BASE_URL"
	manifestURLEnv  = "MANIFEST_URL"
	logLevelEnv     = "LOG_LEVEL"
	fetchInterval   = "FETCH_INTERVAL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Source    SourceConfig    `yaml:"source"`
	Manifest  ManifestConfig  `yaml:"manifest"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// StorageConfig locates run stores and tunes ingestion and SQLite.
type StorageConfig struct {
	DataDir        string        `yaml:"dataDir"`
	BatchSize      int           `yaml:"batchSize"`
	StaleLockAfter time.Duration `yaml:"staleLockAfter"`
	BusyTimeout    time.Duration `yaml:"busyTimeout"`
	Synchronous    string        `yaml:"synchronous"`
	MaxOpenConns   int           `yaml:"maxOpenConns"`
}

// SourceConfig selects the bucket and the lister that reads it.
type SourceConfig struct {
	Lister string      `yaml:"lister"`
	Bucket string      `yaml:"bucket"`
	Prefix string      `yaml:"prefix"`
	S3     S3Config    `yaml:"s3"`
	Index  IndexConfig `yaml:"index"`
}

// S3Config configures the S3 lister.
type S3Config struct {
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	UsePathStyle    bool          `yaml:"usePathStyle"`
	Anonymous       bool          `yaml:"anonymous"`
	AccessKeyID     string        `yaml:"accessKeyId"`
	SecretAccessKey string        `yaml:"secretAccessKey"`
	PageSize        int32         `yaml:"pageSize"`
	MaxRetries      int           `yaml:"maxRetries"`
	Timeout         time.Duration `yaml:"timeout"`
}

// IndexConfig configures the HTML directory-index lister.
type IndexConfig struct {
	BaseURL  string        `yaml:"baseUrl"`
	MaxDepth int           `yaml:"maxDepth"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ManifestConfig controls manifest retrieval.
type ManifestConfig struct {
	DefaultURL   string        `yaml:"defaultUrl"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
}

// SchedulerConfig defines periodic fetches; a zero interval disables them.
type SchedulerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunOnStart bool          `yaml:"runOnStart"`
}

// LoggingConfig sets the slog level and output format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads .env files and YAML configuration (if present) and applies
// environment overrides on top of the defaults.
func Load() Config {
	loadEnvFiles()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFiles loads .env and then .env.local; both are optional and never
// override variables already set in the process environment, except that
// .env.local wins over .env.
func loadEnvFiles() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("config: cannot load .env: %v", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			log.Printf("config: cannot load .env.local: %v", err)
		}
	}
}

func (c *Config) applyEnvOverrides() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(hostEnv, &c.Server.Host)
	if v := os.Getenv(portEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		} else {
			log.Printf("config: ignoring invalid %s=%q", portEnv, v)
		}
	}
	setString(dataDirEnv, &c.Storage.DataDir)
	setString(bucketEnv, &c.Source.Bucket)
	setString(prefixEnv, &c.Source.Prefix)
	setString(listerEnv, &c.Source.Lister)
	setString(s3RegionEnv, &c.Source.S3.Region)
	setString(s3EndpointEnv, &c.Source.S3.Endpoint)
	setString(awsKeyIDEnv, &c.Source.S3.AccessKeyID)
	setString(awsSecretEnv, &c.Source.S3.SecretAccessKey)
	setString(indexBaseURLEnv, &c.Source.Index.BaseURL)
	setString(manifestURLEnv, &c.Manifest.DefaultURL)
	setString(logLevelEnv, &c.Logging.Level)
	if v := os.Getenv(fetchInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.Interval = d
		} else {
			log.Printf("config: ignoring invalid %s=%q", fetchInterval, v)
		}
	}
}

func mergeConfig(base, override Config) Config {
	if override.Server.Host != "" {
		base.Server.Host = override.Server.Host
	}
	if override.Server.Port != 0 {
		base.Server.Port = override.Server.Port
	}
	if override.Server.ShutdownTimeout != 0 {
		base.Server.ShutdownTimeout = override.Server.ShutdownTimeout
	}

	if override.Storage.DataDir != "" {
		base.Storage.DataDir = override.Storage.DataDir
	}
	if override.Storage.BatchSize != 0 {
		base.Storage.BatchSize = override.Storage.BatchSize
	}
	if override.Storage.StaleLockAfter != 0 {
		base.Storage.StaleLockAfter = override.Storage.StaleLockAfter
	}
	if override.Storage.BusyTimeout != 0 {
		base.Storage.BusyTimeout = override.Storage.BusyTimeout
	}
	if override.Storage.Synchronous != "" {
		base.Storage.Synchronous = override.Storage.Synchronous
	}
	if override.Storage.MaxOpenConns != 0 {
		base.Storage.MaxOpenConns = override.Storage.MaxOpenConns
	}

	if override.Source.Lister != "" {
		base.Source.Lister = override.Source.Lister
	}
	if override.Source.Bucket != "" {
		base.Source.Bucket = override.Source.Bucket
	}
	if override.Source.Prefix != "" {
		base.Source.Prefix = override.Source.Prefix
	}
	base.Source.S3 = mergeS3(base.Source.S3, override.Source.S3)
	if override.Source.Index.BaseURL != "" {
		base.Source.Index.BaseURL = override.Source.Index.BaseURL
	}
	if override.Source.Index.MaxDepth != 0 {
		base.Source.Index.MaxDepth = override.Source.Index.MaxDepth
	}
	if override.Source.Index.Timeout != 0 {
		base.Source.Index.Timeout = override.Source.Index.Timeout
	}

	if override.Manifest.DefaultURL != "" {
		base.Manifest.DefaultURL = override.Manifest.DefaultURL
	}
	if override.Manifest.FetchTimeout != 0 {
		base.Manifest.FetchTimeout = override.Manifest.FetchTimeout
	}

	if override.Scheduler.Interval != 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	base.Scheduler.RunOnStart = base.Scheduler.RunOnStart || override.Scheduler.RunOnStart

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	base.Metrics.Enabled = base.Metrics.Enabled || override.Metrics.Enabled
	if override.Metrics.Path != "" {
		base.Metrics.Path = override.Metrics.Path
	}

	return base
}

func mergeS3(base, override S3Config) S3Config {
	if override.Region != "" {
		base.Region = override.Region
	}
	if override.Endpoint != "" {
		base.Endpoint = override.Endpoint
	}
	base.UsePathStyle = base.UsePathStyle || override.UsePathStyle
	base.Anonymous = base.Anonymous || override.Anonymous
	if override.AccessKeyID != "" {
		base.AccessKeyID = override.AccessKeyID
	}
	if override.SecretAccessKey != "" {
		base.SecretAccessKey = override.SecretAccessKey
	}
	if override.PageSize != 0 {
		base.PageSize = override.PageSize
	}
	if override.MaxRetries != 0 {
		base.MaxRetries = override.MaxRetries
	}
	if override.Timeout != 0 {
		base.Timeout = override.Timeout
	}
	return base
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000, ShutdownTimeout: 30 * time.Second},
		Storage: StorageConfig{
			DataDir:        "data",
			BatchSize:      1000,
			StaleLockAfter: 4 * time.Hour,
			BusyTimeout:    10 * time.Second,
			Synchronous:    "FULL",
		},
		Source: SourceConfig{
			Lister: "s3",
			S3:     S3Config{Region: "us-east-1", PageSize: 1000, MaxRetries: 5, Timeout: 60 * time.Second},
			Index:  IndexConfig{MaxDepth: 32, Timeout: 30 * time.Second},
		},
		Manifest:  ManifestConfig{FetchTimeout: 30 * time.Second},
		Scheduler: SchedulerConfig{},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Metrics:   MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}
