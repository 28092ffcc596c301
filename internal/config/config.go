package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	MatchBackendMemory   = "memory"
	MatchBackendPGVector = "pgvector"

	GallerySourceDir   = "dir"
	GallerySourceMinIO = "minio"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Vision     VisionConfig     `yaml:"vision"`
	Gallery    GalleryConfig    `yaml:"gallery"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port      int             `yaml:"port"`
	APIKey    string          `yaml:"api_key"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds recognition requests per client IP.
// A zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Name        string `yaml:"name"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	MaxConns    int    `yaml:"max_conns"`
	SQLitePath  string `yaml:"sqlite_path"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

// Enabled reports whether recognition events are published.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Snapshots bool   `yaml:"snapshots"`
}

func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != ""
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	MatchThreshold     float64 `yaml:"match_threshold"`
	MatchBackend       string  `yaml:"match_backend"`
	EmbedWorkers       int     `yaml:"embed_workers"`
	// ONNXRuntimeLib is the onnxruntime shared library; empty picks the
	// platform default name.
	ONNXRuntimeLib string `yaml:"onnxruntime_lib"`
}

type GalleryConfig struct {
	Source string `yaml:"source"`
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

type AttendanceConfig struct {
	Timezone string `yaml:"timezone"`
}

// Location resolves the configured time zone used for attendance dates.
func (a AttendanceConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || a.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A missing file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Vision.MatchBackend {
	case MatchBackendMemory:
	case MatchBackendPGVector:
		if c.Database.Driver != DriverPostgres {
			return fmt.Errorf("match backend %q requires the postgres driver", c.Vision.MatchBackend)
		}
	default:
		return fmt.Errorf("unsupported match backend %q", c.Vision.MatchBackend)
	}
	switch c.Gallery.Source {
	case GallerySourceDir:
	case GallerySourceMinIO:
		if !c.MinIO.Enabled() {
			return fmt.Errorf("gallery source %q requires minio.endpoint", c.Gallery.Source)
		}
	default:
		return fmt.Errorf("unsupported gallery source %q", c.Gallery.Source)
	}
	if c.Vision.MatchThreshold <= 0 {
		return fmt.Errorf("match threshold must be positive, got %v", c.Vision.MatchThreshold)
	}
	if _, err := c.Attendance.Location(); err != nil {
		return err
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit.RequestsPerSecond > 0 && cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = 5
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "hrms.db"
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "hrms"
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.MatchThreshold == 0 {
		cfg.Vision.MatchThreshold = 0.6
	}
	if cfg.Vision.MatchBackend == "" {
		cfg.Vision.MatchBackend = MatchBackendMemory
	}
	if cfg.Vision.EmbedWorkers == 0 {
		cfg.Vision.EmbedWorkers = 4
	}
	if cfg.Gallery.Source == "" {
		cfg.Gallery.Source = GallerySourceDir
	}
	if cfg.Gallery.Dir == "" {
		cfg.Gallery.Dir = "media/images"
	}
	if cfg.Gallery.Prefix == "" {
		cfg.Gallery.Prefix = "gallery/"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HRMS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HRMS_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("HRMS_RATE_LIMIT_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("HRMS_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("HRMS_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("HRMS_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("HRMS_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("HRMS_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("HRMS_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("HRMS_DB_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HRMS_DB_AUTO_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.AutoMigrate = b
		}
	}
	if v := os.Getenv("HRMS_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("HRMS_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("HRMS_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("HRMS_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("HRMS_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("HRMS_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("HRMS_MATCH_THRESHOLD"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.MatchThreshold = t
		}
	}
	if v := os.Getenv("HRMS_ONNXRUNTIME_LIB"); v != "" {
		cfg.Vision.ONNXRuntimeLib = v
	}
	if v := os.Getenv("HRMS_MATCH_BACKEND"); v != "" {
		cfg.Vision.MatchBackend = v
	}
	if v := os.Getenv("HRMS_GALLERY_SOURCE"); v != "" {
		cfg.Gallery.Source = v
	}
	if v := os.Getenv("HRMS_GALLERY_DIR"); v != "" {
		cfg.Gallery.Dir = v
	}
	if v := os.Getenv("HRMS_TIMEZONE"); v != "" {
		cfg.Attendance.Timezone = v
	}
	if v := os.Getenv("HRMS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
