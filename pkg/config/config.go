package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hugh/taskeasy/pkg/util"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	CORS       CORSConfig
	Storage    StorageConfig
	Import     ImportConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type CORSConfig struct {
	AllowedOrigins []string
}

// StorageConfig selects and configures the blob store for uploads,
// project logos and rendered wiki pages.
type StorageConfig struct {
	Backend         string // local, s3, gcs
	UploadDir       string
	PublicPath      string
	Bucket          string
	Region          string
	Endpoint        string
	PublicURL       string
	AccessKey       string
	SecretKey       string
	CredentialsFile string
	MaxUploadMB     int
}

type ImportConfig struct {
	Key string
}

type WorkerConfig struct {
	Concurrency     int
	OrphanSweepCron string
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (s *StorageConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 100)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("STORAGE_BACKEND", "local")
	v.SetDefault("STORAGE_UPLOAD_DIR", "uploads")
	v.SetDefault("STORAGE_PUBLIC_PATH", "/uploads")
	v.SetDefault("STORAGE_MAX_UPLOAD_MB", 20)
	v.SetDefault("WORKER_CONCURRENCY", 5)
	v.SetDefault("ORPHAN_SWEEP_CRON", "0 3 * * *")

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
			Env:  v.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			URL:          v.GetString("DATABASE_URL"),
			MaxOpenConns: v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DATABASE_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Storage: StorageConfig{
			Backend:         strings.ToLower(v.GetString("STORAGE_BACKEND")),
			UploadDir:       v.GetString("STORAGE_UPLOAD_DIR"),
			PublicPath:      v.GetString("STORAGE_PUBLIC_PATH"),
			Bucket:          v.GetString("STORAGE_BUCKET"),
			Region:          v.GetString("STORAGE_REGION"),
			Endpoint:        v.GetString("STORAGE_ENDPOINT"),
			PublicURL:       v.GetString("STORAGE_PUBLIC_URL"),
			AccessKey:       v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey:       v.GetString("STORAGE_SECRET_KEY"),
			CredentialsFile: v.GetString("STORAGE_CREDENTIALS_FILE"),
			MaxUploadMB:     v.GetInt("STORAGE_MAX_UPLOAD_MB"),
		},
		Import: ImportConfig{
			Key: v.GetString("IMPORT_KEY"),
		},
		Worker: WorkerConfig{
			Concurrency:     v.GetInt("WORKER_CONCURRENCY"),
			OrphanSweepCron: v.GetString("ORPHAN_SWEEP_CRON"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the options that have no usable default.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWT.ExpiryHours <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY_HOURS must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT %d out of range", c.Server.Port))
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.UploadDir == "" {
			errs = append(errs, errors.New("STORAGE_UPLOAD_DIR is required for local storage"))
		}
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("STORAGE_BUCKET is required for %s storage", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}

	if c.Worker.OrphanSweepCron != "" {
		if err := util.ValidateCronExpr(c.Worker.OrphanSweepCron); err != nil {
			errs = append(errs, fmt.Errorf("ORPHAN_SWEEP_CRON: %w", err))
		}
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
