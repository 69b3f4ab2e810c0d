package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Bolt      BoltConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Auth      AuthConfig
	AI        AIConfig
	Session   SessionConfig
	Export    ExportConfig
	Log       LogConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port string
	Mode string
}

// StoreConfig selects the shared key-value backend: memory, bolt, redis or mysql.
type StoreConfig struct {
	Driver       string        `mapstructure:"driver"`
	Namespace    string        `mapstructure:"namespace"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type BoltConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Channel  string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

// AuthConfig is a placeholder gate, not a security boundary.
type AuthConfig struct {
	TeacherPasswordHash string `mapstructure:"teacher_password_hash"`
	DefaultTeacherName  string `mapstructure:"default_teacher_name"`
	DefaultStudentName  string `mapstructure:"default_student_name"`
	StudentClassCode    string `mapstructure:"student_class_code"`
}

type AIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func (c AIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type SessionConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

type ExportConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioSecure   bool   `mapstructure:"minio_secure"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

var knownDrivers = map[string]bool{
	"memory": true,
	"bolt":   true,
	"redis":  true,
	"mysql":  true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("store.driver", "bolt")
	v.SetDefault("store.namespace", "edutest")
	v.SetDefault("store.poll_interval", 2*time.Second)
	v.SetDefault("bolt.path", "data/edutest.db")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.channel", "edutest:store")

	v.SetDefault("database.port", 3306)
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)

	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("auth.default_teacher_name", "Teacher")
	v.SetDefault("auth.default_student_name", "Student")
	v.SetDefault("auth.student_class_code", "CLASS6A")

	v.SetDefault("ai.timeout_seconds", 60)
	v.SetDefault("session.tick_interval", time.Second)

	v.SetDefault("export.type", "local")
	v.SetDefault("export.local_path", "exports")

	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("rate_limit.max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("EDUTEST")
	v.AutomaticEnv()
	setDefaults(v)

	// Store
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("bolt.path", "BOLT_PATH")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT / auth
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("auth.teacher_password_hash", "TEACHER_PASSWORD_HASH")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")

	// AI
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("ai.api_key", "AI_API_KEY")
	v.BindEnv("ai.model", "AI_MODEL")

	// Export
	v.BindEnv("export.type", "EXPORT_TYPE")
	v.BindEnv("export.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("export.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("export.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("export.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Store.Driver == "bolt" {
		if dir := filepath.Dir(cfg.Bolt.Path); dir != "" {
			os.MkdirAll(dir, 0755)
		}
	}
	if cfg.Export.Type == "local" {
		if _, err := os.Stat(cfg.Export.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Export.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if !knownDrivers[c.Store.Driver] {
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.Session.TickInterval <= 0 {
		return fmt.Errorf("session tick interval must be positive, got %s", c.Session.TickInterval)
	}
	return nil
}
