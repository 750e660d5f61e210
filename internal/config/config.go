package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Log          LogConfig `mapstructure:"log"`
	Database     DatabaseConfig
	JWT          JWTConfig
	Storage      StorageConfig
	Tracing      TracingConfig `mapstructure:"tracing"`
	Redis        RedisConfig
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Collaborator CollaboratorConfig `mapstructure:"collaborator"`
	Audio        AudioConfig        `mapstructure:"audio"`
	Review       ReviewConfig       `mapstructure:"review"`

	// 配置文件所在目录，供热加载使用
	Path string `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
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
	Secret string `mapstructure:"secret"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Host     string
	Port     int
	Password string
	DB       int
}

// CollaboratorConfig 内容/提交记录协作方
// mode: local 直连数据库, remote 调用远端 REST 接口, memory 内存（开发演示）
type CollaboratorConfig struct {
	Mode           string `mapstructure:"mode"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func (c CollaboratorConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AudioConfig 教师语音点评的录音来源
type AudioConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Source      string `mapstructure:"source"` // upload, ffmpeg
	Device      string `mapstructure:"device"`
	InputFormat string `mapstructure:"input_format"`
	MaxSeconds  int    `mapstructure:"max_seconds"`
}

type ReviewConfig struct {
	CountCacheTTLSeconds int `mapstructure:"count_cache_ttl_seconds"`
}

func (r ReviewConfig) CountCacheTTL() time.Duration {
	if r.CountCacheTTLSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.CountCacheTTLSeconds) * time.Second
}

const (
	CollaboratorLocal  = "local"
	CollaboratorRemote = "remote"
	CollaboratorMemory = "memory"

	AudioSourceUpload = "upload"
	AudioSourceFFmpeg = "ffmpeg"
)

func LoadConfig(path string) (*Config, error) {
	// .env 只作为补充，不存在时忽略
	_ = godotenv.Load(filepath.Join(path, "..", ".env"))

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LSRW")
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("collaborator.mode", CollaboratorLocal)
	v.SetDefault("collaborator.timeout_seconds", 30)
	v.SetDefault("audio.enabled", true)
	v.SetDefault("audio.source", AudioSourceUpload)
	v.SetDefault("audio.max_seconds", 300)
	v.SetDefault("review.count_cache_ttl_seconds", 60)
	v.SetDefault("rate_limit.max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("log.level", "LOG_LEVEL")

	// Collaborator
	v.BindEnv("collaborator.mode", "COLLABORATOR_MODE")
	v.BindEnv("collaborator.base_url", "COLLABORATOR_BASE_URL")
	v.BindEnv("collaborator.timeout_seconds", "COLLABORATOR_TIMEOUT_SECONDS")

	// Audio
	v.BindEnv("audio.enabled", "AUDIO_ENABLED")
	v.BindEnv("audio.source", "AUDIO_SOURCE")
	v.BindEnv("audio.device", "AUDIO_DEVICE")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unknown server mode %q", c.Server.Mode)
	}

	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}

	switch c.Collaborator.Mode {
	case CollaboratorLocal, CollaboratorMemory:
	case CollaboratorRemote:
		if c.Collaborator.BaseURL == "" {
			return fmt.Errorf("collaborator.base_url is required in remote mode")
		}
	default:
		return fmt.Errorf("unknown collaborator mode %q", c.Collaborator.Mode)
	}

	switch c.Audio.Source {
	case AudioSourceUpload, AudioSourceFFmpeg:
	default:
		return fmt.Errorf("unknown audio source %q", c.Audio.Source)
	}
	return nil
}
