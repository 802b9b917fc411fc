package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for both binaries.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	S3        S3Config        `mapstructure:"s3"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Client    ClientConfig    `mapstructure:"client"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	// Admin accounts cannot self-register; this one is created at startup when set.
	AdminName     string `mapstructure:"admin_name"`
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// RedisConfig configures the analytics cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	AnalyticsTTL time.Duration `mapstructure:"analytics_ttl"`
}

// S3Config configures the incident archive bucket. An empty BucketName
// keeps incidents in the server log only.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// RateLimitConfig bounds request throughput on the API.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ClientConfig drives sessionctl: the data source it talks to and the
// recovery and refresh policies of the surfaces.
type ClientConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Token            string        `mapstructure:"token"`
	OwnerID          string        `mapstructure:"owner_id"`
	Role             string        `mapstructure:"role"`
	TrainerID        string        `mapstructure:"trainer_id"`
	Timeout          time.Duration `mapstructure:"timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	AutosaveEvery    time.Duration `mapstructure:"autosave_every"`
	MaxRenderRetries int           `mapstructure:"max_render_retries"`
	FetchAttempts    int           `mapstructure:"fetch_attempts"`
	HistoryLimit     int           `mapstructure:"history_limit"`
	OutboxPath       string        `mapstructure:"outbox_path"`
	SyntheticSeed    int64         `mapstructure:"synthetic_seed"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS, client.base_url -> CLIENT_BASE_URL
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// No file: defaults and env vars only.
		err = nil
	} else if err != nil {
		return
	}

	// Durations are given as strings ("10s", "1h") and decoded into time.Duration.
	err = v.Unmarshal(&config)
	if err != nil {
		return
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.admin_name", "Admin")
	v.SetDefault("server.admin_email", "")
	v.SetDefault("server.admin_password", "")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "session_tracker")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.analytics_ttl", "5m")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", "1h")
	v.SetDefault("ratelimit.requests_per_second", 20)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.token", "")
	v.SetDefault("client.owner_id", "")
	v.SetDefault("client.role", "client")
	v.SetDefault("client.trainer_id", "")
	v.SetDefault("client.timeout", "10s")
	v.SetDefault("client.poll_interval", "30s")
	v.SetDefault("client.autosave_every", "30s")
	v.SetDefault("client.max_render_retries", 3)
	v.SetDefault("client.fetch_attempts", 2)
	v.SetDefault("client.history_limit", 10)
	v.SetDefault("client.outbox_path", "sessionctl-outbox.db")
	v.SetDefault("client.synthetic_seed", 1)
}
