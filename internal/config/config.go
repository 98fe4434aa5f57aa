package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds settings shared by every binary
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	PathPrefix     string   `mapstructure:"path_prefix"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // in seconds
	IdleTimeout    int      `mapstructure:"idle_timeout"`  // in seconds
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DynamoDBConfig holds the connection settings for the site table
type DynamoDBConfig struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	SessionToken string `mapstructure:"session_token"`
	TableName    string `mapstructure:"table_name"`
}

// RedisConfig holds redis connection and cache settings
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	SlugCacheTTL time.Duration `mapstructure:"slug_cache_ttl"`
}

// AuthConfig holds the shared secret used to verify bearer tokens
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// WorkerConfig holds request worker pool configuration
type WorkerConfig struct {
	PoolSize  int `mapstructure:"pool_size"`
	QueueSize int `mapstructure:"queue_size"`
}

// RetryConfig bounds an exponential backoff loop
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// AdminServerConfig holds configuration for admin-server
type AdminServerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	DynamoDB   DynamoDBConfig `mapstructure:"dynamodb"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Worker     WorkerConfig   `mapstructure:"worker"`
	Store      RetryConfig    `mapstructure:"store"`
	Ledger     RetryConfig    `mapstructure:"ledger"`
}

// PublicServerConfig holds configuration for public-server
type PublicServerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	DynamoDB   DynamoDBConfig `mapstructure:"dynamodb"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Worker     WorkerConfig   `mapstructure:"worker"`
	Store      RetryConfig    `mapstructure:"store"`
	Ledger     RetryConfig    `mapstructure:"ledger"`
}

// WSServerConfig holds configuration for ws-server
type WSServerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	DynamoDB   DynamoDBConfig `mapstructure:"dynamodb"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Worker     WorkerConfig   `mapstructure:"worker"`
	Store      RetryConfig    `mapstructure:"store"`
}

// ToolConfig holds configuration for table-admin
type ToolConfig struct {
	BaseConfig `mapstructure:",squash"`
	DynamoDB   DynamoDBConfig `mapstructure:"dynamodb"`
}

// LoadAdminServerConfig loads configuration for admin-server
func LoadAdminServerConfig(configFile string, envPath string) (*AdminServerConfig, error) {
	v := configureViper("admin-server", configFile, envPath)

	setCommonDefaults(v)
	v.SetDefault("server.listen_addr", ":8081")
	v.SetDefault("server.path_prefix", "/api/admin")
	v.SetDefault("ledger.max_attempts", 8)
	v.SetDefault("ledger.initial_interval", "20ms")
	v.SetDefault("ledger.max_interval", "500ms")

	var cfg AdminServerConfig
	if err := readAndUnmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	return &cfg, nil
}

// LoadPublicServerConfig loads configuration for public-server
func LoadPublicServerConfig(configFile string, envPath string) (*PublicServerConfig, error) {
	v := configureViper("public-server", configFile, envPath)

	setCommonDefaults(v)
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.path_prefix", "/api/public")
	v.SetDefault("worker.pool_size", 50)
	v.SetDefault("ledger.max_attempts", 8)
	v.SetDefault("ledger.initial_interval", "20ms")
	v.SetDefault("ledger.max_interval", "500ms")

	var cfg PublicServerConfig
	if err := readAndUnmarshal(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWSServerConfig loads configuration for ws-server
func LoadWSServerConfig(configFile string, envPath string) (*WSServerConfig, error) {
	v := configureViper("ws-server", configFile, envPath)

	setCommonDefaults(v)
	v.SetDefault("server.listen_addr", ":8082")
	v.SetDefault("server.path_prefix", "/ws")

	var cfg WSServerConfig
	if err := readAndUnmarshal(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadToolConfig loads configuration for table-admin
func LoadToolConfig(configFile string, envPath string) (*ToolConfig, error) {
	v := configureViper("table-admin", configFile, envPath)
	setCommonDefaults(v)

	var cfg ToolConfig
	if err := readAndUnmarshal(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setCommonDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("dynamodb.region", "eu-central-1")
	v.SetDefault("dynamodb.table_name", "WeddingSite")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.slug_cache_ttl", "5m")
	v.SetDefault("worker.pool_size", 10)
	v.SetDefault("worker.queue_size", 256)
	v.SetDefault("store.max_attempts", 4)
	v.SetDefault("store.initial_interval", "50ms")
	v.SetDefault("store.max_interval", "1s")
}

func readAndUnmarshal(v *viper.Viper, out any) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use environment variables
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath, service)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("WEDDING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars binds every key so env-only deployments unmarshal fully
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Server
		"server.listen_addr",
		"server.path_prefix",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		"server.allowed_origins",
		// DynamoDB
		"dynamodb.region",
		"dynamodb.endpoint",
		"dynamodb.access_key",
		"dynamodb.secret_key",
		"dynamodb.session_token",
		"dynamodb.table_name",
		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",
		"redis.slug_cache_ttl",
		// Auth
		"auth.jwt_secret",
		// Worker
		"worker.pool_size",
		"worker.queue_size",
		// Retry loops
		"store.max_attempts",
		"store.initial_interval",
		"store.max_interval",
		"ledger.max_attempts",
		"ledger.initial_interval",
		"ledger.max_interval",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads .env files; later files override earlier ones
func loadEnv(envPath string, service string) {
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		_ = godotenv.Overload(filepath.Join(envPath, envFile))
	}
}
