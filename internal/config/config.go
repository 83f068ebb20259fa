package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	History  HistoryConfig
	Auth     AuthConfig
	Tracing  TracingConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
}

// DatabaseConfig holds database configuration for the postgres history
// mirror
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
	Table    string
}

// RedisConfig holds Redis configuration for the query result cache
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration for the export store
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// HistoryConfig holds the dataset source and the query defaults the
// interactive surface applies when a parameter is omitted.
type HistoryConfig struct {
	Source             string // csv or postgres
	CSVPath            string
	CacheTTL           time.Duration
	DefaultMinDuration float64
	DefaultTopUsers    int
	DefaultTopShows    int
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKey    string
}

// TracingConfig holds Jaeger tracing configuration
type TracingConfig struct {
	ServiceName    string
	JaegerEndpoint string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.History.Source {
	case "csv":
		if c.History.CSVPath == "" {
			return fmt.Errorf("history.csvPath is required when history.source is csv")
		}
	case "postgres":
		// Database section carries its own defaults.
	default:
		return fmt.Errorf("history.source must be csv or postgres, got %q", c.History.Source)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.enabled requires auth.jwtSecret or auth.apiKey")
	}
	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst <= 0 {
		return fmt.Errorf("server.rateLimitRPS and server.rateLimitBurst must be positive")
	}
	return nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")
	viper.SetDefault("server.rateLimitRPS", 10)
	viper.SetDefault("server.rateLimitBurst", 20)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "histview")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxConns", 10)
	viper.SetDefault("database.minConns", 2)
	viper.SetDefault("database.table", "watch_history")

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults
	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "histview-exports")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)

	// History defaults, mirroring the viewer's widget defaults
	viper.SetDefault("history.source", "csv")
	viper.SetDefault("history.csvPath", "tautulli_plex_merged_visible.csv")
	viper.SetDefault("history.cacheTTL", "10m")
	viper.SetDefault("history.defaultMinDuration", 10)
	viper.SetDefault("history.defaultTopUsers", 10)
	viper.SetDefault("history.defaultTopShows", 20)

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtSecret", "")
	viper.SetDefault("auth.apiKey", "")

	// Tracing defaults
	viper.SetDefault("tracing.serviceName", "histview")
	viper.SetDefault("tracing.jaegerEndpoint", "")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}
