package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App     AppConfig              `mapstructure:"app"`
	Chains  map[string]ChainConfig `mapstructure:"chains"`
	ENS     ENSConfig              `mapstructure:"ens"`
	Oracle  OracleConfig           `mapstructure:"oracle"`
	Storage StorageConfig          `mapstructure:"storage"`
	Auth    AuthConfig             `mapstructure:"auth"`
	Server  ServerConfig           `mapstructure:"server"`
	Logging LoggingConfig          `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ChainConfig describes one chain the oracle can query, keyed by chain id
type ChainConfig struct {
	NodeURL        string        `mapstructure:"node_url"`
	BackupNodes    []string      `mapstructure:"backup_nodes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	IndexerURL     string        `mapstructure:"indexer_url"`
	IndexerAPIKey  string        `mapstructure:"indexer_api_key"`
}

// ENSConfig tells the oracle where ENS lives
type ENSConfig struct {
	ChainID         string `mapstructure:"chain_id"`
	RegistryAddress string `mapstructure:"registry_address"`
}

// OracleConfig configures the resolution cache
type OracleConfig struct {
	CacheBackend string        `mapstructure:"cache_backend"` // memory, redis, none
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	RedisAddr    string        `mapstructure:"redis_addr"`
	RedisDB      int           `mapstructure:"redis_db"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres, memory
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// AuthConfig contains sign-in and session configuration
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	viper.SetEnvPrefix("TICKET_GATE")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if secret := os.Getenv("TICKET_GATE_JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if dsn := os.Getenv("TICKET_GATE_STORAGE_DSN"); dsn != "" {
		config.Storage.ConnectionString = dsn
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "ticket-gate")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	viper.SetDefault("ens.chain_id", "1")
	viper.SetDefault("ens.registry_address", "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

	viper.SetDefault("oracle.cache_backend", "memory")
	viper.SetDefault("oracle.cache_ttl", 5*time.Minute)

	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/ticket-gate.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", 15*time.Minute)

	viper.SetDefault("auth.session_ttl", 24*time.Hour)

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate checks the configuration for obvious misconfiguration
func (c *Config) Validate() error {
	if c.Storage.Type == "" {
		return fmt.Errorf("storage.type is required")
	}
	if c.Auth.JWTSecret == "" && c.App.Environment == "production" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}
	for chainID, chain := range c.Chains {
		if chain.NodeURL == "" {
			return fmt.Errorf("chains.%s.node_url is required", chainID)
		}
	}
	return nil
}
