package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ai-diagnostics-service/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment, and defaults
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/ai-diagnostics-service/")

	viper.SetEnvPrefix("DIAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and env vars apply without one
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "diagnostics")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_conns", 25)
	viper.SetDefault("database.min_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.conn_max_idle_time", "30m")
	viper.SetDefault("database.migrations_path", "./migrations")

	// Cache defaults
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "12h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")
	viper.SetDefault("cache.memory_size", 512)

	// Reasoning-model defaults
	viper.SetDefault("reasoning.base_url", "http://localhost:9090/v1")
	viper.SetDefault("reasoning.model", "clinical-reasoner-1")
	viper.SetDefault("reasoning.temperature", 0.2)
	viper.SetDefault("reasoning.max_tokens", 4096)
	viper.SetDefault("reasoning.timeout", "90s")
	viper.SetDefault("reasoning.max_attempts", 3)
	viper.SetDefault("reasoning.backoff_base", "1s")
	viper.SetDefault("reasoning.backoff_cap", "30s")
	viper.SetDefault("reasoning.rate_limit", 5)

	// Drug-interaction service defaults
	viper.SetDefault("interactions.base_url", "http://localhost:9091")
	viper.SetDefault("interactions.timeout", "15s")
	viper.SetDefault("interactions.rate_limit", 10)

	// Clinical-records service defaults
	viper.SetDefault("records.base_url", "http://localhost:9092")
	viper.SetDefault("records.timeout", "10s")
	viper.SetDefault("records.rate_limit", 20)

	// Pipeline defaults
	viper.SetDefault("pipeline.prompt_version", "v1")
	viper.SetDefault("pipeline.max_request_retries", 3)
	viper.SetDefault("pipeline.consent_override", false)
	viper.SetDefault("pipeline.skip_interaction_check", false)
	viper.SetDefault("pipeline.skip_lab_validation", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if config.Reasoning.BaseURL == "" {
		return fmt.Errorf("reasoning-model base URL is required")
	}
	if config.Reasoning.MaxAttempts < 1 {
		return fmt.Errorf("reasoning max_attempts must be at least 1")
	}
	if config.Interactions.BaseURL == "" {
		return fmt.Errorf("interaction service base URL is required")
	}
	if config.Records.BaseURL == "" {
		return fmt.Errorf("records service base URL is required")
	}

	if config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required")
	}

	if config.Pipeline.MaxRequestRetries < 0 {
		return fmt.Errorf("pipeline max_request_retries must not be negative")
	}
	if config.Pipeline.ConsentOverride && m.IsProduction() {
		return fmt.Errorf("consent override must not be enabled in production")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the database connection URL used by migrations
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(viper.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
