package domain

import "time"

// Config holds the complete application configuration.
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Inference    InferenceConfig    `mapstructure:"inference"`
	Reliability  ReliabilityConfig  `mapstructure:"reliability"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
	TLSCertFile  string        `mapstructure:"tls_cert_file"`
	TLSKeyFile   string        `mapstructure:"tls_key_file"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the
// diagnosis archive.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig holds result cache and Redis configuration.
type CacheConfig struct {
	ResultCacheSize int    `mapstructure:"result_cache_size"`
	RedisEnabled    bool   `mapstructure:"redis_enabled"`
	RedisURL        string `mapstructure:"redis_url"`
}

// InferenceConfig holds the inference backend configuration.
type InferenceConfig struct {
	Backend   string        `mapstructure:"backend"` // stub, http
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

// ReliabilityConfig holds agent reliability tracking configuration.
type ReliabilityConfig struct {
	Persistence     string `mapstructure:"persistence"` // memory, sqlite, postgres
	SQLitePath      string `mapstructure:"sqlite_path"`
	PostgresURL     string `mapstructure:"postgres_url"`
	HistoryCapacity int    `mapstructure:"history_capacity"`
}

// OrchestratorConfig holds diagnosis pipeline tuning parameters.
type OrchestratorConfig struct {
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// AuditConfig holds audit trail configuration.
type AuditConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	RedisStream bool `mapstructure:"redis_stream"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
