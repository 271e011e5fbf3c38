// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Socket    SocketConfig    `mapstructure:"socket"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // "postgres" or "memory"
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ArtifactsConfig drives the render/convert pipeline and its on-disk cache.
type ArtifactsConfig struct {
	Dir             string `mapstructure:"dir"`
	DPI             int    `mapstructure:"dpi"`
	JPEGQuality     int    `mapstructure:"jpeg_quality"`
	PdftoppmPath    string `mapstructure:"pdftoppm_path"`
	GhostscriptPath string `mapstructure:"ghostscript_path"`
	ConvertTimeout  int    `mapstructure:"convert_timeout"` // milliseconds
	StampStore      string `mapstructure:"stamp_store"`     // "memory" or "redis"
	PortalTitle     string `mapstructure:"portal_title"`
}

// SocketConfig holds live-connection settings.
type SocketConfig struct {
	WriteTimeout   int      `mapstructure:"write_timeout"` // milliseconds
	PingInterval   int      `mapstructure:"ping_interval"` // milliseconds
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
