// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Validation ValidationConfig `mapstructure:"validation"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
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

// DSN returns the PostgreSQL connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"` // pub/sub channel for status events
}

// Enabled reports whether a Redis status sink should be wired at all.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// --- LLM Providers ---

// ProviderConfig describes one LLM backend. A provider counts as configured
// when its credential requirements are met, not because a call succeeded.
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type ProvidersConfig struct {
	OpenAI   ProviderConfig `mapstructure:"openai"`
	Grok     ProviderConfig `mapstructure:"grok"`
	LMStudio ProviderConfig `mapstructure:"lmstudio"`
}

// --- Agent / pipeline behavior ---

type AgentConfig struct {
	BatchSize       int     `mapstructure:"batch_size"`
	IntervalMs      int     `mapstructure:"interval_ms"`
	MinQualityScore int     `mapstructure:"min_quality_score"`
	MaxProducts     int     `mapstructure:"max_products"`
	Retries         int     `mapstructure:"retries"`     // structured-output parse retries
	Temperature     float64 `mapstructure:"temperature"` // generation temperature
	MaxTokens       int     `mapstructure:"max_tokens"`
}

type ValidationConfig struct {
	AllowedDomains  []string `mapstructure:"allowed_domains"`
	FetchTimeout    int      `mapstructure:"fetch_timeout"` // milliseconds
	AcceptThreshold int      `mapstructure:"accept_threshold"`
}

// AlertsConfig drives the error-state alert mail.
type AlertsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AWSRegion string `mapstructure:"aws_region"`
	FromEmail string `mapstructure:"from_email"`
	ToEmail   string `mapstructure:"to_email"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
