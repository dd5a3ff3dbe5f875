// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like OPENAI_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, e.g. config.production.yaml
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig backfills well-known env vars for values the yaml and
// viper's AutomaticEnv still left empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Providers.OpenAI.APIKey == "" {
		if val := os.Getenv("OPENAI_API_KEY"); val != "" {
			cfg.Providers.OpenAI.APIKey = val
		}
	}
	if cfg.Providers.Grok.APIKey == "" {
		if val := os.Getenv("XAI_API_KEY"); val != "" {
			cfg.Providers.Grok.APIKey = val
		}
	}
	if cfg.Providers.LMStudio.BaseURL == "" {
		if val := os.Getenv("LMSTUDIO_BASE_URL"); val != "" {
			cfg.Providers.LMStudio.BaseURL = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Address == "" {
		if val := os.Getenv("REDIS_ADDR"); val != "" {
			cfg.Database.Redis.Address = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.Channel == "" {
		cfg.Database.Redis.Channel = "agent_status"
	}

	// Provider defaults
	if cfg.Providers.OpenAI.BaseURL == "" {
		cfg.Providers.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Providers.OpenAI.Model == "" {
		cfg.Providers.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Providers.Grok.BaseURL == "" {
		cfg.Providers.Grok.BaseURL = "https://api.x.ai/v1"
	}
	if cfg.Providers.Grok.Model == "" {
		cfg.Providers.Grok.Model = "grok-2-latest"
	}
	if cfg.Providers.LMStudio.Model == "" {
		cfg.Providers.LMStudio.Model = "local-model"
	}
	for _, p := range []*ProviderConfig{&cfg.Providers.OpenAI, &cfg.Providers.Grok, &cfg.Providers.LMStudio} {
		if p.Timeout == 0 {
			p.Timeout = 60000
		}
	}

	// Agent defaults
	if cfg.Agent.BatchSize == 0 {
		cfg.Agent.BatchSize = 5
	}
	if cfg.Agent.IntervalMs == 0 {
		cfg.Agent.IntervalMs = 6 * 60 * 60 * 1000 // 6h
	}
	if cfg.Agent.MinQualityScore == 0 {
		cfg.Agent.MinQualityScore = 70
	}
	if cfg.Agent.MaxProducts == 0 {
		cfg.Agent.MaxProducts = 1000
	}
	if cfg.Agent.Retries == 0 {
		cfg.Agent.Retries = 3
	}
	if cfg.Agent.Temperature == 0 {
		cfg.Agent.Temperature = 0.7
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = 1024
	}

	// Validation defaults
	if len(cfg.Validation.AllowedDomains) == 0 {
		cfg.Validation.AllowedDomains = []string{
			"aliexpress.com",
			"cjdropshipping.com",
			"alibaba.com",
			"dhgate.com",
		}
	}
	if cfg.Validation.FetchTimeout == 0 {
		cfg.Validation.FetchTimeout = 10000
	}
	if cfg.Validation.AcceptThreshold == 0 {
		cfg.Validation.AcceptThreshold = 60
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Agent.BatchSize < 1 {
		return fmt.Errorf("agent.batch_size must be positive")
	}
	if cfg.Agent.MinQualityScore < 0 || cfg.Agent.MinQualityScore > 100 {
		return fmt.Errorf("agent.min_quality_score must be in [0,100]")
	}

	if cfg.Alerts.Enabled {
		if cfg.Alerts.FromEmail == "" || cfg.Alerts.ToEmail == "" {
			return fmt.Errorf("alerts.from_email and alerts.to_email are required when alerts are enabled")
		}
		if cfg.Alerts.AWSRegion == "" {
			return fmt.Errorf("alerts.aws_region is required when alerts are enabled")
		}
	}

	return nil
}
