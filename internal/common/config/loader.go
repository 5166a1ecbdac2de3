// internal/common/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrAPIKeyMissing   = errors.New("gemini.api_key is required (set GEMINI_API_KEY or API_KEY)")
	ErrRelayURLMissing = errors.New("client.relay_url is required")
)

// Load reads configs/config.yaml, merges configs/config.<APP_ENVIRONMENT>.yaml
// when present and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
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
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		// An unset variable expands to "" so overrideEmptyConfig can still fill it.
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			v.Set(key, os.ExpandEnv(strVal))
		}
	}
}

// overrideEmptyConfig fills values that viper's AutomaticEnv cannot reach
// during Unmarshal because the key is absent from every config file.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Gemini.APIKey == "" {
		for _, name := range []string{"GEMINI_API_KEY", "API_KEY"} {
			if val := os.Getenv(name); val != "" {
				cfg.Gemini.APIKey = val
				break
			}
		}
	}
	if cfg.Client.RelayURL == "" {
		if val := os.Getenv("RELAY_URL"); val != "" {
			cfg.Client.RelayURL = val
		}
	}
	if cfg.Cache.Address == "" {
		if val := os.Getenv("REDIS_ADDRESS"); val != "" {
			cfg.Cache.Address = val
		}
	}
	if cfg.Cache.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Cache.Password = val
		}
	}
	if cfg.Tracing.JaegerEndpoint == "" {
		if val := os.Getenv("JAEGER_ENDPOINT"); val != "" {
			cfg.Tracing.JaegerEndpoint = val
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "wiki-explorer"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AllowedOrigins == "" {
		cfg.Server.AllowedOrigins = "*"
	}
	if cfg.Server.RateLimitPerMinute == 0 {
		cfg.Server.RateLimitPerMinute = 30
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	if cfg.Gemini.BaseURL == "" {
		cfg.Gemini.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.5-flash"
	}
	if cfg.Gemini.DisambiguateTimeout == 0 {
		cfg.Gemini.DisambiguateTimeout = 20000
	}
	if cfg.Gemini.MaxDisambiguations == 0 {
		cfg.Gemini.MaxDisambiguations = 5
	}

	if cfg.Article.Language == "" {
		cfg.Article.Language = "Persian"
	}
	if cfg.Article.UnknownSourceTitle == "" {
		cfg.Article.UnknownSourceTitle = "منبع نامشخص"
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 86400
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "wiki:disambiguation:"
	}

	if cfg.Client.RelayURL == "" {
		cfg.Client.RelayURL = "http://localhost:8080"
	}
	if cfg.Client.DisambiguateTimeout == 0 {
		cfg.Client.DisambiguateTimeout = 30000
	}
	if cfg.Client.Width == 0 {
		cfg.Client.Width = 80
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}
	if cfg.Gemini.MaxDisambiguations < 0 {
		return fmt.Errorf("gemini.max_disambiguations must not be negative")
	}
	if cfg.Cache.Enabled && cfg.Cache.Address == "" {
		return fmt.Errorf("cache.address is required when cache.enabled is true")
	}
	return nil
}

// ValidateRelay checks the settings the relay cannot start without.
func (c *Config) ValidateRelay() error {
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return ErrAPIKeyMissing
	}
	return nil
}

// ValidateClient checks the settings the explorer client cannot start without.
func (c *Config) ValidateClient() error {
	if strings.TrimSpace(c.Client.RelayURL) == "" {
		return ErrRelayURLMissing
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
