// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct. The relay and the
// explorer client read the same file; each validates only what it needs.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	Article ArticleConfig `mapstructure:"article"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Client  ClientConfig  `mapstructure:"client"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds the relay's HTTP listener settings.
type ServerConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	AllowedOrigins     string `mapstructure:"allowed_origins"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
	ShutdownTimeout    int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GeminiConfig holds the upstream model settings. APIKey never leaves the relay.
type GeminiConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	APIKey              string `mapstructure:"api_key"`
	Model               string `mapstructure:"model"`
	DisambiguateTimeout int    `mapstructure:"disambiguate_timeout"` // milliseconds
	MaxDisambiguations  int    `mapstructure:"max_disambiguations"`
	ThinkingBudget      int    `mapstructure:"thinking_budget"`
	DisableSearchTool   bool   `mapstructure:"disable_search_tool"`
}

// ArticleConfig controls generated content.
type ArticleConfig struct {
	Language           string `mapstructure:"language"`
	UnknownSourceTitle string `mapstructure:"unknown_source_title"`
}

// CacheConfig holds the disambiguation cache settings.
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl"` // seconds
	Prefix   string `mapstructure:"prefix"`
}

// ClientConfig holds settings for the explorer's relay client.
type ClientConfig struct {
	RelayURL            string `mapstructure:"relay_url"`
	DisambiguateTimeout int    `mapstructure:"disambiguate_timeout"` // milliseconds
	Width               int    `mapstructure:"width"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig enables span export. An empty JaegerEndpoint keeps spans in-process.
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}
