package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds application settings (in-memory representation).
// Values come from Default(), an optional YAML file, then environment
// variables, in that order of precedence.
type Config struct {
	// Databases
	MongoDBURL    string `yaml:"mongodb_url" json:"mongodb_url"`
	MongoDBName   string `yaml:"mongodb_db_name" json:"mongodb_db_name"`
	RedisURL      string `yaml:"redis_url" json:"redis_url"`

	// LLM (OpenAI-compatible chat endpoint)
	NIMBaseURL string `yaml:"nim_base_url" json:"nim_base_url"`
	NIMAPIKey  string `yaml:"nim_api_key" json:"nim_api_key"`
	NIMModel   string `yaml:"nim_model" json:"nim_model"`

	// Negotiation defaults
	DefaultBeta              float64 `yaml:"default_beta" json:"default_beta"`
	DefaultAlpha             float64 `yaml:"default_alpha" json:"default_alpha"`
	DefaultMaxRounds         int     `yaml:"default_max_rounds" json:"default_max_rounds"`
	DefaultSessionTTLSeconds int     `yaml:"default_session_ttl_seconds" json:"default_session_ttl_seconds"`

	// Security
	MinResponseDelayMS        int      `yaml:"min_response_delay_ms" json:"min_response_delay_ms"`
	CORSAllowedOrigins        []string `yaml:"cors_allowed_origins" json:"cors_allowed_origins"`
	APIAdminKey               string   `yaml:"api_admin_key" json:"api_admin_key"`
	MaxRequestsPerMinutePerIP int      `yaml:"max_requests_per_minute_per_ip" json:"max_requests_per_minute_per_ip"`
	MaxRequestBodyBytes       int64    `yaml:"max_request_body_bytes" json:"max_request_body_bytes"`

	// Environment
	Env      string `yaml:"env" json:"env"` // development | staging | production
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		MongoDBURL:                "mongodb://localhost:27017",
		MongoDBName:               "bargain",
		RedisURL:                  "redis://localhost:6379/0",
		NIMBaseURL:                "https://integrate.api.nvidia.com/v1",
		NIMModel:                  "meta/llama-3.1-8b-instruct",
		DefaultBeta:               5.0,
		DefaultAlpha:              0.6,
		DefaultMaxRounds:          15,
		DefaultSessionTTLSeconds:  300,
		MinResponseDelayMS:        2000,
		CORSAllowedOrigins:        []string{"http://localhost:3000"},
		MaxRequestsPerMinutePerIP: 30,
		MaxRequestBodyBytes:       65536,
		Env:                       "development",
		LogLevel:                  "info",
	}
}

// Load builds a Config from defaults, an optional YAML file, and environment
// variables. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from environment variables. Variable names match
// the YAML keys upper-cased, e.g. MONGODB_URL, DEFAULT_BETA.
func (c *Config) applyEnv() {
	setString(&c.MongoDBURL, "MONGODB_URL")
	setString(&c.MongoDBName, "MONGODB_DB_NAME")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.NIMBaseURL, "NIM_BASE_URL")
	setString(&c.NIMAPIKey, "NIM_API_KEY")
	setString(&c.NIMModel, "NIM_MODEL")
	setFloat(&c.DefaultBeta, "DEFAULT_BETA")
	setFloat(&c.DefaultAlpha, "DEFAULT_ALPHA")
	setInt(&c.DefaultMaxRounds, "DEFAULT_MAX_ROUNDS")
	setInt(&c.DefaultSessionTTLSeconds, "DEFAULT_SESSION_TTL_SECONDS")
	setInt(&c.MinResponseDelayMS, "MIN_RESPONSE_DELAY_MS")
	setString(&c.APIAdminKey, "API_ADMIN_KEY")
	setInt(&c.MaxRequestsPerMinutePerIP, "MAX_REQUESTS_PER_MINUTE_PER_IP")
	setInt64(&c.MaxRequestBodyBytes, "MAX_REQUEST_BODY_BYTES")
	setString(&c.Env, "ENV")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		c.CORSAllowedOrigins = origins
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.DefaultBeta <= 0 {
		return fmt.Errorf("default_beta must be positive, got %v", c.DefaultBeta)
	}
	if c.DefaultAlpha <= 0 || c.DefaultAlpha > 1 {
		return fmt.Errorf("default_alpha must be in (0, 1], got %v", c.DefaultAlpha)
	}
	if c.DefaultMaxRounds <= 0 {
		return fmt.Errorf("default_max_rounds must be positive, got %d", c.DefaultMaxRounds)
	}
	if c.DefaultSessionTTLSeconds <= 0 {
		return fmt.Errorf("default_session_ttl_seconds must be positive, got %d", c.DefaultSessionTTLSeconds)
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("max_request_body_bytes must be positive, got %d", c.MaxRequestBodyBytes)
	}
	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("env must be development, staging or production, got %q", c.Env)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
