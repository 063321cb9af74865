package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Redaction RedactionConfig `yaml:"redaction" mapstructure:"redaction"`
	Guard     GuardConfig     `yaml:"guard" mapstructure:"guard"`
	Rewrite   RewriteConfig   `yaml:"rewrite" mapstructure:"rewrite"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// RedactionConfig contains de-identification configuration
type RedactionConfig struct {
	// NameKeywords introduce a name ("Herr", "Patient", ...). Empty means
	// the built-in list.
	NameKeywords []string `yaml:"name_keywords" mapstructure:"name_keywords"`
}

// GuardConfig contains the guard vocabulary. VocabularyFile, when set,
// replaces the inline lists.
type GuardConfig struct {
	VocabularyFile  string          `yaml:"vocabulary_file" mapstructure:"vocabulary_file"`
	LateralTerms    []string        `yaml:"lateral_terms" mapstructure:"lateral_terms"`
	MedicalKeywords []KeywordConfig `yaml:"medical_keywords" mapstructure:"medical_keywords"`
}

// KeywordConfig is one high-risk finding with its word stems
type KeywordConfig struct {
	Name  string   `yaml:"name" mapstructure:"name"`
	Stems []string `yaml:"stems" mapstructure:"stems"`
}

// RewriteConfig contains rewrite provider configuration
type RewriteConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"` // openai, ollama, bedrock or static
	Model       string        `yaml:"model" mapstructure:"model"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Language    string        `yaml:"language" mapstructure:"language"`
	OpenAI      OpenAIConfig  `yaml:"openai" mapstructure:"openai"`
	Ollama      OllamaConfig  `yaml:"ollama" mapstructure:"ollama"`
	Bedrock     BedrockConfig `yaml:"bedrock" mapstructure:"bedrock"`
}

// OpenAIConfig covers any OpenAI-compatible chat completions endpoint
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// OllamaConfig contains local Ollama configuration
type OllamaConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// BedrockConfig contains AWS Bedrock configuration
type BedrockConfig struct {
	Region string `yaml:"region" mapstructure:"region"`
}

// PipelineConfig contains request processing limits
type PipelineConfig struct {
	MaxTextLength int `yaml:"max_text_length" mapstructure:"max_text_length"`
}

// CacheConfig contains Redis candidate cache configuration
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// AuditConfig contains audit trail configuration
type AuditConfig struct {
	Backend         string        `yaml:"backend" mapstructure:"backend"` // memory or postgres
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	MemoryCapacity  int           `yaml:"memory_capacity" mapstructure:"memory_capacity"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string      `yaml:"level" mapstructure:"level"`
	Format string      `yaml:"format" mapstructure:"format"` // json or console
	File   FileLogging `yaml:"file" mapstructure:"file"`
}

// FileLogging contains file output configuration
type FileLogging struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// RateLimitConfig contains per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// WebSocketConfig contains the live event feed configuration
type WebSocketConfig struct {
	Enabled        bool            `yaml:"enabled" mapstructure:"enabled"`
	Path           string          `yaml:"path" mapstructure:"path"`
	AllowedOrigins []string        `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Username       string          `yaml:"username" mapstructure:"username"`
	Password       string          `yaml:"password" mapstructure:"password"`
	Events         WebSocketEvents `yaml:"events" mapstructure:"events"`
}

// WebSocketEvents selects which events are broadcast
type WebSocketEvents struct {
	BroadcastDecisions   bool `yaml:"broadcast_decisions" mapstructure:"broadcast_decisions"`
	BroadcastAnomalies   bool `yaml:"broadcast_anomalies" mapstructure:"broadcast_anomalies"`
	BroadcastRequests    bool `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
	BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Rewrite: RewriteConfig{
			Provider:    "static",
			Model:       "gpt-4o-mini",
			Timeout:     60 * time.Second,
			MaxTokens:   2048,
			Temperature: 0.2,
			Language:    "de",
			OpenAI: OpenAIConfig{
				BaseURL: "https://api.openai.com/v1",
			},
			Ollama: OllamaConfig{
				URL: "http://localhost:11434",
			},
			Bedrock: BedrockConfig{
				Region: "eu-central-1",
			},
		},
		Pipeline: PipelineConfig{
			MaxTextLength: 20000,
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     24 * time.Hour,
			KeyPrefix:      "report-sentinel",
		},
		Audit: AuditConfig{
			Backend:         "memory",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			MemoryCapacity:  10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: FileLogging{
				Enabled: false,
				Path:    "logs/sentinel.log",
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             10,
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			AllowedOrigins: []string{"*"},
			Events: WebSocketEvents{
				BroadcastDecisions:   true,
				BroadcastAnomalies:   true,
				BroadcastRequests:    true,
				BroadcastConnections: true,
			},
		},
	}
}
