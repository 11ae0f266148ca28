package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the realtime bridge service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"5050"`

	// Public host name Twilio should dial back (e.g. xxx.ngrok-free.dev).
	// If unset, the Host header of the incoming-call webhook is used.
	PublicHost string `envconfig:"PUBLIC_HOST" default:""`

	// OpenAI Realtime API configuration
	OpenAIAPIKey        string  `envconfig:"OPENAI_API_KEY"`
	RealtimeURL         string  `envconfig:"REALTIME_URL" default:"wss://api.openai.com/v1/realtime"`
	RealtimeModel       string  `envconfig:"REALTIME_MODEL" default:"gpt-4o-realtime-preview-2024-10-01"`
	RealtimeVoice       string  `envconfig:"REALTIME_VOICE" default:"alloy"`
	RealtimeTemperature float64 `envconfig:"REALTIME_TEMPERATURE" default:"0.8"`
	RealtimeAudioFormat string  `envconfig:"REALTIME_AUDIO_FORMAT" default:"g711_ulaw"`
	RealtimeDialTimeout int     `envconfig:"REALTIME_DIAL_TIMEOUT" default:"10"` // seconds

	// Conversation behaviour
	AISpeaksFirst     bool   `envconfig:"AI_SPEAKS_FIRST" default:"true"`
	InstructionsFile  string `envconfig:"INSTRUCTIONS_FILE" default:""`   // overrides the built-in system prompt
	KnowledgeBaseFile string `envconfig:"KNOWLEDGE_BASE_FILE" default:""` // overrides the built-in knowledge base

	// Engine event types logged verbatim for diagnostics
	LogEventTypes  []string `envconfig:"LOG_EVENT_TYPES" default:"error,response.content.done,rate_limits.updated,response.done,input_audio_buffer.committed,input_audio_buffer.speech_stopped,input_audio_buffer.speech_started,session.created"`
	ShowTimingMath bool     `envconfig:"SHOW_TIMING_MATH" default:"false"`

	// Upper bound on unacknowledged mark tokens per call
	MaxPendingMarks int `envconfig:"MAX_PENDING_MARKS" default:"1000"`

	// Resilience configuration (engine dial)
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum dial attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.MaxPendingMarks <= 0 {
		return fmt.Errorf("MAX_PENDING_MARKS must be positive, got %d", c.MaxPendingMarks)
	}
	if c.RealtimeTemperature < 0 || c.RealtimeTemperature > 2 {
		return fmt.Errorf("REALTIME_TEMPERATURE must be within [0, 2], got %v", c.RealtimeTemperature)
	}
	return nil
}

// DialTimeout returns the engine dial timeout as a duration
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.RealtimeDialTimeout) * time.Second
}
