package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Whisper   WhisperConfig
	Chat      ChatConfig
	Pipeline  PipelineConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	BodyLimitMB     int
	LogBufferSize   int
	ShutdownTimeout time.Duration
}

type StorageConfig struct {
	Dir            string
	SweepOnStartup bool
}

type WhisperConfig struct {
	Path  string
	Model string
}

type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds
}

type PipelineConfig struct {
	Timeout              time.Duration
	ToolConcurrency      int
	TranslateConcurrency int
}

type RateLimitConfig struct {
	UploadPerMin int
	Burst        int
}

func Load() (*Config, error) {
	readSecret("CHAT_API_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = v.BindEnv("server.log_buffer_size", "LOG_BUFFER_SIZE")
	_ = v.BindEnv("server.shutdown_timeout", "SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("storage.dir", "STORAGE_DIR")
	_ = v.BindEnv("storage.sweep_on_startup", "STORAGE_SWEEP_ON_STARTUP")
	_ = v.BindEnv("whisper.path", "WHISPER_PATH")
	_ = v.BindEnv("whisper.model", "WHISPER_MODEL")
	_ = v.BindEnv("chat.api_key", "CHAT_API_KEY")
	_ = v.BindEnv("chat.base_url", "CHAT_BASE_URL")
	_ = v.BindEnv("chat.model", "CHAT_MODEL")
	_ = v.BindEnv("chat.timeout", "CHAT_TIMEOUT")
	_ = v.BindEnv("pipeline.timeout", "PIPELINE_TIMEOUT")
	_ = v.BindEnv("pipeline.tool_concurrency", "PIPELINE_TOOL_CONCURRENCY")
	_ = v.BindEnv("pipeline.translate_concurrency", "PIPELINE_TRANSLATE_CONCURRENCY")
	_ = v.BindEnv("ratelimit.upload_per_min", "RATELIMIT_UPLOAD_PER_MIN")
	_ = v.BindEnv("ratelimit.burst", "RATELIMIT_BURST")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.body_limit_mb", 2048)
	v.SetDefault("server.log_buffer_size", 500)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("storage.dir", "uploaded_media")
	v.SetDefault("storage.sweep_on_startup", true)

	// faster-whisper defaults
	v.SetDefault("whisper.path", "faster-whisper-xxl")
	v.SetDefault("whisper.model", "medium")

	// Ollama exposes an OpenAI-compatible endpoint under /v1
	v.SetDefault("chat.base_url", "http://localhost:11434/v1")
	v.SetDefault("chat.model", "llama3.1:8b")
	v.SetDefault("chat.timeout", 120)

	v.SetDefault("pipeline.timeout", "2h")
	v.SetDefault("pipeline.tool_concurrency", 1)
	v.SetDefault("pipeline.translate_concurrency", 1)
	v.SetDefault("ratelimit.upload_per_min", 30)
	v.SetDefault("ratelimit.burst", 10)

	// Try to read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			Env:             v.GetString("server.env"),
			LogLevel:        v.GetString("server.log_level"),
			BodyLimitMB:     v.GetInt("server.body_limit_mb"),
			LogBufferSize:   v.GetInt("server.log_buffer_size"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Storage: StorageConfig{
			Dir:            v.GetString("storage.dir"),
			SweepOnStartup: v.GetBool("storage.sweep_on_startup"),
		},
		Whisper: WhisperConfig{
			Path:  v.GetString("whisper.path"),
			Model: v.GetString("whisper.model"),
		},
		Chat: ChatConfig{
			APIKey:  v.GetString("chat.api_key"),
			BaseURL: v.GetString("chat.base_url"),
			Model:   v.GetString("chat.model"),
			Timeout: v.GetInt("chat.timeout"),
		},
		Pipeline: PipelineConfig{
			Timeout:              v.GetDuration("pipeline.timeout"),
			ToolConcurrency:      v.GetInt("pipeline.tool_concurrency"),
			TranslateConcurrency: v.GetInt("pipeline.translate_concurrency"),
		},
		RateLimit: RateLimitConfig{
			UploadPerMin: v.GetInt("ratelimit.upload_per_min"),
			Burst:        v.GetInt("ratelimit.burst"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Dir) == "" {
		return fmt.Errorf("storage.dir is required")
	}
	if strings.TrimSpace(c.Whisper.Path) == "" {
		return fmt.Errorf("whisper.path is required")
	}
	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("pipeline.timeout must be positive, got %s", c.Pipeline.Timeout)
	}
	if c.Pipeline.ToolConcurrency < 1 {
		return fmt.Errorf("pipeline.tool_concurrency must be at least 1, got %d", c.Pipeline.ToolConcurrency)
	}
	if c.Pipeline.TranslateConcurrency < 1 {
		return fmt.Errorf("pipeline.translate_concurrency must be at least 1, got %d", c.Pipeline.TranslateConcurrency)
	}
	return nil
}
