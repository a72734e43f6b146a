// Package config provides configuration loading from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds configuration shared by the imagegen and mermaid2png binaries.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // text or json

	ModelScope ModelScopeConfig
	Poll       PollConfig     `envPrefix:"POLL_"`
	Callback   CallbackConfig `envPrefix:"CALLBACK_"`
	Storage    StorageConfig  `envPrefix:"S3_"`
	Render     RenderConfig

	OutputPath  string `env:"OUTPUT_PATH"  envDefault:"result_image.jpg"`
	MetricsFile string `env:"METRICS_FILE"` // Prometheus textfile written after each run (optional)
}

// ModelScopeConfig configures the remote inference API.
type ModelScopeConfig struct {
	BaseURL     string        `env:"MODELSCOPE_BASE_URL"     envDefault:"https://api-inference.modelscope.cn/"`
	Model       string        `env:"MODELSCOPE_MODEL"        envDefault:"Tongyi-MAI/Z-Image-Turbo"`
	APIKeyFile  string        `env:"MODELSCOPE_API_KEY_FILE"` // Docker/K8s secret mount
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT"            envDefault:"30s"`
}

// PollConfig bounds the status polling loop.
type PollConfig struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"60"`
	Interval    time.Duration `env:"INTERVAL"     envDefault:"5s"`
	MaxWait     time.Duration `env:"MAX_WAIT"     envDefault:"0s"` // 0 disables the wall-clock cap
}

// CallbackConfig configures the optional completion event.
type CallbackConfig struct {
	URL     string        `env:"URL"`
	Key     string        `env:"KEY"` // HMAC signing key
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// StorageConfig configures object storage for s3:// output destinations.
type StorageConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Region    string `env:"REGION"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
}

// RenderConfig configures the diagram renderer.
type RenderConfig struct {
	Image       string        `env:"MERMAID_IMAGE"       envDefault:"minlag/mermaid-cli:latest"`
	Timeout     time.Duration `env:"RENDER_TIMEOUT"      envDefault:"60s"`
	PullTimeout time.Duration `env:"RENDER_PULL_TIMEOUT" envDefault:"10m"`
	StylesFile  string        `env:"STYLES_FILE"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.sanitize()
	return &cfg, nil
}

// sanitize restores defaults for values that would disable polling.
func (c *Config) sanitize() {
	if c.Poll.MaxAttempts <= 0 {
		c.Poll.MaxAttempts = 60
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = 5 * time.Second
	}
	if c.Poll.MaxWait < 0 {
		c.Poll.MaxWait = 0
	}
	if c.ModelScope.HTTPTimeout <= 0 {
		c.ModelScope.HTTPTimeout = 30 * time.Second
	}
}

// APIKeyFromFile returns the API key mounted at MODELSCOPE_API_KEY_FILE, if any.
func (c *Config) APIKeyFromFile() string {
	return GetSecretFile(c.ModelScope.APIKeyFile)
}
