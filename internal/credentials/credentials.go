// Package credentials resolves the ModelScope API key.
//
// Sources are consulted in order: a mounted secret file, the per-user config
// file, the MODELSCOPE_API_KEY environment variable and finally an interactive
// prompt. The first source that yields a key wins.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"imagegen/internal/apperrors"
	"imagegen/internal/config"
)

// EnvVar is the environment variable holding the API key.
const EnvVar = "MODELSCOPE_API_KEY"

// KeyPrefix is the prefix every ModelScope access token carries.
const KeyPrefix = "ms-"

// TokenPage is where users create an access token.
const TokenPage = "https://modelscope.cn/my/myaccesstoken"

// ErrNotFound is returned by a provider that has no key to offer.
var ErrNotFound = errors.New("api key not found")

// Provider yields an API key or ErrNotFound.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// fileConfig is the on-disk format of the per-user config file.
type fileConfig struct {
	APIKey string `json:"api_key"`
}

// Static returns a fixed key. An empty key means not found.
type Static string

// Token implements Provider.
func (s Static) Token(context.Context) (string, error) {
	if key := strings.TrimSpace(string(s)); key != "" {
		return key, nil
	}
	return "", ErrNotFound
}

// File reads the api_key field of a JSON config file.
type File struct {
	Path string
}

// Token implements Provider. A missing or unreadable file counts as not found.
func (f File) Token(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to read config file", "path", f.Path, "error", err)
		}
		return "", ErrNotFound
	}

	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("Failed to parse config file", "path", f.Path, "error", err)
		return "", ErrNotFound
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return key, nil
	}
	return "", ErrNotFound
}

// Env reads the key from MODELSCOPE_API_KEY.
type Env struct{}

// Token implements Provider.
func (Env) Token(context.Context) (string, error) {
	if key := strings.TrimSpace(config.GetEnv(EnvVar, "")); key != "" {
		return key, nil
	}
	return "", ErrNotFound
}

// Save writes key to path as {"api_key": key} readable only by the owner.
func Save(path, key string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.Marshal(fileConfig{APIKey: key})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o600); err != nil {
		slog.Warn("Failed to restrict config file permissions", "path", path, "error", err)
	}
	return nil
}

// ConfigPath returns the config file location for the given home and
// XDG_CONFIG_HOME values. A legacy ~/.modelscope directory takes precedence
// when it exists.
func ConfigPath(home, xdgConfigHome string) string {
	legacy := filepath.Join(home, ".modelscope")
	if info, err := os.Stat(legacy); err == nil && info.IsDir() {
		return filepath.Join(legacy, "config.json")
	}
	if xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "modelscope", "config.json")
	}
	return filepath.Join(home, ".config", "modelscope", "config.json")
}

// DefaultConfigPath returns ConfigPath for the current user.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return ConfigPath(home, config.GetEnv("XDG_CONFIG_HOME", ""))
}

// Chain tries providers in order and caches the first key found.
type Chain struct {
	providers  []Provider
	configPath string

	mu  sync.Mutex
	key string
}

// NewChain creates a chain over providers. configPath is only used in the
// error returned when every provider comes up empty.
func NewChain(configPath string, providers ...Provider) *Chain {
	return &Chain{providers: providers, configPath: configPath}
}

// Token returns the first key any provider yields.
func (c *Chain) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != "" {
		return c.key, nil
	}
	for _, p := range c.providers {
		key, err := p.Token(ctx)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		c.key = key
		return key, nil
	}
	return "", notFound(c.configPath)
}

func notFound(configPath string) error {
	return apperrors.Credentials(fmt.Sprintf(
		"no API key found; create %s with {\"api_key\": \"ms-...\"} or set %s", configPath, EnvVar), ErrNotFound)
}
