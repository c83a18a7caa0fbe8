package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultServerURL is used when neither the config file nor the environment
// names a server.
const DefaultServerURL = "http://localhost:8000"

// ClientConfig holds the CLI configuration.
type ClientConfig struct {
	ServerURL        string `yaml:"server_url"`
	Token            string `yaml:"token"`
	ReconnectDelayMS int    `yaml:"reconnect_delay_ms"`
}

// ReconnectDelay returns the configured reconnection delay.
func (c ClientConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

func clientDefaults() ClientConfig {
	return ClientConfig{
		ServerURL:        DefaultServerURL,
		ReconnectDelayMS: 3000,
	}
}

// ClientPath returns the default path of the CLI config file.
func ClientPath() string {
	if dir := os.Getenv("AUTOQA_HOME"); dir != "" {
		return filepath.Join(dir, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".autoqa", "config.yaml")
	}
	return filepath.Join(home, ".autoqa", "config.yaml")
}

// LoadClient reads the CLI configuration from path, then applies AUTOQA_URL
// and AUTOQA_TOKEN. A missing file is not an error; defaults are returned.
func LoadClient(path string) (ClientConfig, error) {
	cfg := clientDefaults()
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		var fileCfg ClientConfig
		if err := yaml.Unmarshal(b, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		if fileCfg.ServerURL != "" {
			cfg.ServerURL = fileCfg.ServerURL
		}
		if fileCfg.Token != "" {
			cfg.Token = fileCfg.Token
		}
		if fileCfg.ReconnectDelayMS > 0 {
			cfg.ReconnectDelayMS = fileCfg.ReconnectDelayMS
		}
	}

	cfg.ServerURL = getEnv("AUTOQA_URL", cfg.ServerURL)
	cfg.Token = getEnv("AUTOQA_TOKEN", cfg.Token)
	return cfg, nil
}
