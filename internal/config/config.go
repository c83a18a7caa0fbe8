// Package config provides configuration for the autoqa server and CLI.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort    int
	DatabaseURL string

	// Auth settings
	AuthTokens map[string]string // bearer token -> user id; empty disables auth
	Admins     []string          // users allowed to read every run

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Probe executor
	ProbeTimeout time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:       getEnvInt("HTTP_PORT", 8000),
		DatabaseURL:    getEnv("DATABASE_URL", "autoqa.db"),
		AuthTokens:     parseTokens(getEnv("AUTH_TOKENS", "")),
		Admins:         splitList(getEnv("ADMINS", "")),
		PingInterval:   time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:   time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:    time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize: int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		ProbeTimeout:   time.Duration(getEnvInt("PROBE_TIMEOUT_MS", 15000)) * time.Millisecond,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// parseTokens reads "token:user,token:user". Entries without a user are skipped.
func parseTokens(s string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range splitList(s) {
		token, user, ok := strings.Cut(pair, ":")
		token, user = strings.TrimSpace(token), strings.TrimSpace(user)
		if !ok || token == "" || user == "" {
			continue
		}
		tokens[token] = user
	}
	return tokens
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
