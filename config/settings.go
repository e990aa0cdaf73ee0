// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/richinex/delphi/llm"
)

// Settings holds every runtime knob. Values come from the environment with
// sensible defaults; only the provider API key is strictly required.
type Settings struct {
	// Generation service
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float32

	// Run loop
	MaxIterations int

	// Artifact store
	ArtifactDir    string
	ArtifactMaxAge time.Duration

	// Fetch
	FetchTimeout time.Duration

	// HTTP server
	ListenAddr     string
	MaxUploadBytes int64

	// Logging
	LogLevel slog.Level
}

// Load reads settings from the environment.
func Load() Settings {
	return Settings{
		Provider:       getEnv("LLM_PROVIDER", "openai"),
		Model:          getEnv("LLM_MODEL", ""),
		MaxTokens:      uint32(getEnvInt("LLM_MAX_TOKENS", 4096)),
		Temperature:    getEnvFloat("LLM_TEMPERATURE", 0.2),
		MaxIterations:  getEnvInt("DELPHI_MAX_ITERATIONS", 10),
		ArtifactDir:    getEnv("DELPHI_ARTIFACT_DIR", "./artifacts"),
		ArtifactMaxAge: getEnvDuration("DELPHI_ARTIFACT_MAX_AGE", 24*time.Hour),
		FetchTimeout:   getEnvDuration("DELPHI_FETCH_TIMEOUT", 30*time.Second),
		ListenAddr:     getEnv("DELPHI_LISTEN_ADDR", ":8080"),
		MaxUploadBytes: int64(getEnvInt("DELPHI_MAX_UPLOAD_BYTES", 16<<20)),
		LogLevel:       parseLogLevel(getEnv("DELPHI_LOG_LEVEL", "info")),
	}
}

// BuildProvider constructs the configured generation-service provider.
func (s Settings) BuildProvider() (llm.Provider, error) {
	pt, err := llm.ParseProviderType(s.Provider)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	builder := llm.NewProviderBuilder(pt).
		MaxTokens(s.MaxTokens).
		Temperature(s.Temperature)
	if s.Model != "" {
		builder = builder.Model(s.Model)
	}
	return builder.FromEnv()
}

// NewLogger builds the process logger at the configured level.
func (s Settings) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: s.LogLevel}))
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
