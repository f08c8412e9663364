// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// HTTP admin/event surface.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Event webhook throttle, per source address.
	EventRate  float64 // Sustained events per second; <= 0 disables the limiter.
	EventBurst int

	// OneBot backend settings.
	OneBotURL     string // Base URL of the NapCat HTTP API.
	OneBotToken   string // Access token sent as a Bearer header; empty = no auth.
	CallTimeout   time.Duration
	PushRetries   int           // Attempts per push before giving up.
	PushBaseDelay time.Duration // First retry delay; doubles per attempt.
	PushMaxDelay  time.Duration // Backoff cap.
	SettleDelay   time.Duration // Wait before a reconciliation read.
	UserCacheTTL  time.Duration // TTL for cached user presence reads.

	// Schedule settings.
	DataDir      string // Directory for per-date schedule files and history.db.
	PresetsPath  string // JSON preset tables; empty = built-in fallbacks only.
	WakePreset   string // Preset applied on an interaction event.
	SleepPresets []string
	Persona      string // Persona text injected into the generation prompt.

	// Layer lifetimes.
	InteractionTTL time.Duration
	OverrideTTL    time.Duration

	// Schedule generator (OpenAI-compatible chat completions).
	LLMBaseURL string // Empty disables generation; gap fallback covers everything.
	LLMAPIKey  string
	LLMModel   string

	// Admin auth.
	AdminTokenHash string // Argon2id hash of the admin bearer token; empty = open.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:           envInt("KEHAI_PORT", 8420),
		ReadTimeout:    envDuration("KEHAI_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   envDuration("KEHAI_WRITE_TIMEOUT", 30*time.Second),
		EventRate:      envFloat("KEHAI_EVENT_RATE", 5),
		EventBurst:     envInt("KEHAI_EVENT_BURST", 20),
		OneBotURL:      envStr("KEHAI_ONEBOT_URL", "http://localhost:3000"),
		OneBotToken:    envStr("KEHAI_ONEBOT_TOKEN", ""),
		CallTimeout:    envDuration("KEHAI_ONEBOT_TIMEOUT", 5*time.Second),
		PushRetries:    envInt("KEHAI_PUSH_RETRIES", 3),
		PushBaseDelay:  envDuration("KEHAI_PUSH_BASE_DELAY", 2*time.Second),
		PushMaxDelay:   envDuration("KEHAI_PUSH_MAX_DELAY", 10*time.Second),
		SettleDelay:    envDuration("KEHAI_SETTLE_DELAY", time.Second),
		UserCacheTTL:   envDuration("KEHAI_USER_CACHE_TTL", 3*time.Minute),
		DataDir:        envStr("KEHAI_DATA_DIR", "data"),
		PresetsPath:    envStr("KEHAI_PRESETS", ""),
		WakePreset:     envStr("KEHAI_WAKE_PRESET", ""),
		SleepPresets:   envList("KEHAI_SLEEP_PRESETS", []string{"睡觉中", "睡觉", "Sleep", "休息"}),
		Persona:        envStr("KEHAI_PERSONA", ""),
		InteractionTTL: envDuration("KEHAI_INTERACTION_TTL", time.Minute),
		OverrideTTL:    envDuration("KEHAI_OVERRIDE_TTL", 45*time.Minute),
		LLMBaseURL:     envStr("KEHAI_LLM_BASE_URL", ""),
		LLMAPIKey:      envStr("KEHAI_LLM_API_KEY", ""),
		LLMModel:       envStr("KEHAI_LLM_MODEL", "gpt-4o-mini"),
		AdminTokenHash: envStr("KEHAI_ADMIN_TOKEN_HASH", ""),
		OTELEndpoint:   envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:   envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:    envStr("OTEL_SERVICE_NAME", "kehai"),
		LogLevel:       envStr("KEHAI_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and sane.
func (c Config) Validate() error {
	if c.OneBotURL == "" {
		return fmt.Errorf("config: KEHAI_ONEBOT_URL is required")
	}
	if c.PushRetries < 1 {
		return fmt.Errorf("config: KEHAI_PUSH_RETRIES must be at least 1")
	}
	if c.PushBaseDelay <= 0 || c.PushMaxDelay < c.PushBaseDelay {
		return fmt.Errorf("config: push backoff delays must be positive and KEHAI_PUSH_MAX_DELAY >= KEHAI_PUSH_BASE_DELAY")
	}
	if c.InteractionTTL <= 0 || c.OverrideTTL <= 0 {
		return fmt.Errorf("config: layer TTLs must be positive")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: KEHAI_DATA_DIR is required")
	}
	return nil
}

// HistoryPath is the SQLite push-history database location.
func (c Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
