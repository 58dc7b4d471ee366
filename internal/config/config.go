package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is resolved once at startup
// and treated as read-only afterwards.
type Config struct {
	ServerPort  string
	GinMode     string
	LogLevel    string
	LogFormat   string
	DatabaseURL string // empty runs the daily store on the kv backend
	MaxDBConns  int32
	RedisURL    string // empty uses an in-process kv store and disables workers
	JWTSecret   string
	JWTExpiry   time.Duration
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string

	LLM   LLMConfig
	Daily DailyConfig

	HistoryLimit       int
	MinutesPerQuestion float64
	GenerateRatePerMin int
}

// LLMConfig configures question generation, result coaching and document
// parsing. AnalysisModel and VisionModel default to Model.
type LLMConfig struct {
	BaseURL       string
	APIKeys       []string
	Model         string
	AnalysisModel string
	VisionModel   string
	MinInterval   time.Duration
	BatchSize     int
	MaxRetries    int
	BackoffBase   time.Duration
	SubjectDelay  time.Duration
}

// DailyConfig configures the daily challenge schedule.
type DailyConfig struct {
	Timezone   string
	OpenHour   int
	OpenMinute int
	// AutoPublishCron generates the day's paper when none is published.
	// Empty disables the scheduler.
	AutoPublishCron string
}

// Load reads configuration from the environment with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load()
	return Resolve(EnvProvider{})
}

// Resolve builds a Config from p, falling back to defaults for missing keys.
func Resolve(p Provider) *Config {
	r := resolver{p: p}

	openHour, openMinute := parseClock(r.str("DAILY_OPEN_TIME", "08:30"))

	llmModel := r.str("LLM_MODEL", "gemini-2.5-flash")

	keys := parseList(r.str("LLM_API_KEYS", ""))
	if len(keys) == 0 {
		keys = parseList(r.str("API_KEY", ""))
	}

	return &Config{
		ServerPort:     r.str("SERVER_PORT", "8080"),
		GinMode:        r.str("GIN_MODE", "debug"),
		LogLevel:       r.str("LOG_LEVEL", "info"),
		LogFormat:      r.str("LOG_FORMAT", "pretty"),
		DatabaseURL:    r.str("DATABASE_URL", ""),
		MaxDBConns:     int32(r.integer("MAX_DB_CONNS", 16)),
		RedisURL:       r.str("REDIS_URL", ""),
		JWTSecret:      r.str("JWT_SECRET", "change-this-to-a-secure-random-string"),
		JWTExpiry:      time.Duration(r.integer("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		AllowedOrigins: parseList(r.str("ALLOWED_ORIGINS", "")),

		LLM: LLMConfig{
			BaseURL:       r.str("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
			APIKeys:       keys,
			Model:         llmModel,
			AnalysisModel: r.str("LLM_ANALYSIS_MODEL", llmModel),
			VisionModel:   r.str("LLM_VISION_MODEL", llmModel),
			MinInterval:   r.millis("LLM_MIN_INTERVAL_MS", 1000),
			BatchSize:     r.integer("LLM_BATCH_SIZE", 12),
			MaxRetries:    r.integer("LLM_MAX_RETRIES", 3),
			BackoffBase:   r.millis("LLM_BACKOFF_MS", 2000),
			SubjectDelay:  r.millis("LLM_SUBJECT_DELAY_MS", 1000),
		},
		Daily: DailyConfig{
			Timezone:        r.str("DAILY_TIMEZONE", "Asia/Kolkata"),
			OpenHour:        openHour,
			OpenMinute:      openMinute,
			AutoPublishCron: r.str("DAILY_AUTO_PUBLISH_CRON", ""),
		},

		HistoryLimit:       r.integer("HISTORY_LIMIT", 50),
		MinutesPerQuestion: r.decimal("MINUTES_PER_QUESTION", 2.4),
		GenerateRatePerMin: r.integer("GENERATE_RATE_PER_MIN", 10),
	}
}

type resolver struct {
	p Provider
}

func (r resolver) str(key, fallback string) string {
	if v, ok := r.p.Lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func (r resolver) integer(key string, fallback int) int {
	v, ok := r.p.Lookup(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func (r resolver) decimal(key string, fallback float64) float64 {
	v, ok := r.p.Lookup(key)
	if !ok || v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func (r resolver) millis(key string, fallback int) time.Duration {
	return time.Duration(r.integer(key, fallback)) * time.Millisecond
}

// parseList splits a comma-separated string into a trimmed slice.
// Returns nil if the input is empty.
func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseClock parses "HH:MM", defaulting to 08:30 on malformed input.
func parseClock(raw string) (int, int) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 8, 30
	}
	return t.Hour(), t.Minute()
}
