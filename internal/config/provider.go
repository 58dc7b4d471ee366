package config

import "os"

// Provider is a source of raw configuration values.
type Provider interface {
	Lookup(key string) (string, bool)
}

// EnvProvider reads the process environment.
type EnvProvider struct{}

func (EnvProvider) Lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// MapProvider serves values from a map, typically the persisted
// app_settings overrides.
type MapProvider map[string]string

func (m MapProvider) Lookup(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Layered consults each provider in order and returns the first hit.
type Layered []Provider

func (l Layered) Lookup(key string) (string, bool) {
	for _, p := range l {
		if p == nil {
			continue
		}
		if v, ok := p.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// OverridableKeys lists the settings an admin may override at runtime.
// Overrides take effect on the next restart.
var OverridableKeys = map[string]struct{}{
	"LLM_API_KEYS":            {},
	"LLM_MODEL":               {},
	"LLM_ANALYSIS_MODEL":      {},
	"LLM_VISION_MODEL":        {},
	"LLM_BASE_URL":            {},
	"LLM_MIN_INTERVAL_MS":     {},
	"LLM_BATCH_SIZE":          {},
	"LLM_MAX_RETRIES":         {},
	"LLM_BACKOFF_MS":          {},
	"LLM_SUBJECT_DELAY_MS":    {},
	"HISTORY_LIMIT":           {},
	"DAILY_TIMEZONE":          {},
	"DAILY_OPEN_TIME":         {},
	"DAILY_AUTO_PUBLISH_CRON": {},
	"MINUTES_PER_QUESTION":    {},
	"GENERATE_RATE_PER_MIN":   {},
}
