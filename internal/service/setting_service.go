package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/model"
)

var ErrUnknownSetting = errors.New("setting cannot be overridden")

// SettingStore persists runtime overrides.
type SettingStore interface {
	GetAll(ctx context.Context) ([]model.AppSetting, error)
	UpsertMany(ctx context.Context, settings map[string]string) error
}

// secretKeys are masked whenever settings are read back.
var secretKeys = map[string]struct{}{
	"LLM_API_KEYS": {},
}

type SettingService struct {
	settingRepo SettingStore
	log         zerolog.Logger
}

func NewSettingService(settingRepo SettingStore, log zerolog.Logger) *SettingService {
	return &SettingService{
		settingRepo: settingRepo,
		log:         log.With().Str("component", "setting_service").Logger(),
	}
}

// Overrides returns the stored overrides unmasked, for layering over the
// environment at startup.
func (s *SettingService) Overrides(ctx context.Context) (config.MapProvider, error) {
	list, err := s.settingRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(config.MapProvider, len(list))
	for _, st := range list {
		if _, ok := config.OverridableKeys[st.Key]; ok {
			out[st.Key] = st.Value
		}
	}
	return out, nil
}

// GetAllSettings returns the stored overrides with secrets masked.
func (s *SettingService) GetAllSettings(ctx context.Context) (map[string]string, error) {
	overrides, err := s.Overrides(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get all settings")
		return nil, err
	}

	settingsMap := make(map[string]string, len(overrides))
	for key, value := range overrides {
		if _, secret := secretKeys[key]; secret {
			value = maskSecret(value)
		}
		settingsMap[key] = value
	}
	return settingsMap, nil
}

// UpdateSettings stores overrides in one transaction. An empty value removes
// the override. Changes apply on the next restart.
func (s *SettingService) UpdateSettings(ctx context.Context, settingsMap map[string]string) error {
	var unknown []string
	for key := range settingsMap {
		if _, ok := config.OverridableKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s", ErrUnknownSetting, strings.Join(unknown, ", "))
	}

	if err := s.settingRepo.UpsertMany(ctx, settingsMap); err != nil {
		s.log.Error().Err(err).Msg("failed to update settings")
		return err
	}

	keys := make([]string, 0, len(settingsMap))
	for key := range settingsMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	s.log.Info().Strs("keys", keys).Msg("Settings updated")
	return nil
}

// maskSecret keeps the last four characters of each comma-separated entry.
func maskSecret(v string) string {
	parts := strings.Split(v, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) <= 4 {
			parts[i] = "****"
			continue
		}
		parts[i] = "****" + p[len(p)-4:]
	}
	return strings.Join(parts, ",")
}
