package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dloadly/backend/internal/models"
	"github.com/dloadly/backend/internal/repositories"
)

// PlatformStore reads and writes per-platform operator settings, one
// key/value row per platform.
type PlatformStore struct {
	settings     repositories.SettingsRepository
	defaultLimit int64
}

// NewPlatformStore constructs a PlatformStore. Platforms without a stored
// config default to enabled with the provided daily request limit.
func NewPlatformStore(settings repositories.SettingsRepository, defaultLimit int64) *PlatformStore {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	return &PlatformStore{settings: settings, defaultLimit: defaultLimit}
}

func platformKey(p models.Platform) string {
	return "platform_config_" + string(p)
}

// Get returns the stored config for a platform, or the default.
func (s *PlatformStore) Get(ctx context.Context, p models.Platform) (models.PlatformConfig, error) {
	raw, err := s.settings.Get(ctx, platformKey(p))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.PlatformConfig{Platform: p, Enabled: true, DailyLimit: s.defaultLimit}, nil
		}
		return models.PlatformConfig{}, fmt.Errorf("load platform config %s: %w", p, err)
	}

	var cfg models.PlatformConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return models.PlatformConfig{}, fmt.Errorf("decode platform config %s: %w", p, err)
	}
	cfg.Platform = p
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = s.defaultLimit
	}

	return cfg, nil
}

// Set persists the config for a platform.
func (s *PlatformStore) Set(ctx context.Context, cfg models.PlatformConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode platform config %s: %w", cfg.Platform, err)
	}

	if err := s.settings.Set(ctx, platformKey(cfg.Platform), string(raw)); err != nil {
		return fmt.Errorf("save platform config %s: %w", cfg.Platform, err)
	}

	return nil
}
