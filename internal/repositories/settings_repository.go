package repositories

import "context"

// SettingsRepository stores operator settings as one key/value row per
// setting, mirroring the one-document-per-key shape of the original store.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
