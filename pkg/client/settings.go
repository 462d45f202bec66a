package client

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/rq/pkg/model"
)

// SettingsStorage reads and writes the whole settings record.
type SettingsStorage interface {
	Load() model.Settings
	Save(s model.Settings) error
}

// SettingsStore persists settings as YAML.
type SettingsStore struct {
	path string
}

// NewSettingsStore returns a store backed by path. An empty path means
// DefaultSettingsPath.
func NewSettingsStore(path string) *SettingsStore {
	if path == "" {
		path = DefaultSettingsPath()
	}
	return &SettingsStore{path: path}
}

// DefaultSettingsPath is rq/settings.yaml under the user config dir, or next
// to the binary when there is none.
func DefaultSettingsPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "rq", "settings.yaml")
	}
	exe, err := os.Executable()
	if err != nil {
		return "settings.yaml"
	}
	return filepath.Join(filepath.Dir(exe), "settings.yaml")
}

// DefaultSettings returns default settings.
func DefaultSettings() model.Settings {
	return model.Settings{Theme: model.ThemeWin98}
}

func (s *SettingsStore) Path() string {
	return s.path
}

// Load loads settings from YAML or returns defaults.
func (s *SettingsStore) Load() model.Settings {
	settings := DefaultSettings()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("read settings", "path", s.path, "err", err)
		}
		return settings
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		slog.Error("parse settings", "path", s.path, "err", err)
		return DefaultSettings()
	}
	return settings
}

// Save writes settings to YAML, replacing the previous record.
func (s *SettingsStore) Save(settings model.Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("client: marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("client: settings dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("client: write settings: %w", err)
	}
	return nil
}
