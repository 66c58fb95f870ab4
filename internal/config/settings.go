package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds all configuration options.
type Settings struct {
	// Parser settings
	OctatoolPath    string `json:"octatool_path"`
	OctatoolTimeout string `json:"octatool_timeout"` // per-call, Go duration string

	// Cache settings
	CachePath       string `json:"cache_path"`
	CacheEnabled    bool   `json:"cache_enabled"`
	CacheQuotaBytes int64  `json:"cache_quota_bytes"`
	CacheKeepRecent int    `json:"cache_keep_recent"`

	// Loader settings
	MinBatchSize int `json:"min_batch_size"`
	MaxBatchSize int `json:"max_batch_size"`

	// UI settings
	WarningAutoHideSeconds int  `json:"warning_auto_hide_seconds"`
	Verbose                bool `json:"verbose"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	return &Settings{
		OctatoolPath:    "octatool",
		OctatoolTimeout: "30s",

		CachePath:       filepath.Join(homeDir, ".config", "octatrack-manager", "cache.db"),
		CacheEnabled:    true,
		CacheQuotaBytes: 64 << 20, // 64 MiB of cached payload
		CacheKeepRecent: 5,

		MinBatchSize: 2,
		MaxBatchSize: 4,

		WarningAutoHideSeconds: 8,
		Verbose:                false,
	}
}

// Load reads settings from a JSON file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// Save writes settings to a JSON file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
