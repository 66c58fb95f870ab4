// Package config provides configuration management for octatrack-manager.
//
// This package handles:
//   - Loading and saving settings from JSON files
//   - Default configuration values
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	settings.CacheQuotaBytes = 128 << 20
//	settings.Save(configPath)
//
// Load falls back to defaults when the file does not exist, so first runs
// need no setup:
//
//	settings, err := config.Load(configPath)
package config
