// Package config loads the service configuration from the environment and
// the user's settings file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	// Store selection.
	DBDriver string // "sqlite" (default) or "postgres"
	DBPath   string // sqlite file path
	DBDSN    string // postgres connection string

	// Logging.
	LogLevel  string
	LogFormat string // "json" or "console"

	// SettingsPath points at the persisted user settings (settings.json).
	SettingsPath string
}

// Load reads configuration from a .env file (when present) and the
// environment. Environment values always win over .env.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBDriver:     getEnv("REGISTRO_DB_DRIVER", "sqlite"),
		DBPath:       getEnv("REGISTRO_DB_PATH", "patients.db"),
		DBDSN:        getEnv("REGISTRO_DB_DSN", ""),
		LogLevel:     getEnv("REGISTRO_LOG_LEVEL", "info"),
		LogFormat:    getEnv("REGISTRO_LOG_FORMAT", "console"),
		SettingsPath: getEnv("REGISTRO_SETTINGS_PATH", "settings.json"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Settings are the user preferences persisted between sessions.
type Settings struct {
	// BackupRoot is the directory the backup tree is written under.
	BackupRoot string `json:"backup_root"`
}

// LoadSettings reads the settings file. A missing file yields empty
// settings, not an error.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

// SaveSettings writes the settings file atomically via a sibling temp file.
func SaveSettings(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// DefaultBackupRoot is where backups land when the user never picked a
// directory.
func DefaultBackupRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "backups"
	}
	return filepath.Join(home, "registro-backups")
}
