package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.Equal(t, "patients.db", cfg.DBPath)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REGISTRO_DB_DRIVER", "postgres")
	t.Setenv("REGISTRO_DB_DSN", "postgres://localhost/registro")

	cfg := Load()
	require.Equal(t, "postgres", cfg.DBDriver)
	require.Equal(t, "postgres://localhost/registro", cfg.DBDSN)
}

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	// missing file is not an error
	s, err := LoadSettings(path)
	require.NoError(t, err)
	require.Empty(t, s.BackupRoot)

	s.BackupRoot = "/mnt/backups"
	require.NoError(t, SaveSettings(path, s))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	require.Equal(t, "/mnt/backups", loaded.BackupRoot)
}

func TestLoadSettingsRejectsGarbage(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err := LoadSettings(bad)
	require.Error(t, err)
}
