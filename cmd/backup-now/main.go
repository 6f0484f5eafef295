// backup-now copies the sqlite store into the dated backup tree.
package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/lawliet8886/Registro-de-pacientes/internal/backup"
	"github.com/lawliet8886/Registro-de-pacientes/internal/config"
	"github.com/lawliet8886/Registro-de-pacientes/internal/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "backup-now")
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.DBDriver != "" && cfg.DBDriver != "sqlite" {
		log.Fatal("file backups only apply to the sqlite store",
			zap.String("driver", cfg.DBDriver))
	}

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		log.Fatal("load settings", zap.Error(err))
	}
	root := settings.BackupRoot
	if root == "" || !backup.WritableRoot(root) {
		root = config.DefaultBackupRoot()
		if err := os.MkdirAll(root, 0o750); err != nil {
			log.Fatal("create backup root", zap.Error(err))
		}
		settings.BackupRoot = root
		if err := config.SaveSettings(cfg.SettingsPath, settings); err != nil {
			log.Warn("persist settings", zap.Error(err))
		}
	}

	dst, err := backup.New(log).Run(cfg.DBPath, root)
	if err != nil {
		log.Fatal("backup", zap.Error(err))
	}
	log.Info("backup finished", zap.String("path", dst))
}
