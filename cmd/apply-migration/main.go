// apply-migration runs the schema migrations and exits.
package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lawliet8886/Registro-de-pacientes/internal/config"
	"github.com/lawliet8886/Registro-de-pacientes/internal/logger"
	"github.com/lawliet8886/Registro-de-pacientes/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "apply-migration")
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	db, dialect, err := store.Open(store.Config{
		Driver: cfg.DBDriver, Path: cfg.DBPath, DSN: cfg.DBDSN,
	})
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer store.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := store.Migrate(ctx, db, dialect); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	log.Info("schema up to date", zap.String("dialect", string(dialect)))
}
