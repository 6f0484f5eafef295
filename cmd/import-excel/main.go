// import-excel loads a legacy workbook into the store in one transaction.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lawliet8886/Registro-de-pacientes/internal/config"
	"github.com/lawliet8886/Registro-de-pacientes/internal/importer"
	"github.com/lawliet8886/Registro-de-pacientes/internal/logger"
	"github.com/lawliet8886/Registro-de-pacientes/internal/repository"
	"github.com/lawliet8886/Registro-de-pacientes/internal/store"
)

func main() {
	file := flag.String("file", "", "workbook (.xlsx) to import")
	flag.Parse()

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "import-excel")
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if *file == "" {
		log.Fatal("missing -file")
	}

	db, dialect, err := store.Open(store.Config{
		Driver: cfg.DBDriver, Path: cfg.DBPath, DSN: cfg.DBDSN,
	})
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer store.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := store.Migrate(ctx, db, dialect); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	repo := repository.NewSQLRecordsRepo(db)
	rows, err := importer.New(repo, log).ImportWorkbook(ctx, *file)
	if err != nil {
		log.Fatal("import", zap.Error(err))
	}
	log.Info("import finished", zap.Int("rows", rows))
}
