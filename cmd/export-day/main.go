// export-day writes one day's records into an Excel workbook.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lawliet8886/Registro-de-pacientes/internal/config"
	"github.com/lawliet8886/Registro-de-pacientes/internal/domain"
	"github.com/lawliet8886/Registro-de-pacientes/internal/importer"
	"github.com/lawliet8886/Registro-de-pacientes/internal/logger"
	"github.com/lawliet8886/Registro-de-pacientes/internal/repository"
	"github.com/lawliet8886/Registro-de-pacientes/internal/store"
)

func main() {
	date := flag.String("date", "", "day to export (dd/MM/yyyy, default today)")
	out := flag.String("out", "", "output path (default pacientes_<date>.xlsx)")
	flag.Parse()

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "export-day")
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	day := *date
	if day == "" {
		day = time.Now().Format(domain.DateLayout)
	}
	path := *out
	if path == "" {
		path = fmt.Sprintf("pacientes_%s.xlsx", strings.ReplaceAll(day, "/", "-"))
	}

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

	repo := repository.NewSQLRecordsRepo(db)
	rows, err := importer.New(repo, log).ExportDay(ctx, day, path)
	if err != nil {
		log.Fatal("export", zap.Error(err))
	}
	log.Info("export finished", zap.String("path", path), zap.Int("rows", rows))
}
