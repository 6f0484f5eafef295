// registro-pacientes boots the store, repairs legacy data, rolls open-ended
// records onto today and logs the dashboard snapshot.
package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lawliet8886/Registro-de-pacientes/internal/config"
	"github.com/lawliet8886/Registro-de-pacientes/internal/domain"
	"github.com/lawliet8886/Registro-de-pacientes/internal/logger"
	"github.com/lawliet8886/Registro-de-pacientes/internal/repository"
	"github.com/lawliet8886/Registro-de-pacientes/internal/service"
	"github.com/lawliet8886/Registro-de-pacientes/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "registro-pacientes")
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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := store.Migrate(ctx, db, dialect); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	repo := repository.NewSQLRecordsRepo(db)
	desk := service.NewFrontDesk(repo, log)

	if err := desk.Repair(ctx); err != nil {
		log.Fatal("repair legacy imports", zap.Error(err))
	}

	today := time.Now().Format(domain.DateLayout)
	snap, err := desk.Refresh(ctx, today)
	if err != nil {
		log.Fatal("refresh", zap.Error(err))
	}

	log.Info("dashboard",
		zap.String("date", snap.Date),
		zap.Int("patients", snap.Counts.Total),
		zap.Int("desjejum", snap.Counts.Desjejum),
		zap.Int("lunch", snap.Counts.Lunch),
		zap.Int("snack", snap.Counts.Snack),
		zap.Int("dinner", snap.Counts.Dinner),
		zap.Int("referrals", snap.Counts.Referrals),
		zap.Any("day_demands", snap.Day.Demands),
		zap.Any("all_time_demands", snap.AllTime.Demands))
}
