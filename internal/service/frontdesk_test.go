package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lawliet8886/Registro-de-pacientes/internal/domain"
	"github.com/lawliet8886/Registro-de-pacientes/internal/repository"
	"github.com/lawliet8886/Registro-de-pacientes/internal/store"
)

var testNow = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

const today = "10/03/2025"

func newTestDesk(t *testing.T) (*FrontDesk, *repository.SQLRecordsRepo) {
	t.Helper()
	db, dialect, err := store.Open(store.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db, dialect))

	repo := repository.NewSQLRecordsRepo(db)
	repo.Now = func() time.Time { return testNow }
	desk := NewFrontDesk(repo, zap.NewNop())
	desk.Now = func() time.Time { return testNow }
	return desk, repo
}

func TestRegisterDerivesConvivenciaMeals(t *testing.T) {
	desk, repo := newTestDesk(t)
	ctx := context.Background()

	conflicts, err := desk.Register(ctx, RegisterInput{
		Name:     "Maria",
		Selected: []string{"C"},
		Start:    "11:00",
		End:      "15:30",
	})
	require.NoError(t, err)
	require.Empty(t, conflicts)

	rows, err := repo.Fetch(ctx, repository.FetchQuery{Date: today})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "C (11:00-15:30)", rows[0].Demands)
	require.Equal(t, "14:30", rows[0].EnterSys)

	counts, err := repo.Counts(ctx, today)
	require.NoError(t, err)
	// 12:00 and 15:00 fall inside the interval, 09:00 and 18:00 do not
	require.Equal(t, 1, counts.Lunch)
	require.Equal(t, 1, counts.Snack)
	require.Zero(t, counts.Desjejum)
	require.Zero(t, counts.Dinner)
}

func TestRegisterResolvesConflicts(t *testing.T) {
	desk, repo := newTestDesk(t)
	ctx := context.Background()

	conflicts, err := desk.Register(ctx, RegisterInput{
		Name:     "João",
		Selected: []string{"AI", "R", "M"},
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 2)

	rows, err := repo.Fetch(ctx, repository.FetchQuery{Date: today})
	require.NoError(t, err)
	require.Equal(t, "RM", rows[0].Demands)
}

func TestRegisterValidation(t *testing.T) {
	desk, _ := newTestDesk(t)
	ctx := context.Background()

	_, err := desk.Register(ctx, RegisterInput{Name: "  "})
	require.ErrorIs(t, err, repository.ErrValidation)

	_, err = desk.Register(ctx, RegisterInput{Name: "Maria", Selected: []string{"C"}, Start: "10:00"})
	require.ErrorIs(t, err, repository.ErrValidation)
}

func TestRefreshRollsOverAndAggregates(t *testing.T) {
	desk, repo := newTestDesk(t)
	ctx := context.Background()

	_, err := desk.Register(ctx, RegisterInput{
		Name: "Pendente", Date: "09/03/2025", Selected: []string{"AN Entrou"},
	})
	require.NoError(t, err)

	snap, err := desk.Refresh(ctx, today)
	require.NoError(t, err)
	require.Equal(t, 1, snap.Counts.Total)
	require.Equal(t, 1, snap.Day.Demands["AN"])
	require.Equal(t, 2, snap.AllTime.Patients) // yesterday's record plus the carried one

	rows, err := repo.Fetch(ctx, repository.FetchQuery{Date: today})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "AN", rows[0].Demands)
}

func TestComputeMetrics(t *testing.T) {
	caps := "CAPS"
	rows := []repository.MetricsRow{
		{Demands: "A, C (10:00-12:00)", Meals: domain.MealFlags{Lunch: true}},
		{Demands: "AN Entrou"},
		{Demands: "AN Saiu"},
		{Demands: "AI", Referral: &caps, Archived: true},
		{Demands: "AI", Referral: &caps},
	}

	m := ComputeMetrics(rows)

	require.Equal(t, 1, m.Demands["A"])
	require.Equal(t, 1, m.Demands["C"])
	require.Equal(t, 1, m.Demands["AN"])      // the exit marker never counts
	require.Equal(t, 2, m.Demands["AI"])      // clones count in demand buckets
	require.Equal(t, 2, m.Referrals["CAPS"])  // and in the referral histogram
	require.Equal(t, 4, m.Patients)           // but not in the patient total
	require.Equal(t, 1, m.Meals.Lunch)
	require.Zero(t, m.Demands["AN Saiu"])
}

func TestComputeMetricsCountsRecordOncePerCode(t *testing.T) {
	m := ComputeMetrics([]repository.MetricsRow{{Demands: "AN, AN Entrou"}})
	require.Equal(t, 1, m.Demands["AN"])
}
