package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lawliet8886/Registro-de-pacientes/internal/domain"
	"github.com/lawliet8886/Registro-de-pacientes/internal/store"
)

// 10/03/2025 14:30, the clock every repository test runs on.
var testNow = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

const (
	today     = "10/03/2025"
	yesterday = "09/03/2025"
)

func newTestRepo(t *testing.T) *SQLRecordsRepo {
	t.Helper()
	db, dialect, err := store.Open(store.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db, dialect))

	repo := NewSQLRecordsRepo(db)
	repo.Now = func() time.Time { return testNow }
	return repo
}

func recordFields(name, date, demands string) map[string]any {
	return map[string]any{
		"patient_name":   name,
		"demands":        demands,
		"reference_prof": "Ana",
		"date":           date,
		"enter_sys":      "08:00",
		"enter_inf":      "08:00",
		"left_sys":       nil,
		"left_inf":       nil,
		"observations":   "",
		"encaminhamento": nil,
		"desjejum":       0,
		"lunch":          0,
		"snack":          0,
		"dinner":         0,
		"start_time":     nil,
		"end_time":       nil,
		"archived_ai":    0,
	}
}

func mustCreate(t *testing.T, r *SQLRecordsRepo, fields map[string]any) int64 {
	t.Helper()
	require.NoError(t, r.Create(context.Background(), fields))
	var id int64
	require.NoError(t, r.db.QueryRow(`SELECT MAX(id) FROM records`).Scan(&id))
	return id
}

func TestCreateRejectsIncompleteFieldSet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	fields := recordFields("Maria", today, "A")
	delete(fields, "lunch")
	err := repo.Create(ctx, fields)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "missing lunch")

	fields = recordFields("Maria", today, "A")
	fields["bogus"] = 1
	err = repo.Create(ctx, fields)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "extra bogus")
}

func TestUpdateMealsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := mustCreate(t, repo, recordFields("Maria", today, "A"))

	// writing the same flags leaves no trace in the log
	require.NoError(t, repo.UpdateMeals(ctx, id, domain.MealFlags{}))
	history, err := repo.MealHistory(ctx, id)
	require.NoError(t, err)
	require.Empty(t, history)

	// a real change writes exactly one entry with the before/after snapshot
	require.NoError(t, repo.UpdateMeals(ctx, id, domain.MealFlags{Lunch: true, Snack: true}))
	history, err = repo.MealHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, domain.MealFlags{}, history[0].Old)
	require.Equal(t, domain.MealFlags{Lunch: true, Snack: true}, history[0].New)
	require.Equal(t, "10/03 14:30", history[0].TS)

	require.ErrorIs(t, repo.UpdateMeals(ctx, 9999, domain.MealFlags{}), ErrNotFound)
}

func TestUpdateDemandsAlwaysLogs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := mustCreate(t, repo, recordFields("Maria", today, "A"))

	// even a textually identical update leaves a log entry
	require.NoError(t, repo.UpdateDemands(ctx, id, "A", nil, nil, nil))
	require.NoError(t, repo.UpdateDemands(ctx, id, "A", nil, nil, nil))

	history, err := repo.DemandHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "A", history[0].OldDemands)
	require.Equal(t, "A", history[0].NewDemands)
}

func TestUpdateDemandsValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := mustCreate(t, repo, recordFields("Maria", today, "C"))

	start := "10:00"
	err := repo.UpdateDemands(ctx, id, "C", &start, nil, nil)
	require.ErrorIs(t, err, ErrValidation)

	bad := "25:00"
	err = repo.UpdateDemands(ctx, id, "C", &start, &bad, nil)
	require.ErrorIs(t, err, ErrValidation)

	// a failed update leaves no log entry behind
	history, err := repo.DemandHistory(ctx, id)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestUpdateDemandsClonesRemovedReferral(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	fields := recordFields("Maria", today, "AI, C (10:00-12:00)")
	fields["lunch"] = 1
	fields["encaminhamento"] = "CAPS"
	fields["start_time"] = "10:00"
	fields["end_time"] = "12:00"
	id := mustCreate(t, repo, fields)

	start, end := "11:00", "12:00"
	require.NoError(t, repo.UpdateDemands(ctx, id, "C (11:00-12:00)", &start, &end, nil))

	// the live record carries the new demand set
	var demands string
	require.NoError(t, repo.db.QueryRow(
		`SELECT demands FROM records WHERE id = $1`, id).Scan(&demands))
	require.Equal(t, "C (11:00-12:00)", demands)

	// the removed referral survives as an archived clone with meals zeroed
	var cloneDemands, cloneEnterInf string
	var cloneLunch int
	require.NoError(t, repo.db.QueryRow(`
		SELECT demands, enter_inf, lunch FROM records
		 WHERE archived_ai = 1 AND patient_name = 'Maria'`).
		Scan(&cloneDemands, &cloneEnterInf, &cloneLunch))
	require.Equal(t, "AI", cloneDemands)
	require.Equal(t, "14:30", cloneEnterInf)
	require.Zero(t, cloneLunch)
}

func TestUpdateDemandsKeepsReferralNoClone(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := mustCreate(t, repo, recordFields("Maria", today, "AI"))

	// the referral token is still there, so nothing is archived
	require.NoError(t, repo.UpdateDemands(ctx, id, "AI, A", nil, nil, nil))

	var clones int
	require.NoError(t, repo.db.QueryRow(
		`SELECT COUNT(*) FROM records WHERE archived_ai = 1`).Scan(&clones))
	require.Zero(t, clones)
}

func TestLeaveAndReactivate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := mustCreate(t, repo, recordFields("Maria", today, "A"))

	require.ErrorIs(t, repo.Leave(ctx, id, "07:00", "07:00"), ErrValidation)

	require.NoError(t, repo.Leave(ctx, id, "16:00", "16:05"))
	require.ErrorIs(t, repo.Leave(ctx, id, "17:00", "17:00"), ErrInvalidState)

	back, err := repo.Reactivate(ctx, id, "16:30", "16:30")
	require.NoError(t, err)
	require.Equal(t, id, back)

	var leftSys *string
	var enterSys string
	require.NoError(t, repo.db.QueryRow(
		`SELECT left_sys, enter_sys FROM records WHERE id = $1`, id).Scan(&leftSys, &enterSys))
	require.Nil(t, leftSys)
	require.Equal(t, "16:30", enterSys)

	_, err = repo.Reactivate(ctx, id, "17:00", "17:00")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCountsSkipDepartedAndClones(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := recordFields("Maria", today, "A")
	a["lunch"] = 1
	a["desjejum"] = 1
	mustCreate(t, repo, a)

	b := recordFields("João", today, "AI")
	b["lunch"] = 1
	b["encaminhamento"] = "CRAS"
	mustCreate(t, repo, b)

	departed := recordFields("Pedro", today, "A")
	departed["left_sys"] = "12:00"
	departed["left_inf"] = "12:00"
	departed["dinner"] = 1
	mustCreate(t, repo, departed)

	clone := recordFields("Maria", today, "AI")
	clone["archived_ai"] = 1
	mustCreate(t, repo, clone)

	counts, err := repo.Counts(ctx, today)
	require.NoError(t, err)
	require.Equal(t, domain.DayCounts{
		Desjejum: 1, Lunch: 2, Snack: 0, Dinner: 0,
		Total: 2, Referrals: 1,
	}, counts)

	empty, err := repo.Counts(ctx, "01/01/2020")
	require.NoError(t, err)
	require.Zero(t, empty)
}

func TestGetOrCreate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.GetOrCreate(ctx, "Maria", today)
	require.NoError(t, err)

	again, err := repo.GetOrCreate(ctx, "Maria", today)
	require.NoError(t, err)
	require.Equal(t, id, again)

	// a fresh record gets the current clock on both entry fields
	var enterSys, enterInf string
	require.NoError(t, repo.db.QueryRow(
		`SELECT enter_sys, enter_inf FROM records WHERE id = $1`, id).Scan(&enterSys, &enterInf))
	require.Equal(t, "14:30", enterSys)
	require.Equal(t, "14:30", enterInf)

	// departed records never match; a new one is created
	require.NoError(t, repo.Leave(ctx, id, "16:00", "16:00"))
	third, err := repo.GetOrCreate(ctx, "Maria", today)
	require.NoError(t, err)
	require.NotEqual(t, id, third)

	// archived clones never match either
	clone := recordFields("José", today, "AI")
	clone["archived_ai"] = 1
	cloneID := mustCreate(t, repo, clone)
	fresh, err := repo.GetOrCreate(ctx, "José", today)
	require.NoError(t, err)
	require.NotEqual(t, cloneID, fresh)
}

func TestRolloverOpenEnded(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustCreate(t, repo, recordFields("Entrou", yesterday, "AN Entrou, C"))
	mustCreate(t, repo, recordFields("Saiu", yesterday, "AN Saiu"))
	mustCreate(t, repo, recordFields("Plain", yesterday, "A"))

	archived := recordFields("Archived", yesterday, "AN")
	archived["archived_ai"] = 1
	mustCreate(t, repo, archived)

	// departed yesterday: no longer pending, must not carry over
	gone := recordFields("Gone", yesterday, "AN")
	gone["left_sys"] = "18:00"
	gone["left_inf"] = "18:00"
	mustCreate(t, repo, gone)

	// already present on the target date: must not be duplicated
	mustCreate(t, repo, recordFields("Dup", yesterday, "AN"))
	mustCreate(t, repo, recordFields("Dup", today, "AN"))

	created, err := repo.RolloverOpenEnded(ctx, today)
	require.NoError(t, err)
	require.Equal(t, 2, created)

	var demands string
	require.NoError(t, repo.db.QueryRow(`
		SELECT demands FROM records WHERE patient_name = 'Entrou' AND date = $1`, today).
		Scan(&demands))
	require.Equal(t, "AN, C", demands)

	// the exit marker survives the rollover untouched
	require.NoError(t, repo.db.QueryRow(`
		SELECT demands FROM records WHERE patient_name = 'Saiu' AND date = $1`, today).
		Scan(&demands))
	require.Equal(t, "AN Saiu", demands)

	var n int
	require.NoError(t, repo.db.QueryRow(`
		SELECT COUNT(*) FROM records WHERE date = $1 AND patient_name = 'Dup'`, today).Scan(&n))
	require.Equal(t, 1, n)
	require.NoError(t, repo.db.QueryRow(`
		SELECT COUNT(*) FROM records WHERE date = $1 AND patient_name IN ('Plain', 'Archived', 'Gone')`, today).Scan(&n))
	require.Zero(t, n)

	// running it again creates nothing new
	created, err = repo.RolloverOpenEnded(ctx, today)
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestRolloverCopiesMealsReferralAndInterval(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pending := recordFields("Maria", yesterday, "AN, C (10:00-12:00)")
	pending["lunch"] = 1
	pending["desjejum"] = 1
	pending["encaminhamento"] = "CAPS"
	pending["start_time"] = "10:00"
	pending["end_time"] = "12:00"
	pending["observations"] = "aguardando vaga"
	mustCreate(t, repo, pending)

	created, err := repo.RolloverOpenEnded(ctx, today)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	var demands, obs, referral, start, end string
	var desjejum, lunch int
	require.NoError(t, repo.db.QueryRow(`
		SELECT demands, observations, encaminhamento,
		       start_time, end_time, desjejum, lunch
		  FROM records WHERE date = $1 AND patient_name = 'Maria'`, today).
		Scan(&demands, &obs, &referral, &start, &end, &desjejum, &lunch))
	require.Equal(t, "AN, C (10:00-12:00)", demands)
	require.Equal(t, "aguardando vaga", obs)
	require.Equal(t, "CAPS", referral)
	require.Equal(t, "10:00", start)
	require.Equal(t, "12:00", end)
	require.Equal(t, 1, desjejum)
	require.Equal(t, 1, lunch)
}

func TestRolloverSkipsPatientDepartedOnTargetDate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustCreate(t, repo, recordFields("Maria", yesterday, "AN"))

	created, err := repo.RolloverOpenEnded(ctx, today)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	var id int64
	require.NoError(t, repo.db.QueryRow(`
		SELECT id FROM records WHERE date = $1 AND patient_name = 'Maria'`, today).Scan(&id))
	require.NoError(t, repo.Leave(ctx, id, "16:00", "16:00"))

	// the departed record still blocks the carry on the next refresh
	created, err = repo.RolloverOpenEnded(ctx, today)
	require.NoError(t, err)
	require.Zero(t, created)

	var n int
	require.NoError(t, repo.db.QueryRow(`
		SELECT COUNT(*) FROM records WHERE date = $1 AND patient_name = 'Maria'`, today).Scan(&n))
	require.Equal(t, 1, n)
}

func TestFetchPredicatesAndDemandFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	active := recordFields("Maria", today, "A, C (10:00-12:00)")
	active["lunch"] = 1
	mustCreate(t, repo, active)

	departed := recordFields("João", today, "AN Entrou")
	departed["left_sys"] = "12:00"
	departed["left_inf"] = "12:00"
	mustCreate(t, repo, departed)

	clone := recordFields("Maria", today, "AI")
	clone["archived_ai"] = 1
	mustCreate(t, repo, clone)

	all, err := repo.Fetch(ctx, FetchQuery{Date: today})
	require.NoError(t, err)
	require.Len(t, all, 2) // clone hidden by default

	withClones, err := repo.Fetch(ctx, FetchQuery{Date: today, IncludeClones: true})
	require.NoError(t, err)
	require.Len(t, withClones, 3)

	activeOnly, err := repo.Fetch(ctx, FetchQuery{Date: today, Predicate: PredicateActive})
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	require.Equal(t, "Maria", activeOnly[0].PatientName)

	lunch, err := repo.Fetch(ctx, FetchQuery{Date: today, Predicate: PredicateLunch})
	require.NoError(t, err)
	require.Len(t, lunch, 1)

	// "C" filters its prefix family; "A" only exact tokens
	c, err := repo.Fetch(ctx, FetchQuery{Date: today, DemandCode: "C"})
	require.NoError(t, err)
	require.Len(t, c, 1)

	an, err := repo.Fetch(ctx, FetchQuery{Date: today, DemandCode: "AN"})
	require.NoError(t, err)
	require.Len(t, an, 1)
	require.Equal(t, "João", an[0].PatientName)

	aOnly, err := repo.Fetch(ctx, FetchQuery{Date: today, DemandCode: "A"})
	require.NoError(t, err)
	require.Len(t, aOnly, 1)
	require.Equal(t, "Maria", aOnly[0].PatientName)
}

func TestFetchOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustCreate(t, repo, recordFields("bruna", today, "A"))
	mustCreate(t, repo, recordFields("Alice", today, "A"))

	newest, err := repo.Fetch(ctx, FetchQuery{Date: today})
	require.NoError(t, err)
	require.Equal(t, "Alice", newest[0].PatientName) // inserted last

	byName, err := repo.Fetch(ctx, FetchQuery{Date: today, Order: OrderPatientName})
	require.NoError(t, err)
	require.Equal(t, "Alice", byName[0].PatientName)
	require.Equal(t, "bruna", byName[1].PatientName)
}

func TestFetchReferralsShowsOnlyActiveNonArchived(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ai := recordFields("Maria", today, "AI")
	ai["encaminhamento"] = "CAPS"
	mustCreate(t, repo, ai)

	// archived clones belong to the statistics, never to the live view
	clone := recordFields("José", today, "REA")
	clone["encaminhamento"] = "CRAS"
	clone["archived_ai"] = 1
	mustCreate(t, repo, clone)

	departed := recordFields("Rita", today, "AI")
	departed["encaminhamento"] = "UBS"
	departed["left_sys"] = "12:00"
	departed["left_inf"] = "12:00"
	mustCreate(t, repo, departed)

	// no referral category set
	mustCreate(t, repo, recordFields("Pedro", today, "A"))

	rows, err := repo.FetchReferrals(ctx, today)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Maria", rows[0].PatientName)
	require.Equal(t, "CAPS", rows[0].Referral)
}

func TestSearch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := recordFields("Maria da Silva", "05/01/2025", "A")
	old["lunch"] = 1
	mustCreate(t, repo, old)

	mustCreate(t, repo, recordFields("Maria Souza", today, "C"))
	mustCreate(t, repo, recordFields("Pedro Alves", today, "A"))

	clone := recordFields("Maria da Silva", today, "AI")
	clone["archived_ai"] = 1
	mustCreate(t, repo, clone)

	// tokenized words match independently, case-insensitive
	rows, err := repo.Search(ctx, SearchFilters{Name: "silva maria", TokenizeText: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Maria da Silva", rows[0].PatientName)

	// inclusive date range, newest day first
	rows, err = repo.Search(ctx, SearchFilters{DateFrom: "05/01/2025", DateTo: today, Name: "maria"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, today, rows[0].Date)

	rows, err = repo.Search(ctx, SearchFilters{DateFrom: "06/01/2025", Name: "silva"})
	require.NoError(t, err)
	require.Empty(t, rows)

	rows, err = repo.Search(ctx, SearchFilters{Lunch: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = repo.Search(ctx, SearchFilters{Demand: "C"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Maria Souza", rows[0].PatientName)
}

func TestSearchReferralIsExactMatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	caps := recordFields("Maria", today, "AI")
	caps["encaminhamento"] = "CAPS"
	mustCreate(t, repo, caps)

	capsAd := recordFields("João", today, "AI")
	capsAd["encaminhamento"] = "CAPS AD"
	mustCreate(t, repo, capsAd)

	rows, err := repo.Search(ctx, SearchFilters{Referral: "CAPS"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Maria", rows[0].PatientName)

	rows, err = repo.Search(ctx, SearchFilters{Referral: "caps"})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestObservationsForDay(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	withObs := recordFields("Maria", today, "A")
	withObs["observations"] = "voltou agitada"
	mustCreate(t, repo, withObs)

	blank := recordFields("João", today, "A")
	blank["observations"] = "   "
	mustCreate(t, repo, blank)

	rows, err := repo.ObservationsForDay(ctx, today)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "voltou agitada", rows[0].Observations)
}

func TestDistinctDemandCodes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustCreate(t, repo, recordFields("Maria", today, "A, C (10:00-12:00)"))
	mustCreate(t, repo, recordFields("João", today, "AN Entrou, A"))

	codes, err := repo.DistinctDemandCodes(ctx, today)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "AN Entrou", "C"}, codes)
}

func TestHasEditLog(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := mustCreate(t, repo, recordFields("Maria", today, "A"))

	has, err := repo.HasEditLog(ctx, id)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, repo.UpdateDemands(ctx, id, "A, R", nil, nil, nil))
	has, err = repo.HasEditLog(ctx, id)
	require.NoError(t, err)
	require.True(t, has)
}

func TestRepairLegacyImports(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// informal clock never copied into the system field by the old importer
	broken := recordFields("Maria", today, "A")
	broken["enter_sys"] = ""
	broken["enter_inf"] = "09:10"
	mustCreate(t, repo, broken)

	fine := recordFields("João", today, "A")
	fine["enter_inf"] = "10:00"
	fine["enter_sys"] = "10:00"
	mustCreate(t, repo, fine)

	times, breakfasts, err := repo.RepairLegacyImports(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), times)
	require.Equal(t, int64(1), breakfasts)

	var enterSys string
	var desjejum int
	require.NoError(t, repo.db.QueryRow(`
		SELECT enter_sys, desjejum FROM records WHERE patient_name = 'Maria'`).
		Scan(&enterSys, &desjejum))
	require.Equal(t, "09:10", enterSys)
	require.Equal(t, 1, desjejum)

	// second run finds nothing left to fix
	times, breakfasts, err = repo.RepairLegacyImports(ctx)
	require.NoError(t, err)
	require.Zero(t, times)
	require.Zero(t, breakfasts)
}
