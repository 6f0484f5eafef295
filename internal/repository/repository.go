package repository

import (
	"context"
	"database/sql"

	"github.com/lawliet8886/Registro-de-pacientes/internal/domain"
)

// RecordSummary is the eight-column projection the day views consume.
type RecordSummary struct {
	ID            int64
	PatientName   string
	Demands       string
	ReferenceProf string
	EnterSys      string
	EnterInf      string
	LeftSys       *string
	LeftInf       *string
}

// ReferralRow is the projection of the referrals (AI/REA) view.
type ReferralRow struct {
	ID            int64
	PatientName   string
	Demands       string
	ReferenceProf string
	Referral      string
	EnterSys      string
	EnterInf      string
	LeftSys       *string
	LeftInf       *string
}

// MetricsRow is the minimal slice of a record the metrics computation
// needs. Clones stay in the row set; the computation decides what they
// may contribute to.
type MetricsRow struct {
	Demands  string
	Referral *string
	Meals    domain.MealFlags
	Archived bool
}

// ObservationRow is one non-empty observation of the day.
type ObservationRow struct {
	ID           int64
	PatientName  string
	Observations string
}

// SearchRow is one advanced-search result.
type SearchRow struct {
	Date          string
	PatientName   string
	ReferenceProf string
	Meals         domain.MealFlags
	EnterSys      *string
	LeftSys       *string
}

// Predicate narrows Fetch to a lifecycle subset of the day.
type Predicate int

const (
	PredicateAll Predicate = iota
	PredicateActive
	PredicateDeparted
	PredicateDesjejum // active with the breakfast flag, and so on
	PredicateLunch
	PredicateSnack
	PredicateDinner
)

// Order selects the Fetch ordering. Filtering by convivência overrides it
// with the stay-interval order.
type Order int

const (
	OrderNewest Order = iota // insertion order, newest first
	OrderPatientName
	OrderProfessional
)

// FetchQuery describes one day-view query.
type FetchQuery struct {
	Date          string
	Predicate     Predicate
	DemandCode    string // "" = all; token-filter semantics, see domain.MatchesCode
	IncludeClones bool
	Order         Order
}

// SearchFilters describe the advanced search. Date bounds are inclusive
// dd/MM/yyyy values compared through the derived sortable key.
type SearchFilters struct {
	DateFrom       string
	DateTo         string
	Name           string
	Professional   string
	TokenizeText   bool // split name/professional into independently matched words
	Demand         string
	Referral       string
	Desjejum       bool
	Lunch          bool
	Snack          bool
	Dinner         bool
}

// RecordsRepo is the record lifecycle contract the UI and the collaborators
// (importer, exporter, dashboards) program against.
type RecordsRepo interface {
	Create(ctx context.Context, fields map[string]any) error
	UpdateMeals(ctx context.Context, id int64, flags domain.MealFlags) error
	UpdateDemands(ctx context.Context, id int64, demands string, start, end, referral *string) error
	Leave(ctx context.Context, id int64, leftSys, leftInf string) error
	Reactivate(ctx context.Context, id int64, enterSys, enterInf string) (int64, error)
	HasEditLog(ctx context.Context, id int64) (bool, error)
	Counts(ctx context.Context, date string) (domain.DayCounts, error)

	Fetch(ctx context.Context, q FetchQuery) ([]RecordSummary, error)
	FetchReferrals(ctx context.Context, date string) ([]ReferralRow, error)
	MetricsRowsForDay(ctx context.Context, date string) ([]MetricsRow, error)
	MetricsRowsAll(ctx context.Context) ([]MetricsRow, error)
	DistinctDemandCodes(ctx context.Context, date string) ([]string, error)
	ObservationsForDay(ctx context.Context, date string) ([]ObservationRow, error)
	Search(ctx context.Context, f SearchFilters) ([]SearchRow, error)

	MealHistory(ctx context.Context, id int64) ([]domain.MealChange, error)
	DemandHistory(ctx context.Context, id int64) ([]domain.DemandChange, error)

	GetOrCreate(ctx context.Context, name, date string) (int64, error)
	RolloverOpenEnded(ctx context.Context, targetDate string) (int, error)
	RepairLegacyImports(ctx context.Context) (timesFixed, breakfastsMarked int64, err error)

	// Transaction-scoped variants used by the all-or-nothing importer.
	BeginTx(ctx context.Context) (*sql.Tx, error)
	GetOrCreateTx(ctx context.Context, tx *sql.Tx, name, date string) (int64, error)
	DemandsTx(ctx context.Context, tx *sql.Tx, id int64) (string, error)
}
