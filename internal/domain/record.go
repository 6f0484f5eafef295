package domain

// Record is one patient's attendance episode on one calendar date
// (one row of the records table).
type Record struct {
	ID            int64   `db:"id"`
	PatientName   string  `db:"patient_name"`
	Demands       string  `db:"demands"` // comma-separated demand tokens, e.g. "AI, C (10:00-12:30)"
	ReferenceProf string  `db:"reference_prof"`
	Date          string  `db:"date"` // locale text, dd/MM/yyyy
	EnterSys      string  `db:"enter_sys"` // system entry clock, HH:mm
	EnterInf      string  `db:"enter_inf"` // informal entry clock reported at the desk
	LeftSys       *string `db:"left_sys"`  // nil while the patient is present
	LeftInf       *string `db:"left_inf"`
	Observations  string  `db:"observations"`
	Referral      *string `db:"encaminhamento"` // referral category, only for AI/REA visits
	Meals         MealFlags
	StartTime     *string `db:"start_time"` // convivência interval
	EndTime       *string `db:"end_time"`
	ArchivedAI    bool    `db:"archived_ai"` // statistics-only clone, never shown live
}

// Active reports whether the record still represents a present patient.
func (r Record) Active() bool { return r.LeftSys == nil }

// MealFlags holds the four independent meal attendance markers.
type MealFlags struct {
	Desjejum bool `db:"desjejum"`
	Lunch    bool `db:"lunch"`
	Snack    bool `db:"snack"`
	Dinner   bool `db:"dinner"`
}

// MealChange is an immutable meal_log entry: the before/after snapshot of
// the four meal flags, written only when an update actually changed them.
type MealChange struct {
	ID       int64  `db:"log_id"`
	RecordID int64  `db:"record_id"`
	TS       string `db:"ts"` // dd/MM HH:mm
	Old      MealFlags
	New      MealFlags
}

// DemandChange is an immutable demand_log entry. Unlike meal changes it is
// written on every demand update, even when the text did not change; that
// asymmetry is part of the existing data contract and is kept on purpose.
type DemandChange struct {
	ID         int64  `db:"log_id"`
	RecordID   int64  `db:"record_id"`
	TS         string `db:"ts"`
	OldDemands string `db:"old_demands"`
	NewDemands string `db:"new_demands"`
}

// RecordColumns is the exact business column set of the records table, in
// insert order. Create rejects field sets that do not match it one-to-one.
var RecordColumns = []string{
	"patient_name", "demands", "reference_prof", "date",
	"enter_sys", "enter_inf", "left_sys", "left_inf",
	"observations", "encaminhamento",
	"desjejum", "lunch", "snack", "dinner",
	"start_time", "end_time", "archived_ai",
}

// IsRecordColumn reports whether name is one of RecordColumns.
func IsRecordColumn(name string) bool {
	for _, c := range RecordColumns {
		if c == name {
			return true
		}
	}
	return false
}

// MealFlagsCount sums meal attendance over a set of records.
type MealFlagsCount struct {
	Desjejum int
	Lunch    int
	Snack    int
	Dinner   int
}

// DayCounts are the dashboard counters for one date, computed over active
// (non-departed) records excluding archived clones.
type DayCounts struct {
	Desjejum  int
	Lunch     int
	Snack     int
	Dinner    int
	Total     int // patients present
	Referrals int // records with a referral category set
}
