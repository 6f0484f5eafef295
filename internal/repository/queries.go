package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lawliet8886/Registro-de-pacientes/internal/domain"
)

// Fetch returns the day-view rows matching q. Lifecycle and archive
// filtering happens in SQL; the demand-code filter runs on parsed tokens
// because its family rules (C, AN) do not map onto a LIKE pattern.
func (r *SQLRecordsRepo) Fetch(ctx context.Context, q FetchQuery) ([]RecordSummary, error) {
	where := []string{"date = $1"}
	args := []any{q.Date}
	if !q.IncludeClones {
		where = append(where, "archived_ai = 0")
	}

	switch q.Predicate {
	case PredicateActive:
		where = append(where, "left_sys IS NULL")
	case PredicateDeparted:
		where = append(where, "left_sys IS NOT NULL")
	case PredicateDesjejum:
		where = append(where, "left_sys IS NULL", "desjejum = 1")
	case PredicateLunch:
		where = append(where, "left_sys IS NULL", "lunch = 1")
	case PredicateSnack:
		where = append(where, "left_sys IS NULL", "snack = 1")
	case PredicateDinner:
		where = append(where, "left_sys IS NULL", "dinner = 1")
	}

	order := "id DESC"
	switch {
	case q.DemandCode == "C":
		// Convivência views read as a schedule, ordered by the stay interval.
		order = "start_time, end_time, LOWER(patient_name)"
	case q.Order == OrderPatientName:
		order = "LOWER(patient_name)"
	case q.Order == OrderProfessional:
		order = "LOWER(reference_prof), LOWER(patient_name)"
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, patient_name, COALESCE(demands, ''), COALESCE(reference_prof, ''),
		       COALESCE(enter_sys, ''), COALESCE(enter_inf, ''), left_sys, left_inf
		  FROM records
		 WHERE %s
		 ORDER BY %s`, strings.Join(where, " AND "), order), args...)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer rows.Close()

	var out []RecordSummary
	for rows.Next() {
		var s RecordSummary
		if err := rows.Scan(&s.ID, &s.PatientName, &s.Demands, &s.ReferenceProf,
			&s.EnterSys, &s.EnterInf, &s.LeftSys, &s.LeftInf); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if q.DemandCode != "" && !domain.MatchesCode(s.Demands, q.DemandCode) {
			continue
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FetchReferrals returns the day's live referral view: records with a
// referral category that are still active. Archived clones and departed
// records stay out; clones surface only through the metrics path.
func (r *SQLRecordsRepo) FetchReferrals(ctx context.Context, date string) ([]ReferralRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, patient_name, COALESCE(demands, ''), COALESCE(reference_prof, ''),
		       encaminhamento,
		       COALESCE(enter_sys, ''), COALESCE(enter_inf, ''), left_sys, left_inf
		  FROM records
		 WHERE date = $1
		   AND encaminhamento IS NOT NULL
		   AND archived_ai = 0
		   AND left_sys IS NULL
		 ORDER BY id DESC`, date)
	if err != nil {
		return nil, fmt.Errorf("fetch referrals: %w", err)
	}
	defer rows.Close()

	var out []ReferralRow
	for rows.Next() {
		var row ReferralRow
		if err := rows.Scan(&row.ID, &row.PatientName, &row.Demands, &row.ReferenceProf,
			&row.Referral, &row.EnterSys, &row.EnterInf,
			&row.LeftSys, &row.LeftInf); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// MetricsRowsForDay loads the metric projection for one date, archived
// clones included.
func (r *SQLRecordsRepo) MetricsRowsForDay(ctx context.Context, date string) ([]MetricsRow, error) {
	return r.metricsRows(ctx, `WHERE date = $1`, date)
}

// MetricsRowsAll loads the metric projection over the whole store.
func (r *SQLRecordsRepo) MetricsRowsAll(ctx context.Context) ([]MetricsRow, error) {
	return r.metricsRows(ctx, ``)
}

func (r *SQLRecordsRepo) metricsRows(ctx context.Context, where string, args ...any) ([]MetricsRow, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(demands, ''), encaminhamento,
		       desjejum, lunch, snack, dinner, archived_ai
		  FROM records %s`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("metrics rows: %w", err)
	}
	defer rows.Close()

	var out []MetricsRow
	for rows.Next() {
		var m MetricsRow
		var b, l, s, d, archived int
		if err := rows.Scan(&m.Demands, &m.Referral, &b, &l, &s, &d, &archived); err != nil {
			return nil, fmt.Errorf("scan metrics row: %w", err)
		}
		m.Meals = domain.MealFlags{Desjejum: b != 0, Lunch: l != 0, Snack: s != 0, Dinner: d != 0}
		m.Archived = archived != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// DistinctDemandCodes lists the filter keys present on a date, sorted.
func (r *SQLRecordsRepo) DistinctDemandCodes(ctx context.Context, date string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(demands, '') FROM records
		 WHERE date = $1 AND archived_ai = 0`, date)
	if err != nil {
		return nil, fmt.Errorf("demand codes: %w", err)
	}
	defer rows.Close()

	seen := map[string]struct{}{}
	for rows.Next() {
		var demands string
		if err := rows.Scan(&demands); err != nil {
			return nil, err
		}
		for _, t := range domain.ParseDemands(demands) {
			seen[t.FilterKey()] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes, nil
}

// ObservationsForDay returns the non-empty observations of the date's
// non-archived records.
func (r *SQLRecordsRepo) ObservationsForDay(ctx context.Context, date string) ([]ObservationRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, patient_name, observations FROM records
		 WHERE date = $1 AND archived_ai = 0
		   AND observations IS NOT NULL AND TRIM(observations) <> ''
		 ORDER BY id`, date)
	if err != nil {
		return nil, fmt.Errorf("observations: %w", err)
	}
	defer rows.Close()

	var out []ObservationRow
	for rows.Next() {
		var o ObservationRow
		if err := rows.Scan(&o.ID, &o.PatientName, &o.Observations); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Search runs the advanced search. Substring filters are case-insensitive;
// with TokenizeText each word of the name/professional filter must match
// independently. Results order by the derived date key, newest day first.
func (r *SQLRecordsRepo) Search(ctx context.Context, f SearchFilters) ([]SearchRow, error) {
	where := []string{"archived_ai = 0"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	dateKey := "(substr(date,7,4) || substr(date,4,2) || substr(date,1,2))"

	if f.DateFrom != "" {
		where = append(where, dateKey+" >= "+arg(domain.DateKey(f.DateFrom)))
	}
	if f.DateTo != "" {
		where = append(where, dateKey+" <= "+arg(domain.DateKey(f.DateTo)))
	}
	addText := func(column, value string) {
		if value == "" {
			return
		}
		words := []string{value}
		if f.TokenizeText {
			words = strings.Fields(value)
		}
		for _, w := range words {
			where = append(where,
				fmt.Sprintf("LOWER(COALESCE(%s, '')) LIKE %s", column,
					arg("%"+strings.ToLower(w)+"%")))
		}
	}
	addText("patient_name", f.Name)
	addText("reference_prof", f.Professional)
	if f.Referral != "" {
		where = append(where, "encaminhamento = "+arg(f.Referral))
	}
	for _, m := range []struct {
		on  bool
		col string
	}{
		{f.Desjejum, "desjejum"}, {f.Lunch, "lunch"},
		{f.Snack, "snack"}, {f.Dinner, "dinner"},
	} {
		if m.on {
			where = append(where, m.col+" = 1")
		}
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT date, patient_name, COALESCE(reference_prof, ''),
		       desjejum, lunch, snack, dinner, enter_sys, left_sys,
		       COALESCE(demands, '')
		  FROM records
		 WHERE %s
		 ORDER BY %s DESC, LOWER(patient_name)`,
		strings.Join(where, " AND "), dateKey), args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var s SearchRow
		var b, l, sn, d int
		var demands string
		if err := rows.Scan(&s.Date, &s.PatientName, &s.ReferenceProf,
			&b, &l, &sn, &d, &s.EnterSys, &s.LeftSys, &demands); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if f.Demand != "" && !domain.MatchesCode(demands, f.Demand) {
			continue
		}
		s.Meals = domain.MealFlags{Desjejum: b != 0, Lunch: l != 0, Snack: sn != 0, Dinner: d != 0}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MealHistory returns the meal_log entries of a record, oldest first.
func (r *SQLRecordsRepo) MealHistory(ctx context.Context, id int64) ([]domain.MealChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT log_id, record_id, ts,
		       old_b, old_l, old_s, old_d,
		       new_b, new_l, new_s, new_d
		  FROM meal_log
		 WHERE record_id = $1
		 ORDER BY log_id`, id)
	if err != nil {
		return nil, fmt.Errorf("meal history: %w", err)
	}
	defer rows.Close()

	var out []domain.MealChange
	for rows.Next() {
		var c domain.MealChange
		var ob, ol, os, od, nb, nl, ns, nd int
		if err := rows.Scan(&c.ID, &c.RecordID, &c.TS,
			&ob, &ol, &os, &od, &nb, &nl, &ns, &nd); err != nil {
			return nil, fmt.Errorf("scan meal change: %w", err)
		}
		c.Old = domain.MealFlags{Desjejum: ob != 0, Lunch: ol != 0, Snack: os != 0, Dinner: od != 0}
		c.New = domain.MealFlags{Desjejum: nb != 0, Lunch: nl != 0, Snack: ns != 0, Dinner: nd != 0}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DemandHistory returns the demand_log entries of a record, oldest first.
func (r *SQLRecordsRepo) DemandHistory(ctx context.Context, id int64) ([]domain.DemandChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT log_id, record_id, ts, COALESCE(old_demands, ''), COALESCE(new_demands, '')
		  FROM demand_log
		 WHERE record_id = $1
		 ORDER BY log_id`, id)
	if err != nil {
		return nil, fmt.Errorf("demand history: %w", err)
	}
	defer rows.Close()

	var out []domain.DemandChange
	for rows.Next() {
		var c domain.DemandChange
		if err := rows.Scan(&c.ID, &c.RecordID, &c.TS, &c.OldDemands, &c.NewDemands); err != nil {
			return nil, fmt.Errorf("scan demand change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
